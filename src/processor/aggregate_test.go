package processor

import (
	"math"
	"testing"
)

func TestKPIsFilteredScenario(t *testing.T) {
	ds := normalizedFixture(t, threeShipments())

	spec := DefaultFilter(ds)
	spec.VehicleTypes = []string{"A"}

	kpis := KPIs(ApplyFilter(ds, spec))
	if kpis.Shipments != 2 {
		t.Fatalf("expected 2 shipments, got %d", kpis.Shipments)
	}
	if kpis.TotalDistanceKM != 40 {
		t.Fatalf("expected total distance 40, got %v", kpis.TotalDistanceKM)
	}
	if kpis.MeanDistanceKM != 20 {
		t.Fatalf("expected mean distance 20, got %v", kpis.MeanDistanceKM)
	}
	if !kpis.HasDistance || !kpis.HasOperational {
		t.Fatalf("expected distance and operational KPIs to be available")
	}
	if kpis.MeanOnTimeRatio < 0.8 || kpis.MeanOnTimeRatio > 1.0 {
		t.Fatalf("mean on-time ratio out of range: %v", kpis.MeanOnTimeRatio)
	}
}

func TestKPIsEmptyViewReportsNoData(t *testing.T) {
	ds := normalizedFixture(t, threeShipments())
	spec := DefaultFilter(ds)
	spec.Materials = []string{"nonexistent"}

	kpis := KPIs(ApplyFilter(ds, spec))
	if kpis.Shipments != 0 {
		t.Fatalf("expected zero shipments, got %d", kpis.Shipments)
	}
	if kpis.HasDistance {
		t.Fatalf("empty view must report no data, not a mean")
	}
	if math.IsNaN(kpis.MeanDistanceKM) {
		t.Fatalf("NaN must never leak out of the KPI bundle")
	}
}

func TestMaterialStatsGrouping(t *testing.T) {
	ds := normalizedFixture(t, threeShipments())

	spec := DefaultFilter(ds)
	spec.VehicleTypes = []string{"A"}
	view := ApplyFilter(ds, spec)

	stats := MaterialStats(view)
	if len(stats) != 1 {
		t.Fatalf("material Y has no rows and must be absent, got %+v", stats)
	}
	x := stats[0]
	if x.Material != "X" || x.TotalKM != 40 || x.Shipments != 2 {
		t.Fatalf("unexpected stats for X: %+v", x)
	}
	if x.MinKM != 10 || x.MaxKM != 30 || x.MeanKM != 20 {
		t.Fatalf("unexpected min/max/mean for X: %+v", x)
	}
}

func TestMaterialStatsCountsCoverView(t *testing.T) {
	view := fullView(t, manyShipments(50))
	stats := MaterialStats(view)

	total := 0
	for _, s := range stats {
		total += s.Shipments
	}
	if total != view.Rows() {
		t.Fatalf("group counts %d must sum to view size %d", total, view.Rows())
	}
}

func TestMaterialStatsOrdering(t *testing.T) {
	rows := []rawRow{
		{"B1", "2024-03-15 08:00:00", "P", "D", "1,1", "2,2", "A", "Cement", "50"},
		{"B2", "2024-03-15 08:00:00", "P", "D", "1,1", "2,2", "A", "Steel", "80"},
		{"B3", "2024-03-15 08:00:00", "P", "D", "1,1", "2,2", "A", "Bricks", "50"},
	}
	stats := MaterialStats(fullView(t, rows))

	if stats[0].Material != "Steel" {
		t.Fatalf("expected Steel first by total, got %q", stats[0].Material)
	}
	// 50 km tie broken alphabetically
	if stats[1].Material != "Bricks" || stats[2].Material != "Cement" {
		t.Fatalf("tie must break by name ascending: %q, %q", stats[1].Material, stats[2].Material)
	}
}

func TestTopMaterials(t *testing.T) {
	view := fullView(t, manyShipments(30))
	stats := MaterialStats(view)

	top := TopMaterials(stats, 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 materials, got %d", len(top))
	}
	if top[0].TotalKM < top[1].TotalKM {
		t.Fatalf("top materials must stay sorted descending")
	}

	if got := TopMaterials(stats, 100); len(got) != len(stats) {
		t.Fatalf("n beyond length must return everything")
	}
}

func TestVehicleStats(t *testing.T) {
	ds := normalizedFixture(t, threeShipments())
	stats := VehicleStats(ApplyFilter(ds, DefaultFilter(ds)))

	if len(stats) != 2 {
		t.Fatalf("expected 2 vehicle groups, got %d", len(stats))
	}
	// sorted by type name
	if stats[0].VehicleType != "A" || stats[1].VehicleType != "B" {
		t.Fatalf("unexpected order: %+v", stats)
	}
	if stats[0].TotalKM != 40 || stats[0].Shipments != 2 || stats[0].MeanKM != 20 {
		t.Fatalf("unexpected stats for A: %+v", stats[0])
	}
	if !stats[0].HasOperational {
		t.Fatalf("operational means expected when metric columns are present")
	}
}

func TestDailyTrendMatchesKPITotal(t *testing.T) {
	view := fullView(t, manyShipments(40))

	trend := DailyTrend(view)
	kpis := KPIs(view)

	var sum float64
	var count int
	for _, p := range trend {
		sum += p.TotalKM
		count += p.Shipments
	}
	if math.Abs(sum-kpis.TotalDistanceKM) > 1e-9 {
		t.Fatalf("trend total %v must equal KPI total %v", sum, kpis.TotalDistanceKM)
	}
	if count != kpis.Shipments {
		t.Fatalf("trend count %d must equal KPI count %d", count, kpis.Shipments)
	}
}

func TestDailyTrendAscendingWithoutGapFilling(t *testing.T) {
	rows := []rawRow{
		{"B1", "2024-03-01 08:00:00", "P", "D", "1,1", "2,2", "A", "X", "10"},
		{"B2", "2024-03-05 08:00:00", "P", "D", "1,1", "2,2", "A", "X", "20"},
		{"B3", "2024-03-01 09:00:00", "P", "D", "1,1", "2,2", "A", "X", "30"},
	}
	trend := DailyTrend(fullView(t, rows))

	if len(trend) != 2 {
		t.Fatalf("absent days must not appear, got %d points", len(trend))
	}
	if trend[0].Date != "2024-03-01" || trend[1].Date != "2024-03-05" {
		t.Fatalf("trend must be ascending by date: %+v", trend)
	}
	if trend[0].TotalKM != 40 || trend[0].Shipments != 2 {
		t.Fatalf("unexpected first day aggregate: %+v", trend[0])
	}
}

func TestDailyTrendEmptyView(t *testing.T) {
	ds := normalizedFixture(t, threeShipments())
	spec := DefaultFilter(ds)
	spec.VehicleTypes = []string{"none"}

	trend := DailyTrend(ApplyFilter(ds, spec))
	if trend == nil || len(trend) != 0 {
		t.Fatalf("empty view must produce an empty ordered sequence, got %v", trend)
	}
}

func TestMetricTrend(t *testing.T) {
	view := fullView(t, manyShipments(20))

	points, err := MetricTrend(view, ColOnTimeRatio)
	if err != nil {
		t.Fatalf("MetricTrend failed: %v", err)
	}
	if len(points) == 0 {
		t.Fatalf("expected per-day means")
	}
	for i := 1; i < len(points); i++ {
		if points[i].Date <= points[i-1].Date {
			t.Fatalf("metric trend must be ascending by date")
		}
	}
	for _, p := range points {
		if p.Mean < 0.8 || p.Mean > 1.0 {
			t.Fatalf("daily mean out of the synthesized range: %v", p.Mean)
		}
	}
}

func TestMetricTrendUnknownColumn(t *testing.T) {
	view := fullView(t, threeShipments())
	if _, err := MetricTrend(view, "bogus"); err == nil {
		t.Fatalf("expected error for unknown metric column")
	}
}

func TestDetailTable(t *testing.T) {
	view := fullView(t, manyShipments(10))

	table := DetailTable(view, 5)
	if table.Nrow() != 5 {
		t.Fatalf("expected capped table of 5 rows, got %d", table.Nrow())
	}

	dates := table.Col(ColBookingDate).Records()
	for i := 1; i < len(dates); i++ {
		if dates[i] > dates[i-1] {
			t.Fatalf("detail table must be sorted by date descending: %v", dates)
		}
	}
}
