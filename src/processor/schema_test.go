package processor

import (
	"errors"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/fracabu/logistic-data-dash/src/config"
)

func TestNormalizeMissingColumnFails(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"B1"}, series.String, ColBookingID),
		series.New([]string{"2024-03-15"}, series.String, ColBookingDate),
	)

	_, err := Normalize(df, identityConfig(), 1)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if len(schemaErr.Missing) == 0 {
		t.Fatalf("expected missing columns to be reported")
	}
}

func TestNormalizeMappedHeaders(t *testing.T) {
	// source file uses its own headers, resolved through the column map
	df := dataframe.New(
		series.New([]string{"B1"}, series.String, "BookingID"),
		series.New([]string{"2024-03-15 08:00:00"}, series.String, "BookingID_Date"),
		series.New([]string{"Pune"}, series.String, "Origin_Location"),
		series.New([]string{"Delhi"}, series.String, "Destination_Location"),
		series.New([]string{"18.5,73.8"}, series.String, "Org_lat_lon"),
		series.New([]string{"28.7,77.1"}, series.String, "Des_lat_lon"),
		series.New([]string{"Truck"}, series.String, "vehicleType"),
		series.New([]string{"Steel"}, series.String, "Material Shipped"),
		series.New([]string{"120"}, series.String, "TRANSPORTATION_DISTANCE_IN_KM"),
	)

	dcfg := &config.DataConfig{Columns: map[string]string{
		ColBookingID:   "BookingID",
		ColBookingDate: "BookingID_Date",
		ColOrigin:      "Origin_Location",
		ColDestination: "Destination_Location",
		ColOriginCoord: "Org_lat_lon",
		ColDestCoord:   "Des_lat_lon",
		ColVehicleType: "vehicleType",
		ColMaterial:    "Material Shipped",
		ColDistanceKM:  "TRANSPORTATION_DISTANCE_IN_KM",
	}}

	ds, err := Normalize(df, dcfg, 1)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	for _, col := range mandatoryColumns {
		found := false
		for _, name := range ds.DF.Names() {
			if name == col {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("canonical column %q missing after rename", col)
		}
	}
}

func TestNormalizeCoercesDatesToExplicitNA(t *testing.T) {
	rows := threeShipments()
	rows[1].date = "garbage"

	ds := normalizedFixture(t, rows)
	if ds.DF.Nrow() != 3 {
		t.Fatalf("rows must never be dropped, got %d", ds.DF.Nrow())
	}

	dates := ds.DF.Col(ColBookingDate).Records()
	if dates[1] != "" {
		t.Fatalf("unparseable date should become NA, got %q", dates[1])
	}
	if dates[0] != "2024-03-15 08:00:00" {
		t.Fatalf("valid date mangled: %q", dates[0])
	}
}

func TestNormalizeSynthesisDeterministic(t *testing.T) {
	first := normalizedFixture(t, threeShipments())
	second := normalizedFixture(t, threeShipments())

	a := first.DF.Col(ColOnTimeRatio).Float()
	b := second.DF.Col(ColOnTimeRatio).Float()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed must reproduce synthesis, row %d: %v != %v", i, a[i], b[i])
		}
	}

	for _, v := range a {
		if v < 0.8 || v > 1.0 {
			t.Fatalf("on_time_ratio out of range: %v", v)
		}
	}
	for _, v := range first.DF.Col(ColFuelEfficiency).Float() {
		if v < 25 || v > 35 {
			t.Fatalf("fuel_efficiency out of range: %v", v)
		}
	}
	for _, s := range first.DF.Col(ColDeliveryStatus).Records() {
		if s != "On Time" && s != "Delayed" && s != "Early" {
			t.Fatalf("unexpected delivery status %q", s)
		}
	}
}

func TestNormalizeKeepsExistingMetrics(t *testing.T) {
	df := rawFrame(threeShipments()).
		Mutate(series.New([]float64{0.91, 0.92, 0.93}, series.Float, ColOnTimeRatio))

	ds, err := Normalize(df, identityConfig(), 1)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	got := ds.DF.Col(ColOnTimeRatio).Float()
	want := []float64{0.91, 0.92, 0.93}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("existing metrics must not be re-synthesized: %v", got)
		}
	}
}

func TestNormalizeDomains(t *testing.T) {
	ds := normalizedFixture(t, threeShipments())

	if len(ds.VehicleTypes) != 2 || ds.VehicleTypes[0] != "A" || ds.VehicleTypes[1] != "B" {
		t.Fatalf("unexpected vehicle domain %v", ds.VehicleTypes)
	}
	if len(ds.Materials) != 2 || ds.Materials[0] != "X" || ds.Materials[1] != "Y" {
		t.Fatalf("unexpected material domain %v", ds.Materials)
	}
	if !ds.HasDates {
		t.Fatalf("expected an observed date span")
	}
	if ds.DateFrom.Format("2006-01-02") != "2024-03-15" || ds.DateTo.Format("2006-01-02") != "2024-03-15" {
		t.Fatalf("unexpected date span %v - %v", ds.DateFrom, ds.DateTo)
	}
}

func TestLoaderCachesByIdentity(t *testing.T) {
	loader := NewLoader(identityConfig())

	first, err := loader.Load("primary.csv", rawFrame(threeShipments()))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	second, err := loader.Load("primary.csv", rawFrame(threeShipments()))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if first != second {
		t.Fatalf("same identity must hit the cache")
	}

	loader.Invalidate("primary.csv")
	third, err := loader.Load("primary.csv", rawFrame(threeShipments()))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if third == first {
		t.Fatalf("invalidation must force a fresh normalization")
	}
}

func TestNormalizeCoercesDistance(t *testing.T) {
	rows := threeShipments()
	rows[0].distance = "not a number"
	rows[2].distance = "-5"

	ds := normalizedFixture(t, rows)
	dist := ds.DF.Col(ColDistanceKM).Float()
	if dist[0] != 0 {
		t.Fatalf("unparseable distance should be 0, got %v", dist[0])
	}
	if dist[1] != 20 {
		t.Fatalf("valid distance mangled: %v", dist[1])
	}
	if dist[2] != 0 {
		t.Fatalf("negative distance should be clamped to 0, got %v", dist[2])
	}
}
