package processor

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/fracabu/logistic-data-dash/src/utils"
)

// KPIBundle is the scalar summary of one filtered view. HasDistance is
// false when the view is empty, in which case the mean is reported as
// "no data" instead of NaN.
type KPIBundle struct {
	Shipments       int     `json:"shipments"`
	TotalDistanceKM float64 `json:"total_distance_km"`
	MeanDistanceKM  float64 `json:"mean_distance_km"`
	HasDistance     bool    `json:"has_distance"`

	MeanOnTimeRatio    float64 `json:"mean_on_time_ratio"`
	MeanLoadFactor     float64 `json:"mean_load_factor"`
	MeanFuelEfficiency float64 `json:"mean_fuel_efficiency"`
	HasOperational     bool    `json:"has_operational"`
}

// KPIs computes the scalar bundle. A zero-row view degrades to neutral
// values rather than raising.
func KPIs(v FilteredView) KPIBundle {
	bundle := KPIBundle{Shipments: v.Rows()}
	if bundle.Shipments == 0 {
		return bundle
	}

	dist := v.DF.Col(ColDistanceKM).Float()
	bundle.TotalDistanceKM = floats.Sum(dist)
	bundle.MeanDistanceKM = stat.Mean(dist, nil)
	bundle.HasDistance = true

	if utils.HasColumn(v.DF, ColOnTimeRatio) &&
		utils.HasColumn(v.DF, ColLoadFactor) &&
		utils.HasColumn(v.DF, ColFuelEfficiency) {
		bundle.MeanOnTimeRatio = stat.Mean(v.DF.Col(ColOnTimeRatio).Float(), nil)
		bundle.MeanLoadFactor = stat.Mean(v.DF.Col(ColLoadFactor).Float(), nil)
		bundle.MeanFuelEfficiency = stat.Mean(v.DF.Col(ColFuelEfficiency).Float(), nil)
		bundle.HasOperational = true
	}

	return bundle
}

// MaterialStat aggregates shipment distance per material.
type MaterialStat struct {
	Material  string  `json:"material"`
	TotalKM   float64 `json:"total_km"`
	MeanKM    float64 `json:"mean_km"`
	MinKM     float64 `json:"min_km"`
	MaxKM     float64 `json:"max_km"`
	Shipments int     `json:"shipments"`
}

// MaterialStats groups the view by material. Output is sorted by total
// distance descending, ties broken by material name ascending, so repeated
// runs produce the same table.
func MaterialStats(v FilteredView) []MaterialStat {
	if v.Rows() == 0 {
		return nil
	}

	materials := v.DF.Col(ColMaterial).Records()
	dist := v.DF.Col(ColDistanceKM).Float()

	groups := make(map[string]*MaterialStat)
	var order []string
	for i, m := range materials {
		g, ok := groups[m]
		if !ok {
			g = &MaterialStat{Material: m, MinKM: dist[i], MaxKM: dist[i]}
			groups[m] = g
			order = append(order, m)
		}
		g.TotalKM += dist[i]
		g.Shipments++
		if dist[i] < g.MinKM {
			g.MinKM = dist[i]
		}
		if dist[i] > g.MaxKM {
			g.MaxKM = dist[i]
		}
	}

	stats := make([]MaterialStat, 0, len(order))
	for _, m := range order {
		g := groups[m]
		g.MeanKM = g.TotalKM / float64(g.Shipments)
		stats = append(stats, *g)
	}

	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].TotalKM != stats[j].TotalKM {
			return stats[i].TotalKM > stats[j].TotalKM
		}
		return stats[i].Material < stats[j].Material
	})

	return stats
}

// TopMaterials returns the n largest materials by total distance from an
// already sorted stats slice.
func TopMaterials(stats []MaterialStat, n int) []MaterialStat {
	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// VehicleStat aggregates distance and operational metrics per vehicle type.
type VehicleStat struct {
	VehicleType string  `json:"vehicle_type"`
	TotalKM     float64 `json:"total_km"`
	MeanKM      float64 `json:"mean_km"`
	Shipments   int     `json:"shipments"`

	MeanOnTimeRatio    float64 `json:"mean_on_time_ratio"`
	MeanLoadFactor     float64 `json:"mean_load_factor"`
	MeanFuelEfficiency float64 `json:"mean_fuel_efficiency"`
	HasOperational     bool    `json:"has_operational"`
}

// VehicleStats groups the view by vehicle type, sorted by type name for a
// stable table.
func VehicleStats(v FilteredView) []VehicleStat {
	if v.Rows() == 0 {
		return nil
	}

	vehicles := v.DF.Col(ColVehicleType).Records()
	dist := v.DF.Col(ColDistanceKM).Float()

	hasOperational := utils.HasColumn(v.DF, ColOnTimeRatio) &&
		utils.HasColumn(v.DF, ColLoadFactor) &&
		utils.HasColumn(v.DF, ColFuelEfficiency)

	var onTime, loadFactor, fuelEff []float64
	if hasOperational {
		onTime = v.DF.Col(ColOnTimeRatio).Float()
		loadFactor = v.DF.Col(ColLoadFactor).Float()
		fuelEff = v.DF.Col(ColFuelEfficiency).Float()
	}

	type acc struct {
		stat                       VehicleStat
		onTime, loadFactor, fuelEff float64
	}

	groups := make(map[string]*acc)
	var order []string
	for i, vt := range vehicles {
		g, ok := groups[vt]
		if !ok {
			g = &acc{stat: VehicleStat{VehicleType: vt, HasOperational: hasOperational}}
			groups[vt] = g
			order = append(order, vt)
		}
		g.stat.TotalKM += dist[i]
		g.stat.Shipments++
		if hasOperational {
			g.onTime += onTime[i]
			g.loadFactor += loadFactor[i]
			g.fuelEff += fuelEff[i]
		}
	}

	sort.Strings(order)

	stats := make([]VehicleStat, 0, len(order))
	for _, vt := range order {
		g := groups[vt]
		n := float64(g.stat.Shipments)
		g.stat.MeanKM = g.stat.TotalKM / n
		if hasOperational {
			g.stat.MeanOnTimeRatio = g.onTime / n
			g.stat.MeanLoadFactor = g.loadFactor / n
			g.stat.MeanFuelEfficiency = g.fuelEff / n
		}
		stats = append(stats, g.stat)
	}

	return stats
}

// TrendPoint is one day of the daily trend series.
type TrendPoint struct {
	Date      string  `json:"date"` // YYYY-MM-DD
	TotalKM   float64 `json:"total_km"`
	Shipments int     `json:"shipments"`
}

// DailyTrend groups by the calendar date of the booking timestamp, summing
// distance and counting shipments. Rows without a valid date are excluded.
// Output is ascending by date with no gap filling: absent days do not
// appear.
func DailyTrend(v FilteredView) []TrendPoint {
	if v.Rows() == 0 {
		return []TrendPoint{}
	}

	dates := v.DF.Col(ColBookingDate).Records()
	dist := v.DF.Col(ColDistanceKM).Float()

	groups := make(map[string]*TrendPoint)
	for i, d := range dates {
		day := calendarDate(d)
		if day == "" {
			continue
		}
		g, ok := groups[day]
		if !ok {
			g = &TrendPoint{Date: day}
			groups[day] = g
		}
		g.TotalKM += dist[i]
		g.Shipments++
	}

	points := make([]TrendPoint, 0, len(groups))
	for _, g := range groups {
		points = append(points, *g)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })

	return points
}

// MetricPoint is one day of a per-metric trend series.
type MetricPoint struct {
	Date string  `json:"date"`
	Mean float64 `json:"mean"`
}

// MetricTrend computes the daily mean of an arbitrary numeric column,
// grouped the same way as DailyTrend.
func MetricTrend(v FilteredView, column string) ([]MetricPoint, error) {
	if !utils.HasColumn(v.DF, column) {
		return nil, fmt.Errorf("unknown metric column %q", column)
	}
	if v.Rows() == 0 {
		return []MetricPoint{}, nil
	}

	dates := v.DF.Col(ColBookingDate).Records()
	values := v.DF.Col(column).Float()

	type acc struct {
		sum float64
		n   int
	}
	groups := make(map[string]*acc)
	for i, d := range dates {
		day := calendarDate(d)
		if day == "" || math.IsNaN(values[i]) {
			continue
		}
		g, ok := groups[day]
		if !ok {
			g = &acc{}
			groups[day] = g
		}
		g.sum += values[i]
		g.n++
	}

	points := make([]MetricPoint, 0, len(groups))
	for day, g := range groups {
		points = append(points, MetricPoint{Date: day, Mean: g.sum / float64(g.n)})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })

	return points, nil
}

// DetailTable returns the n most recent shipments sorted by booking date
// descending, the columns of the dashboard detail view.
func DetailTable(v FilteredView, n int) dataframe.DataFrame {
	selected := v.DF.Select([]string{
		ColBookingID, ColBookingDate, ColOrigin, ColDestination,
		ColVehicleType, ColMaterial, ColDistanceKM,
	})
	sorted := selected.Arrange(dataframe.RevSort(ColBookingDate))
	if sorted.Nrow() <= n {
		return sorted
	}

	head := make([]int, n)
	for i := range head {
		head[i] = i
	}
	return sorted.Subset(head)
}

// calendarDate extracts YYYY-MM-DD from a canonical timestamp, empty for NA.
func calendarDate(ts string) string {
	if len(ts) < 10 {
		return ""
	}
	return ts[:10]
}
