package processor

import (
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/fracabu/logistic-data-dash/src/utils"
)

// FilterSpec is an immutable filter value: a calendar-date range plus the
// selected vehicle types and materials. Build one per interaction and pass
// it to ApplyFilter.
type FilterSpec struct {
	DateFrom time.Time // inclusive, date portion only
	DateTo   time.Time
	VehicleTypes []string
	Materials    []string
}

// DefaultFilter selects everything the dataset observed: the full date span
// and all vehicle types and materials.
func DefaultFilter(ds *Dataset) FilterSpec {
	return FilterSpec{
		DateFrom:     ds.DateFrom,
		DateTo:       ds.DateTo,
		VehicleTypes: append([]string(nil), ds.VehicleTypes...),
		Materials:    append([]string(nil), ds.Materials...),
	}
}

// FilteredView is the subset of a normalized dataset matching one
// FilterSpec. The frame is a fresh copy with no aliasing to the dataset, in
// the original row order; callers own it for one aggregation pass.
type FilteredView struct {
	DF dataframe.DataFrame
}

func (v FilteredView) Rows() int { return v.DF.Nrow() }

// ApplyFilter keeps a row iff the booking date falls inside the range and
// the vehicle type and material are both selected. Rows whose booking date
// failed coercion never satisfy the range test.
func ApplyFilter(ds *Dataset, spec FilterSpec) FilteredView {
	vehicles := toSet(spec.VehicleTypes)
	materials := toSet(spec.Materials)

	from := truncateToDay(spec.DateFrom)
	to := truncateToDay(spec.DateTo)

	df := ds.DF.
		Filter(dataframe.F{
			Colname:    ColBookingDate,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				t, ok := utils.ParseTime(el.String())
				if !ok {
					return false
				}
				d := truncateToDay(t)
				return !d.Before(from) && !d.After(to)
			},
		}).
		Filter(dataframe.F{
			Colname:    ColVehicleType,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				_, ok := vehicles[el.String()]
				return ok
			},
		}).
		Filter(dataframe.F{
			Colname:    ColMaterial,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				_, ok := materials[el.String()]
				return ok
			},
		})

	return FilteredView{DF: df.Copy()}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
