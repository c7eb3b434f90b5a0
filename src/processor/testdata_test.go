package processor

import (
	"fmt"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/fracabu/logistic-data-dash/src/config"
)

// identityConfig resolves every canonical column name to itself.
func identityConfig() *config.DataConfig {
	return &config.DataConfig{Columns: map[string]string{}}
}

type rawRow struct {
	id, date, origin, dest, originCoord, destCoord, vehicle, material, distance string
}

func rawFrame(rows []rawRow) dataframe.DataFrame {
	n := len(rows)
	cols := map[string][]string{
		ColBookingID:   make([]string, n),
		ColBookingDate: make([]string, n),
		ColOrigin:      make([]string, n),
		ColDestination: make([]string, n),
		ColOriginCoord: make([]string, n),
		ColDestCoord:   make([]string, n),
		ColVehicleType: make([]string, n),
		ColMaterial:    make([]string, n),
		ColDistanceKM:  make([]string, n),
	}
	for i, r := range rows {
		cols[ColBookingID][i] = r.id
		cols[ColBookingDate][i] = r.date
		cols[ColOrigin][i] = r.origin
		cols[ColDestination][i] = r.dest
		cols[ColOriginCoord][i] = r.originCoord
		cols[ColDestCoord][i] = r.destCoord
		cols[ColVehicleType][i] = r.vehicle
		cols[ColMaterial][i] = r.material
		cols[ColDistanceKM][i] = r.distance
	}

	return dataframe.New(
		series.New(cols[ColBookingID], series.String, ColBookingID),
		series.New(cols[ColBookingDate], series.String, ColBookingDate),
		series.New(cols[ColOrigin], series.String, ColOrigin),
		series.New(cols[ColDestination], series.String, ColDestination),
		series.New(cols[ColOriginCoord], series.String, ColOriginCoord),
		series.New(cols[ColDestCoord], series.String, ColDestCoord),
		series.New(cols[ColVehicleType], series.String, ColVehicleType),
		series.New(cols[ColMaterial], series.String, ColMaterial),
		series.New(cols[ColDistanceKM], series.String, ColDistanceKM),
	)
}

// threeShipments is the canonical small scenario: vehicles {A,B,A},
// materials {X,Y,X}, distances {10,20,30}, all on the same day.
func threeShipments() []rawRow {
	return []rawRow{
		{"B1", "2024-03-15 08:00:00", "Pune", "Delhi", "18.5,73.8", "28.7,77.1", "A", "X", "10"},
		{"B2", "2024-03-15 09:00:00", "Pune", "Mumbai", "18.5,73.8", "19.0,72.8", "B", "Y", "20"},
		{"B3", "2024-03-15 10:00:00", "Nagpur", "Delhi", "21.1,79.0", "28.7,77.1", "A", "X", "30"},
	}
}

func normalizedFixture(t *testing.T, rows []rawRow) *Dataset {
	t.Helper()
	ds, err := Normalize(rawFrame(rows), identityConfig(), 1)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	return ds
}

func fullView(t *testing.T, rows []rawRow) FilteredView {
	t.Helper()
	ds := normalizedFixture(t, rows)
	return ApplyFilter(ds, DefaultFilter(ds))
}

// manyShipments builds n rows spread over days and a vehicle/material cycle,
// used by the sampling and forecast tests.
func manyShipments(n int) []rawRow {
	vehicles := []string{"Truck", "Trailer", "Container"}
	materials := []string{"Steel", "Cement", "Textiles"}
	rows := make([]rawRow, n)
	for i := 0; i < n; i++ {
		rows[i] = rawRow{
			id:          fmt.Sprintf("BK%04d", i),
			date:        fmt.Sprintf("2024-03-%02d 08:00:00", i%28+1),
			origin:      fmt.Sprintf("City%d", i%7),
			dest:        fmt.Sprintf("Hub%d", i%5),
			originCoord: "18.5,73.8",
			destCoord:   "28.7,77.1",
			vehicle:     vehicles[i%len(vehicles)],
			material:    materials[i%len(materials)],
			distance:    fmt.Sprintf("%d", 100+(i%len(vehicles))*100),
		}
	}
	return rows
}
