package utils

import (
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

func TestParseTimeStrictAndLenient(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2024-03-15 10:30:00", true},
		{"2024-03-15", true},
		{"2024/03/15", true},
		{"15/03/2024 10:30:00", true},
		{"not a date", false},
		{"", false},
	}

	for _, c := range cases {
		if _, ok := ParseTime(c.in); ok != c.ok {
			t.Fatalf("ParseTime(%q) ok = %v, want %v", c.in, ok, c.ok)
		}
	}
}

func TestParseTimeDateOnly(t *testing.T) {
	got, ok := ParseTime("2024-03-15")
	if !ok {
		t.Fatalf("expected date-only parse to succeed")
	}
	if got.Year() != 2024 || int(got.Month()) != 3 || got.Day() != 15 {
		t.Fatalf("unexpected parse result: %v", got)
	}
}

func TestHasColumn(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"a", "b"}, series.String, "BookingID"),
		series.New([]float64{1, 2}, series.Float, "distance_km"),
	)

	if !HasColumn(df, "BookingID") {
		t.Fatalf("expected BookingID column to be present")
	}
	if HasColumn(df, "missing") {
		t.Fatalf("did not expect a missing column")
	}
}

func TestContains(t *testing.T) {
	if !Contains([]string{"Truck", "Trailer"}, "Truck") {
		t.Fatalf("expected Truck to be contained")
	}
	if Contains([]string{"Truck"}, "Container") {
		t.Fatalf("did not expect Container to be contained")
	}
}
