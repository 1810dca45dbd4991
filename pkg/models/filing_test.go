package models

import (
	"testing"
	"time"
)

func TestVersionCompare(t *testing.T) {
	day := func(s string) time.Time {
		d, _ := time.Parse("2006-01-02", s)
		return d
	}

	tests := []struct {
		name string
		a, b Version
		want int
	}{
		{"later filing date wins", Version{FilingDate: day("2013-05-01")}, Version{FilingDate: day("2013-04-24")}, 1},
		{"earlier filing date loses", Version{FilingDate: day("2013-04-24")}, Version{FilingDate: day("2013-05-01")}, -1},
		{"amendment beats original same day", Version{FilingDate: day("2013-04-24"), Amendment: true}, Version{FilingDate: day("2013-04-24")}, 1},
		{"accession breaks tie", Version{FilingDate: day("2013-04-24"), Accession: "0001-13-2"}, Version{FilingDate: day("2013-04-24"), Accession: "0001-13-1"}, 1},
		{"identical", Version{FilingDate: day("2013-04-24"), Accession: "x"}, Version{FilingDate: day("2013-04-24"), Accession: "x"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Compare(tt.b); got != tt.want {
				t.Errorf("Compare() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSpreadsheetFactsHasData(t *testing.T) {
	if (SpreadsheetFacts{}).HasData() {
		t.Error("empty SpreadsheetFacts should report no data")
	}
	shares := 10.0
	if !(SpreadsheetFacts{SharesOutstanding: &shares}).HasData() {
		t.Error("share count alone should count as data")
	}
	if !(SpreadsheetFacts{CashFlow: &Statement{Sheet: "Sheet3"}}).HasData() {
		t.Error("a statement should count as data")
	}
}

func TestIdentityKey(t *testing.T) {
	id := FilingIdentity{CIK: "0000320193", FormType: "10-Q", PeriodOfReport: "2013-03-30"}
	if id.Key() != "0000320193|10-Q|2013-03-30" {
		t.Errorf("Key() = %q", id.Key())
	}
}
