package caption

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/everylotbot/everylot/internal/everylot"
)

func fptr(v float64) *float64 { return &v }

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestFormatFullLot(t *testing.T) {
	t.Parallel()

	lot := everylot.Lot{
		ID:               4311,
		Address:          "2023 N DAMEN AVE",
		ZipCode:          "45202",
		Zoning:           "SF-4-T",
		LandValue:        fptr(25500),
		ImprovementValue: fptr(112300),
		Neighborhood:     "Westwood",
		Acreage:          fptr(0.129),
		ParcelIDs:        []string{"0610002004300"},
	}

	golden(t).Assert(t, "full_lot", []byte(Format(lot)))
}

func TestFormatMinimalLot(t *testing.T) {
	t.Parallel()

	lot := everylot.Lot{
		ID:      77,
		Address: "1170 W GALBRAITH RD",
	}

	golden(t).Assert(t, "minimal_lot", []byte(Format(lot)))
}

func TestFormatUnknownZoning(t *testing.T) {
	t.Parallel()

	lot := everylot.Lot{
		ID:           901,
		Address:      "3456 VINE ST",
		ZipCode:      "45219",
		Zoning:       "ZZ-9",
		LandValue:    fptr(8000.50),
		Neighborhood: "Clifton",
	}

	golden(t).Assert(t, "unknown_zoning", []byte(Format(lot)))
}

func TestFormatDeterministic(t *testing.T) {
	t.Parallel()

	lot := everylot.Lot{
		Address:          "600 E MCMICKEN AVE",
		ZipCode:          "45214",
		Zoning:           "RM-2.0",
		LandValue:        fptr(14200),
		ImprovementValue: fptr(63100),
		Neighborhood:     "Over-The-Rhine",
		Acreage:          fptr(0.0621),
	}

	first := Format(lot)
	second := Format(lot)
	if first != second {
		t.Fatalf("captions differ between calls:\n%q\n%q", first, second)
	}
}

func TestFormatOmitsAbsentFields(t *testing.T) {
	t.Parallel()

	lot := everylot.Lot{
		Address:      "12 ELM ST",
		Neighborhood: "Downtown",
	}

	got := Format(lot)
	for _, absent := range []string{"Zoning:", "Land Value:", "Improvement Value:", "Acreage:"} {
		if strings.Contains(got, absent) {
			t.Fatalf("caption should omit %q when the field is absent:\n%s", absent, got)
		}
	}
	if !strings.Contains(got, "Neighborhood: Downtown") {
		t.Fatalf("caption missing neighborhood:\n%s", got)
	}
	if !strings.HasPrefix(got, "12 Elm Street") {
		t.Fatalf("caption missing sanitized address:\n%s", got)
	}
}

func TestFormatEmptyLot(t *testing.T) {
	t.Parallel()

	if got := Format(everylot.Lot{}); got != "" {
		t.Fatalf("empty lot should render an empty caption, got %q", got)
	}
}

func TestFormatMoneyGrouping(t *testing.T) {
	t.Parallel()

	lot := everylot.Lot{
		Address:   "1 TEST WAY",
		LandValue: fptr(1234567),
	}

	got := Format(lot)
	if !strings.Contains(got, "Land Value: $1,234,567") {
		t.Fatalf("expected grouped currency, got:\n%s", got)
	}
}
