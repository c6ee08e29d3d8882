// Package caption composes the post text for a lot: a sanitized street
// address followed by zoning, valuation, neighborhood, and acreage lines.
// Composition is pure; the same lot always yields the same bytes. Fields the
// dataset left empty are omitted rather than rendered as placeholders.
package caption

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/everylotbot/everylot/internal/everylot"
)

var printer = message.NewPrinter(language.English)

// Format renders the caption for a lot. Lines appear in a fixed order
// (address, zoning, land value, improvement value, neighborhood, acreage)
// separated by blank lines.
func Format(lot everylot.Lot) string {
	segments := make([]string, 0, 6)

	if header := headerLine(lot); header != "" {
		segments = append(segments, header)
	}

	if lot.Zoning != "" {
		if desc, ok := DescribeZoning(lot.Zoning); ok {
			segments = append(segments, "Zoning: "+desc+" ("+lot.Zoning+")")
		} else {
			segments = append(segments, "Zoning: "+lot.Zoning)
		}
	}

	if lot.LandValue != nil {
		segments = append(segments, "Land Value: "+money(*lot.LandValue))
	}
	if lot.ImprovementValue != nil {
		segments = append(segments, "Improvement Value: "+money(*lot.ImprovementValue))
	}

	if lot.Neighborhood != "" {
		segments = append(segments, "Neighborhood: "+lot.Neighborhood)
	}

	if lot.Acreage != nil {
		segments = append(segments, "Acreage: "+strconv.FormatFloat(*lot.Acreage, 'f', -1, 64))
	}

	return strings.Join(segments, "\n\n")
}

func headerLine(lot everylot.Lot) string {
	address := SanitizeAddress(lot.Address)
	switch {
	case address == "":
		return ""
	case lot.ZipCode == "":
		return address
	default:
		return address + ", " + lot.ZipCode
	}
}

// money renders a dollar amount with thousands separators. Auditor values are
// whole dollars almost everywhere; cents survive when present.
func money(v float64) string {
	if v == math.Trunc(v) {
		return printer.Sprintf("$%d", int64(v))
	}
	return printer.Sprintf("$%.2f", v)
}
