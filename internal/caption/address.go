package caption

import (
	"strings"
	"unicode"
)

var directions = map[string]string{
	"N": "North",
	"S": "South",
	"E": "East",
	"W": "West",
}

// Street-type tokens end the street portion of an auditor address; anything
// after them (unit numbers, apartment designators) is dropped.
var streetTypes = map[string]string{
	"AVE":  "Avenue",
	"ST":   "Street",
	"BLVD": "Boulevard",
	"RD":   "Road",
	"DR":   "Drive",
	"CT":   "Court",
	"PL":   "Place",
	"TER":  "Terrace",
	"LN":   "Lane",
	"WAY":  "Way",
	"CIR":  "Circle",
	"PKY":  "Parkway",
	"SQ":   "Square",
}

// SanitizeAddress converts an uppercase auditor address into a readable one:
// "2023 N DAMEN AVE" becomes "2023 North Damen Avenue". Only the portion
// before the first comma is considered. Unrecognizable input comes back
// unchanged.
func SanitizeAddress(address string) string {
	if address == "" {
		return address
	}

	head, _, _ := strings.Cut(strings.TrimSpace(address), ",")
	parts := strings.Fields(head)
	if len(parts) == 0 {
		return address
	}

	result := make([]string, 0, len(parts))
	for i, part := range parts {
		switch {
		case i == 0:
			// Street number stays as-is.
			result = append(result, part)
		case directions[part] != "":
			result = append(result, directions[part])
		case streetTypes[part] != "":
			result = append(result, streetTypes[part])
			return strings.Join(result, " ")
		default:
			result = append(result, capitalize(part))
		}
	}

	return strings.Join(result, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
