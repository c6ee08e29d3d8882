package caption

import "strings"

// Cincinnati base zoning districts, including the form-based transect zones
// that carry dots in their codes.
var zoningBases = map[string]string{
	"SF-20": "Single-family (20,000 sq ft min lot)",
	"SF-10": "Single-family (10,000 sq ft min lot)",
	"SF-6":  "Single-family (6,000 sq ft min lot)",
	"SF-4":  "Single-family (4,000 sq ft min lot)",
	"SF-2":  "Single-family (2,000 sq ft min lot)",

	"RMX":    "Residential Mixed",
	"RM-2.0": "Residential Multi-family (2,000 sq ft land/unit)",
	"RM-1.2": "Residential Multi-family (1,200 sq ft land/unit)",
	"RM-0.7": "Residential Multi-family (700 sq ft land/unit)",

	"OL": "Office Limited",
	"OG": "Office General",

	"CN": "Commercial Neighborhood",
	"CC": "Commercial Community",
	"CG": "Commercial General",

	"UM": "Urban Mix",
	"DD": "Downtown Development",

	"MA": "Manufacturing Agricultural",
	"ML": "Manufacturing Limited",
	"MG": "Manufacturing General",
	"ME": "Manufacturing Exclusive",

	"RF-R": "Riverfront Residential/Recreational",
	"RF-C": "Riverfront Commercial",
	"RF-M": "Riverfront Manufacturing",

	"PR": "Parks and Recreation",
	"IR": "Institutional-Residential",
	"PD": "Planned Development",

	"T3E":    "T3 Estate (Sub-Urban)",
	"T3N":    "T3 Neighborhood (Sub-Urban)",
	"T4N.MF": "T4 Neighborhood Medium Footprint (General Urban)",
	"T4N.SF": "T4 Neighborhood Small Footprint (General Urban)",
	"T5MS":   "T5 Main Street (Urban Center)",
	"T5N.LS": "T5 Neighborhood Large Setback (Urban Center)",
	"T5N.SS": "T5 Neighborhood Small Setback (Urban Center)",
	"T5F":    "T5 Flex (Urban Center)",
}

// Overlay and sub-zone suffixes appended to a base district with hyphens.
// "M" only reaches here for commercial codes; RF-M matches as a base first.
var zoningSuffixes = map[string]string{
	"T":  "Transportation Corridor Overlay",
	"MH": "Middle Housing Overlay",
	"B":  "Neighborhood Business District",
	"P":  "Pedestrian-Oriented",
	"A":  "Auto-Oriented",
	"M":  "Mixed-Use",
	"O":  "Open Sub-Zone",
}

// DescribeZoning expands a Cincinnati zoning code into a human-readable
// description: "SF-4-T" becomes "Single-family (4,000 sq ft min lot) -
// Transportation Corridor Overlay". The longest hyphen-joined prefix that
// names a base district wins; remaining segments are treated as suffixes and
// passed through verbatim when unknown. Returns false when no base district
// matches at all.
func DescribeZoning(code string) (string, bool) {
	if desc, ok := zoningBases[code]; ok {
		return desc, true
	}

	parts := strings.Split(code, "-")
	for i := len(parts); i > 0; i-- {
		base, ok := zoningBases[strings.Join(parts[:i], "-")]
		if !ok {
			continue
		}

		suffixes := make([]string, 0, len(parts)-i)
		for _, suffix := range parts[i:] {
			if desc, known := zoningSuffixes[suffix]; known {
				suffixes = append(suffixes, desc)
			} else {
				suffixes = append(suffixes, suffix)
			}
		}

		if len(suffixes) > 0 {
			return base + " - " + strings.Join(suffixes, ", "), true
		}
		return base, true
	}

	return "", false
}
