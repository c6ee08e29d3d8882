package caption

import "testing"

func TestDescribeZoning(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code string
		want string
		ok   bool
	}{
		{
			code: "SF-4",
			want: "Single-family (4,000 sq ft min lot)",
			ok:   true,
		},
		{
			code: "SF-4-T",
			want: "Single-family (4,000 sq ft min lot) - Transportation Corridor Overlay",
			ok:   true,
		},
		{
			code: "CC-A-MH",
			want: "Commercial Community - Auto-Oriented, Middle Housing Overlay",
			ok:   true,
		},
		{
			// Hyphenated base district, not Commercial Mixed-Use.
			code: "RF-M",
			want: "Riverfront Manufacturing",
			ok:   true,
		},
		{
			code: "RM-1.2",
			want: "Residential Multi-family (1,200 sq ft land/unit)",
			ok:   true,
		},
		{
			code: "T4N.MF",
			want: "T4 Neighborhood Medium Footprint (General Urban)",
			ok:   true,
		},
		{
			// Unknown suffixes pass through verbatim.
			code: "SF-4-X",
			want: "Single-family (4,000 sq ft min lot) - X",
			ok:   true,
		},
		{
			code: "ZZ-9",
			want: "",
			ok:   false,
		},
		{
			code: "",
			want: "",
			ok:   false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.code, func(t *testing.T) {
			t.Parallel()
			got, ok := DescribeZoning(tt.code)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("DescribeZoning(%q) = (%q, %v), want (%q, %v)", tt.code, got, ok, tt.want, tt.ok)
			}
		})
	}
}
