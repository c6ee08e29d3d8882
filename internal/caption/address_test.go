package caption

import "testing"

func TestSanitizeAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		address string
		want    string
	}{
		{
			name:    "direction and street type",
			address: "2023 N DAMEN AVE",
			want:    "2023 North Damen Avenue",
		},
		{
			name:    "stops after street type",
			address: "1170 W GALBRAITH RD APT 3",
			want:    "1170 West Galbraith Road",
		},
		{
			name:    "drops everything after a comma",
			address: "123 MAIN ST, CINCINNATI OH",
			want:    "123 Main Street",
		},
		{
			name:    "capitalizes street names",
			address: "452 MCMILLAN ST",
			want:    "452 Mcmillan Street",
		},
		{
			name:    "multi-word street name",
			address: "18 E COURT HILL WAY",
			want:    "18 East Court Hill Way",
		},
		{
			name:    "no street type",
			address: "99 RIVERSIDE",
			want:    "99 Riverside",
		},
		{
			name:    "street number only",
			address: "4500",
			want:    "4500",
		},
		{
			name:    "empty",
			address: "",
			want:    "",
		},
		{
			name:    "whitespace only returns input",
			address: "   ",
			want:    "   ",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeAddress(tt.address); got != tt.want {
				t.Fatalf("SanitizeAddress(%q) = %q, want %q", tt.address, got, tt.want)
			}
		})
	}
}
