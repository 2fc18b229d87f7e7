package sources

import "testing"

func TestRainfallIntensityCutPoints(t *testing.T) {
	cases := []struct {
		mm   float64
		want string
	}{
		{1, "light"},
		{3, "moderate"},
		{10, "heavy"},
		{20, "extreme"},
		{40, "torrential"},
	}
	for _, tc := range cases {
		got := RainfallIntensity(tc.mm, 2, 7.5, 15, 30)
		if got != tc.want {
			t.Fatalf("RainfallIntensity(%v)=%s, want %s", tc.mm, got, tc.want)
		}
	}
}
