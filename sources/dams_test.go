package sources

import "testing"

func TestClassifyDamThresholds(t *testing.T) {
	cases := []struct {
		name       string
		rwl, nhwl  float64
		wantStatus string
		wantRisk   float64
	}{
		{"below normal", 70, 80, "normal", 0.1},
		{"at watch", 80, 80, "watch", 0.3},
		{"at alert", 81, 80, "alert", 0.5},
		{"at alarm", 83, 80, "alarm", 0.8},
		{"at critical", 85, 80, "critical", 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := DamReading{RWL: tc.rwl, NHWL: tc.nhwl}
			status, risk := ClassifyDam(r, 1, 3, 5)
			if status != tc.wantStatus || risk != tc.wantRisk {
				t.Fatalf("got status=%s risk=%v, want %s/%v", status, risk, tc.wantStatus, tc.wantRisk)
			}
		})
	}
}
