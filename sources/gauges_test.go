package sources

import "testing"

func TestClassifyStationUsesOwnThresholdsOverDefaults(t *testing.T) {
	r := StationReading{WaterLevelM: 16, AlertM: 15, AlarmM: 18, CriticalM: 21}
	status, risk := ClassifyStation(r, 10, 12, 14)
	if status != "alert" || risk != 0.5 {
		t.Fatalf("got status=%s risk=%v, want alert/0.5", status, risk)
	}
}

func TestClassifyStationFallsBackToDefaultsWhenThresholdMissing(t *testing.T) {
	r := StationReading{WaterLevelM: 13}
	status, risk := ClassifyStation(r, 10, 12, 14)
	if status != "alarm" || risk != 0.8 {
		t.Fatalf("got status=%s risk=%v, want alarm/0.8", status, risk)
	}
}

func TestClassifyStationNormalBelowAllThresholds(t *testing.T) {
	r := StationReading{WaterLevelM: 5, AlertM: 15, AlarmM: 18, CriticalM: 21}
	status, risk := ClassifyStation(r, 0, 0, 0)
	if status != "normal" || risk != 0.2 {
		t.Fatalf("got status=%s risk=%v, want normal/0.2", status, risk)
	}
}

func TestMatchesAnyEmptyAllowlistMatchesEverything(t *testing.T) {
	if !matchesAny("Any River Station", nil) {
		t.Fatal("expected empty allowlist to match everything")
	}
}

func TestMatchesAnyIsCaseInsensitiveSubstring(t *testing.T) {
	if !matchesAny("Marikina River - Nangka", []string{"marikina"}) {
		t.Fatal("expected case-insensitive substring match")
	}
	if matchesAny("Pasig River", []string{"marikina"}) {
		t.Fatal("expected no match for unrelated station")
	}
}
