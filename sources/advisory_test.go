package sources

import "testing"

func TestDedupRejectsRepeatedText(t *testing.T) {
	d := NewDedup(10)
	if d.SeenBefore("Red warning issued for Marikina") {
		t.Fatal("first occurrence should not be seen before")
	}
	if !d.SeenBefore("Red warning issued for Marikina") {
		t.Fatal("second occurrence should be seen before")
	}
}

func TestDedupTrimsWhitespaceBeforeHashing(t *testing.T) {
	d := NewDedup(10)
	d.SeenBefore("  same text  ")
	if !d.SeenBefore("same text") {
		t.Fatal("expected whitespace-trimmed text to hash the same")
	}
}

func TestDedupEvictsOldestPastCapacity(t *testing.T) {
	d := NewDedup(2)
	d.SeenBefore("a")
	d.SeenBefore("b")
	d.SeenBefore("c") // evicts "a"
	if d.SeenBefore("a") {
		t.Fatal("expected evicted entry 'a' to no longer be seen")
	}
}

func TestRuleBasedAdvisoryParseDetectsRedFloodWarning(t *testing.T) {
	out := ruleBasedAdvisoryParse("RED WARNING: Flood waters rising in Marikina and Nangka areas.", []string{"Marikina", "Nangka"})
	if out.WarningColor != "red" {
		t.Fatalf("expected red warning, got %s", out.WarningColor)
	}
	if out.AdvisoryType != "flood" {
		t.Fatalf("expected flood advisory type, got %s", out.AdvisoryType)
	}
	if len(out.AffectedAreas) != 2 {
		t.Fatalf("expected 2 affected areas, got %v", out.AffectedAreas)
	}
}

func TestRuleBasedAdvisoryParseDefaultsWhenNoKeywordsMatch(t *testing.T) {
	out := ruleBasedAdvisoryParse("Partly cloudy skies expected tomorrow.", nil)
	if out.WarningColor != "yellow" || out.AdvisoryType != "rainfall" {
		t.Fatalf("expected default yellow/rainfall, got %s/%s", out.WarningColor, out.AdvisoryType)
	}
}
