package common

import "testing"

func TestHasAny(t *testing.T) {
	if !HasAny("Patchy light Snow", "sleet", "snow") {
		t.Fatalf("expected case-insensitive match")
	}
	if HasAny("Sunny", "rain", "") {
		t.Fatalf("unexpected match")
	}
}
