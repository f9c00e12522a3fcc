package session

import "testing"

func TestParseIVRState(t *testing.T) {
	for s := range validStates {
		if got, err := ParseIVRState(string(s)); err != nil || got != s {
			t.Fatalf("round trip failed for %s: %v", s, err)
		}
	}
	if _, err := ParseIVRState("ringing"); err == nil {
		t.Fatalf("expected error for unknown state")
	}
	if _, err := ParseIVRState(""); err == nil {
		t.Fatalf("expected error for empty state")
	}
}

func TestParseTerminationReason(t *testing.T) {
	for r := range validReasons {
		if got, err := ParseTerminationReason(string(r)); err != nil || got != r {
			t.Fatalf("round trip failed for %s: %v", r, err)
		}
	}
	if _, err := ParseTerminationReason("dropped"); err == nil {
		t.Fatalf("expected error for unknown reason")
	}
}

func TestHasDTMFInput(t *testing.T) {
	r := EngagementRecord{DTMFInputs: []string{"1", "9", "#"}}
	if !r.HasDTMFInput("9") {
		t.Fatalf("expected 9 present")
	}
	if r.HasDTMFInput("2") {
		t.Fatalf("expected 2 absent")
	}
}
