package domain

import (
	"testing"
	"time"
)

func TestCanTransition_Graph(t *testing.T) {
	t.Parallel()

	legal := map[[2]CaseStatus]bool{
		{StatusDetected, StatusDispatched}:  true,
		{StatusDetected, StatusCancelled}:   true,
		{StatusDetected, StatusResolved}:    true,
		{StatusDispatched, StatusEnRoute}:   true,
		{StatusDispatched, StatusResolved}:  true,
		{StatusEnRoute, StatusArrived}:      true,
		{StatusEnRoute, StatusResolved}:     true,
		{StatusArrived, StatusResolved}:     true,
		{StatusResolved, StatusResolved}:    true,
	}

	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			want := legal[[2]CaseStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransition_UnknownStatus(t *testing.T) {
	t.Parallel()

	if CanTransition(StatusDetected, "EXPLODED") {
		t.Fatalf("out-of-enum target must never be legal")
	}
	if CanTransition("EXPLODED", StatusResolved) {
		t.Fatalf("out-of-enum source must never be legal")
	}
}

func TestNewAccidentID_Format(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		id, err := NewAccidentID(now)
		if err != nil {
			t.Fatalf("NewAccidentID: %v", err)
		}
		if !ValidAccidentID(id) {
			t.Fatalf("id %q does not match pattern", id)
		}
		if id[4:8] != "2026" {
			t.Fatalf("id %q does not carry the creation year", id)
		}
		seen[id] = struct{}{}
	}
	if len(seen) < 190 {
		t.Fatalf("ids are not random enough: %d unique of 200", len(seen))
	}
}

func TestValidAccidentID(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"ACC-2026-AB12CD":  true,
		"ACC-2026-ab12cd":  false,
		"ACC-26-AB12CD":    false,
		"ACC-2026-AB12C":   false,
		"ACC-2026-AB12CDE": false,
		"XYZ-2026-AB12CD":  false,
		"":                 false,
	}
	for id, want := range cases {
		if got := ValidAccidentID(id); got != want {
			t.Errorf("ValidAccidentID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestCaseRecord_CloneIsDeep(t *testing.T) {
	t.Parallel()

	responder := "resp-1"
	resolved := time.Now()
	rec := &CaseRecord{
		AccidentID:     "ACC-2026-AAAAAA",
		ResponderID:    &responder,
		ResolvedAt:     &resolved,
		MedicalProfile: MedicalProfile{Allergies: []string{"penicillin"}},
	}
	cp := rec.Clone()
	*cp.ResponderID = "other"
	cp.MedicalProfile.Allergies[0] = "none"

	if *rec.ResponderID != "resp-1" || rec.MedicalProfile.Allergies[0] != "penicillin" {
		t.Fatalf("clone shares state with original")
	}
}
