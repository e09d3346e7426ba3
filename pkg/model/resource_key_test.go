package model

import (
	"testing"
	"time"
)

func TestParseResourceKey_Valid(t *testing.T) {
	key, err := ParseResourceKey("haircut:downtown:2026-09-01T14:30:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if key.ServiceID != "haircut" {
		t.Errorf("expected service 'haircut', got %q", key.ServiceID)
	}
	if key.LocationID != "downtown" {
		t.Errorf("expected location 'downtown', got %q", key.LocationID)
	}
	expected := time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC)
	if !key.StartTime.Equal(expected) {
		t.Errorf("expected start time %v, got %v", expected, key.StartTime)
	}
}

func TestParseResourceKey_RoundTrip(t *testing.T) {
	raw := "massage:uptown:2026-12-24T09:00:00Z"
	key, err := ParseResourceKey(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.String() != raw {
		t.Errorf("round trip mismatch: got %q, want %q", key.String(), raw)
	}
}

func TestParseResourceKey_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"missing segments", "haircut:downtown"},
		{"bad timestamp", "haircut:downtown:tomorrow"},
		{"empty service", ":downtown:2026-09-01T14:30:00Z"},
		{"empty location", "haircut::2026-09-01T14:30:00Z"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseResourceKey(tc.raw); err == nil {
				t.Errorf("expected error for %q, got none", tc.raw)
			}
		})
	}
}

func TestResourceKey_Class(t *testing.T) {
	key, err := ParseResourceKey("yoga:studio-3:2026-09-01T08:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.Class() != "yoga" {
		t.Errorf("expected class 'yoga', got %q", key.Class())
	}
}

func TestResourceKey_Tags(t *testing.T) {
	key, err := ParseResourceKey("yoga:studio-3:2026-09-01T08:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := key.AvailabilityTag(); got != "availability:yoga:2026-09-01" {
		t.Errorf("unexpected availability tag: %q", got)
	}
	if got := key.LocationTag(); got != "availability:loc:studio-3:2026-09-01" {
		t.Errorf("unexpected location tag: %q", got)
	}
}

func TestHold_Claimable(t *testing.T) {
	now := time.Now().UTC()

	cases := []struct {
		name string
		hold Hold
		want bool
	}{
		{"active and live", Hold{Status: HoldStatusActive, ExpiresAt: now.Add(time.Minute)}, true},
		{"active but lapsed", Hold{Status: HoldStatusActive, ExpiresAt: now.Add(-time.Minute)}, false},
		{"released", Hold{Status: HoldStatusReleased, ExpiresAt: now.Add(time.Minute)}, false},
		{"converted", Hold{Status: HoldStatusConverted, ExpiresAt: now.Add(time.Minute)}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.hold.Claimable(now); got != tc.want {
				t.Errorf("Claimable() = %v, want %v", got, tc.want)
			}
		})
	}
}
