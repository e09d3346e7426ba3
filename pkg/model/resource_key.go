package model

import (
	"fmt"
	"strings"
	"time"
)

// ResourceKey identifies a bookable unit: service, location and slot start
// time, joined as "service:location:RFC3339". It is immutable once a hold
// references it.
type ResourceKey struct {
	ServiceID  string
	LocationID string
	StartTime  time.Time
}

func ParseResourceKey(s string) (ResourceKey, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return ResourceKey{}, fmt.Errorf("malformed resource key: %q", s)
	}
	start, err := time.Parse(time.RFC3339, parts[2])
	if err != nil {
		return ResourceKey{}, fmt.Errorf("malformed resource key start time: %q: %w", parts[2], err)
	}
	return ResourceKey{
		ServiceID:  parts[0],
		LocationID: parts[1],
		StartTime:  start.UTC(),
	}, nil
}

func (k ResourceKey) String() string {
	return k.ServiceID + ":" + k.LocationID + ":" + k.StartTime.UTC().Format(time.RFC3339)
}

// Class returns the resource class used to look up the conflict resolution
// strategy. Classes map 1:1 to service ids.
func (k ResourceKey) Class() string {
	return k.ServiceID
}

// AvailabilityTag returns the cache tag covering this key's service and day.
func (k ResourceKey) AvailabilityTag() string {
	return "availability:" + k.ServiceID + ":" + k.StartTime.UTC().Format("2006-01-02")
}

// LocationTag returns the cache tag covering this key's location and day.
func (k ResourceKey) LocationTag() string {
	return "availability:loc:" + k.LocationID + ":" + k.StartTime.UTC().Format("2006-01-02")
}
