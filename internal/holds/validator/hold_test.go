package validator

import (
	"strings"
	"testing"

	"slotcore/pkg/logger"
	"slotcore/pkg/model"
)

func testValidator() *HoldValidator {
	return NewHoldValidator(logger.New(logger.Config{
		Level:   "error",
		Format:  logger.JSON,
		Service: "test",
	}))
}

func TestValidateRequest_Valid(t *testing.T) {
	v := testValidator()

	err := v.ValidateRequest(&model.HoldRequest{
		ResourceKey:  "yoga-60:studio-a:2026-09-01T08:00:00Z",
		OwnerSession: "session-1",
		TTLSeconds:   120,
		Priority:     10,
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateRequest_MissingFields(t *testing.T) {
	v := testValidator()

	err := v.ValidateRequest(&model.HoldRequest{})
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if !strings.Contains(err.Error(), "ResourceKey") {
		t.Errorf("expected ResourceKey in error, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "OwnerSession") {
		t.Errorf("expected OwnerSession in error, got %q", err.Error())
	}
}

func TestValidateRequest_MalformedResourceKey(t *testing.T) {
	v := testValidator()

	cases := []string{
		"no-separators-here",
		"svc:loc:not-a-timestamp",
		":loc:2026-09-01T08:00:00Z",
	}
	for _, key := range cases {
		err := v.ValidateRequest(&model.HoldRequest{
			ResourceKey:  key,
			OwnerSession: "session-1",
		})
		if err == nil {
			t.Errorf("expected error for key %q", key)
			continue
		}
		if !strings.Contains(err.Error(), "service:location:RFC3339") {
			t.Errorf("expected the key shape in the message for %q, got %q", key, err.Error())
		}
	}
}

func TestValidateRequest_TTLOutOfRange(t *testing.T) {
	v := testValidator()

	err := v.ValidateRequest(&model.HoldRequest{
		ResourceKey:  "yoga-60:studio-a:2026-09-01T08:00:00Z",
		OwnerSession: "session-1",
		TTLSeconds:   7200,
	})
	if err == nil {
		t.Error("expected error for TTL above the cap")
	}
}

func TestValidateConvert_Valid(t *testing.T) {
	v := testValidator()

	err := v.ValidateConvert(&model.ConvertRequest{
		ExpectedVersion: 1,
		Payload: model.BookingPayload{
			CustomerRef: "customer-1",
		},
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateConvert_MissingCustomerRef(t *testing.T) {
	v := testValidator()

	err := v.ValidateConvert(&model.ConvertRequest{
		ExpectedVersion: 1,
	})
	if err == nil {
		t.Error("expected error for missing customer ref")
	}
}

func TestValidateConvert_ZeroVersion(t *testing.T) {
	v := testValidator()

	err := v.ValidateConvert(&model.ConvertRequest{
		Payload: model.BookingPayload{CustomerRef: "customer-1"},
	})
	if err == nil {
		t.Error("expected error for missing expected version")
	}
}
