package util

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("GATE1")
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError should unwrap to ErrNotFound")
	}
	if got := err.Error(); got != `device "GATE1" not found` {
		t.Errorf("message = %q", got)
	}
}

func TestConfigError(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		details string
		want    string
	}{
		{
			name:  "field only",
			field: "READER",
			want:  "invalid configuration: READER",
		},
		{
			name:    "field with details",
			field:   "PORT",
			details: "must be positive",
			want:    "invalid configuration: PORT (must be positive)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfigError(tt.field, tt.details)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Error("ConfigError should unwrap to ErrInvalidConfig")
			}
			if got := err.Error(); got != tt.want {
				t.Errorf("message = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapTransport(t *testing.T) {
	if WrapTransport(nil) != nil {
		t.Error("WrapTransport(nil) should stay nil")
	}

	inner := fmt.Errorf("dial tcp 10.0.0.5:6000: connection refused")
	err := WrapTransport(inner)
	if !errors.Is(err, ErrTransport) {
		t.Error("TransportError should unwrap to ErrTransport")
	}
	if !errors.Is(err, inner) {
		t.Error("TransportError should also unwrap to the wrapped error")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestValidationErrorMessages(t *testing.T) {
	single := NewValidationError("new_epc must be 24 hex characters")
	if !errors.Is(single, ErrValidationFailed) {
		t.Error("ValidationError should unwrap to ErrValidationFailed")
	}
	if got := single.Error(); got != "validation failed: new_epc must be 24 hex characters" {
		t.Errorf("single message = %q", got)
	}

	multi := NewValidationError(
		"new_epc must be 24 hex characters",
		"password must be 8 hex characters",
	)
	got := multi.Error()
	if !strings.Contains(got, "\n  - new_epc must be 24 hex characters") ||
		!strings.Contains(got, "\n  - password must be 8 hex characters") {
		t.Errorf("multi message = %q", got)
	}
}

func TestValidationBuilder(t *testing.T) {
	var v ValidationBuilder
	if v.HasErrors() {
		t.Error("empty builder should have no errors")
	}
	if v.Build() != nil {
		t.Error("empty builder should build nil")
	}

	v.Add(true, "never recorded").
		Add(false, "antenna power out of range").
		AddErrorf("unknown reader kind %q", "UR9")

	if !v.HasErrors() {
		t.Error("builder should have errors")
	}
	err := v.Build()
	if !errors.Is(err, ErrValidationFailed) {
		t.Error("built error should unwrap to ErrValidationFailed")
	}
	got := err.Error()
	if strings.Contains(got, "never recorded") {
		t.Errorf("passing condition recorded: %q", got)
	}
	if !strings.Contains(got, "antenna power out of range") ||
		!strings.Contains(got, `unknown reader kind "UR9"`) {
		t.Errorf("message = %q", got)
	}
}
