package identity

import (
	"testing"

	"price_crew/models"
)

func TestNormalizeProductID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"b08n5wrwnw", "B08N5WRWNW"},
		{"  B08N5WRWNW\n", "B08N5WRWNW"},
		{"B08N 5WRWNW", "B08N5WRWNW"},
		{"", ""},
	}

	for _, tt := range tests {
		result := NormalizeProductID(tt.input)
		if result != tt.expected {
			t.Errorf("NormalizeProductID(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidator(t *testing.T) {
	v, err := NewValidator("")
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	id, err := v.Validate(" b08n5wrwnw ")
	if err != nil || id != "B08N5WRWNW" {
		t.Fatalf("Validate = %q, %v", id, err)
	}

	for _, bad := range []string{"", "SHORT", "B08N5WRWNW1", "-B08N5WRWN", "B08N5WRW;N"} {
		if _, err := v.Validate(bad); !models.IsConfigurationError(err) {
			t.Errorf("Validate(%q) expected ConfigurationError, got %v", bad, err)
		}
	}
}

func TestValidator_CustomPattern(t *testing.T) {
	v, err := NewValidator(`^[A-Z0-9-]{4,20}$`)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	if _, err := v.Validate("SKU-1234"); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if _, err := v.Validate("-SKU1234"); err == nil {
		t.Fatalf("ids starting with a dash must be rejected")
	}

	if _, err := NewValidator("("); err == nil {
		t.Fatalf("expected bad pattern error")
	}
}
