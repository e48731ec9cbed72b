package validation

import (
	"testing"

	"github.com/national-talent-atm/data-retrieval/pkg/common/errors"
)

func TestValidatePositive(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		wantError bool
	}{
		{"positive value", 10, false},
		{"one", 1, false},
		{"zero value", 0, true},
		{"negative value", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePositive("test", "count", tt.value)
			if tt.wantError {
				if !errors.IsValidationError(err) {
					t.Errorf("expected ValidationError, got %T", err)
				}
			} else if err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidateNonNegative(t *testing.T) {
	if err := ValidateNonNegative("stream", "high_water_mark", 0); err != nil {
		t.Errorf("zero should be accepted: %v", err)
	}
	if err := ValidateNonNegative("stream", "high_water_mark", -1); err == nil {
		t.Error("negative should be rejected")
	}
}

func TestValidatePositiveFloat(t *testing.T) {
	if err := ValidatePositiveFloat("scopus", "rate", 0.5); err != nil {
		t.Errorf("0.5 should be accepted: %v", err)
	}
	if err := ValidatePositiveFloat("scopus", "rate", 0); err == nil {
		t.Error("zero should be rejected")
	}
}

func TestValidateNotEmpty(t *testing.T) {
	if err := ValidateNotEmpty("config", "target", "   "); err == nil {
		t.Error("blank string should be rejected")
	}
	if err := ValidateNotEmpty("config", "target", "./target"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateNotEmptySlice(t *testing.T) {
	tests := []struct {
		name      string
		values    []string
		wantError bool
	}{
		{"nil", nil, true},
		{"only blanks", []string{"", " "}, true},
		{"one key", []string{"", "abc"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNotEmptySlice("config", "elsevier.keys", tt.values)
			if (err != nil) != tt.wantError {
				t.Errorf("err = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestValidateOneOf(t *testing.T) {
	if err := ValidateOneOf("config", "cache.backend", "sqlite", "file", "redis", "sqlite"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := ValidateOneOf("config", "cache.backend", "s3", "file", "redis", "sqlite")
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if got, want := err.Error(), "config: invalid cache.backend=s3 (unsupported value) - use one of file, redis, sqlite"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
