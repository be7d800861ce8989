package sweep

import (
	"testing"
)

func TestNormalizeSpecVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "cron", raw: "*/15 * * * *", want: "*/15 * * * *"},
		{name: "descriptor", raw: "@hourly", want: "@hourly"},
		{name: "every descriptor", raw: "@every 15m", want: "@every 15m"},
		{name: "plain duration", raw: "15m", want: "@every 15m0s"},
		{name: "compound duration", raw: "1h30m", want: "@every 1h30m0s"},
		{name: "trims whitespace", raw: "  @daily ", want: "@daily"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeSpec(tt.raw)
			if err != nil {
				t.Fatalf("NormalizeSpec(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("NormalizeSpec(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeSpecInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "0s", "-5m", "* * * * * *"} {
		if _, err := NormalizeSpec(raw); err == nil {
			t.Fatalf("NormalizeSpec(%q) should fail", raw)
		}
	}
}

func TestValidateSpec(t *testing.T) {
	t.Parallel()
	if err := ValidateSpec("30m"); err != nil {
		t.Fatalf("ValidateSpec(30m): %v", err)
	}
	if err := ValidateSpec("whenever"); err == nil {
		t.Fatal("ValidateSpec(whenever) should fail")
	}
}
