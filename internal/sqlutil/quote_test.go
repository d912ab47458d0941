package sqlutil

import "testing"

func TestQuoteBacktick(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"users", "`users`"},
		{"user_data", "`user_data`"},
		{"select", "`select`"},         // reserved word
		{"first name", "`first name`"}, // space in name
		{"user`data", "`user``data`"},  // backtick in name
		{"", "``"},                     // empty string
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := QuoteBacktick(tt.input); got != tt.expected {
				t.Errorf("QuoteBacktick(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestQuoteAnsi(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"users", `"users"`},
		{"order", `"order"`},
		{`we"ird`, `"we""ird"`},
		{"", `""`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := QuoteAnsi(tt.input); got != tt.expected {
				t.Errorf("QuoteAnsi(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestQualify(t *testing.T) {
	if got := QualifyAnsi("analytics", "public", "users"); got != `"analytics"."public"."users"` {
		t.Errorf("QualifyAnsi = %q", got)
	}
	// Empty parts are dropped, so reflection-style sources without a catalog
	// produce two-part names.
	if got := QualifyAnsi("", "public", "users"); got != `"public"."users"` {
		t.Errorf("QualifyAnsi without catalog = %q", got)
	}
	if got := QualifyBacktick("", "appdb", "orders"); got != "`appdb`.`orders`" {
		t.Errorf("QualifyBacktick = %q", got)
	}
}
