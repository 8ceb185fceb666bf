package calc

import (
	"errors"
	"strconv"
	"strings"
	"testing"
)

func TestEvaluateArithmetic(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"1 + 2", "3"},
		{"192 / 100", "1.92"},
		{"10 / 2", "5.0"},
		{"2 ** 10", "1024"},
		{"2 ** -1", "0.5"},
		{"+(3 - 5)", "-2"},
		{"7 % 3", "1"},
		{"-7 % 3", "2"},
		{"7 % -3", "-2"},
		{"(1 + 2) * 3", "9"},
		{"2 ** 3 ** 2", "512"},
		{"1.5 * 4", "6.0"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := Evaluate(tc.in)
			if err != nil {
				t.Fatalf("Evaluate(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("Evaluate(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestEvaluateSampleCAGR(t *testing.T) {
	t.Parallel()

	got := EvaluateString("((10.9 / 3.66) ** (1/3) - 1) * 100")
	if strings.HasPrefix(got, ErrorPrefix) {
		t.Fatalf("unexpected error payload %q", got)
	}
	v, err := strconv.ParseFloat(got, 64)
	if err != nil {
		t.Fatalf("expected numeric string, got %q", got)
	}
	if v < 43 || v > 44 {
		t.Fatalf("unexpected CAGR %v", v)
	}
}

func TestEvaluateErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		kind    error
		payload string
	}{
		{"1/0", ErrDivisionByZero, "ERROR: Division by zero"},
		{"5 % 0", ErrDivisionByZero, "ERROR: Division by zero"},
		{"1.0 / 0.0", ErrDivisionByZero, "ERROR: Division by zero"},
		{"0 ** -1", ErrDivisionByZero, "ERROR: Division by zero"},
		{"import os", ErrInvalidExpression, "ERROR: Invalid expression: import os"},
		{"(1 + ", ErrInvalidExpression, "ERROR: Invalid expression: (1 + "},
		{"", ErrInvalidExpression, "ERROR: Invalid expression: "},
		{"os", ErrUnsupported, "ERROR: Unsupported node type: IdentifierNode"},
		{"len('abc')", ErrUnsupported, ""},
		{"1 < 2", ErrUnsupported, "ERROR: Unsupported operation: <"},
		{"2 ^ 3", ErrUnsupported, "ERROR: Unsupported operation: ^"},
		{"(-8) ** (1/3)", ErrCalculation, "ERROR: Calculation failed: complex result"},
		{"10.0 ** 400", ErrCalculation, ""},
		{"99999999999999999999", ErrCalculation, "ERROR: Calculation failed: integer literal out of range"},
		{"1 + 99999999999999999999 * 2", ErrCalculation, "ERROR: Calculation failed: integer literal out of range"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			_, err := Evaluate(tc.in)
			if !errors.Is(err, tc.kind) {
				t.Fatalf("Evaluate(%q) error = %v, want kind %v", tc.in, err, tc.kind)
			}
			got := EvaluateString(tc.in)
			if !strings.HasPrefix(got, ErrorPrefix) {
				t.Fatalf("EvaluateString(%q) = %q, want error payload", tc.in, got)
			}
			if tc.payload != "" && got != tc.payload {
				t.Fatalf("EvaluateString(%q) = %q, want %q", tc.in, got, tc.payload)
			}
		})
	}
}

func TestEvaluateIntegerOverflowFallsBackToFloat(t *testing.T) {
	t.Parallel()

	got, err := Evaluate("9223372036854775807 + 1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !strings.Contains(got, "e+18") {
		t.Fatalf("expected float rendering, got %q", got)
	}
}

func TestOversizedInteger(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want bool
	}{
		{"99999999999999999999", true},
		{"(1 + 99999999999999999999)", true},
		{"9223372036854775807", false},
		{"99999999999999999999.5", false},
		{"0.99999999999999999999", false},
		{"1e99999999999999999999", false},
		{"x99999999999999999999", false},
		{"1 +", false},
	}
	for _, tc := range cases {
		if got := oversizedInteger(tc.in); got != tc.want {
			t.Fatalf("oversizedInteger(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
