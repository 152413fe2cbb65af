package core

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"dot separator", "12.34", "12.34", false},
		{"comma separator", "12,34", "12.34", false},
		{"integer", "600", "600.00", false},
		{"zero", "0", "0.00", false},
		{"rounds half up", "12.345", "12.35", false},
		{"rounds down", "12.344", "12.34", false},
		{"surrounding space", "  7.5 ", "7.50", false},
		{"empty", "", "", true},
		{"only dot", ".", "", true},
		{"two separators", "1.2,3", "", true},
		{"negative", "-5", "", true},
		{"plus sign", "+5", "", true},
		{"exponent", "1e3", "", true},
		{"letters", "abc", "", true},
		{"currency symbol", "€10", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("%q: expected ErrInvalidAmount, got %v", tt.input, err)
				}
				if k := ErrorKind(err); k != KindInvalidInput {
					t.Errorf("%q: kind %q, want %q", tt.input, k, KindInvalidInput)
				}
				return
			}
			if err != nil {
				t.Fatalf("%q: unexpected error: %v", tt.input, err)
			}
			if Format(got) != tt.want {
				t.Errorf("%q: got %s, want %s", tt.input, Format(got), tt.want)
			}
		})
	}
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	cases := map[string]string{
		"0.005":  "0.01",
		"-0.005": "-0.01",
		"0.004":  "0.00",
		"2.675":  "2.68",
	}
	for in, want := range cases {
		if got := Format(dec(in)); got != want {
			t.Errorf("Format(%s) = %s, want %s", in, got, want)
		}
	}
	if got := Format(dec("100").Div(dec("3"))); got != "33.33" {
		t.Errorf("100/3 = %s, want 33.33", got)
	}
	if got := Format(dec("200").Div(dec("3"))); got != "66.67" {
		t.Errorf("200/3 = %s, want 66.67", got)
	}
}

func TestClampMinutes(t *testing.T) {
	cases := []struct{ minutes, session, want int }{
		{-10, 60, 0},
		{45, 60, 45},
		{60, 60, 60},
		{90, 60, 60},
		{5, 0, 0},
	}
	for _, tc := range cases {
		if got := ClampMinutes(tc.minutes, tc.session); got != tc.want {
			t.Errorf("ClampMinutes(%d, %d) = %d, want %d", tc.minutes, tc.session, got, tc.want)
		}
	}
}

func TestBookingCost(t *testing.T) {
	b := BookingCost{Courts: 2, DurationHours: dec("1.75"), HourlyRate: dec("333.33")}
	if err := b.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if m := b.SessionMinutes(); m != 105 {
		t.Errorf("SessionMinutes() = %d, want 105", m)
	}
	if got := Format(b.TotalCourtCost()); got != "1166.66" {
		t.Errorf("TotalCourtCost() = %s, want 1166.66", got)
	}
}
