// Package core provides money parsing and handling utilities.
//
// This file contains the rounding discipline used by the allocation engine and
// the settlement planner, plus helpers for parsing amounts supplied by callers.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for every money amount (minor units).
const Places = 2

var (
	sixty   = decimal.NewFromInt(60)
	quarter = decimal.RequireFromString("0.25")

	// settleThreshold is the magnitude under which a balance counts as settled.
	settleThreshold = decimal.RequireFromString("0.005")
	// rowTolerance is the drift a single rounded row is allowed to carry.
	rowTolerance = decimal.RequireFromString("0.01")
)

// Round rounds an amount to two decimal places, half away from zero.
//
// Every derived quantity in a ledger goes through Round at the point it is
// computed, not once at the end, so per-row figures stay stable.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Format renders an amount as a plain two-decimal string ("150.00").
// No currency symbol or grouping is applied.
func Format(d decimal.Decimal) string {
	return Round(d).StringFixed(Places)
}

// ParseAmount converts a decimal string to a non-negative amount rounded to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Signs, exponents and any other
// characters are rejected with ErrInvalidAmount. Zero is a valid amount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.345") -> 12.35, nil (rounds up)
//	ParseAmount("12.344") -> 12.34, nil (rounds down)
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	digits := 0
	for _, r := range s {
		if r == '.' {
			continue
		}
		if !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
		digits++
	}
	if digits == 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return Round(d), nil
}

// ClampMinutes limits a minutes-played value to [0, sessionMinutes].
// Callers apply it to raw form input before building a Participant.
func ClampMinutes(minutes, sessionMinutes int) int {
	if minutes < 0 {
		return 0
	}
	if sessionMinutes >= 0 && minutes > sessionMinutes {
		return sessionMinutes
	}
	return minutes
}

func withinTolerance(d, tolerance decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(tolerance)
}
