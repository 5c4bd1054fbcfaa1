// Package core provides money parsing and handling utilities.
//
// This file contains the lenient parsers used for form input and the
// two-decimal formatter used for every amount shown to a participant.
package core

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	numberPrefix  = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	integerPrefix = regexp.MustCompile(`^[+-]?\d+`)
)

// ParseContribution converts user text to an amount without ever failing.
//
// Surrounding whitespace is ignored and the longest leading number is used,
// so trailing garbage is dropped. A comma ends the number like any other
// non-numeric character. Text with no leading number, or a value that
// overflows, yields 0.
//
// Examples:
//   ParseContribution("12.50")  -> 12.5
//   ParseContribution("12,50")  -> 12
//   ParseContribution("1,000")  -> 1
//   ParseContribution("80 rs")  -> 80
//   ParseContribution("abc")    -> 0
func ParseContribution(raw string) float64 {
	m := numberPrefix.FindString(strings.TrimSpace(raw))
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

// ParseParticipantCount reads the leading integer of raw, or 0.
// "3.7" reads as 3.
func ParseParticipantCount(raw string) int {
	m := integerPrefix.FindString(strings.TrimSpace(raw))
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// ParseTotal reads a total amount with the same leniency as contributions.
func ParseTotal(raw string) float64 {
	return ParseContribution(raw)
}

// FormatAmount renders an amount with exactly two decimals.
func FormatAmount(v float64) string {
	s := decimal.NewFromFloat(v).StringFixed(2)
	if s == "-0.00" {
		return "0.00"
	}
	return s
}
