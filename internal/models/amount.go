package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Amounts are stored as int64 minor units: 1 unit = 0.01 cent, so the 0.01
// per-tap reward is 1 unit and a 0.50 referral bonus is 50 units.

// FormatAmount renders minor units with two decimal places ("0.52").
func FormatAmount(units int64) string {
	return fmt.Sprintf("%d.%02d", units/100, units%100)
}

// ParseAmount converts a decimal string ("0.01", "0.5", "2") into minor
// units. At most two fractional digits are accepted. Amounts in this ledger
// are always positive, so a sign is rejected.
func ParseAmount(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "+") {
		return 0, fmt.Errorf("invalid amount %q: must be an unsigned decimal", s)
	}
	whole, frac, _ := strings.Cut(trimmed, ".")
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	units *= 100
	if frac == "" {
		return units, nil
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("invalid amount %q: more than two decimal places", s)
	}
	frac += strings.Repeat("0", 2-len(frac))
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return units + cents, nil
}
