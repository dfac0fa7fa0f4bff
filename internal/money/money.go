// Package money holds integer minor-unit arithmetic shared by the cart and checkout code.
package money

import "fmt"

// ApplyDiscount returns price reduced by pct percent, rounded half-up to the nearest minor
// unit. pct outside 1..100 leaves the price unchanged (0) or clamps (>100).
func ApplyDiscount(price int64, pct int) int64 {
	if pct <= 0 || price <= 0 {
		return price
	}
	if pct >= 100 {
		return 0
	}
	return (price*int64(100-pct) + 50) / 100
}

// LineTotal is unit × qty.
func LineTotal(unit int64, qty int) int64 { return unit * int64(qty) }

// Format renders minor units as a decimal amount, e.g. 1699 -> "16.99".
func Format(v int64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
