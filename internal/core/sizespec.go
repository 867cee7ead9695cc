package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var sizeSpecPattern = regexp.MustCompile(`(?i)^\s*(\d+(?:[.,]\d+)?)\s*(ml|cl|l)?\s*$`)

var (
	mlPerCL = decimal.NewFromInt(10)
	mlPerL  = decimal.NewFromInt(1000)
)

// ParseVolumeML returns the bottle volume in millilitres for size specs such as
// "30ml", "0.1 L", "5cl" or a bare "50". A comma decimal separator is accepted.
func ParseVolumeML(spec string) (decimal.Decimal, error) {
	m := sizeSpecPattern.FindStringSubmatch(spec)
	if m == nil {
		return decimal.Zero, fmt.Errorf("%w: unrecognised size spec %q", ErrInvalidInput, spec)
	}
	v, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "."))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: unrecognised size spec %q", ErrInvalidInput, spec)
	}
	switch strings.ToLower(m[2]) {
	case "cl":
		v = v.Mul(mlPerCL)
	case "l":
		v = v.Mul(mlPerL)
	}
	if !v.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: size spec %q is not positive", ErrInvalidInput, spec)
	}
	return v, nil
}
