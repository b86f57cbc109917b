// Package units converts between the display units an operator types in and
// the base unit every ingredient quantity is stored in.
package units

import (
	"fmt"
	"strings"

	"racikpos/backend/internal/domain"
)

type Unit string

const (
	Kilogram   Unit = "kg"
	Gram       Unit = "g"
	Milligram  Unit = "mg"
	Liter      Unit = "l"
	Milliliter Unit = "ml"
	Piece      Unit = "un"
	Dozen      Unit = "dz"
)

type conversion struct {
	dimension domain.Unit
	factor    float64
}

var conversions = map[Unit]conversion{
	Kilogram:   {domain.UnitMass, 1000},
	Gram:       {domain.UnitMass, 1},
	Milligram:  {domain.UnitMass, 0.001},
	Liter:      {domain.UnitVolume, 1000},
	Milliliter: {domain.UnitVolume, 1},
	Piece:      {domain.UnitCount, 1},
	Dozen:      {domain.UnitCount, 12},
}

var aliases = map[string]Unit{
	"kg":       Kilogram,
	"kilogram": Kilogram,
	"kilo":     Kilogram,
	"g":        Gram,
	"gr":       Gram,
	"gram":     Gram,
	"mg":       Milligram,
	"l":        Liter,
	"lt":       Liter,
	"liter":    Liter,
	"litre":    Liter,
	"ml":       Milliliter,
	"un":       Piece,
	"unit":     Piece,
	"pc":       Piece,
	"pcs":      Piece,
	"dz":       Dozen,
	"dozen":    Dozen,
}

// Parse accepts common spellings and returns the canonical unit.
func Parse(raw string) (Unit, error) {
	u, ok := aliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("unknown unit %q", raw)
	}
	return u, nil
}

// Base returns the base unit for a dimension.
func Base(dimension domain.Unit) Unit {
	switch dimension {
	case domain.UnitVolume:
		return Milliliter
	case domain.UnitCount:
		return Piece
	default:
		return Gram
	}
}

func Dimension(u Unit) (domain.Unit, error) {
	c, ok := conversions[u]
	if !ok {
		return "", fmt.Errorf("unknown unit %q", u)
	}
	return c.dimension, nil
}

// Normalize converts q expressed in u to the base unit of u's dimension.
func Normalize(q float64, u Unit) (float64, error) {
	c, ok := conversions[u]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", u)
	}
	return q * c.factor, nil
}

// Denormalize converts a base-unit quantity back to u.
func Denormalize(q float64, u Unit) (float64, error) {
	c, ok := conversions[u]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", u)
	}
	return q / c.factor, nil
}

// NormalizeFor converts q in the display unit raw into the base unit of an
// ingredient with the given dimension. An empty raw unit means q is already
// in base units.
func NormalizeFor(q float64, raw string, dimension domain.Unit) (float64, error) {
	if strings.TrimSpace(raw) == "" {
		return q, nil
	}
	u, err := Parse(raw)
	if err != nil {
		return 0, err
	}
	dim, err := Dimension(u)
	if err != nil {
		return 0, err
	}
	if dim != dimension {
		return 0, fmt.Errorf("unit %q does not measure %s", u, dimension)
	}
	return Normalize(q, u)
}
