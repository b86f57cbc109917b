// Package costing holds the pure cost functions of a recipe. Every function
// guards its divisions and returns 0 instead of NaN or Inf, because they are
// routinely evaluated against half-filled catalog forms.
package costing

import (
	"fmt"
	"math"

	"racikpos/backend/internal/domain"
)

// PriceSource resolves an ingredient's current weighted-average unit price.
type PriceSource interface {
	AverageUnitPrice(ingredientID string) (float64, bool)
}

// StockSource resolves an ingredient's on-hand quantity.
type StockSource interface {
	TotalQuantity(ingredientID string) (float64, bool)
}

// PriceMap is a PriceSource over a plain map.
type PriceMap map[string]float64

func (m PriceMap) AverageUnitPrice(id string) (float64, bool) {
	v, ok := m[id]
	return v, ok
}

// ComputeTotalCost sums quantity times average unit price over the recipe.
// Lines whose ingredient cannot be priced contribute nothing.
func ComputeTotalCost(recipe []domain.RecipeLine, prices PriceSource) float64 {
	total := 0.0
	for _, line := range recipe {
		price, ok := prices.AverageUnitPrice(line.IngredientID)
		if !ok || line.Quantity <= 0 || price <= 0 {
			continue
		}
		total += line.Quantity * price
	}
	return finite(total)
}

// ComputeUnitCost spreads a batch's cost over its yield. A non-positive
// yield is treated as individual mode.
func ComputeUnitCost(totalCost float64, mode domain.ProductionMode, yieldQuantity int) float64 {
	if mode != domain.ModeBatch || yieldQuantity <= 0 {
		return finite(totalCost)
	}
	return finite(totalCost / float64(yieldQuantity))
}

// SuggestedPrice is the unit price that yields marginPercent over cost.
func SuggestedPrice(totalCost float64, marginPercent float64, mode domain.ProductionMode, yieldQuantity int) float64 {
	if totalCost <= 0 {
		return 0
	}
	priced := totalCost * (1 + marginPercent/100)
	if mode == domain.ModeBatch && yieldQuantity > 0 {
		priced /= float64(yieldQuantity)
	}
	return finite(math.Max(priced, 0))
}

// RealizedMargin is the percentage of unitSellingPrice left after unit cost.
func RealizedMargin(totalCost float64, unitSellingPrice float64, mode domain.ProductionMode, yieldQuantity int) float64 {
	if unitSellingPrice <= 0 || totalCost <= 0 {
		return 0
	}
	unitCost := ComputeUnitCost(totalCost, mode, yieldQuantity)
	return finite((unitSellingPrice - unitCost) / unitSellingPrice * 100)
}

// ValidateProduction rejects configurations the cost model cannot price.
func ValidateProduction(p domain.Production) error {
	switch p.Mode {
	case domain.ModeIndividual:
		return nil
	case domain.ModeBatch:
		if p.YieldQuantity < 1 {
			return fmt.Errorf("%w: batch mode needs yield_quantity >= 1", domain.ErrInvalidProductConfiguration)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidProductConfiguration, p.Mode)
	}
}

// ValidateRecipe checks every line points at a known ingredient and has a
// positive quantity.
func ValidateRecipe(recipe []domain.RecipeLine, known func(string) bool) error {
	if len(recipe) == 0 {
		return fmt.Errorf("%w: recipe is empty", domain.ErrInvalidProductConfiguration)
	}
	seen := make(map[string]struct{}, len(recipe))
	for _, line := range recipe {
		if !known(line.IngredientID) {
			return fmt.Errorf("%w: %s", domain.ErrUnknownIngredient, line.IngredientID)
		}
		if line.Quantity <= 0 || math.IsNaN(line.Quantity) || math.IsInf(line.Quantity, 0) {
			return fmt.Errorf("%w: recipe quantity for %s must be positive", domain.ErrInvalidProductConfiguration, line.IngredientID)
		}
		if _, dup := seen[line.IngredientID]; dup {
			return fmt.Errorf("%w: ingredient %s listed twice", domain.ErrInvalidProductConfiguration, line.IngredientID)
		}
		seen[line.IngredientID] = struct{}{}
	}
	return nil
}

// UnitPrice is the price a sale snapshots: the last committed selling price,
// falling back to the suggested price while none has been set.
func UnitPrice(product domain.Product, prices PriceSource) float64 {
	if product.Production.UnitSellingPrice > 0 {
		return product.Production.UnitSellingPrice
	}
	total := ComputeTotalCost(product.Ingredients, prices)
	return SuggestedPrice(total, product.Production.MarginPercent, product.Production.Mode, product.Production.YieldQuantity)
}

// MaxProducibleBatches is how many whole recipe runs the stock covers. It is
// 0 for an empty recipe or when any ingredient is absent.
func MaxProducibleBatches(recipe []domain.RecipeLine, stock StockSource) int {
	if len(recipe) == 0 {
		return 0
	}
	limit := math.Inf(1)
	for _, line := range recipe {
		have, ok := stock.TotalQuantity(line.IngredientID)
		if !ok || line.Quantity <= 0 {
			return 0
		}
		// tolerate float residue so 2000/2000 is never 0.9999
		runs := math.Floor(have/line.Quantity + 1e-9)
		limit = math.Min(limit, runs)
	}
	if limit < 0 || math.IsInf(limit, 0) || math.IsNaN(limit) {
		return 0
	}
	if limit >= math.MaxInt {
		return math.MaxInt
	}
	return int(limit)
}

// Source combines the price and stock views a ledger offers.
type Source interface {
	PriceSource
	StockSource
}

// Evaluate derives every cost figure for a product from current stock prices.
func Evaluate(product domain.Product, src Source) domain.ProductCosting {
	p := product.Production
	total := ComputeTotalCost(product.Ingredients, src)
	unitPrice := UnitPrice(product, src)
	return domain.ProductCosting{
		ProductUID:           product.UID,
		Mode:                 p.Mode,
		YieldQuantity:        p.YieldQuantity,
		TotalCost:            total,
		UnitCost:             ComputeUnitCost(total, p.Mode, p.YieldQuantity),
		MarginPercent:        p.MarginPercent,
		SuggestedPrice:       SuggestedPrice(total, p.MarginPercent, p.Mode, p.YieldQuantity),
		UnitSellingPrice:     unitPrice,
		RealizedMargin:       RealizedMargin(total, unitPrice, p.Mode, p.YieldQuantity),
		MaxProducibleBatches: MaxProducibleBatches(product.Ingredients, src),
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
