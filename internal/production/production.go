// Package production turns ingredient stock into batch-mode product units.
package production

import (
	"fmt"
	"time"

	"racikpos/backend/internal/costing"
	"racikpos/backend/internal/domain"
	"racikpos/backend/internal/ledger"
)

// MaxProducibleBatches is the number of whole recipe runs the ledger covers.
func MaxProducibleBatches(product domain.Product, l *ledger.Ledger) int {
	return costing.MaxProducibleBatches(product.Ingredients, l)
}

// ProduceBatches consumes count recipe runs from the ledger and credits
// count*yield units to the product. Nothing is consumed unless every line
// can be covered. The returned product carries the new produced quantity.
func ProduceBatches(product domain.Product, l *ledger.Ledger, count int) (domain.Product, domain.ProductionResult, error) {
	if product.Production.Mode != domain.ModeBatch {
		return product, domain.ProductionResult{}, fmt.Errorf("%w: only batch-mode products are produced ahead of sale", domain.ErrInvalidProductConfiguration)
	}
	if err := costing.ValidateProduction(product.Production); err != nil {
		return product, domain.ProductionResult{}, err
	}
	if count < 1 {
		return product, domain.ProductionResult{}, fmt.Errorf("%w: batch count must be at least 1", domain.ErrInvalidQuantity)
	}
	if len(product.Ingredients) == 0 {
		return product, domain.ProductionResult{}, fmt.Errorf("%w: recipe is empty", domain.ErrInvalidProductConfiguration)
	}
	for _, line := range product.Ingredients {
		if !l.Has(line.IngredientID) {
			return product, domain.ProductionResult{}, fmt.Errorf("%w: %s", domain.ErrUnknownIngredient, line.IngredientID)
		}
	}

	if count > MaxProducibleBatches(product, l) {
		return product, domain.ProductionResult{}, &domain.InsufficientIngredientsError{Missing: shortfall(product, l, count)}
	}

	consumed := make([]domain.IngredientConsumption, 0, len(product.Ingredients))
	err := l.Atomically(func(work *ledger.Ledger) error {
		for _, line := range product.Ingredients {
			amount := line.Quantity * float64(count)
			if err := work.Consume(line.IngredientID, amount); err != nil {
				return err
			}
			ing, _ := work.Ingredient(line.IngredientID)
			consumed = append(consumed, domain.IngredientConsumption{
				IngredientID: line.IngredientID,
				Name:         ing.Name,
				Quantity:     amount,
			})
		}
		return nil
	})
	if err != nil {
		return product, domain.ProductionResult{}, err
	}

	units := count * product.Production.YieldQuantity
	product.Production.ProducedQuantity += units

	return product, domain.ProductionResult{
		ProductUID:       product.UID,
		Batches:          count,
		UnitsProduced:    units,
		ProducedQuantity: product.Production.ProducedQuantity,
		Consumed:         consumed,
		ProducedAt:       time.Now().UTC(),
	}, nil
}

func shortfall(product domain.Product, l *ledger.Ledger, count int) []string {
	missing := make([]string, 0, len(product.Ingredients))
	for _, line := range product.Ingredients {
		if l.CanConsume(line.IngredientID, line.Quantity*float64(count)) {
			continue
		}
		name := line.IngredientID
		if ing, ok := l.Ingredient(line.IngredientID); ok {
			name = ing.Name
		}
		missing = append(missing, name)
	}
	return missing
}
