package production

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racikpos/backend/internal/domain"
	"racikpos/backend/internal/ledger"
)

func newLedger() *ledger.Ledger {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return ledger.New([]domain.Ingredient{
		{ID: "flour", Name: "Flour", Unit: domain.UnitMass, Batches: []domain.PurchaseBatch{
			{ID: "f1", PurchaseDate: at, OriginalQuantity: 5000, CurrentQuantity: 5000, UnitPrice: 0.01},
		}},
		{ID: "eggs", Name: "Eggs", Unit: domain.UnitCount, Batches: []domain.PurchaseBatch{
			{ID: "e1", PurchaseDate: at, OriginalQuantity: 6, CurrentQuantity: 6, UnitPrice: 0.5},
		}},
	})
}

func cake() domain.Product {
	return domain.Product{
		UID:  "prd-cake",
		Name: "Cake",
		Ingredients: []domain.RecipeLine{
			{IngredientID: "flour", Quantity: 2000},
			{IngredientID: "eggs", Quantity: 2},
		},
		Production: domain.Production{Mode: domain.ModeBatch, YieldQuantity: 10, MarginPercent: 50},
	}
}

func TestMaxProducibleBatches(t *testing.T) {
	assert.Equal(t, 2, MaxProducibleBatches(cake(), newLedger()))

	p := cake()
	p.Ingredients = append(p.Ingredients, domain.RecipeLine{IngredientID: "butter", Quantity: 1})
	assert.Equal(t, 0, MaxProducibleBatches(p, newLedger()))
}

func TestProduceBatchesWithTinyRecipeQuantity(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l := ledger.New([]domain.Ingredient{
		{ID: "salt", Name: "Salt", Unit: domain.UnitMass, Batches: []domain.PurchaseBatch{
			{ID: "s1", PurchaseDate: at, OriginalQuantity: 1e9, CurrentQuantity: 1e9, UnitPrice: 0.001},
		}},
	})
	p := domain.Product{
		UID:         "prd-pinch",
		Name:        "Pinch",
		Ingredients: []domain.RecipeLine{{IngredientID: "salt", Quantity: 1e-12}},
		Production:  domain.Production{Mode: domain.ModeBatch, YieldQuantity: 1},
	}

	_, result, err := ProduceBatches(p, l, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, result.UnitsProduced)
}

func TestProduceBatchesConsumesAndCreditsUnits(t *testing.T) {
	l := newLedger()

	product, result, err := ProduceBatches(cake(), l, 2)
	require.NoError(t, err)

	assert.Equal(t, 20, result.UnitsProduced)
	assert.Equal(t, 20, product.Production.ProducedQuantity)
	assert.Equal(t, 20, result.ProducedQuantity)
	require.Len(t, result.Consumed, 2)
	assert.Equal(t, domain.IngredientConsumption{IngredientID: "flour", Name: "Flour", Quantity: 4000}, result.Consumed[0])

	flour, _ := l.TotalQuantity("flour")
	eggs, _ := l.TotalQuantity("eggs")
	assert.InDelta(t, 1000, flour, 1e-9)
	assert.InDelta(t, 2, eggs, 1e-9)
}

func TestProduceBatchesAccumulatesProducedQuantity(t *testing.T) {
	l := newLedger()
	p := cake()
	p.Production.ProducedQuantity = 7

	p, _, err := ProduceBatches(p, l, 1)
	require.NoError(t, err)
	assert.Equal(t, 17, p.Production.ProducedQuantity)
}

func TestProduceBatchesBeyondMaxIsAllOrNothing(t *testing.T) {
	l := newLedger()
	before := l.Snapshot()

	product, _, err := ProduceBatches(cake(), l, 3)

	var prodErr *domain.InsufficientIngredientsError
	require.True(t, errors.As(err, &prodErr))
	// 3 runs need 6000g flour but only 6 eggs, which are on hand
	assert.Equal(t, []string{"Flour"}, prodErr.Missing)
	assert.ErrorIs(t, err, domain.ErrInsufficientIngredients)
	assert.Equal(t, before, l.Snapshot())
	assert.Equal(t, 0, product.Production.ProducedQuantity)
}

func TestProduceBatchesRejectsBadInput(t *testing.T) {
	l := newLedger()

	individual := cake()
	individual.Production.Mode = domain.ModeIndividual
	_, _, err := ProduceBatches(individual, l, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidProductConfiguration)

	noYield := cake()
	noYield.Production.YieldQuantity = 0
	_, _, err = ProduceBatches(noYield, l, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidProductConfiguration)

	_, _, err = ProduceBatches(cake(), l, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	ghost := cake()
	ghost.Ingredients = []domain.RecipeLine{{IngredientID: "vanilla", Quantity: 1}}
	_, _, err = ProduceBatches(ghost, l, 1)
	assert.ErrorIs(t, err, domain.ErrUnknownIngredient)
}
