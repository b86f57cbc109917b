package sales

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racikpos/backend/internal/costing"
	"racikpos/backend/internal/domain"
	"racikpos/backend/internal/ledger"
)

var fees = FeeTable{
	domain.PaymentCreditCard: 3.5,
	domain.PaymentDebitCard:  1.5,
	domain.PaymentPix:        0.99,
	domain.PaymentCash:       9,
}

func flourLedger(grams float64) *ledger.Ledger {
	return ledger.New([]domain.Ingredient{
		{ID: "flour", Name: "Flour", Unit: domain.UnitMass, Batches: []domain.PurchaseBatch{
			{ID: "f1", PurchaseDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), BuyPrice: grams * 0.01, OriginalQuantity: grams, CurrentQuantity: grams, UnitPrice: 0.01},
		}},
		{ID: "sugar", Name: "Sugar", Unit: domain.UnitMass, Batches: []domain.PurchaseBatch{
			{ID: "s1", PurchaseDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), BuyPrice: 4, OriginalQuantity: 1000, CurrentQuantity: 1000, UnitPrice: 0.004},
		}},
	})
}

func catalog() Catalog {
	return Catalog{
		"cake": {
			UID:         "cake",
			Name:        "Cake",
			Ingredients: []domain.RecipeLine{{IngredientID: "flour", Quantity: 2000}},
			Production:  domain.Production{Mode: domain.ModeBatch, YieldQuantity: 10, MarginPercent: 50},
		},
		"cookie": {
			UID:  "cookie",
			Name: "Cookie",
			Ingredients: []domain.RecipeLine{
				{IngredientID: "flour", Quantity: 100},
				{IngredientID: "sugar", Quantity: 50},
			},
			Production: domain.Production{Mode: domain.ModeIndividual, MarginPercent: 100, UnitSellingPrice: 2.5},
		},
	}
}

func TestComputeSellingResumePricingScenario(t *testing.T) {
	items := []domain.SaleItem{{Quantity: 1, UnitPrice: 100, Subtotal: 100}}

	got := ComputeSellingResume(items, domain.PaymentCreditCard, &domain.Discount{Type: domain.DiscountPercentage, Value: 10}, fees)

	assert.Equal(t, 100.0, got.Subtotal)
	assert.Equal(t, 10.0, got.DiscountValue)
	assert.Equal(t, 3.5, got.FeePercent)
	assert.Equal(t, 3.15, got.FeeAmount)
	assert.Equal(t, 93.15, got.TotalValue)
}

func TestComputeSellingResumeCashHasNoFee(t *testing.T) {
	items := []domain.SaleItem{{Subtotal: 40}, {Subtotal: 2.5}}

	got := ComputeSellingResume(items, domain.PaymentCash, nil, fees)

	assert.Equal(t, 0.0, got.FeePercent, "cash fee is always zero even if configured")
	assert.Equal(t, 0.0, got.FeeAmount)
	assert.Equal(t, 42.5, got.TotalValue)
	assert.Nil(t, got.Discount)
}

func TestComputeSellingResumeFixedDiscountIsClamped(t *testing.T) {
	items := []domain.SaleItem{{Subtotal: 20}}

	got := ComputeSellingResume(items, domain.PaymentPix, &domain.Discount{Type: domain.DiscountFixed, Value: 50}, fees)

	assert.Equal(t, 20.0, got.DiscountValue)
	assert.Equal(t, 0.0, got.FeeAmount)
	assert.Equal(t, 0.0, got.TotalValue)
}

func TestComputeSellingResumeUnconfiguredMethodHasNoFee(t *testing.T) {
	got := ComputeSellingResume([]domain.SaleItem{{Subtotal: 10}}, domain.PaymentDebitCard, nil, FeeTable{})
	assert.Equal(t, 0.0, got.FeeAmount)
	assert.Equal(t, 10.0, got.TotalValue)
}

func TestValidatePayment(t *testing.T) {
	assert.NoError(t, ValidatePayment(domain.Payment{Method: domain.PaymentCash}))
	assert.ErrorIs(t, ValidatePayment(domain.Payment{Method: "voucher"}), domain.ErrInvalidPayment)
	assert.ErrorIs(t, ValidatePayment(domain.Payment{Method: domain.PaymentPix, Discount: &domain.Discount{Type: domain.DiscountPercentage, Value: 120}}), domain.ErrInvalidDiscount)
	assert.ErrorIs(t, ValidatePayment(domain.Payment{Method: domain.PaymentPix, Discount: &domain.Discount{Type: domain.DiscountFixed, Value: -1}}), domain.ErrInvalidDiscount)
	assert.ErrorIs(t, ValidatePayment(domain.Payment{Method: domain.PaymentPix, Discount: &domain.Discount{Type: "bogo", Value: 1}}), domain.ErrInvalidDiscount)
}

func TestCommitEndToEndCakeScenario(t *testing.T) {
	l := flourLedger(5000)
	cat := catalog()

	costs := costing.Evaluate(cat["cake"], l)
	require.InDelta(t, 20, costs.TotalCost, 1e-9)
	require.InDelta(t, 2, costs.UnitCost, 1e-9)
	require.InDelta(t, 3, costs.SuggestedPrice, 1e-9)

	p := NewProcessor(fees)
	sale, attempt, err := p.Commit(
		[]domain.CartItem{{ProductID: "cake", Quantity: 4}},
		domain.Payment{Method: domain.PaymentCash},
		cat, l,
	)
	require.NoError(t, err)

	flour, _ := l.TotalQuantity("flour")
	assert.InDelta(t, 4200, flour, 1e-9)
	require.Len(t, sale.Items, 1)
	assert.Equal(t, 3.0, sale.Items[0].UnitPrice)
	assert.Equal(t, 12.0, sale.SellingResume.Subtotal)
	assert.Equal(t, 12.0, sale.SellingResume.TotalValue)
	assert.NotEmpty(t, sale.ID)
	assert.False(t, sale.Date.IsZero())
	assert.Equal(t, StateCommitted, attempt.State)
	assert.Equal(t, []State{StateIdle, StateValidating, StateCommitting, StateCommitted}, attempt.History)
}

func TestValidateRejectsOverdrawnBatchWithoutMutation(t *testing.T) {
	l := flourLedger(2000)
	p := NewProcessor(fees)
	cart := []domain.CartItem{{ProductID: "cake", Quantity: 11}}

	check, err := p.Validate(cart, catalog(), l)
	require.NoError(t, err)
	assert.False(t, check.Valid)
	assert.Equal(t, []string{"Flour"}, check.MissingIngredients)

	_, attempt, err := p.Commit(cart, domain.Payment{Method: domain.PaymentCash}, catalog(), l)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, []string{"Flour"}, domain.MissingIngredients(err))
	assert.Equal(t, StateRejected, attempt.State)
	assert.True(t, attempt.Terminal())

	flour, _ := l.TotalQuantity("flour")
	assert.Equal(t, 2000.0, flour)
}

func TestValidateAggregatesSharedIngredientsAcrossLines(t *testing.T) {
	// cake x5 needs 1000g, cookie x15 needs 1500g: each fits alone, not together
	l := flourLedger(2000)
	p := NewProcessor(fees)

	check, err := p.Validate([]domain.CartItem{
		{ProductID: "cake", Quantity: 5},
		{ProductID: "cookie", Quantity: 15},
	}, catalog(), l)
	require.NoError(t, err)
	assert.False(t, check.Valid)
	assert.Equal(t, []string{"Flour"}, check.MissingIngredients)
}

func TestCommitIsAllOrNothingAcrossIngredients(t *testing.T) {
	// flour is plentiful, sugar runs out on the second product line
	l := flourLedger(50000)
	p := NewProcessor(fees)
	before := l.Snapshot()

	_, _, err := p.Commit([]domain.CartItem{
		{ProductID: "cake", Quantity: 10},
		{ProductID: "cookie", Quantity: 21},
	}, domain.Payment{Method: domain.PaymentCreditCard}, catalog(), l)

	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, []string{"Sugar"}, stockErr.Missing)
	assert.Equal(t, before, l.Snapshot())
}

func TestCommitMergesRepeatedLinesAndSnapshotsProduct(t *testing.T) {
	l := flourLedger(5000)
	cat := catalog()
	p := NewProcessor(fees)

	sale, _, err := p.Commit([]domain.CartItem{
		{ProductID: "cookie", Quantity: 2},
		{ProductID: "cookie", Quantity: 1},
	}, domain.Payment{Method: domain.PaymentDebitCard}, cat, l)
	require.NoError(t, err)

	require.Len(t, sale.Items, 1)
	assert.Equal(t, 3, sale.Items[0].Quantity)
	assert.Equal(t, 7.5, sale.Items[0].Subtotal)
	assert.Equal(t, 0.11, sale.SellingResume.FeeAmount)
	assert.Equal(t, 7.61, sale.SellingResume.TotalValue)

	// later recipe edits do not reach the committed sale
	edited := cat["cookie"]
	edited.Ingredients[0].Quantity = 999
	assert.Equal(t, 100.0, sale.Items[0].Product.Ingredients[0].Quantity)
}

func TestCommitRejectsBadInput(t *testing.T) {
	l := flourLedger(5000)
	p := NewProcessor(fees)
	cash := domain.Payment{Method: domain.PaymentCash}

	_, _, err := p.Commit(nil, cash, catalog(), l)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, _, err = p.Commit([]domain.CartItem{{ProductID: "cake", Quantity: 0}}, cash, catalog(), l)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, attempt, err := p.Commit([]domain.CartItem{{ProductID: "pie", Quantity: 1}}, cash, catalog(), l)
	assert.ErrorIs(t, err, domain.ErrUnknownProduct)
	assert.Equal(t, StateRejected, attempt.State)

	_, _, err = p.Commit([]domain.CartItem{{ProductID: "cake", Quantity: 1}}, domain.Payment{Method: "barter"}, catalog(), l)
	assert.ErrorIs(t, err, domain.ErrInvalidPayment)

	broken := catalog()
	cake := broken["cake"]
	cake.Production.YieldQuantity = 0
	broken["cake"] = cake
	_, _, err = p.Commit([]domain.CartItem{{ProductID: "cake", Quantity: 1}}, cash, broken, l)
	assert.ErrorIs(t, err, domain.ErrInvalidProductConfiguration)

	ghost := catalog()
	ghost["ghost"] = domain.Product{UID: "ghost", Ingredients: []domain.RecipeLine{{IngredientID: "saffron", Quantity: 1}}, Production: domain.Production{Mode: domain.ModeIndividual}}
	_, _, err = p.Commit([]domain.CartItem{{ProductID: "ghost", Quantity: 1}}, cash, ghost, l)
	assert.ErrorIs(t, err, domain.ErrUnknownIngredient)

	flour, _ := l.TotalQuantity("flour")
	assert.Equal(t, 5000.0, flour)
}

func TestPreviewDoesNotTouchStock(t *testing.T) {
	l := flourLedger(100)
	p := NewProcessor(fees)

	resume, err := p.Preview(
		[]domain.CartItem{{ProductID: "cake", Quantity: 40}},
		domain.Payment{Method: domain.PaymentCreditCard, Discount: &domain.Discount{Type: domain.DiscountFixed, Value: 20}},
		catalog(), l,
	)
	require.NoError(t, err)
	assert.Equal(t, 120.0, resume.Subtotal)
	assert.Equal(t, 20.0, resume.DiscountValue)
	assert.Equal(t, 3.5, resume.FeeAmount)
	assert.Equal(t, 103.5, resume.TotalValue)

	flour, _ := l.TotalQuantity("flour")
	assert.Equal(t, 100.0, flour)
}

func TestAttemptRefusesIllegalTransition(t *testing.T) {
	a := newAttempt()
	assert.Error(t, a.advance(StateCommitted))
	require.NoError(t, a.advance(StateValidating))
	a.reject(errors.New("no"))
	assert.Equal(t, "no", a.Reason)
	assert.Error(t, a.advance(StateCommitting))
}
