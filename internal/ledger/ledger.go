// Package ledger tracks ingredient stock as purchase batches and keeps the
// weighted-average unit price in step with whatever is still on hand.
//
// Invariant: for every ingredient, TotalQuantity equals the sum of its
// batches' CurrentQuantity and neither is ever negative.
package ledger

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"racikpos/backend/internal/domain"
	"racikpos/backend/internal/xid"
)

// epsilon absorbs float residue left by fractional consumption.
const epsilon = 1e-9

var ErrDuplicateIngredient = errors.New("ingredient already registered")

type Ledger struct {
	ingredients map[string]*domain.Ingredient
	order       []string
	now         func() time.Time
}

// New builds a ledger from stored ingredients. Inputs are deep-copied.
// Ingredients carrying stock without batches get an opening batch so the
// invariant holds from the start.
func New(ingredients []domain.Ingredient) *Ledger {
	l := &Ledger{
		ingredients: make(map[string]*domain.Ingredient, len(ingredients)),
		order:       make([]string, 0, len(ingredients)),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, ing := range ingredients {
		if _, exists := l.ingredients[ing.ID]; exists || ing.ID == "" {
			continue
		}
		dup := cloneIngredient(ing)
		l.adoptOpeningStock(&dup)
		recompute(&dup)
		l.ingredients[dup.ID] = &dup
		l.order = append(l.order, dup.ID)
	}
	return l
}

// Register adds a new ingredient. Any TotalQuantity without batches is
// recorded as an opening batch priced at AverageUnitPrice.
func (l *Ledger) Register(ing domain.Ingredient) (domain.Ingredient, error) {
	ing.ID = strings.TrimSpace(ing.ID)
	ing.Name = strings.TrimSpace(ing.Name)
	if ing.ID == "" || ing.Name == "" || !ing.Unit.Valid() {
		return domain.Ingredient{}, fmt.Errorf("%w: ingredient needs id, name and unit", domain.ErrInvalidQuantity)
	}
	if ing.TotalQuantity < 0 || ing.AverageUnitPrice < 0 || ing.MaxQuantity < 0 {
		return domain.Ingredient{}, domain.ErrInvalidQuantity
	}
	if _, exists := l.ingredients[ing.ID]; exists {
		return domain.Ingredient{}, fmt.Errorf("%w: %s", ErrDuplicateIngredient, ing.ID)
	}

	dup := cloneIngredient(ing)
	l.adoptOpeningStock(&dup)
	recompute(&dup)
	l.ingredients[dup.ID] = &dup
	l.order = append(l.order, dup.ID)
	return cloneIngredient(dup), nil
}

// RegisterPurchase appends a batch and recomputes quantity and average price.
// UnitPrice and CurrentQuantity are derived from BuyPrice and OriginalQuantity.
func (l *Ledger) RegisterPurchase(ingredientID string, batch domain.PurchaseBatch) (domain.PurchaseBatch, error) {
	ing, ok := l.ingredients[ingredientID]
	if !ok {
		return domain.PurchaseBatch{}, fmt.Errorf("%w: %s", domain.ErrUnknownIngredient, ingredientID)
	}
	if batch.OriginalQuantity <= epsilon || batch.BuyPrice < 0 {
		return domain.PurchaseBatch{}, fmt.Errorf("%w: purchase quantity must be positive", domain.ErrInvalidQuantity)
	}

	if batch.ID == "" {
		batch.ID = xid.New("batch")
	}
	if batch.PurchaseDate.IsZero() {
		batch.PurchaseDate = l.now()
	}
	batch.CurrentQuantity = batch.OriginalQuantity
	batch.UnitPrice = batch.BuyPrice / batch.OriginalQuantity
	batch.Supplier = strings.TrimSpace(batch.Supplier)

	ing.Batches = append(ing.Batches, batch)
	recompute(ing)
	return batch, nil
}

// Consume depletes the oldest batches first. It fails without touching
// anything when amount exceeds the stock on hand.
func (l *Ledger) Consume(ingredientID string, amount float64) error {
	ing, ok := l.ingredients[ingredientID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownIngredient, ingredientID)
	}
	if amount < 0 {
		return domain.ErrInvalidQuantity
	}
	if amount == 0 {
		return nil
	}
	if amount > ing.TotalQuantity+epsilon {
		return &domain.InsufficientStockError{Missing: []string{ing.Name}}
	}

	slices.SortStableFunc(ing.Batches, compareBatchFIFO)

	remaining := amount
	kept := ing.Batches[:0]
	for _, batch := range ing.Batches {
		if remaining > epsilon {
			used := min(remaining, batch.CurrentQuantity)
			batch.CurrentQuantity -= used
			remaining -= used
		}
		if batch.CurrentQuantity > epsilon {
			kept = append(kept, batch)
		}
	}
	ing.Batches = kept
	recompute(ing)
	return nil
}

// CanConsume reports whether amount can be taken from the ingredient.
// Unknown ingredients cannot be consumed.
func (l *Ledger) CanConsume(ingredientID string, amount float64) bool {
	ing, ok := l.ingredients[ingredientID]
	if !ok || amount < 0 {
		return false
	}
	return amount <= ing.TotalQuantity+epsilon
}

func (l *Ledger) TotalQuantity(ingredientID string) (float64, bool) {
	ing, ok := l.ingredients[ingredientID]
	if !ok {
		return 0, false
	}
	return ing.TotalQuantity, true
}

func (l *Ledger) AverageUnitPrice(ingredientID string) (float64, bool) {
	ing, ok := l.ingredients[ingredientID]
	if !ok {
		return 0, false
	}
	return ing.AverageUnitPrice, true
}

func (l *Ledger) Ingredient(ingredientID string) (domain.Ingredient, bool) {
	ing, ok := l.ingredients[ingredientID]
	if !ok {
		return domain.Ingredient{}, false
	}
	return cloneIngredient(*ing), true
}

func (l *Ledger) Has(ingredientID string) bool {
	_, ok := l.ingredients[ingredientID]
	return ok
}

// Snapshot returns copies of the requested ingredients in registration
// order, or of every ingredient when no ids are given. Unknown ids are skipped.
func (l *Ledger) Snapshot(ids ...string) []domain.Ingredient {
	var want map[string]struct{}
	if len(ids) > 0 {
		want = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			want[id] = struct{}{}
		}
	}

	out := make([]domain.Ingredient, 0, len(l.order))
	for _, id := range l.order {
		if want != nil {
			if _, ok := want[id]; !ok {
				continue
			}
		}
		out = append(out, cloneIngredient(*l.ingredients[id]))
	}
	return out
}

func (l *Ledger) Clone() *Ledger {
	dup := &Ledger{
		ingredients: make(map[string]*domain.Ingredient, len(l.ingredients)),
		order:       slices.Clone(l.order),
		now:         l.now,
	}
	for id, ing := range l.ingredients {
		c := cloneIngredient(*ing)
		dup.ingredients[id] = &c
	}
	return dup
}

// Atomically runs fn against a working copy and adopts the copy only when
// fn succeeds, so a multi-ingredient mutation is applied whole or not at all.
func (l *Ledger) Atomically(fn func(*Ledger) error) error {
	work := l.Clone()
	if err := fn(work); err != nil {
		return err
	}
	l.ingredients = work.ingredients
	l.order = work.order
	return nil
}

func (l *Ledger) adoptOpeningStock(ing *domain.Ingredient) {
	if len(ing.Batches) > 0 || ing.TotalQuantity <= epsilon {
		return
	}
	at := ing.CreatedAt
	if at.IsZero() {
		at = l.now()
	}
	ing.Batches = []domain.PurchaseBatch{{
		ID:               xid.New("batch"),
		PurchaseDate:     at,
		BuyPrice:         ing.TotalQuantity * ing.AverageUnitPrice,
		OriginalQuantity: ing.TotalQuantity,
		CurrentQuantity:  ing.TotalQuantity,
		UnitPrice:        ing.AverageUnitPrice,
		Supplier:         "opening",
	}}
}

// recompute drops batches at or below epsilon and restores TotalQuantity and
// AverageUnitPrice from the rest. When nothing is left on hand the last
// average price is kept so recipes still have a reference cost.
func recompute(ing *domain.Ingredient) {
	total := 0.0
	value := 0.0
	kept := ing.Batches[:0]
	for _, batch := range ing.Batches {
		if batch.CurrentQuantity <= epsilon {
			continue
		}
		kept = append(kept, batch)
		total += batch.CurrentQuantity
		value += batch.CurrentQuantity * batch.UnitPrice
	}
	ing.Batches = kept
	if total <= epsilon {
		ing.TotalQuantity = 0
		return
	}
	ing.TotalQuantity = total
	ing.AverageUnitPrice = value / total
}

func compareBatchFIFO(a domain.PurchaseBatch, b domain.PurchaseBatch) int {
	if c := a.PurchaseDate.Compare(b.PurchaseDate); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func cloneIngredient(src domain.Ingredient) domain.Ingredient {
	dup := src
	dup.Batches = slices.Clone(src.Batches)
	if dup.Batches == nil {
		dup.Batches = []domain.PurchaseBatch{}
	}
	return dup
}
