// Package sales validates carts against the ingredient ledger and commits
// them as immutable Sale records. A sale is taken whole or rejected whole.
package sales

import (
	"fmt"
	"slices"
	"time"

	"racikpos/backend/internal/costing"
	"racikpos/backend/internal/domain"
	"racikpos/backend/internal/ledger"
	"racikpos/backend/internal/money"
	"racikpos/backend/internal/xid"
)

// Catalog resolves cart product ids.
type Catalog map[string]domain.Product

// Requirement is the total amount of one ingredient a cart needs.
type Requirement struct {
	IngredientID string
	Quantity     float64
}

type Processor struct {
	fees FeeTable
	now  func() time.Time
}

func NewProcessor(fees FeeTable) *Processor {
	if fees == nil {
		fees = FeeTable{}
	}
	return &Processor{
		fees: fees,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (p *Processor) Fees() FeeTable {
	return p.fees
}

// NormalizeCart merges repeated products, keeping first-seen order, and
// rejects empty carts and non-positive quantities.
func NormalizeCart(cart []domain.CartItem) ([]domain.CartItem, error) {
	if len(cart) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", domain.ErrInvalidQuantity)
	}
	index := make(map[string]int, len(cart))
	out := make([]domain.CartItem, 0, len(cart))
	for _, item := range cart {
		if item.ProductID == "" {
			return nil, fmt.Errorf("%w: cart line without product", domain.ErrUnknownProduct)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for %s must be at least 1", domain.ErrInvalidQuantity, item.ProductID)
		}
		if i, seen := index[item.ProductID]; seen {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out, nil
}

// Requirements aggregates the ingredient quantities of every cart line, so
// products sharing an ingredient are checked against its combined demand.
// Batch-mode lines consume recipeQty * units / yield.
func Requirements(cart []domain.CartItem, catalog Catalog) ([]Requirement, error) {
	order := make([]string, 0, len(cart))
	totals := make(map[string]float64, len(cart))
	for _, item := range cart {
		product, ok := catalog[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProduct, item.ProductID)
		}
		if err := costing.ValidateProduction(product.Production); err != nil {
			return nil, fmt.Errorf("product %s: %w", product.UID, err)
		}
		for _, line := range product.Ingredients {
			required := line.Quantity * float64(item.Quantity)
			if product.Production.Mode == domain.ModeBatch {
				required = line.Quantity * float64(item.Quantity) / float64(product.Production.YieldQuantity)
			}
			if _, seen := totals[line.IngredientID]; !seen {
				order = append(order, line.IngredientID)
			}
			totals[line.IngredientID] += required
		}
	}

	reqs := make([]Requirement, 0, len(order))
	for _, id := range order {
		reqs = append(reqs, Requirement{IngredientID: id, Quantity: totals[id]})
	}
	return reqs, nil
}

// Validate reports whether the ledger covers the whole cart. It never
// mutates the ledger.
func (p *Processor) Validate(cart []domain.CartItem, catalog Catalog, l *ledger.Ledger) (domain.StockCheck, error) {
	normalized, err := NormalizeCart(cart)
	if err != nil {
		return domain.StockCheck{}, err
	}
	reqs, err := Requirements(normalized, catalog)
	if err != nil {
		return domain.StockCheck{}, err
	}
	return check(reqs, l)
}

// Commit re-validates the cart, consumes every requirement as one step,
// snapshots products and prices, and returns the immutable Sale. The
// Attempt is returned in every case and ends Committed or Rejected.
func (p *Processor) Commit(cart []domain.CartItem, payment domain.Payment, catalog Catalog, l *ledger.Ledger) (domain.Sale, *Attempt, error) {
	attempt := newAttempt()
	fail := func(err error) (domain.Sale, *Attempt, error) {
		attempt.reject(err)
		return domain.Sale{}, attempt, err
	}

	if err := attempt.advance(StateValidating); err != nil {
		return fail(err)
	}
	if err := ValidatePayment(payment); err != nil {
		return fail(err)
	}
	normalized, err := NormalizeCart(cart)
	if err != nil {
		return fail(err)
	}
	reqs, err := Requirements(normalized, catalog)
	if err != nil {
		return fail(err)
	}
	stock, err := check(reqs, l)
	if err != nil {
		return fail(err)
	}
	if !stock.Valid {
		return fail(&domain.InsufficientStockError{Missing: stock.MissingIngredients})
	}

	if err := attempt.advance(StateCommitting); err != nil {
		return fail(err)
	}

	// prices are read before consumption so the snapshot reflects the
	// catalog as the customer saw it
	items := buildItems(normalized, catalog, l)

	err = l.Atomically(func(work *ledger.Ledger) error {
		for _, req := range reqs {
			if err := work.Consume(req.IngredientID, req.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fail(err)
	}

	sale := domain.Sale{
		ID:            xid.New("sale"),
		Date:          p.now(),
		Items:         items,
		SellingResume: ComputeSellingResume(items, payment.Method, payment.Discount, p.fees),
	}
	if err := attempt.advance(StateCommitted); err != nil {
		return fail(err)
	}
	return sale, attempt, nil
}

// Preview prices a cart without checking or touching stock.
func (p *Processor) Preview(cart []domain.CartItem, payment domain.Payment, catalog Catalog, prices costing.PriceSource) (domain.SellingResume, error) {
	if err := ValidatePayment(payment); err != nil {
		return domain.SellingResume{}, err
	}
	normalized, err := NormalizeCart(cart)
	if err != nil {
		return domain.SellingResume{}, err
	}
	for _, item := range normalized {
		if _, ok := catalog[item.ProductID]; !ok {
			return domain.SellingResume{}, fmt.Errorf("%w: %s", domain.ErrUnknownProduct, item.ProductID)
		}
	}
	items := buildItems(normalized, catalog, prices)
	return ComputeSellingResume(items, payment.Method, payment.Discount, p.fees), nil
}

func check(reqs []Requirement, l *ledger.Ledger) (domain.StockCheck, error) {
	result := domain.StockCheck{Valid: true, MissingIngredients: []string{}}
	for _, req := range reqs {
		ing, ok := l.Ingredient(req.IngredientID)
		if !ok {
			return domain.StockCheck{}, fmt.Errorf("%w: %s", domain.ErrUnknownIngredient, req.IngredientID)
		}
		if !l.CanConsume(req.IngredientID, req.Quantity) {
			result.Valid = false
			result.MissingIngredients = append(result.MissingIngredients, ing.Name)
		}
	}
	return result, nil
}

func buildItems(cart []domain.CartItem, catalog Catalog, prices costing.PriceSource) []domain.SaleItem {
	items := make([]domain.SaleItem, 0, len(cart))
	for _, item := range cart {
		product := snapshotProduct(catalog[item.ProductID])
		unitPrice := money.Round(costing.UnitPrice(product, prices))
		items = append(items, domain.SaleItem{
			Product:   product,
			Quantity:  item.Quantity,
			UnitPrice: unitPrice,
			Subtotal:  money.Mul(unitPrice, float64(item.Quantity)),
		})
	}
	return items
}

func snapshotProduct(p domain.Product) domain.Product {
	dup := p
	dup.Ingredients = slices.Clone(p.Ingredients)
	return dup
}
