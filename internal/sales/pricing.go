package sales

import (
	"fmt"
	"math"

	"racikpos/backend/internal/domain"
	"racikpos/backend/internal/money"
)

// FeeTable maps each payment method to its fee percentage. It is built and
// validated once at configuration load.
type FeeTable map[domain.PaymentMethod]float64

// Percent returns the fee for method. Cash never carries a fee.
func (f FeeTable) Percent(method domain.PaymentMethod) float64 {
	if method == domain.PaymentCash {
		return 0
	}
	return f[method]
}

// ValidatePayment checks the method is known and the discount is sane.
func ValidatePayment(payment domain.Payment) error {
	if !payment.Method.Valid() {
		return fmt.Errorf("%w: unknown method %q", domain.ErrInvalidPayment, payment.Method)
	}
	d := payment.Discount
	if d == nil {
		return nil
	}
	if math.IsNaN(d.Value) || math.IsInf(d.Value, 0) || d.Value < 0 {
		return fmt.Errorf("%w: value must be a non-negative number", domain.ErrInvalidDiscount)
	}
	switch d.Type {
	case domain.DiscountPercentage:
		if d.Value > 100 {
			return fmt.Errorf("%w: percentage above 100", domain.ErrInvalidDiscount)
		}
	case domain.DiscountFixed:
	default:
		return fmt.Errorf("%w: unknown type %q", domain.ErrInvalidDiscount, d.Type)
	}
	return nil
}

// ComputeSellingResume prices a set of sale items. It reads no stock and is
// safe to call for every keystroke of a live preview. The discount is
// clamped to the subtotal so totals never go negative.
func ComputeSellingResume(items []domain.SaleItem, method domain.PaymentMethod, discount *domain.Discount, fees FeeTable) domain.SellingResume {
	lineTotals := make([]float64, 0, len(items))
	for _, item := range items {
		lineTotals = append(lineTotals, item.Subtotal)
	}
	subtotal := money.Sum(lineTotals...)

	discountValue := 0.0
	if discount != nil {
		switch discount.Type {
		case domain.DiscountPercentage:
			discountValue = money.Percent(subtotal, discount.Value)
		default:
			discountValue = money.Round(discount.Value)
		}
	}
	discountValue = math.Min(math.Max(discountValue, 0), subtotal)

	feePercent := fees.Percent(method)
	feeAmount := money.Percent(money.Sum(subtotal, -discountValue), feePercent)

	var snapshot *domain.Discount
	if discount != nil {
		d := *discount
		snapshot = &d
	}

	return domain.SellingResume{
		PaymentMethod: method,
		Discount:      snapshot,
		DiscountValue: discountValue,
		FeePercent:    feePercent,
		FeeAmount:     feeAmount,
		Subtotal:      subtotal,
		TotalValue:    money.Sum(subtotal, -discountValue, feeAmount),
	}
}
