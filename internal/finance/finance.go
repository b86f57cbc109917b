// Package finance rolls committed sales and configured costs into the
// monthly summary shown on the dashboard.
package finance

import (
	"math"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"racikpos/backend/internal/domain"
	"racikpos/backend/internal/money"
)

// weeksPerMonth is the average number of weeks in a month.
const weeksPerMonth = 4.33

type Aggregator struct {
	logger *zap.Logger
}

func NewAggregator(logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{logger: logger}
}

// TotalRevenue sums the charged total of every sale.
func TotalRevenue(sales []domain.Sale) float64 {
	totals := make([]float64, 0, len(sales))
	for _, sale := range sales {
		totals = append(totals, sale.SellingResume.TotalValue)
	}
	return money.Sum(totals...)
}

// TotalVariableCost applies percentage costs to revenue and per-unit costs
// to units sold.
func TotalVariableCost(configs []domain.VariableCost, totalRevenue float64, totalUnitsSold int) float64 {
	parts := make([]float64, 0, 2*len(configs))
	for _, c := range configs {
		parts = append(parts, money.Percent(totalRevenue, c.Percentage))
		parts = append(parts, money.Mul(c.FixedValuePerUnit, float64(totalUnitsSold)))
	}
	return money.Sum(parts...)
}

// MonthlyEquivalent converts a recurring amount to a monthly figure. A
// product that overflows is clamped to the largest float64.
func MonthlyEquivalent(amount float64, recurrence domain.Recurrence) (float64, bool) {
	var monthly float64
	switch domain.Recurrence(strings.ToLower(string(recurrence))) {
	case domain.RecurrenceMonthly:
		monthly = amount
	case domain.RecurrenceAnnual:
		monthly = amount / 12
	case domain.RecurrenceWeekly:
		monthly = amount * weeksPerMonth
	case domain.RecurrenceDaily:
		monthly = amount * 30
	default:
		return 0, false
	}
	if math.IsInf(monthly, 0) {
		return math.Copysign(math.MaxFloat64, monthly), true
	}
	return money.Finite(monthly), true
}

// TotalFixedCost normalizes every cost to a month and sums them. Entries
// with an unknown recurrence are logged and contribute nothing.
func (a *Aggregator) TotalFixedCost(configs []domain.FixedCost) float64 {
	parts := make([]float64, 0, len(configs))
	for _, c := range configs {
		monthly, ok := MonthlyEquivalent(c.Amount, c.Recurrence)
		if !ok {
			a.logger.Warn("skipping fixed cost with unknown recurrence",
				zap.String("name", c.Name),
				zap.String("recurrence", string(c.Recurrence)),
			)
			continue
		}
		parts = append(parts, monthly)
	}
	return money.Sum(parts...)
}

// BreakEvenRevenue is the revenue at which net profit is zero, using the
// contribution-margin method. Degenerate inputs yield 0.
func BreakEvenRevenue(fixedCost float64, variableCost float64, totalRevenue float64) float64 {
	if fixedCost <= 0 || totalRevenue <= 0 {
		return 0
	}
	contributionMargin := 1 - variableCost/totalRevenue
	if contributionMargin <= 0 {
		return 0
	}
	return money.Round(money.Finite(fixedCost / contributionMargin))
}

// Summarize computes every summary figure for a set of sales.
func (a *Aggregator) Summarize(sales []domain.Sale, fixed []domain.FixedCost, variable []domain.VariableCost, reservePercent float64) domain.FinanceSummary {
	units := 0
	for _, sale := range sales {
		units += sale.UnitsSold()
	}

	revenue := TotalRevenue(sales)
	variableCost := TotalVariableCost(variable, revenue, units)
	fixedCost := a.TotalFixedCost(fixed)
	gross := money.Sum(revenue, -variableCost)
	net := money.Sum(gross, -fixedCost)

	margin := 0.0
	if revenue > 0 {
		margin = money.Round(money.Finite(net / revenue * 100))
	}

	return domain.FinanceSummary{
		TotalRevenue:      revenue,
		TotalVariableCost: variableCost,
		TotalFixedCost:    fixedCost,
		GrossProfit:       gross,
		NetProfit:         net,
		MarginPercent:     margin,
		ValueToSave:       money.Percent(net, reservePercent),
		BreakEvenRevenue:  BreakEvenRevenue(fixedCost, variableCost, revenue),
	}
}

// Report adds per-payment and per-product breakdowns to the summary of the
// sales dated in [from, to).
func (a *Aggregator) Report(sales []domain.Sale, from time.Time, to time.Time, settings domain.Settings) domain.FinanceReport {
	inPeriod := make([]domain.Sale, 0, len(sales))
	for _, sale := range sales {
		if sale.Date.Before(from) || !sale.Date.Before(to) {
			continue
		}
		inPeriod = append(inPeriod, sale)
	}

	report := domain.FinanceReport{
		From:      from,
		To:        to,
		Sales:     int64(len(inPeriod)),
		Summary:   a.Summarize(inPeriod, settings.FixedCosts, settings.VariableCosts, settings.ReservePercent),
		ByPayment: make([]domain.PaymentBreakdown, 0, len(domain.PaymentMethods)),
		ByProduct: make([]domain.ProductBreakdown, 0, 16),
	}

	byPayment := map[domain.PaymentMethod]*domain.PaymentBreakdown{}
	byProduct := map[string]*domain.ProductBreakdown{}
	for _, sale := range inPeriod {
		method := sale.SellingResume.PaymentMethod
		payment := byPayment[method]
		if payment == nil {
			payment = &domain.PaymentBreakdown{PaymentMethod: method}
			byPayment[method] = payment
		}
		payment.Sales++
		payment.TotalValue = money.Sum(payment.TotalValue, sale.SellingResume.TotalValue)
		payment.FeeAmount = money.Sum(payment.FeeAmount, sale.SellingResume.FeeAmount)

		for _, item := range sale.Items {
			report.UnitsSold += int64(item.Quantity)
			product := byProduct[item.Product.UID]
			if product == nil {
				product = &domain.ProductBreakdown{ProductUID: item.Product.UID, Name: item.Product.Name}
				byProduct[item.Product.UID] = product
			}
			product.Units += int64(item.Quantity)
			product.Revenue = money.Sum(product.Revenue, item.Subtotal)
		}
	}

	for _, entry := range byPayment {
		report.ByPayment = append(report.ByPayment, *entry)
	}
	for _, entry := range byProduct {
		report.ByProduct = append(report.ByProduct, *entry)
	}
	slices.SortFunc(report.ByPayment, func(a, b domain.PaymentBreakdown) int {
		return strings.Compare(string(a.PaymentMethod), string(b.PaymentMethod))
	})
	slices.SortFunc(report.ByProduct, func(a, b domain.ProductBreakdown) int {
		if a.Revenue != b.Revenue {
			if a.Revenue > b.Revenue {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ProductUID, b.ProductUID)
	})
	return report
}
