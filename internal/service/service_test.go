package service

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"racikpos/backend/internal/domain"
	"racikpos/backend/internal/sales"
	"racikpos/backend/internal/store"
	"racikpos/backend/internal/store/memory"
)

type recordingArchive struct {
	archived []domain.Sale
	err      error
}

func (a *recordingArchive) Archive(_ context.Context, sale domain.Sale) error {
	if a.err != nil {
		return a.err
	}
	a.archived = append(a.archived, sale)
	return nil
}

type countingCache struct {
	entries map[string]domain.FinanceReport
	hits    int
	sets    int
}

func (c *countingCache) Get(_ context.Context, key string) (*domain.FinanceReport, bool, error) {
	report, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	c.hits++
	return &report, true, nil
}

func (c *countingCache) Set(_ context.Context, key string, value *domain.FinanceReport, _ time.Duration) error {
	c.entries[key] = *value
	c.sets++
	return nil
}

func newTestService() *Service {
	return newTestServiceWith(Options{})
}

func newTestServiceWith(opts Options) *Service {
	if opts.Fees == nil {
		opts.Fees = sales.FeeTable{domain.PaymentCreditCard: 3.5, domain.PaymentPix: 1}
	}
	if opts.ReservePercent == 0 {
		opts.ReservePercent = 10
	}
	if opts.DefaultMarginPercent == 0 {
		opts.DefaultMarginPercent = 50
	}
	if opts.LowStockRatio == 0 {
		opts.LowStockRatio = 0.2
	}
	return New(memory.NewSeeded(), opts)
}

func adminContext() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func cashierContext() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier})
}

func ingredient(t *testing.T, svc *Service, id string) domain.Ingredient {
	t.Helper()
	ing, err := svc.repo.GetIngredient(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return *ing
}

func TestConfirmSaleDepletesBatchStock(t *testing.T) {
	archived := &recordingArchive{}
	svc := newTestServiceWith(Options{Archive: archived})

	sale, err := svc.ConfirmSale(cashierContext(), domain.SaleRequest{
		Cart:    []domain.CartItem{{ProductID: "prd-cake", Quantity: 4}},
		Payment: domain.Payment{Method: domain.PaymentCash},
	})
	if err != nil {
		t.Fatalf("confirm sale: %v", err)
	}

	if sale.SellingResume.Subtotal != 12 || sale.SellingResume.TotalValue != 12 {
		t.Fatalf("unexpected resume: %+v", sale.SellingResume)
	}
	if sale.CreatedBy != "cashier" {
		t.Fatalf("expected sale attributed to cashier, got %q", sale.CreatedBy)
	}
	if got := ingredient(t, svc, "ing-flour").TotalQuantity; got != 4200 {
		t.Fatalf("expected 4200g flour left, got %v", got)
	}
	if len(archived.archived) != 1 || archived.archived[0].ID != sale.ID {
		t.Fatalf("expected sale to be archived, got %+v", archived.archived)
	}

	stored, err := svc.ListSales(context.Background(), sale.Date.Add(-time.Minute), sale.Date.Add(time.Minute), 10)
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected one stored sale, got %d err=%v", len(stored), err)
	}
}

func TestConfirmSaleAppliesFeeAndDiscount(t *testing.T) {
	svc := newTestService()

	sale, err := svc.ConfirmSale(cashierContext(), domain.SaleRequest{
		Cart: []domain.CartItem{{ProductID: "prd-brownie", Quantity: 2}},
		Payment: domain.Payment{
			Method:   domain.PaymentCreditCard,
			Discount: &domain.Discount{Type: domain.DiscountFixed, Value: 3},
		},
	})
	if err != nil {
		t.Fatalf("confirm sale: %v", err)
	}

	resume := sale.SellingResume
	if resume.Subtotal != 13 || resume.DiscountValue != 3 || resume.FeePercent != 3.5 {
		t.Fatalf("unexpected resume: %+v", resume)
	}
	if resume.FeeAmount != 0.35 || resume.TotalValue != 10.35 {
		t.Fatalf("unexpected fee or total: %+v", resume)
	}
	if got := ingredient(t, svc, "ing-eggs").TotalQuantity; got != 58 {
		t.Fatalf("expected 58 eggs left, got %v", got)
	}
}

func TestConfirmSaleRejectsInsufficientStockWithoutSideEffects(t *testing.T) {
	archived := &recordingArchive{}
	svc := newTestServiceWith(Options{Archive: archived})
	before := ingredient(t, svc, "ing-flour")

	_, err := svc.ConfirmSale(cashierContext(), domain.SaleRequest{
		Cart:    []domain.CartItem{{ProductID: "prd-cake", Quantity: 30}},
		Payment: domain.Payment{Method: domain.PaymentCash},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if missing := domain.MissingIngredients(err); !slices.Equal(missing, []string{"Flour"}) {
		t.Fatalf("unexpected missing ingredients: %v", missing)
	}

	after := ingredient(t, svc, "ing-flour")
	if after.TotalQuantity != before.TotalQuantity || after.Version != before.Version {
		t.Fatalf("flour changed on rejected sale: %+v", after)
	}
	if version, _ := svc.repo.SalesVersion(context.Background()); version != 0 {
		t.Fatalf("rejected sale must not be stored")
	}
	if len(archived.archived) != 0 {
		t.Fatalf("rejected sale must not be archived")
	}
}

func TestConfirmSaleSurvivesArchiveFailure(t *testing.T) {
	svc := newTestServiceWith(Options{Archive: &recordingArchive{err: errors.New("mongo down")}})

	_, err := svc.ConfirmSale(cashierContext(), domain.SaleRequest{
		Cart:    []domain.CartItem{{ProductID: "prd-brownie", Quantity: 1}},
		Payment: domain.Payment{Method: domain.PaymentPix},
	})
	if err != nil {
		t.Fatalf("archive failure must not fail the sale: %v", err)
	}
	if version, _ := svc.repo.SalesVersion(context.Background()); version != 1 {
		t.Fatalf("expected sale to be stored, version=%d", version)
	}
}

func TestConfirmSaleRejectsUnknownProductAndBadPayment(t *testing.T) {
	svc := newTestService()

	_, err := svc.ConfirmSale(cashierContext(), domain.SaleRequest{
		Cart:    []domain.CartItem{{ProductID: "prd-missing", Quantity: 1}},
		Payment: domain.Payment{Method: domain.PaymentCash},
	})
	if !errors.Is(err, domain.ErrUnknownProduct) {
		t.Fatalf("expected unknown product, got %v", err)
	}

	_, err = svc.ConfirmSale(cashierContext(), domain.SaleRequest{
		Cart:    []domain.CartItem{{ProductID: "prd-cake", Quantity: 1}},
		Payment: domain.Payment{Method: "voucher"},
	})
	if !errors.Is(err, domain.ErrInvalidPayment) {
		t.Fatalf("expected invalid payment, got %v", err)
	}
}

func TestValidateStockReportsMissingIngredients(t *testing.T) {
	svc := newTestService()

	check, err := svc.ValidateStock(context.Background(), []domain.CartItem{
		{ProductID: "prd-cake", Quantity: 20},
		{ProductID: "prd-brownie", Quantity: 21},
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if check.Valid || !slices.Equal(check.MissingIngredients, []string{"Flour"}) {
		t.Fatalf("expected flour shortage from combined demand, got %+v", check)
	}

	check, err = svc.ValidateStock(context.Background(), []domain.CartItem{{ProductID: "prd-cake", Quantity: 25}})
	if err != nil || !check.Valid {
		t.Fatalf("expected exact stock to be valid, got %+v err=%v", check, err)
	}
}

func TestPreviewDoesNotTouchStock(t *testing.T) {
	svc := newTestService()

	resume, err := svc.PreviewSellingResume(context.Background(),
		[]domain.CartItem{{ProductID: "prd-cake", Quantity: 100}},
		domain.Payment{Method: domain.PaymentCash},
	)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if resume.TotalValue != 300 {
		t.Fatalf("expected 300, got %v", resume.TotalValue)
	}
	if got := ingredient(t, svc, "ing-flour").TotalQuantity; got != 5000 {
		t.Fatalf("preview consumed flour: %v", got)
	}
}

func TestProduceBatchesConsumesAndCredits(t *testing.T) {
	svc := newTestService()

	result, err := svc.ProduceBatches(adminContext(), "prd-cake", 2)
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if result.UnitsProduced != 20 || result.ProducedQuantity != 20 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := ingredient(t, svc, "ing-flour").TotalQuantity; got != 1000 {
		t.Fatalf("expected 1000g flour left, got %v", got)
	}

	cake, _ := svc.repo.GetProduct(context.Background(), "prd-cake")
	if cake.Production.ProducedQuantity != 20 {
		t.Fatalf("produced quantity not stored: %d", cake.Production.ProducedQuantity)
	}

	_, err = svc.ProduceBatches(adminContext(), "prd-cake", 1)
	if !errors.Is(err, domain.ErrInsufficientIngredients) {
		t.Fatalf("expected insufficient ingredients, got %v", err)
	}

	_, err = svc.ProduceBatches(adminContext(), "prd-brownie", 1)
	if !errors.Is(err, domain.ErrInvalidProductConfiguration) {
		t.Fatalf("individual products are not produced ahead, got %v", err)
	}
}

func TestRegisterIngredientNormalizesDisplayUnit(t *testing.T) {
	svc := newTestService()

	_, err := svc.RegisterIngredient(cashierContext(), domain.IngredientCreateRequest{Name: "Cocoa", Unit: "kg", InitialQuantity: 2, InitialCost: 10})
	if !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected admin required, got %v", err)
	}

	cocoa, err := svc.RegisterIngredient(adminContext(), domain.IngredientCreateRequest{
		Name:            "Cocoa",
		Unit:            "kg",
		InitialQuantity: 2,
		InitialCost:     10,
		MaxQuantity:     5,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if cocoa.Unit != domain.UnitMass || cocoa.TotalQuantity != 2000 || cocoa.MaxQuantity != 5000 {
		t.Fatalf("unexpected cocoa: %+v", cocoa)
	}
	if math.Abs(cocoa.AverageUnitPrice-0.005) > 1e-9 || len(cocoa.Batches) != 1 {
		t.Fatalf("unexpected price or batches: %+v", cocoa)
	}

	_, err = svc.RegisterIngredient(adminContext(), domain.IngredientCreateRequest{Name: "cocoa", Unit: "mass"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate name conflict, got %v", err)
	}
	_, err = svc.RegisterIngredient(adminContext(), domain.IngredientCreateRequest{Name: "Milk", Unit: "bucket"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid unit, got %v", err)
	}
}

func TestRegisterPurchaseRecomputesAverage(t *testing.T) {
	svc := newTestService()

	flour, err := svc.RegisterPurchase(adminContext(), "ing-flour", domain.PurchaseRequest{
		Quantity: 1,
		Unit:     "kg",
		BuyPrice: 20,
		Supplier: "Mill Co",
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if flour.TotalQuantity != 6000 || len(flour.Batches) != 2 {
		t.Fatalf("unexpected flour: %+v", flour)
	}
	if math.Abs(flour.AverageUnitPrice-70.0/6000) > 1e-9 {
		t.Fatalf("unexpected average price %v", flour.AverageUnitPrice)
	}

	_, err = svc.RegisterPurchase(adminContext(), "ing-flour", domain.PurchaseRequest{Quantity: 1, Unit: "l", BuyPrice: 1})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected unit mismatch to be rejected, got %v", err)
	}
	_, err = svc.RegisterPurchase(adminContext(), "ing-missing", domain.PurchaseRequest{Quantity: 1, BuyPrice: 1})
	if !errors.Is(err, domain.ErrUnknownIngredient) {
		t.Fatalf("expected unknown ingredient, got %v", err)
	}
}

func TestCreateProductUsesDefaultMargin(t *testing.T) {
	svc := newTestService()

	product, err := svc.CreateProduct(adminContext(), domain.ProductCreateRequest{
		Name:          "Cookie",
		Mode:          domain.ModeBatch,
		YieldQuantity: 20,
		Ingredients: []domain.RecipeLine{
			{IngredientID: "ing-flour", Quantity: 500},
			{IngredientID: "ing-sugar", Quantity: 250},
		},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.Production.MarginPercent != 50 {
		t.Fatalf("expected default margin, got %v", product.Production.MarginPercent)
	}

	costing, err := svc.ProductCosting(context.Background(), product.UID)
	if err != nil {
		t.Fatalf("costing: %v", err)
	}
	// 500*0.01 + 250*0.004 = 6 per batch
	if math.Abs(costing.TotalCost-6) > 1e-9 || math.Abs(costing.UnitCost-0.3) > 1e-9 || costing.MaxProducibleBatches != 10 {
		t.Fatalf("unexpected costing: %+v", costing)
	}
}

func TestCreateProductValidation(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(cashierContext(), domain.ProductCreateRequest{Name: "Tart"})
	if !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected admin required, got %v", err)
	}

	_, err = svc.CreateProduct(adminContext(), domain.ProductCreateRequest{
		Name:        "Tart",
		Mode:        domain.ModeBatch,
		Ingredients: []domain.RecipeLine{{IngredientID: "ing-flour", Quantity: 100}},
	})
	if !errors.Is(err, domain.ErrInvalidProductConfiguration) {
		t.Fatalf("expected zero yield to be rejected, got %v", err)
	}

	_, err = svc.CreateProduct(adminContext(), domain.ProductCreateRequest{
		Name:        "Tart",
		Ingredients: []domain.RecipeLine{{IngredientID: "ing-cream", Quantity: 100}},
	})
	if !errors.Is(err, domain.ErrUnknownIngredient) {
		t.Fatalf("expected unknown ingredient, got %v", err)
	}
}

func TestUpdateProductPatchesFields(t *testing.T) {
	svc := newTestService()
	price := 4.25

	updated, err := svc.UpdateProduct(adminContext(), "prd-cake", domain.ProductUpdateRequest{UnitSellingPrice: &price})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Production.UnitSellingPrice != 4.25 || updated.Production.YieldQuantity != 10 || len(updated.Ingredients) != 1 {
		t.Fatalf("unexpected product: %+v", updated)
	}

	_, err = svc.UpdateProduct(adminContext(), "prd-missing", domain.ProductUpdateRequest{UnitSellingPrice: &price})
	if !errors.Is(err, domain.ErrUnknownProduct) {
		t.Fatalf("expected unknown product, got %v", err)
	}
}

func TestSettingsFallBackToDefaults(t *testing.T) {
	svc := newTestService()

	settings, err := svc.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.ReservePercent != 10 || settings.DefaultMarginPercent != 50 || !settings.UpdatedAt.IsZero() {
		t.Fatalf("unexpected defaults: %+v", settings)
	}

	_, err = svc.UpdateSettings(adminContext(), domain.Settings{
		FixedCosts: []domain.FixedCost{{Name: "Rent", Amount: 1000, Recurrence: "fortnightly"}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected unknown recurrence to be rejected, got %v", err)
	}

	saved, err := svc.UpdateSettings(adminContext(), domain.Settings{
		FixedCosts:     []domain.FixedCost{{Name: "Rent", Amount: 1000, Recurrence: domain.RecurrenceMonthly}},
		ReservePercent: 20,
	})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if saved.UpdatedAt.IsZero() || saved.VariableCosts == nil {
		t.Fatalf("unexpected saved settings: %+v", saved)
	}
}

func TestComputeFinanceSummaryUsesConfiguredReserve(t *testing.T) {
	svc := newTestService()

	summary, err := svc.ComputeFinanceSummary(context.Background(), domain.FinanceSummaryRequest{
		Sales: []domain.Sale{
			{SellingResume: domain.SellingResume{TotalValue: 4000}, Items: []domain.SaleItem{{Quantity: 100}}},
		},
		FixedCosts:    []domain.FixedCost{{Name: "Rent", Amount: 2000, Recurrence: domain.RecurrenceMonthly}},
		VariableCosts: []domain.VariableCost{{Name: "Packaging", Percentage: 20}},
	})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalVariableCost != 800 || summary.NetProfit != 1200 || summary.ValueToSave != 120 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.BreakEvenRevenue != 2500 {
		t.Fatalf("unexpected break-even: %v", summary.BreakEvenRevenue)
	}

	reserve := 150.0
	_, err = svc.ComputeFinanceSummary(context.Background(), domain.FinanceSummaryRequest{ReservePercent: &reserve})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected reserve out of range, got %v", err)
	}
}

func TestHugeCostAmountsAreRejected(t *testing.T) {
	svc := newTestService()
	huge := []domain.FixedCost{{Name: "Rent", Amount: 1e308, Recurrence: domain.RecurrenceDaily}}

	if _, err := svc.UpdateSettings(adminContext(), domain.Settings{FixedCosts: huge}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected huge fixed cost to be rejected, got %v", err)
	}
	if _, err := svc.CurrentMonthReport(context.Background()); err != nil {
		t.Fatalf("report after rejected settings: %v", err)
	}

	_, err := svc.ComputeFinanceSummary(context.Background(), domain.FinanceSummaryRequest{FixedCosts: huge})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected huge summary cost to be rejected, got %v", err)
	}
	_, err = svc.ComputeFinanceSummary(context.Background(), domain.FinanceSummaryRequest{
		Sales: []domain.Sale{{SellingResume: domain.SellingResume{TotalValue: math.Inf(1)}}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected infinite sale total to be rejected, got %v", err)
	}
}

func TestFinanceReportIsCachedUntilNextSale(t *testing.T) {
	summaryCache := &countingCache{entries: map[string]domain.FinanceReport{}}
	svc := newTestServiceWith(Options{Cache: summaryCache})
	ctx := cashierContext()

	if _, err := svc.ConfirmSale(ctx, domain.SaleRequest{
		Cart:    []domain.CartItem{{ProductID: "prd-cake", Quantity: 4}},
		Payment: domain.Payment{Method: domain.PaymentCash},
	}); err != nil {
		t.Fatalf("confirm sale: %v", err)
	}

	first, err := svc.CurrentMonthReport(ctx)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if first.Sales != 1 || first.Summary.TotalRevenue != 12 || first.Summary.ValueToSave != 1.2 {
		t.Fatalf("unexpected report: %+v", first)
	}
	if _, err := svc.CurrentMonthReport(ctx); err != nil {
		t.Fatalf("second report: %v", err)
	}
	if summaryCache.hits != 1 || summaryCache.sets != 1 {
		t.Fatalf("expected one hit and one set, got hits=%d sets=%d", summaryCache.hits, summaryCache.sets)
	}

	if _, err := svc.ConfirmSale(ctx, domain.SaleRequest{
		Cart:    []domain.CartItem{{ProductID: "prd-brownie", Quantity: 1}},
		Payment: domain.Payment{Method: domain.PaymentCash},
	}); err != nil {
		t.Fatalf("confirm sale: %v", err)
	}
	next, err := svc.CurrentMonthReport(ctx)
	if err != nil {
		t.Fatalf("report after sale: %v", err)
	}
	if next.Sales != 2 || summaryCache.sets != 2 {
		t.Fatalf("expected a fresh report after a new sale, got sales=%d sets=%d", next.Sales, summaryCache.sets)
	}
}

func TestLowStockCheckAuditsAlerts(t *testing.T) {
	svc := newTestService()

	alerts, err := svc.LowStockAlerts(context.Background())
	if err != nil || len(alerts) != 0 {
		t.Fatalf("expected no alerts on seeded stock, got %+v err=%v", alerts, err)
	}

	if _, err := svc.ProduceBatches(adminContext(), "prd-cake", 2); err != nil {
		t.Fatalf("produce: %v", err)
	}
	count, err := svc.CheckLowStock(context.Background())
	if err != nil {
		t.Fatalf("check low stock: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one alert, got %d", count)
	}

	logs, err := svc.ListAuditLogs(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("audit logs: %v", err)
	}
	actions := make([]string, 0, len(logs))
	for _, entry := range logs {
		actions = append(actions, entry.Action)
	}
	if !slices.Contains(actions, "low_stock_alert") || !slices.Contains(actions, "production") {
		t.Fatalf("unexpected audit actions: %v", actions)
	}
}

func TestListAuditLogsRejectsBadDate(t *testing.T) {
	svc := newTestService()
	if _, err := svc.ListAuditLogs(context.Background(), "18/10/2026", 10); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid date, got %v", err)
	}
}

func TestMonthRange(t *testing.T) {
	from, to := MonthRange(time.Date(2026, 12, 18, 15, 0, 0, 0, time.UTC))
	if !from.Equal(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)) || !to.Equal(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected range %s - %s", from, to)
	}
}
