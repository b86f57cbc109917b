package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"racikpos/backend/internal/archive"
	"racikpos/backend/internal/cache"
	"racikpos/backend/internal/costing"
	"racikpos/backend/internal/domain"
	"racikpos/backend/internal/finance"
	"racikpos/backend/internal/ledger"
	"racikpos/backend/internal/production"
	"racikpos/backend/internal/sales"
	"racikpos/backend/internal/store"
	"racikpos/backend/internal/units"
	"racikpos/backend/internal/xid"
)

var ErrAdminRequired = errors.New("admin role required")

// maxAmount bounds every configured or submitted money amount.
const maxAmount = 1e12

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Fees                 sales.FeeTable
	ReservePercent       float64
	DefaultMarginPercent float64
	LowStockRatio        float64
	Cache                cache.SummaryCache
	CacheTTL             time.Duration
	Archive              archive.SaleArchive
	Logger               *zap.Logger
}

// Service is the single entry point for everything that reads or moves
// stock. mu serializes validate-then-mutate sequences within the process;
// ingredient versions in the store catch writers in other processes.
type Service struct {
	mu sync.Mutex

	repo          store.Repository
	processor     *sales.Processor
	finance       *finance.Aggregator
	cache         cache.SummaryCache
	cacheTTL      time.Duration
	archive       archive.SaleArchive
	logger        *zap.Logger
	defaults      domain.Settings
	lowStockRatio float64
	now           func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopSummaryCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Archive == nil {
		opts.Archive = archive.NoopSaleArchive{}
	}

	return &Service{
		repo:      repo,
		processor: sales.NewProcessor(opts.Fees),
		finance:   finance.NewAggregator(opts.Logger.Named("finance")),
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		archive:   opts.Archive,
		logger:    opts.Logger,
		defaults: domain.Settings{
			FixedCosts:           []domain.FixedCost{},
			VariableCosts:        []domain.VariableCost{},
			ReservePercent:       opts.ReservePercent,
			DefaultMarginPercent: opts.DefaultMarginPercent,
		},
		lowStockRatio: opts.LowStockRatio,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	return s.repo.ListIngredients(ctx)
}

// RegisterIngredient creates an ingredient. Unit is either a dimension
// (mass, volume, count) or a display unit such as kg, in which case the
// initial and max quantities are given in that unit. InitialCost is the
// total paid for the initial quantity.
func (s *Service) RegisterIngredient(ctx context.Context, req domain.IngredientCreateRequest) (domain.Ingredient, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Ingredient{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Ingredient{}, fmt.Errorf("%w: name is required", store.ErrInvalidInput)
	}
	if !nonNegative(req.InitialQuantity, req.InitialCost, req.MaxQuantity) {
		return domain.Ingredient{}, fmt.Errorf("%w: quantities and cost must not be negative", domain.ErrInvalidQuantity)
	}
	dimension, displayUnit, err := resolveUnit(req.Unit)
	if err != nil {
		return domain.Ingredient{}, err
	}
	qty, err := units.NormalizeFor(req.InitialQuantity, displayUnit, dimension)
	if err != nil {
		return domain.Ingredient{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	maxQty, err := units.NormalizeFor(req.MaxQuantity, displayUnit, dimension)
	if err != nil {
		return domain.Ingredient{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	price := 0.0
	if qty > 0 {
		price = req.InitialCost / qty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ing, err := ledger.New(nil).Register(domain.Ingredient{
		ID:               xid.New("ing"),
		Name:             name,
		Unit:             dimension,
		TotalQuantity:    qty,
		AverageUnitPrice: price,
		MaxQuantity:      maxQty,
		CreatedAt:        s.now(),
	})
	if err != nil {
		return domain.Ingredient{}, err
	}
	created, err := s.repo.CreateIngredient(ctx, ing)
	if err != nil {
		return domain.Ingredient{}, err
	}

	s.logAudit(ctx, "ingredient_create", "ingredient", created.ID, fmt.Sprintf("name=%s,unit=%s,qty=%g", created.Name, created.Unit, created.TotalQuantity))
	return *created, nil
}

// RegisterPurchase records a delivery as a new batch of the ingredient.
func (s *Service) RegisterPurchase(ctx context.Context, ingredientID string, req domain.PurchaseRequest) (domain.Ingredient, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Ingredient{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.repo.GetIngredient(ctx, ingredientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Ingredient{}, fmt.Errorf("%w: %s", domain.ErrUnknownIngredient, ingredientID)
		}
		return domain.Ingredient{}, err
	}
	qty, err := units.NormalizeFor(req.Quantity, req.Unit, current.Unit)
	if err != nil {
		return domain.Ingredient{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	batch := domain.PurchaseBatch{
		OriginalQuantity: qty,
		BuyPrice:         req.BuyPrice,
		Supplier:         req.Supplier,
	}
	if req.PurchaseDate != nil {
		batch.PurchaseDate = req.PurchaseDate.UTC()
	}

	l := ledger.New([]domain.Ingredient{*current})
	recorded, err := l.RegisterPurchase(ingredientID, batch)
	if err != nil {
		return domain.Ingredient{}, err
	}
	if err := s.repo.SaveIngredients(ctx, l.Snapshot(ingredientID)); err != nil {
		return domain.Ingredient{}, err
	}

	updated, err := s.repo.GetIngredient(ctx, ingredientID)
	if err != nil {
		return domain.Ingredient{}, err
	}
	s.logAudit(ctx, "ingredient_purchase", "ingredient", ingredientID, fmt.Sprintf("batch=%s,qty=%g,price=%.2f,supplier=%s", recorded.ID, recorded.OriginalQuantity, recorded.BuyPrice, recorded.Supplier))
	return *updated, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	margin := 0.0
	if req.MarginPercent != nil {
		margin = *req.MarginPercent
	} else {
		settings, err := s.GetSettings(ctx)
		if err != nil {
			return domain.Product{}, err
		}
		margin = settings.DefaultMarginPercent
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.ModeIndividual
	}

	product := domain.Product{
		UID:         xid.New("prd"),
		Name:        strings.TrimSpace(req.Name),
		Category:    strings.TrimSpace(req.Category),
		Ingredients: slices.Clone(req.Ingredients),
		Production: domain.Production{
			Mode:             mode,
			YieldQuantity:    req.YieldQuantity,
			MarginPercent:    margin,
			UnitSellingPrice: req.UnitSellingPrice,
		},
	}
	if err := s.validateProduct(ctx, product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_create", "product", created.UID, fmt.Sprintf("name=%s,mode=%s,yield=%d", created.Name, created.Production.Mode, created.Production.YieldQuantity))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, uid string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.getProduct(ctx, uid)
	if err != nil {
		return domain.Product{}, err
	}

	next := existing
	next.Ingredients = slices.Clone(existing.Ingredients)
	if req.Name != nil {
		next.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		next.Category = strings.TrimSpace(*req.Category)
	}
	if req.Ingredients != nil {
		next.Ingredients = slices.Clone(req.Ingredients)
	}
	if req.Mode != nil {
		next.Production.Mode = *req.Mode
	}
	if req.YieldQuantity != nil {
		next.Production.YieldQuantity = *req.YieldQuantity
	}
	if req.MarginPercent != nil {
		next.Production.MarginPercent = *req.MarginPercent
	}
	if req.UnitSellingPrice != nil {
		next.Production.UnitSellingPrice = *req.UnitSellingPrice
	}
	if err := s.validateProduct(ctx, next); err != nil {
		return domain.Product{}, err
	}

	updated, err := s.repo.UpdateProduct(ctx, next)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_update", "product", updated.UID, fmt.Sprintf("price=%.2f,margin=%.2f", updated.Production.UnitSellingPrice, updated.Production.MarginPercent))
	return *updated, nil
}

// ProductCosting prices a product against current stock.
func (s *Service) ProductCosting(ctx context.Context, uid string) (domain.ProductCosting, error) {
	product, err := s.getProduct(ctx, uid)
	if err != nil {
		return domain.ProductCosting{}, err
	}
	l, err := s.loadLedger(ctx)
	if err != nil {
		return domain.ProductCosting{}, err
	}
	return costing.Evaluate(product, l), nil
}

// ProduceBatches runs count recipe batches of a batch-mode product.
func (s *Service) ProduceBatches(ctx context.Context, uid string, count int) (domain.ProductionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, err := s.getProduct(ctx, uid)
	if err != nil {
		return domain.ProductionResult{}, err
	}
	l, err := s.loadLedger(ctx)
	if err != nil {
		return domain.ProductionResult{}, err
	}

	updated, result, err := production.ProduceBatches(product, l, count)
	if err != nil {
		return domain.ProductionResult{}, err
	}
	if err := s.repo.CommitProduction(ctx, updated, l.Snapshot(recipeIngredientIDs(updated)...)); err != nil {
		return domain.ProductionResult{}, err
	}

	s.logger.Info("batches produced",
		zap.String("product", uid),
		zap.Int("batches", result.Batches),
		zap.Int("units", result.UnitsProduced),
	)
	s.logAudit(ctx, "production", "product", uid, fmt.Sprintf("batches=%d,units=%d", result.Batches, result.UnitsProduced))
	return result, nil
}

// ValidateStock reports whether current stock covers the cart. It takes the
// same lock as ConfirmSale so it never sees a half-applied sale.
func (s *Service) ValidateStock(ctx context.Context, cart []domain.CartItem) (domain.StockCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	catalog, err := s.loadCatalog(ctx)
	if err != nil {
		return domain.StockCheck{}, err
	}
	l, err := s.loadLedger(ctx)
	if err != nil {
		return domain.StockCheck{}, err
	}
	return s.processor.Validate(cart, catalog, l)
}

// PreviewSellingResume prices a cart without checking or reserving stock.
func (s *Service) PreviewSellingResume(ctx context.Context, cart []domain.CartItem, payment domain.Payment) (domain.SellingResume, error) {
	catalog, err := s.loadCatalog(ctx)
	if err != nil {
		return domain.SellingResume{}, err
	}
	l, err := s.loadLedger(ctx)
	if err != nil {
		return domain.SellingResume{}, err
	}
	return s.processor.Preview(cart, payment, catalog, l)
}

// ConfirmSale validates and commits a sale in one critical section. On any
// failure nothing is stored.
func (s *Service) ConfirmSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	catalog, err := s.loadCatalog(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	l, err := s.loadLedger(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	sale, attempt, err := s.processor.Commit(req.Cart, req.Payment, catalog, l)
	if err != nil {
		s.logger.Info("sale rejected",
			zap.String("state", string(attempt.State)),
			zap.Strings("missing", domain.MissingIngredients(err)),
			zap.Error(err),
		)
		return domain.Sale{}, err
	}
	if actor, ok := ActorFromContext(ctx); ok {
		sale.CreatedBy = actor.Username
	}

	touched := make([]string, 0, 8)
	for _, item := range sale.Items {
		touched = append(touched, recipeIngredientIDs(item.Product)...)
	}
	if err := s.repo.CommitSale(ctx, sale, l.Snapshot(touched...)); err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale", "sale", sale.ID, fmt.Sprintf("method=%s,units=%d,total=%.2f", sale.SellingResume.PaymentMethod, sale.UnitsSold(), sale.SellingResume.TotalValue))
	if err := s.archive.Archive(ctx, sale); err != nil {
		s.logger.Warn("failed to archive sale", zap.String("sale", sale.ID), zap.Error(err))
	}
	return sale, nil
}

func (s *Service) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: from must be before to", store.ErrInvalidInput)
	}
	return s.repo.ListSales(ctx, from, to, limit)
}

// ComputeFinanceSummary summarizes explicitly supplied sales and costs. A
// nil reserve falls back to the configured reserve.
func (s *Service) ComputeFinanceSummary(ctx context.Context, req domain.FinanceSummaryRequest) (domain.FinanceSummary, error) {
	reserve := 0.0
	if req.ReservePercent != nil {
		reserve = *req.ReservePercent
	} else {
		settings, err := s.GetSettings(ctx)
		if err != nil {
			return domain.FinanceSummary{}, err
		}
		reserve = settings.ReservePercent
	}
	if reserve < 0 || reserve > 100 {
		return domain.FinanceSummary{}, fmt.Errorf("%w: reserve_percent must be within [0,100]", store.ErrInvalidInput)
	}
	if err := validateCostAmounts(req.FixedCosts, req.VariableCosts); err != nil {
		return domain.FinanceSummary{}, err
	}
	for _, sale := range req.Sales {
		if !withinAmount(sale.SellingResume.TotalValue) {
			return domain.FinanceSummary{}, fmt.Errorf("%w: sale total must be within [0,%g]", store.ErrInvalidInput, maxAmount)
		}
	}
	return s.finance.Summarize(req.Sales, req.FixedCosts, req.VariableCosts, reserve), nil
}

// FinanceReport summarizes stored sales in [from, to) against the saved
// cost settings. Reports are cached per sales version and settings revision.
func (s *Service) FinanceReport(ctx context.Context, from time.Time, to time.Time) (domain.FinanceReport, error) {
	if !from.Before(to) {
		return domain.FinanceReport{}, fmt.Errorf("%w: from must be before to", store.ErrInvalidInput)
	}
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return domain.FinanceReport{}, err
	}
	version, err := s.repo.SalesVersion(ctx)
	if err != nil {
		return domain.FinanceReport{}, err
	}

	key := cache.ReportKey(from, to, version, settings.UpdatedAt)
	if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("finance cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return *cached, nil
	}

	sold, err := s.repo.ListSales(ctx, from, to, 0)
	if err != nil {
		return domain.FinanceReport{}, err
	}
	report := s.finance.Report(sold, from, to, settings)
	if err := s.cache.Set(ctx, key, &report, s.cacheTTL); err != nil {
		s.logger.Warn("finance cache write failed", zap.String("key", key), zap.Error(err))
	}
	return report, nil
}

// CurrentMonthReport is the report for the calendar month containing now.
func (s *Service) CurrentMonthReport(ctx context.Context) (domain.FinanceReport, error) {
	from, to := MonthRange(s.now())
	return s.FinanceReport(ctx, from, to)
}

// GetSettings returns the saved cost settings, or the configured defaults
// when none were saved yet.
func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	settings, err := s.repo.GetSettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		defaults := s.defaults
		defaults.FixedCosts = slices.Clone(s.defaults.FixedCosts)
		defaults.VariableCosts = slices.Clone(s.defaults.VariableCosts)
		return defaults, nil
	}
	if err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Settings{}, err
	}
	if err := validateSettings(settings); err != nil {
		return domain.Settings{}, err
	}
	if settings.FixedCosts == nil {
		settings.FixedCosts = []domain.FixedCost{}
	}
	if settings.VariableCosts == nil {
		settings.VariableCosts = []domain.VariableCost{}
	}
	settings.UpdatedAt = s.now()

	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return domain.Settings{}, err
	}
	s.logAudit(ctx, "settings_update", "settings", "finance", fmt.Sprintf("fixed=%d,variable=%d,reserve=%.2f", len(settings.FixedCosts), len(settings.VariableCosts), settings.ReservePercent))
	return settings, nil
}

// LowStockAlerts lists ingredients whose stock fell below the configured
// share of their max quantity. Ingredients without a max are never alerted.
func (s *Service) LowStockAlerts(ctx context.Context) ([]domain.LowStockAlert, error) {
	ingredients, err := s.repo.ListIngredients(ctx)
	if err != nil {
		return nil, err
	}

	alerts := make([]domain.LowStockAlert, 0, len(ingredients))
	for _, ing := range ingredients {
		if ing.MaxQuantity <= 0 {
			continue
		}
		ratio := ing.TotalQuantity / ing.MaxQuantity
		if ratio >= s.lowStockRatio {
			continue
		}
		alerts = append(alerts, domain.LowStockAlert{
			IngredientID:  ing.ID,
			Name:          ing.Name,
			TotalQuantity: ing.TotalQuantity,
			MaxQuantity:   ing.MaxQuantity,
			Ratio:         math.Round(ratio*1000) / 1000,
		})
	}
	slices.SortFunc(alerts, func(a, b domain.LowStockAlert) int {
		if a.Ratio != b.Ratio {
			if a.Ratio < b.Ratio {
				return -1
			}
			return 1
		}
		return strings.Compare(a.IngredientID, b.IngredientID)
	})
	return alerts, nil
}

// CheckLowStock logs and audits every current low-stock alert.
func (s *Service) CheckLowStock(ctx context.Context) (int, error) {
	alerts, err := s.LowStockAlerts(ctx)
	if err != nil {
		return 0, err
	}
	for _, alert := range alerts {
		s.logger.Warn("ingredient low on stock",
			zap.String("ingredient", alert.IngredientID),
			zap.String("name", alert.Name),
			zap.Float64("total_quantity", alert.TotalQuantity),
			zap.Float64("max_quantity", alert.MaxQuantity),
		)
		s.logAudit(ctx, "low_stock_alert", "ingredient", alert.IngredientID, fmt.Sprintf("qty=%g,max=%g", alert.TotalQuantity, alert.MaxQuantity))
	}
	return len(alerts), nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// MonthRange returns the first instant of t's month and of the next one.
func MonthRange(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

func (s *Service) getProduct(ctx context.Context, uid string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrUnknownProduct, uid)
		}
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) loadLedger(ctx context.Context) (*ledger.Ledger, error) {
	ingredients, err := s.repo.ListIngredients(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.New(ingredients), nil
}

func (s *Service) loadCatalog(ctx context.Context) (sales.Catalog, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	catalog := make(sales.Catalog, len(products))
	for _, p := range products {
		catalog[p.UID] = p
	}
	return catalog, nil
}

func (s *Service) validateProduct(ctx context.Context, product domain.Product) error {
	if product.Name == "" {
		return fmt.Errorf("%w: name is required", store.ErrInvalidInput)
	}
	if err := costing.ValidateProduction(product.Production); err != nil {
		return err
	}
	if !nonNegative(product.Production.MarginPercent, product.Production.UnitSellingPrice) {
		return fmt.Errorf("%w: margin and price must not be negative", domain.ErrInvalidProductConfiguration)
	}

	ingredients, err := s.repo.ListIngredients(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(ingredients))
	for _, ing := range ingredients {
		known[ing.ID] = struct{}{}
	}
	return costing.ValidateRecipe(product.Ingredients, func(id string) bool {
		_, ok := known[id]
		return ok
	})
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrAdminRequired
	}
	return nil
}

// resolveUnit accepts a dimension or a display unit and returns the
// dimension plus the display unit quantities are expressed in ("" for base).
func resolveUnit(raw string) (domain.Unit, string, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if dimension := domain.Unit(raw); dimension.Valid() {
		return dimension, "", nil
	}
	u, err := units.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	dimension, err := units.Dimension(u)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return dimension, string(u), nil
}

func validateSettings(settings domain.Settings) error {
	if settings.ReservePercent < 0 || settings.ReservePercent > 100 {
		return fmt.Errorf("%w: reserve_percent must be within [0,100]", store.ErrInvalidInput)
	}
	if !nonNegative(settings.DefaultMarginPercent) {
		return fmt.Errorf("%w: default_margin_percent must not be negative", store.ErrInvalidInput)
	}
	for _, c := range settings.FixedCosts {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: fixed cost needs a name", store.ErrInvalidInput)
		}
		if _, ok := finance.MonthlyEquivalent(c.Amount, c.Recurrence); !ok {
			return fmt.Errorf("%w: fixed cost %s has unknown recurrence %q", store.ErrInvalidInput, c.Name, c.Recurrence)
		}
	}
	for _, c := range settings.VariableCosts {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: variable cost needs a name", store.ErrInvalidInput)
		}
	}
	return validateCostAmounts(settings.FixedCosts, settings.VariableCosts)
}

// validateCostAmounts keeps cost figures finite and below maxAmount.
func validateCostAmounts(fixed []domain.FixedCost, variable []domain.VariableCost) error {
	for _, c := range fixed {
		if !withinAmount(c.Amount) {
			return fmt.Errorf("%w: fixed cost %s must be within [0,%g]", store.ErrInvalidInput, c.Name, maxAmount)
		}
	}
	for _, c := range variable {
		if !nonNegative(c.Percentage) || c.Percentage > 100 || !withinAmount(c.FixedValuePerUnit) {
			return fmt.Errorf("%w: variable cost %s is out of range", store.ErrInvalidInput, c.Name)
		}
	}
	return nil
}

func withinAmount(v float64) bool {
	return nonNegative(v) && v <= maxAmount
}

func recipeIngredientIDs(product domain.Product) []string {
	ids := make([]string, 0, len(product.Ingredients))
	for _, line := range product.Ingredients {
		ids = append(ids, line.IngredientID)
	}
	return ids
}

func nonNegative(values ...float64) bool {
	for _, v := range values {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
