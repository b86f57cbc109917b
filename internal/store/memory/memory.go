package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"racikpos/backend/internal/domain"
	"racikpos/backend/internal/store"
	"racikpos/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	ingredients     map[string]domain.Ingredient
	products        map[string]domain.Product
	sales           []domain.Sale
	settings        *domain.Settings
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
	now             func() time.Time
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD;
// when unset, dev defaults are used and a warning is logged.
func seedUsers() map[string]domain.UserAccount {
	log := zap.L().Named("store.memory")
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// New returns an empty store with the seed users only.
func New() *Store {
	return &Store{
		ingredients:     make(map[string]domain.Ingredient),
		products:        make(map[string]domain.Product),
		sales:           make([]domain.Sale, 0, 128),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded returns a store holding a small demo bakery.
func NewSeeded() *Store {
	s := New()
	opened := s.now().AddDate(0, 0, -7)

	for _, ing := range []domain.Ingredient{
		{ID: "ing-flour", Name: "Flour", Unit: domain.UnitMass, TotalQuantity: 5000, AverageUnitPrice: 0.01, MaxQuantity: 10000},
		{ID: "ing-sugar", Name: "Sugar", Unit: domain.UnitMass, TotalQuantity: 3000, AverageUnitPrice: 0.004, MaxQuantity: 5000},
		{ID: "ing-eggs", Name: "Eggs", Unit: domain.UnitCount, TotalQuantity: 60, AverageUnitPrice: 0.5, MaxQuantity: 120},
		{ID: "ing-butter", Name: "Butter", Unit: domain.UnitMass, TotalQuantity: 2000, AverageUnitPrice: 0.04, MaxQuantity: 4000},
	} {
		ing.Batches = []domain.PurchaseBatch{{
			ID:               "batch-opening-" + strings.TrimPrefix(ing.ID, "ing-"),
			PurchaseDate:     opened,
			BuyPrice:         ing.TotalQuantity * ing.AverageUnitPrice,
			OriginalQuantity: ing.TotalQuantity,
			CurrentQuantity:  ing.TotalQuantity,
			UnitPrice:        ing.AverageUnitPrice,
			Supplier:         "opening",
		}}
		ing.Version = 1
		ing.CreatedAt = opened
		ing.UpdatedAt = opened
		s.ingredients[ing.ID] = ing
	}

	for _, p := range []domain.Product{
		{
			UID:         "prd-cake",
			Name:        "Cake",
			Category:    "cakes",
			Ingredients: []domain.RecipeLine{{IngredientID: "ing-flour", Quantity: 2000}},
			Production:  domain.Production{Mode: domain.ModeBatch, YieldQuantity: 10, MarginPercent: 50},
		},
		{
			UID:      "prd-brownie",
			Name:     "Brownie",
			Category: "pastry",
			Ingredients: []domain.RecipeLine{
				{IngredientID: "ing-flour", Quantity: 50},
				{IngredientID: "ing-sugar", Quantity: 40},
				{IngredientID: "ing-eggs", Quantity: 1},
				{IngredientID: "ing-butter", Quantity: 30},
			},
			Production: domain.Production{Mode: domain.ModeIndividual, MarginPercent: 60, UnitSellingPrice: 6.5},
		},
	} {
		p.CreatedAt = opened
		p.UpdatedAt = opened
		s.products[p.UID] = p
	}
	return s
}

func (s *Store) ListIngredients(_ context.Context) ([]domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ingredients := make([]domain.Ingredient, 0, len(s.ingredients))
	for _, ing := range s.ingredients {
		ingredients = append(ingredients, cloneIngredient(ing))
	}
	slices.SortFunc(ingredients, func(a, b domain.Ingredient) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
	return ingredients, nil
}

func (s *Store) GetIngredient(_ context.Context, id string) (*domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ing, exists := s.ingredients[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	dup := cloneIngredient(ing)
	return &dup, nil
}

func (s *Store) CreateIngredient(_ context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ingredient.ID == "" || strings.TrimSpace(ingredient.Name) == "" || !ingredient.Unit.Valid() {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.ingredients[ingredient.ID]; exists {
		return nil, fmt.Errorf("%w: ingredient %s exists", store.ErrConflict, ingredient.ID)
	}
	for _, existing := range s.ingredients {
		if strings.EqualFold(existing.Name, ingredient.Name) {
			return nil, fmt.Errorf("%w: ingredient %q exists", store.ErrConflict, ingredient.Name)
		}
	}

	now := s.now()
	ingredient.Version = 1
	ingredient.CreatedAt = now
	ingredient.UpdatedAt = now
	s.ingredients[ingredient.ID] = cloneIngredient(ingredient)
	created := cloneIngredient(ingredient)
	return &created, nil
}

func (s *Store) SaveIngredients(_ context.Context, ingredients []domain.Ingredient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkVersionsLocked(ingredients); err != nil {
		return err
	}
	s.applyIngredientsLocked(ingredients)
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, uid string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[uid]
	if !exists {
		return nil, store.ErrNotFound
	}
	dup := cloneProduct(product)
	return &dup, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.UID == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.UID]; exists {
		return nil, fmt.Errorf("%w: product %s exists", store.ErrConflict, product.UID)
	}

	now := s.now()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.UID] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.UID == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	existing, exists := s.products[product.UID]
	if !exists {
		return nil, store.ErrNotFound
	}

	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = s.now()
	s.products[product.UID] = cloneProduct(product)
	updated := cloneProduct(product)
	return &updated, nil
}

// CommitSale stores the sale and the depleted ingredients as one step.
func (s *Store) CommitSale(_ context.Context, sale domain.Sale, ingredients []domain.Ingredient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" || len(sale.Items) == 0 {
		return store.ErrInvalidInput
	}
	for _, existing := range s.sales {
		if existing.ID == sale.ID {
			return fmt.Errorf("%w: sale %s exists", store.ErrConflict, sale.ID)
		}
	}
	if err := s.checkVersionsLocked(ingredients); err != nil {
		return err
	}

	s.applyIngredientsLocked(ingredients)
	s.sales = append(s.sales, cloneSale(sale))
	return nil
}

func (s *Store) CommitProduction(_ context.Context, product domain.Product, ingredients []domain.Ingredient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.UID]
	if !exists {
		return store.ErrNotFound
	}
	if err := s.checkVersionsLocked(ingredients); err != nil {
		return err
	}

	s.applyIngredientsLocked(ingredients)
	existing.Production.ProducedQuantity = product.Production.ProducedQuantity
	existing.UpdatedAt = s.now()
	s.products[product.UID] = existing
	return nil
}

// ListSales returns sales dated in [from, to), newest first.
func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 64)
	for _, sale := range s.sales {
		if sale.Date.Before(from) || !sale.Date.Before(to) {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.Date.Equal(b.Date) {
			return cmpString(b.ID, a.ID)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) SalesVersion(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.sales)), nil
}

func (s *Store) GetSettings(_ context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return domain.Settings{}, store.ErrNotFound
	}
	return cloneSettings(*s.settings), nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.ReservePercent < 0 || settings.ReservePercent > 100 {
		return store.ErrInvalidInput
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = s.now()
	}
	dup := cloneSettings(settings)
	s.settings = &dup
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: user %s exists", store.ErrConflict, username)
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) checkVersionsLocked(ingredients []domain.Ingredient) error {
	for _, ing := range ingredients {
		stored, exists := s.ingredients[ing.ID]
		if !exists {
			return fmt.Errorf("%w: ingredient %s", store.ErrNotFound, ing.ID)
		}
		if stored.Version != ing.Version {
			return fmt.Errorf("%w: ingredient %s is at version %d, not %d", store.ErrConflict, ing.ID, stored.Version, ing.Version)
		}
	}
	return nil
}

func (s *Store) applyIngredientsLocked(ingredients []domain.Ingredient) {
	now := s.now()
	for _, ing := range ingredients {
		stored := s.ingredients[ing.ID]
		next := cloneIngredient(ing)
		next.Version = stored.Version + 1
		next.CreatedAt = stored.CreatedAt
		next.UpdatedAt = now
		s.ingredients[ing.ID] = next
	}
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneIngredient(src domain.Ingredient) domain.Ingredient {
	dup := src
	dup.Batches = slices.Clone(src.Batches)
	if dup.Batches == nil {
		dup.Batches = []domain.PurchaseBatch{}
	}
	return dup
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	dup.Ingredients = slices.Clone(src.Ingredients)
	return dup
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Items = make([]domain.SaleItem, len(src.Items))
	for i, item := range src.Items {
		item.Product = cloneProduct(item.Product)
		dup.Items[i] = item
	}
	if src.SellingResume.Discount != nil {
		d := *src.SellingResume.Discount
		dup.SellingResume.Discount = &d
	}
	return dup
}

func cloneSettings(src domain.Settings) domain.Settings {
	dup := src
	dup.FixedCosts = slices.Clone(src.FixedCosts)
	dup.VariableCosts = slices.Clone(src.VariableCosts)
	return dup
}
