package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"racikpos/backend/internal/domain"
	"racikpos/backend/internal/store"
	"racikpos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	return loadIngredients(ctx, s.db, "")
}

func (s *Store) GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error) {
	ingredients, err := loadIngredients(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if len(ingredients) == 0 {
		return nil, store.ErrNotFound
	}
	return &ingredients[0], nil
}

func (s *Store) CreateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	if ingredient.ID == "" || strings.TrimSpace(ingredient.Name) == "" || !ingredient.Unit.Valid() {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	now := time.Now().UTC()
	ingredient.Version = 1
	ingredient.CreatedAt = now
	ingredient.UpdatedAt = now
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO ingredients (id, name, unit, total_quantity, average_unit_price, max_quantity, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, ingredient.ID, ingredient.Name, string(ingredient.Unit), ingredient.TotalQuantity, ingredient.AverageUnitPrice, ingredient.MaxQuantity, ingredient.Version, ingredient.CreatedAt, ingredient.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if err := insertBatches(ctx, pgTx, ingredient.ID, ingredient.Batches); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}

	if ingredient.Batches == nil {
		ingredient.Batches = []domain.PurchaseBatch{}
	}
	return &ingredient, nil
}

func (s *Store) SaveIngredients(ctx context.Context, ingredients []domain.Ingredient) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := saveIngredientsTx(ctx, pgTx, ingredients); err != nil {
		return err
	}
	return mapWriteError(pgTx.Commit())
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, name, category, recipe, mode, yield_quantity, margin_percent, unit_selling_price, produced_quantity, created_at, updated_at
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, uid string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uid, name, category, recipe, mode, yield_quantity, margin_percent, unit_selling_price, produced_quantity, created_at, updated_at
		FROM products
		WHERE uid = $1
	`, uid)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.UID == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	recipe, err := json.Marshal(product.Ingredients)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	p := product.Production
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (uid, name, category, recipe, mode, yield_quantity, margin_percent, unit_selling_price, produced_quantity, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, product.UID, product.Name, product.Category, recipe, string(p.Mode), p.YieldQuantity, p.MarginPercent, p.UnitSellingPrice, p.ProducedQuantity, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.UID == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	recipe, err := json.Marshal(product.Ingredients)
	if err != nil {
		return nil, err
	}

	p := product.Production
	err = s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, recipe = $4, mode = $5, yield_quantity = $6,
			margin_percent = $7, unit_selling_price = $8, produced_quantity = $9, updated_at = now()
		WHERE uid = $1
		RETURNING created_at, updated_at
	`, product.UID, product.Name, product.Category, recipe, string(p.Mode), p.YieldQuantity, p.MarginPercent, p.UnitSellingPrice, p.ProducedQuantity).Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	updated := product
	return &updated, nil
}

// CommitSale inserts the sale and writes the depleted ingredients in one
// serializable transaction.
func (s *Store) CommitSale(ctx context.Context, sale domain.Sale, ingredients []domain.Ingredient) error {
	if sale.ID == "" || len(sale.Items) == 0 {
		return store.ErrInvalidInput
	}
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return err
	}
	resume, err := json.Marshal(sale.SellingResume)
	if err != nil {
		return err
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := saveIngredientsTx(ctx, pgTx, ingredients); err != nil {
		return err
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (id, sold_at, payment_method, total_value, items, selling_resume, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, sale.ID, sale.Date, string(sale.SellingResume.PaymentMethod), sale.SellingResume.TotalValue, items, resume, sale.CreatedBy)
	if err != nil {
		return mapWriteError(err)
	}
	return mapWriteError(pgTx.Commit())
}

func (s *Store) CommitProduction(ctx context.Context, product domain.Product, ingredients []domain.Ingredient) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := saveIngredientsTx(ctx, pgTx, ingredients); err != nil {
		return err
	}
	res, err := pgTx.ExecContext(ctx, `
		UPDATE products
		SET produced_quantity = $2, updated_at = now()
		WHERE uid = $1
	`, product.UID, product.Production.ProducedQuantity)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return mapWriteError(pgTx.Commit())
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	query := `
		SELECT id, sold_at, items, selling_resume, created_by
		FROM sales
		WHERE sold_at >= $1 AND sold_at < $2
		ORDER BY sold_at DESC, id DESC
	`
	args := []any{from, to}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		var items []byte
		var resume []byte
		if err := rows.Scan(&sale.ID, &sale.Date, &items, &resume, &sale.CreatedBy); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &sale.Items); err != nil {
			return nil, fmt.Errorf("decode items of sale %s: %w", sale.ID, err)
		}
		if err := json.Unmarshal(resume, &sale.SellingResume); err != nil {
			return nil, fmt.Errorf("decode resume of sale %s: %w", sale.ID, err)
		}
		sale.Date = sale.Date.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// SalesVersion is the sale count; sales are never updated or deleted.
func (s *Store) SalesVersion(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales`).Scan(&count)
	return count, err
}

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	var payload []byte
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, updated_at
		FROM app_settings
		WHERE id = 1
	`).Scan(&payload, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Settings{}, store.ErrNotFound
		}
		return domain.Settings{}, err
	}

	var settings domain.Settings
	if err := json.Unmarshal(payload, &settings); err != nil {
		return domain.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	settings.UpdatedAt = updatedAt.UTC()
	return settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) error {
	if settings.ReservePercent < 0 || settings.ReservePercent > 100 {
		return store.ErrInvalidInput
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(settings)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_settings (id, payload, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`, payload, settings.UpdatedAt)
	return err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, true, user.CreatedAt)
	return mapWriteError(err)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// loadIngredients reads ingredients with their batches in FIFO order. An
// empty id loads every ingredient.
func loadIngredients(ctx context.Context, q queryer, id string) ([]domain.Ingredient, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, unit, total_quantity, average_unit_price, max_quantity, version, created_at, updated_at
		FROM ingredients
		WHERE $1 = '' OR id = $1
		ORDER BY name, id
	`, id)
	if err != nil {
		return nil, err
	}

	ingredients := make([]domain.Ingredient, 0, 32)
	index := make(map[string]int, 32)
	for rows.Next() {
		var ing domain.Ingredient
		var unit string
		if err := rows.Scan(&ing.ID, &ing.Name, &unit, &ing.TotalQuantity, &ing.AverageUnitPrice, &ing.MaxQuantity, &ing.Version, &ing.CreatedAt, &ing.UpdatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ing.Unit = domain.Unit(unit)
		ing.CreatedAt = ing.CreatedAt.UTC()
		ing.UpdatedAt = ing.UpdatedAt.UTC()
		ing.Batches = []domain.PurchaseBatch{}
		index[ing.ID] = len(ingredients)
		ingredients = append(ingredients, ing)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	batchRows, err := q.QueryContext(ctx, `
		SELECT id, ingredient_id, purchase_date, buy_price, original_quantity, current_quantity, unit_price, supplier
		FROM ingredient_batches
		WHERE $1 = '' OR ingredient_id = $1
		ORDER BY ingredient_id, purchase_date, id
	`, id)
	if err != nil {
		return nil, err
	}
	defer batchRows.Close()

	for batchRows.Next() {
		var batch domain.PurchaseBatch
		var ingredientID string
		if err := batchRows.Scan(&batch.ID, &ingredientID, &batch.PurchaseDate, &batch.BuyPrice, &batch.OriginalQuantity, &batch.CurrentQuantity, &batch.UnitPrice, &batch.Supplier); err != nil {
			return nil, err
		}
		i, ok := index[ingredientID]
		if !ok {
			continue
		}
		batch.PurchaseDate = batch.PurchaseDate.UTC()
		ingredients[i].Batches = append(ingredients[i].Batches, batch)
	}
	if err := batchRows.Err(); err != nil {
		return nil, err
	}
	return ingredients, nil
}

// saveIngredientsTx locks each ingredient row, checks its version, then
// rewrites the row and replaces its batches.
func saveIngredientsTx(ctx context.Context, pgTx *sql.Tx, ingredients []domain.Ingredient) error {
	for _, ing := range ingredients {
		var version int64
		err := pgTx.QueryRowContext(ctx, `
			SELECT version
			FROM ingredients
			WHERE id = $1
			FOR UPDATE
		`, ing.ID).Scan(&version)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: ingredient %s", store.ErrNotFound, ing.ID)
			}
			return mapWriteError(err)
		}
		if version != ing.Version {
			return fmt.Errorf("%w: ingredient %s is at version %d, not %d", store.ErrConflict, ing.ID, version, ing.Version)
		}

		if _, err := pgTx.ExecContext(ctx, `
			UPDATE ingredients
			SET name = $2, total_quantity = $3, average_unit_price = $4, max_quantity = $5,
				version = version + 1, updated_at = now()
			WHERE id = $1
		`, ing.ID, ing.Name, ing.TotalQuantity, ing.AverageUnitPrice, ing.MaxQuantity); err != nil {
			return mapWriteError(err)
		}
		if _, err := pgTx.ExecContext(ctx, `DELETE FROM ingredient_batches WHERE ingredient_id = $1`, ing.ID); err != nil {
			return err
		}
		if err := insertBatches(ctx, pgTx, ing.ID, ing.Batches); err != nil {
			return err
		}
	}
	return nil
}

func insertBatches(ctx context.Context, pgTx *sql.Tx, ingredientID string, batches []domain.PurchaseBatch) error {
	for _, batch := range batches {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO ingredient_batches (id, ingredient_id, purchase_date, buy_price, original_quantity, current_quantity, unit_price, supplier)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, batch.ID, ingredientID, batch.PurchaseDate, batch.BuyPrice, batch.OriginalQuantity, batch.CurrentQuantity, batch.UnitPrice, batch.Supplier); err != nil {
			return mapWriteError(err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var product domain.Product
	var recipe []byte
	var mode string
	p := &product.Production
	if err := row.Scan(&product.UID, &product.Name, &product.Category, &recipe, &mode, &p.YieldQuantity, &p.MarginPercent, &p.UnitSellingPrice, &p.ProducedQuantity, &product.CreatedAt, &product.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	if err := json.Unmarshal(recipe, &product.Ingredients); err != nil {
		return domain.Product{}, fmt.Errorf("decode recipe of %s: %w", product.UID, err)
	}
	p.Mode = domain.ProductionMode(mode)
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	return product, nil
}

// mapWriteError turns unique violations and serialization failures into
// store.ErrConflict.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) || isSerializationFailure(err) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}
