package store

import (
	"context"
	"errors"
	"time"

	"racikpos/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict means an ingredient changed since it was read.
	ErrConflict = errors.New("conflict")
)

// Repository persists the bakery's catalog, stock and sales.
//
// Ingredients passed to SaveIngredients, CommitSale and CommitProduction
// carry the Version they were read with; the write succeeds only if that is
// still the stored version, and the stored version is then incremented.
type Repository interface {
	ListIngredients(ctx context.Context) ([]domain.Ingredient, error)
	GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error)
	CreateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error)
	SaveIngredients(ctx context.Context, ingredients []domain.Ingredient) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, uid string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	CommitSale(ctx context.Context, sale domain.Sale, ingredients []domain.Ingredient) error
	CommitProduction(ctx context.Context, product domain.Product, ingredients []domain.Ingredient) error
	ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error)
	// SalesVersion changes whenever a sale is committed.
	SalesVersion(ctx context.Context) (int64, error)

	GetSettings(ctx context.Context) (domain.Settings, error)
	SaveSettings(ctx context.Context, settings domain.Settings) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
