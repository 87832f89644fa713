// Package cart keeps the saved-for-checkout product list of an account.
// It mirrors purchase intent only; stock is never checked or reserved here.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/product"
)

// Entry is one cart line joined with the current product data.
type Entry struct {
	AccountID string
	ProductID string
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
	Product   product.Product
}

// Repository provides cart persistence.
type Repository interface {
	List(ctx context.Context, accountID string) ([]Entry, error)
	// Put inserts the entry or replaces its quantity.
	Put(ctx context.Context, accountID, productID string, qty int) error
	Remove(ctx context.Context, accountID, productID string) (bool, error)
	Clear(ctx context.Context, accountID string) error
}

// Service implements cart operations.
type Service struct {
	repo     Repository
	products product.Repository
}

// NewService creates a cart Service.
func NewService(repo Repository, products product.Repository) *Service {
	return &Service{repo: repo, products: products}
}

// List returns the account's cart.
func (s *Service) List(ctx context.Context, accountID string) ([]Entry, error) {
	return s.repo.List(ctx, accountID)
}

// Add sets the quantity of a product in the cart.
func (s *Service) Add(ctx context.Context, accountID, productID string, qty int) error {
	if productID == "" {
		return apperr.Invalid("product_id", "is required")
	}
	if qty <= 0 {
		return apperr.Invalid("quantity", "must be greater than 0")
	}
	if qty > product.MaxQuantity {
		return product.TooMany("quantity")
	}
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return err
	}
	if err := s.repo.Put(ctx, accountID, productID, qty); err != nil {
		return errors.Wrap(err, "put cart entry")
	}
	return nil
}

// Update is Add, except that a non-positive quantity removes the entry.
func (s *Service) Update(ctx context.Context, accountID, productID string, qty int) error {
	if qty <= 0 {
		_, err := s.Remove(ctx, accountID, productID)
		return err
	}
	return s.Add(ctx, accountID, productID, qty)
}

// Remove deletes a product from the cart.
func (s *Service) Remove(ctx context.Context, accountID, productID string) (bool, error) {
	return s.repo.Remove(ctx, accountID, productID)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, accountID string) error {
	return s.repo.Clear(ctx, accountID)
}

// Count returns the number of units in the cart.
func (s *Service) Count(ctx context.Context, accountID string) (int, error) {
	entries, err := s.repo.List(ctx, accountID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		n += e.Quantity
	}
	return n, nil
}

// Total prices the cart at current product prices.
func (s *Service) Total(ctx context.Context, accountID string) (decimal.Decimal, error) {
	entries, err := s.repo.List(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Product.Price.Mul(decimal.NewFromInt(int64(e.Quantity))))
	}
	return total.Round(2), nil
}
