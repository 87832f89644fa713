// Package favorite stores per-account product bookmarks.
package favorite

import (
	"context"
	"time"

	"github.com/xenking/storefront/internal/domain/product"
)

// Entry is a bookmarked product.
type Entry struct {
	AccountID string
	ProductID string
	CreatedAt time.Time
	Product   product.Product
}

// Repository provides favorites persistence. Add is idempotent and
// reports whether a new entry was created.
type Repository interface {
	List(ctx context.Context, accountID string) ([]Entry, error)
	Add(ctx context.Context, accountID, productID string) (bool, error)
	Remove(ctx context.Context, accountID, productID string) (bool, error)
	Exists(ctx context.Context, accountID, productID string) (bool, error)
	Count(ctx context.Context, accountID string) (int, error)
	Clear(ctx context.Context, accountID string) error
}

// Service implements favorites operations.
type Service struct {
	repo     Repository
	products product.Repository
}

// NewService creates a favorites Service.
func NewService(repo Repository, products product.Repository) *Service {
	return &Service{repo: repo, products: products}
}

func (s *Service) List(ctx context.Context, accountID string) ([]Entry, error) {
	return s.repo.List(ctx, accountID)
}

// Add bookmarks an existing product.
func (s *Service) Add(ctx context.Context, accountID, productID string) (bool, error) {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return false, err
	}
	return s.repo.Add(ctx, accountID, productID)
}

func (s *Service) Remove(ctx context.Context, accountID, productID string) (bool, error) {
	return s.repo.Remove(ctx, accountID, productID)
}

// Toggle flips the bookmark and returns whether the product is now a
// favorite.
func (s *Service) Toggle(ctx context.Context, accountID, productID string) (bool, error) {
	removed, err := s.repo.Remove(ctx, accountID, productID)
	if err != nil {
		return false, err
	}
	if removed {
		return false, nil
	}
	if _, err := s.Add(ctx, accountID, productID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) Check(ctx context.Context, accountID, productID string) (bool, error) {
	return s.repo.Exists(ctx, accountID, productID)
}

func (s *Service) Count(ctx context.Context, accountID string) (int, error) {
	return s.repo.Count(ctx, accountID)
}

func (s *Service) Clear(ctx context.Context, accountID string) error {
	return s.repo.Clear(ctx, accountID)
}
