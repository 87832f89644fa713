package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// Catalog wraps a Repository with the admin write rules.
type Catalog struct {
	repo Repository
	now  func() time.Time
}

// NewCatalog creates a Catalog backed by repo.
func NewCatalog(repo Repository) *Catalog {
	return &Catalog{repo: repo, now: time.Now}
}

// List returns every product.
func (c *Catalog) List(ctx context.Context) ([]Product, error) {
	return c.repo.List(ctx)
}

// Get returns a single product.
func (c *Catalog) Get(ctx context.Context, id string) (*Product, error) {
	return c.repo.GetByID(ctx, id)
}

// Create validates the draft and stores it under a fresh id.
func (c *Catalog) Create(ctx context.Context, d Draft) (*Product, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	now := c.now()
	p := &Product{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	apply(p, d)
	if err := c.repo.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return p, nil
}

// Update replaces the writable fields of an existing product. Existing order
// lines keep their price snapshot.
func (c *Catalog) Update(ctx context.Context, id string, e Edit) (*Product, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	p, err := c.repo.Update(ctx, id, func(p *Product) error {
		stock := p.StockQuantity
		apply(p, e.Draft)
		if !e.SetStock {
			p.StockQuantity = stock
		}
		p.UpdatedAt = c.now()
		return nil
	})
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "update product %s", id)
	}
	return p, nil
}

// Delete removes a product that no order line references.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	return c.repo.Delete(ctx, id)
}

func apply(p *Product, d Draft) {
	p.Name = d.Name
	p.Description = d.Description
	p.Price = d.Price.Round(2)
	p.StockQuantity = d.StockQuantity
	p.Category = d.Category
	p.Brand = d.Brand
	p.Image = d.Image
}
