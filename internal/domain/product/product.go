package product

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// MaxQuantity bounds stock levels and line quantities, which are stored as
// INTEGER.
const MaxQuantity = math.MaxInt32

// TooMany reports that field exceeds MaxQuantity.
func TooMany(field string) error {
	return apperr.Invalid(field, "must not exceed "+strconv.Itoa(MaxQuantity))
}

// Product represents a catalog item available for purchase.
type Product struct {
	ID            string
	Name          string
	Description   string
	Price         decimal.Decimal
	StockQuantity int
	Category      string
	Brand         string
	Image         Image
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Image describes the product picture.
type Image struct {
	URL     string
	AltText string
}

// Draft holds the writable fields of a product for create and update.
type Draft struct {
	Name          string
	Description   string
	Price         decimal.Decimal
	StockQuantity int
	Category      string
	Brand         string
	Image         Image
}

// Edit changes an existing product. The stock level is written only when
// SetStock is true; otherwise the stored level, including any decrement by a
// concurrent checkout, is kept.
type Edit struct {
	Draft
	SetStock bool
}

// Validate checks the draft before it reaches storage.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return apperr.Invalid("name", "must not be empty")
	}
	if d.Price.IsNegative() {
		return apperr.Invalid("price", "must not be negative")
	}
	if d.StockQuantity < 0 {
		return apperr.Invalid("stock_quantity", "must not be negative")
	}
	if d.StockQuantity > MaxQuantity {
		return TooMany("stock_quantity")
	}
	return nil
}

// Repository defines catalog persistence. Update and Delete return an
// apperr.NotFoundError for unknown ids; Delete returns an apperr.ConflictError
// when the product is referenced by an order line.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	// Update loads the product, passes it to fn and stores the result. The
	// row stays locked from the read to the write.
	Update(ctx context.Context, id string, fn func(p *Product) error) (*Product, error)
	Delete(ctx context.Context, id string) error
}

// NotFound builds the error returned for an unknown product id.
func NotFound(id string) error {
	return apperr.NotFound("product", id)
}
