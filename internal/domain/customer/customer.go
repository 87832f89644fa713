// Package customer manages shipping profiles and their one-to-one link to
// login accounts.
package customer

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// Customer is the shipping profile of an account.
type Customer struct {
	ID        string
	AccountID string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
	CreatedAt time.Time
}

// Profile holds the fields an admin may replace.
type Profile struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
}

// Validate checks required names and the email format.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.FirstName) == "" {
		return apperr.Invalid("first_name", "is required")
	}
	if strings.TrimSpace(p.LastName) == "" {
		return apperr.Invalid("last_name", "is required")
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return apperr.Invalid("email", "is not a valid address")
		}
	}
	return nil
}

// ShippingUpdate is a partial update of the caller's own profile. Nil
// fields are left unchanged.
type ShippingUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Address   *string
}

func (u ShippingUpdate) apply(c *Customer) error {
	if u.FirstName != nil {
		if strings.TrimSpace(*u.FirstName) == "" {
			return apperr.Invalid("first_name", "must not be empty")
		}
		c.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		if strings.TrimSpace(*u.LastName) == "" {
			return apperr.Invalid("last_name", "must not be empty")
		}
		c.LastName = *u.LastName
	}
	if u.Phone != nil {
		c.Phone = *u.Phone
	}
	if u.Address != nil {
		c.Address = *u.Address
	}
	return nil
}

// Repository provides customer persistence.
//
// Delete removes the customer together with its account in one
// transaction and returns an apperr.ConflictError while the customer owns
// any order.
type Repository interface {
	Create(ctx context.Context, c *Customer) error
	GetByID(ctx context.Context, id string) (*Customer, error)
	GetByAccount(ctx context.Context, accountID string) (*Customer, error)
	List(ctx context.Context) ([]Customer, error)
	Update(ctx context.Context, c *Customer) error
	Delete(ctx context.Context, id string) error
}
