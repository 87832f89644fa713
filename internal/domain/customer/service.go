package customer

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
)

// Registration is the input for creating an account with its profile.
type Registration struct {
	Username string
	Password string
	Profile
}

// Service is the customer directory.
type Service struct {
	customers Repository
	accounts  auth.Repository
	now       func() time.Time
}

// NewService creates a customer Service.
func NewService(customers Repository, accounts auth.Repository) *Service {
	return &Service{customers: customers, accounts: accounts, now: time.Now}
}

// Register creates an account and its customer profile. The two inserts
// are not in one transaction: when the profile insert fails the account is
// deleted again, and a failing cleanup is logged.
func (s *Service) Register(ctx context.Context, r Registration) (*auth.Account, *Customer, error) {
	username := strings.TrimSpace(r.Username)
	if username == "" {
		return nil, nil, apperr.Invalid("username", "is required")
	}
	if err := r.Profile.Validate(); err != nil {
		return nil, nil, err
	}
	hash, err := auth.HashPassword(r.Password)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	acc := &auth.Account{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        r.Email,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		return nil, nil, errors.Wrap(err, "create account")
	}

	c := &Customer{
		ID:        uuid.New().String(),
		AccountID: acc.ID,
		CreatedAt: now,
	}
	setProfile(c, r.Profile)
	if err := s.customers.Create(ctx, c); err != nil {
		if derr := s.accounts.Delete(ctx, acc.ID); derr != nil {
			zctx.From(ctx).Error("Failed to remove account after profile insert failure",
				zap.String("account_id", acc.ID),
				zap.Error(derr),
			)
		}
		return nil, nil, errors.Wrap(err, "create customer")
	}
	return acc, c, nil
}

// Get returns a customer by id.
func (s *Service) Get(ctx context.Context, id string) (*Customer, error) {
	return s.customers.GetByID(ctx, id)
}

// GetByAccount returns the profile of an account.
func (s *Service) GetByAccount(ctx context.Context, accountID string) (*Customer, error) {
	return s.customers.GetByAccount(ctx, accountID)
}

// List returns every customer.
func (s *Service) List(ctx context.Context) ([]Customer, error) {
	return s.customers.List(ctx)
}

// Update replaces the profile fields of a customer.
func (s *Service) Update(ctx context.Context, id string, p Profile) (*Customer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	c, err := s.customers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	setProfile(c, p)
	if err := s.customers.Update(ctx, c); err != nil {
		return nil, errors.Wrapf(err, "update customer %s", id)
	}
	return c, nil
}

// UpdateShipping applies a partial update to the caller's own profile.
func (s *Service) UpdateShipping(ctx context.Context, accountID string, u ShippingUpdate) (*Customer, error) {
	c, err := s.customers.GetByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := u.apply(c); err != nil {
		return nil, err
	}
	if err := s.customers.Update(ctx, c); err != nil {
		return nil, errors.Wrap(err, "update shipping")
	}
	return c, nil
}

// Delete removes a customer and its account.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.customers.Delete(ctx, id)
}

func setProfile(c *Customer, p Profile) {
	c.FirstName = strings.TrimSpace(p.FirstName)
	c.LastName = strings.TrimSpace(p.LastName)
	c.Email = p.Email
	c.Phone = p.Phone
	c.Address = p.Address
}
