package auth

import (
	"context"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/apperr"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown username or
	// a wrong password.
	ErrInvalidCredentials = errors.New("incorrect username or password")
	// ErrInactive is returned when a deactivated account authenticates.
	ErrInactive = errors.New("account is inactive")
)

// Service authenticates callers and manages account flags.
type Service struct {
	accounts Repository
	tokens   *Tokens
}

// NewService creates an auth Service.
func NewService(accounts Repository, tokens *Tokens) *Service {
	return &Service{accounts: accounts, tokens: tokens}
}

// Login checks the credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (Token, error) {
	a, err := s.accounts.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if apperr.IsNotFound(err) {
			return Token{}, ErrInvalidCredentials
		}
		return Token{}, errors.Wrap(err, "get account")
	}
	if !CheckPassword(a.PasswordHash, password) {
		return Token{}, ErrInvalidCredentials
	}
	if !a.IsActive {
		return Token{}, ErrInactive
	}
	return s.tokens.Issue(a)
}

// Authenticate resolves a bearer token into a Principal. Flags are read
// from storage so revoking admin or deactivating takes effect immediately.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	a, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if apperr.IsNotFound(err) {
			return Principal{}, errors.Wrap(ErrInvalidToken, "account gone")
		}
		return Principal{}, errors.Wrap(err, "get account")
	}
	if !a.IsActive {
		return Principal{}, ErrInactive
	}
	return Principal{AccountID: a.ID, Username: a.Username, IsAdmin: a.IsAdmin}, nil
}

// Account returns the stored account with id. The password hash is
// cleared.
func (s *Service) Account(ctx context.Context, id string) (*Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.PasswordHash = ""
	return a, nil
}

// ListAccounts returns every account.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.accounts.List(ctx)
}

// SetAdmin grants or revokes admin rights. Admins cannot revoke their own.
func (s *Service) SetAdmin(ctx context.Context, actor Principal, id string, admin bool) error {
	if id == actor.AccountID && !admin {
		return apperr.Invalid("is_admin", "cannot remove admin status from yourself")
	}
	return s.accounts.SetAdmin(ctx, id, admin)
}

// SetActive activates or deactivates an account. Admins cannot deactivate
// themselves.
func (s *Service) SetActive(ctx context.Context, actor Principal, id string, active bool) error {
	if id == actor.AccountID && !active {
		return apperr.Invalid("is_active", "cannot deactivate yourself")
	}
	return s.accounts.SetActive(ctx, id, active)
}
