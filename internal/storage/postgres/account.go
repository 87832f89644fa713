package postgres

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
)

const accountColumns = `id, username, COALESCE(email, ''), password_hash, is_admin, is_active, created_at`

const (
	createAccountSQL = `INSERT INTO accounts (id, username, email, password_hash, is_admin, is_active, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`

	getAccountByIDSQL       = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	getAccountByUsernameSQL = `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	listAccountsSQL         = `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at, username`
	setAdminSQL             = `UPDATE accounts SET is_admin = $2 WHERE id = $1`
	setActiveSQL            = `UPDATE accounts SET is_active = $2 WHERE id = $1`
	deleteAccountSQL        = `DELETE FROM accounts WHERE id = $1`
)

var _ auth.Repository = (*AccountRepository)(nil)

// AccountRepository implements auth.Repository backed by PostgreSQL.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns an AccountRepository that uses the given pool.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create inserts an account. A taken username or email yields a
// ConflictError naming the field.
func (r *AccountRepository) Create(ctx context.Context, a *auth.Account) error {
	_, err := r.pool.Exec(ctx, createAccountSQL,
		a.ID, a.Username, a.Email, a.PasswordHash, a.IsAdmin, a.IsActive, a.CreatedAt,
	)
	if err != nil {
		if pgErr, ok := pgError(err); ok && pgErr.Code == codeUniqueViolation {
			reason := "username already registered"
			if strings.Contains(pgErr.ConstraintName, "email") {
				reason = "email already registered"
			}
			return &apperr.ConflictError{Entity: "account", Reason: reason}
		}
		return classify("create account", err)
	}
	return nil
}

// GetByID returns an account by id.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*auth.Account, error) {
	return r.get(ctx, getAccountByIDSQL, id)
}

// GetByUsername returns an account by username.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*auth.Account, error) {
	return r.get(ctx, getAccountByUsernameSQL, username)
}

func (r *AccountRepository) get(ctx context.Context, sql, key string) (*auth.Account, error) {
	rows, err := r.pool.Query(ctx, sql, key)
	if err != nil {
		return nil, classify("get account", err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAccount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("account", key)
		}
		return nil, classify("get account", err)
	}
	return &a, nil
}

// List returns every account, oldest first.
func (r *AccountRepository) List(ctx context.Context) ([]auth.Account, error) {
	rows, err := r.pool.Query(ctx, listAccountsSQL)
	if err != nil {
		return nil, classify("list accounts", err)
	}
	return pgx.CollectRows(rows, scanAccount)
}

// SetAdmin updates the admin flag.
func (r *AccountRepository) SetAdmin(ctx context.Context, id string, admin bool) error {
	return r.update(ctx, "set admin", setAdminSQL, id, admin)
}

// SetActive updates the active flag.
func (r *AccountRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.update(ctx, "set active", setActiveSQL, id, active)
}

// Delete removes an account. It is used to undo a half-finished
// registration; customers are removed through CustomerRepository.Delete.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, deleteAccountSQL, id); err != nil {
		return classify("delete account", err)
	}
	return nil
}

func (r *AccountRepository) update(ctx context.Context, op, sql, id string, flag bool) error {
	tag, err := r.pool.Exec(ctx, sql, id, flag)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("account", id)
	}
	return nil
}

func scanAccount(row pgx.CollectableRow) (auth.Account, error) {
	var a auth.Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.IsAdmin, &a.IsActive, &a.CreatedAt)
	return a, err
}
