package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/customer"
)

const customerColumns = `id, account_id, first_name, last_name, email, phone, address, created_at`

const (
	createCustomerSQL = `INSERT INTO customers (` + customerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	getCustomerSQL          = `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	getCustomerByAccountSQL = `SELECT ` + customerColumns + ` FROM customers WHERE account_id = $1`
	listCustomersSQL        = `SELECT ` + customerColumns + ` FROM customers ORDER BY created_at, id`

	updateCustomerSQL = `UPDATE customers SET first_name = $2, last_name = $3, email = $4, phone = $5, address = $6
		WHERE id = $1`

	lockCustomerAccountSQL = `SELECT account_id FROM customers WHERE id = $1 FOR UPDATE`
	customerHasOrdersSQL   = `SELECT EXISTS (SELECT 1 FROM orders WHERE customer_id = $1)`
	deleteCustomerSQL      = `DELETE FROM customers WHERE id = $1`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
	opts TxOptions
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool, opts TxOptions) *CustomerRepository {
	return &CustomerRepository{pool: pool, opts: opts}
}

func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	_, err := r.pool.Exec(ctx, createCustomerSQL,
		c.ID, c.AccountID, c.FirstName, c.LastName, c.Email, c.Phone, c.Address, c.CreatedAt,
	)
	if err != nil {
		switch {
		case hasCode(err, codeUniqueViolation):
			return &apperr.ConflictError{Entity: "customer", Reason: "account already has a customer profile"}
		case hasCode(err, codeForeignKeyViolation):
			return apperr.NotFound("account", c.AccountID)
		}
		return classify("create customer", err)
	}
	return nil
}

func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	return r.get(ctx, getCustomerSQL, id)
}

func (r *CustomerRepository) GetByAccount(ctx context.Context, accountID string) (*customer.Customer, error) {
	return r.get(ctx, getCustomerByAccountSQL, accountID)
}

func (r *CustomerRepository) get(ctx context.Context, sql, key string) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, sql, key)
	if err != nil {
		return nil, classify("get customer", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("customer", key)
		}
		return nil, classify("get customer", err)
	}
	return &c, nil
}

func (r *CustomerRepository) List(ctx context.Context) ([]customer.Customer, error) {
	rows, err := r.pool.Query(ctx, listCustomersSQL)
	if err != nil {
		return nil, classify("list customers", err)
	}
	return pgx.CollectRows(rows, scanCustomer)
}

func (r *CustomerRepository) Update(ctx context.Context, c *customer.Customer) error {
	tag, err := r.pool.Exec(ctx, updateCustomerSQL,
		c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.Address,
	)
	if err != nil {
		return classify("update customer", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("customer", c.ID)
	}
	return nil
}

// Delete removes the customer and its account. The customer row is locked
// first so no order can be opened between the check and the delete.
func (r *CustomerRepository) Delete(ctx context.Context, id string) error {
	return inTx(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		var accountID string
		if err := tx.QueryRow(ctx, lockCustomerAccountSQL, id).Scan(&accountID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound("customer", id)
			}
			return classify("lock customer", err)
		}

		var hasOrders bool
		if err := tx.QueryRow(ctx, customerHasOrdersSQL, id).Scan(&hasOrders); err != nil {
			return classify("check customer orders", err)
		}
		if hasOrders {
			return &apperr.ConflictError{Entity: "customer", ID: id, Reason: "customer has existing orders"}
		}

		if _, err := tx.Exec(ctx, deleteCustomerSQL, id); err != nil {
			return classify("delete customer", err)
		}
		if _, err := tx.Exec(ctx, deleteAccountSQL, accountID); err != nil {
			return classify("delete account", err)
		}
		return nil
	})
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(&c.ID, &c.AccountID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Address, &c.CreatedAt)
	return c, err
}
