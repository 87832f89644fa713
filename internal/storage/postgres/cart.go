package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
)

const joinedProductColumns = `p.id, p.name, p.description, p.price, p.stock_quantity, p.category, p.brand,
	p.image_url, p.image_alt_text, p.created_at, p.updated_at`

const (
	listCartSQL = `SELECT c.account_id, c.product_id, c.quantity, c.created_at, c.updated_at, ` + joinedProductColumns + `
		FROM cart_entries c JOIN products p ON p.id = c.product_id
		WHERE c.account_id = $1 ORDER BY c.created_at, c.product_id`

	putCartSQL = `INSERT INTO cart_entries (account_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (account_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()`

	removeCartSQL = `DELETE FROM cart_entries WHERE account_id = $1 AND product_id = $2`
	clearCartSQL  = `DELETE FROM cart_entries WHERE account_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) List(ctx context.Context, accountID string) ([]cart.Entry, error) {
	rows, err := r.pool.Query(ctx, listCartSQL, accountID)
	if err != nil {
		return nil, classify("list cart", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Entry, error) {
		var (
			e cart.Entry
			p = &e.Product
		)
		err := row.Scan(&e.AccountID, &e.ProductID, &e.Quantity, &e.CreatedAt, &e.UpdatedAt,
			&p.ID, &p.Name, &p.Description, &p.Price, &p.StockQuantity, &p.Category, &p.Brand,
			&p.Image.URL, &p.Image.AltText, &p.CreatedAt, &p.UpdatedAt,
		)
		return e, err
	})
}

func (r *CartRepository) Put(ctx context.Context, accountID, productID string, qty int) error {
	if _, err := r.pool.Exec(ctx, putCartSQL, accountID, productID, qty); err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return product.NotFound(productID)
		}
		return classify("put cart entry", err)
	}
	return nil
}

func (r *CartRepository) Remove(ctx context.Context, accountID, productID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, removeCartSQL, accountID, productID)
	if err != nil {
		return false, classify("remove cart entry", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *CartRepository) Clear(ctx context.Context, accountID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, accountID); err != nil {
		return classify("clear cart", err)
	}
	return nil
}
