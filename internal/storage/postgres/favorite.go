package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/favorite"
	"github.com/xenking/storefront/internal/domain/product"
)

const (
	listFavoritesSQL = `SELECT f.account_id, f.product_id, f.created_at, ` + joinedProductColumns + `
		FROM favorites f JOIN products p ON p.id = f.product_id
		WHERE f.account_id = $1 ORDER BY f.created_at DESC, f.product_id`

	addFavoriteSQL = `INSERT INTO favorites (account_id, product_id) VALUES ($1, $2)
		ON CONFLICT (account_id, product_id) DO NOTHING`

	removeFavoriteSQL = `DELETE FROM favorites WHERE account_id = $1 AND product_id = $2`
	favoriteExistsSQL = `SELECT EXISTS (SELECT 1 FROM favorites WHERE account_id = $1 AND product_id = $2)`
	countFavoritesSQL = `SELECT count(*) FROM favorites WHERE account_id = $1`
	clearFavoritesSQL = `DELETE FROM favorites WHERE account_id = $1`
)

var _ favorite.Repository = (*FavoriteRepository)(nil)

// FavoriteRepository implements favorite.Repository backed by PostgreSQL.
type FavoriteRepository struct {
	pool *pgxpool.Pool
}

// NewFavoriteRepository returns a FavoriteRepository that uses the given pool.
func NewFavoriteRepository(pool *pgxpool.Pool) *FavoriteRepository {
	return &FavoriteRepository{pool: pool}
}

func (r *FavoriteRepository) List(ctx context.Context, accountID string) ([]favorite.Entry, error) {
	rows, err := r.pool.Query(ctx, listFavoritesSQL, accountID)
	if err != nil {
		return nil, classify("list favorites", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (favorite.Entry, error) {
		var (
			e favorite.Entry
			p = &e.Product
		)
		err := row.Scan(&e.AccountID, &e.ProductID, &e.CreatedAt,
			&p.ID, &p.Name, &p.Description, &p.Price, &p.StockQuantity, &p.Category, &p.Brand,
			&p.Image.URL, &p.Image.AltText, &p.CreatedAt, &p.UpdatedAt,
		)
		return e, err
	})
}

func (r *FavoriteRepository) Add(ctx context.Context, accountID, productID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, addFavoriteSQL, accountID, productID)
	if err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return false, product.NotFound(productID)
		}
		return false, classify("add favorite", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *FavoriteRepository) Remove(ctx context.Context, accountID, productID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, removeFavoriteSQL, accountID, productID)
	if err != nil {
		return false, classify("remove favorite", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *FavoriteRepository) Exists(ctx context.Context, accountID, productID string) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, favoriteExistsSQL, accountID, productID).Scan(&ok); err != nil {
		return false, classify("check favorite", err)
	}
	return ok, nil
}

func (r *FavoriteRepository) Count(ctx context.Context, accountID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countFavoritesSQL, accountID).Scan(&n); err != nil {
		return 0, classify("count favorites", err)
	}
	return n, nil
}

func (r *FavoriteRepository) Clear(ctx context.Context, accountID string) error {
	if _, err := r.pool.Exec(ctx, clearFavoritesSQL, accountID); err != nil {
		return classify("clear favorites", err)
	}
	return nil
}
