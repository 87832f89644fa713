package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/product"
)

const productColumns = `id, name, description, price, stock_quantity, category, brand,
	image_url, image_alt_text, created_at, updated_at`

const (
	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY name, id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	createProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	updateProductSQL = `UPDATE products SET name = $2, description = $3, price = $4, stock_quantity = $5,
		category = $6, brand = $7, image_url = $8, image_alt_text = $9, updated_at = $10
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
			price = EXCLUDED.price, stock_quantity = EXCLUDED.stock_quantity,
			category = EXCLUDED.category, brand = EXCLUDED.brand,
			image_url = EXCLUDED.image_url, image_alt_text = EXCLUDED.image_alt_text,
			updated_at = EXCLUDED.updated_at`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products ordered by name.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, classify("list products", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return getProduct(ctx, r.pool, getProductByIDSQL, id)
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, classify("get products by ids", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, createProductSQL, productArgs(p)...)
	if err != nil {
		if hasCode(err, codeUniqueViolation) {
			return &apperr.ConflictError{Entity: "product", ID: p.ID, Reason: "already exists"}
		}
		return classify("create product", err)
	}
	return nil
}

// Update locks the product row, applies fn and writes every mutable column.
func (r *ProductRepository) Update(ctx context.Context, id string, fn func(p *product.Product) error) (*product.Product, error) {
	var p *product.Product
	err := inTx(ctx, r.pool, TxOptions{}, func(tx pgx.Tx) error {
		var err error
		if p, err = getProduct(ctx, tx, getProductForUpdateSQL, id); err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		p.ID = id
		if _, err := tx.Exec(ctx, updateProductSQL,
			p.ID, p.Name, p.Description, p.Price, p.StockQuantity,
			p.Category, p.Brand, p.Image.URL, p.Image.AltText, p.UpdatedAt,
		); err != nil {
			return classify("update product", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a product. Cart and favorite entries go with it; order
// lines keep it alive.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return &apperr.ConflictError{Entity: "product", ID: id, Reason: "referenced by existing orders"}
		}
		return classify("delete product", err)
	}
	if tag.RowsAffected() == 0 {
		return product.NotFound(id)
	}
	return nil
}

// Upsert inserts or fully replaces products by id in one batch.
func (r *ProductRepository) Upsert(ctx context.Context, ps []product.Product) error {
	batch := &pgx.Batch{}
	for i := range ps {
		batch.Queue(upsertProductSQL, productArgs(&ps[i])...)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return classify("upsert products", err)
	}
	return nil
}

func getProduct(ctx context.Context, q querier, sql, id string) (*product.Product, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, classify("get product", err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.NotFound(id)
		}
		return nil, classify("get product", err)
	}
	return &p, nil
}

func productArgs(p *product.Product) []any {
	return []any{
		p.ID, p.Name, p.Description, p.Price, p.StockQuantity, p.Category, p.Brand,
		p.Image.URL, p.Image.AltText, p.CreatedAt, p.UpdatedAt,
	}
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.StockQuantity, &p.Category, &p.Brand,
		&p.Image.URL, &p.Image.AltText, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
