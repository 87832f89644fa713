package postgres

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

const orderSelect = `SELECT o.id, o.customer_id, o.status, o.total_amount, o.order_date,
	c.first_name, c.last_name, c.phone, c.address
	FROM orders o JOIN customers c ON c.id = o.customer_id`

const (
	getOrderSQL           = orderSelect + ` WHERE o.id = $1`
	listOrdersSQL         = orderSelect + ` ORDER BY o.order_date DESC, o.id`
	listCustomerOrdersSQL = orderSelect + ` WHERE o.customer_id = $1 ORDER BY o.order_date DESC, o.id`
	findOpenOrderSQL      = orderSelect + ` WHERE o.customer_id = $1 AND o.status = 'OPEN'`

	listItemsSQL = `SELECT id, order_id, product_id, quantity, price_at_order
		FROM order_items WHERE order_id = ANY($1) ORDER BY product_id`

	customerByAccountSQL     = `SELECT id FROM customers WHERE account_id = $1`
	lockCustomerByAccountSQL = `SELECT id FROM customers WHERE account_id = $1 FOR UPDATE`
	lockCustomerSQL          = `SELECT id FROM customers WHERE id = $1 FOR UPDATE`
	getProductForShareSQL    = getProductByIDSQL + ` FOR SHARE`
	getProductForUpdateSQL   = getProductByIDSQL + ` FOR UPDATE`

	createOrderSQL = `INSERT INTO orders (id, customer_id, status, total_amount, order_date)
		VALUES ($1, $2, $3, $4, $5)`

	putItemSQL = `INSERT INTO order_items (id, order_id, product_id, quantity, price_at_order)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, price_at_order = EXCLUDED.price_at_order
		RETURNING id`

	deleteItemSQL  = `DELETE FROM order_items WHERE order_id = $1 AND product_id = $2`
	setTotalSQL    = `UPDATE orders SET total_amount = $2 WHERE id = $1`
	setStatusSQL   = `UPDATE orders SET status = $2 WHERE id = $1`
	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	decrementStockSQL = `UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND stock_quantity >= $2`

	stockQuantitySQL = `SELECT name, stock_quantity FROM products WHERE id = $1`
)

var (
	_ order.Store = (*OrderStore)(nil)
	_ order.Tx    = (*orderTx)(nil)
)

// OrderStore implements order.Store. Every lifecycle transaction runs with
// the configured lock and statement timeouts.
type OrderStore struct {
	pool *pgxpool.Pool
	opts TxOptions
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool, opts TxOptions) *OrderStore {
	return &OrderStore{pool: pool, opts: opts}
}

// InTx runs fn inside one database transaction.
func (s *OrderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return inTx(ctx, s.pool, s.opts, func(tx pgx.Tx) error {
		return fn(ctx, &orderTx{tx: tx})
	})
}

// Get returns an order with its items and shipping info.
func (s *OrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, s.pool, id)
}

// List returns every order, newest first.
func (s *OrderStore) List(ctx context.Context) ([]order.Order, error) {
	return loadOrders(ctx, s.pool, listOrdersSQL)
}

// ListByCustomer returns the orders of one customer, newest first.
func (s *OrderStore) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	return loadOrders(ctx, s.pool, listCustomerOrdersSQL, customerID)
}

// FindOpen returns the customer's OPEN order or nil.
func (s *OrderStore) FindOpen(ctx context.Context, customerID string) (*order.Order, error) {
	return findOpen(ctx, s.pool, customerID)
}

// CustomerIDByAccount resolves the customer profile of an account.
func (s *OrderStore) CustomerIDByAccount(ctx context.Context, accountID string) (string, error) {
	return customerID(ctx, s.pool, customerByAccountSQL, accountID)
}

type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) LockCustomerByAccount(ctx context.Context, accountID string) (string, error) {
	return customerID(ctx, t.tx, lockCustomerByAccountSQL, accountID)
}

func (t *orderTx) LockCustomer(ctx context.Context, id string) error {
	_, err := customerID(ctx, t.tx, lockCustomerSQL, id)
	return err
}

func (t *orderTx) GetProduct(ctx context.Context, id string, mode order.LockMode) (*product.Product, error) {
	sql := getProductForShareSQL
	if mode == order.LockUpdate {
		sql = getProductForUpdateSQL
	}
	return getProduct(ctx, t.tx, sql, id)
}

func (t *orderTx) FindOpenOrder(ctx context.Context, customerID string) (*order.Order, error) {
	return findOpen(ctx, t.tx, customerID)
}

func (t *orderTx) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, t.tx, id)
}

func (t *orderTx) CreateOrder(ctx context.Context, o *order.Order) error {
	_, err := t.tx.Exec(ctx, createOrderSQL, o.ID, o.CustomerID, string(o.Status), o.Total, o.OrderDate)
	if err != nil {
		if hasCode(err, codeUniqueViolation) {
			return &apperr.ConflictError{Entity: "order", ID: o.ID, Reason: "customer already has an open order"}
		}
		if hasCode(err, codeForeignKeyViolation) {
			return apperr.NotFound("customer", o.CustomerID)
		}
		return classify("create order", err)
	}
	return nil
}

func (t *orderTx) PutItem(ctx context.Context, it *order.Item) error {
	err := t.tx.QueryRow(ctx, putItemSQL,
		it.ID, it.OrderID, it.ProductID, it.Quantity, it.PriceAtOrder,
	).Scan(&it.ID)
	if err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return product.NotFound(it.ProductID)
		}
		return classify("put order item", err)
	}
	return nil
}

func (t *orderTx) DeleteItem(ctx context.Context, orderID, productID string) (bool, error) {
	tag, err := t.tx.Exec(ctx, deleteItemSQL, orderID, productID)
	if err != nil {
		return false, classify("delete order item", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *orderTx) SetTotal(ctx context.Context, orderID string, total decimal.Decimal) error {
	return t.exec(ctx, "set order total", setTotalSQL, orderID, total)
}

func (t *orderTx) SetStatus(ctx context.Context, orderID string, status order.Status) error {
	return t.exec(ctx, "set order status", setStatusSQL, orderID, string(status))
}

func (t *orderTx) DeleteOrder(ctx context.Context, orderID string) (bool, error) {
	tag, err := t.tx.Exec(ctx, deleteOrderSQL, orderID)
	if err != nil {
		return false, classify("delete order", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DecrementStock subtracts qty only while enough stock remains. The CHECK
// constraint on products backs the WHERE clause.
func (t *orderTx) DecrementStock(ctx context.Context, productID string, qty int) error {
	tag, err := t.tx.Exec(ctx, decrementStockSQL, productID, qty)
	if err != nil {
		// The transaction is aborted at this point, so the current stock
		// cannot be read back.
		if hasCode(err, codeCheckViolation) {
			return &apperr.InsufficientStockError{ProductID: productID, Requested: qty}
		}
		return classify("decrement stock", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var (
		name      string
		available int
	)
	if err := t.tx.QueryRow(ctx, stockQuantitySQL, productID).Scan(&name, &available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.NotFound(productID)
		}
		return classify("read stock", err)
	}
	return &apperr.InsufficientStockError{
		ProductID: productID,
		Name:      name,
		Available: available,
		Requested: qty,
	}
}

func (t *orderTx) exec(ctx context.Context, op, sql, id string, args ...any) error {
	tag, err := t.tx.Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order", id)
	}
	return nil
}

func customerID(ctx context.Context, q querier, sql, key string) (string, error) {
	var id string
	if err := q.QueryRow(ctx, sql, key).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.NotFound("customer", key)
		}
		return "", classify("lookup customer", err)
	}
	return id, nil
}

func getOrder(ctx context.Context, q querier, id string) (*order.Order, error) {
	orders, err := loadOrders(ctx, q, getOrderSQL, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, apperr.NotFound("order", id)
	}
	return &orders[0], nil
}

func findOpen(ctx context.Context, q querier, customerID string) (*order.Order, error) {
	orders, err := loadOrders(ctx, q, findOpenOrderSQL, customerID)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

// loadOrders runs an orderSelect query and attaches the line items of every
// returned order with one extra query.
func loadOrders(ctx context.Context, q querier, sql string, args ...any) ([]order.Order, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify("query orders", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, classify("scan orders", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}
	rows, err = q.Query(ctx, listItemsSQL, ids)
	if err != nil {
		return nil, classify("query order items", err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, classify("scan order items", err)
	}
	for _, it := range items {
		o := &orders[index[it.OrderID]]
		o.Items = append(o.Items, it)
	}
	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o           order.Order
		status      string
		first, last string
		info        order.CustomerInfo
	)
	err := row.Scan(&o.ID, &o.CustomerID, &status, &o.Total, &o.OrderDate,
		&first, &last, &info.Phone, &info.Address)
	o.Status = order.Status(status)
	info.Name = strings.TrimSpace(first + " " + last)
	o.Customer = &info
	return o, err
}

func scanItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.PriceAtOrder)
	return it, err
}
