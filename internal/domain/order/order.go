package order

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/product"
)

// Status is the lifecycle state of an order.
type Status string

// Order statuses. OPEN is the mutable draft; everything else is reached only
// through Close, PlaceOrder or a fulfillment relabel.
const (
	StatusOpen       Status = "OPEN"
	StatusClosed     Status = "CLOSED"
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// FulfillmentStatuses lists the labels an admin may apply after checkout.
var FulfillmentStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
}

// ParseFulfillmentStatus validates a user supplied fulfillment label.
func ParseFulfillmentStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if st == "" {
		return "", apperr.Invalid("status", "is required")
	}
	if !slices.Contains(FulfillmentStatuses, st) {
		return "", apperr.Invalid("status", "must be one of PENDING, PROCESSING, SHIPPED, DELIVERED, CANCELLED")
	}
	return st, nil
}

// Order is a customer order together with its line items.
type Order struct {
	ID         string
	CustomerID string
	Status     Status
	Total      decimal.Decimal
	OrderDate  time.Time
	Items      []Item

	// Customer is filled by read paths that join the shipping profile.
	Customer *CustomerInfo
}

// Item is a single order line. PriceAtOrder is the product price captured
// when the line was last set.
type Item struct {
	ID           string
	OrderID      string
	ProductID    string
	Quantity     int
	PriceAtOrder decimal.Decimal
}

// Subtotal returns quantity × price_at_order.
func (i Item) Subtotal() decimal.Decimal {
	return i.PriceAtOrder.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CustomerInfo is the shipping profile attached to an order.
type CustomerInfo struct {
	Name    string
	Phone   string
	Address string
}

// Item returns the line for productID, or nil.
func (o *Order) Item(productID string) *Item {
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			return &o.Items[i]
		}
	}
	return nil
}

// CalculateTotal sums the line subtotals.
func (o *Order) CalculateTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Subtotal())
	}
	return total.Round(2)
}

func (o *Order) putItem(it Item) {
	if cur := o.Item(it.ProductID); cur != nil {
		*cur = it
		return
	}
	o.Items = append(o.Items, it)
}

func (o *Order) removeItem(productID string) {
	o.Items = slices.DeleteFunc(o.Items, func(it Item) bool {
		return it.ProductID == productID
	})
}

// LockMode selects the row lock taken on a product inside a transaction.
type LockMode int

const (
	// LockShare blocks concurrent writers but not other readers.
	LockShare LockMode = iota
	// LockUpdate takes an exclusive row lock.
	LockUpdate
)

// Tx is the set of operations available inside one lifecycle transaction.
// Implementations must hold row locks until the transaction ends.
type Tx interface {
	// LockCustomerByAccount resolves and locks the customer owning accountID.
	LockCustomerByAccount(ctx context.Context, accountID string) (customerID string, err error)
	// LockCustomer locks a customer row by id.
	LockCustomer(ctx context.Context, customerID string) error
	GetProduct(ctx context.Context, id string, mode LockMode) (*product.Product, error)
	// FindOpenOrder returns the customer's OPEN order with items, or nil.
	FindOpenOrder(ctx context.Context, customerID string) (*Order, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	CreateOrder(ctx context.Context, o *Order) error
	// PutItem inserts the line or replaces quantity and price of the line
	// with the same (order, product).
	PutItem(ctx context.Context, it *Item) error
	DeleteItem(ctx context.Context, orderID, productID string) (bool, error)
	SetTotal(ctx context.Context, orderID string, total decimal.Decimal) error
	SetStatus(ctx context.Context, orderID string, status Status) error
	DeleteOrder(ctx context.Context, orderID string) (bool, error)
	// DecrementStock fails with *apperr.InsufficientStockError rather than
	// letting stock go negative.
	DecrementStock(ctx context.Context, productID string, qty int) error
}

// Reader serves the read-only order queries.
type Reader interface {
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context) ([]Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	FindOpen(ctx context.Context, customerID string) (*Order, error)
	CustomerIDByAccount(ctx context.Context, accountID string) (string, error)
}

// Store runs lifecycle transactions. InTx commits when fn returns nil and
// rolls back otherwise.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
