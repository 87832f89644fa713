package order

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/product"
)

// errNoOpenOrder is returned when an operation needs the caller's draft.
var errNoOpenOrder = apperr.NotFound("open order", "")

// LineRequest is a requested product quantity.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order directly.
type PlaceOrderRequest struct {
	CustomerID string
	Items      []LineRequest
}

// Service is the order lifecycle manager. It owns orders and their lines and
// is the only component that changes stock as part of an order transition.
type Service struct {
	store  Store
	now    func() time.Time
	tracer trace.Tracer

	checkouts metric.Int64Counter
	mutations metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for order dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTracerProvider enables tracing of lifecycle operations.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("storefront/order") }
}

// NewService creates an order Service. When no meter provider is given the
// counters are no-ops.
func NewService(store Store, mp metric.MeterProvider, opts ...Option) (*Service, error) {
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	s := &Service{
		store:  store,
		now:    time.Now,
		tracer: tracenoop.NewTracerProvider().Tracer("storefront/order"),
	}
	for _, o := range opts {
		o(s)
	}

	meter := mp.Meter("storefront/order")
	var err error
	if s.checkouts, err = meter.Int64Counter("orders.checkout.total",
		metric.WithDescription("Checkout attempts by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "checkout counter")
	}
	if s.mutations, err = meter.Int64Counter("orders.items.mutations",
		metric.WithDescription("Line item mutations on open orders"),
	); err != nil {
		return nil, errors.Wrap(err, "mutation counter")
	}
	return s, nil
}

// AddItem sets the quantity of productID in the account's open order,
// creating the order on first use. The line price is refreshed to the
// current catalog price on every call.
func (s *Service) AddItem(ctx context.Context, accountID, productID string, qty int) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.AddItem")
	defer span.End()

	if strings.TrimSpace(productID) == "" {
		return nil, apperr.Invalid("product_id", "is required")
	}
	if qty <= 0 {
		return nil, apperr.Invalid("quantity", "must be greater than 0")
	}
	if qty > product.MaxQuantity {
		return nil, product.TooMany("quantity")
	}

	var result *Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		customerID, err := tx.LockCustomerByAccount(ctx, accountID)
		if err != nil {
			return err
		}

		p, err := tx.GetProduct(ctx, productID, LockShare)
		if err != nil {
			return err
		}
		if p.StockQuantity < qty {
			return &apperr.InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Available: p.StockQuantity,
				Requested: qty,
			}
		}

		o, err := tx.FindOpenOrder(ctx, customerID)
		if err != nil {
			return errors.Wrap(err, "find open order")
		}
		if o == nil {
			o = &Order{
				ID:         uuid.New().String(),
				CustomerID: customerID,
				Status:     StatusOpen,
				Total:      decimal.Zero,
				OrderDate:  s.now(),
			}
			if err := tx.CreateOrder(ctx, o); err != nil {
				return errors.Wrap(err, "create open order")
			}
		}

		it := Item{
			ID:           uuid.New().String(),
			OrderID:      o.ID,
			ProductID:    p.ID,
			Quantity:     qty,
			PriceAtOrder: p.Price,
		}
		if cur := o.Item(p.ID); cur != nil {
			it.ID = cur.ID
		}
		if err := tx.PutItem(ctx, &it); err != nil {
			return errors.Wrap(err, "put item")
		}
		o.putItem(it)

		if err := tx.SetTotal(ctx, o.ID, o.CalculateTotal()); err != nil {
			return errors.Wrap(err, "set total")
		}

		result, err = tx.GetOrder(ctx, o.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "add")))
	return result, nil
}

// RemoveItem deletes productID from the account's open order. When the last
// line goes the order is deleted and a nil order is returned.
func (s *Service) RemoveItem(ctx context.Context, accountID, productID string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.RemoveItem")
	defer span.End()

	if strings.TrimSpace(productID) == "" {
		return nil, apperr.Invalid("product_id", "is required")
	}

	var result *Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		customerID, err := tx.LockCustomerByAccount(ctx, accountID)
		if err != nil {
			return err
		}

		o, err := tx.FindOpenOrder(ctx, customerID)
		if err != nil {
			return errors.Wrap(err, "find open order")
		}
		if o == nil {
			return errNoOpenOrder
		}

		deleted, err := tx.DeleteItem(ctx, o.ID, productID)
		if err != nil {
			return errors.Wrap(err, "delete item")
		}
		if !deleted {
			return apperr.NotFound("order item", productID)
		}
		o.removeItem(productID)

		if len(o.Items) == 0 {
			if _, err := tx.DeleteOrder(ctx, o.ID); err != nil {
				return errors.Wrap(err, "delete empty order")
			}
			return nil
		}

		if err := tx.SetTotal(ctx, o.ID, o.CalculateTotal()); err != nil {
			return errors.Wrap(err, "set total")
		}
		result, err = tx.GetOrder(ctx, o.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "remove")))
	return result, nil
}

// Close checks out the account's open order: every line is re-validated
// against current stock, stock is decremented and the order becomes CLOSED.
// Nothing changes unless every line passes.
func (s *Service) Close(ctx context.Context, accountID string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Close")
	defer span.End()

	var result *Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		customerID, err := tx.LockCustomerByAccount(ctx, accountID)
		if err != nil {
			return err
		}

		o, err := tx.FindOpenOrder(ctx, customerID)
		if err != nil {
			return errors.Wrap(err, "find open order")
		}
		if o == nil {
			return errNoOpenOrder
		}
		if len(o.Items) == 0 {
			return &apperr.EmptyOrderError{OrderID: o.ID}
		}

		lines := make([]LineRequest, len(o.Items))
		for i, it := range o.Items {
			lines[i] = LineRequest{ProductID: it.ProductID, Quantity: it.Quantity}
		}
		if err := reserve(ctx, tx, lines); err != nil {
			return err
		}

		if err := tx.SetStatus(ctx, o.ID, StatusClosed); err != nil {
			return errors.Wrap(err, "set status")
		}
		result, err = tx.GetOrder(ctx, o.ID)
		return err
	})
	s.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome(err))))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteOpen drops the account's open order. Stock is untouched because
// nothing was reserved. It reports false when there was no open order.
func (s *Service) DeleteOpen(ctx context.Context, accountID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "order.DeleteOpen")
	defer span.End()

	var deleted bool
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		customerID, err := tx.LockCustomerByAccount(ctx, accountID)
		if err != nil {
			if apperr.IsNotFound(err) {
				return nil
			}
			return err
		}

		o, err := tx.FindOpenOrder(ctx, customerID)
		if err != nil {
			return errors.Wrap(err, "find open order")
		}
		if o == nil {
			return nil
		}
		deleted, err = tx.DeleteOrder(ctx, o.ID)
		return err
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// UpdateStatus applies a fulfillment label to a checked-out order. It never
// touches stock or totals.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus")
	defer span.End()

	st, err := ParseFulfillmentStatus(status)
	if err != nil {
		return nil, err
	}

	var result *Order
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == StatusOpen {
			return apperr.Invalid("status", "open order must be closed before fulfillment")
		}
		if err := tx.SetStatus(ctx, o.ID, st); err != nil {
			return errors.Wrap(err, "set status")
		}
		result, err = tx.GetOrder(ctx, o.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PlaceOrder creates a PENDING order for a customer in one step, reserving
// stock for every line. Repeated product ids are merged.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer span.End()

	if strings.TrimSpace(req.CustomerID) == "" {
		return nil, apperr.Invalid("customer_id", "is required")
	}
	lines, err := mergeLines(req.Items)
	if err != nil {
		return nil, err
	}

	var result *Order
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockCustomer(ctx, req.CustomerID); err != nil {
			return err
		}

		o := &Order{
			ID:         uuid.New().String(),
			CustomerID: req.CustomerID,
			Status:     StatusPending,
			OrderDate:  s.now(),
		}
		for _, l := range lines {
			p, err := tx.GetProduct(ctx, l.ProductID, LockUpdate)
			if err != nil {
				return err
			}
			o.Items = append(o.Items, Item{
				ID:           uuid.New().String(),
				OrderID:      o.ID,
				ProductID:    p.ID,
				Quantity:     l.Quantity,
				PriceAtOrder: p.Price,
			})
		}
		if err := reserve(ctx, tx, lines); err != nil {
			return err
		}

		o.Total = o.CalculateTotal()
		if err := tx.CreateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		for i := range o.Items {
			if err := tx.PutItem(ctx, &o.Items[i]); err != nil {
				return errors.Wrap(err, "put item")
			}
		}
		result, err = tx.GetOrder(ctx, o.ID)
		return err
	})
	s.checkouts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome(err)),
		attribute.Bool("direct", true),
	))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a checked-out order and its lines. Stock is not restored.
func (s *Service) Delete(ctx context.Context, orderID string) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == StatusOpen {
			return apperr.Invalid("order_id", "open orders are removed by their owner")
		}
		_, err = tx.DeleteOrder(ctx, o.ID)
		return err
	})
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.store.Get(ctx, orderID)
}

// List returns every order, newest first.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.store.List(ctx)
}

// ListForAccount returns the orders of the customer owning accountID. An
// account without a customer profile has no orders.
func (s *Service) ListForAccount(ctx context.Context, accountID string) ([]Order, error) {
	customerID, err := s.store.CustomerIDByAccount(ctx, accountID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return []Order{}, nil
		}
		return nil, err
	}
	return s.store.ListByCustomer(ctx, customerID)
}

// OwnedBy reports whether the order belongs to the customer of accountID.
func (s *Service) OwnedBy(ctx context.Context, o *Order, accountID string) (bool, error) {
	customerID, err := s.store.CustomerIDByAccount(ctx, accountID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return o.CustomerID == customerID, nil
}

// Open returns the account's open order.
func (s *Service) Open(ctx context.Context, accountID string) (*Order, error) {
	customerID, err := s.store.CustomerIDByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	o, err := s.store.FindOpen(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, errNoOpenOrder
	}
	return o, nil
}

// reserve locks the products of lines in id order, checks every line and
// only then decrements stock, so a failure leaves no partial decrement even
// before the transaction is rolled back.
func reserve(ctx context.Context, tx Tx, lines []LineRequest) error {
	sorted := slices.Clone(lines)
	slices.SortFunc(sorted, func(a, b LineRequest) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})

	for _, l := range sorted {
		p, err := tx.GetProduct(ctx, l.ProductID, LockUpdate)
		if err != nil {
			return err
		}
		if p.StockQuantity < l.Quantity {
			return &apperr.InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Available: p.StockQuantity,
				Requested: l.Quantity,
			}
		}
	}
	for _, l := range sorted {
		if err := tx.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// mergeLines folds repeated product ids and returns the lines in lock order.
func mergeLines(items []LineRequest) ([]LineRequest, error) {
	if len(items) == 0 {
		return nil, apperr.Invalid("items", "at least one item is required")
	}
	merged := make([]LineRequest, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return nil, apperr.Invalid("product_id", "is required")
		}
		if it.Quantity <= 0 {
			return nil, apperr.Invalid("quantity", "must be greater than 0 for product "+it.ProductID)
		}
		if it.Quantity > product.MaxQuantity {
			return nil, product.TooMany("quantity")
		}
		if i, ok := index[it.ProductID]; ok {
			if it.Quantity > product.MaxQuantity-merged[i].Quantity {
				return nil, product.TooMany("quantity")
			}
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, it)
	}
	slices.SortFunc(merged, func(a, b LineRequest) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return merged, nil
}

func outcome(err error) string {
	var (
		stock *apperr.InsufficientStockError
		empty *apperr.EmptyOrderError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &stock):
		return "insufficient_stock"
	case errors.As(err, &empty):
		return "empty"
	case apperr.IsNotFound(err):
		return "not_found"
	case apperr.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
