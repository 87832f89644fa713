package order

import (
	"context"
	"maps"
	"math"
	"slices"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/product"
)

// --- Mock implementations ---

// memStore is a transactional in-memory Store. Transactions are serialized
// by a single mutex and a failed transaction restores the state it started
// from, which is what the row locks and rollback give us in PostgreSQL.
type memStore struct {
	mu        sync.Mutex
	products  map[string]product.Product
	customers map[string]string // account id -> customer id
	orders    map[string]*Order
}

func newMemStore() *memStore {
	return &memStore{
		products:  make(map[string]product.Product),
		customers: make(map[string]string),
		orders:    make(map[string]*Order),
	}
}

func (s *memStore) addProduct(id, price string, stock int) {
	s.products[id] = product.Product{
		ID:            id,
		Name:          "product " + id,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
	}
}

func (s *memStore) addCustomer(accountID, customerID string) {
	s.customers[accountID] = customerID
}

func (s *memStore) stock(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].StockQuantity
}

func (s *memStore) setPrice(id, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[id]
	p.Price = decimal.RequireFromString(price)
	s.products[id] = p
}

func (s *memStore) openOrders(customerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.orders {
		if o.CustomerID == customerID && o.Status == StatusOpen {
			n++
		}
	}
	return n
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := maps.Clone(s.products)
	orders := make(map[string]*Order, len(s.orders))
	for id, o := range s.orders {
		orders[id] = cloneOrder(o)
	}

	if err := fn(ctx, &memTx{s: s}); err != nil {
		s.products = products
		s.orders = orders
		return err
	}
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	return cloneOrder(o), nil
}

func (s *memStore) List(_ context.Context) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *cloneOrder(o))
	}
	return out, nil
}

func (s *memStore) ListByCustomer(_ context.Context, customerID string) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Order{}
	for _, o := range s.orders {
		if o.CustomerID == customerID {
			out = append(out, *cloneOrder(o))
		}
	}
	return out, nil
}

func (s *memStore) FindOpen(_ context.Context, customerID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s: s}).findOpen(customerID), nil
}

func (s *memStore) CustomerIDByAccount(_ context.Context, accountID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.customers[accountID]
	if !ok {
		return "", apperr.NotFound("customer", accountID)
	}
	return id, nil
}

type memTx struct {
	s *memStore
}

func (t *memTx) LockCustomerByAccount(_ context.Context, accountID string) (string, error) {
	id, ok := t.s.customers[accountID]
	if !ok {
		return "", apperr.NotFound("customer", accountID)
	}
	return id, nil
}

func (t *memTx) LockCustomer(_ context.Context, customerID string) error {
	for _, id := range t.s.customers {
		if id == customerID {
			return nil
		}
	}
	return apperr.NotFound("customer", customerID)
}

func (t *memTx) GetProduct(_ context.Context, id string, _ LockMode) (*product.Product, error) {
	p, ok := t.s.products[id]
	if !ok {
		return nil, product.NotFound(id)
	}
	return &p, nil
}

func (t *memTx) findOpen(customerID string) *Order {
	for _, o := range t.s.orders {
		if o.CustomerID == customerID && o.Status == StatusOpen {
			return cloneOrder(o)
		}
	}
	return nil
}

func (t *memTx) FindOpenOrder(_ context.Context, customerID string) (*Order, error) {
	return t.findOpen(customerID), nil
}

func (t *memTx) GetOrder(_ context.Context, id string) (*Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	return cloneOrder(o), nil
}

func (t *memTx) CreateOrder(_ context.Context, o *Order) error {
	if o.Status == StatusOpen && t.findOpen(o.CustomerID) != nil {
		return &apperr.ConflictError{Entity: "order", Reason: "customer already has an open order"}
	}
	c := cloneOrder(o)
	c.Items = nil
	t.s.orders[o.ID] = c
	return nil
}

func (t *memTx) PutItem(_ context.Context, it *Item) error {
	o, ok := t.s.orders[it.OrderID]
	if !ok {
		return apperr.NotFound("order", it.OrderID)
	}
	o.putItem(*it)
	return nil
}

func (t *memTx) DeleteItem(_ context.Context, orderID, productID string) (bool, error) {
	o, ok := t.s.orders[orderID]
	if !ok || o.Item(productID) == nil {
		return false, nil
	}
	o.removeItem(productID)
	return true, nil
}

func (t *memTx) SetTotal(_ context.Context, orderID string, total decimal.Decimal) error {
	t.s.orders[orderID].Total = total
	return nil
}

func (t *memTx) SetStatus(_ context.Context, orderID string, status Status) error {
	t.s.orders[orderID].Status = status
	return nil
}

func (t *memTx) DeleteOrder(_ context.Context, orderID string) (bool, error) {
	if _, ok := t.s.orders[orderID]; !ok {
		return false, nil
	}
	delete(t.s.orders, orderID)
	return true, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID string, qty int) error {
	p, ok := t.s.products[productID]
	if !ok {
		return product.NotFound(productID)
	}
	if p.StockQuantity < qty {
		return &apperr.InsufficientStockError{
			ProductID: productID,
			Name:      p.Name,
			Available: p.StockQuantity,
			Requested: qty,
		}
	}
	p.StockQuantity -= qty
	t.s.products[productID] = p
	return nil
}

func cloneOrder(o *Order) *Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	return &c
}

// --- Helpers ---

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	svc, err := NewService(store, nil)
	require.NoError(t, err)
	return svc
}

func requireTotalConsistent(t *testing.T, o *Order) {
	t.Helper()
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.PriceAtOrder.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	require.True(t, sum.Equal(o.Total), "total %s != sum of lines %s", o.Total, sum)
}

// --- Tests ---

func TestService_AddItem(t *testing.T) {
	t.Run("creates open order and replaces quantity", func(t *testing.T) {
		store := newMemStore()
		store.addProduct("p", "10.00", 5)
		store.addCustomer("acc", "cust")
		svc := newTestService(t, store)
		ctx := context.Background()

		o, err := svc.AddItem(ctx, "acc", "p", 3)
		require.NoError(t, err)
		assert.Equal(t, StatusOpen, o.Status)
		assert.True(t, decimal.RequireFromString("30").Equal(o.Total), "got %s", o.Total)
		requireTotalConsistent(t, o)

		o2, err := svc.AddItem(ctx, "acc", "p", 2)
		require.NoError(t, err)
		assert.Equal(t, o.ID, o2.ID)
		require.Len(t, o2.Items, 1)
		assert.Equal(t, 2, o2.Items[0].Quantity)
		assert.True(t, decimal.RequireFromString("20").Equal(o2.Total), "got %s", o2.Total)
		requireTotalConsistent(t, o2)

		assert.Equal(t, 5, store.stock("p"))
		assert.Equal(t, 1, store.openOrders("cust"))
	})

	t.Run("reprices existing line", func(t *testing.T) {
		store := newMemStore()
		store.addProduct("p", "10.00", 5)
		store.addCustomer("acc", "cust")
		svc := newTestService(t, store)
		ctx := context.Background()

		_, err := svc.AddItem(ctx, "acc", "p", 1)
		require.NoError(t, err)
		store.setPrice("p", "12.50")

		o, err := svc.AddItem(ctx, "acc", "p", 2)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("12.50").Equal(o.Items[0].PriceAtOrder))
		assert.True(t, decimal.RequireFromString("25").Equal(o.Total))
	})

	t.Run("insufficient stock", func(t *testing.T) {
		store := newMemStore()
		store.addProduct("p", "10.00", 2)
		store.addCustomer("acc", "cust")
		svc := newTestService(t, store)

		_, err := svc.AddItem(context.Background(), "acc", "p", 3)
		var stockErr *apperr.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, 2, stockErr.Available)
		assert.Equal(t, 3, stockErr.Requested)
		assert.Equal(t, 0, store.openOrders("cust"))
	})

	t.Run("quantity out of range", func(t *testing.T) {
		store := newMemStore()
		store.addProduct("p", "10.00", 2)
		store.addCustomer("acc", "cust")
		svc := newTestService(t, store)

		for _, qty := range []int{0, -1, product.MaxQuantity + 1, math.MaxInt} {
			_, err := svc.AddItem(context.Background(), "acc", "p", qty)
			var valErr *apperr.ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Equal(t, "quantity", valErr.Field)
		}
	})

	t.Run("unknown product", func(t *testing.T) {
		store := newMemStore()
		store.addCustomer("acc", "cust")
		svc := newTestService(t, store)

		_, err := svc.AddItem(context.Background(), "acc", "missing", 1)
		require.True(t, apperr.IsNotFound(err))
		assert.Equal(t, 0, store.openOrders("cust"))
	})

	t.Run("account without customer", func(t *testing.T) {
		store := newMemStore()
		store.addProduct("p", "10.00", 2)
		svc := newTestService(t, store)

		_, err := svc.AddItem(context.Background(), "nobody", "p", 1)
		require.True(t, apperr.IsNotFound(err))
	})
}

func TestService_RemoveItem(t *testing.T) {
	t.Run("last item deletes order", func(t *testing.T) {
		store := newMemStore()
		store.addProduct("p", "10.00", 5)
		store.addCustomer("acc", "cust")
		svc := newTestService(t, store)
		ctx := context.Background()

		_, err := svc.AddItem(ctx, "acc", "p", 1)
		require.NoError(t, err)

		o, err := svc.RemoveItem(ctx, "acc", "p")
		require.NoError(t, err)
		assert.Nil(t, o)

		_, err = svc.Open(ctx, "acc")
		require.True(t, apperr.IsNotFound(err))
		assert.Equal(t, 0, store.openOrders("cust"))
	})

	t.Run("recomputes total", func(t *testing.T) {
		store := newMemStore()
		store.addProduct("a", "10.00", 5)
		store.addProduct("b", "2.25", 5)
		store.addCustomer("acc", "cust")
		svc := newTestService(t, store)
		ctx := context.Background()

		_, err := svc.AddItem(ctx, "acc", "a", 1)
		require.NoError(t, err)
		_, err = svc.AddItem(ctx, "acc", "b", 2)
		require.NoError(t, err)

		o, err := svc.RemoveItem(ctx, "acc", "a")
		require.NoError(t, err)
		require.Len(t, o.Items, 1)
		assert.True(t, decimal.RequireFromString("4.50").Equal(o.Total))
		requireTotalConsistent(t, o)
	})

	t.Run("missing line", func(t *testing.T) {
		store := newMemStore()
		store.addProduct("p", "10.00", 5)
		store.addCustomer("acc", "cust")
		svc := newTestService(t, store)
		ctx := context.Background()

		_, err := svc.AddItem(ctx, "acc", "p", 1)
		require.NoError(t, err)

		_, err = svc.RemoveItem(ctx, "acc", "other")
		var nf *apperr.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "order item", nf.Entity)
	})

	t.Run("no open order", func(t *testing.T) {
		store := newMemStore()
		store.addCustomer("acc", "cust")
		svc := newTestService(t, store)

		_, err := svc.RemoveItem(context.Background(), "acc", "p")
		require.True(t, apperr.IsNotFound(err))
	})
}

func TestService_Close(t *testing.T) {
	t.Run("decrements stock and freezes prices", func(t *testing.T) {
		store := newMemStore()
		store.addProduct("p", "10.00", 5)
		store.addCustomer("acc", "cust")
		svc := newTestService(t, store)
		ctx := context.Background()

		_, err := svc.AddItem(ctx, "acc", "p", 3)
		require.NoError(t, err)
		_, err = svc.AddItem(ctx, "acc", "p", 2)
		require.NoError(t, err)

		o, err := svc.Close(ctx, "acc")
		require.NoError(t, err)
		assert.Equal(t, StatusClosed, o.Status)
		assert.Equal(t, 3, store.stock("p"))

		store.setPrice("p", "15.00")
		got, err := svc.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("20").Equal(got.Total))
		assert.True(t, decimal.RequireFromString("10").Equal(got.Items[0].PriceAtOrder))
		assert.Equal(t, 0, store.openOrders("cust"))
	})

	t.Run("all or nothing", func(t *testing.T) {
		store := newMemStore()
		store.addProduct("a", "1.00", 10)
		store.addProduct("b", "1.00", 10)
		store.addCustomer("acc", "cust")
		store.addCustomer("other", "cust2")
		svc := newTestService(t, store)
		ctx := context.Background()

		_, err := svc.AddItem(ctx, "acc", "a", 4)
		require.NoError(t, err)
		_, err = svc.AddItem(ctx, "acc", "b", 8)
		require.NoError(t, err)

		// Someone else buys most of b before checkout.
		_, err = svc.AddItem(ctx, "other", "b", 5)
		require.NoError(t, err)
		_, err = svc.Close(ctx, "other")
		require.NoError(t, err)

		_, err = svc.Close(ctx, "acc")
		var stockErr *apperr.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, "b", stockErr.ProductID)
		assert.Equal(t, 5, stockErr.Available)
		assert.Equal(t, 8, stockErr.Requested)

		assert.Equal(t, 10, store.stock("a"))
		assert.Equal(t, 5, store.stock("b"))
		open, err := svc.Open(ctx, "acc")
		require.NoError(t, err)
		assert.Equal(t, StatusOpen, open.Status)
	})

	t.Run("no open order", func(t *testing.T) {
		store := newMemStore()
		store.addCustomer("acc", "cust")
		svc := newTestService(t, store)

		_, err := svc.Close(context.Background(), "acc")
		require.True(t, apperr.IsNotFound(err))
	})

	t.Run("empty order", func(t *testing.T) {
		store := newMemStore()
		store.addCustomer("acc", "cust")
		store.orders["o"] = &Order{ID: "o", CustomerID: "cust", Status: StatusOpen}
		svc := newTestService(t, store)

		_, err := svc.Close(context.Background(), "acc")
		var empty *apperr.EmptyOrderError
		require.ErrorAs(t, err, &empty)
		assert.Equal(t, "o", empty.OrderID)
	})
}

func TestService_ConcurrentClose(t *testing.T) {
	const customers = 8

	store := newMemStore()
	store.addProduct("p", "10.00", 5)
	for i := range customers {
		acc := string(rune('a' + i))
		store.addCustomer(acc, "cust-"+acc)
	}
	svc := newTestService(t, store)
	ctx := context.Background()

	for i := range customers {
		_, err := svc.AddItem(ctx, string(rune('a'+i)), "p", 3)
		require.NoError(t, err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failed    []error
	)
	for i := range customers {
		wg.Add(1)
		go func(acc string) {
			defer wg.Done()
			_, err := svc.Close(ctx, acc)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, err)
				return
			}
			succeeded++
		}(string(rune('a' + i)))
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 2, store.stock("p"))
	for _, err := range failed {
		var stockErr *apperr.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.LessOrEqual(t, stockErr.Available, 2)
		assert.Equal(t, 3, stockErr.Requested)
	}
}

func TestService_DeleteOpen(t *testing.T) {
	store := newMemStore()
	store.addProduct("p", "10.00", 5)
	store.addCustomer("acc", "cust")
	svc := newTestService(t, store)
	ctx := context.Background()

	deleted, err := svc.DeleteOpen(ctx, "acc")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = svc.AddItem(ctx, "acc", "p", 2)
	require.NoError(t, err)

	deleted, err = svc.DeleteOpen(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, 5, store.stock("p"))
	assert.Equal(t, 0, store.openOrders("cust"))

	deleted, err = svc.DeleteOpen(ctx, "unknown-account")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestService_UpdateStatus(t *testing.T) {
	store := newMemStore()
	store.addProduct("p", "10.00", 5)
	store.addCustomer("acc", "cust")
	svc := newTestService(t, store)
	ctx := context.Background()

	open, err := svc.AddItem(ctx, "acc", "p", 1)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, open.ID, "shipped")
	var valErr *apperr.ValidationError
	require.ErrorAs(t, err, &valErr)

	closed, err := svc.Close(ctx, "acc")
	require.NoError(t, err)

	o, err := svc.UpdateStatus(ctx, closed.ID, "shipped")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, o.Status)
	assert.True(t, closed.Total.Equal(o.Total))
	assert.Equal(t, 4, store.stock("p"))

	_, err = svc.UpdateStatus(ctx, closed.ID, "LOST")
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "status", valErr.Field)

	_, err = svc.UpdateStatus(ctx, "missing", "PENDING")
	require.True(t, apperr.IsNotFound(err))
}

func TestService_PlaceOrder(t *testing.T) {
	t.Run("merges lines and reserves stock", func(t *testing.T) {
		store := newMemStore()
		store.addProduct("a", "3.10", 10)
		store.addProduct("b", "1.00", 10)
		store.addCustomer("acc", "cust")
		svc := newTestService(t, store)

		o, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
			CustomerID: "cust",
			Items: []LineRequest{
				{ProductID: "b", Quantity: 1},
				{ProductID: "a", Quantity: 2},
				{ProductID: "b", Quantity: 3},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, StatusPending, o.Status)
		require.Len(t, o.Items, 2)
		assert.True(t, decimal.RequireFromString("10.20").Equal(o.Total), "got %s", o.Total)
		requireTotalConsistent(t, o)
		assert.Equal(t, 8, store.stock("a"))
		assert.Equal(t, 6, store.stock("b"))
	})

	t.Run("rolls back on insufficient stock", func(t *testing.T) {
		store := newMemStore()
		store.addProduct("a", "1.00", 10)
		store.addProduct("b", "1.00", 1)
		store.addCustomer("acc", "cust")
		svc := newTestService(t, store)

		_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
			CustomerID: "cust",
			Items: []LineRequest{
				{ProductID: "a", Quantity: 2},
				{ProductID: "b", Quantity: 2},
			},
		})
		var stockErr *apperr.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, 10, store.stock("a"))
		assert.Equal(t, 1, store.stock("b"))

		all, err := svc.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("validation", func(t *testing.T) {
		svc := newTestService(t, newMemStore())

		tests := []struct {
			name  string
			req   PlaceOrderRequest
			field string
		}{
			{name: "no customer", req: PlaceOrderRequest{Items: []LineRequest{{ProductID: "a", Quantity: 1}}}, field: "customer_id"},
			{name: "no items", req: PlaceOrderRequest{CustomerID: "c"}, field: "items"},
			{name: "zero quantity", req: PlaceOrderRequest{CustomerID: "c", Items: []LineRequest{{ProductID: "a"}}}, field: "quantity"},
			{
				name:  "merged quantity overflows int",
				req:   PlaceOrderRequest{CustomerID: "c", Items: []LineRequest{{ProductID: "a", Quantity: math.MaxInt}, {ProductID: "a", Quantity: 1}}},
				field: "quantity",
			},
			{
				name:  "merged quantity above column range",
				req:   PlaceOrderRequest{CustomerID: "c", Items: []LineRequest{{ProductID: "a", Quantity: product.MaxQuantity}, {ProductID: "a", Quantity: 1}}},
				field: "quantity",
			},
			{
				name:  "line quantity above column range",
				req:   PlaceOrderRequest{CustomerID: "c", Items: []LineRequest{{ProductID: "a", Quantity: product.MaxQuantity + 1}}},
				field: "quantity",
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.PlaceOrder(context.Background(), tt.req)
				var valErr *apperr.ValidationError
				require.ErrorAs(t, err, &valErr)
				assert.Equal(t, tt.field, valErr.Field)
			})
		}
	})
}

func TestService_Delete(t *testing.T) {
	store := newMemStore()
	store.addProduct("p", "10.00", 5)
	store.addCustomer("acc", "cust")
	svc := newTestService(t, store)
	ctx := context.Background()

	open, err := svc.AddItem(ctx, "acc", "p", 1)
	require.NoError(t, err)

	err = svc.Delete(ctx, open.ID)
	var valErr *apperr.ValidationError
	require.ErrorAs(t, err, &valErr)

	closed, err := svc.Close(ctx, "acc")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, closed.ID))
	assert.Equal(t, 4, store.stock("p"))

	err = svc.Delete(ctx, closed.ID)
	require.True(t, apperr.IsNotFound(err))
}

func TestService_ListForAccount(t *testing.T) {
	store := newMemStore()
	store.addProduct("p", "10.00", 5)
	store.addCustomer("acc", "cust")
	svc := newTestService(t, store)
	ctx := context.Background()

	orders, err := svc.ListForAccount(ctx, "no-profile")
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, err = svc.AddItem(ctx, "acc", "p", 1)
	require.NoError(t, err)
	orders, err = svc.ListForAccount(ctx, "acc")
	require.NoError(t, err)
	require.Len(t, orders, 1)

	owned, err := svc.OwnedBy(ctx, &orders[0], "acc")
	require.NoError(t, err)
	assert.True(t, owned)
	owned, err = svc.OwnedBy(ctx, &orders[0], "no-profile")
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestParseFulfillmentStatus(t *testing.T) {
	st, err := ParseFulfillmentStatus(" delivered ")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, st)

	for _, bad := range []string{"", "OPEN", "closed", "unknown"} {
		_, err := ParseFulfillmentStatus(bad)
		var valErr *apperr.ValidationError
		require.ErrorAs(t, err, &valErr, bad)
	}
}
