// Package handler exposes the storefront over HTTP under /api/v1.
//
// Requests and responses are typed structs with hand-written jx codecs.
// Domain errors are mapped to status codes in one place, see writeError.
package handler

import (
	"context"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/favorite"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/predictor"
)

// Prefix is the path prefix of every API route.
const Prefix = "/api/v1"

// Authenticator issues and checks bearer tokens and manages account flags.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (auth.Token, error)
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
	Account(ctx context.Context, id string) (*auth.Account, error)
	ListAccounts(ctx context.Context) ([]auth.Account, error)
	SetAdmin(ctx context.Context, actor auth.Principal, id string, admin bool) error
	SetActive(ctx context.Context, actor auth.Principal, id string, active bool) error
}

// Customers is the customer directory.
type Customers interface {
	Register(ctx context.Context, r customer.Registration) (*auth.Account, *customer.Customer, error)
	Get(ctx context.Context, id string) (*customer.Customer, error)
	GetByAccount(ctx context.Context, accountID string) (*customer.Customer, error)
	List(ctx context.Context) ([]customer.Customer, error)
	Update(ctx context.Context, id string, p customer.Profile) (*customer.Customer, error)
	UpdateShipping(ctx context.Context, accountID string, u customer.ShippingUpdate) (*customer.Customer, error)
	Delete(ctx context.Context, id string) error
}

// Catalog serves product reads and admin writes.
type Catalog interface {
	List(ctx context.Context) ([]product.Product, error)
	Get(ctx context.Context, id string) (*product.Product, error)
	Create(ctx context.Context, d product.Draft) (*product.Product, error)
	Update(ctx context.Context, id string, e product.Edit) (*product.Product, error)
	Delete(ctx context.Context, id string) error
}

// Orders is the order lifecycle manager.
type Orders interface {
	AddItem(ctx context.Context, accountID, productID string, qty int) (*order.Order, error)
	RemoveItem(ctx context.Context, accountID, productID string) (*order.Order, error)
	Close(ctx context.Context, accountID string) (*order.Order, error)
	DeleteOpen(ctx context.Context, accountID string) (bool, error)
	Open(ctx context.Context, accountID string) (*order.Order, error)
	UpdateStatus(ctx context.Context, orderID, status string) (*order.Order, error)
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	Delete(ctx context.Context, orderID string) error
	Get(ctx context.Context, orderID string) (*order.Order, error)
	List(ctx context.Context) ([]order.Order, error)
	ListForAccount(ctx context.Context, accountID string) ([]order.Order, error)
	OwnedBy(ctx context.Context, o *order.Order, accountID string) (bool, error)
}

// Cart is the per-account cart.
type Cart interface {
	List(ctx context.Context, accountID string) ([]cart.Entry, error)
	Add(ctx context.Context, accountID, productID string, qty int) error
	Update(ctx context.Context, accountID, productID string, qty int) error
	Remove(ctx context.Context, accountID, productID string) (bool, error)
	Clear(ctx context.Context, accountID string) error
	Count(ctx context.Context, accountID string) (int, error)
	Total(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// Favorites is the per-account bookmark list.
type Favorites interface {
	List(ctx context.Context, accountID string) ([]favorite.Entry, error)
	Add(ctx context.Context, accountID, productID string) (bool, error)
	Remove(ctx context.Context, accountID, productID string) (bool, error)
	Toggle(ctx context.Context, accountID, productID string) (bool, error)
	Check(ctx context.Context, accountID, productID string) (bool, error)
	Count(ctx context.Context, accountID string) (int, error)
	Clear(ctx context.Context, accountID string) error
}

// Model is the trainable predictor.
type Model interface {
	Ready() bool
	Metrics() (predictor.Metrics, time.Time, error)
	Retrain(n int, seed uint64, dir string) (predictor.Metrics, error)
}

// Insights scores stored customers.
type Insights interface {
	PredictCustomer(ctx context.Context, customerID string) (*predictor.CustomerPrediction, error)
	Insights(ctx context.Context, limit int) (*predictor.Report, error)
	BatchPredict(ctx context.Context) (*predictor.Batch, error)
	Recent(limit int) ([]predictor.CustomerPrediction, error)
}

// Config holds non-dependency settings of the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative product image paths. Empty
	// leaves paths as stored.
	ImageBaseURL string
	// MaxBodyBytes bounds request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
	// ModelDir is where a retrained model is saved. Empty keeps it in
	// memory only.
	ModelDir string
	// TrainingSamples and TrainingSeed parameterize the synthetic dataset
	// used by POST /ml/train.
	TrainingSamples int
	TrainingSeed    uint64
	// InsightsLimit caps GET /ml/insights when no limit is given.
	InsightsLimit int
}

// Deps are the services behind the routes.
type Deps struct {
	Auth      Authenticator
	Customers Customers
	Catalog   Catalog
	Orders    Orders
	Cart      Cart
	Favorites Favorites
	Model     Model
	Insights  Insights
}

// Handler serves the API routes.
type Handler struct {
	Deps
	cfg Config
}

// New creates a Handler.
func New(cfg Config, deps Deps) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.TrainingSamples <= 0 {
		cfg.TrainingSamples = 2000
	}
	if cfg.InsightsLimit <= 0 {
		cfg.InsightsLimit = 100
	}
	cfg.ImageBaseURL = strings.TrimRight(cfg.ImageBaseURL, "/")
	return &Handler{Deps: deps, cfg: cfg}
}

// Register mounts every API route under Prefix on r. Unmatched requests
// on r get JSON 404 and 405 responses.
func (h *Handler) Register(r chi.Router) {
	r.NotFound(routeNotFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Route(Prefix, func(r chi.Router) {
		r.Post("/auth/register", h.register)
		r.Post("/auth/token", h.token)
		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)
		r.Get("/ml/health", h.modelHealth)

		r.Group(func(r chi.Router) {
			r.Use(h.requireUser)

			r.Get("/users/me", h.currentUser)
			r.Get("/customers/me", h.getOwnCustomer)
			r.Put("/customers/me/shipping", h.updateShipping)

			r.Get("/orders/temp", h.getOpenOrder)
			r.Delete("/orders/temp", h.deleteOpenOrder)
			r.Post("/orders/temp/add_item", h.addItem)
			r.Post("/orders/temp/remove_item", h.removeItem)
			r.Post("/orders/temp/close", h.closeOrder)
			r.Get("/orders/user", h.listOwnOrders)
			r.Get("/orders/{id}", h.getOrder)

			r.Get("/cart", h.getCart)
			r.Post("/cart/add", h.addToCart)
			r.Post("/cart/update", h.updateCart)
			r.Delete("/cart/remove/{product_id}", h.removeFromCart)
			r.Delete("/cart/clear", h.clearCart)
			r.Get("/cart/count", h.cartCount)
			r.Get("/cart/total", h.cartTotal)

			r.Get("/favorites", h.listFavorites)
			r.Post("/favorites/add/{product_id}", h.addFavorite)
			r.Delete("/favorites/remove/{product_id}", h.removeFavorite)
			r.Post("/favorites/toggle/{product_id}", h.toggleFavorite)
			r.Get("/favorites/check/{product_id}", h.checkFavorite)
			r.Get("/favorites/count", h.favoriteCount)
			r.Delete("/favorites/clear", h.clearFavorites)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireUser, h.requireAdmin)

			r.Get("/admin/users", h.listAccounts)
			r.Put("/admin/users/{id}/admin-status", h.setAdminStatus)
			r.Put("/admin/users/{id}/active-status", h.setActiveStatus)

			r.Post("/products", h.createProduct)
			r.Put("/products/{id}", h.updateProduct)
			r.Delete("/products/{id}", h.deleteProduct)

			r.Get("/customers", h.listCustomers)
			r.Post("/customers", h.createCustomer)
			r.Get("/customers/{id}", h.getCustomer)
			r.Put("/customers/{id}", h.updateCustomer)
			r.Delete("/customers/{id}", h.deleteCustomer)

			r.Get("/orders", h.listOrders)
			r.Post("/orders", h.placeOrder)
			r.Put("/orders/{id}/status", h.updateOrderStatus)
			r.Delete("/orders/{id}", h.deleteOrder)

			r.Post("/ml/train", h.train)
			r.Post("/ml/predict/{customer_id}", h.predict)
			r.Get("/ml/insights", h.insights)
			r.Get("/ml/batch-predict", h.batchPredict)
			r.Post("/ml/batch-predict", h.batchPredict)
			r.Get("/ml/predictions/recent", h.recentPredictions)
		})
	})
}

// imageURL resolves a stored image path against ImageBaseURL.
func (h *Handler) imageURL(path string) string {
	if path == "" || h.cfg.ImageBaseURL == "" || strings.Contains(path, "://") {
		return path
	}
	return h.cfg.ImageBaseURL + "/" + strings.TrimLeft(path, "/")
}
