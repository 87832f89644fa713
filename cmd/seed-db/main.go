package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	Category      string          `json:"category"`
	Brand         string          `json:"brand"`
	ImageURL      string          `json:"image_url"`
	ImageAltText  string          `json:"image_alt_text"`
}

type options struct {
	databaseURL   string
	productsFile  string
	adminUser     string
	adminPassword string
	samples       int
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&opts.adminUser, "admin-user", "admin", "username of the admin account to create")
	flag.StringVar(&opts.adminPassword, "admin-password", "", "admin password (or SHOP_ADMIN_PASSWORD env)")
	flag.IntVar(&opts.samples, "sample-customers", 0, "number of sample customers with order history to create")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.adminPassword == "" {
		opts.adminPassword = os.Getenv("SHOP_ADMIN_PASSWORD")
	}
	if opts.adminPassword == "" {
		slog.Error("admin password is required: set --admin-password or SHOP_ADMIN_PASSWORD")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := postgres.NewProductRepository(pool)
	accounts := postgres.NewAccountRepository(pool)
	customers := customer.NewService(postgres.NewCustomerRepository(pool, postgres.TxOptions{}), accounts)

	seeded, err := seedProducts(ctx, products, opts.productsFile)
	if err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedAdmin(ctx, customers, accounts, opts.adminUser, opts.adminPassword); err != nil {
		return errors.Wrap(err, "seed admin")
	}

	if opts.samples > 0 {
		if err := seedSamples(ctx, pool, customers, seeded, opts.samples); err != nil {
			return errors.Wrap(err, "seed samples")
		}
	}

	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, productsFile string) ([]product.Product, error) {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}

	var items []productJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}

	now := time.Now()
	products := make([]product.Product, 0, len(items))
	for _, p := range items {
		d := product.Draft{
			Name:          p.Name,
			Description:   p.Description,
			Price:         p.Price,
			StockQuantity: p.StockQuantity,
			Category:      p.Category,
			Brand:         p.Brand,
			Image:         product.Image{URL: p.ImageURL, AltText: p.ImageAltText},
		}
		if err := d.Validate(); err != nil {
			return nil, errors.Wrapf(err, "product %s", p.ID)
		}
		products = append(products, product.Product{
			ID:            p.ID,
			Name:          d.Name,
			Description:   d.Description,
			Price:         d.Price.Round(2),
			StockQuantity: d.StockQuantity,
			Category:      d.Category,
			Brand:         d.Brand,
			Image:         d.Image,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	if err := repo.Upsert(ctx, products); err != nil {
		return nil, errors.Wrap(err, "upsert products")
	}

	return products, nil
}

func seedAdmin(
	ctx context.Context,
	customers *customer.Service,
	accounts *postgres.AccountRepository,
	username, password string,
) error {
	slog.Info("seeding admin account", slog.String("username", username))

	acc, err := accounts.GetByUsername(ctx, username)
	switch {
	case apperr.IsNotFound(err):
		acc, _, err = customers.Register(ctx, customer.Registration{
			Username: username,
			Password: password,
			Profile:  customer.Profile{FirstName: "Store", LastName: "Admin"},
		})
		if err != nil {
			return errors.Wrap(err, "register admin")
		}
	case err != nil:
		return errors.Wrap(err, "look up admin")
	default:
		slog.Info("admin account exists, keeping its password", slog.String("id", acc.ID))
	}

	if err := accounts.SetAdmin(ctx, acc.ID, true); err != nil {
		return errors.Wrap(err, "grant admin")
	}
	if err := accounts.SetActive(ctx, acc.ID, true); err != nil {
		return errors.Wrap(err, "activate admin")
	}

	slog.Info("admin account ready", slog.String("id", acc.ID))

	return nil
}

var (
	firstNames = []string{"Alice", "Bob", "Carol", "David", "Emma", "Frank", "Grace", "Henry", "Ivy", "Jack"}
	lastNames  = []string{"Johnson", "Smith", "Williams", "Brown", "Davis", "Miller", "Wilson", "Moore", "Taylor", "Clark"}
)

// seedSamples registers n customers and gives each a few placed orders so
// the insights endpoint has history to score.
func seedSamples(ctx context.Context, pool *pgxpool.Pool, customers *customer.Service, products []product.Product, n int) error {
	if len(products) == 0 {
		return errors.New("sample orders need at least one product")
	}

	orders, err := order.NewService(postgres.NewOrderStore(pool, postgres.TxOptions{}), otel.GetMeterProvider())
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	rnd := rand.New(rand.NewPCG(uint64(n), 7))
	var created, placed int
	for i := range n {
		first, last := firstNames[i%len(firstNames)], lastNames[(i/len(firstNames))%len(lastNames)]
		_, c, err := customers.Register(ctx, customer.Registration{
			Username: fmt.Sprintf("sample%03d", i+1),
			Password: fmt.Sprintf("sample-%03d", i+1),
			Profile: customer.Profile{
				FirstName: first,
				LastName:  last,
				Email:     fmt.Sprintf("sample%03d@example.com", i+1),
				Phone:     fmt.Sprintf("555-%04d", i+1),
				Address:   fmt.Sprintf("%d Market Street", 100+i),
			},
		})
		var conflict *apperr.ConflictError
		if errors.As(err, &conflict) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "register sample customer %d", i+1)
		}
		created++

		for range 1 + rnd.IntN(4) {
			lines := make([]order.LineRequest, 0, 3)
			for range 1 + rnd.IntN(3) {
				p := products[rnd.IntN(len(products))]
				lines = append(lines, order.LineRequest{ProductID: p.ID, Quantity: 1 + rnd.IntN(2)})
			}
			_, err := orders.PlaceOrder(ctx, order.PlaceOrderRequest{CustomerID: c.ID, Items: lines})
			var stock *apperr.InsufficientStockError
			if errors.As(err, &stock) {
				slog.Warn("skipping sample order", slog.String("reason", stock.Error()))
				continue
			}
			if err != nil {
				return errors.Wrapf(err, "place sample order for %s", c.ID)
			}
			placed++
		}
	}

	slog.Info("sample data created", slog.Int("customers", created), slog.Int("orders", placed))

	return nil
}
