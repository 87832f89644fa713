package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/favorite"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/predictor"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := newHealth(pool)
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	txOpts := postgres.TxOptions{
		LockTimeout:      cfg.DB.LockTimeout,
		StatementTimeout: cfg.DB.StatementTimeout,
	}
	productRepo := postgres.NewProductRepository(pool)
	accountRepo := postgres.NewAccountRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool, txOpts)
	orderStore := postgres.NewOrderStore(pool, txOpts)

	// Domain services.
	tokens, err := auth.NewTokens(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		return errors.Wrap(err, "create token issuer")
	}
	orderService, err := order.NewService(orderStore, m.MeterProvider(),
		order.WithTracerProvider(m.TracerProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	customerService := customer.NewService(customerRepo, accountRepo)

	model, err := loadModel(lg, cfg.Model)
	if err != nil {
		return errors.Wrap(err, "load predictor")
	}

	h := handler.New(handler.Config{
		ImageBaseURL:    cfg.ImageBaseURL,
		ModelDir:        cfg.Model.Dir,
		TrainingSamples: cfg.Model.TrainingSamples,
		TrainingSeed:    cfg.Model.TrainingSeed,
		InsightsLimit:   cfg.Model.InsightsLimit,
	}, handler.Deps{
		Auth:      auth.NewService(accountRepo, tokens),
		Customers: customerService,
		Catalog:   product.NewCatalog(productRepo),
		Orders:    orderService,
		Cart:      cart.NewService(postgres.NewCartRepository(pool), productRepo),
		Favorites: favorite.NewService(postgres.NewFavoriteRepository(pool), productRepo),
		Model:     model,
		Insights:  predictor.NewAnalyzer(model, customerService, orderService, cfg.Model.InsightsConcurrency),
	})

	// Router: health endpoints + API routes on one server.
	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Register(router)
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      60 * time.Second, // POST /ml/train runs synchronously
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:            cfg.RateLimit.Max,
				Window:         cfg.RateLimit.Window,
				TrustForwarded: cfg.RateLimit.TrustForwarded,
				Subject:        tokenSubject(tokens),
				Skip: func(r *http.Request) bool {
					return httpmiddleware.IsHealthCheck(r.URL.Path)
				},
			}),
			httpmiddleware.Instrument("storefront-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	healthSvc.SetReady(true)
	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

func newHealth(pool *pgxpool.Pool) *health.Health {
	h := health.New()
	h.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	h.AddReadinessCheck("postgres_pool", time.Second, health.PoolSaturationCheck(func() (int32, int32) {
		st := pool.Stat()
		return st.AcquiredConns(), st.MaxConns()
	}), health.FailureThreshold(3))
	h.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	h.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second), health.FailureThreshold(3))
	return h
}

// tokenSubject keys valid bearer tokens by account so one customer shares a
// limit across addresses.
func tokenSubject(tokens *auth.Tokens) func(string) string {
	return func(raw string) string {
		claims, err := tokens.Verify(raw)
		if err != nil {
			return ""
		}
		return claims.Subject
	}
}

// loadModel restores the saved predictor, training a fresh one when none
// has been saved yet.
func loadModel(lg *zap.Logger, cfg ModelConfig) (*predictor.Service, error) {
	model := predictor.New()
	loaded, err := model.Load(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if loaded {
		_, trainedAt, _ := model.Metrics()
		lg.Info("Predictor loaded", zap.String("dir", cfg.Dir), zap.Time("trained_at", trainedAt))
		return model, nil
	}

	seed := cfg.TrainingSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	lg.Info("No saved predictor, training", zap.Int("samples", cfg.TrainingSamples), zap.Uint64("seed", seed))
	metrics, err := model.Retrain(cfg.TrainingSamples, seed, cfg.Dir)
	if err != nil {
		return nil, err
	}
	lg.Info("Predictor trained",
		zap.Float64("churn_accuracy", metrics.ChurnAccuracy),
		zap.Float64("spend_r2", metrics.SpendR2),
	)
	return model, nil
}
