// Package app wires the storefront API service.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const serviceName = "storefront-api"

// Run creates all dependencies, serves HTTP until ctx is done and then
// drains and shuts the server down.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("currency", cfg.Currency),
		zap.Bool("trust_client_totals", cfg.Checkout.TrustClientTotals),
	)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	h, healthSvc, err := newHandler(ctx, pool, m, cfg)
	if err != nil {
		return err
	}
	healthSvc.Start(ctx, 10*time.Second)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           h,
	}
	healthSvc.SetReady(true)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
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
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newHandler builds the services and the full HTTP middleware chain over
// pool. Health checks are registered but not started.
func newHandler(ctx context.Context, pool *pgxpool.Pool, m httpmiddleware.Telemetry, cfg *Config) (http.Handler, *health.Health, error) {
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	store := postgres.NewStore(pool)
	evaluator := coupon.NewEvaluator(store.Coupons())
	carts := cart.NewService(store.CartLines())

	composerOpts := []order.ComposerOption{
		order.WithNumberGenerator(order.NewNumberGenerator(cfg.Checkout.OrderNumberPrefix, time.Now)),
	}
	if !cfg.Checkout.TrustClientTotals {
		composerOpts = append(composerOpts, order.WithServerTotals())
	}
	composer := order.NewComposer(evaluator, store.CartLines(), cfg.Currency, composerOpts...)

	orders, err := order.NewService(composer, order.NewPersister(store), store.Default().Orders(), order.ServiceConfig{
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
		Notifiers:      []order.Notifier{order.LogNotifier{}},
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "create order service")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.New(carts, orders, evaluator, store.Products()).Register(mux)

	routeFinder := httpmiddleware.MakeRouteFinder(mux)
	return httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument(serviceName, routeFinder, m),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
	), healthSvc, nil
}
