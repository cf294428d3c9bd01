package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xenking/marketplace-bff/internal/domain/bundle"
	"github.com/xenking/marketplace-bff/internal/events"
	"github.com/xenking/marketplace-bff/internal/handler"
	"github.com/xenking/marketplace-bff/internal/storage/postgres"
	"github.com/xenking/marketplace-bff/internal/upstream"
	"github.com/xenking/marketplace-bff/pkg/health"
	"github.com/xenking/marketplace-bff/pkg/httpmiddleware"
)

// service is the assembled HTTP surface with its background dependencies.
type service struct {
	handler http.Handler
	health  *health.Health
	closers []func()
}

func (s *service) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	svc, err := build(ctx, lg, m, cfg)
	if err != nil {
		return err
	}
	defer svc.close()
	healthSvc := svc.health

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Upstream fan-out plus a label purchase must fit.
		WriteTimeout:   cfg.Upstream.Timeout*3 + 5*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler:        svc.handler,
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

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// build wires the upstream client, the optional ledger and event publisher,
// the coordinator and the middleware chain.
func build(ctx context.Context, lg *zap.Logger, t httpmiddleware.Telemetry, cfg *Config) (*service, error) {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("upstream", cfg.Upstream.BaseURL),
		zap.Bool("ledger", cfg.DatabaseURL != ""),
		zap.Bool("events", len(cfg.Events.Brokers) > 0),
	)

	client, err := upstream.New(cfg.Upstream.BaseURL, upstream.Options{
		Timeout:        cfg.Upstream.Timeout,
		TracerProvider: t.TracerProvider(),
		MeterProvider:  t.MeterProvider(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create upstream client")
	}

	healthSvc := health.New()
	svc := &service{health: healthSvc}
	ok := false
	defer func() {
		if !ok {
			svc.close()
		}
	}()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.AddReadinessCheck("upstream", 5*time.Second,
		health.HTTPCheck(&http.Client{Timeout: 5 * time.Second},
			strings.TrimRight(client.BaseURL(), "/")+cfg.Upstream.HealthPath),
		health.WithThresholds(3, 1),
	)

	opts := bundle.Options{
		MaxOrders:      cfg.Bundle.MaxOrders,
		Concurrency:    cfg.Bundle.Concurrency,
		Events:         events.Noop{},
		TracerProvider: t.TracerProvider(),
		MeterProvider:  t.MeterProvider(),
	}

	// PostgreSQL ledger is optional.
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		svc.closers = append(svc.closers, pool.Close)

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return nil, errors.Wrap(err, "run migrations")
		}
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
			return pool.Ping(ctx)
		})

		ledger := postgres.NewLedgerRepository(pool)
		opts.Ledger = ledger

		if cfg.Bundle.RejectDuplicates {
			ids, err := ledger.ListBundleIDs(ctx)
			if err != nil {
				return nil, errors.Wrap(err, "load labelled bundles")
			}
			guard := bundle.NewGuard(ledger, cfg.Bundle.GuardCapacity)
			guard.Warm(ids)
			opts.Guard = guard
			lg.Info("Duplicate guard warmed", zap.Int("bundles", len(ids)))
		}
	} else if cfg.Bundle.RejectDuplicates {
		lg.Warn("Duplicate guard disabled: no ledger database configured")
	}

	if len(cfg.Events.Brokers) > 0 {
		pub, err := events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic)
		if err != nil {
			return nil, errors.Wrap(err, "create event publisher")
		}
		svc.closers = append(svc.closers, func() {
			if err := pub.Close(); err != nil {
				lg.Error("Close event publisher", zap.Error(err))
			}
		})
		opts.Events = pub
	}

	coordinator, err := bundle.NewCoordinator(client, client, opts)
	if err != nil {
		return nil, errors.Wrap(err, "create coordinator")
	}

	// Router: health endpoints + API routes on one server.
	router := mux.NewRouter()
	router.HandleFunc("/livez", healthSvc.LiveEndpoint).Methods(http.MethodGet)
	router.HandleFunc("/readyz", healthSvc.ReadyEndpoint).Methods(http.MethodGet)
	handler.NewHandler(coordinator).Routes(router)
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	svc.handler = httpmiddleware.Wrap(router,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.RateLimit.Max,
			Window:  cfg.RateLimit.Window,
			KeyFunc: httpmiddleware.ClientIP,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("marketplace-bff", routeFinder, t),
		httpmiddleware.LogRequests(routeFinder),
	)

	ok = true
	return svc, nil
}
