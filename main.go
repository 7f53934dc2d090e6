package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	appcart "github.com/Zhima-Mochi/minishop-checkout/app/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/application/relay"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/config"
	domcart "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/cart"
	domorder "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/order"
	domproduct "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/infrastructure/kafkasink"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-checkout/app/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/infrastructure/redisstore"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/observability"
	httppresentation "github.com/Zhima-Mochi/minishop-checkout/app/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-checkout/app/internal/presentation/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	baseLogger := zaplogger.MustNew(zaplogger.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		LogFile: cfg.LogFile,
	})
	defer func() { _ = baseLogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, baseLogger); err != nil {
		baseLogger.Error("service_exit", observability.F("error", err))
		_ = baseLogger.Sync()
		os.Exit(1)
	}
}

type stores struct {
	products domproduct.Repository
	carts    domcart.Repository
	orders   domorder.Repository
	close    func()
}

const systemTraceID = "system"

func run(ctx context.Context, cfg *config.Config, logger observability.Logger) error {
	// Lifecycle logs have no request trace; tag them so they group together.
	sysLogger := logger.With(
		observability.F("trace_id", systemTraceID),
		observability.F("span_id", systemTraceID),
	)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	counters, histograms := infraobs.RegisterDefaults(prometrics.NewWithRegisterer(reg, "", ""))
	tel := infraobs.New(oteltrace.New(cfg.ServiceName), logger, counters, histograms)

	st, err := openStores(ctx, cfg, sysLogger)
	if err != nil {
		return err
	}
	defer st.close()

	// In-process event bus; the relay forwards selected events out of the process.
	bus := outbox.NewBus(tel)

	var (
		forwarder relay.Forwarder = relay.NewLogForwarder(logger)
		peer                      = "log"
	)
	if cfg.KafkaEnabled() {
		kf, err := kafkasink.New(kafkasink.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			return err
		}
		defer func() {
			if err := kf.Close(); err != nil {
				sysLogger.Warn("kafka_forwarder_close_error", observability.F("error", err))
			}
		}()
		forwarder, peer = kf, "kafka"
	}
	relay.New(workerpresentation.EventScoped(bus, logger, tel), forwarder, peer, tel).Start()
	bus.Start(ctx)

	retry := appcart.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.CartMaxAttempts
	svc := appcart.NewService(st.products, st.carts, st.orders, id.NewUUIDGenerator(), bus, tel,
		appcart.WithRetryPolicy(retry),
	)

	handler := httppresentation.NewHandler(svc, tel,
		httppresentation.WithMetricsEndpoint(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
	)
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.Router(),
	}

	serveErr := make(chan error, 1)
	go func() {
		sysLogger.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("store_backend", cfg.StoreBackend),
			observability.F("forwarder", peer),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			sysLogger.Error("http_server_error", observability.F("error", err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sysLogger.Error("http_server_shutdown_error", observability.F("error", err))
	} else {
		sysLogger.Info("http_server_stopped")
	}
	// Checkouts finished above may still have events queued for the relay.
	if err := bus.Stop(shutdownCtx); err != nil {
		sysLogger.Warn("event_bus_drain_incomplete", observability.F("error", err))
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, logger observability.Logger) (*stores, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		products := postgres.NewProductRepository(pool)

		seed, err := memory.LoadSeedFile(cfg.SeedProducts)
		if err != nil {
			pool.Close()
			return nil, err
		}
		for _, p := range seed {
			if err := products.Upsert(ctx, p); err != nil {
				pool.Close()
				return nil, err
			}
		}

		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			pool.Close()
			_ = rdb.Close()
			return nil, err
		}

		logger.Info("stores_opened",
			observability.F("backend", cfg.StoreBackend),
			observability.F("seeded_products", len(seed)),
		)
		return &stores{
			products: products,
			carts:    redisstore.NewCartRepository(rdb),
			orders:   postgres.NewOrderRepository(pool),
			close: func() {
				_ = rdb.Close()
				pool.Close()
			},
		}, nil

	default:
		seed, err := memory.LoadSeedFile(cfg.SeedProducts)
		if err != nil {
			return nil, err
		}
		logger.Info("stores_opened",
			observability.F("backend", config.BackendMemory),
			observability.F("seeded_products", len(seed)),
		)
		return &stores{
			products: memory.NewProductRepository(seed...),
			carts:    memory.NewCartRepository(),
			orders:   memory.NewOrderRepository(),
			close:    func() {},
		}, nil
	}
}
