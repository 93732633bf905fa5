package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/furniture-orders/internal/config"
	"github.com/ariefcatur/furniture-orders/internal/httpx"
	kafkax "github.com/ariefcatur/furniture-orders/internal/kafka"
	"github.com/ariefcatur/furniture-orders/internal/logging"
	"github.com/ariefcatur/furniture-orders/internal/metrics"
	"github.com/ariefcatur/furniture-orders/internal/orders"
	"github.com/ariefcatur/furniture-orders/internal/postgres"
	"github.com/ariefcatur/furniture-orders/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("order_api_failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	// Store: Postgres when configured, otherwise process memory
	var store orders.Store
	if cfg.PostgresDSN != "" {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		store = &orders.Repo{DB: db}
	} else {
		log.Warn("postgres_dsn_empty_using_memory_store")
		store = orders.NewMemStore()
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis_unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	cache := redisx.NewStatusCache(rdb)

	// Kafka producers, one per topic
	prodCtx, stopProducers := context.WithCancel(context.Background())
	defer stopProducers()
	producers := map[string]*kafkax.Producer{}
	for _, topic := range []string{orders.TopicOrderCreated, orders.TopicOrderStatusChanged, orders.TopicStockChanged} {
		p := kafkax.NewProducer(cfg.KafkaBrokers, topic, 1024, log)
		p.Start(prodCtx)
		producers[topic] = p
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := orders.NewService(store, &orders.BusPublisher{Producers: producers, Log: log}, cache, m, cfg.ServiceName)
	svc.MinStockDefault = cfg.LowStockDefault
	auth := httpx.NewAuth(cfg.JWTSecret, "furniture-orders")

	router := httpx.NewRouter(httpx.RouterConfig{Log: log, Metrics: m, Gatherer: reg, Timeout: 15 * time.Second})
	(&httpx.OrdersHandler{
		Service: svc,
		Auth:    auth,
		Cache:   cache,
		Idem:    redisx.NewIdempotency(rdb),
		Timeout: cfg.RequestTimeout,
	}).Register(router)
	(&httpx.ProductsHandler{Service: svc, Auth: auth, LowStock: redisx.NewLowStockSet(rdb)}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http_listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// flush buffered events after the last request has finished
		for _, p := range producers {
			p.Close()
		}
		for _, p := range producers {
			p.WaitClosed()
		}
		return err
	})
	return g.Wait()
}
