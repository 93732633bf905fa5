package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/furniture-orders/internal/config"
	kafkax "github.com/ariefcatur/furniture-orders/internal/kafka"
	"github.com/ariefcatur/furniture-orders/internal/logging"
	"github.com/ariefcatur/furniture-orders/internal/orders"
	"github.com/ariefcatur/furniture-orders/internal/redisx"
	"github.com/ariefcatur/furniture-orders/internal/stockwatch"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.MustNewLogger(cfg.ServiceName+"-stockwatch", cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &stockwatch.Service{
		Dedup:    redisx.NewDedup(rdb, "stockwatch"),
		LowStock: redisx.NewLowStockSet(rdb),
		Log:      log,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.StockwatchGroup, orders.TopicStockChanged, cfg.StockwatchWorkers, log)
	log.Info("stockwatch_started",
		zap.String("group", cfg.StockwatchGroup),
		zap.String("topic", orders.TopicStockChanged),
		zap.Int("workers", cfg.StockwatchWorkers))

	if err := cons.Start(ctx, svc.HandleStockChanged); err != nil {
		log.Fatal("stockwatch_consumer_exit", zap.Error(err))
	}
	log.Info("stockwatch_stopped")
}
