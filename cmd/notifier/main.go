package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-crypto-checkout/internal/config"
	kafkax "github.com/ariefcatur/go-crypto-checkout/internal/kafka"
	"github.com/ariefcatur/go-crypto-checkout/internal/logging"
	"github.com/ariefcatur/go-crypto-checkout/internal/notify"
	"github.com/ariefcatur/go-crypto-checkout/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.ServiceName+"-notifier")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Redis
	rdb, err := redisx.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	sink := notify.NewSink(redisx.NewDedup(rdb, cfg.NotifierGroup), logger)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, notify.Topics, cfg.NotifierWorkers, logger)

	logger.Info("notifier consumer started",
		zap.String("group", cfg.NotifierGroup),
		zap.Strings("topics", notify.Topics),
		zap.Int("workers", cfg.NotifierWorkers))
	if err := cons.Start(ctx, sink.Handle); err != nil {
		logger.Error("consumer exit", zap.Error(err))
	}
	logger.Info("notifier stopped")
}
