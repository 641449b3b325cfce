package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-crypto-checkout/internal/chain"
	"github.com/ariefcatur/go-crypto-checkout/internal/config"
	"github.com/ariefcatur/go-crypto-checkout/internal/httpx"
	"github.com/ariefcatur/go-crypto-checkout/internal/inventory"
	kafkax "github.com/ariefcatur/go-crypto-checkout/internal/kafka"
	"github.com/ariefcatur/go-crypto-checkout/internal/logging"
	"github.com/ariefcatur/go-crypto-checkout/internal/memstore"
	"github.com/ariefcatur/go-crypto-checkout/internal/notify"
	"github.com/ariefcatur/go-crypto-checkout/internal/orders"
	"github.com/ariefcatur/go-crypto-checkout/internal/payments"
	"github.com/ariefcatur/go-crypto-checkout/internal/postgres"
	"github.com/ariefcatur/go-crypto-checkout/internal/pricing"
	"github.com/ariefcatur/go-crypto-checkout/internal/redisx"
	"github.com/ariefcatur/go-crypto-checkout/internal/seed"
)

type productCatalog interface {
	orders.Catalog
	seed.Catalog
}

type stores struct {
	orders  orders.Store
	catalog productCatalog
	stock   inventory.Store
	intents payments.Store
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]httpx.Pinger{}

	// Store
	var st stores
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		st = stores{
			orders:  &postgres.OrderRepo{DB: db},
			catalog: &postgres.CatalogRepo{DB: db},
			stock:   &postgres.StockRepo{DB: db},
			intents: &postgres.IntentRepo{DB: db},
		}
		checks["postgres"] = db.Ping
	default:
		mem := memstore.New()
		st = stores{orders: mem, catalog: mem, stock: mem, intents: mem}
		logger.Warn("using in-memory store; state is lost on restart")
	}

	// Redis
	rdb, err := redisx.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()
	checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
	prod.Start()

	// Ledger client
	eth, err := chain.Dial(ctx, cfg.EthRPCURL)
	if err != nil {
		logger.Fatal("eth rpc dial", zap.Error(err))
	}
	defer eth.Close()

	// Services
	events := notify.NewNotifier(prod, cfg.ServiceName, logger)
	statusCache := redisx.NewStatusCache(rdb)
	ledger := inventory.NewLedger(st.stock, events, logger)
	orderSvc := orders.NewService(st.orders, st.catalog, ledger, orders.Notifiers{events, statusCache}, logger)

	verifier := chain.NewVerifier(eth, chain.Config{
		MinConfirmations: cfg.MinConfirmations,
		Tolerance:        cfg.AmountTolerance,
		TokenContracts:   cfg.TokenContracts(),
	}, logger)
	prices := pricing.NewStatic(cfg.Prices())
	mgr := payments.NewManager(st.intents, orderSvc, verifier, prices, payments.Config{
		Window:             cfg.PaymentWindow,
		PriceTolerance:     cfg.PriceTolerance,
		ReceivingAddresses: cfg.ReceivingAddresses(),
	}, logger)
	orderSvc.WithPayments(mgr)

	if cfg.SeedFile != "" {
		products, err := seed.ReadFile(cfg.SeedFile)
		if err != nil {
			logger.Fatal("read seed file", zap.String("path", cfg.SeedFile), zap.Error(err))
		}
		if err := seed.Load(ctx, products, st.catalog, ledger, logger); err != nil {
			logger.Fatal("seed catalog", zap.Error(err))
		}
	}

	// Sweeper
	host, _ := os.Hostname()
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		mgr.RunSweeper(ctx, cfg.SweepInterval, cfg.OrderHoldTimeout, redisx.NewLocker(rdb, host))
	}()

	// HTTP
	router := httpx.NewRouter(logger, checks)
	(&httpx.OrdersHandler{
		Orders:      orderSvc,
		Idempotency: redisx.NewIdempotency(rdb),
		StatusCache: statusCache,
		Log:         logger,
	}).Register(router)
	(&httpx.PaymentsHandler{
		Payments: mgr,
		Limiter:  redisx.NewLimiter(rdb, cfg.PaymentRateLimit, time.Hour),
		Log:      logger,
	}).Register(router)
	(&httpx.InventoryHandler{Stock: ledger, Prices: prices, Log: logger}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel() // stop sweeper
	<-sweeperDone
	prod.Close() // nothing publishes past this point
	prod.WaitClosed()
}
