package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	appinventory "github.com/kitewave/orderflow/internal/application/inventory"
	apporder "github.com/kitewave/orderflow/internal/application/order"
	apppayment "github.com/kitewave/orderflow/internal/application/payment"
	"github.com/kitewave/orderflow/internal/config"
	dominv "github.com/kitewave/orderflow/internal/domain/inventory"
	domorder "github.com/kitewave/orderflow/internal/domain/order"
	domoutbox "github.com/kitewave/orderflow/internal/domain/outbox"
	dompayment "github.com/kitewave/orderflow/internal/domain/payment"
	"github.com/kitewave/orderflow/internal/infrastructure/gateway"
	httptransport "github.com/kitewave/orderflow/internal/infrastructure/http"
	"github.com/kitewave/orderflow/internal/infrastructure/id"
	"github.com/kitewave/orderflow/internal/infrastructure/kafkabus"
	"github.com/kitewave/orderflow/internal/infrastructure/memory"
	"github.com/kitewave/orderflow/internal/infrastructure/observability/oteltrace"
	"github.com/kitewave/orderflow/internal/infrastructure/observability/prometrics"
	"github.com/kitewave/orderflow/internal/infrastructure/observability/telemetry"
	"github.com/kitewave/orderflow/internal/infrastructure/observability/zaplogger"
	"github.com/kitewave/orderflow/internal/infrastructure/outbox"
	"github.com/kitewave/orderflow/internal/infrastructure/postgres"
	"github.com/kitewave/orderflow/internal/infrastructure/redisstore"
	"github.com/kitewave/orderflow/internal/observability"
)

// eventBus is what every bus implementation provides to the saga.
type eventBus interface {
	domoutbox.Publisher
	domoutbox.Subscriber
	Start(ctx context.Context)
	Stop(ctx context.Context)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := zaplogger.New(
		observability.F("service", cfg.ServiceName),
		observability.F("env", cfg.Env),
	)
	defer func() {
		if s, ok := logger.(interface{ Sync() error }); ok {
			_ = s.Sync()
		}
	}()
	metrics := prometrics.New("", prometheus.DefaultRegisterer)
	tracer := oteltrace.New(cfg.ServiceName)
	tel := telemetry.New(tracer, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		orderRepo   domorder.Repository
		invRepo     dominv.Repository
		paymentRepo dompayment.Repository
	)
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Error("postgres_connect_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()
		orderRepo = postgres.NewOrderRepository(pool)
		invRepo = postgres.NewInventoryRepository(pool)
		paymentRepo = postgres.NewPaymentRepository(pool)
	default:
		orderRepo = memory.NewOrderRepository()
		invRepo = memory.NewInventoryRepository()
		paymentRepo = memory.NewPaymentRepository()
	}

	if err := seedInventory(ctx, invRepo, cfg.SeedProducts); err != nil {
		logger.Error("inventory_seed_failed", observability.F("error", err.Error()))
		os.Exit(1)
	}

	var reservations appinventory.ReservationStore
	switch cfg.Reservations {
	case config.ReservationsRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		reservations = redisstore.NewReservationStore(rdb, cfg.ReservationTTL)
	default:
		reservations = memory.NewReservationStore()
	}

	var bus eventBus
	switch cfg.Bus {
	case config.BusKafka:
		bus = kafkabus.New(logger, cfg.KafkaBrokers, cfg.ConsumerGroup)
	default:
		bus = outbox.NewBus(logger)
	}

	var charger dompayment.Gateway = gateway.NewSimulator(
		cfg.PaymentLimit, cfg.GatewayMinLatency, cfg.GatewayMaxLatency,
	)
	charger = gateway.NewRetrying(
		charger, cfg.PaymentMaxAttempts, cfg.PaymentBackoff, cfg.PaymentTimeout, logger,
	)

	idGenerator := id.NewUUIDGenerator()

	submitOrder := apporder.NewSubmitOrderUseCase(orderRepo, idGenerator, bus, tel)
	reserveStock := appinventory.NewReserveStockUseCase(invRepo, reservations, bus, tel)
	releaseStock := appinventory.NewReleaseStockUseCase(invRepo, reservations, tel)
	chargePayment := apppayment.NewChargePaymentUseCase(paymentRepo, charger, idGenerator, bus, tel)

	orderWorker := apporder.NewWorker(orderRepo, bus, tel)
	inventoryWorker := appinventory.NewWorker(reserveStock, releaseStock, bus, tel)
	paymentWorker := apppayment.NewWorker(chargePayment, bus, tel)

	orderWorker.Start()
	inventoryWorker.Start()
	paymentWorker.Start()
	bus.Start(ctx)

	handler := httptransport.NewHandler(submitOrder, invRepo, chargePayment)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router(tel))

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", observability.F("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		logger.Info("http_server_stopped")
	}
	bus.Stop(shutdownCtx)
}

// seedInventory loads the initial catalog. Existing rows are left alone so a
// restart against a shared store does not reset stock levels.
func seedInventory(ctx context.Context, repo dominv.Repository, seeds []config.SeedProduct) error {
	for _, s := range seeds {
		if _, err := repo.Get(ctx, s.ProductID); err == nil {
			continue
		} else if !errors.Is(err, dominv.ErrNotFound) {
			return err
		}
		item, err := dominv.NewItem(s.ProductID, s.Quantity, s.UnitPrice)
		if err != nil {
			return err
		}
		if err := repo.Save(ctx, item); err != nil {
			return err
		}
	}
	return nil
}
