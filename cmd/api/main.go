package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-floor/internal/auth"
	"github.com/ariefcatur/go-realtime-floor/internal/config"
	"github.com/ariefcatur/go-realtime-floor/internal/events"
	"github.com/ariefcatur/go-realtime-floor/internal/httpx"
	"github.com/ariefcatur/go-realtime-floor/internal/inventory"
	kafkax "github.com/ariefcatur/go-realtime-floor/internal/kafka"
	"github.com/ariefcatur/go-realtime-floor/internal/observability"
	"github.com/ariefcatur/go-realtime-floor/internal/orders"
	"github.com/ariefcatur/go-realtime-floor/internal/postgres"
	"github.com/ariefcatur/go-realtime-floor/internal/realtime"
	"github.com/ariefcatur/go-realtime-floor/internal/redisx"
	"github.com/ariefcatur/go-realtime-floor/internal/reservations"
	"github.com/ariefcatur/go-realtime-floor/internal/store"
	"github.com/ariefcatur/go-realtime-floor/internal/tables"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := observability.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}
	if err := run(cfg, log); err != nil {
		log.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint:    cfg.OTELEndpoint,
		AuthHeader:  cfg.OTELAuthHeader,
		ServiceName: cfg.ServiceName,
		InstanceID:  cfg.InstanceID,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = shutdownTracing(sctx)
	}()

	// Store
	var st store.Store
	if cfg.PostgresDSN != "" {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		st = postgres.New(db)
		log.Info("store: postgres")
	} else {
		mem := store.NewMemory()
		seedDemo(mem)
		st = mem
		log.Warn("POSTGRES_DSN not set, using in-memory store with demo data")
	}

	// Realtime: hub lokal, registry + fan-out lewat redis kalau ada
	hub := realtime.NewHub(log)
	var (
		emitter  realtime.Emitter = hub
		registry realtime.Registry
	)
	if cfg.RedisAddr != "" {
		rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		registry = realtime.NewRedisRegistry(rdb)
		bp := realtime.NewBackplane(rdb, hub, cfg.InstanceID, log)
		go func() {
			if err := bp.Run(ctx); err != nil {
				log.Error("backplane stopped", zap.Error(err))
				cancel()
			}
		}()
		emitter = bp
	} else {
		registry = realtime.NewMemoryRegistry()
	}

	// Events: kafka -> notifier, atau langsung ke dispatcher
	var (
		pub  events.Publisher
		prod *kafkax.Producer
	)
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, cfg.EventsTopic, 1024, log)
		prod.Start(ctx)
		pub = kafkax.NewEventPublisher(prod)
		log.Info("events: kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.EventsTopic))
	} else {
		pub = realtime.NewDispatcher(emitter, registry, log)
		log.Info("events: in-process dispatch")
	}

	ledger := &inventory.Ledger{DefaultLowThreshold: cfg.LowStockThreshold, Producer: cfg.ServiceName}
	reconciler := &tables.Reconciler{Producer: cfg.ServiceName}
	tokens := auth.NewTokens(cfg.JWTSecret, 12*time.Hour)

	router := httpx.NewRouter(httpx.Deps{
		Log:      log,
		Verbose:  cfg.Development(),
		Tokens:   tokens,
		WS:       realtime.NewHandler(tokens, hub, emitter, registry, log),
		Products: inventory.NewService(st, ledger, pub, log),
		Orders: orders.NewService(st, ledger, reconciler, pub, log, orders.Config{
			TaxRate:  cfg.TaxRate,
			Producer: cfg.ServiceName,
		}),
		Tables: tables.NewService(st, pub, log, cfg.ServiceName),
		Reservations: reservations.NewService(st, reconciler, pub, log, reservations.Config{
			DefaultDuration: cfg.ReservationMinutes,
			Producer:        cfg.ServiceName,
		}),
	})

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("instance", cfg.InstanceID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Info("shutting down", zap.String("signal", s.String()))
	case err := <-errc:
		return err
	case <-ctx.Done():
		log.Warn("shutting down after backplane failure")
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel() // stop producer loop & backplane
	if prod != nil {
		prod.WaitClosed() // drain
	}
	return nil
}
