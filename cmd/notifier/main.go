package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-floor/internal/config"
	"github.com/ariefcatur/go-realtime-floor/internal/events"
	kafkax "github.com/ariefcatur/go-realtime-floor/internal/kafka"
	"github.com/ariefcatur/go-realtime-floor/internal/observability"
	"github.com/ariefcatur/go-realtime-floor/internal/realtime"
	"github.com/ariefcatur/go-realtime-floor/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	if cfg.ServiceName == "floor-api" {
		cfg.ServiceName = "floor-notifier"
	}
	log, err := observability.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}
	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required for the notifier")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint:    cfg.OTELEndpoint,
		AuthHeader:  cfg.OTELAuthHeader,
		ServiceName: cfg.ServiceName,
		InstanceID:  cfg.InstanceID,
	})
	if err != nil {
		log.Fatal("tracing", zap.Error(err))
	}

	// Redis
	rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// publish-only: socket dipegang instance api
	bp := realtime.NewBackplane(rdb, nil, cfg.InstanceID, log)
	h := &handler{
		dispatch: realtime.NewDispatcher(bp, realtime.NewRedisRegistry(rdb), log),
		dedup:    redisx.NewDedup(rdb, cfg.NotifierGroup),
		log:      log.With(zap.String("component", "notifier")),
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, cfg.EventsTopic, cfg.NotifierWorkers, log)
	go func() {
		log.Info("notifier consumer started",
			zap.String("group", cfg.NotifierGroup), zap.String("topic", cfg.EventsTopic), zap.Int("workers", cfg.NotifierWorkers))
		if err := cons.Start(ctx, h.handle); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = shutdownTracing(sctx)
}

type dispatcher interface {
	Dispatch(ctx context.Context, env events.Envelope) error
}

type deduper interface {
	First(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type handler struct {
	dispatch dispatcher
	dedup    deduper
	log      *zap.Logger
}

var tracer = otel.Tracer("floor/notifier")

// handle delivers one record. Redelivered events are skipped by event id; a
// failed dispatch drops the marker so the retry is not mistaken for a dupe.
func (h *handler) handle(ctx context.Context, m kafka.Message) error {
	ctx, env, err := kafkax.Decode(ctx, m)
	if err != nil {
		// poison message: log & commit, retrying will never succeed
		h.log.Error("drop undecodable record", zap.Error(err), zap.Int64("offset", m.Offset))
		return nil
	}
	ctx, span := tracer.Start(ctx, "notifier.handle")
	defer span.End()
	span.SetAttributes(attribute.String("event.type", string(env.EventType)), attribute.String("event.id", env.EventID))

	first, err := h.dedup.First(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		h.log.Debug("duplicate event skipped", zap.String("event_id", env.EventID))
		return nil
	}
	if err := h.dispatch.Dispatch(ctx, env); err != nil {
		if ferr := h.dedup.Forget(ctx, env.EventID); ferr != nil {
			h.log.Warn("forget dedup marker", zap.Error(ferr), zap.String("event_id", env.EventID))
		}
		return err
	}
	return nil
}
