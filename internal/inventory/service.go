package inventory

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-floor/internal/domain"
	"github.com/ariefcatur/go-realtime-floor/internal/events"
	"github.com/ariefcatur/go-realtime-floor/internal/store"
)

var tracer = otel.Tracer("floor/inventory")

// Service exposes the ledger to the products endpoints.
type Service struct {
	store  store.Store
	ledger *Ledger
	pub    events.Publisher
	log    *zap.Logger
}

func NewService(st store.Store, ledger *Ledger, pub events.Publisher, log *zap.Logger) *Service {
	return &Service{store: st, ledger: ledger, pub: pub, log: log.With(zap.String("component", "inventory"))}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Product, error) {
	return s.store.GetProduct(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]domain.Product, error) {
	return s.store.ListProducts(ctx)
}

func (s *Service) AdjustStock(ctx context.Context, productID string, qty int, op domain.StockOperation) (*domain.Product, error) {
	ctx, span := tracer.Start(ctx, "inventory.AdjustStock")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.String("op", string(op)))

	var (
		out *domain.Product
		evs []events.Envelope
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, alerts, err := s.ledger.Adjust(ctx, tx, productID, qty, op)
		if err != nil {
			return err
		}
		out, evs = p, alerts
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("stock adjusted",
		zap.String("product_id", productID),
		zap.String("operation", string(op)),
		zap.Int("quantity", qty),
		zap.Int("stock", out.Stock),
	)
	s.publish(ctx, evs)
	return out, nil
}

func (s *Service) publish(ctx context.Context, evs []events.Envelope) {
	if len(evs) == 0 {
		return
	}
	if err := s.pub.Publish(ctx, events.Stamp(ctx, evs)...); err != nil {
		s.log.Error("publish stock events", zap.Error(err), zap.Int("count", len(evs)))
	}
}
