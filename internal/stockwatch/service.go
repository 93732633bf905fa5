package stockwatch

import (
	"context"
	"fmt"

	kafkax "github.com/ariefcatur/furniture-orders/internal/kafka"
	"github.com/ariefcatur/furniture-orders/internal/orders"
	"github.com/ariefcatur/furniture-orders/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Service keeps the low-stock set in step with StockChanged events.
type Service struct {
	Dedup    *redisx.Dedup
	LowStock *redisx.LowStockSet
	Log      *zap.Logger
}

// HandleStockChanged is installed as the consumer handler. Each event carries absolute
// levels, so a lost event is corrected by the next one for the same product.
func (s *Service) HandleStockChanged(ctx context.Context, m kafkago.Message) error {
	if t := kafkax.Header(m, kafkax.HeaderEventType); t != "" && t != orders.EventStockChanged {
		return nil
	}
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		// a malformed message will never decode; log and let it be committed
		s.Log.Error("stockwatch_bad_envelope", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventStockChanged {
		return nil
	}

	first, err := s.Dedup.First(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !first {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.StockChangedPayload](env.Payload)
	if err != nil {
		s.Log.Error("stockwatch_bad_payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if err := s.apply(ctx, env, p); err != nil {
		// a redelivery, if one comes, must not be treated as a duplicate
		_ = s.Dedup.Forget(ctx, env.EventID)
		return err
	}
	return nil
}

// apply only looks at product-level entries; color levels are informational.
func (s *Service) apply(ctx context.Context, env orders.Envelope, p orders.StockChangedPayload) error {
	for _, lvl := range p.Levels {
		if lvl.Color != "" {
			continue
		}
		if lvl.Status == orders.StockIn {
			cleared, err := s.LowStock.Clear(ctx, lvl.ProductID)
			if err != nil {
				return err
			}
			if cleared {
				s.Log.Info("stock_recovered", zap.String("product_id", lvl.ProductID), zap.Int("stock", lvl.Stock))
			}
			continue
		}
		added, err := s.LowStock.Flag(ctx, lvl.ProductID)
		if err != nil {
			return err
		}
		if added {
			s.Log.Warn("stock_low",
				zap.String("product_id", lvl.ProductID),
				zap.Int("stock", lvl.Stock),
				zap.Int("min_stock", lvl.MinStock),
				zap.String("status", string(lvl.Status)),
				zap.String("order_id", p.OrderID),
				zap.String("reason", p.Reason),
				zap.String("trace_id", env.TraceID),
			)
		}
	}
	return nil
}
