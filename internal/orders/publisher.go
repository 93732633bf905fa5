package orders

import (
	kafkax "github.com/ariefcatur/furniture-orders/internal/kafka"
	"go.uber.org/zap"
)

// BusPublisher routes envelopes to the producer of their topic.
type BusPublisher struct {
	Producers map[string]*kafkax.Producer
	Log       *zap.Logger
}

func (b *BusPublisher) Publish(topic string, env Envelope) {
	p, ok := b.Producers[topic]
	if !ok {
		if b.Log != nil {
			b.Log.Warn("no_producer_for_topic", zap.String("topic", topic), zap.String("event", env.EventType))
		}
		return
	}
	p.Publish(PartitionKey(env.CorrelationID), kafkax.MustMarshal(env), kafkax.EventHeaders(env.EventType, env.EventVersion)...)
}
