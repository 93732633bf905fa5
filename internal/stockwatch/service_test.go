package stockwatch

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	kafkax "github.com/ariefcatur/furniture-orders/internal/kafka"
	"github.com/ariefcatur/furniture-orders/internal/orders"
	"github.com/ariefcatur/furniture-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newService(t *testing.T) (*Service, *redisx.LowStockSet, *observer.ObservedLogs) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	core, logs := observer.New(zap.InfoLevel)
	low := redisx.NewLowStockSet(rdb)
	return &Service{Dedup: redisx.NewDedup(rdb, "stockwatch"), LowStock: low, Log: zap.New(core)}, low, logs
}

func stockMessage(t *testing.T, levels ...orders.StockLevel) kafkago.Message {
	t.Helper()
	env, err := orders.NewEnvelope(orders.EventStockChanged, "order-api", "req-1", "o-1",
		orders.StockChangedPayload{OrderID: "o-1", Reason: "order_created", Levels: levels})
	require.NoError(t, err)
	return kafkago.Message{Value: kafkax.MustMarshal(env), Headers: kafkax.EventHeaders(env.EventType, 1)}
}

func TestFlagsAndClearsProducts(t *testing.T) {
	svc, low, logs := newService(t)
	ctx := context.Background()

	msg := stockMessage(t,
		orders.StockLevel{ProductID: "p1", Stock: 2, MinStock: 5, Status: orders.StockLow},
		orders.StockLevel{ProductID: "p1", Color: "Teal", Stock: 0, MinStock: 5, Status: orders.StockOut},
		orders.StockLevel{ProductID: "p2", Stock: 40, MinStock: 5, Status: orders.StockIn},
	)
	require.NoError(t, svc.HandleStockChanged(ctx, msg))

	ids, err := low.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
	assert.Equal(t, 1, logs.FilterMessage("stock_low").Len())

	// redelivery of the same event is a no-op
	require.NoError(t, svc.HandleStockChanged(ctx, msg))
	assert.Equal(t, 1, logs.FilterMessage("stock_low").Len())

	require.NoError(t, svc.HandleStockChanged(ctx, stockMessage(t,
		orders.StockLevel{ProductID: "p1", Stock: 12, MinStock: 5, Status: orders.StockIn})))
	ids, err = low.Members(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 1, logs.FilterMessage("stock_recovered").Len())
}

func TestIgnoresOtherEvents(t *testing.T) {
	svc, low, logs := newService(t)
	ctx := context.Background()

	env, err := orders.NewEnvelope(orders.EventOrderCreated, "order-api", "", "o-1", orders.OrderCreatedPayload{OrderID: "o-1"})
	require.NoError(t, err)
	require.NoError(t, svc.HandleStockChanged(ctx, kafkago.Message{Value: kafkax.MustMarshal(env)}))
	require.NoError(t, svc.HandleStockChanged(ctx, kafkago.Message{Value: []byte("nope")}))

	ids, err := low.Members(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 1, logs.FilterMessage("stockwatch_bad_envelope").Len())
}

func TestCatalogSaveClearsRestockedProduct(t *testing.T) {
	svc, low, _ := newService(t)
	ctx := context.Background()
	_, err := low.Flag(ctx, "p9")
	require.NoError(t, err)

	env, err := orders.NewEnvelope(orders.EventStockChanged, "order-api", "", "p9", orders.StockChangedPayload{
		Reason: orders.ReasonCatalogSaved,
		Levels: []orders.StockLevel{{ProductID: "p9", Stock: 50, MinStock: 5, Status: orders.StockIn}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.HandleStockChanged(ctx, kafkago.Message{Value: kafkax.MustMarshal(env)}))

	ids, err := low.Members(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
