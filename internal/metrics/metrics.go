package metrics

import (
	"strconv"
	"time"

	"github.com/ariefcatur/furniture-orders/internal/orders"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the order-flow and HTTP collectors.
type Metrics struct {
	ordersCreated *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	stockMoves    *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders accepted, by payment method.",
		}, []string{"payment_method"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Applied order status changes.",
		}, []string{"from", "to"}),
		stockMoves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_moves_total",
			Help: "Stock units moved by orders, by direction.",
		}, []string{"direction"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
	reg.MustRegister(m.ordersCreated, m.transitions, m.stockMoves, m.httpDuration)
	return m
}

func (m *Metrics) OrderCreated(method orders.PaymentMethod) {
	m.ordersCreated.WithLabelValues(string(method)).Inc()
}

func (m *Metrics) StatusTransition(from, to orders.Status) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) StockMoved(effect orders.InventoryEffect, units int) {
	if units <= 0 {
		return
	}
	m.stockMoves.WithLabelValues(effect.String()).Add(float64(units))
}

func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	m.httpDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}
