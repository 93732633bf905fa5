package orders

import (
	"context"
	"strings"
	"time"

	"github.com/ariefcatur/furniture-orders/internal/logging"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/ariefcatur/furniture-orders/internal/orders"

// Publisher fans domain events out to the message bus.
type Publisher interface {
	Publish(topic string, env Envelope)
}

// StatusCache keeps the latest status of an order for the tracking endpoint.
type StatusCache interface {
	SetStatus(ctx context.Context, o *Order) error
}

// Metrics receives counters for the order flow.
type Metrics interface {
	OrderCreated(method PaymentMethod)
	StatusTransition(from, to Status)
	StockMoved(effect InventoryEffect, units int)
}

type Service struct {
	Store     Store
	Publisher Publisher
	Cache     StatusCache
	Metrics   Metrics
	Producer  string // service name stamped on events
	Now       func() time.Time

	// MinStockDefault applies to products saved without minStock; 0 means DefaultMinStock.
	MinStockDefault int

	tracer trace.Tracer
}

func NewService(store Store, pub Publisher, cache StatusCache, m Metrics, producer string) *Service {
	return &Service{
		Store:     store,
		Publisher: pub,
		Cache:     cache,
		Metrics:   m,
		Producer:  producer,
		Now:       func() time.Time { return time.Now().UTC() },
		tracer:    otel.Tracer(tracerName),
	}
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Admin  bool
}

type ItemInput struct {
	ProductID       string          `json:"product"`
	Quantity        int             `json:"quantity"`
	Color           string          `json:"color,omitempty"`
	FulfillmentType FulfillmentType `json:"fulfillmentType,omitempty"`
}

type PaymentInput struct {
	Method        PaymentMethod `json:"method"`
	TransactionID string        `json:"transactionId,omitempty"`
}

type PricingInput struct {
	Shipping decimal.Decimal `json:"shipping"`
	Discount decimal.Decimal `json:"discount"`
}

type CreateOrderInput struct {
	UserID          string
	TraceID         string
	Items           []ItemInput
	Payment         PaymentInput
	ShippingAddress Address
	Pricing         PricingInput
	Notes           string
	AgreedToTerms   bool
}

type CreateOrderResult struct {
	OrderID     string          `json:"id"`
	OrderNumber string          `json:"orderNumber"`
	Total       decimal.Decimal `json:"total"`
}

// CreateOrder validates every line, then reserves stock and stores the order in one unit.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	ctx, span := s.startSpan(ctx, "orders.CreateOrder")
	defer span.End()

	o, err := s.buildOrder(ctx, in)
	if err != nil {
		recordErr(span, err)
		return nil, err
	}

	moves := o.StockMoves(-1)
	levels, err := s.Store.InsertOrder(ctx, o, moves)
	if err != nil {
		recordErr(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("order.number", o.OrderNumber), attribute.Int("order.items", len(o.Items)))

	logging.FromContext(ctx).Info("order_created",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.String("user_id", o.UserID),
		zap.String("payment_method", string(o.Payment.Method)),
		zap.String("total", o.Pricing.Total.StringFixed(2)),
	)
	if s.Metrics != nil {
		s.Metrics.OrderCreated(o.Payment.Method)
		s.Metrics.StockMoved(EffectReserve, units(moves))
	}
	s.cacheStatus(ctx, o)
	s.publishCreated(o, in.TraceID)
	s.publishStock(o.ID, "order_created", levels, in.TraceID)

	return &CreateOrderResult{OrderID: o.ID, OrderNumber: o.OrderNumber, Total: o.Pricing.Total}, nil
}

func (s *Service) buildOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	if in.UserID == "" {
		return nil, invalidf("user is required")
	}
	if len(in.Items) == 0 {
		return nil, invalidf("Order must contain at least one item")
	}
	if !in.AgreedToTerms {
		return nil, invalidf("You must agree to the terms and conditions")
	}
	if err := validateAddress(in.ShippingAddress); err != nil {
		return nil, err
	}
	method := PaymentMethod(strings.ToLower(string(in.Payment.Method)))
	if method != PaymentCOD && method != PaymentOnline {
		return nil, invalidf("Unsupported payment method: %q", in.Payment.Method)
	}
	if in.Pricing.Shipping.IsNegative() || in.Pricing.Discount.IsNegative() {
		return nil, invalidf("Shipping and discount must not be negative")
	}

	ids := make([]string, 0, len(in.Items))
	for _, it := range in.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.Store.ProductsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	items, err := validateItems(in.Items, products, method)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal())
	}
	total := subtotal.Add(in.Pricing.Shipping).Sub(in.Pricing.Discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	now := s.now()
	return &Order{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		Items:           items,
		ShippingAddress: in.ShippingAddress,
		Pricing: Pricing{
			Subtotal: subtotal,
			Shipping: in.Pricing.Shipping,
			Discount: in.Pricing.Discount,
			Total:    total,
		},
		Payment: Payment{
			Method:        method,
			Status:        PaymentPending,
			TransactionID: in.Payment.TransactionID,
		},
		Status:        StatusPending,
		StatusHistory: []HistoryEntry{{Status: StatusPending, At: now}},
		Notes:         in.Notes,
		AgreedToTerms: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// validateItems checks each requested line in order and snapshots name and price.
// Quantities of repeated product/color lines are summed before the stock check. An instock
// line on a product with color variants must name one, so the total stays the sum of colors.
func validateItems(in []ItemInput, products map[string]*Product, method PaymentMethod) ([]Item, error) {
	type key struct{ product, color string }
	requested := map[key]int{}
	requestedProduct := map[string]int{}

	items := make([]Item, 0, len(in))
	for _, it := range in {
		if it.Quantity <= 0 {
			return nil, invalidf("Quantity must be greater than zero for product %s", it.ProductID)
		}
		p, ok := products[it.ProductID]
		if !ok {
			return nil, &ProductMissingError{ProductID: it.ProductID}
		}
		ft := it.FulfillmentType
		if ft == "" {
			ft = FulfillmentInStock
		}
		if !ft.Valid() {
			return nil, invalidf("Unknown fulfillment type %q for %s", ft, p.Name)
		}
		if method == PaymentCOD && ft == FulfillmentMadeToOrder {
			return nil, invalidf("%s is made to order: online payment required for made-to-order items", p.Name)
		}

		color := strings.TrimSpace(it.Color)
		if color != "" {
			ci := p.ColorIndex(color)
			if ci < 0 {
				return nil, invalidf("Color %s is not available for %s", color, p.Name)
			}
			color = p.Colors[ci].Name
		} else if ft == FulfillmentInStock && len(p.Colors) > 0 {
			return nil, invalidf("Choose a color for %s", p.Name)
		}

		if ft == FulfillmentInStock && !p.AllowBackorder {
			requestedProduct[p.ID] += it.Quantity
			if need := requestedProduct[p.ID]; need > p.Stock {
				return nil, &StockError{ProductID: p.ID, Product: p.Name, Requested: need, Available: p.Stock}
			}
			if color != "" {
				k := key{p.ID, color}
				requested[k] += it.Quantity
				c := p.Colors[p.ColorIndex(color)]
				if need := requested[k]; need > c.Stock {
					return nil, &StockError{ProductID: p.ID, Product: p.Name, Color: c.Name, Requested: need, Available: c.Stock}
				}
			}
		}

		items = append(items, Item{
			ProductID:       p.ID,
			Name:            p.Name,
			Price:           p.Price,
			Quantity:        it.Quantity,
			Color:           color,
			FulfillmentType: ft,
		})
	}
	return items, nil
}

func validateAddress(a Address) error {
	var missing []string
	for _, f := range []struct{ name, v string }{
		{"fullName", a.FullName},
		{"phone", a.Phone},
		{"addressLine1", a.AddressLine1},
		{"city", a.City},
		{"pincode", a.Pincode},
	} {
		if strings.TrimSpace(f.v) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return invalidf("Shipping address is missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// GetOrder resolves ref as an order number (DSF prefix) or an id. Non-admins only see
// their own, non-deleted orders.
func (s *Service) GetOrder(ctx context.Context, who Principal, ref string) (*Order, error) {
	var (
		o   *Order
		err error
	)
	if IsOrderNumber(ref) {
		o, err = s.Store.GetOrderByNumber(ctx, ref)
	} else {
		o, err = s.Store.GetOrder(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if o.IsDeleted && !who.Admin {
		return nil, ErrNotFound
	}
	if !who.Admin && o.UserID != who.UserID {
		return nil, ErrNotFound
	}
	return o, nil
}

type OrderPage struct {
	Orders []Order `json:"orders"`
	Total  int     `json:"total"`
	Page   int     `json:"page"`
	Pages  int     `json:"pages"`
}

// ListOrders lists orders; non-admin callers are pinned to their own orders.
func (s *Service) ListOrders(ctx context.Context, who Principal, f OrderFilter) (*OrderPage, error) {
	if !who.Admin {
		f.UserID = who.UserID
		f.IncludeDeleted = false
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalidf("Unknown order status %q", f.Status)
	}
	page, limit, _ := normalizePage(f.Page, f.Limit)
	f.Page, f.Limit = page, limit

	list, total, err := s.Store.ListOrders(ctx, f)
	if err != nil {
		return nil, err
	}
	return &OrderPage{Orders: list, Total: total, Page: page, Pages: (total + limit - 1) / limit}, nil
}

// UpdateStatus moves an order through the transition table and applies its inventory effect.
func (s *Service) UpdateStatus(ctx context.Context, ref string, to Status, note, traceID string) (*Order, error) {
	ctx, span := s.startSpan(ctx, "orders.UpdateStatus")
	defer span.End()

	if !to.Valid() {
		err := invalidf("Unknown order status %q", to)
		recordErr(span, err)
		return nil, err
	}
	o, err := s.GetOrder(ctx, Principal{Admin: true}, ref)
	if err != nil {
		recordErr(span, err)
		return nil, err
	}
	if o.IsDeleted {
		return nil, ErrNotFound
	}
	from := o.Status
	effect, ok := Transition(from, to)
	if !ok {
		err := &TransitionError{From: from, To: to}
		recordErr(span, err)
		return nil, err
	}

	var moves []StockMove
	if effect != EffectNone {
		moves = o.StockMoves(effect.Sign())
	}
	at := s.now()
	levels, err := s.Store.UpdateStatus(ctx, StatusUpdate{
		OrderID: o.ID, From: from, To: to, Note: note, At: at, Moves: moves,
	})
	if err != nil {
		recordErr(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("order.from", string(from)),
		attribute.String("order.to", string(to)),
		attribute.String("inventory.effect", effect.String()),
	)

	o.Status = to
	o.StatusHistory = append(o.StatusHistory, HistoryEntry{Status: to, Note: note, At: at})
	if note != "" {
		o.Notes = note
	}
	o.UpdatedAt = at

	logging.FromContext(ctx).Info("order_status_changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("inventory_effect", effect.String()),
		zap.Int("stock_moves", len(moves)),
	)
	if s.Metrics != nil {
		s.Metrics.StatusTransition(from, to)
		if len(moves) > 0 {
			s.Metrics.StockMoved(effect, units(moves))
		}
	}
	s.cacheStatus(ctx, o)
	s.publish(TopicOrderStatusChanged, EventOrderStatusChanged, o.ID, traceID, OrderStatusChangedPayload{
		OrderID: o.ID, OrderNumber: o.OrderNumber, From: from, To: to, Effect: effect.String(), Note: note,
	})
	if len(levels) > 0 {
		s.publishStock(o.ID, effect.String(), levels, traceID)
	}
	return o, nil
}

func (s *Service) UpdatePayment(ctx context.Context, ref string, status PaymentStatus, transactionID string) (*Order, error) {
	if !status.Valid() {
		return nil, invalidf("Unknown payment status %q", status)
	}
	o, err := s.GetOrder(ctx, Principal{Admin: true}, ref)
	if err != nil {
		return nil, err
	}
	if err := s.Store.UpdatePayment(ctx, o.ID, status, transactionID); err != nil {
		return nil, err
	}
	o.Payment.Status = status
	if transactionID != "" {
		o.Payment.TransactionID = transactionID
	}
	logging.FromContext(ctx).Info("order_payment_updated",
		zap.String("order_id", o.ID), zap.String("payment_status", string(status)))
	return o, nil
}

// DeleteOrder soft-deletes; stock is left alone.
func (s *Service) DeleteOrder(ctx context.Context, ref string) error {
	o, err := s.GetOrder(ctx, Principal{Admin: true}, ref)
	if err != nil {
		return err
	}
	if err := s.Store.SoftDelete(ctx, o.ID); err != nil {
		return err
	}
	o.IsDeleted = true
	o.UpdatedAt = s.now()
	s.cacheStatus(ctx, o)
	logging.FromContext(ctx).Info("order_deleted", zap.String("order_id", o.ID))
	return nil
}

func (s *Service) cacheStatus(ctx context.Context, o *Order) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.SetStatus(ctx, o); err != nil {
		logging.FromContext(ctx).Warn("order_status_cache_failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (s *Service) publishCreated(o *Order, traceID string) {
	items := make([]ItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemQty{ProductID: it.ProductID, Color: it.Color, Qty: it.Quantity, FulfillmentType: it.FulfillmentType})
	}
	s.publish(TopicOrderCreated, EventOrderCreated, o.ID, traceID, OrderCreatedPayload{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Items:         items,
		Total:         o.Pricing.Total.StringFixed(2),
		PaymentMethod: o.Payment.Method,
	})
}

func (s *Service) publishStock(orderID, reason string, levels []StockLevel, traceID string) {
	if len(levels) == 0 {
		return
	}
	s.publish(TopicStockChanged, EventStockChanged, orderID, traceID, StockChangedPayload{
		OrderID: orderID, Reason: reason, Levels: levels,
	})
}

// publish keys the event by correlationID: the order id, or the product id for catalog saves.
func (s *Service) publish(topic, eventType, correlationID, traceID string, payload any) {
	if s.Publisher == nil {
		return
	}
	env, err := NewEnvelope(eventType, s.Producer, traceID, correlationID, payload)
	if err != nil {
		zap.L().Error("event_encode_failed", zap.String("event", eventType), zap.Error(err))
		return
	}
	s.Publisher.Publish(topic, env)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	tracer := s.tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return tracer.Start(ctx, name)
}

func recordErr(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func units(moves []StockMove) int {
	n := 0
	for _, mv := range moves {
		if mv.Delta < 0 {
			n -= mv.Delta
		} else {
			n += mv.Delta
		}
	}
	return n
}
