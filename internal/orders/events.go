package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventStockChanged       = "StockChanged"
)

// ReasonCatalogSaved marks StockChanged events raised by admin product saves.
const ReasonCatalogSaved = "catalog_saved"

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, producer, traceID, orderID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}

type ItemQty struct {
	ProductID       string          `json:"product_id"`
	Color           string          `json:"color,omitempty"`
	Qty             int             `json:"qty"`
	FulfillmentType FulfillmentType `json:"fulfillment_type"`
}

type OrderCreatedPayload struct {
	OrderID       string        `json:"order_id"`
	OrderNumber   string        `json:"order_number"`
	UserID        string        `json:"user_id"`
	Items         []ItemQty     `json:"items"`
	Total         string        `json:"total"`
	PaymentMethod PaymentMethod `json:"payment_method"`
}

type OrderStatusChangedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	From        Status `json:"from"`
	To          Status `json:"to"`
	Effect      string `json:"inventory_effect"`
	Note        string `json:"note,omitempty"`
}

type StockChangedPayload struct {
	OrderID string       `json:"order_id,omitempty"`
	Reason  string       `json:"reason"` // order_created | restock | reserve | catalog_saved
	Levels  []StockLevel `json:"levels"`
}
