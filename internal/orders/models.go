package orders

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type StockStatus string

const (
	StockOut StockStatus = "Out of Stock"
	StockLow StockStatus = "Low Stock"
	StockIn  StockStatus = "In Stock"
)

// DefaultMinStock is the low-stock threshold used when a product does not set one.
const DefaultMinStock = 5

// DeriveStockStatus classifies a stock level against the low-stock threshold.
func DeriveStockStatus(stock, minStock int) StockStatus {
	switch {
	case stock <= 0:
		return StockOut
	case stock <= minStock:
		return StockLow
	default:
		return StockIn
	}
}

type Color struct {
	Name    string      `json:"name"`
	HexCode string      `json:"hexCode,omitempty"`
	Stock   int         `json:"stock"`
	Status  StockStatus `json:"status"`
}

type Product struct {
	ID             string          `json:"id"`
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	Stock          int             `json:"stock"`
	MinStock       int             `json:"minStock"`
	AllowBackorder bool            `json:"allowBackorder"`
	Colors         []Color         `json:"colors"`
	Status         StockStatus     `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Recompute derives the scalar stock from the color variants (when there are any)
// and refreshes every derived status. Catalog saves call it before writing.
func (p *Product) Recompute() {
	if p.MinStock < 0 {
		p.MinStock = 0
	}
	if len(p.Colors) > 0 {
		sum := 0
		for i := range p.Colors {
			sum += p.Colors[i].Stock
		}
		p.Stock = sum
	}
	p.refreshStatus()
}

func (p *Product) refreshStatus() {
	for i := range p.Colors {
		p.Colors[i].Status = DeriveStockStatus(p.Colors[i].Stock, p.MinStock)
	}
	p.Status = DeriveStockStatus(p.Stock, p.MinStock)
}

// StockLevels reports the product level followed by one entry per color variant.
func (p *Product) StockLevels() []StockLevel {
	out := make([]StockLevel, 0, 1+len(p.Colors))
	out = append(out, StockLevel{ProductID: p.ID, Stock: p.Stock, MinStock: p.MinStock, Status: p.Status})
	for _, c := range p.Colors {
		out = append(out, StockLevel{ProductID: p.ID, Color: c.Name, Stock: c.Stock, MinStock: p.MinStock, Status: c.Status})
	}
	return out
}

// ColorIndex finds a color variant by name, ignoring case. It returns -1 when absent.
func (p *Product) ColorIndex(name string) int {
	for i := range p.Colors {
		if strings.EqualFold(p.Colors[i].Name, name) {
			return i
		}
	}
	return -1
}

type FulfillmentType string

const (
	FulfillmentInStock     FulfillmentType = "instock"
	FulfillmentMadeToOrder FulfillmentType = "made_to_order"
	FulfillmentHybrid      FulfillmentType = "hybrid"
)

func (f FulfillmentType) Valid() bool {
	switch f {
	case FulfillmentInStock, FulfillmentMadeToOrder, FulfillmentHybrid:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentOnline PaymentMethod = "online"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type Item struct {
	ProductID       string          `json:"product"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	Quantity        int             `json:"quantity"`
	Color           string          `json:"color,omitempty"`
	FulfillmentType FulfillmentType `json:"fulfillmentType"`
}

func (it Item) LineTotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

type Address struct {
	FullName     string `json:"fullName"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state,omitempty"`
	Pincode      string `json:"pincode"`
}

type Pricing struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

type Payment struct {
	Method        PaymentMethod `json:"method"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transactionId,omitempty"`
}

type HistoryEntry struct {
	Status Status    `json:"status"`
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
}

type Order struct {
	ID              string         `json:"id"`
	OrderNumber     string         `json:"orderNumber"`
	UserID          string         `json:"user"`
	Items           []Item         `json:"items"`
	ShippingAddress Address        `json:"shippingAddress"`
	Pricing         Pricing        `json:"pricing"`
	Payment         Payment        `json:"payment"`
	Status          Status         `json:"orderStatus"`
	StatusHistory   []HistoryEntry `json:"statusHistory"`
	Notes           string         `json:"notes,omitempty"`
	AgreedToTerms   bool           `json:"agreedToTerms"`
	IsDeleted       bool           `json:"isDeleted"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// StockMoves lists the inventory changes for the order's instock lines, scaled by sign
// (-1 reserves, +1 restocks). made_to_order and hybrid lines never move stock.
func (o *Order) StockMoves(sign int) []StockMove {
	var moves []StockMove
	for _, it := range o.Items {
		if it.FulfillmentType != FulfillmentInStock {
			continue
		}
		moves = append(moves, StockMove{
			ProductID: it.ProductID,
			Color:     it.Color,
			Delta:     sign * it.Quantity,
			Label:     it.Name,
		})
	}
	return moves
}

func cloneOrder(o *Order) *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	c.StatusHistory = append([]HistoryEntry(nil), o.StatusHistory...)
	return &c
}

func cloneProduct(p *Product) *Product {
	if p == nil {
		return nil
	}
	c := *p
	c.Colors = append([]Color(nil), p.Colors...)
	return &c
}
