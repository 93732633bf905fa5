package orders

import (
	"context"
	"time"
)

// StockMove is one signed change to a product's stock (and its color variant when Color is set).
// Negative deltas are conditional: they fail unless the stock covers them or the
// product allows backorder.
type StockMove struct {
	ProductID string
	Color     string
	Delta     int
	Label     string // product name, used in error messages
}

// StockLevel is the stock of a product (or one of its colors) right after a move.
type StockLevel struct {
	ProductID string      `json:"product_id"`
	Color     string      `json:"color,omitempty"`
	Stock     int         `json:"stock"`
	MinStock  int         `json:"min_stock"`
	Status    StockStatus `json:"status"`
}

type ProductFilter struct {
	Query  string
	Status StockStatus
	Sort   string // price | name | createdAt, prefix "-" for descending
	Page   int
	Limit  int
}

type OrderFilter struct {
	UserID         string
	Status         Status
	PaymentMethod  PaymentMethod
	IncludeDeleted bool
	Sort           string // createdAt | total, prefix "-" for descending
	Page           int
	Limit          int
}

// StatusUpdate is a compare-and-set of the order status with its stock side effect.
type StatusUpdate struct {
	OrderID string
	From    Status
	To      Status
	Note    string
	At      time.Time
	Moves   []StockMove
}

type Store interface {
	ProductsByID(ctx context.Context, ids []string) (map[string]*Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]Product, int, error)
	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error

	// InsertOrder applies the moves, draws the order number and stores the order as one unit.
	InsertOrder(ctx context.Context, o *Order, moves []StockMove) ([]StockLevel, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, int, error)
	UpdateStatus(ctx context.Context, u StatusUpdate) ([]StockLevel, error)
	UpdatePayment(ctx context.Context, orderID string, status PaymentStatus, transactionID string) error
	SoftDelete(ctx context.Context, orderID string) error
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

// normalizePage clamps paging input and returns the offset.
func normalizePage(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit, (page - 1) * limit
}
