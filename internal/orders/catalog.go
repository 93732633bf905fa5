package orders

import (
	"context"
	"strings"

	"github.com/ariefcatur/furniture-orders/internal/logging"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductInput is the writable part of a product. A nil MinStock means DefaultMinStock.
type ProductInput struct {
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	Stock          int             `json:"stock"`
	MinStock       *int            `json:"minStock"`
	AllowBackorder bool            `json:"allowBackorder"`
	Colors         []Color         `json:"colors"`
}

type ProductPage struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	Pages    int       `json:"pages"`
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return invalidf("Product name is required")
	}
	if in.Price.IsNegative() {
		return invalidf("Price must not be negative")
	}
	if in.Stock < 0 {
		return invalidf("Stock must not be negative")
	}
	if in.MinStock != nil && *in.MinStock < 0 {
		return invalidf("minStock must not be negative")
	}
	seen := map[string]bool{}
	for _, c := range in.Colors {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" {
			return invalidf("Color name is required")
		}
		if seen[name] {
			return invalidf("Duplicate color %s", c.Name)
		}
		if c.Stock < 0 {
			return invalidf("Stock of color %s must not be negative", c.Name)
		}
		seen[name] = true
	}
	return nil
}

func (in ProductInput) apply(p *Product, defMin int) {
	p.SKU = strings.TrimSpace(in.SKU)
	p.Name = strings.TrimSpace(in.Name)
	p.Price = in.Price
	p.Stock = in.Stock
	p.MinStock = defMin
	if in.MinStock != nil {
		p.MinStock = *in.MinStock
	}
	p.AllowBackorder = in.AllowBackorder
	p.Colors = make([]Color, len(in.Colors))
	for i, c := range in.Colors {
		p.Colors[i] = Color{Name: strings.TrimSpace(c.Name), HexCode: c.HexCode, Stock: c.Stock}
	}
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var p Product
	in.apply(&p, s.minStockDefault())
	if err := s.Store.CreateProduct(ctx, &p); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("product_created", zap.String("product_id", p.ID), zap.Int("stock", p.Stock))
	s.publishCatalog(&p)
	return &p, nil
}

// UpdateProduct replaces the writable fields. Stock is recomputed from colors when present.
func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p, err := s.Store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(p, s.minStockDefault())
	if err := s.Store.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("product_updated", zap.String("product_id", p.ID), zap.Int("stock", p.Stock))
	s.publishCatalog(p)
	return p, nil
}

// publishCatalog announces the saved levels so the low-stock set follows admin edits too.
func (s *Service) publishCatalog(p *Product) {
	s.publish(TopicStockChanged, EventStockChanged, p.ID, "", StockChangedPayload{
		Reason: ReasonCatalogSaved, Levels: p.StockLevels(),
	})
}

func (s *Service) GetProduct(ctx context.Context, id string) (*Product, error) {
	return s.Store.GetProduct(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context, f ProductFilter) (*ProductPage, error) {
	switch f.Status {
	case "", StockIn, StockLow, StockOut:
	default:
		return nil, invalidf("Unknown stock status %q", f.Status)
	}
	page, limit, _ := normalizePage(f.Page, f.Limit)
	f.Page, f.Limit = page, limit
	list, total, err := s.Store.ListProducts(ctx, f)
	if err != nil {
		return nil, err
	}
	return &ProductPage{Products: list, Total: total, Page: page, Pages: (total + limit - 1) / limit}, nil
}

// ProductsIn returns the products for ids in the given order, skipping unknown ids.
func (s *Service) ProductsIn(ctx context.Context, ids []string) ([]Product, error) {
	m, err := s.Store.ProductsByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *Service) minStockDefault() int {
	if s.MinStockDefault > 0 {
		return s.MinStockDefault
	}
	return DefaultMinStock
}
