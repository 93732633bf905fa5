package orders

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore keeps the catalog and orders in process memory. It backs the API when no
// Postgres DSN is configured and gives the same all-or-nothing stock semantics as Repo.
type MemStore struct {
	mu       sync.Mutex
	products map[string]*Product
	orders   map[string]*Order
	byNumber map[string]string
	counter  int64
	now      func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		products: make(map[string]*Product),
		orders:   make(map[string]*Order),
		byNumber: make(map[string]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemStore) ProductsByID(_ context.Context, ids []string) (map[string]*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = cloneProduct(p)
		}
	}
	return out, nil
}

func (m *MemStore) GetProduct(_ context.Context, id string) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return cloneProduct(p), nil
}

func (m *MemStore) ListProducts(_ context.Context, f ProductFilter) ([]Product, int, error) {
	m.mu.Lock()
	var all []Product
	q := strings.ToLower(strings.TrimSpace(f.Query))
	for _, p := range m.products {
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		all = append(all, *cloneProduct(p))
	}
	m.mu.Unlock()

	field, desc := parseSort(f.Sort, "createdAt")
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if desc {
			a, b = b, a
		}
		switch field {
		case "price":
			return a.Price.LessThan(b.Price)
		case "name":
			return a.Name < b.Name
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
	_, limit, offset := normalizePage(f.Page, f.Limit)
	return paginate(all, offset, limit), len(all), nil
}

func (m *MemStore) CreateProduct(_ context.Context, p *Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.SKU != "" {
		for _, existing := range m.products {
			if strings.EqualFold(existing.SKU, p.SKU) {
				return ErrDuplicateSKU
			}
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := m.now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Recompute()
	m.products[p.ID] = cloneProduct(p)
	return nil
}

func (m *MemStore) UpdateProduct(_ context.Context, p *Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.products[p.ID]
	if !ok {
		return ErrProductNotFound
	}
	if p.SKU != "" {
		for id, other := range m.products {
			if id != p.ID && strings.EqualFold(other.SKU, p.SKU) {
				return ErrDuplicateSKU
			}
		}
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = m.now()
	p.Recompute()
	m.products[p.ID] = cloneProduct(p)
	return nil
}

func (m *MemStore) InsertOrder(_ context.Context, o *Order, moves []StockMove) ([]StockLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	levels, err := m.applyMovesLocked(moves)
	if err != nil {
		return nil, err
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	m.counter++
	o.OrderNumber = FormatNumber(o.CreatedAt, m.counter)
	m.orders[o.ID] = cloneOrder(o)
	m.byNumber[o.OrderNumber] = o.ID
	return levels, nil
}

func (m *MemStore) GetOrder(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *MemStore) GetOrderByNumber(ctx context.Context, number string) (*Order, error) {
	m.mu.Lock()
	id, ok := m.byNumber[strings.ToUpper(number)]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.GetOrder(ctx, id)
}

func (m *MemStore) ListOrders(_ context.Context, f OrderFilter) ([]Order, int, error) {
	m.mu.Lock()
	var all []Order
	for _, o := range m.orders {
		if o.IsDeleted && !f.IncludeDeleted {
			continue
		}
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.PaymentMethod != "" && o.Payment.Method != f.PaymentMethod {
			continue
		}
		all = append(all, *cloneOrder(o))
	}
	m.mu.Unlock()

	field, desc := parseSort(f.Sort, "-createdAt")
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if desc {
			a, b = b, a
		}
		if field == "total" {
			return a.Pricing.Total.LessThan(b.Pricing.Total)
		}
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.OrderNumber < b.OrderNumber
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	_, limit, offset := normalizePage(f.Page, f.Limit)
	return paginate(all, offset, limit), len(all), nil
}

func (m *MemStore) UpdateStatus(_ context.Context, u StatusUpdate) ([]StockLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[u.OrderID]
	if !ok || o.IsDeleted {
		return nil, ErrNotFound
	}
	if o.Status != u.From {
		return nil, ErrConflict
	}
	levels, err := m.applyMovesLocked(u.Moves)
	if err != nil {
		return nil, err
	}
	o.Status = u.To
	o.StatusHistory = append(o.StatusHistory, HistoryEntry{Status: u.To, Note: u.Note, At: u.At})
	if u.Note != "" {
		o.Notes = u.Note
	}
	o.UpdatedAt = u.At
	return levels, nil
}

func (m *MemStore) UpdatePayment(_ context.Context, orderID string, status PaymentStatus, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || o.IsDeleted {
		return ErrNotFound
	}
	o.Payment.Status = status
	if transactionID != "" {
		o.Payment.TransactionID = transactionID
	}
	o.UpdatedAt = m.now()
	return nil
}

func (m *MemStore) SoftDelete(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || o.IsDeleted {
		return ErrNotFound
	}
	o.IsDeleted = true
	o.UpdatedAt = m.now()
	return nil
}

// applyMovesLocked works on copies and only swaps them in when every move succeeds.
func (m *MemStore) applyMovesLocked(moves []StockMove) ([]StockLevel, error) {
	if len(moves) == 0 {
		return nil, nil
	}
	scratch := map[string]*Product{}
	var touched []levelKey
	seen := map[levelKey]bool{}

	for _, mv := range moves {
		p, ok := scratch[mv.ProductID]
		if !ok {
			orig, exists := m.products[mv.ProductID]
			if !exists {
				return nil, &ProductMissingError{ProductID: mv.ProductID}
			}
			p = cloneProduct(orig)
			scratch[mv.ProductID] = p
		}
		label := mv.Label
		if label == "" {
			label = p.Name
		}

		ci := -1
		if mv.Color != "" {
			ci = p.ColorIndex(mv.Color)
			if ci < 0 && mv.Delta < 0 {
				return nil, invalidf("Color %s is not available for %s", mv.Color, label)
			}
		}
		if mv.Delta < 0 && !p.AllowBackorder {
			need := -mv.Delta
			if ci >= 0 && p.Colors[ci].Stock < need {
				return nil, &StockError{ProductID: p.ID, Product: label, Color: p.Colors[ci].Name,
					Requested: need, Available: p.Colors[ci].Stock}
			}
			if p.Stock < need {
				return nil, &StockError{ProductID: p.ID, Product: label, Requested: need, Available: p.Stock}
			}
		}
		p.Stock += mv.Delta
		if ci >= 0 {
			p.Colors[ci].Stock += mv.Delta
		}

		for _, k := range []levelKey{{mv.ProductID, ""}, {mv.ProductID, colorName(p, ci)}} {
			if !seen[k] {
				seen[k] = true
				touched = append(touched, k)
			}
		}
	}

	now := m.now()
	for id, p := range scratch {
		p.refreshStatus()
		p.UpdatedAt = now
		m.products[id] = p
	}
	return levelsFor(touched, scratch), nil
}

type levelKey struct{ productID, color string }

func colorName(p *Product, ci int) string {
	if ci < 0 {
		return ""
	}
	return p.Colors[ci].Name
}

func levelsFor(keys []levelKey, products map[string]*Product) []StockLevel {
	out := make([]StockLevel, 0, len(keys))
	for _, k := range keys {
		p := products[k.productID]
		lvl := StockLevel{ProductID: k.productID, Stock: p.Stock, MinStock: p.MinStock, Status: p.Status}
		if k.color != "" {
			c := p.Colors[p.ColorIndex(k.color)]
			lvl.Color, lvl.Stock, lvl.Status = c.Name, c.Stock, c.Status
		}
		out = append(out, lvl)
	}
	return out
}

func parseSort(s, def string) (string, bool) {
	if s == "" {
		s = def
	}
	if strings.HasPrefix(s, "-") {
		return s[1:], true
	}
	return s, false
}

func paginate[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}
