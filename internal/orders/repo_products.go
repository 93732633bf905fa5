package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const productColumns = `id, COALESCE(sku, ''), name, price::text, stock, min_stock, allow_backorder, created_at, updated_at`

const stockStatusSQL = `CASE WHEN stock <= 0 THEN 'Out of Stock' WHEN stock <= min_stock THEN 'Low Stock' ELSE 'In Stock' END`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	var price string
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &price, &p.Stock, &p.MinStock, &p.AllowBackorder,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("product %s price: %w", p.ID, err)
	}
	p.Price = d
	return &p, nil
}

func (r *Repo) ProductsByID(ctx context.Context, ids []string) (map[string]*Product, error) {
	out := make(map[string]*Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadColors(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) GetProduct(ctx context.Context, id string) (*Product, error) {
	m, err := r.ProductsByID(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	p, ok := m[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func (r *Repo) ListProducts(ctx context.Context, f ProductFilter) ([]Product, int, error) {
	var where []string
	var args []any
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("%s = $%d", stockStatusSQL, len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM products`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	field, desc := parseSort(f.Sort, "createdAt")
	col := map[string]string{"price": "price", "name": "name"}[field]
	if col == "" {
		col = "created_at"
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	_, limit, offset := normalizePage(f.Page, f.Limit)
	args = append(args, limit, offset)
	q := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY %s %s, id LIMIT $%d OFFSET $%d`,
		productColumns, cond, col, dir, len(args)-1, len(args))

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []*Product
	byID := map[string]*Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, p)
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.loadColors(ctx, byID); err != nil {
		return nil, 0, err
	}
	out := make([]Product, 0, len(list))
	for _, p := range list {
		out = append(out, *p)
	}
	return out, total, nil
}

// loadColors attaches color variants and refreshes derived statuses.
func (r *Repo) loadColors(ctx context.Context, products map[string]*Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]string, 0, len(products))
	for id := range products {
		ids = append(ids, id)
	}
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, name, hex_code, stock FROM product_colors
		WHERE product_id = ANY($1) ORDER BY product_id, position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var pid string
		var c Color
		if err := rows.Scan(&pid, &c.Name, &c.HexCode, &c.Stock); err != nil {
			return err
		}
		if p, ok := products[pid]; ok {
			p.Colors = append(p.Colors, c)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, p := range products {
		p.refreshStatus()
	}
	return nil
}

func (r *Repo) CreateProduct(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Recompute()
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO products(id, sku, name, price, stock, min_stock, allow_backorder)
		VALUES ($1, NULLIF($2, ''), $3, $4::numeric, $5, $6, $7)
		RETURNING created_at, updated_at`,
		p.ID, p.SKU, p.Name, p.Price.String(), p.Stock, p.MinStock, p.AllowBackorder,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if err := insertColors(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) UpdateProduct(ctx context.Context, p *Product) error {
	p.Recompute()
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		UPDATE products SET sku = NULLIF($2, ''), name = $3, price = $4::numeric, stock = $5,
		       min_stock = $6, allow_backorder = $7, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.SKU, p.Name, p.Price.String(), p.Stock, p.MinStock, p.AllowBackorder,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProductNotFound
	}
	if err != nil {
		return mapUniqueViolation(err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM product_colors WHERE product_id=$1`, p.ID); err != nil {
		return err
	}
	if err := insertColors(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertColors(ctx context.Context, tx pgx.Tx, p *Product) error {
	for i, c := range p.Colors {
		if _, err := tx.Exec(ctx, `
			INSERT INTO product_colors(product_id, position, name, hex_code, stock)
			VALUES ($1, $2, $3, $4, $5)`, p.ID, i, c.Name, c.HexCode, c.Stock); err != nil {
			return mapUniqueViolation(err)
		}
	}
	return nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "color") {
			return invalidf("duplicate color name")
		}
		return ErrDuplicateSKU
	}
	return err
}
