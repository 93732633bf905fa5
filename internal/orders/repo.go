package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repo is the Postgres Store.
type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, order_number, user_id, items, shipping_address,
	subtotal::text, shipping::text, discount::text, total::text,
	payment_method, payment_status, transaction_id, status, status_history,
	notes, agreed_to_terms, is_deleted, created_at, updated_at`

// InsertOrder: stock moves, order number and the order row share one transaction.
// Any shortfall rolls everything back via the deferred Rollback.
func (r *Repo) InsertOrder(ctx context.Context, o *Order, moves []StockMove) ([]StockLevel, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	levels, err := applyMoves(ctx, tx, moves)
	if err != nil {
		return nil, err
	}

	var seq int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO order_counters(name, value) VALUES ('orders', 1)
		ON CONFLICT (name) DO UPDATE SET value = order_counters.value + 1
		RETURNING value`).Scan(&seq); err != nil {
		return nil, fmt.Errorf("next order number: %w", err)
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.OrderNumber = FormatNumber(o.CreatedAt, seq)

	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, err
	}
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return nil, err
	}
	history, err := json.Marshal(o.StatusHistory)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, order_number, user_id, items, shipping_address,
			subtotal, shipping, discount, total,
			payment_method, payment_status, transaction_id, status, status_history,
			notes, agreed_to_terms, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric,
			$10, $11, $12, $13, $14, $15, $16, false, $17, $17)`,
		o.ID, o.OrderNumber, o.UserID, items, addr,
		o.Pricing.Subtotal.String(), o.Pricing.Shipping.String(), o.Pricing.Discount.String(), o.Pricing.Total.String(),
		string(o.Payment.Method), string(o.Payment.Status), o.Payment.TransactionID, string(o.Status), history,
		o.Notes, o.AgreedToTerms, o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return levels, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                                   Order
		items, addr, history                []byte
		subtotal, shipping, discount, total string
		method, payStatus, status           string
	)
	if err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &items, &addr,
		&subtotal, &shipping, &discount, &total,
		&method, &payStatus, &o.Payment.TransactionID, &status, &history,
		&o.Notes, &o.AgreedToTerms, &o.IsDeleted, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	if err := json.Unmarshal(history, &o.StatusHistory); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	var err error
	if o.Pricing.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return nil, err
	}
	if o.Pricing.Shipping, err = decimal.NewFromString(shipping); err != nil {
		return nil, err
	}
	if o.Pricing.Discount, err = decimal.NewFromString(discount); err != nil {
		return nil, err
	}
	if o.Pricing.Total, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	o.Payment.Method = PaymentMethod(method)
	o.Payment.Status = PaymentStatus(payStatus)
	o.Status = Status(status)
	return &o, nil
}

func (r *Repo) GetOrder(ctx context.Context, id string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (r *Repo) GetOrderByNumber(ctx context.Context, number string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number=$1`,
		strings.ToUpper(number)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (r *Repo) ListOrders(ctx context.Context, f OrderFilter) ([]Order, int, error) {
	var where []string
	var args []any
	if !f.IncludeDeleted {
		where = append(where, "NOT is_deleted")
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.PaymentMethod != "" {
		args = append(args, string(f.PaymentMethod))
		where = append(where, fmt.Sprintf("payment_method = $%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	field, desc := parseSort(f.Sort, "-createdAt")
	col := "created_at"
	if field == "total" {
		col = "total"
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	_, limit, offset := normalizePage(f.Page, f.Limit)
	args = append(args, limit, offset)
	rows, err := r.DB.Query(ctx, fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY %s %s, order_number %s LIMIT $%d OFFSET $%d`,
		orderColumns, cond, col, dir, dir, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *o)
	}
	return out, total, rows.Err()
}

// UpdateStatus compares-and-sets the status, then applies the stock moves in the same tx.
func (r *Repo) UpdateStatus(ctx context.Context, u StatusUpdate) ([]StockLevel, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, err := json.Marshal([]HistoryEntry{{Status: u.To, Note: u.Note, At: u.At}})
	if err != nil {
		return nil, err
	}
	ct, err := tx.Exec(ctx, `
		UPDATE orders SET status = $3,
		       status_history = status_history || $4::jsonb,
		       notes = CASE WHEN $5 <> '' THEN $5 ELSE notes END,
		       updated_at = $6
		WHERE id = $1 AND status = $2 AND NOT is_deleted`,
		u.OrderID, string(u.From), string(u.To), entry, u.Note, u.At)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() != 1 {
		var deleted bool
		err := tx.QueryRow(ctx, `SELECT is_deleted FROM orders WHERE id=$1`, u.OrderID).Scan(&deleted)
		if errors.Is(err, pgx.ErrNoRows) || deleted {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrConflict
	}

	levels, err := applyMoves(ctx, tx, u.Moves)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return levels, nil
}

func (r *Repo) UpdatePayment(ctx context.Context, orderID string, status PaymentStatus, transactionID string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_status = $2,
		       transaction_id = CASE WHEN $3 <> '' THEN $3 ELSE transaction_id END,
		       updated_at = now()
		WHERE id = $1 AND NOT is_deleted`, orderID, string(status), transactionID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) SoftDelete(ctx context.Context, orderID string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET is_deleted = true, updated_at = now() WHERE id=$1 AND NOT is_deleted`, orderID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}
