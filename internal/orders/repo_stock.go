package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// applyMoves runs every move as a conditional update inside tx. A shortfall returns an
// error and the caller rolls the whole transaction back, so no earlier move survives.
func applyMoves(ctx context.Context, tx pgx.Tx, moves []StockMove) ([]StockLevel, error) {
	var keys []levelKey
	levels := map[levelKey]StockLevel{}

	for _, mv := range moves {
		var stock, minStock int
		err := tx.QueryRow(ctx, `
			UPDATE products SET stock = stock + $2, updated_at = now()
			WHERE id = $1 AND ($2 >= 0 OR stock + $2 >= 0 OR allow_backorder)
			RETURNING stock, min_stock`, mv.ProductID, mv.Delta).Scan(&stock, &minStock)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, productShortfall(ctx, tx, mv)
		}
		if err != nil {
			return nil, err
		}
		k := levelKey{mv.ProductID, ""}
		if _, ok := levels[k]; !ok {
			keys = append(keys, k)
		}
		levels[k] = StockLevel{ProductID: mv.ProductID, Stock: stock, MinStock: minStock,
			Status: DeriveStockStatus(stock, minStock)}

		if mv.Color == "" {
			continue
		}
		var color string
		var colorStock int
		err = tx.QueryRow(ctx, `
			UPDATE product_colors c SET stock = c.stock + $3
			FROM products p
			WHERE c.product_id = $1 AND lower(c.name) = lower($2) AND p.id = c.product_id
			  AND ($3 >= 0 OR c.stock + $3 >= 0 OR p.allow_backorder)
			RETURNING c.name, c.stock`, mv.ProductID, mv.Color, mv.Delta).Scan(&color, &colorStock)
		if errors.Is(err, pgx.ErrNoRows) {
			if mv.Delta >= 0 {
				// variant removed since the order was placed; the scalar restock above still counts
				continue
			}
			return nil, colorShortfall(ctx, tx, mv)
		}
		if err != nil {
			return nil, err
		}
		ck := levelKey{mv.ProductID, color}
		if _, ok := levels[ck]; !ok {
			keys = append(keys, ck)
		}
		levels[ck] = StockLevel{ProductID: mv.ProductID, Color: color, Stock: colorStock, MinStock: minStock,
			Status: DeriveStockStatus(colorStock, minStock)}
	}

	out := make([]StockLevel, 0, len(keys))
	for _, k := range keys {
		out = append(out, levels[k])
	}
	return out, nil
}

func productShortfall(ctx context.Context, tx pgx.Tx, mv StockMove) error {
	var name string
	var stock int
	err := tx.QueryRow(ctx, `SELECT name, stock FROM products WHERE id=$1`, mv.ProductID).Scan(&name, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return &ProductMissingError{ProductID: mv.ProductID}
	}
	if err != nil {
		return err
	}
	if mv.Label != "" {
		name = mv.Label
	}
	return &StockError{ProductID: mv.ProductID, Product: name, Requested: -mv.Delta, Available: stock}
}

func colorShortfall(ctx context.Context, tx pgx.Tx, mv StockMove) error {
	label := mv.Label
	if label == "" {
		label = mv.ProductID
	}
	var color string
	var stock int
	err := tx.QueryRow(ctx, `SELECT name, stock FROM product_colors WHERE product_id=$1 AND lower(name)=lower($2)`,
		mv.ProductID, mv.Color).Scan(&color, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return invalidf("Color %s is not available for %s", mv.Color, label)
	}
	if err != nil {
		return err
	}
	return &StockError{ProductID: mv.ProductID, Product: label, Color: color, Requested: -mv.Delta, Available: stock}
}
