package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/erazemk/pujcovna/internal/db"
	"github.com/erazemk/pujcovna/internal/model"
)

const itemColumns = `id, name, total_quantity, available_quantity, consumable, created_at, deleted_at`

const variantColumns = `id, item_id, name, total_quantity, available_quantity, created_at, deleted_at`

// CreateItem creates a new item with all of its quantity available.
func CreateItem(ctx context.Context, q db.Querier, name string, total int, consumable bool) (*model.Item, error) {
	id := uuid.NewString()
	_, err := q.ExecContext(ctx,
		`INSERT INTO items (id, name, total_quantity, available_quantity, consumable, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, total, total, consumable, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}
	return GetItem(ctx, q, id)
}

// GetItem returns a live item with its live variants.
func GetItem(ctx context.Context, q db.Querier, id string) (*model.Item, error) {
	item, err := scanItem(q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ? AND deleted_at IS NULL`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}

	variants, err := ListVariants(ctx, q, id)
	if err != nil {
		return nil, err
	}
	item.Variants = variants
	return item, nil
}

// ListItems returns all live items ordered by name, each with its variants.
func ListItems(ctx context.Context, q db.Querier) ([]model.Item, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE deleted_at IS NULL ORDER BY name, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	index := map[string]int{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		index[item.ID] = len(items)
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	vrows, err := q.QueryContext(ctx,
		`SELECT `+variantColumns+` FROM item_variants WHERE deleted_at IS NULL ORDER BY name, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing variants: %w", err)
	}
	defer vrows.Close()

	for vrows.Next() {
		v, err := scanVariant(vrows)
		if err != nil {
			return nil, fmt.Errorf("scanning variant: %w", err)
		}
		if i, ok := index[v.ItemID]; ok {
			items[i].Variants = append(items[i].Variants, *v)
		}
	}
	return items, vrows.Err()
}

// CreateVariant creates a variant of an item with all of its quantity available.
func CreateVariant(ctx context.Context, q db.Querier, itemID, name string, total int) (*model.Variant, error) {
	id := uuid.NewString()
	_, err := q.ExecContext(ctx,
		`INSERT INTO item_variants (id, item_id, name, total_quantity, available_quantity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, itemID, name, total, total, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating variant: %w", err)
	}
	return GetVariant(ctx, q, id)
}

// GetVariant returns a live variant by ID.
func GetVariant(ctx context.Context, q db.Querier, id string) (*model.Variant, error) {
	v, err := scanVariant(q.QueryRowContext(ctx,
		`SELECT `+variantColumns+` FROM item_variants WHERE id = ? AND deleted_at IS NULL`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting variant: %w", err)
	}
	return v, nil
}

// ListVariants returns the live variants of an item ordered by name.
func ListVariants(ctx context.Context, q db.Querier, itemID string) ([]model.Variant, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+variantColumns+` FROM item_variants
		 WHERE item_id = ? AND deleted_at IS NULL ORDER BY name, id`, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing variants: %w", err)
	}
	defer rows.Close()

	variants := []model.Variant{}
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning variant: %w", err)
		}
		variants = append(variants, *v)
	}
	return variants, rows.Err()
}

// AdjustAvailability applies available_quantity -= delta to the target in a
// single conditional UPDATE. The change is refused with a *RangeError when the
// result would leave [0, total_quantity], and with ErrNotFound when the target
// does not exist.
func AdjustAvailability(ctx context.Context, q db.Querier, target model.Target, delta int) (*model.Availability, error) {
	var query string
	var args []any

	switch t := target.(type) {
	case model.ItemTarget:
		query = `UPDATE items SET available_quantity = available_quantity - ?
		         WHERE id = ? AND deleted_at IS NULL
		           AND available_quantity - ? >= 0
		           AND available_quantity - ? <= total_quantity
		         RETURNING available_quantity, total_quantity`
		args = []any{delta, t.ItemID, delta, delta}
	case model.VariantTarget:
		query = `UPDATE item_variants SET available_quantity = available_quantity - ?
		         WHERE id = ? AND item_id = ? AND deleted_at IS NULL
		           AND available_quantity - ? >= 0
		           AND available_quantity - ? <= total_quantity
		         RETURNING available_quantity, total_quantity`
		args = []any{delta, t.VariantID, t.ItemID, delta, delta}
	default:
		return nil, fmt.Errorf("unknown target type %T", target)
	}

	var a model.Availability
	err := q.QueryRowContext(ctx, query, args...).Scan(&a.Available, &a.Total)
	if err == nil {
		return &a, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("adjusting availability: %w", err)
	}

	current, err := GetAvailability(ctx, q, target)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}
	return nil, &RangeError{Target: target, Delta: delta, Available: current.Available, Total: current.Total}
}

// GetAvailability returns the current counters of a live target.
func GetAvailability(ctx context.Context, q db.Querier, target model.Target) (*model.Availability, error) {
	var row *sql.Row
	switch t := target.(type) {
	case model.ItemTarget:
		row = q.QueryRowContext(ctx,
			`SELECT available_quantity, total_quantity FROM items
			 WHERE id = ? AND deleted_at IS NULL`, t.ItemID)
	case model.VariantTarget:
		row = q.QueryRowContext(ctx,
			`SELECT available_quantity, total_quantity FROM item_variants
			 WHERE id = ? AND item_id = ? AND deleted_at IS NULL`, t.VariantID, t.ItemID)
	default:
		return nil, fmt.Errorf("unknown target type %T", target)
	}

	var a model.Availability
	err := row.Scan(&a.Available, &a.Total)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting availability: %w", err)
	}
	return &a, nil
}

// LockItem takes a write lock on a live item row until the surrounding
// transaction ends. Transactions that decide on an item's variants lock the
// item first so they run one after another. Returns ErrNotFound for a missing
// or deleted item.
func LockItem(ctx context.Context, q db.Querier, id string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE items SET deleted_at = deleted_at WHERE id = ? AND deleted_at IS NULL`, id,
	)
	if err != nil {
		return fmt.Errorf("locking item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteItem soft-deletes an item and all of its variants. Run it inside a
// transaction so both statements apply together.
func DeleteItem(ctx context.Context, q db.Querier, id string) error {
	at := now()
	result, err := q.ExecContext(ctx,
		`UPDATE items SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, at, id,
	)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	_, err = q.ExecContext(ctx,
		`UPDATE item_variants SET deleted_at = ? WHERE item_id = ? AND deleted_at IS NULL`, at, id,
	)
	if err != nil {
		return fmt.Errorf("deleting item variants: %w", err)
	}
	return nil
}

// DeleteVariant soft-deletes a single variant.
func DeleteVariant(ctx context.Context, q db.Querier, id string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE item_variants SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, now(), id,
	)
	if err != nil {
		return fmt.Errorf("deleting variant: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanItem(s scanner) (*model.Item, error) {
	item := &model.Item{Variants: []model.Variant{}}
	err := s.Scan(&item.ID, &item.Name, &item.TotalQuantity, &item.AvailableQuantity,
		&item.Consumable, &item.CreatedAt, &item.DeletedAt)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func scanVariant(s scanner) (*model.Variant, error) {
	v := &model.Variant{}
	err := s.Scan(&v.ID, &v.ItemID, &v.Name, &v.TotalQuantity, &v.AvailableQuantity,
		&v.CreatedAt, &v.DeletedAt)
	if err != nil {
		return nil, err
	}
	return v, nil
}
