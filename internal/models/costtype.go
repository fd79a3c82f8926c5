package models

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
)

// Cost type discriminators. The type drives allocation behavior: Program
// costs are allocated directly, Support and Indirect get suggested
// allocations derived from the Program splits.
const (
	TypeProgramCost = 10
	TypeSupport     = 20
	TypeIndirect    = 30
)

// CostType is a named classification bucket (lookup table row).
type CostType struct {
	ID        int64
	Name      string
	Type      int
	Order     int
	IsDefault bool
}

// AllocationEditable reports whether users may edit allocations of this cost
// type by hand. Indirect cost allocations are always derived.
func (ct *CostType) AllocationEditable() bool {
	return ct.Type != TypeIndirect
}

// Category is the second classification axis.
type Category struct {
	ID        int64
	Name      string
	Order     int
	IsDefault bool
}

// GetCostTypes returns all cost types ordered for display.
func GetCostTypes(ctx context.Context, db bulkdb.DB) ([]*CostType, error) {
	rows, err := db.Query(ctx,
		"SELECT id, name, type, display_order, is_default FROM cost_types ORDER BY type, display_order, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*CostType
	for rows.Next() {
		ct := &CostType{}
		if err := rows.Scan(&ct.ID, &ct.Name, &ct.Type, &ct.Order, &ct.IsDefault); err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

// GetCategories returns all categories ordered for display.
func GetCategories(ctx context.Context, db bulkdb.DB) ([]*Category, error) {
	rows, err := db.Query(ctx,
		"SELECT id, name, display_order, is_default FROM categories ORDER BY display_order, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Category
	for rows.Next() {
		c := &Category{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Order, &c.IsDefault); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DefaultCostType returns the singleton default cost type.
func DefaultCostType(ctx context.Context, db bulkdb.DB) (*CostType, error) {
	ct := &CostType{}
	err := db.QueryRow(ctx,
		"SELECT id, name, type, display_order, is_default FROM cost_types WHERE is_default LIMIT 1").
		Scan(&ct.ID, &ct.Name, &ct.Type, &ct.Order, &ct.IsDefault)
	if err != nil {
		return nil, fmt.Errorf("models: no default cost type: %w", err)
	}
	return ct, nil
}

// DefaultCategory returns the singleton default category.
func DefaultCategory(ctx context.Context, db bulkdb.DB) (*Category, error) {
	c := &Category{}
	err := db.QueryRow(ctx,
		"SELECT id, name, display_order, is_default FROM categories WHERE is_default LIMIT 1").
		Scan(&c.ID, &c.Name, &c.Order, &c.IsDefault)
	if err != nil {
		return nil, fmt.Errorf("models: no default category: %w", err)
	}
	return c, nil
}

// SetDefaultCostType flags one cost type as default, demoting any other.
// Both statements run in one transaction so the singleton invariant holds
// even under concurrent saves.
func SetDefaultCostType(ctx context.Context, db bulkdb.Beginner, id int64) error {
	return bulkdb.Atomic(ctx, db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "UPDATE cost_types SET is_default = false WHERE id <> $1", id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "UPDATE cost_types SET is_default = true WHERE id = $1", id)
		return err
	})
}

// SetDefaultCategory flags one category as default, demoting any other.
func SetDefaultCategory(ctx context.Context, db bulkdb.Beginner, id int64) error {
	return bulkdb.Atomic(ctx, db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "UPDATE categories SET is_default = false WHERE id <> $1", id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "UPDATE categories SET is_default = true WHERE id = $1", id)
		return err
	})
}
