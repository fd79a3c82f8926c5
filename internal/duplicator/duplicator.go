// Package duplicator deep-copies an analysis with every child row: the
// clones go in through the bulk COPY path, so duplicating an analysis with
// a hundred thousand transactions stays fast.
//
// Every cloned row records the id it was cloned from in cloned_from_id.
// When a child table references another cloned table, the old-to-new id map
// built while inserting the parent rewires the foreign key.
package duplicator

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
)

// CloneAnalysis clones an analysis and all of its intervention instances,
// cost line items, configs, allocations, transactions, categorization state
// and subcomponent analysis. Passing both dates re-dates the clone and marks
// the title accordingly. Returns the new analysis id.
func CloneAnalysis(ctx context.Context, db bulkdb.Beginner, analysisID int64, owner string, newStart, newEnd *time.Time) (int64, error) {
	var newID int64
	err := bulkdb.Atomic(ctx, db, func(tx pgx.Tx) error {
		rows, cols, err := fetchRowMaps(ctx, tx, "SELECT * FROM analyses WHERE id = $1", analysisID)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("duplicator: analysis %d not found", analysisID)
		}
		a := rows[0]
		title, _ := a["title"].(string)
		newDates := newStart != nil && newEnd != nil
		a["title"] = cloneTitle(title, newDates)
		if newDates {
			a["start_date"] = *newStart
			a["end_date"] = *newEnd
		}
		a["owner"] = owner
		a["output_costs"] = map[string]any{}
		analysisMap, err := cloneRows(ctx, tx, "analyses", cols, rows)
		if err != nil {
			return err
		}
		newID = analysisMap[analysisID]

		instRows, instCols, err := fetchRowMaps(ctx, tx,
			"SELECT * FROM intervention_instances WHERE analysis_id = $1", analysisID)
		if err != nil {
			return err
		}
		setAll(instRows, "analysis_id", newID)
		instMap, err := cloneRows(ctx, tx, "intervention_instances", instCols, instRows)
		if err != nil {
			return err
		}

		cliRows, cliCols, err := fetchRowMaps(ctx, tx,
			"SELECT * FROM cost_line_items WHERE analysis_id = $1", analysisID)
		if err != nil {
			return err
		}
		setAll(cliRows, "analysis_id", newID)
		cliMap, err := cloneRows(ctx, tx, "cost_line_items", cliCols, cliRows)
		if err != nil {
			return err
		}

		cfgRows, cfgCols, err := fetchRowMaps(ctx, tx, `
			SELECT c.* FROM cost_line_item_configs c
			JOIN cost_line_items i ON i.id = c.cost_line_item_id
			WHERE i.analysis_id = $1`, analysisID)
		if err != nil {
			return err
		}
		if err := remapColumn(cfgRows, "cost_line_item_id", cliMap); err != nil {
			return err
		}
		cfgMap, err := cloneRows(ctx, tx, "cost_line_item_configs", cfgCols, cfgRows)
		if err != nil {
			return err
		}

		allocRows, allocCols, err := fetchRowMaps(ctx, tx, `
			SELECT a.* FROM cost_line_item_intervention_allocations a
			JOIN cost_line_item_configs c ON c.id = a.cli_config_id
			JOIN cost_line_items i ON i.id = c.cost_line_item_id
			WHERE i.analysis_id = $1`, analysisID)
		if err != nil {
			return err
		}
		if err := remapColumn(allocRows, "cli_config_id", cfgMap); err != nil {
			return err
		}
		if err := remapColumn(allocRows, "intervention_instance_id", instMap); err != nil {
			return err
		}
		if _, err := cloneRows(ctx, tx, "cost_line_item_intervention_allocations", allocCols, allocRows); err != nil {
			return err
		}

		// Transactions go in after the cost line items so the new CLI ids
		// are known at insert time; rewriting them afterwards is far too
		// slow on a table this size.
		txnRows, txnCols, err := fetchRowMaps(ctx, tx,
			"SELECT * FROM transactions WHERE analysis_id = $1", analysisID)
		if err != nil {
			return err
		}
		setAll(txnRows, "analysis_id", newID)
		if err := remapColumn(txnRows, "cost_line_item_id", cliMap); err != nil {
			return err
		}
		if _, err := cloneRows(ctx, tx, "transactions", txnCols, txnRows); err != nil {
			return err
		}

		ctcRows, ctcCols, err := fetchRowMaps(ctx, tx,
			"SELECT * FROM analysis_cost_type_categories WHERE analysis_id = $1", analysisID)
		if err != nil {
			return err
		}
		setAll(ctcRows, "analysis_id", newID)
		ctcMap, err := cloneRows(ctx, tx, "analysis_cost_type_categories", ctcCols, ctcRows)
		if err != nil {
			return err
		}

		grantRows, grantCols, err := fetchRowMaps(ctx, tx, `
			SELECT g.* FROM analysis_cost_type_category_grants g
			JOIN analysis_cost_type_categories ctc ON ctc.id = g.cost_type_category_id
			WHERE ctc.analysis_id = $1`, analysisID)
		if err != nil {
			return err
		}
		if err := remapColumn(grantRows, "cost_type_category_id", ctcMap); err != nil {
			return err
		}
		grantMap, err := cloneRows(ctx, tx, "analysis_cost_type_category_grants", grantCols, grantRows)
		if err != nil {
			return err
		}

		giRows, giCols, err := fetchRowMaps(ctx, tx, `
			SELECT gi.* FROM analysis_cost_type_category_grant_interventions gi
			JOIN analysis_cost_type_category_grants g ON g.id = gi.cost_type_grant_id
			JOIN analysis_cost_type_categories ctc ON ctc.id = g.cost_type_category_id
			WHERE ctc.analysis_id = $1`, analysisID)
		if err != nil {
			return err
		}
		if err := remapColumn(giRows, "cost_type_grant_id", grantMap); err != nil {
			return err
		}
		if err := remapColumn(giRows, "intervention_instance_id", instMap); err != nil {
			return err
		}
		if _, err := cloneRows(ctx, tx, "analysis_cost_type_category_grant_interventions", giCols, giRows); err != nil {
			return err
		}

		subRows, subCols, err := fetchRowMaps(ctx, tx,
			"SELECT * FROM subcomponent_cost_analyses WHERE analysis_id = $1", analysisID)
		if err != nil {
			return err
		}
		if len(subRows) > 0 {
			setAll(subRows, "analysis_id", newID)
			if _, err := cloneRows(ctx, tx, "subcomponent_cost_analyses", subCols, subRows); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newID, nil
}

// cloneTitle marks the clone so two otherwise identical analyses stay
// distinguishable in listings.
func cloneTitle(title string, newDates bool) string {
	if newDates {
		return title + " (DUPLICATE, NEW DATES)"
	}
	return title + " (DUPLICATE)"
}

// cloneRows inserts the rows with fresh sequence ids, pointing each clone's
// cloned_from_id at its source. Returns the old-to-new id map.
func cloneRows(ctx context.Context, tx pgx.Tx, table string, columns []string, rows []map[string]any) (map[int64]int64, error) {
	oldToNew := make(map[int64]int64, len(rows))
	err := bulkdb.WithSequenceLock(ctx, tx, table, func(seq *bulkdb.Sequence) error {
		inserter := bulkdb.NewInserter(table, columns...)
		for _, row := range rows {
			oldID, err := asInt64(row["id"])
			if err != nil {
				return fmt.Errorf("duplicator: %s id: %w", table, err)
			}
			id := seq.NextVal()
			row["id"] = id
			row["cloned_from_id"] = oldID
			oldToNew[oldID] = id
			if err := inserter.AddRow(ctx, tx, row); err != nil {
				return err
			}
		}
		_, err := inserter.Close(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return oldToNew, nil
}

// fetchRowMaps reads a query into column-keyed maps, preserving the column
// order for the COPY column list.
func fetchRowMaps(ctx context.Context, db bulkdb.DB, query string, args ...any) ([]map[string]any, []string, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var out []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(vals[i])
		}
		out = append(out, row)
	}
	return out, columns, rows.Err()
}

// normalizeValue converts driver-specific scan types into values the bulk
// inserter renders natively.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		if !t.Valid || t.Int == nil {
			return nil
		}
		return decimal.NewFromBigInt(t.Int, t.Exp)
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	default:
		return v
	}
}

// remapColumn rewrites a foreign key column through an old-to-new id map.
// NULLs pass through untouched.
func remapColumn(rows []map[string]any, column string, oldToNew map[int64]int64) error {
	for _, row := range rows {
		v, ok := row[column]
		if !ok || v == nil {
			continue
		}
		old, err := asInt64(v)
		if err != nil {
			return fmt.Errorf("duplicator: %s: %w", column, err)
		}
		mapped, ok := oldToNew[old]
		if !ok {
			return fmt.Errorf("duplicator: no clone for %s %d", column, old)
		}
		row[column] = mapped
	}
	return nil
}

func setAll(rows []map[string]any, column string, value any) {
	for _, row := range rows {
		row[column] = value
	}
}

func asInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int32:
		return int64(t), nil
	case int:
		return int64(t), nil
	case *big.Int:
		return t.Int64(), nil
	default:
		return 0, fmt.Errorf("not an integer id: %T", v)
	}
}
