package bulkdb

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Conflict names the uniqueness target of an upsert: either a column list or
// a named constraint.
type Conflict struct {
	Columns    []string
	Constraint string
}

func (c Conflict) clause() string {
	if c.Constraint != "" {
		return "ON CONFLICT ON CONSTRAINT " + c.Constraint
	}
	return "ON CONFLICT (" + strings.Join(c.Columns, ", ") + ")"
}

// UpsertMaps inserts rows with INSERT ... ON CONFLICT. With no updateColumns
// conflicting rows are skipped (DO NOTHING); otherwise the named columns are
// overwritten from EXCLUDED. All rows must carry the same keys.
func UpsertMaps(ctx context.Context, db DB, table string, rows []map[string]any, conflict Conflict, updateColumns []string) error {
	if len(rows) == 0 {
		return nil
	}
	columns := rowColumns(rows[0])

	action := "DO NOTHING"
	if len(updateColumns) > 0 {
		if len(updateColumns) == 1 {
			action = fmt.Sprintf("DO UPDATE SET %s = EXCLUDED.%s", updateColumns[0], updateColumns[0])
		} else {
			var excluded []string
			for _, col := range updateColumns {
				excluded = append(excluded, "EXCLUDED."+col)
			}
			action = fmt.Sprintf("DO UPDATE SET (%s) = (%s)",
				strings.Join(updateColumns, ", "), strings.Join(excluded, ", "))
		}
	}

	for offset := 0; offset < len(rows); offset += updatePageSize {
		end := offset + updatePageSize
		if end > len(rows) {
			end = len(rows)
		}
		page := rows[offset:end]

		var values []string
		var args []any
		n := 1
		for _, row := range page {
			cells := make([]string, len(columns))
			for i, col := range columns {
				cells[i] = fmt.Sprintf("$%d", n)
				args = append(args, updateArg(row[col]))
				n++
			}
			values = append(values, "("+strings.Join(cells, ", ")+")")
		}

		sql := fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES %s %s %s",
			table,
			strings.Join(columns, ", "),
			strings.Join(values, ", "),
			conflict.clause(),
			action,
		)
		if _, err := db.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("bulkdb: bulk upsert %s: %w", table, err)
		}
	}
	return nil
}

func rowColumns(row map[string]any) []string {
	columns := make([]string, 0, len(row))
	for col := range row {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}
