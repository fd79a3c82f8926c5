package bulkdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const updatePageSize = 500

// UpdateOptions tunes UpdateMaps. Expressions lets a caller replace the plain
// assignment for a column with an arbitrary SQL fragment built from the
// target reference (lhs) and the incoming value reference (rhs).
type UpdateOptions struct {
	PK          string
	Expressions map[string]func(lhs, rhs string) string
	// Casts adds an explicit ::type to the VALUES cells of a column, needed
	// for jsonb and other types Postgres cannot infer from the placeholder.
	Casts map[string]string
}

// UpdateMaps applies a multi-row UPDATE through a VALUES join:
//
//	UPDATE t AS t1 SET col = t2.col, ...
//	FROM (VALUES ...) AS t2(pk, col, ...)
//	WHERE t1.pk = t2.pk
//
// All rows must carry the same keys. Rows are paged.
func UpdateMaps(ctx context.Context, db DB, table string, rows []map[string]any, opts *UpdateOptions) error {
	if len(rows) == 0 {
		return nil
	}
	if opts == nil {
		opts = &UpdateOptions{}
	}
	pk := opts.PK
	if pk == "" {
		pk = "id"
	}

	columns := updateColumns(rows[0], pk)
	all := append([]string{pk}, columns...)

	var sets []string
	for _, col := range columns {
		lhs := "t1." + col
		rhs := "t2." + col
		if expr, ok := opts.Expressions[col]; ok {
			sets = append(sets, fmt.Sprintf("%s = %s", col, expr(lhs, rhs)))
		} else {
			sets = append(sets, fmt.Sprintf("%s = %s", col, rhs))
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
			cells := make([]string, len(all))
			for i, col := range all {
				cell := fmt.Sprintf("$%d", n)
				if cast, ok := opts.Casts[col]; ok {
					cell = fmt.Sprintf("CAST($%d AS %s)", n, cast)
				}
				cells[i] = cell
				args = append(args, updateArg(row[col]))
				n++
			}
			values = append(values, "("+strings.Join(cells, ", ")+")")
		}

		sql := fmt.Sprintf(
			"UPDATE %s AS t1 SET %s FROM (VALUES %s) AS t2(%s) WHERE t1.%s = t2.%s",
			table,
			strings.Join(sets, ", "),
			strings.Join(values, ", "),
			strings.Join(all, ", "),
			pk, pk,
		)
		if _, err := db.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("bulkdb: bulk update %s: %w", table, err)
		}
	}
	return nil
}

func updateColumns(row map[string]any, pk string) []string {
	var columns []string
	for col := range row {
		if col != pk {
			columns = append(columns, col)
		}
	}
	sort.Strings(columns)
	return columns
}

func updateArg(v any) any {
	switch v.(type) {
	case map[string]string, map[string]any, []string, []any:
		raw, _ := json.Marshal(v)
		return string(raw)
	default:
		return v
	}
}
