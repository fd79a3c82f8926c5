package bulkdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// NullSentinel marks NULL values on the COPY wire so that empty strings
// survive the round trip.
const NullSentinel = "\x01"

// copyChunkRows is how many buffered rows trigger a flush to the server.
const copyChunkRows = 2000

// Inserter streams rows into a table through COPY FROM STDIN with a TAB
// delimiter. Rows are buffered in memory and flushed in chunks.
type Inserter struct {
	table   string
	columns []string
	rows    [][]string
	count   int
}

// NewInserter prepares a bulk COPY into table with an explicit column list.
func NewInserter(table string, columns ...string) *Inserter {
	return &Inserter{table: table, columns: columns}
}

// AddRow buffers one row. Missing columns become NULL.
func (in *Inserter) AddRow(ctx context.Context, tx pgx.Tx, row map[string]any) error {
	vals := make([]string, len(in.columns))
	for i, col := range in.columns {
		v, ok := row[col]
		if !ok {
			vals[i] = NullSentinel
			continue
		}
		rendered, err := renderCopyValue(v)
		if err != nil {
			return fmt.Errorf("bulkdb: column %s: %w", col, err)
		}
		vals[i] = rendered
	}
	in.rows = append(in.rows, vals)
	in.count++
	if len(in.rows) >= copyChunkRows {
		return in.flush(ctx, tx)
	}
	return nil
}

// Close flushes any buffered rows and returns the total row count.
func (in *Inserter) Close(ctx context.Context, tx pgx.Tx) (int, error) {
	if err := in.flush(ctx, tx); err != nil {
		return in.count, err
	}
	return in.count, nil
}

func (in *Inserter) flush(ctx context.Context, tx pgx.Tx) error {
	if len(in.rows) == 0 {
		return nil
	}
	var buf strings.Builder
	for _, row := range in.rows {
		buf.WriteString(strings.Join(row, "\t"))
		buf.WriteByte('\n')
	}
	sql := fmt.Sprintf(
		`COPY %s (%s) FROM STDIN WITH (FORMAT text, DELIMITER E'\t', NULL E'\001')`,
		in.table, strings.Join(in.columns, ", "),
	)
	_, err := tx.Conn().PgConn().CopyFrom(ctx, strings.NewReader(buf.String()), sql)
	if err != nil {
		return fmt.Errorf("bulkdb: copy into %s: %w", in.table, err)
	}
	in.rows = in.rows[:0]
	return nil
}

// renderCopyValue converts a Go value to the COPY text representation.
// nil maps to the NULL sentinel; maps and slices are stored as JSON.
func renderCopyValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return NullSentinel, nil
	case string:
		return escapeCopyText(t), nil
	case *string:
		if t == nil {
			return NullSentinel, nil
		}
		return escapeCopyText(*t), nil
	case bool:
		if t {
			return "t", nil
		}
		return "f", nil
	case int:
		return fmt.Sprintf("%d", t), nil
	case int64:
		return fmt.Sprintf("%d", t), nil
	case *int64:
		if t == nil {
			return NullSentinel, nil
		}
		return fmt.Sprintf("%d", *t), nil
	case float64:
		return fmt.Sprintf("%g", t), nil
	case decimal.Decimal:
		return t.String(), nil
	case *decimal.Decimal:
		if t == nil {
			return NullSentinel, nil
		}
		return t.String(), nil
	case time.Time:
		return t.Format("2006-01-02 15:04:05.999999-07"), nil
	default:
		// maps, slices and structured values go in as JSON
		raw, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return escapeCopyText(string(raw)), nil
	}
}

var copyEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"\t", "\\t",
	"\n", "\\n",
	"\r", "\\r",
)

func escapeCopyText(s string) string {
	return copyEscaper.Replace(s)
}
