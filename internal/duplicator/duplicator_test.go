package duplicator

import (
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneTitle(t *testing.T) {
	assert.Equal(t, "Cash Study (DUPLICATE)", cloneTitle("Cash Study", false))
	assert.Equal(t, "Cash Study (DUPLICATE, NEW DATES)", cloneTitle("Cash Study", true))
}

func TestRemapColumn(t *testing.T) {
	rows := []map[string]any{
		{"cost_line_item_id": int64(10)},
		{"cost_line_item_id": nil},
		{"other": int64(1)},
	}
	err := remapColumn(rows, "cost_line_item_id", map[int64]int64{10: 99})
	require.NoError(t, err)
	assert.Equal(t, int64(99), rows[0]["cost_line_item_id"])
	assert.Nil(t, rows[1]["cost_line_item_id"])
	_, ok := rows[2]["cost_line_item_id"]
	assert.False(t, ok)
}

func TestRemapColumnMissingMapping(t *testing.T) {
	rows := []map[string]any{{"cli_config_id": int64(7)}}
	err := remapColumn(rows, "cli_config_id", map[int64]int64{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no clone for cli_config_id 7")
}

func TestNormalizeValue(t *testing.T) {
	n := pgtype.Numeric{Valid: true, Exp: -2}
	n.Int = big.NewInt(12345)
	got := normalizeValue(n)
	d, ok := got.(decimal.Decimal)
	require.True(t, ok)
	assert.Equal(t, "123.45", d.String())

	assert.Nil(t, normalizeValue(pgtype.Numeric{}))
	assert.Equal(t, int64(5), normalizeValue(int32(5)))
	assert.Equal(t, "text", normalizeValue("text"))
}

func TestAsInt64(t *testing.T) {
	v, err := asInt64(int64(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = asInt64(int32(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	_, err = asInt64("nope")
	assert.Error(t, err)
}
