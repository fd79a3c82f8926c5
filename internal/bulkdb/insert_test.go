package bulkdb

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCopyValue(t *testing.T) {
	v, err := renderCopyValue(nil)
	require.NoError(t, err)
	assert.Equal(t, NullSentinel, v)

	v, err = renderCopyValue("")
	require.NoError(t, err)
	assert.Equal(t, "", v, "empty string must not collapse into NULL")

	v, err = renderCopyValue("a\tb\nc\\d")
	require.NoError(t, err)
	assert.Equal(t, `a\tb\nc\\d`, v)

	v, err = renderCopyValue(decimal.RequireFromString("1234.5600"))
	require.NoError(t, err)
	assert.Equal(t, "1234.56", v)

	v, err = renderCopyValue(map[string]string{"0": "50"})
	require.NoError(t, err)
	assert.Equal(t, `{"0":"50"}`, v)

	v, err = renderCopyValue(true)
	require.NoError(t, err)
	assert.Equal(t, "t", v)
}

func TestConflictClause(t *testing.T) {
	assert.Equal(t, "ON CONFLICT (a, b)", Conflict{Columns: []string{"a", "b"}}.clause())
	assert.Equal(t, "ON CONFLICT ON CONSTRAINT uq_row", Conflict{Constraint: "uq_row"}.clause())
}

func TestUpdateColumnsExcludesPK(t *testing.T) {
	cols := updateColumns(map[string]any{"id": 1, "b": 2, "a": 3}, "id")
	assert.Equal(t, []string{"a", "b"}, cols)
}

func TestSequenceHandsOutMonotonicIDs(t *testing.T) {
	seq := &Sequence{next: 41}
	assert.Equal(t, int64(41), seq.NextVal())
	assert.Equal(t, int64(42), seq.NextVal())
	assert.Equal(t, int64(43), seq.next)
}
