package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedInstanceWritesRenumbersDensely(t *testing.T) {
	writes := orderedInstanceWrites([]instancePayload{
		{ID: 9, InterventionID: 1, Label: "North"},
		{InterventionID: 2, Label: "South"},
		{ID: 4, InterventionID: 1, Label: "East"},
	})

	require.Len(t, writes, 3)
	for i, w := range writes {
		assert.Equal(t, i, w.Order)
	}
	assert.Equal(t, int64(9), writes[0].ID)
	assert.Equal(t, "South", writes[1].Label)
}

func TestOrderedInstanceWritesDefaultsParameters(t *testing.T) {
	writes := orderedInstanceWrites([]instancePayload{
		{InterventionID: 1},
		{InterventionID: 2, Parameters: map[string]float64{"people_trained": 40}},
	})

	require.Len(t, writes, 2)
	assert.NotNil(t, writes[0].Parameters)
	assert.Empty(t, writes[0].Parameters)
	assert.Equal(t, float64(40), writes[1].Parameters["people_trained"])
}
