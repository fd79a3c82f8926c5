package allocation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

func splitCLI(total string, allocation string, split map[string]string, costTypeID int64) *models.CostLineItem {
	a := decimal.RequireFromString(allocation)
	return &models.CostLineItem{
		TotalCost: d(total),
		Config: &models.CostLineItemConfig{
			CostTypeID:                      &costTypeID,
			SubcomponentAnalysisAllocations: split,
			Allocations: []*models.InterventionAllocation{
				{InterventionInstanceID: 1, Allocation: &a},
			},
		},
	}
}

func TestValidateSubcomponentMap(t *testing.T) {
	assert.NoError(t, ValidateSubcomponentMap(nil))
	assert.NoError(t, ValidateSubcomponentMap(map[string]string{"0": "60", "1": "40"}))
	assert.Error(t, ValidateSubcomponentMap(map[string]string{"0": "60", "1": "39"}))
	assert.Error(t, ValidateSubcomponentMap(map[string]string{"0": "sixty", "1": "40"}))
}

func TestOrderedSplitUsesNumericKeyOrder(t *testing.T) {
	got := orderedSplit(map[string]string{"10": "1", "2": "2", "0": "3"})
	require.Len(t, got, 3)
	assert.True(t, got[0].Equal(d("3")))
	assert.True(t, got[1].Equal(d("2")))
	assert.True(t, got[2].Equal(d("1")))
}

func TestSubcomponentAverageSplitsByCost(t *testing.T) {
	typeByID := map[int64]*models.CostType{1: {ID: 1, Type: models.TypeProgramCost}}
	items := []*models.CostLineItem{
		splitCLI("100", "100", map[string]string{"0": "100", "1": "0"}, 1),
		splitCLI("100", "100", map[string]string{"0": "0", "1": "100"}, 1),
	}
	avg := SubcomponentAverage(items, typeByID, true)
	require.Len(t, avg, 2)
	assert.True(t, avg[0].Equal(d("50")), avg[0].String())
	assert.True(t, avg[1].Equal(d("50")), avg[1].String())
}

func TestSubcomponentAverageExcludesIndirectAndSkipped(t *testing.T) {
	typeByID := map[int64]*models.CostType{
		1: {ID: 1, Type: models.TypeProgramCost},
		3: {ID: 3, Type: models.TypeIndirect},
	}
	skipped := splitCLI("500", "100", map[string]string{"0": "100", "1": "0"}, 1)
	skipped.Config.SubcomponentAnalysisAllocationsSkipped = true

	items := []*models.CostLineItem{
		splitCLI("100", "100", map[string]string{"0": "25", "1": "75"}, 1),
		splitCLI("900", "100", map[string]string{"0": "100", "1": "0"}, 3),
		skipped,
	}
	avg := SubcomponentAverage(items, typeByID, true)
	require.Len(t, avg, 2)
	assert.True(t, avg[0].Equal(d("25")), avg[0].String())
	assert.True(t, avg[1].Equal(d("75")), avg[1].String())
}

func TestSubcomponentAverageWeightsByAllocatedCost(t *testing.T) {
	typeByID := map[int64]*models.CostType{1: {ID: 1, Type: models.TypeProgramCost}}
	items := []*models.CostLineItem{
		// allocated cost 100 vs 50: the first split dominates 2:1
		splitCLI("100", "100", map[string]string{"0": "100", "1": "0"}, 1),
		splitCLI("100", "50", map[string]string{"0": "0", "1": "100"}, 1),
	}
	avg := SubcomponentAverage(items, typeByID, true)
	require.Len(t, avg, 2)
	assert.True(t, avg[0].Equal(d("66.67")), avg[0].String())
	assert.True(t, avg[1].Equal(d("33.33")), avg[1].String())
}

func TestSubcomponentAveragePinsTotalToHundred(t *testing.T) {
	typeByID := map[int64]*models.CostType{1: {ID: 1, Type: models.TypeProgramCost}}
	items := []*models.CostLineItem{
		splitCLI("100", "100", map[string]string{"0": "33.335", "1": "33.335", "2": "33.33"}, 1),
	}
	avg := SubcomponentAverage(items, typeByID, true)
	require.Len(t, avg, 3)
	sum := decimal.Zero
	for _, v := range avg {
		sum = sum.Add(v)
	}
	assert.True(t, sum.Equal(d("100")), sum.String())
}

func TestSubcomponentAllocationComplete(t *testing.T) {
	done := splitCLI("100", "100", map[string]string{"0": "100"}, 1)
	pending := splitCLI("100", "100", nil, 1)
	unallocated := splitCLI("100", "0", nil, 1)
	skipped := splitCLI("100", "100", nil, 1)
	skipped.Config.SubcomponentAnalysisAllocationsSkipped = true

	assert.True(t, SubcomponentAllocationComplete([]*models.CostLineItem{done, unallocated, skipped}))
	assert.False(t, SubcomponentAllocationComplete([]*models.CostLineItem{done, pending}))
}
