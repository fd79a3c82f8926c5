package allocation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}
func i64p(v int64) *int64 { return &v }

func TestValidateParsesAndClears(t *testing.T) {
	data, errs := Validate(map[int64]map[int64]string{
		1: {10: "25", 20: " 75% ", 30: ""},
	})
	require.Empty(t, errs)
	assert.True(t, data[1][10].Equal(d("25")))
	assert.True(t, data[1][20].Equal(d("75")))
	assert.Nil(t, data[1][30])
}

func TestValidateReportsPerCellErrors(t *testing.T) {
	data, errs := Validate(map[int64]map[int64]string{
		1: {10: "abc", 20: "150"},
		2: {10: "60", 20: "60"},
		3: {10: "40"},
	})
	assert.Equal(t, ErrNotANumber, errs[1]["10"])
	assert.Equal(t, ErrOutOfRange, errs[1]["20"])
	assert.Equal(t, ErrInvalidTotal, errs[1]["all"])
	assert.Equal(t, ErrInvalidTotal, errs[2]["all"])

	// the clean row survives validation for saving
	_, bad := errs[3]
	assert.False(t, bad)
	assert.True(t, data[3][10].Equal(d("40")))
}

func programCLI(total string, allocs map[int64]*decimal.Decimal) *models.CostLineItem {
	cfg := &models.CostLineItemConfig{CostTypeID: i64p(1)}
	for inst, a := range allocs {
		cfg.Allocations = append(cfg.Allocations, &models.InterventionAllocation{
			InterventionInstanceID: inst,
			Allocation:             a,
		})
	}
	return &models.CostLineItem{GrantCode: "G", TotalCost: d(total), Config: cfg}
}

func TestSuggestForGrantTrimsRoundingExcess(t *testing.T) {
	typeByID := map[int64]*models.CostType{
		1: {ID: 1, Type: models.TypeProgramCost},
	}
	instances := []*models.InterventionInstance{{ID: 10}, {ID: 20}}

	// 50.00 vs 50.01 before trimming
	items := []*models.CostLineItem{
		programCLI("10000", map[int64]*decimal.Decimal{10: dp("49.995"), 20: dp("50.005")}),
	}
	out := suggestForGrant(items, instances, typeByID, "G")
	assert.True(t, out[10].Percent.Equal(d("50.00")), out[10].Percent.String())
	assert.True(t, out[20].Percent.Equal(d("50.00")), out[20].Percent.String())
}

func TestSuggestForGrantWeighsDenominatorByAllocationSum(t *testing.T) {
	typeByID := map[int64]*models.CostType{
		1: {ID: 1, Type: models.TypeProgramCost},
		2: {ID: 2, Type: models.TypeSupport},
	}
	instances := []*models.InterventionInstance{{ID: 10}}

	items := []*models.CostLineItem{
		programCLI("100", map[int64]*decimal.Decimal{10: dp("50")}),
		// half-allocated item: contributes 100 to the denominator, 100 to
		// the instance numerator
		programCLI("200", map[int64]*decimal.Decimal{10: dp("50")}),
		// support item is not part of the base
		{GrantCode: "G", TotalCost: d("9999"), Config: &models.CostLineItemConfig{CostTypeID: i64p(2)}},
	}
	out := suggestForGrant(items, instances, typeByID, "G")
	assert.True(t, out[10].Numerator.Equal(d("150")))
	assert.True(t, out[10].Denominator.Equal(d("150")))
	assert.True(t, out[10].Percent.Equal(d("100.00")), out[10].Percent.String())
}

func TestSuggestForGrantZeroDenominator(t *testing.T) {
	typeByID := map[int64]*models.CostType{1: {ID: 1, Type: models.TypeProgramCost}}
	instances := []*models.InterventionInstance{{ID: 10}}
	out := suggestForGrant(nil, instances, typeByID, "G")
	assert.True(t, out[10].Percent.IsZero())
}

func TestAssignedItemsFigures(t *testing.T) {
	items := []*models.CostLineItem{
		programCLI("100", map[int64]*decimal.Decimal{10: dp("0")}),
		programCLI("200", map[int64]*decimal.Decimal{10: dp("25")}),
		programCLI("300", map[int64]*decimal.Decimal{10: nil}),
	}
	assert.True(t, AssignedItemsTotal(items).Equal(d("300")))
	assert.True(t, AssignedItemsCost(items).Equal(d("50")))

	frac, ok := SuggestedFromAssigned(items)
	require.True(t, ok)
	assert.True(t, frac.Equal(d("50").Div(d("300"))))
}

func TestAllocationComplete(t *testing.T) {
	complete := []*models.CostLineItem{
		programCLI("100", map[int64]*decimal.Decimal{10: dp("0"), 20: dp("100")}),
	}
	assert.True(t, AllocationComplete(complete))

	undecided := []*models.CostLineItem{
		programCLI("100", map[int64]*decimal.Decimal{10: dp("50"), 20: nil}),
	}
	assert.False(t, AllocationComplete(undecided))

	missing := []*models.CostLineItem{
		{TotalCost: d("100"), Config: &models.CostLineItemConfig{}},
	}
	assert.False(t, AllocationComplete(missing))
}

func TestGrantCellItemsMatchesPairAndGrant(t *testing.T) {
	pair := &models.AnalysisCostTypeCategory{CostTypeID: i64p(1), CategoryID: i64p(5)}
	match := &models.CostLineItem{GrantCode: "G", Config: &models.CostLineItemConfig{CostTypeID: i64p(1), CategoryID: i64p(5)}}
	wrongGrant := &models.CostLineItem{GrantCode: "H", Config: &models.CostLineItemConfig{CostTypeID: i64p(1), CategoryID: i64p(5)}}
	wrongCat := &models.CostLineItem{GrantCode: "G", Config: &models.CostLineItemConfig{CostTypeID: i64p(1), CategoryID: i64p(6)}}
	otherCost := &models.CostLineItem{GrantCode: "G", Config: &models.CostLineItemConfig{
		CostTypeID: i64p(1), CategoryID: i64p(5), AnalysisCostType: models.AnalysisCostInKind,
	}}

	got := GrantCellItems([]*models.CostLineItem{match, wrongGrant, wrongCat, otherCost}, pair, "G")
	require.Len(t, got, 1)
	assert.Same(t, match, got[0])
}
