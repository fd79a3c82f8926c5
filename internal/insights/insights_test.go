package insights

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dioptratool/dioptra-web-sub000/internal/models"
	"github.com/dioptratool/dioptra-web-sub000/internal/outputmetric"
)

func i64(v int64) *int64 { return &v }

func cli(total string, costTypeID int64, analysisCostType models.AnalysisCostType, allocs map[int64]string) *models.CostLineItem {
	cfg := &models.CostLineItemConfig{AnalysisCostType: analysisCostType}
	if costTypeID != 0 {
		cfg.CostTypeID = i64(costTypeID)
	}
	for inst, pct := range allocs {
		v := decimal.RequireFromString(pct)
		cfg.Allocations = append(cfg.Allocations, &models.InterventionAllocation{
			InterventionInstanceID: inst,
			Allocation:             &v,
		})
	}
	return &models.CostLineItem{TotalCost: decimal.RequireFromString(total), Config: cfg}
}

var costTypesByID = map[int64]*models.CostType{
	1: {ID: 1, Name: "Program Costs", Type: models.TypeProgramCost},
	2: {ID: 2, Name: "Support Costs", Type: models.TypeSupport},
	3: {ID: 3, Name: "Indirect", Type: models.TypeIndirect},
}

func TestCostOutputSumBuckets(t *testing.T) {
	items := []*models.CostLineItem{
		cli("100", 1, models.AnalysisCostNone, map[int64]string{7: "50"}),
		cli("200", 2, models.AnalysisCostNone, map[int64]string{7: "100"}),
		cli("40", 1, models.AnalysisCostInKind, map[int64]string{7: "100"}),
		cli("60", 1, models.AnalysisCostClientTime, map[int64]string{7: "100"}),
	}

	assert.InDelta(t, 250.0, costOutputSum(items, costTypesByID, bucketAll, 7), 1e-9)
	assert.InDelta(t, 50.0, costOutputSum(items, costTypesByID, bucketDirectOnly, 7), 1e-9)
	assert.InDelta(t, 40.0, costOutputSum(items, costTypesByID, bucketInKind, 7), 1e-9)
	assert.InDelta(t, 60.0, costOutputSum(items, costTypesByID, bucketClient, 7), 1e-9)

	// unrelated instance sums to nothing
	assert.Zero(t, costOutputSum(items, costTypesByID, bucketAll, 99))
}

func TestCostPerOutputEndToEnd(t *testing.T) {
	// one 100-cost Program item allocated 50%, 10 people served
	items := []*models.CostLineItem{
		cli("100", 1, models.AnalysisCostNone, map[int64]string{7: "50"}),
	}
	m := outputmetric.ByID("NumberOfPeople")
	require.NotNil(t, m)

	sumAll := costOutputSum(items, costTypesByID, bucketAll, 7)
	sumDirect := costOutputSum(items, costTypesByID, bucketDirectOnly, 7)
	all, err := m.Calculate(sumAll, map[string]float64{"number_of_people": 10})
	require.NoError(t, err)
	direct, err := m.Calculate(sumDirect, map[string]float64{"number_of_people": 10})
	require.NoError(t, err)

	assert.Equal(t, 5.0, round2(all))
	assert.Equal(t, 5.0, round2(direct))
}

func TestBarChartDataPinsToHundred(t *testing.T) {
	b := BarChartData(10, 3.33, 0.01, true)
	assert.InDelta(t, 100.0, b.DirectPercent+b.InKindPercent+b.AllPercent, 1e-9)

	zero := BarChartData(0, 0, 0, false)
	assert.Equal(t, 0.0, zero.DirectPercent)
	assert.Equal(t, 100.0, zero.AllPercent)
}

func TestCostBreakdownDataGroupsAndSorts(t *testing.T) {
	catByID := map[int64]*models.Category{
		10: {ID: 10, Name: "Staff"},
		11: {ID: 11, Name: "Supplies"},
	}
	withCat := func(c *models.CostLineItem, catID int64) *models.CostLineItem {
		c.Config.CategoryID = i64(catID)
		return c
	}
	items := []*models.CostLineItem{
		withCat(cli("100", 1, models.AnalysisCostNone, map[int64]string{7: "100"}), 10),
		withCat(cli("300", 1, models.AnalysisCostNone, map[int64]string{7: "100"}), 11),
		cli("50", 2, models.AnalysisCostOtherHQ, map[int64]string{7: "100"}),
		// excluded from the breakdown table
		cli("999", 1, models.AnalysisCostInKind, map[int64]string{7: "100"}),
		cli("999", 1, models.AnalysisCostClientTime, map[int64]string{7: "100"}),
	}

	b := CostBreakdownData(items, costTypesByID, catByID, 7)
	assert.InDelta(t, 450.0, b.TotalCost, 1e-9)
	require.Len(t, b.Rows, 3)
	assert.Equal(t, "Supplies", b.Rows[0].CategoryName)
	assert.Equal(t, "Staff", b.Rows[1].CategoryName)
	assert.Equal(t, "Other HQ Costs", b.Rows[2].CategoryName)
	assert.Equal(t, "Support Costs", b.Rows[2].CostTypeName)
	assert.InDelta(t, 300.0/450.0*100, b.Rows[0].PercentOfTotal, 1e-9)
}

func TestBreakdownChartLumpsICRAndOverflow(t *testing.T) {
	rows := []*BreakdownRow{
		{CostTypeName: "P", CategoryName: "A", PercentOfTotal: 40},
		{CostTypeName: "P", CategoryName: "ICR", PercentOfTotal: 30},
		{CostTypeName: "P", CategoryName: "B", PercentOfTotal: 20},
		{CostTypeName: "S", CategoryName: "Other Supporting Costs", PercentOfTotal: 10},
	}
	chart := breakdownChart(rows)
	require.Len(t, chart, 3)
	assert.Equal(t, "A (P) 40%", chart[0].Label)
	assert.Equal(t, "B (P) 20%", chart[1].Label)
	assert.Equal(t, "All other costs 40%", chart[2].Label)
}

func TestComparisonChartSortsByWorstCost(t *testing.T) {
	m := outputmetric.ByID("NumberOfPeople")
	analysis := &models.Analysis{
		Title:        "My Program",
		Grants:       "G1",
		CurrencyCode: "USD",
		OutputCosts: map[string]map[string]models.OutputCost{
			"7": {m.ID: {All: 12, DirectOnly: 8}},
		},
	}
	instance := &models.InterventionInstance{
		ID:           7,
		Intervention: &models.Intervention{OutputMetrics: []string{m.ID}},
		Parameters:   map[string]float64{"number_of_people": 10},
	}
	five, three := 5.0, 3.0
	points := []*models.InsightComparisonData{
		{Name: "Cheap", CountryName: "Kenya", Grants: "G2",
			Parameters:  map[string]float64{"number_of_people": 1000},
			OutputCosts: map[string]map[string]*float64{m.ID: {"all": &five, "direct_only": &three}}},
	}

	data := ComparisonChartData(analysis, m, instance, points, "USD")
	require.Len(t, data, 2)
	assert.Equal(t, []string{"Kenya"}, data[0].Label)
	assert.True(t, data[1].Highlight)
	assert.Equal(t, "My Program", data[1].Tooltip)
}

func TestComparisonChartExcludesForeignCurrencyProgram(t *testing.T) {
	m := outputmetric.ByID("NumberOfPeople")
	analysis := &models.Analysis{CurrencyCode: "KES", OutputCosts: map[string]map[string]models.OutputCost{}}
	instance := &models.InterventionInstance{ID: 7, Intervention: &models.Intervention{}}
	points := []*models.InsightComparisonData{{Name: "X", CountryName: "Kenya"}}

	data := ComparisonChartData(analysis, m, instance, points, "USD")
	require.Len(t, data, 1)
	assert.False(t, data[0].Highlight)
}

func TestChartLabelLines(t *testing.T) {
	assert.Equal(t, []string{"Kenya"}, chartLabelLines("Kenya"))
	got := chartLabelLines("Democratic Republic of the Congo")
	require.Len(t, got, 2)
	assert.Equal(t, "Democratic Republic of", got[0])
	assert.Equal(t, " the Congo", got[1])
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1,234,567.89", formatAmount(1234567.89))
	assert.Equal(t, "12.00", formatAmount(12))
	assert.Equal(t, "-1,000.50", formatAmount(-1000.5))
}
