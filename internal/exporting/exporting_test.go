package exporting

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

func TestSheetTitle(t *testing.T) {
	assert.Equal(t, "Cash  Transfers  Q1 ", SheetTitle("Cash: Transfers [Q1]"))
	assert.Len(t, []rune(SheetTitle("a very long intervention instance label indeed")), 30)
	assert.Equal(t, "Plain Name", SheetTitle("Plain Name"))
}

func TestFilename(t *testing.T) {
	now := time.Date(2026, 8, 31, 14, 5, 0, 0, time.UTC)
	assert.Equal(t, "cashstudy-insights-20260831-1405.xlsx", Filename("Cash Study", now))
}

func TestCurrencyHelpers(t *testing.T) {
	assert.Equal(t, "US Dollar", CurrencyName("USD"))
	assert.Equal(t, "ZZZ", CurrencyName("ZZZ"))
	assert.Empty(t, CurrencySymbol("not-a-code"))
	assert.NotEmpty(t, CurrencySymbol("USD"))
}

func TestFormatCurrencyValue(t *testing.T) {
	assert.Equal(t, "1,234,567.50", formatCurrencyValue(1234567.5))
	assert.Equal(t, "-1,000.00", formatCurrencyValue(-1000))
	assert.Equal(t, "12.34", formatCurrencyValue(12.345))
}

func dec(s string) *decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return &d
}

func workbookInput() *Input {
	programID, supportID, staffID := int64(1), int64(2), int64(1)

	analysis := &models.Analysis{
		ID:                  1,
		Title:               "Cash Study",
		Description:         "Pilot program",
		StartDate:           time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:             time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		Grants:              "G1, G2",
		CurrencyCode:        "USD",
		Owner:               "Jordan Smith",
		InKindContributions: true,
		ClientTime:          true,
		OutputCosts: map[string]map[string]models.OutputCost{
			"7": {"NumberOfPeople": {All: 12.5, DirectOnly: 10, InKind: 13, Client: 500}},
		},
	}
	instance := &models.InterventionInstance{
		ID:         7,
		AnalysisID: 1,
		Intervention: &models.Intervention{
			ID:            3,
			Name:          "Cash Transfers",
			OutputMetrics: []string{"NumberOfPeople"},
		},
		Parameters: map[string]float64{"number_of_people": 100},
	}

	program := &models.CostLineItem{
		ID:                    10,
		AnalysisID:            1,
		GrantCode:             "G1",
		SectorCode:            "S1",
		SiteCode:              "HQ",
		BudgetLineDescription: "Field officers",
		TotalCost:             decimal.NewFromInt(1000),
		Config: &models.CostLineItemConfig{
			ID:                              100,
			CostTypeID:                      &programID,
			CategoryID:                      &staffID,
			SubcomponentAnalysisAllocations: map[string]string{"0": "60", "1": "40"},
			Allocations: []*models.InterventionAllocation{
				{InterventionInstanceID: 7, Allocation: dec("50")},
			},
		},
	}
	inKind := &models.CostLineItem{
		ID:                    11,
		AnalysisID:            1,
		BudgetLineDescription: "Donated goods",
		TotalCost:             decimal.NewFromInt(200),
		Config: &models.CostLineItemConfig{
			ID:               101,
			AnalysisCostType: models.AnalysisCostInKind,
			Allocations: []*models.InterventionAllocation{
				{InterventionInstanceID: 7},
			},
		},
	}
	clientTime := &models.CostLineItem{
		ID:                    12,
		AnalysisID:            1,
		BudgetLineDescription: "Participant time",
		TotalCost:             decimal.NewFromInt(400),
		Config: &models.CostLineItemConfig{
			ID:               102,
			AnalysisCostType: models.AnalysisCostClientTime,
			Allocations: []*models.InterventionAllocation{
				{InterventionInstanceID: 7, Allocation: dec("25")},
			},
		},
	}

	return &Input{
		Analysis:  analysis,
		Instances: []*models.InterventionInstance{instance},
		Items:     []*models.CostLineItem{program, inKind, clientTime},
		TypeByID: map[int64]*models.CostType{
			programID: {ID: programID, Name: "Program", Type: models.TypeProgramCost},
			supportID: {ID: supportID, Name: "Operations", Type: models.TypeSupport},
		},
		CatByID: map[int64]*models.Category{
			staffID: {ID: staffID, Name: "Staff"},
		},
		Subcomponent: &models.SubcomponentCostAnalysis{
			ID:                          5,
			AnalysisID:                  1,
			SubcomponentLabels:          []string{"Cash delivery", "Outreach"},
			SubcomponentLabelsConfirmed: true,
		},
		CountryName: "Kenya",
		AnalysisURL: "https://dioptra.example.org/analyses/1",
		Now:         time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuildWorkbookLayout(t *testing.T) {
	f, err := BuildWorkbook(workbookInput())
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{"Cash Transfers"}, f.GetSheetList())
	sheet := "Cash Transfers"

	val := func(cell string) string {
		v, err := f.GetCellValue(sheet, cell)
		require.NoError(t, err)
		return v
	}
	formula := func(cell string) string {
		v, err := f.GetCellFormula(sheet, cell)
		require.NoError(t, err)
		return v
	}

	// Metadata block.
	assert.Equal(t, "Analysis Title", val("A1"))
	assert.Equal(t, "Cash Study", val("B1"))
	assert.Equal(t, "Grants", val("A6"))
	assert.Equal(t, "G1, G2", val("B6"))
	assert.Equal(t, "Intervention Being Analyzed", val("A7"))
	assert.Equal(t, "Number of People", val("A8"))
	assert.Equal(t, "Currency", val("A9"))
	assert.Equal(t, "US Dollar", val("B9"))
	assert.Equal(t, "Analysis URL", val("A11"))

	// Cost efficiency rows with their live formulas.
	assert.Equal(t, "Cost Efficiency", val("A14"))
	assert.Equal(t, "Cost per Person Program Costs only", val("A15"))
	assert.Equal(t, "FIXED(IFERROR(SUM(C28) / B8, 0), 2)", formula("B15"))
	assert.Equal(t, "Cost per Person including Program Costs, Support Costs, Indirect Costs", val("A16"))
	assert.Equal(t, "FIXED(IFERROR(C29 / B8, 0), 2)", formula("B16"))
	assert.Equal(t, "FIXED((IFERROR(C29 / B8, 0)) + (IFERROR(SUM(E39) / B8, 0)), 2)", formula("B17"))
	assert.Equal(t, "Total Cost of Client Time", val("A18"))
	assert.Equal(t, "FIXED(SUM(E38), 2)", formula("B18"))

	// Subcomponent summary scales the all-costs value by each
	// subcomponent's share of the allocated cost model total.
	assert.Equal(t, "Cost of Each Sub-component, per Number of People", val("A21"))
	assert.Equal(t, "Cash delivery", val("A22"))
	assert.Equal(t, `B16 * SUM(L33:L34) / SUMIFS(J33:J34,L33:L34, "<>")`, formula("B22"))
	assert.Equal(t, "Outreach", val("A23"))
	assert.Equal(t, `B16 * SUM(N33:N34) / SUMIFS(J33:J34,N33:N34, "<>")`, formula("B23"))

	// Cost breakdown: in-kind and client time groups are left out, the
	// amounts resolve against the cost model below.
	assert.Equal(t, "Cost Breakdown", val("A26"))
	assert.Equal(t, "Cost Type", val("A27"))
	assert.Equal(t, "Program", val("A28"))
	assert.Equal(t, "Staff", val("B28"))
	assert.Equal(t, "SUMIFS(J33:J34, A33:A34, A28, B33:B34, B28)", formula("C28"))
	assert.Equal(t, "C28/SUM(J33:J34) * 100", formula("D28"))
	assert.Equal(t, "SUM(C28:C28)", formula("C29"))
	assert.Empty(t, val("A29"))

	// Cost model with subcomponent column pairs.
	assert.Equal(t, "Cost Model", val("A31"))
	assert.Equal(t, "Item Total", val("J32"))
	assert.Equal(t, "Cash delivery", val("K32"))
	assert.Equal(t, "Cash delivery Total", val("L32"))
	assert.Equal(t, "Outreach Total", val("N32"))
	assert.Equal(t, "Program", val("A33"))
	assert.Equal(t, "Field officers", val("C33"))
	assert.Equal(t, "(G33 * H33)/100", formula("J33"))
	assert.Equal(t, "J33 * K33", formula("L33"))
	assert.Equal(t, "J33 * M33", formula("N33"))

	// Other costs: client time sorts before in-kind, undecided in-kind
	// allocation coalesces to 100.
	assert.Equal(t, "Other HQ Costs", val("A36"))
	assert.Equal(t, "Category", val("A37"))
	assert.Equal(t, "Client Time", val("A38"))
	assert.Equal(t, "Participant time", val("B38"))
	assert.Equal(t, "(C38 * D38)/100", formula("E38"))
	assert.Equal(t, "In-Kind Contributions", val("A39"))
}

func TestBuildWorkbookWithoutOtherCosts(t *testing.T) {
	in := workbookInput()
	in.Analysis.InKindContributions = false
	in.Analysis.ClientTime = false
	in.Subcomponent = nil
	in.Items = in.Items[:1]

	f, err := BuildWorkbook(in)
	require.NoError(t, err)
	defer f.Close()

	sheet := "Cash Transfers"
	val := func(cell string) string {
		v, err := f.GetCellValue(sheet, cell)
		require.NoError(t, err)
		return v
	}

	// No in-kind or client time efficiency rows, no subcomponent block,
	// no other cost table.
	assert.Equal(t, "Cost Efficiency", val("A14"))
	assert.Equal(t, "Cost per Person Program Costs only", val("A15"))
	assert.Equal(t, "Cost per Person including Program Costs, Support Costs, Indirect Costs", val("A16"))
	assert.Equal(t, "Cost Breakdown", val("A19"))
	assert.Equal(t, "Cost Model", val("A24"))
	header, err := f.GetCellValue(sheet, "K25")
	require.NoError(t, err)
	assert.Empty(t, header)
	other, err := f.GetCellValue(sheet, "A29")
	require.NoError(t, err)
	assert.Empty(t, other)
}
