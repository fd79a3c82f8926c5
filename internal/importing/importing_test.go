package importing

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "grant_code", NormalizeHeader("Grant Code"))
	assert.Equal(t, "cost_per_output_(program_costs_only)_1", NormalizeHeader("Cost per output (program costs only) 1"))
	assert.Equal(t,
		"cost_per_output_(including_program_costs_support_costs_and_indirect_costs)_1",
		NormalizeHeader("Cost per output (including program costs, support costs, and indirect costs) 1"))
}

func TestNumericString(t *testing.T) {
	assert.Equal(t, "9116", NumericString("9116.0"))
	assert.Equal(t, "9116", NumericString("9116"))
	assert.Equal(t, "DF119", NumericString("DF119"))
	assert.Equal(t, "", NumericString(""))
}

func TestDollar4(t *testing.T) {
	d, err := Dollar4("$1,234.56789")
	require.NoError(t, err)
	assert.Equal(t, "1234.5679", d.String())
}

func TestBoolean(t *testing.T) {
	for _, v := range []string{"", "no", "No", "false", "0"} {
		got, err := Boolean(v)
		require.NoError(t, err)
		assert.False(t, got)
	}
	for _, v := range []string{"yes", "TRUE", "1"} {
		got, err := Boolean(v)
		require.NoError(t, err)
		assert.True(t, got)
	}
	_, err := Boolean("maybe")
	assert.Error(t, err)
}

func TestReadTableCSV(t *testing.T) {
	rows, err := ReadTable(strings.NewReader("a,b,c\n1,2,3\n,,\n4,5,6\n"))
	require.NoError(t, err)
	require.Len(t, rows, 3, "empty rows are dropped")
	assert.Equal(t, []string{"1", "2", "3"}, rows[1])
}

func testAnalysis() *models.Analysis {
	return &models.Analysis{
		ID:        1,
		Grants:    "G1,G2",
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func validTransactionRow() []string {
	return []string{
		"2025-06-15", "KE", "G1", "BL1", "AC1", "S1", "SEC1", "T1",
		"Office rent", "USD", "Rent", "120.50",
	}
}

func TestValidateTransactionRow(t *testing.T) {
	a := testAnalysis()

	assert.Empty(t, validateTransactionRow(0, validTransactionRow(), a).fullMessage())

	short := validateTransactionRow(2, []string{"a", "b"}, a)
	assert.Equal(t, "Row 2: 12 to 17 columns required (got 2)", short.fullMessage())

	bad := validTransactionRow()
	bad[0] = "15/06/2025"
	assert.Contains(t, validateTransactionRow(0, bad, a).fullMessage(), "must be in the format YYYY-MM-DD")

	outOfRange := validTransactionRow()
	outOfRange[0] = "2024-06-15"
	assert.Contains(t, validateTransactionRow(0, outOfRange, a).fullMessage(),
		"transaction date must be within the analysis range")

	wrongGrant := validTransactionRow()
	wrongGrant[2] = "G9"
	assert.Contains(t, validateTransactionRow(0, wrongGrant, a).fullMessage(), "Unexpected grant code")

	badCurrency := validTransactionRow()
	badCurrency[9] = "US"
	assert.Contains(t, validateTransactionRow(0, badCurrency, a).fullMessage(), "invalid currency code")

	badAmount := validTransactionRow()
	badAmount[11] = "12x"
	assert.Contains(t, validateTransactionRow(0, badAmount, a).fullMessage(), "is not a number")

	mojibake := validTransactionRow()
	mojibake[8] = "caf�"
	assert.Contains(t, validateTransactionRow(0, mojibake, a).fullMessage(), "invalid characters")
}

func TestStageTransactionRowsFilters(t *testing.T) {
	a := testAnalysis()
	rows := [][]string{
		validTransactionRow(),
		// lower-case grant still matches after upcasing
		{"2025-03-01", "KE", "g2", "", "AC1", "", "", "", "", "USD", "Rent", "10"},
		// unknown grant is skipped
		{"2025-03-01", "KE", "G9", "", "AC1", "", "", "", "", "USD", "Rent", "10"},
		// outside the date range is skipped
		{"2026-03-01", "KE", "G1", "", "AC1", "", "", "", "", "USD", "Rent", "10"},
	}

	staged, err := stageTransactionRows(rows, a)
	require.NoError(t, err)
	require.Len(t, staged, 2)
	assert.Equal(t, "G1", staged[0].GrantCode)
	assert.Equal(t, "G2", staged[1].GrantCode)
	assert.Equal(t, "120.5", staged[0].Amount.String())
}

func TestStageTransactionRowsTakesAbsoluteAmount(t *testing.T) {
	a := testAnalysis()
	credit := validTransactionRow()
	credit[11] = "-120.50"

	staged, err := stageTransactionRows([][]string{credit}, a)
	require.NoError(t, err)
	require.Len(t, staged, 1)
	assert.Equal(t, "120.5", staged[0].Amount.String())
}

func TestStageTransactionRowsFixesNumericCodes(t *testing.T) {
	a := testAnalysis()
	a.Grants = "9116"
	rows := [][]string{
		{"2025-03-01", "KE", "9116.0", "12.0", "77.0", "", "", "", "", "USD", "Rent", "10"},
	}
	staged, err := stageTransactionRows(rows, a)
	require.NoError(t, err)
	require.Len(t, staged, 1)
	assert.Equal(t, "9116", staged[0].GrantCode)
	assert.Equal(t, "12", staged[0].BudgetLineCode)
	assert.Equal(t, "77", staged[0].AccountCode)
}

func TestParseBudgetRow(t *testing.T) {
	row := []string{"G1", "BL1.0", "9000.0", "", "", "Staff salary", "1200.123456", "", "", "", "x", "y"}
	parsed, errs := parseBudgetRow(0, row)
	require.Empty(t, errs)
	assert.Equal(t, "BL1.0", parsed.strings["budget_line_code"])
	assert.Equal(t, "9000", parsed.strings["account_code"])
	assert.Equal(t, "1200.1235", parsed.amounts["total_cost"].String())
	assert.Nil(t, parsed.amounts["unit_cost"])

	_, errs = parseBudgetRow(3, []string{"", "", "", "", "", "", "10", "", "", "", "", ""})
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "Row 4, column Grant code")
	assert.Contains(t, errs[1], "Account code")
	assert.Contains(t, errs[2], "Budget line description")
}

func mappingLookups() (map[string]*models.CostType, map[string]*models.Category) {
	return map[string]*models.CostType{
			"Program Costs": {ID: 1, Name: "Program Costs"},
			"Support Costs": {ID: 2, Name: "Support Costs"},
		}, map[string]*models.Category{
			"Staff": {ID: 10, Name: "Staff"},
		}
}

func mappingRecord(overrides map[string]string) map[string]string {
	rec := map[string]string{
		"country_code":             "KE",
		"grant_code":               "G1",
		"budget_line_code":         "",
		"account_code":             "9000",
		"account_code_description": "Salaries",
		"site_code":                "",
		"sector_code":              "",
		"budget_line_description":  "",
		"category":                 "Staff",
		"cost_type":                "Program Costs",
		"sensitive_data?":          "no",
	}
	for k, v := range overrides {
		rec[k] = v
	}
	return rec
}

func TestMappingParserAcceptsCleanRows(t *testing.T) {
	costTypes, categories := mappingLookups()
	p := newMappingParser(costTypes, categories)
	p.parseRow(0, mappingRecord(nil))
	p.parseRow(1, mappingRecord(map[string]string{"account_code": "9100", "account_code_description": "Travel"}))

	require.Empty(t, p.errors)
	require.Len(t, p.rows, 2)
	assert.Equal(t, int64(1), *p.rows[0].costTypeID)
	assert.Equal(t, int64(10), *p.rows[0].categoryID)
	assert.Len(t, p.accounts, 2)
}

func TestMappingParserFlagsInconsistentAccountDescriptions(t *testing.T) {
	costTypes, categories := mappingLookups()
	p := newMappingParser(costTypes, categories)
	p.parseRow(0, mappingRecord(nil))
	p.parseRow(1, mappingRecord(map[string]string{"account_code_description": "Wages"}))
	p.parseRow(2, mappingRecord(map[string]string{"sensitive_data?": "yes"}))

	require.Len(t, p.errors, 2)
	assert.Contains(t, p.errors[0], `"9000" is inconsistent across the imported file`)
}

func TestMappingParserRequiresSomeClassification(t *testing.T) {
	costTypes, categories := mappingLookups()
	p := newMappingParser(costTypes, categories)
	p.parseRow(0, mappingRecord(map[string]string{
		"category": "", "cost_type": "", "account_code_description": "",
	}))

	require.NotEmpty(t, p.errors)
	assert.Contains(t, p.errors[0], "A value must be present in one of these columns")
}

func TestMappingParserRejectsUnknownLookups(t *testing.T) {
	costTypes, categories := mappingLookups()
	p := newMappingParser(costTypes, categories)
	p.parseRow(0, mappingRecord(map[string]string{"cost_type": "Nonsense"}))
	p.parseRow(1, mappingRecord(map[string]string{"category": "Nonsense"}))

	require.Len(t, p.errors, 2)
	assert.Contains(t, p.errors[0], "Invalid Cost Type")
	assert.Contains(t, p.errors[1], "Invalid Category")
}

func comparisonLookups() (map[string]*models.Intervention, map[string]*models.Country) {
	return map[string]*models.Intervention{
			"Cash Transfers": {ID: 5, Name: "Cash Transfers", OutputMetrics: []string{"NumberOfPeople"}},
		}, map[string]*models.Country{
			"KE": {ID: 3, Code: "KE", Name: "Kenya"},
		}
}

func comparisonRecord(overrides map[string]string) map[string]string {
	rec := map[string]string{
		"name":                            "Kenya Cash 2024",
		"country_code":                    "KE",
		"grants":                          "G1, G2",
		"intervention_being_analyzed":     "Cash Transfers",
		"output_metric_parameter_label_1": "Number of People Served",
		"output_metric_parameter_value_1": "1000",
		directOnlyHeader(1):               "$3.50",
		allCostsHeader(1):                 "$5.25",
	}
	for k, v := range overrides {
		rec[k] = v
	}
	return rec
}

func TestComparisonParserBuildsRow(t *testing.T) {
	interventions, countries := comparisonLookups()
	p := &comparisonParser{interventions: interventions, countries: countries}
	p.parseRow(1, comparisonRecord(nil))

	require.Empty(t, p.errors)
	require.Len(t, p.rows, 1)
	row := p.rows[0]
	assert.Equal(t, "G1, G2", row["grants"])
	assert.Equal(t, int64(3), row["country_id"])

	params := row["parameters"].(map[string]float64)
	assert.Equal(t, 1000.0, params["number_of_people"])

	costs := row["output_costs"].(map[string]map[string]*float64)
	require.NotNil(t, costs["NumberOfPeople"]["all"])
	assert.Equal(t, 5.25, *costs["NumberOfPeople"]["all"])
	assert.Equal(t, 3.5, *costs["NumberOfPeople"]["direct_only"])
}

func TestComparisonParserRejectsWrongLabel(t *testing.T) {
	interventions, countries := comparisonLookups()
	p := &comparisonParser{interventions: interventions, countries: countries}
	p.parseRow(1, comparisonRecord(map[string]string{
		"output_metric_parameter_label_1": "Number of Goats",
	}))

	require.NotEmpty(t, p.errors)
	assert.Contains(t, p.errors[0], "Incorrect Output Metric Parameter Label")
	// the required parameter is then missing too
	assert.Contains(t, p.errors[1], `The Parameter "Number of People Served" is required`)
}

func TestComparisonParserRejectsUnknownCountryAndIntervention(t *testing.T) {
	interventions, countries := comparisonLookups()
	p := &comparisonParser{interventions: interventions, countries: countries}
	p.parseRow(1, comparisonRecord(map[string]string{"country_code": "XX"}))
	require.NotEmpty(t, p.errors)
	assert.Contains(t, p.errors[0], "Invalid Country")

	p = &comparisonParser{interventions: interventions, countries: countries}
	p.parseRow(1, comparisonRecord(map[string]string{"intervention_being_analyzed": "Nope"}))
	require.NotEmpty(t, p.errors)
	assert.Contains(t, p.errors[0], "Invalid Intervention")
}

func TestMissingComparisonHeaders(t *testing.T) {
	missing := missingComparisonHeaders([]string{"name", "grants"})
	assert.Equal(t, []string{"Country Code", "Intervention Being Analyzed"}, missing)
}
