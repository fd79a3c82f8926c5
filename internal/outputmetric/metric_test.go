package outputmetric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryIsComplete(t *testing.T) {
	assert.Len(t, All(), 25)
	assert.NotNil(t, ByID("NumberOfPeople"))
	assert.Nil(t, ByID("NumberOfUnicorns"))
}

func TestCalculatePerUnit(t *testing.T) {
	m := ByID("NumberOfPeople")
	got, err := m.Calculate(100, map[string]float64{"number_of_people": 10})
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)

	_, err = m.Calculate(100, map[string]float64{})
	assert.ErrorIs(t, err, ErrMissingParameter)

	_, err = m.Calculate(100, map[string]float64{"number_of_people": 0})
	assert.Error(t, err)
}

func TestCalculatePerProduct(t *testing.T) {
	m := ByID("NumberOfDaysOfTraining")
	got, err := m.Calculate(600, map[string]float64{
		"number_of_people":           10,
		"number_of_days_of_training": 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 20.0, got)

	total, err := m.TotalOutput(map[string]float64{
		"number_of_people":           10,
		"number_of_days_of_training": 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 30.0, total)
}

func TestCalculateValueMetric(t *testing.T) {
	m := ByID("ValueOfCashDistributed")
	assert.True(t, m.OutputAsCurrency)

	got, err := m.Calculate(120, map[string]float64{"value_of_cash_distributed": 100})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, got, 1e-9)

	_, err = m.Calculate(120, map[string]float64{"value_of_cash_distributed": 0})
	assert.Error(t, err)
}

func TestTotalOutputDefaultsToSoleParameter(t *testing.T) {
	m := ByID("NumberOfDoses")
	total, err := m.TotalOutput(map[string]float64{"number_of_doses": 500})
	require.NoError(t, err)
	assert.Equal(t, 500.0, total)
}

func TestExcelFormulaSubstitution(t *testing.T) {
	m := ByID("NumberOfPeople")
	formula := m.ExcelFormula(map[string]string{
		"cost_output_sum":  "SUM(C10, C11)",
		"number_of_people": "B5",
	})
	assert.Equal(t, "IFERROR(SUM(C10, C11) / B5, 0)", formula)
}

func TestExcelFormulaProductAndValueShapes(t *testing.T) {
	m := ByID("NumberOfDaysOfTraining")
	formula := m.ExcelFormula(map[string]string{
		"cost_output_sum":            "C42",
		"number_of_people":           "B9",
		"number_of_days_of_training": "B10",
	})
	assert.Equal(t, "IFERROR(C42 / (B9 * B10), 0)", formula)

	v := ByID("ValueOfItemsDistributed")
	formula = v.ExcelFormula(map[string]string{
		"cost_output_sum":         "C42",
		"value_items_distributed": "B9",
	})
	assert.Equal(t, "IFERROR((C42 - B9) / B9, 0)", formula)
}

func TestExcelFormulaMissingCellYieldsEmpty(t *testing.T) {
	m := ByID("NumberOfPeople")
	assert.Equal(t, "", m.ExcelFormula(map[string]string{"cost_output_sum": "C42"}))
}

func TestParameterLabels(t *testing.T) {
	m := ByID("NumberOfPersonYearsOfSanitationAccess")
	assert.Equal(t, "Number of People Served", m.ParameterLabel("number_of_people"))
	assert.True(t, m.HasParameter("number_of_years_a_latrine_can_last"))
	assert.False(t, m.HasParameter("number_of_years"))
}
