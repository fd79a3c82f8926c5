package categorize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

func i64(v int64) *int64 { return &v }

func TestCompileRulesSortsByCriteriaCount(t *testing.T) {
	rules := compileRules([]*models.CostTypeCategoryMapping{
		{CountryCode: "JO", GrantCode: "DF119", CostTypeID: i64(1)},
		{CountryCode: "JO", CostTypeID: i64(2)},
		{AccountCode: "71000", SiteCode: "S1", SectorCode: "H", CategoryID: i64(3)},
	})
	assert.Len(t, rules[0].criteria, 1)
	assert.Len(t, rules[1].criteria, 2)
	assert.Len(t, rules[2].criteria, 3)
}

func TestSpecificMappingOverridesGeneralOne(t *testing.T) {
	support := int64(10)
	program := int64(20)
	rules := compileRules([]*models.CostTypeCategoryMapping{
		// specific rule listed first on purpose, sorting must reorder it
		{CountryCode: "JO", GrantCode: "DF119", CostTypeID: &program},
		{CountryCode: "JO", CostTypeID: &support},
	})

	cli := &models.CostLineItem{CountryCode: "JO", GrantCode: "DF119"}
	costType, category, changed := classify(rules, cli, 99, 88)
	assert.True(t, changed)
	assert.Equal(t, program, costType)
	assert.Equal(t, int64(88), category) // no category rule matched, default wins

	other := &models.CostLineItem{CountryCode: "JO", GrantCode: "DF200"}
	costType, _, _ = classify(rules, other, 99, 88)
	assert.Equal(t, support, costType)
}

func TestClassifyFallsBackToDefaults(t *testing.T) {
	cli := &models.CostLineItem{CountryCode: "KE"}
	costType, category, changed := classify(nil, cli, 7, 8)
	assert.True(t, changed)
	assert.Equal(t, int64(7), costType)
	assert.Equal(t, int64(8), category)
}

func TestClassifyReportsUnchangedConfigs(t *testing.T) {
	support := int64(10)
	rules := compileRules([]*models.CostTypeCategoryMapping{
		{CountryCode: "JO", CostTypeID: &support},
	})
	cli := &models.CostLineItem{
		CountryCode: "JO",
		Config:      &models.CostLineItemConfig{CostTypeID: &support, CategoryID: i64(8)},
	}
	costType, category, changed := classify(rules, cli, 7, 8)
	assert.False(t, changed)
	assert.Equal(t, support, costType)
	assert.Equal(t, int64(8), category)
}

func TestRuleMatchesOnAllSetCriteria(t *testing.T) {
	rules := compileRules([]*models.CostTypeCategoryMapping{
		{CountryCode: "JO", BudgetLineDescription: "Vehicle fuel", CostTypeID: i64(1)},
	})
	r := rules[0]
	assert.True(t, r.matches(&models.CostLineItem{CountryCode: "JO", BudgetLineDescription: "Vehicle fuel"}))
	assert.False(t, r.matches(&models.CostLineItem{CountryCode: "JO", BudgetLineDescription: "Vehicle Fuel"}))
	assert.False(t, r.matches(&models.CostLineItem{CountryCode: "SY", BudgetLineDescription: "Vehicle fuel"}))
}
