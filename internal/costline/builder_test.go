package costline

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

func testBuilder(filterEnabled bool) *Builder {
	return &Builder{
		Analysis: &models.Analysis{ID: 7},
		Country:  &models.Country{Code: "JO", Name: "Jordan"},
		Countries: map[string]*models.Country{
			"JO": {Code: "JO", Name: "Jordan"},
			"SY": {Code: "SY", Name: "Syria"},
			"US": {Code: "US", Name: "United States", AlwaysIncludeCosts: true},
		},
		FilterEnabled: filterEnabled,
	}
}

func txn(country, grant, line, account string) *models.Transaction {
	return &models.Transaction{
		CountryCode:           country,
		GrantCode:             grant,
		BudgetLineCode:        line,
		AccountCode:           account,
		BudgetLineDescription: "desc of " + line,
	}
}

func TestKeyForGroupsOnSixFields(t *testing.T) {
	b := testBuilder(false)
	k1 := b.keyFor(txn("JO", "DF119", "L1", "A1"))
	k2 := b.keyFor(txn("JO", "DF119", "L1", "A1"))
	k3 := b.keyFor(txn("JO", "DF119", "L2", "A1"))
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.False(t, k1.special)
}

func TestForeignTransactionsCollapseWhenFilterEnabled(t *testing.T) {
	b := testBuilder(true)

	k := b.keyFor(txn("SY", "DF119", "L1", "A1"))
	assert.True(t, k.special)
	assert.Equal(t, [6]string{"SY", "DF119"}, k.fields)

	// same country+grant but different line: one lump sum
	k2 := b.keyFor(txn("SY", "DF119", "L2", "A9"))
	assert.Equal(t, k, k2)
}

func TestFilterDisabledNeverProducesSpecialRows(t *testing.T) {
	b := testBuilder(false)
	assert.False(t, b.keyFor(txn("SY", "DF119", "L1", "A1")).special)
}

func TestAlwaysIncludeCountryIsTreatedAsLocal(t *testing.T) {
	b := testBuilder(true)
	assert.False(t, b.keyFor(txn("US", "DF119", "L1", "A1")).special)
}

func TestNewRowForSpecialRowUsesCountryDisplayName(t *testing.T) {
	b := testBuilder(true)
	tr := txn("SY", "DF119", "L1", "A1")
	row := b.newRow(b.keyFor(tr), tr)
	assert.Equal(t, true, row["is_special_lump_sum"])
	assert.Equal(t, "Syria", row["budget_line_description"])
	assert.Equal(t, "", row["budget_line_code"])

	// unknown code falls back to the code itself
	tr2 := txn("ZZ", "DF119", "L1", "A1")
	row2 := b.newRow(b.keyFor(tr2), tr2)
	assert.Equal(t, "ZZ", row2["budget_line_description"])
}

func TestNewRowForNormalRowUsesTransactionDescription(t *testing.T) {
	b := testBuilder(false)
	tr := txn("JO", "DF119", "L1", "A1")
	row := b.newRow(b.keyFor(tr), tr)
	assert.Equal(t, false, row["is_special_lump_sum"])
	assert.Equal(t, "desc of L1", row["budget_line_description"])
	assert.Equal(t, "A1", row["account_code"])
}

func TestReusableCLIsIndexesImportedRowsByGroupKey(t *testing.T) {
	imported := &models.CostLineItem{
		ID: 1, CountryCode: "JO", GrantCode: "DF119",
		BudgetLineCode: "L1", AccountCode: "A1",
	}
	lumpSum := &models.CostLineItem{
		ID: 2, CountryCode: "SY", GrantCode: "DF119", IsSpecialLumpSum: true,
	}
	otherCost := &models.CostLineItem{
		ID:     3,
		Config: &models.CostLineItemConfig{AnalysisCostType: models.AnalysisCostClientTime},
	}

	order, byKey := reusableCLIs([]*models.CostLineItem{imported, lumpSum, otherCost})
	assert.Len(t, order, 2)
	assert.Len(t, byKey, 2)
	assert.Contains(t, byKey, groupKey{fields: [6]string{"JO", "DF119", "L1", "A1"}})
	assert.Contains(t, byKey, groupKey{special: true, fields: [6]string{"SY", "DF119"}})
}

func TestReusableCLIsTreatsOtherCostOnlyAnalysisAsFresh(t *testing.T) {
	// An analysis holding only user-entered cost rows has nothing to
	// reconcile, so the sync takes the from-scratch build path.
	order, _ := reusableCLIs([]*models.CostLineItem{
		{ID: 3, Config: &models.CostLineItemConfig{AnalysisCostType: models.AnalysisCostInKind}},
	})
	assert.Empty(t, order)
}

func TestMinimumTotalSuppressesNoiseGroups(t *testing.T) {
	assert.True(t, decimal.RequireFromString("0.009").Abs().LessThan(minimumTotal))
	assert.True(t, decimal.RequireFromString("-0.005").Abs().LessThan(minimumTotal))
	assert.False(t, decimal.RequireFromString("0.01").Abs().LessThan(minimumTotal))
	assert.False(t, decimal.RequireFromString("-25.40").Abs().LessThan(minimumTotal))
}
