package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestGrantsListSplitsAndTrims(t *testing.T) {
	a := &Analysis{Grants: " DF119, G200 ,,G300"}
	assert.Equal(t, []string{"DF119", "G200", "G300"}, a.GrantsList())

	assert.Nil(t, (&Analysis{Grants: "  "}).GrantsList())
}

func TestAnalysisCountryCodes(t *testing.T) {
	countries := map[string]*Country{
		"JO": {Code: "JO"},
		"US": {Code: "US", AlwaysIncludeCosts: true},
		"DE": {Code: "DE"},
	}
	jordan := countries["JO"]

	on := &Settings{TransactionCountryFilter: true}
	assert.Equal(t, []string{"JO", "US"}, AnalysisCountryCodes(on, jordan, countries))

	// Filtering off, or no analysis country, means no filter at all.
	off := &Settings{TransactionCountryFilter: false}
	assert.Nil(t, AnalysisCountryCodes(off, jordan, countries))
	assert.Nil(t, AnalysisCountryCodes(on, nil, countries))
}

func TestAnalysisCostTypePrettyName(t *testing.T) {
	assert.Equal(t, "Client Time", AnalysisCostClientTime.PrettyName())
	assert.Equal(t, "In-Kind Contributions", AnalysisCostInKind.PrettyName())
	assert.Equal(t, "Other HQ Costs", AnalysisCostOtherHQ.PrettyName())
	assert.Equal(t, "", AnalysisCostNone.PrettyName())
	assert.Equal(t, "", AnalysisCostType(42).PrettyName())
}

func TestAllocationEditable(t *testing.T) {
	assert.True(t, (&CostType{Type: TypeProgramCost}).AllocationEditable())
	assert.True(t, (&CostType{Type: TypeSupport}).AllocationEditable())
	assert.False(t, (&CostType{Type: TypeIndirect}).AllocationEditable())
}

func TestAllocatedCost(t *testing.T) {
	half := decimal.RequireFromString("50")
	quarter := decimal.RequireFromString("25")
	cli := &CostLineItem{
		TotalCost: decimal.RequireFromString("200"),
		Config: &CostLineItemConfig{Allocations: []*InterventionAllocation{
			{Allocation: &half},
			{Allocation: &quarter},
			{Allocation: nil},
		}},
	}
	assert.True(t, cli.AllocatedCost().Equal(decimal.RequireFromString("150")))
}

func TestInstanceDisplayName(t *testing.T) {
	iv := &Intervention{Name: "Cash Transfers"}
	assert.Equal(t, "Cash Transfers", (&InterventionInstance{Intervention: iv}).DisplayName())
	assert.Equal(t, "North", (&InterventionInstance{Intervention: iv, Label: "North"}).DisplayName())
}
