package models

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
)

// AnalysisCostType marks user-added "other cost" line items.
type AnalysisCostType int

const (
	AnalysisCostNone       AnalysisCostType = 0
	AnalysisCostClientTime AnalysisCostType = 1
	AnalysisCostInKind     AnalysisCostType = 2
	AnalysisCostOtherHQ    AnalysisCostType = 3
)

// PrettyName returns the display label for an analysis cost type.
func (t AnalysisCostType) PrettyName() string {
	switch t {
	case AnalysisCostClientTime:
		return "Client Time"
	case AnalysisCostInKind:
		return "In-Kind Contributions"
	case AnalysisCostOtherHQ:
		return "Other HQ Costs"
	}
	return ""
}

// CostLineItem is a grouped cost row of an analysis.
type CostLineItem struct {
	ID                    int64
	AnalysisID            int64
	CountryCode           string
	GrantCode             string
	BudgetLineCode        string
	AccountCode           string
	SiteCode              string
	SectorCode            string
	BudgetLineDescription string
	TotalCost             decimal.Decimal
	LoeOrUnit             *decimal.Decimal
	MonthsOrUnit          *decimal.Decimal
	UnitCost              *decimal.Decimal
	Quantity              *decimal.Decimal
	DummyField1           string
	DummyField2           string
	Note                  string
	IsSpecialLumpSum      bool
	ClonedFromID          *int64

	Config *CostLineItemConfig
}

// GroupKey is the 6-field grouping key, or the (country, grant) pair for
// special lump sum rows.
func (c *CostLineItem) GroupKey() [6]string {
	if c.IsSpecialLumpSum {
		return [6]string{c.CountryCode, c.GrantCode}
	}
	return [6]string{
		c.CountryCode, c.GrantCode, c.BudgetLineCode,
		c.AccountCode, c.SiteCode, c.SectorCode,
	}
}

// CostLineItemConfig holds classification and allocation metadata, one per CLI.
type CostLineItemConfig struct {
	ID                                     int64
	CostLineItemID                         int64
	CostTypeID                             *int64
	CategoryID                             *int64
	AnalysisCostType                       AnalysisCostType
	SubcomponentAnalysisAllocations        map[string]string
	SubcomponentAnalysisAllocationsSkipped bool
	ClonedFromID                           *int64

	Allocations []*InterventionAllocation
}

// InterventionAllocation is the percentage of a CLI's cost assigned to one
// intervention instance. A nil Allocation means "not decided yet".
type InterventionAllocation struct {
	ID                     int64
	CLIConfigID            int64
	InterventionInstanceID int64
	Allocation             *decimal.Decimal
	ClonedFromID           *int64
}

// AllocationSum adds the non-nil allocations across intervention instances.
func (c *CostLineItemConfig) AllocationSum() decimal.Decimal {
	sum := decimal.Zero
	for _, a := range c.Allocations {
		if a.Allocation != nil {
			sum = sum.Add(*a.Allocation)
		}
	}
	return sum
}

// AllocationFor returns the allocation percentage for one instance, or nil.
func (c *CostLineItemConfig) AllocationFor(instanceID int64) *decimal.Decimal {
	for _, a := range c.Allocations {
		if a.InterventionInstanceID == instanceID {
			return a.Allocation
		}
	}
	return nil
}

// AllocatedCost is total_cost x (sum of allocations)/100.
func (c *CostLineItem) AllocatedCost() decimal.Decimal {
	if c.Config == nil {
		return decimal.Zero
	}
	return c.TotalCost.Mul(c.Config.AllocationSum()).Div(decimal.NewFromInt(100))
}

const cliColumns = `id, analysis_id, country_code, grant_code, budget_line_code, account_code,
	site_code, sector_code, budget_line_description, total_cost, loe_or_unit, months_or_unit,
	unit_cost, quantity, dummy_field_1, dummy_field_2, note, is_special_lump_sum, cloned_from_id`

// GetCostLineItems loads every CLI of an analysis with its config and
// allocations attached, ordered by budget line description.
func GetCostLineItems(ctx context.Context, db bulkdb.DB, analysisID int64) ([]*CostLineItem, error) {
	rows, err := db.Query(ctx,
		"SELECT "+cliColumns+" FROM cost_line_items WHERE analysis_id = $1 ORDER BY budget_line_description, id",
		analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*CostLineItem
	byID := map[int64]*CostLineItem{}
	for rows.Next() {
		c := &CostLineItem{}
		err := rows.Scan(
			&c.ID, &c.AnalysisID, &c.CountryCode, &c.GrantCode, &c.BudgetLineCode, &c.AccountCode,
			&c.SiteCode, &c.SectorCode, &c.BudgetLineDescription, &c.TotalCost, &c.LoeOrUnit,
			&c.MonthsOrUnit, &c.UnitCost, &c.Quantity, &c.DummyField1, &c.DummyField2, &c.Note,
			&c.IsSpecialLumpSum, &c.ClonedFromID,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := attachConfigs(ctx, db, analysisID, byID); err != nil {
		return nil, err
	}
	return items, nil
}

func attachConfigs(ctx context.Context, db bulkdb.DB, analysisID int64, clis map[int64]*CostLineItem) error {
	rows, err := db.Query(ctx, `
		SELECT c.id, c.cost_line_item_id, c.cost_type_id, c.category_id, c.analysis_cost_type,
		       c.subcomponent_analysis_allocations, c.subcomponent_analysis_allocations_skipped,
		       c.cloned_from_id
		FROM cost_line_item_configs c
		JOIN cost_line_items i ON i.id = c.cost_line_item_id
		WHERE i.analysis_id = $1`, analysisID)
	if err != nil {
		return err
	}
	defer rows.Close()

	configsByID := map[int64]*CostLineItemConfig{}
	for rows.Next() {
		cfg := &CostLineItemConfig{}
		err := rows.Scan(
			&cfg.ID, &cfg.CostLineItemID, &cfg.CostTypeID, &cfg.CategoryID, &cfg.AnalysisCostType,
			&cfg.SubcomponentAnalysisAllocations, &cfg.SubcomponentAnalysisAllocationsSkipped,
			&cfg.ClonedFromID,
		)
		if err != nil {
			return err
		}
		if cli, ok := clis[cfg.CostLineItemID]; ok {
			cli.Config = cfg
			configsByID[cfg.ID] = cfg
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(configsByID) == 0 {
		return nil
	}

	allocRows, err := db.Query(ctx, `
		SELECT a.id, a.cli_config_id, a.intervention_instance_id, a.allocation, a.cloned_from_id
		FROM cost_line_item_intervention_allocations a
		JOIN cost_line_item_configs c ON c.id = a.cli_config_id
		JOIN cost_line_items i ON i.id = c.cost_line_item_id
		WHERE i.analysis_id = $1
		ORDER BY a.intervention_instance_id`, analysisID)
	if err != nil {
		return err
	}
	defer allocRows.Close()
	for allocRows.Next() {
		a := &InterventionAllocation{}
		if err := allocRows.Scan(&a.ID, &a.CLIConfigID, &a.InterventionInstanceID, &a.Allocation, &a.ClonedFromID); err != nil {
			return err
		}
		if cfg, ok := configsByID[a.CLIConfigID]; ok {
			cfg.Allocations = append(cfg.Allocations, a)
		}
	}
	return allocRows.Err()
}

// CountCostLineItems returns how many CLIs the analysis has.
func CountCostLineItems(ctx context.Context, db bulkdb.DB, analysisID int64) (int, error) {
	var n int
	err := db.QueryRow(ctx,
		"SELECT COUNT(*) FROM cost_line_items WHERE analysis_id = $1", analysisID).Scan(&n)
	return n, err
}
