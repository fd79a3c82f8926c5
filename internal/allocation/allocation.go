// Package allocation validates and persists how cost line item costs are
// split across intervention instances and subcomponents, and derives the
// suggested splits for shared cost types.
package allocation

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// Validation messages shown next to the offending cell. The "all" key of a
// CLI carries the row-level total error.
const (
	ErrNotANumber   = "Not a number"
	ErrOutOfRange   = "Invalid allocation (0-100)"
	ErrInvalidTotal = "Invalid allocation total. Cost line item Allocation must be between 0 and 100"
)

// Errors maps CLI id to cell key (intervention instance id, or "all") to
// message.
type Errors map[int64]map[string]string

func (e Errors) add(cliID int64, cell, msg string) {
	if e[cliID] == nil {
		e[cliID] = map[string]string{}
	}
	e[cliID][cell] = msg
}

// parsed is one validated batch: CLI id to instance id to allocation, nil
// meaning "cleared".
type parsed map[int64]map[int64]*decimal.Decimal

// Validate parses raw form values (CLI id -> instance id -> text). Empty
// strings clear the cell. A trailing percent sign is tolerated. Rows are
// validated independently so the caller can save the clean ones.
func Validate(input map[int64]map[int64]string) (parsed, Errors) {
	out := parsed{}
	errs := Errors{}
	for cliID, cells := range input {
		row := map[int64]*decimal.Decimal{}
		total := decimal.Zero
		for instanceID, raw := range cells {
			raw = strings.TrimSpace(strings.ReplaceAll(raw, "%", ""))
			if raw == "" {
				row[instanceID] = nil
				continue
			}
			v, err := decimal.NewFromString(raw)
			if err != nil {
				errs.add(cliID, strconv.FormatInt(instanceID, 10), ErrNotANumber)
				continue
			}
			if v.IsNegative() || v.GreaterThan(decimal.NewFromInt(100)) {
				errs.add(cliID, strconv.FormatInt(instanceID, 10), ErrOutOfRange)
			}
			row[instanceID] = &v
			total = total.Add(v)
		}
		if total.IsNegative() || total.GreaterThan(decimal.NewFromInt(100)) {
			errs.add(cliID, "all", ErrInvalidTotal)
		}
		out[cliID] = row
	}
	return out, errs
}

// Save upserts the allocation cells of the given CLIs. CLIs present in errs
// are skipped; the valid remainder is written.
func Save(ctx context.Context, db bulkdb.DB, analysisID int64, data parsed, errs Errors) error {
	items, err := models.GetCostLineItems(ctx, db, analysisID)
	if err != nil {
		return err
	}
	configByCLI := map[int64]int64{}
	for _, cli := range items {
		if cli.Config != nil {
			configByCLI[cli.ID] = cli.Config.ID
		}
	}

	var rows []map[string]any
	for cliID, cells := range data {
		if _, bad := errs[cliID]; bad {
			continue
		}
		configID, ok := configByCLI[cliID]
		if !ok {
			continue
		}
		for instanceID, v := range cells {
			rows = append(rows, map[string]any{
				"cli_config_id":            configID,
				"intervention_instance_id": instanceID,
				"allocation":               v,
			})
		}
	}
	return bulkdb.UpsertMaps(ctx, db, "cost_line_item_intervention_allocations", rows,
		bulkdb.Conflict{Columns: []string{"cli_config_id", "intervention_instance_id"}},
		[]string{"allocation"})
}

// Suggestion carries the raw figures behind one suggested percentage so the
// calculator can show its work.
type Suggestion struct {
	Numerator   decimal.Decimal
	Denominator decimal.Decimal
	Percent     decimal.Decimal
}

// Suggested computes the suggested allocation per (cost type, grant,
// intervention instance) for every shared (non Program) cost type in use.
// The percentages of one (cost type, grant) are trimmed so they never sum
// past 100; the excess comes off the last instance.
func Suggested(ctx context.Context, db bulkdb.DB, analysis *models.Analysis) (map[int64]map[string]map[int64]*Suggestion, error) {
	costTypes, err := models.GetCostTypes(ctx, db)
	if err != nil {
		return nil, err
	}
	typeByID := map[int64]*models.CostType{}
	for _, ct := range costTypes {
		typeByID[ct.ID] = ct
	}

	instances, err := models.GetInterventionInstances(ctx, db, analysis.ID)
	if err != nil {
		return nil, err
	}
	items, err := models.GetCostLineItems(ctx, db, analysis.ID)
	if err != nil {
		return nil, err
	}
	pairs, err := models.GetCostTypeCategories(ctx, db, analysis.ID)
	if err != nil {
		return nil, err
	}
	grants, err := models.GetCostTypeCategoryGrants(ctx, db, analysis.ID)
	if err != nil {
		return nil, err
	}
	pairByID := map[int64]*models.AnalysisCostTypeCategory{}
	for _, p := range pairs {
		pairByID[p.ID] = p
	}

	type cell struct {
		costTypeID int64
		grant      string
	}
	seen := map[cell]bool{}
	out := map[int64]map[string]map[int64]*Suggestion{}
	for _, g := range grants {
		pair, ok := pairByID[g.CostTypeCategoryID]
		if !ok || pair.CostTypeID == nil {
			continue
		}
		ct := typeByID[*pair.CostTypeID]
		if ct == nil || ct.Type == models.TypeProgramCost {
			continue
		}
		c := cell{costTypeID: ct.ID, grant: g.Grant}
		if seen[c] {
			continue
		}
		seen[c] = true
		if out[ct.ID] == nil {
			out[ct.ID] = map[string]map[int64]*Suggestion{}
		}
		out[ct.ID][g.Grant] = suggestForGrant(items, instances, typeByID, g.Grant)
	}
	return out, nil
}

// suggestForGrant derives per-instance suggestions from the Program cost
// items of one grant. The denominator weights each item by its own
// allocation sum so unallocated cost does not dilute the split.
func suggestForGrant(items []*models.CostLineItem, instances []*models.InterventionInstance, typeByID map[int64]*models.CostType, grant string) map[int64]*Suggestion {
	hundred := decimal.NewFromInt(100)
	numerators := map[int64]decimal.Decimal{}
	denominator := decimal.Zero
	for _, cli := range items {
		if cli.GrantCode != grant || cli.Config == nil || cli.Config.CostTypeID == nil {
			continue
		}
		ct := typeByID[*cli.Config.CostTypeID]
		if ct == nil || ct.Type != models.TypeProgramCost {
			continue
		}
		denominator = denominator.Add(cli.TotalCost.Mul(cli.Config.AllocationSum()).Div(hundred))
		for _, inst := range instances {
			if a := cli.Config.AllocationFor(inst.ID); a != nil {
				numerators[inst.ID] = numerators[inst.ID].Add(cli.TotalCost.Mul(*a).Div(hundred))
			}
		}
	}

	out := map[int64]*Suggestion{}
	sum := decimal.Zero
	for _, inst := range instances {
		s := &Suggestion{Numerator: numerators[inst.ID], Denominator: denominator}
		if !denominator.IsZero() {
			s.Percent = s.Numerator.Div(denominator).Mul(hundred).Round(2)
		}
		sum = sum.Add(s.Percent)
		out[inst.ID] = s
	}

	// rounding can push the total a hair past 100; trim the last instance
	if sum.GreaterThan(hundred) && len(instances) > 0 {
		last := out[instances[len(instances)-1].ID]
		last.Percent = last.Percent.Sub(sum.Sub(hundred))
	}
	return out
}

// ApplySuggested writes one percentage per intervention instance onto every
// CLI of the (cost type, grant) in a single batch.
func ApplySuggested(ctx context.Context, db bulkdb.DB, analysisID, costTypeID int64, grant string, percents map[int64]decimal.Decimal) error {
	items, err := models.GetCostLineItems(ctx, db, analysisID)
	if err != nil {
		return err
	}
	var rows []map[string]any
	for _, cli := range items {
		if cli.GrantCode != grant || cli.Config == nil {
			continue
		}
		if cli.Config.CostTypeID == nil || *cli.Config.CostTypeID != costTypeID {
			continue
		}
		if cli.Config.AnalysisCostType != models.AnalysisCostNone {
			continue
		}
		for instanceID, pct := range percents {
			rows = append(rows, map[string]any{
				"cli_config_id":            cli.Config.ID,
				"intervention_instance_id": instanceID,
				"allocation":               pct,
			})
		}
	}
	return bulkdb.UpsertMaps(ctx, db, "cost_line_item_intervention_allocations", rows,
		bulkdb.Conflict{Columns: []string{"cli_config_id", "intervention_instance_id"}},
		[]string{"allocation"})
}

// AssignedItemsTotal sums the cost of the items under a grant cell that
// have at least one decided allocation, zero included.
func AssignedItemsTotal(items []*models.CostLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, cli := range items {
		if cli.Config == nil {
			continue
		}
		for _, a := range cli.Config.Allocations {
			if a.Allocation != nil {
				total = total.Add(cli.TotalCost)
			}
		}
	}
	return total.Round(4)
}

// AssignedItemsCost sums cost x allocation% across the decided allocations
// of the items under a grant cell.
func AssignedItemsCost(items []*models.CostLineItem) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	cost := decimal.Zero
	for _, cli := range items {
		if cli.Config == nil {
			continue
		}
		for _, a := range cli.Config.Allocations {
			if a.Allocation != nil {
				cost = cost.Add(cli.TotalCost.Mul(*a.Allocation).Div(hundred))
			}
		}
	}
	return cost.Round(4)
}

// SuggestedFromAssigned is the calculator fallback shown when a grant cell
// has no usable suggestion: assigned cost over assigned total, as a
// fraction of 1. Returns false when nothing is assigned yet.
func SuggestedFromAssigned(items []*models.CostLineItem) (decimal.Decimal, bool) {
	total := AssignedItemsTotal(items)
	if total.IsZero() {
		return decimal.Zero, false
	}
	return AssignedItemsCost(items).Div(total), true
}

// AllocationComplete reports whether every CLI of the grant cell has a full
// set of decided allocations.
func AllocationComplete(items []*models.CostLineItem) bool {
	for _, cli := range items {
		if cli.Config == nil || len(cli.Config.Allocations) == 0 {
			return false
		}
		for _, a := range cli.Config.Allocations {
			if a.Allocation == nil {
				return false
			}
		}
	}
	return true
}

// GrantCellItems filters an analysis's CLIs down to one (pair, grant) cell.
func GrantCellItems(items []*models.CostLineItem, pair *models.AnalysisCostTypeCategory, grant string) []*models.CostLineItem {
	var out []*models.CostLineItem
	for _, cli := range items {
		if cli.GrantCode != grant || cli.Config == nil {
			continue
		}
		if cli.Config.AnalysisCostType != models.AnalysisCostNone {
			continue
		}
		if !int64PtrEqual(cli.Config.CostTypeID, pair.CostTypeID) {
			continue
		}
		if !int64PtrEqual(cli.Config.CategoryID, pair.CategoryID) {
			continue
		}
		out = append(out, cli)
	}
	return out
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
