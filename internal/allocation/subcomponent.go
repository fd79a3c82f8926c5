package allocation

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// subcomponentCasts forces the jsonb column through a cast in the bulk
// UPDATE's VALUES list.
var subcomponentCasts = map[string]string{"subcomponent_analysis_allocations": "jsonb"}

// ValidateSubcomponentMap checks one CLI's subcomponent split. An empty map
// is fine (the item can be skipped instead); anything else must be numbers
// summing to exactly 100.
func ValidateSubcomponentMap(m map[string]string) error {
	if len(m) == 0 {
		return nil
	}
	sum := decimal.Zero
	for idx, raw := range m {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("subcomponent %s: %s", idx, ErrNotANumber)
		}
		sum = sum.Add(v)
	}
	if !sum.Equal(decimal.NewFromInt(100)) {
		return fmt.Errorf("subcomponent allocations must sum to 100, got %s", sum)
	}
	return nil
}

// SaveSubcomponentAllocations applies one split map to a batch of CLI
// configs. Saving a non-empty map clears the skipped flag.
func SaveSubcomponentAllocations(ctx context.Context, db bulkdb.DB, configIDs []int64, m map[string]string, skipped bool) error {
	if err := ValidateSubcomponentMap(m); err != nil {
		return err
	}
	rows := make([]map[string]any, 0, len(configIDs))
	for _, id := range configIDs {
		rows = append(rows, map[string]any{
			"id":                                id,
			"subcomponent_analysis_allocations": m,
			"subcomponent_analysis_allocations_skipped": skipped,
		})
	}
	return bulkdb.UpdateMaps(ctx, db, "cost_line_item_configs", rows,
		&bulkdb.UpdateOptions{Casts: subcomponentCasts})
}

// orderedSplit returns the map's percentages in subcomponent index order.
func orderedSplit(m map[string]string) []decimal.Decimal {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	out := make([]decimal.Decimal, 0, len(keys))
	for _, k := range keys {
		v, err := decimal.NewFromString(m[k])
		if err != nil {
			v = decimal.Zero
		}
		out = append(out, v)
	}
	return out
}

// SubcomponentAverage is the cost-weighted split across the CLIs that have
// one: for each subcomponent, the share of allocated cost it received,
// as a percentage. Indirect items never participate; Support items are
// excluded unless excludeSupportCosts is false. The result is pinned to sum
// to exactly 100, with any rounding remainder moved onto the last entry.
func SubcomponentAverage(items []*models.CostLineItem, typeByID map[int64]*models.CostType, excludeSupportCosts bool) []decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	var columns []decimal.Decimal
	totalWeight := decimal.Zero

	for _, cli := range items {
		cfg := cli.Config
		if cfg == nil || cfg.AnalysisCostType != models.AnalysisCostNone {
			continue
		}
		if len(cfg.SubcomponentAnalysisAllocations) == 0 || cfg.SubcomponentAnalysisAllocationsSkipped {
			continue
		}
		if cfg.CostTypeID != nil {
			if ct := typeByID[*cfg.CostTypeID]; ct != nil {
				if ct.Type == models.TypeIndirect {
					continue
				}
				if excludeSupportCosts && ct.Type == models.TypeSupport {
					continue
				}
			}
		}

		weight := cli.AllocatedCost()
		split := orderedSplit(cfg.SubcomponentAnalysisAllocations)
		for len(columns) < len(split) {
			columns = append(columns, decimal.Zero)
		}
		for i, pct := range split {
			columns[i] = columns[i].Add(pct.Div(hundred).Mul(weight))
		}
		totalWeight = totalWeight.Add(weight)
	}

	averages := make([]decimal.Decimal, len(columns))
	sum := decimal.Zero
	for i, col := range columns {
		if col.IsPositive() && !totalWeight.IsZero() {
			averages[i] = col.Div(totalWeight).Mul(hundred).Round(2)
		}
		sum = sum.Add(averages[i])
	}
	if len(averages) > 0 && !sum.Equal(hundred) {
		last := len(averages) - 1
		averages[last] = averages[last].Add(hundred.Sub(sum))
	}
	return averages
}

// ApplyAverageToSharedAndSkipped writes the computed average split onto
// every shared (non Program) CLI without a split and every skipped CLI, and
// unskips them.
func ApplyAverageToSharedAndSkipped(ctx context.Context, db bulkdb.DB, analysisID int64) error {
	costTypes, err := models.GetCostTypes(ctx, db)
	if err != nil {
		return err
	}
	typeByID := map[int64]*models.CostType{}
	for _, ct := range costTypes {
		typeByID[ct.ID] = ct
	}
	items, err := models.GetCostLineItems(ctx, db, analysisID)
	if err != nil {
		return err
	}

	average := SubcomponentAverage(items, typeByID, true)
	split := map[string]string{}
	for i, v := range average {
		split[strconv.Itoa(i)] = v.String()
	}

	var rows []map[string]any
	for _, cli := range items {
		cfg := cli.Config
		if cfg == nil {
			continue
		}
		shared := true
		if cfg.CostTypeID != nil {
			if ct := typeByID[*cfg.CostTypeID]; ct != nil && ct.Type == models.TypeProgramCost {
				shared = false
			}
		}
		emptyShared := shared && len(cfg.SubcomponentAnalysisAllocations) == 0
		if !emptyShared && !cfg.SubcomponentAnalysisAllocationsSkipped {
			continue
		}
		rows = append(rows, map[string]any{
			"id":                                cfg.ID,
			"subcomponent_analysis_allocations": split,
			"subcomponent_analysis_allocations_skipped": false,
		})
	}
	return bulkdb.UpdateMaps(ctx, db, "cost_line_item_configs", rows,
		&bulkdb.UpdateOptions{Casts: subcomponentCasts})
}

// ResetSubcomponentAllocations clears every CLI's split and skipped flag.
func ResetSubcomponentAllocations(ctx context.Context, db bulkdb.DB, analysisID int64) error {
	items, err := models.GetCostLineItems(ctx, db, analysisID)
	if err != nil {
		return err
	}
	var rows []map[string]any
	for _, cli := range items {
		if cli.Config == nil {
			continue
		}
		rows = append(rows, map[string]any{
			"id":                                cli.Config.ID,
			"subcomponent_analysis_allocations": map[string]string{},
			"subcomponent_analysis_allocations_skipped": false,
		})
	}
	return bulkdb.UpdateMaps(ctx, db, "cost_line_item_configs", rows,
		&bulkdb.UpdateOptions{Casts: subcomponentCasts})
}

// SubcomponentAllocationComplete reports whether every CLI that received a
// positive intervention allocation has either a split or the skipped flag.
func SubcomponentAllocationComplete(items []*models.CostLineItem) bool {
	for _, cli := range items {
		cfg := cli.Config
		if cfg == nil {
			continue
		}
		if !cfg.AllocationSum().IsPositive() {
			continue
		}
		if cfg.SubcomponentAnalysisAllocationsSkipped {
			continue
		}
		if len(cfg.SubcomponentAnalysisAllocations) == 0 {
			return false
		}
	}
	return true
}
