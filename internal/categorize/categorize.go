// Package categorize assigns a cost type and category to every cost line
// item by applying the globally maintained mapping rules.
package categorize

import (
	"context"
	"sort"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// criteriaFields mirrors the matchable columns of a mapping rule, in the
// order they are reported.
var criteriaFields = []string{
	"country_code",
	"grant_code",
	"budget_line_code",
	"account_code",
	"site_code",
	"sector_code",
	"budget_line_description",
}

// rule is a compiled mapping: only its non-empty criteria participate in
// matching.
type rule struct {
	criteria   map[string]string
	costTypeID *int64
	categoryID *int64
}

func (r *rule) matches(cli *models.CostLineItem) bool {
	for field, want := range r.criteria {
		if cliField(cli, field) != want {
			return false
		}
	}
	return true
}

func cliField(cli *models.CostLineItem, field string) string {
	switch field {
	case "country_code":
		return cli.CountryCode
	case "grant_code":
		return cli.GrantCode
	case "budget_line_code":
		return cli.BudgetLineCode
	case "account_code":
		return cli.AccountCode
	case "site_code":
		return cli.SiteCode
	case "sector_code":
		return cli.SectorCode
	case "budget_line_description":
		return cli.BudgetLineDescription
	}
	return ""
}

// compileRules turns mapping rows into matchers sorted ascending by number
// of criteria, so more specific rules apply last and win.
func compileRules(mappings []*models.CostTypeCategoryMapping) []*rule {
	rules := make([]*rule, 0, len(mappings))
	for _, m := range mappings {
		r := &rule{criteria: map[string]string{}, costTypeID: m.CostTypeID, categoryID: m.CategoryID}
		for _, field := range criteriaFields {
			if v := mappingField(m, field); v != "" {
				r.criteria[field] = v
			}
		}
		rules = append(rules, r)
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].criteria) < len(rules[j].criteria)
	})
	return rules
}

func mappingField(m *models.CostTypeCategoryMapping, field string) string {
	switch field {
	case "country_code":
		return m.CountryCode
	case "grant_code":
		return m.GrantCode
	case "budget_line_code":
		return m.BudgetLineCode
	case "account_code":
		return m.AccountCode
	case "site_code":
		return m.SiteCode
	case "sector_code":
		return m.SectorCode
	case "budget_line_description":
		return m.BudgetLineDescription
	}
	return ""
}

// classify runs every matching rule over the CLI's current classification
// and returns the resulting pair plus whether either side changed. Unset
// sides fall back to the defaults.
func classify(rules []*rule, cli *models.CostLineItem, defaultCostType, defaultCategory int64) (costTypeID, categoryID int64, changed bool) {
	var curCostType, curCategory *int64
	if cli.Config != nil {
		curCostType = cli.Config.CostTypeID
		curCategory = cli.Config.CategoryID
	}

	for _, r := range rules {
		if !r.matches(cli) {
			continue
		}
		if r.costTypeID != nil && (curCostType == nil || *curCostType != *r.costTypeID) {
			v := *r.costTypeID
			curCostType = &v
			changed = true
		}
		if r.categoryID != nil && (curCategory == nil || *curCategory != *r.categoryID) {
			v := *r.categoryID
			curCategory = &v
			changed = true
		}
	}
	if curCostType == nil {
		curCostType = &defaultCostType
		changed = true
	}
	if curCategory == nil {
		curCategory = &defaultCategory
		changed = true
	}
	return *curCostType, *curCategory, changed
}

// Run categorizes every transaction-derived CLI of the analysis. CLIs
// without a config get one inserted; CLIs whose classification changed get
// updated in bulk. User-added other cost rows are not touched.
func Run(ctx context.Context, db bulkdb.DB, analysisID int64) error {
	mappings, err := models.GetCostTypeCategoryMappings(ctx, db)
	if err != nil {
		return err
	}
	rules := compileRules(mappings)

	defaultCostType, err := models.DefaultCostType(ctx, db)
	if err != nil {
		return err
	}
	defaultCategory, err := models.DefaultCategory(ctx, db)
	if err != nil {
		return err
	}

	items, err := models.GetCostLineItems(ctx, db, analysisID)
	if err != nil {
		return err
	}

	var toInsert, toUpdate []map[string]any
	for _, cli := range items {
		if cli.Config != nil && cli.Config.AnalysisCostType != models.AnalysisCostNone {
			continue
		}
		costTypeID, categoryID, changed := classify(rules, cli, defaultCostType.ID, defaultCategory.ID)
		if cli.Config == nil {
			toInsert = append(toInsert, map[string]any{
				"cost_line_item_id":  cli.ID,
				"cost_type_id":       costTypeID,
				"category_id":        categoryID,
				"analysis_cost_type": int(models.AnalysisCostNone),
				"subcomponent_analysis_allocations_skipped": false,
			})
		} else if changed {
			toUpdate = append(toUpdate, map[string]any{
				"id":           cli.Config.ID,
				"cost_type_id": costTypeID,
				"category_id":  categoryID,
			})
		}
	}

	if err := bulkdb.UpsertMaps(ctx, db, "cost_line_item_configs", toInsert,
		bulkdb.Conflict{Columns: []string{"cost_line_item_id"}}, nil); err != nil {
		return err
	}
	return bulkdb.UpdateMaps(ctx, db, "cost_line_item_configs", toUpdate, nil)
}
