package models

import (
	"context"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
)

// AnalysisCostTypeCategory materializes a (cost type, category) pair that is
// actually used by some CLI of the analysis.
type AnalysisCostTypeCategory struct {
	ID           int64
	AnalysisID   int64
	CostTypeID   *int64
	CategoryID   *int64
	Confirmed    bool
	ClonedFromID *int64
}

// AnalysisCostTypeCategoryGrant materializes one grant under a pair.
type AnalysisCostTypeCategoryGrant struct {
	ID                 int64
	CostTypeCategoryID int64
	Grant              string
	ClonedFromID       *int64
}

// AnalysisCostTypeCategoryGrantIntervention joins a grant cell to one
// intervention instance.
type AnalysisCostTypeCategoryGrantIntervention struct {
	ID                     int64
	CostTypeGrantID        int64
	InterventionInstanceID int64
	ClonedFromID           *int64
}

// GetCostTypeCategories loads the pairs of an analysis ordered by cost type
// then category display order.
func GetCostTypeCategories(ctx context.Context, db bulkdb.DB, analysisID int64) ([]*AnalysisCostTypeCategory, error) {
	rows, err := db.Query(ctx, `
		SELECT ctc.id, ctc.analysis_id, ctc.cost_type_id, ctc.category_id, ctc.confirmed, ctc.cloned_from_id
		FROM analysis_cost_type_categories ctc
		LEFT JOIN cost_types ct ON ct.id = ctc.cost_type_id
		LEFT JOIN categories c ON c.id = ctc.category_id
		WHERE ctc.analysis_id = $1
		ORDER BY ct.display_order, c.display_order, ctc.id`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*AnalysisCostTypeCategory
	for rows.Next() {
		ctc := &AnalysisCostTypeCategory{}
		if err := rows.Scan(&ctc.ID, &ctc.AnalysisID, &ctc.CostTypeID, &ctc.CategoryID, &ctc.Confirmed, &ctc.ClonedFromID); err != nil {
			return nil, err
		}
		out = append(out, ctc)
	}
	return out, rows.Err()
}

// GetCostTypeCategoryGrants loads the grant cells of an analysis ordered the
// way the allocate step walks them: Program before Support before Indirect.
func GetCostTypeCategoryGrants(ctx context.Context, db bulkdb.DB, analysisID int64) ([]*AnalysisCostTypeCategoryGrant, error) {
	rows, err := db.Query(ctx, `
		SELECT g.id, g.cost_type_category_id, g.grant_code, g.cloned_from_id
		FROM analysis_cost_type_category_grants g
		JOIN analysis_cost_type_categories ctc ON ctc.id = g.cost_type_category_id
		LEFT JOIN cost_types ct ON ct.id = ctc.cost_type_id
		LEFT JOIN categories c ON c.id = ctc.category_id
		WHERE ctc.analysis_id = $1
		ORDER BY ct.type, ct.display_order, g.grant_code, c.display_order`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*AnalysisCostTypeCategoryGrant
	for rows.Next() {
		g := &AnalysisCostTypeCategoryGrant{}
		if err := rows.Scan(&g.ID, &g.CostTypeCategoryID, &g.Grant, &g.ClonedFromID); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// SubcomponentCostAnalysis carries the per-analysis subcomponent labels.
type SubcomponentCostAnalysis struct {
	ID                          int64
	AnalysisID                  int64
	SubcomponentLabels          []string
	SubcomponentLabelsConfirmed bool
	ClonedFromID                *int64
}

// GetSubcomponentCostAnalysis loads the one-to-one child, or nil when the
// analysis has none yet.
func GetSubcomponentCostAnalysis(ctx context.Context, db bulkdb.DB, analysisID int64) (*SubcomponentCostAnalysis, error) {
	s := &SubcomponentCostAnalysis{}
	err := db.QueryRow(ctx, `
		SELECT id, analysis_id, subcomponent_labels, subcomponent_labels_confirmed, cloned_from_id
		FROM subcomponent_cost_analyses WHERE analysis_id = $1`, analysisID).
		Scan(&s.ID, &s.AnalysisID, &s.SubcomponentLabels, &s.SubcomponentLabelsConfirmed, &s.ClonedFromID)
	if err != nil {
		return nil, nil
	}
	return s, nil
}

// InsightComparisonData is an externally curated comparison data point for
// the insights charts.
type InsightComparisonData struct {
	ID             int64
	Name           string
	CountryID      int64
	CountryName    string
	Grants         string
	InterventionID int64
	Parameters     map[string]float64
	OutputCosts    map[string]map[string]*float64 // metric id -> {all, direct_only}
}

// GetInsightComparisonData loads all comparison points for one intervention.
func GetInsightComparisonData(ctx context.Context, db bulkdb.DB, interventionID int64) ([]*InsightComparisonData, error) {
	rows, err := db.Query(ctx, `
		SELECT d.id, d.name, d.country_id, c.name, d.grants, d.intervention_id, d.parameters, d.output_costs
		FROM insight_comparison_data d
		JOIN countries c ON c.id = d.country_id
		WHERE d.intervention_id = $1`, interventionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*InsightComparisonData
	for rows.Next() {
		d := &InsightComparisonData{}
		if err := rows.Scan(&d.ID, &d.Name, &d.CountryID, &d.CountryName, &d.Grants, &d.InterventionID, &d.Parameters, &d.OutputCosts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CostTypeCategoryMapping is one categorization rule.
type CostTypeCategoryMapping struct {
	ID                    int64
	CountryCode           string
	GrantCode             string
	BudgetLineCode        string
	AccountCode           string
	SiteCode              string
	SectorCode            string
	BudgetLineDescription string
	CostTypeID            *int64
	CategoryID            *int64
}

// GetCostTypeCategoryMappings loads every rule.
func GetCostTypeCategoryMappings(ctx context.Context, db bulkdb.DB) ([]*CostTypeCategoryMapping, error) {
	rows, err := db.Query(ctx, `
		SELECT id, country_code, grant_code, budget_line_code, account_code, site_code,
		       sector_code, budget_line_description, cost_type_id, category_id
		FROM cost_type_category_mappings ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*CostTypeCategoryMapping
	for rows.Next() {
		m := &CostTypeCategoryMapping{}
		err := rows.Scan(&m.ID, &m.CountryCode, &m.GrantCode, &m.BudgetLineCode, &m.AccountCode,
			&m.SiteCode, &m.SectorCode, &m.BudgetLineDescription, &m.CostTypeID, &m.CategoryID)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
