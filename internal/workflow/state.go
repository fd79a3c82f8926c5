package workflow

import (
	"context"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// State is one consistent snapshot of everything the step predicates read.
// A workflow instance is built per request; predicates memoize against this
// snapshot only.
type State struct {
	Analysis     *models.Analysis
	Instances    []*models.InterventionInstance
	Items        []*models.CostLineItem
	Pairs        []*models.AnalysisCostTypeCategory
	GrantCells   []*models.AnalysisCostTypeCategoryGrant
	CostTypes    []*models.CostType
	TypeByID     map[int64]*models.CostType
	Subcomponent *models.SubcomponentCostAnalysis
}

// LoadState reads the workflow-relevant slice of an analysis in one pass.
func LoadState(ctx context.Context, db bulkdb.DB, analysisID int64) (*State, error) {
	analysis, err := models.GetAnalysis(ctx, db, analysisID)
	if err != nil {
		return nil, err
	}
	st := &State{Analysis: analysis}
	if st.Instances, err = models.GetInterventionInstances(ctx, db, analysisID); err != nil {
		return nil, err
	}
	if st.Items, err = models.GetCostLineItems(ctx, db, analysisID); err != nil {
		return nil, err
	}
	if st.Pairs, err = models.GetCostTypeCategories(ctx, db, analysisID); err != nil {
		return nil, err
	}
	if st.GrantCells, err = models.GetCostTypeCategoryGrants(ctx, db, analysisID); err != nil {
		return nil, err
	}
	if st.CostTypes, err = models.GetCostTypes(ctx, db); err != nil {
		return nil, err
	}
	st.TypeByID = map[int64]*models.CostType{}
	for _, ct := range st.CostTypes {
		st.TypeByID[ct.ID] = ct
	}
	if st.Subcomponent, err = models.GetSubcomponentCostAnalysis(ctx, db, analysisID); err != nil {
		return nil, err
	}
	return st, nil
}

// pairFor resolves a grant cell's (cost type, category) pair.
func (st *State) pairFor(cell *models.AnalysisCostTypeCategoryGrant) *models.AnalysisCostTypeCategory {
	for _, p := range st.Pairs {
		if p.ID == cell.CostTypeCategoryID {
			return p
		}
	}
	return nil
}

// specialItems returns the special-lump-sum CLIs, optionally filtered by
// grant.
func (st *State) specialItems(grant string) []*models.CostLineItem {
	var out []*models.CostLineItem
	for _, cli := range st.Items {
		if !cli.IsSpecialLumpSum {
			continue
		}
		if grant != "" && cli.GrantCode != grant {
			continue
		}
		out = append(out, cli)
	}
	return out
}

// otherCostItems returns the user-added CLIs of one analysis cost type.
func (st *State) otherCostItems(kind models.AnalysisCostType) []*models.CostLineItem {
	var out []*models.CostLineItem
	for _, cli := range st.Items {
		if cli.Config != nil && cli.Config.AnalysisCostType == kind {
			out = append(out, cli)
		}
	}
	return out
}
