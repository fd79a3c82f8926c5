package models

import (
	"context"
	"fmt"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
	"github.com/dioptratool/dioptra-web-sub000/internal/outputmetric"
)

// Intervention is a program activity template.
type Intervention struct {
	ID                 int64
	Name               string
	Description        string
	GroupID            *int64
	OutputMetrics      []string // ordered metric ids
	SubcomponentLabels []string
	ShowInMenu         bool
}

// OutputMetricObjects resolves the metric ids against the registry.
// Unknown ids are an admin data error, not a user error.
func (iv *Intervention) OutputMetricObjects() ([]*outputmetric.Metric, error) {
	out := make([]*outputmetric.Metric, 0, len(iv.OutputMetrics))
	for _, id := range iv.OutputMetrics {
		m := outputmetric.ByID(id)
		if m == nil {
			return nil, fmt.Errorf("models: unknown output metric id: %s", id)
		}
		out = append(out, m)
	}
	return out, nil
}

// InterventionInstance binds an intervention to an analysis with per-run
// parameters.
type InterventionInstance struct {
	ID           int64
	AnalysisID   int64
	Intervention *Intervention
	Label        string
	Order        int
	Parameters   map[string]float64
	ClonedFromID *int64
}

// DisplayName prefers the user label over the intervention name.
func (ii *InterventionInstance) DisplayName() string {
	if ii.Label != "" {
		return ii.Label
	}
	if ii.Intervention != nil {
		return ii.Intervention.Name
	}
	return ""
}

// HasParameters reports whether every parameter of the first output metric
// is set. Only the first metric's parameters are required.
func (ii *InterventionInstance) HasParameters() bool {
	if ii.Intervention == nil {
		return false
	}
	metrics, err := ii.Intervention.OutputMetricObjects()
	if err != nil || len(metrics) == 0 {
		return err == nil
	}
	for _, p := range metrics[0].Parameters {
		if _, ok := ii.Parameters[p.Name]; !ok {
			return false
		}
	}
	return true
}

// GetInterventionInstances loads the instances of an analysis in order, with
// their interventions attached.
func GetInterventionInstances(ctx context.Context, db bulkdb.DB, analysisID int64) ([]*InterventionInstance, error) {
	rows, err := db.Query(ctx, `
		SELECT ii.id, ii.analysis_id, ii.label, ii.display_order, ii.parameters, ii.cloned_from_id,
		       iv.id, iv.name, iv.description, iv.group_id, iv.output_metrics, iv.subcomponent_labels,
		       iv.show_in_menu
		FROM intervention_instances ii
		JOIN interventions iv ON iv.id = ii.intervention_id
		WHERE ii.analysis_id = $1
		ORDER BY ii.display_order, ii.id`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*InterventionInstance
	for rows.Next() {
		ii := &InterventionInstance{Intervention: &Intervention{}}
		iv := ii.Intervention
		err := rows.Scan(
			&ii.ID, &ii.AnalysisID, &ii.Label, &ii.Order, &ii.Parameters, &ii.ClonedFromID,
			&iv.ID, &iv.Name, &iv.Description, &iv.GroupID, &iv.OutputMetrics, &iv.SubcomponentLabels,
			&iv.ShowInMenu,
		)
		if err != nil {
			return nil, err
		}
		if ii.Parameters == nil {
			ii.Parameters = map[string]float64{}
		}
		out = append(out, ii)
	}
	return out, rows.Err()
}

// GetIntervention loads one intervention by id.
func GetIntervention(ctx context.Context, db bulkdb.DB, id int64) (*Intervention, error) {
	iv := &Intervention{}
	err := db.QueryRow(ctx, `
		SELECT id, name, description, group_id, output_metrics, subcomponent_labels, show_in_menu
		FROM interventions WHERE id = $1`, id).
		Scan(&iv.ID, &iv.Name, &iv.Description, &iv.GroupID, &iv.OutputMetrics,
			&iv.SubcomponentLabels, &iv.ShowInMenu)
	if err != nil {
		return nil, err
	}
	return iv, nil
}

// GetInterventionsByName maps intervention names to rows, for importer
// lookups.
func GetInterventionsByName(ctx context.Context, db bulkdb.DB) (map[string]*Intervention, error) {
	rows, err := db.Query(ctx, `
		SELECT id, name, description, group_id, output_metrics, subcomponent_labels, show_in_menu
		FROM interventions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]*Intervention{}
	for rows.Next() {
		iv := &Intervention{}
		err := rows.Scan(&iv.ID, &iv.Name, &iv.Description, &iv.GroupID, &iv.OutputMetrics,
			&iv.SubcomponentLabels, &iv.ShowInMenu)
		if err != nil {
			return nil, err
		}
		out[iv.Name] = iv
	}
	return out, rows.Err()
}
