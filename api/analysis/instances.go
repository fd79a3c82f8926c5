package analysis

import (
	"encoding/json"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dioptratool/dioptra-web-sub000/api"
	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
)

type instancePayload struct {
	ID             int64              `json:"id"`
	InterventionID int64              `json:"intervention_id"`
	Label          string             `json:"label"`
	Parameters     map[string]float64 `json:"parameters"`
}

type instanceWrite struct {
	ID             int64
	InterventionID int64
	Label          string
	Order          int
	Parameters     map[string]float64
}

// orderedInstanceWrites renumbers the posted rows densely: payload order is
// display order, so removals leave no gaps.
func orderedInstanceWrites(payload []instancePayload) []instanceWrite {
	out := make([]instanceWrite, 0, len(payload))
	for i, p := range payload {
		if p.Parameters == nil {
			p.Parameters = map[string]float64{}
		}
		out = append(out, instanceWrite{
			ID:             p.ID,
			InterventionID: p.InterventionID,
			Label:          p.Label,
			Order:          i,
			Parameters:     p.Parameters,
		})
	}
	return out
}

// SaveInterventionInstances replaces the instance set of an analysis:
// rows with an id are updated, rows without are inserted, rows missing from
// the payload are removed along with their allocation cells. Display order
// follows payload order, renumbered densely.
func SaveInterventionInstances(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		var payload []instancePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if len(payload) == 0 {
			api.RespondWithError(w, http.StatusBadRequest, "At least one intervention instance is required")
			return
		}

		err = bulkdb.Atomic(r.Context(), pool, func(tx pgx.Tx) error {
			keep := []int64{}
			for _, p := range orderedInstanceWrites(payload) {
				if p.ID > 0 {
					_, err := tx.Exec(r.Context(), `
						UPDATE intervention_instances
						SET intervention_id = $1, label = $2, display_order = $3, parameters = $4
						WHERE id = $5 AND analysis_id = $6`,
						p.InterventionID, p.Label, p.Order, p.Parameters, p.ID, analysisID)
					if err != nil {
						return err
					}
					keep = append(keep, p.ID)
					continue
				}
				var id int64
				err := tx.QueryRow(r.Context(), `
					INSERT INTO intervention_instances (analysis_id, intervention_id, label, display_order, parameters)
					VALUES ($1, $2, $3, $4, $5) RETURNING id`,
					analysisID, p.InterventionID, p.Label, p.Order, p.Parameters).Scan(&id)
				if err != nil {
					return err
				}
				keep = append(keep, id)
			}

			// Dropped instances take their allocation cells and grant
			// intervention joins with them.
			statements := []string{
				`DELETE FROM cost_line_item_intervention_allocations a
				 USING intervention_instances ii
				 WHERE a.intervention_instance_id = ii.id
				   AND ii.analysis_id = $1 AND NOT (ii.id = ANY ($2))`,
				`DELETE FROM analysis_cost_type_category_grant_interventions gi
				 USING intervention_instances ii
				 WHERE gi.intervention_instance_id = ii.id
				   AND ii.analysis_id = $1 AND NOT (ii.id = ANY ($2))`,
				`DELETE FROM intervention_instances
				 WHERE analysis_id = $1 AND NOT (id = ANY ($2))`,
			}
			for _, stmt := range statements {
				if _, err := tx.Exec(r.Context(), stmt, analysisID, keep); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to save instances: "+err.Error())
			return
		}
		if err := refreshInsights(r.Context(), pool, analysisID); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to refresh insights: "+err.Error())
			return
		}
		api.RespondWithResult(w, true, "")
	}
}

// SaveInstanceParameters stores the output metric parameter values of one
// intervention instance.
func SaveInstanceParameters(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		instanceID, err := pathID(r, "instanceID")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid instance id")
			return
		}
		var params map[string]float64
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		tag, err := pool.Exec(r.Context(), `
			UPDATE intervention_instances SET parameters = $1
			WHERE id = $2 AND analysis_id = $3`, params, instanceID, analysisID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to save parameters: "+err.Error())
			return
		}
		if tag.RowsAffected() == 0 {
			api.RespondWithError(w, http.StatusNotFound, "Intervention instance not found")
			return
		}
		if err := refreshInsights(r.Context(), pool, analysisID); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to refresh insights: "+err.Error())
			return
		}
		api.RespondWithResult(w, true, "")
	}
}
