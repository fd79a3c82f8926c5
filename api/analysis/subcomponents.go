package analysis

import (
	"encoding/json"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dioptratool/dioptra-web-sub000/api"
	"github.com/dioptratool/dioptra-web-sub000/internal/allocation"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// ConfirmSubcomponents stores the subcomponent labels for the analysis and
// marks them confirmed. When no labels are posted the intervention's own
// labels are used.
func ConfirmSubcomponents(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		var p struct {
			Labels []string `json:"labels"`
		}
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if len(p.Labels) == 0 {
			instances, err := models.GetInterventionInstances(r.Context(), pool, analysisID)
			if err != nil {
				api.RespondWithError(w, http.StatusNotFound, "Analysis not found")
				return
			}
			for _, ii := range instances {
				if ii.Intervention != nil && len(ii.Intervention.SubcomponentLabels) > 0 {
					p.Labels = ii.Intervention.SubcomponentLabels
					break
				}
			}
		}
		if len(p.Labels) < 2 {
			api.RespondWithError(w, http.StatusBadRequest, "At least two subcomponent labels are required")
			return
		}

		_, err = pool.Exec(r.Context(), `
			INSERT INTO subcomponent_cost_analyses (analysis_id, subcomponent_labels, subcomponent_labels_confirmed)
			VALUES ($1, $2, true)
			ON CONFLICT (analysis_id)
			DO UPDATE SET subcomponent_labels = EXCLUDED.subcomponent_labels,
			              subcomponent_labels_confirmed = true`, analysisID, p.Labels)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to save subcomponents: "+err.Error())
			return
		}
		if err := refreshInsights(r.Context(), pool, analysisID); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to refresh insights: "+err.Error())
			return
		}
		api.RespondWithResult(w, true, "")
	}
}

// SaveSubcomponentAllocations writes one split map (or a skip) onto a batch
// of cost line item configs, then refreshes the derived average on shared and
// skipped rows.
func SaveSubcomponentAllocations(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		var p struct {
			ConfigIDs   []int64           `json:"config_ids"`
			Allocations map[string]string `json:"allocations"`
			Skipped     bool              `json:"skipped"`
		}
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if len(p.ConfigIDs) == 0 {
			api.RespondWithError(w, http.StatusBadRequest, "No config ids given")
			return
		}
		if err := allocation.ValidateSubcomponentMap(p.Allocations); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := allocation.SaveSubcomponentAllocations(r.Context(), pool, p.ConfigIDs, p.Allocations, p.Skipped); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to save subcomponent allocations: "+err.Error())
			return
		}
		if err := allocation.ApplyAverageToSharedAndSkipped(r.Context(), pool, analysisID); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to update shared rows: "+err.Error())
			return
		}
		if err := refreshInsights(r.Context(), pool, analysisID); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to refresh insights: "+err.Error())
			return
		}
		api.RespondWithResult(w, true, "")
	}
}

// ResetSubcomponents clears every subcomponent split of the analysis.
func ResetSubcomponents(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		if err := allocation.ResetSubcomponentAllocations(r.Context(), pool, analysisID); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to reset subcomponent allocations: "+err.Error())
			return
		}
		if err := refreshInsights(r.Context(), pool, analysisID); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to refresh insights: "+err.Error())
			return
		}
		api.RespondWithResult(w, true, "")
	}
}
