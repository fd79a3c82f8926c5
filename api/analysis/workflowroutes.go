package analysis

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dioptratool/dioptra-web-sub000/api"
	"github.com/dioptratool/dioptra-web-sub000/internal/workflow"
)

// refreshInsights clears the analysis's cached output costs and recomputes
// them when every prerequisite step is satisfied. Every mutating handler
// runs this after a successful write.
func refreshInsights(ctx context.Context, pool *pgxpool.Pool, analysisID int64) error {
	state, err := workflow.LoadState(ctx, pool, analysisID)
	if err != nil {
		return err
	}
	return workflow.New(pool, state).RefreshInsights(ctx)
}

func stepJSON(s workflow.Step) map[string]interface{} {
	subs := s.SubSteps()
	out := map[string]interface{}{
		"name":             s.Name(),
		"nav_title":        s.NavTitle(),
		"href":             s.Href(),
		"enabled":          s.IsEnabled(),
		"dependencies_met": s.DependenciesMet(),
		"is_complete":      s.IsComplete(),
		"is_final":         s.IsFinal(),
	}
	if len(subs) > 0 {
		subPayload := make([]map[string]interface{}, 0, len(subs))
		for _, sub := range subs {
			subPayload = append(subPayload, stepJSON(sub))
		}
		out["substeps"] = subPayload
	}
	return out
}

// WorkflowNavigation returns the step list with completion state and the
// landing step the UI should open.
func WorkflowNavigation(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		state, err := workflow.LoadState(r.Context(), pool, analysisID)
		if err != nil {
			api.RespondWithError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		wf := workflow.New(pool, state)

		steps := make([]map[string]interface{}, 0, len(wf.Steps()))
		for _, s := range wf.Steps() {
			steps = append(steps, stepJSON(s))
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{
			"steps":        steps,
			"landing_step": wf.LandingStep().Name(),
		})
	}
}

// InvalidateStep clears a step's derived data and everything downstream.
func InvalidateStep(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		stepName := mux.Vars(r)["step"]

		state, err := workflow.LoadState(r.Context(), pool, analysisID)
		if err != nil {
			api.RespondWithError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		wf := workflow.New(pool, state)
		if wf.GetStep(stepName) == nil {
			api.RespondWithError(w, http.StatusBadRequest, "Unknown step: "+stepName)
			return
		}
		if err := wf.InvalidateStep(r.Context(), stepName); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to invalidate step: "+err.Error())
			return
		}
		api.RespondWithResult(w, true, "")
	}
}
