package analysis

import (
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dioptratool/dioptra-web-sub000/api"
	"github.com/dioptratool/dioptra-web-sub000/internal/allocation"
	"github.com/dioptratool/dioptra-web-sub000/internal/config"
	"github.com/dioptratool/dioptra-web-sub000/internal/insights"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
	"github.com/dioptratool/dioptra-web-sub000/internal/workflow"
)

// InsightsData computes (when possible) and returns the full results view:
// per instance and metric the cost-per-output buckets, efficiency bar,
// breakdown table, comparison chart and the subcomponent breakdown.
func InsightsData(pool *pgxpool.Pool) http.HandlerFunc {
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
		if err := workflow.New(pool, state).CalculateIfPossible(r.Context()); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to calculate output costs: "+err.Error())
			return
		}

		// Reload after the calculation refreshed the cached costs.
		analysis, err := models.GetAnalysis(r.Context(), pool, analysisID)
		if err != nil {
			api.RespondWithError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		instances, err := models.GetInterventionInstances(r.Context(), pool, analysisID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load instances: "+err.Error())
			return
		}
		if !insights.CalculationsDone(analysis, instances) {
			api.RespondWithPayload(w, true, "", map[string]interface{}{"calculations_done": false})
			return
		}
		items, err := models.GetCostLineItems(r.Context(), pool, analysisID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load cost line items: "+err.Error())
			return
		}
		costTypes, err := models.GetCostTypes(r.Context(), pool)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load cost types: "+err.Error())
			return
		}
		categories, err := models.GetCategories(r.Context(), pool)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load categories: "+err.Error())
			return
		}
		typeByID := map[int64]*models.CostType{}
		for _, ct := range costTypes {
			typeByID[ct.ID] = ct
		}
		catByID := map[int64]*models.Category{}
		for _, c := range categories {
			catByID[c.ID] = c
		}

		instancePayloads := make([]map[string]interface{}, 0, len(instances))
		for _, ii := range instances {
			metrics, err := ii.Intervention.OutputMetricObjects()
			if err != nil {
				api.RespondWithError(w, http.StatusInternalServerError, err.Error())
				return
			}
			instanceKey := strconv.FormatInt(ii.ID, 10)

			metricPayloads := make([]map[string]interface{}, 0, len(metrics))
			for _, m := range metrics {
				costs := analysis.OutputCosts[instanceKey][m.ID]
				points, err := models.GetInsightComparisonData(r.Context(), pool, ii.Intervention.ID)
				if err != nil {
					api.RespondWithError(w, http.StatusInternalServerError, "Failed to load comparison data: "+err.Error())
					return
				}
				metricPayloads = append(metricPayloads, map[string]interface{}{
					"metric_id":    m.ID,
					"metric_name":  m.MetricName,
					"output_costs": costs,
					"bar_chart": insights.BarChartData(
						costs.All, costs.DirectOnly, costs.InKind, analysis.InKindContributions),
					"comparison_chart": insights.ComparisonChartData(
						analysis, m, ii, points, config.CurrencyCode()),
				})
			}

			instancePayloads = append(instancePayloads, map[string]interface{}{
				"instance_id":    ii.ID,
				"name":           ii.DisplayName(),
				"metrics":        metricPayloads,
				"cost_breakdown": insights.CostBreakdownData(items, typeByID, catByID, ii.ID),
			})
		}

		payload := map[string]interface{}{
			"calculations_done": true,
			"instances":         instancePayloads,
		}

		if sub, _ := models.GetSubcomponentCostAnalysis(r.Context(), pool, analysisID); sub != nil && sub.SubcomponentLabelsConfirmed {
			averages := allocation.SubcomponentAverage(items, typeByID, false)
			floats := make([]float64, 0, len(averages))
			for _, a := range averages {
				floats = append(floats, a.InexactFloat64())
			}
			payload["subcomponent_breakdown"] = insights.SubcomponentBreakdownData(sub.SubcomponentLabels, floats)
		}

		api.RespondWithPayload(w, true, "", payload)
	}
}
