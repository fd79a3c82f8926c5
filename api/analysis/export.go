package analysis

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dioptratool/dioptra-web-sub000/api"
	"github.com/dioptratool/dioptra-web-sub000/internal/exporting"
	"github.com/dioptratool/dioptra-web-sub000/internal/insights"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// ExportWorkbook streams the insights spreadsheet. Available only once the
// output cost calculations are done.
func ExportWorkbook(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
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
			api.RespondWithError(w, http.StatusBadRequest, "Insights are not calculated yet")
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
		subcomponent, err := models.GetSubcomponentCostAnalysis(r.Context(), pool, analysisID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load subcomponents: "+err.Error())
			return
		}
		var countryName string
		if analysis.CountryID != nil {
			if country, err := models.GetCountry(r.Context(), pool, *analysis.CountryID); err == nil {
				countryName = country.Name
			}
		}

		now := time.Now()
		f, err := exporting.BuildWorkbook(&exporting.Input{
			Analysis:     analysis,
			Instances:    instances,
			Items:        items,
			TypeByID:     typeByID,
			CatByID:      catByID,
			Subcomponent: subcomponent,
			CountryName:  countryName,
			AnalysisURL:  "http://" + r.Host + "/analysis/analyses/" + strconv.FormatInt(analysisID, 10),
			Now:          now,
		})
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to build workbook: "+err.Error())
			return
		}
		w.Header().Set("Content-Type", exporting.ContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+exporting.Filename(analysis.Title, now)+`"`)
		if err := exporting.Write(f, w); err != nil {
			api.LogError("export write failed: " + err.Error())
		}
	}
}
