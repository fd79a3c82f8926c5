package master

import (
	"mime/multipart"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dioptratool/dioptra-web-sub000/api"
	"github.com/dioptratool/dioptra-web-sub000/internal/importing"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// uploadLimit caps in-memory multipart parsing at 32 MB.
const uploadLimit = 32 << 20

func formUpload(w http.ResponseWriter, r *http.Request) (multipart.File, bool) {
	if err := r.ParseMultipartForm(uploadLimit); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, "Please select a file")
		return nil, false
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		api.RespondWithError(w, http.StatusBadRequest, "Please select a file")
		return nil, false
	}
	return file, true
}

func respondImportResult(w http.ResponseWriter, ok bool, result *importing.Result) {
	if !ok {
		api.RespondWithPayload(w, false, "Import failed", map[string]interface{}{"errors": result.Errors})
		return
	}
	api.RespondWithPayload(w, true, "", map[string]interface{}{"imported_count": result.ImportedCount})
}

// UploadMappings replaces the keyword-to-classification mapping table from a
// spreadsheet. Nothing changes when any row fails validation.
func UploadMappings(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, ok := formUpload(w, r)
		if !ok {
			return
		}
		defer file.Close()

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
		typesByName := make(map[string]*models.CostType, len(costTypes))
		for _, ct := range costTypes {
			typesByName[ct.Name] = ct
		}
		categoriesByName := make(map[string]*models.Category, len(categories))
		for _, c := range categories {
			categoriesByName[c.Name] = c
		}

		ok, result := importing.LoadMappings(r.Context(), pool, typesByName, categoriesByName, file)
		respondImportResult(w, ok, result)
	}
}

// UploadComparisonData replaces the curated comparison points from a
// spreadsheet. Nothing changes when any row fails validation.
func UploadComparisonData(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, ok := formUpload(w, r)
		if !ok {
			return
		}
		defer file.Close()

		interventions, err := models.GetInterventionsByName(r.Context(), pool)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load interventions: "+err.Error())
			return
		}
		countries, err := models.GetCountriesByCode(r.Context(), pool)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load countries: "+err.Error())
			return
		}

		ok, result := importing.LoadComparisonData(r.Context(), pool, interventions, countries, file)
		respondImportResult(w, ok, result)
	}
}
