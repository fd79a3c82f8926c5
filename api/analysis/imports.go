package analysis

import (
	"context"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dioptratool/dioptra-web-sub000/api"
	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
	"github.com/dioptratool/dioptra-web-sub000/internal/categorize"
	"github.com/dioptratool/dioptra-web-sub000/internal/costline"
	"github.com/dioptratool/dioptra-web-sub000/internal/importing"
	"github.com/dioptratool/dioptra-web-sub000/internal/jobs"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// uploadLimit caps in-memory multipart parsing at 32 MB, the data files
// stay well under that.
const uploadLimit = 32 << 20

type analysisContext struct {
	Analysis  *models.Analysis
	Settings  *models.Settings
	Countries map[string]*models.Country
	Country   *models.Country
}

func (c *analysisContext) countryCodes() []string {
	return models.AnalysisCountryCodes(c.Settings, c.Country, c.Countries)
}

func (c *analysisContext) builder() *costline.Builder {
	return &costline.Builder{
		Analysis:      c.Analysis,
		Country:       c.Country,
		Countries:     c.Countries,
		FilterEnabled: c.Settings.CountryFilteringEnabled(),
	}
}

func loadAnalysisContext(ctx context.Context, pool *pgxpool.Pool, analysisID int64) (*analysisContext, error) {
	analysis, err := models.GetAnalysis(ctx, pool, analysisID)
	if err != nil {
		return nil, err
	}
	settings, err := models.GetSettings(ctx, pool)
	if err != nil {
		return nil, err
	}
	countries, err := models.GetCountriesByCode(ctx, pool)
	if err != nil {
		return nil, err
	}
	out := &analysisContext{Analysis: analysis, Settings: settings, Countries: countries}
	if analysis.CountryID != nil {
		if out.Country, err = models.GetCountry(ctx, pool, *analysis.CountryID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func respondImportResult(w http.ResponseWriter, ok bool, result *importing.Result) {
	if !ok {
		api.RespondWithPayload(w, false, "Import failed", map[string]interface{}{"errors": result.Errors})
		return
	}
	api.RespondWithPayload(w, true, "", map[string]interface{}{"imported_count": result.ImportedCount})
}

// UploadTransactions imports a transaction file, derives the cost line
// items, auto-categorizes them and ensures the classification tables, all in
// one transaction. Nothing is written when any row fails validation.
func UploadTransactions(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		if err := r.ParseMultipartForm(uploadLimit); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Please select a file")
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Please select a file")
			return
		}
		defer file.Close()

		ac, err := loadAnalysisContext(r.Context(), pool, analysisID)
		if err != nil {
			api.RespondWithError(w, http.StatusNotFound, "Analysis not found")
			return
		}

		var (
			ok     bool
			result *importing.Result
		)
		err = bulkdb.Atomic(r.Context(), pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(r.Context(), "DELETE FROM transactions WHERE analysis_id = $1", analysisID); err != nil {
				return err
			}
			ok, result = importing.LoadTransactions(r.Context(), tx, ac.Analysis, file, ac.countryCodes())
			if !ok {
				return bulkdb.ErrRollback
			}
			if err := ac.builder().Sync(r.Context(), tx); err != nil {
				return err
			}
			if err := categorize.Run(r.Context(), tx, analysisID); err != nil {
				return err
			}
			return costline.EnsureCostTypeCategoryObjects(r.Context(), tx, ac.Analysis)
		})
		if err != nil && !errors.Is(err, bulkdb.ErrRollback) {
			api.RespondWithError(w, http.StatusInternalServerError, "Import failed: "+err.Error())
			return
		}
		if ok {
			if err := refreshInsights(r.Context(), pool, analysisID); err != nil {
				api.RespondWithError(w, http.StatusInternalServerError, "Failed to refresh insights: "+err.Error())
				return
			}
		}
		respondImportResult(w, ok, result)
	}
}

// ResyncTransactions re-pulls the analysis's transactions from the data
// store immediately instead of waiting for the cron processor.
func ResyncTransactions(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		if err := jobs.ResyncAnalysis(r.Context(), pool, analysisID); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Resync failed: "+err.Error())
			return
		}
		api.RespondWithResult(w, true, "")
	}
}

// UploadBudget imports a budget file as cost line items directly, then
// auto-categorizes and ensures the classification tables.
func UploadBudget(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		if err := r.ParseMultipartForm(uploadLimit); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Please select a file")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Please select a file")
			return
		}
		defer file.Close()

		ac, err := loadAnalysisContext(r.Context(), pool, analysisID)
		if err != nil {
			api.RespondWithError(w, http.StatusNotFound, "Analysis not found")
			return
		}

		var (
			ok     bool
			result *importing.Result
		)
		err = bulkdb.Atomic(r.Context(), pool, func(tx pgx.Tx) error {
			ok, result = importing.LoadBudget(r.Context(), tx, ac.Analysis, ac.Country, file, header.Filename)
			if !ok {
				return bulkdb.ErrRollback
			}
			if err := categorize.Run(r.Context(), tx, analysisID); err != nil {
				return err
			}
			return costline.EnsureCostTypeCategoryObjects(r.Context(), tx, ac.Analysis)
		})
		if err != nil && !errors.Is(err, bulkdb.ErrRollback) {
			api.RespondWithError(w, http.StatusInternalServerError, "Import failed: "+err.Error())
			return
		}
		if ok {
			if err := refreshInsights(r.Context(), pool, analysisID); err != nil {
				api.RespondWithError(w, http.StatusInternalServerError, "Failed to refresh insights: "+err.Error())
				return
			}
		}
		respondImportResult(w, ok, result)
	}
}
