package analysis

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dioptratool/dioptra-web-sub000/api"
	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
	"github.com/dioptratool/dioptra-web-sub000/internal/costline"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

func costLineItemJSON(c *models.CostLineItem) map[string]interface{} {
	out := map[string]interface{}{
		"id":                      c.ID,
		"country_code":            c.CountryCode,
		"grant_code":              c.GrantCode,
		"budget_line_code":        c.BudgetLineCode,
		"account_code":            c.AccountCode,
		"site_code":               c.SiteCode,
		"sector_code":             c.SectorCode,
		"budget_line_description": c.BudgetLineDescription,
		"total_cost":              c.TotalCost.String(),
		"note":                    c.Note,
		"is_special_lump_sum":     c.IsSpecialLumpSum,
	}
	if c.Config != nil {
		allocations := make([]map[string]interface{}, 0, len(c.Config.Allocations))
		for _, a := range c.Config.Allocations {
			cell := map[string]interface{}{"intervention_instance_id": a.InterventionInstanceID}
			if a.Allocation != nil {
				cell["allocation"] = a.Allocation.String()
			} else {
				cell["allocation"] = nil
			}
			allocations = append(allocations, cell)
		}
		out["config"] = map[string]interface{}{
			"id":                                c.Config.ID,
			"cost_type_id":                      c.Config.CostTypeID,
			"category_id":                       c.Config.CategoryID,
			"analysis_cost_type":                int(c.Config.AnalysisCostType),
			"subcomponent_analysis_allocations": c.Config.SubcomponentAnalysisAllocations,
			"subcomponent_analysis_allocations_skipped": c.Config.SubcomponentAnalysisAllocationsSkipped,
			"allocations": allocations,
		}
	}
	return out
}

// ListCostLineItems returns every CLI of the analysis with its
// classification and allocation state.
func ListCostLineItems(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		items, err := models.GetCostLineItems(r.Context(), pool, analysisID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load cost line items: "+err.Error())
			return
		}
		out := make([]map[string]interface{}, 0, len(items))
		for _, c := range items {
			out = append(out, costLineItemJSON(c))
		}
		api.RespondWithPayload(w, true, "", out)
	}
}

type categorizationPayload struct {
	ConfigID   int64  `json:"config_id"`
	CostTypeID *int64 `json:"cost_type_id"`
	CategoryID *int64 `json:"category_id"`
}

// SaveCategorization writes user cost type and category picks onto CLI
// configs, then re-ensures the (cost type, category) pair tables.
func SaveCategorization(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		var payload []categorizationPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		analysis, err := models.GetAnalysis(r.Context(), pool, analysisID)
		if err != nil {
			api.RespondWithError(w, http.StatusNotFound, "Analysis not found")
			return
		}

		err = bulkdb.Atomic(r.Context(), pool, func(tx pgx.Tx) error {
			for _, p := range payload {
				tag, err := tx.Exec(r.Context(), `
					UPDATE cost_line_item_configs c SET cost_type_id = $1, category_id = $2
					FROM cost_line_items i
					WHERE c.id = $3 AND i.id = c.cost_line_item_id AND i.analysis_id = $4`,
					p.CostTypeID, p.CategoryID, p.ConfigID, analysisID)
				if err != nil {
					return err
				}
				if tag.RowsAffected() == 0 {
					return pgx.ErrNoRows
				}
			}
			return costline.EnsureCostTypeCategoryObjects(r.Context(), tx, analysis)
		})
		if err == pgx.ErrNoRows {
			api.RespondWithError(w, http.StatusBadRequest, "Config does not belong to this analysis")
			return
		}
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to save categorization: "+err.Error())
			return
		}
		if err := refreshInsights(r.Context(), pool, analysisID); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to refresh insights: "+err.Error())
			return
		}
		api.RespondWithResult(w, true, "")
	}
}

type otherCostPayload struct {
	Description      string `json:"description"`
	TotalCost        string `json:"total_cost"`
	AnalysisCostType int    `json:"analysis_cost_type"`
	Note             string `json:"note"`
}

// AddOtherCost creates a user-entered cost row (client time, in-kind or
// other HQ) with an undecided allocation cell per intervention instance.
func AddOtherCost(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		var p otherCostPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		kind := models.AnalysisCostType(p.AnalysisCostType)
		if kind.PrettyName() == "" {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis cost type: "+strconv.Itoa(p.AnalysisCostType))
			return
		}
		if p.Description == "" {
			api.RespondWithError(w, http.StatusBadRequest, "Description is required")
			return
		}
		total, err := decimal.NewFromString(p.TotalCost)
		if err != nil || total.IsNegative() {
			api.RespondWithError(w, http.StatusBadRequest, "Total cost must be a non-negative number")
			return
		}
		instances, err := models.GetInterventionInstances(r.Context(), pool, analysisID)
		if err != nil {
			api.RespondWithError(w, http.StatusNotFound, "Analysis not found")
			return
		}

		var cliID int64
		err = bulkdb.Atomic(r.Context(), pool, func(tx pgx.Tx) error {
			err := tx.QueryRow(r.Context(), `
				INSERT INTO cost_line_items (analysis_id, country_code, grant_code, budget_line_code,
				                             account_code, site_code, sector_code,
				                             budget_line_description, total_cost, note, is_special_lump_sum)
				VALUES ($1, '', '', '', '', '', '', $2, $3, $4, false)
				RETURNING id`, analysisID, p.Description, total, p.Note).Scan(&cliID)
			if err != nil {
				return err
			}
			var configID int64
			err = tx.QueryRow(r.Context(), `
				INSERT INTO cost_line_item_configs (cost_line_item_id, analysis_cost_type,
				                                    subcomponent_analysis_allocations,
				                                    subcomponent_analysis_allocations_skipped)
				VALUES ($1, $2, '{}', false)
				RETURNING id`, cliID, int(kind)).Scan(&configID)
			if err != nil {
				return err
			}
			for _, ii := range instances {
				_, err := tx.Exec(r.Context(), `
					INSERT INTO cost_line_item_intervention_allocations (cli_config_id, intervention_instance_id, allocation)
					VALUES ($1, $2, NULL)`, configID, ii.ID)
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to add cost: "+err.Error())
			return
		}
		if err := refreshInsights(r.Context(), pool, analysisID); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to refresh insights: "+err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{"id": cliID})
	}
}

// DeleteOtherCost removes a user-entered cost row. Imported rows cannot be
// deleted this way.
func DeleteOtherCost(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		cliID, err := pathID(r, "cliID")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid cost line item id")
			return
		}
		err = bulkdb.Atomic(r.Context(), pool, func(tx pgx.Tx) error {
			var configID int64
			err := tx.QueryRow(r.Context(), `
				SELECT c.id FROM cost_line_item_configs c
				JOIN cost_line_items i ON i.id = c.cost_line_item_id
				WHERE i.id = $1 AND i.analysis_id = $2 AND c.analysis_cost_type <> 0`,
				cliID, analysisID).Scan(&configID)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(r.Context(),
				"DELETE FROM cost_line_item_intervention_allocations WHERE cli_config_id = $1", configID); err != nil {
				return err
			}
			if _, err := tx.Exec(r.Context(),
				"DELETE FROM cost_line_item_configs WHERE id = $1", configID); err != nil {
				return err
			}
			_, err = tx.Exec(r.Context(), "DELETE FROM cost_line_items WHERE id = $1", cliID)
			return err
		})
		if err == pgx.ErrNoRows {
			api.RespondWithError(w, http.StatusNotFound, "Cost row not found")
			return
		}
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to delete cost: "+err.Error())
			return
		}
		if err := refreshInsights(r.Context(), pool, analysisID); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to refresh insights: "+err.Error())
			return
		}
		api.RespondWithResult(w, true, "")
	}
}
