package analysis

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dioptratool/dioptra-web-sub000/api"
	"github.com/dioptratool/dioptra-web-sub000/internal/allocation"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// SaveAllocations validates and saves a batch of allocation cells. Rows with
// validation problems are skipped and reported; the clean rows are written.
func SaveAllocations(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		var raw map[string]map[string]string
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}

		input := map[int64]map[int64]string{}
		for cliKey, cells := range raw {
			cliID, err := strconv.ParseInt(cliKey, 10, 64)
			if err != nil {
				api.RespondWithError(w, http.StatusBadRequest, "Invalid cost line item id: "+cliKey)
				return
			}
			row := map[int64]string{}
			for instKey, v := range cells {
				instanceID, err := strconv.ParseInt(instKey, 10, 64)
				if err != nil {
					api.RespondWithError(w, http.StatusBadRequest, "Invalid instance id: "+instKey)
					return
				}
				row[instanceID] = v
			}
			input[cliID] = row
		}

		data, errs := allocation.Validate(input)
		if err := allocation.Save(r.Context(), pool, analysisID, data, errs); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to save allocations: "+err.Error())
			return
		}
		if err := refreshInsights(r.Context(), pool, analysisID); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to refresh insights: "+err.Error())
			return
		}
		if len(errs) > 0 {
			api.RespondWithPayload(w, false, "Some allocations were invalid", map[string]interface{}{"errors": errs})
			return
		}
		api.RespondWithResult(w, true, "")
	}
}

// AllocationCells returns the allocate-step grid: one entry per (cost
// type, category, grant) cell with the assigned-items figures, the fallback
// suggestion and the cell's completion state.
func AllocationCells(pool *pgxpool.Pool) http.HandlerFunc {
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
		pairs, err := models.GetCostTypeCategories(r.Context(), pool, analysisID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load cost type categories: "+err.Error())
			return
		}
		grants, err := models.GetCostTypeCategoryGrants(r.Context(), pool, analysisID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load grants: "+err.Error())
			return
		}
		pairByID := make(map[int64]*models.AnalysisCostTypeCategory, len(pairs))
		for _, p := range pairs {
			pairByID[p.ID] = p
		}

		out := make([]map[string]interface{}, 0, len(grants))
		for _, g := range grants {
			pair := pairByID[g.CostTypeCategoryID]
			if pair == nil {
				continue
			}
			cell := allocation.GrantCellItems(items, pair, g.Grant)
			entry := map[string]interface{}{
				"cost_type_category_id": pair.ID,
				"cost_type_id":          pair.CostTypeID,
				"category_id":           pair.CategoryID,
				"grant":                 g.Grant,
				"assigned_items_total":  allocation.AssignedItemsTotal(cell).String(),
				"assigned_items_cost":   allocation.AssignedItemsCost(cell).String(),
				"complete":              allocation.AllocationComplete(cell),
			}
			if fallback, ok := allocation.SuggestedFromAssigned(cell); ok {
				entry["suggested_from_assigned"] = fallback.String()
			}
			out = append(out, entry)
		}
		api.RespondWithPayload(w, true, "", out)
	}
}

// SuggestedAllocations returns the derived splits for every shared cost
// type, keyed cost type id -> grant -> instance id.
func SuggestedAllocations(pool *pgxpool.Pool) http.HandlerFunc {
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
		suggested, err := allocation.Suggested(r.Context(), pool, analysis)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to compute suggestions: "+err.Error())
			return
		}

		out := map[string]map[string]map[string]interface{}{}
		for costTypeID, byGrant := range suggested {
			ctKey := strconv.FormatInt(costTypeID, 10)
			out[ctKey] = map[string]map[string]interface{}{}
			for grant, byInstance := range byGrant {
				cells := map[string]interface{}{}
				for instanceID, s := range byInstance {
					cells[strconv.FormatInt(instanceID, 10)] = map[string]string{
						"numerator":   s.Numerator.String(),
						"denominator": s.Denominator.String(),
						"percent":     s.Percent.String(),
					}
				}
				out[ctKey][grant] = cells
			}
		}
		api.RespondWithPayload(w, true, "", out)
	}
}

// ApplySuggestedAllocations writes the suggested split of one (cost type,
// grant) cell onto its cost line items.
func ApplySuggestedAllocations(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		var p struct {
			CostTypeID int64  `json:"cost_type_id"`
			Grant      string `json:"grant"`
		}
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		analysis, err := models.GetAnalysis(r.Context(), pool, analysisID)
		if err != nil {
			api.RespondWithError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		suggested, err := allocation.Suggested(r.Context(), pool, analysis)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to compute suggestions: "+err.Error())
			return
		}
		byInstance, ok := suggested[p.CostTypeID][p.Grant]
		if !ok {
			api.RespondWithError(w, http.StatusBadRequest, "No suggestion for that cost type and grant")
			return
		}
		values := make(map[int64]decimal.Decimal, len(byInstance))
		for instanceID, s := range byInstance {
			values[instanceID] = s.Percent
		}
		if err := allocation.ApplySuggested(r.Context(), pool, analysisID, p.CostTypeID, p.Grant, values); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to apply suggestions: "+err.Error())
			return
		}
		if err := refreshInsights(r.Context(), pool, analysisID); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to refresh insights: "+err.Error())
			return
		}
		api.RespondWithResult(w, true, "")
	}
}
