package master

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dioptratool/dioptra-web-sub000/api"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

// ListCostTypes returns every cost type in display order.
func ListCostTypes(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		costTypes, err := models.GetCostTypes(r.Context(), pool)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load cost types: "+err.Error())
			return
		}
		out := make([]map[string]interface{}, 0, len(costTypes))
		for _, ct := range costTypes {
			out = append(out, map[string]interface{}{
				"id":                  ct.ID,
				"name":                ct.Name,
				"type":                ct.Type,
				"display_order":       ct.Order,
				"is_default":          ct.IsDefault,
				"allocation_editable": ct.AllocationEditable(),
			})
		}
		api.RespondWithPayload(w, true, "", out)
	}
}

// SetDefaultCostType marks one cost type as the fallback for uncategorized
// rows and clears the flag everywhere else.
func SetDefaultCostType(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid cost type id")
			return
		}
		if err := models.SetDefaultCostType(r.Context(), pool, id); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to set default cost type: "+err.Error())
			return
		}
		api.RespondWithResult(w, true, "")
	}
}

// ListCategories returns every category in display order.
func ListCategories(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := models.GetCategories(r.Context(), pool)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load categories: "+err.Error())
			return
		}
		out := make([]map[string]interface{}, 0, len(categories))
		for _, c := range categories {
			out = append(out, map[string]interface{}{
				"id":            c.ID,
				"name":          c.Name,
				"display_order": c.Order,
				"is_default":    c.IsDefault,
			})
		}
		api.RespondWithPayload(w, true, "", out)
	}
}

// SetDefaultCategory marks one category as the fallback for uncategorized
// rows and clears the flag everywhere else.
func SetDefaultCategory(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid category id")
			return
		}
		if err := models.SetDefaultCategory(r.Context(), pool, id); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to set default category: "+err.Error())
			return
		}
		api.RespondWithResult(w, true, "")
	}
}

// ListCountries returns every country sorted by name.
func ListCountries(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		byCode, err := models.GetCountriesByCode(r.Context(), pool)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load countries: "+err.Error())
			return
		}
		countries := make([]*models.Country, 0, len(byCode))
		for _, c := range byCode {
			countries = append(countries, c)
		}
		sort.Slice(countries, func(i, j int) bool { return countries[i].Name < countries[j].Name })

		out := make([]map[string]interface{}, 0, len(countries))
		for _, c := range countries {
			out = append(out, map[string]interface{}{
				"id":                   c.ID,
				"name":                 c.Name,
				"code":                 c.Code,
				"is_default":           c.IsDefault,
				"always_include_costs": c.AlwaysIncludeCosts,
			})
		}
		api.RespondWithPayload(w, true, "", out)
	}
}

// ListInterventions returns the interventions shown in the picker, sorted by
// name, with their output metrics and subcomponent labels.
func ListInterventions(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		byName, err := models.GetInterventionsByName(r.Context(), pool)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load interventions: "+err.Error())
			return
		}
		interventions := make([]*models.Intervention, 0, len(byName))
		for _, iv := range byName {
			if iv.ShowInMenu {
				interventions = append(interventions, iv)
			}
		}
		sort.Slice(interventions, func(i, j int) bool { return interventions[i].Name < interventions[j].Name })

		out := make([]map[string]interface{}, 0, len(interventions))
		for _, iv := range interventions {
			out = append(out, map[string]interface{}{
				"id":                  iv.ID,
				"name":                iv.Name,
				"description":         iv.Description,
				"group_id":            iv.GroupID,
				"output_metrics":      iv.OutputMetrics,
				"subcomponent_labels": iv.SubcomponentLabels,
			})
		}
		api.RespondWithPayload(w, true, "", out)
	}
}

// GetSettings returns the deployment settings row.
func GetSettings(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := models.GetSettings(r.Context(), pool)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load settings: "+err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{
			"transaction_country_filter": s.TransactionCountryFilter,
			"show_transactions":          s.ShowTransactions,
			"paginate_by":                s.PaginateBy,
		})
	}
}

// ListAccountCodeDescriptions returns the account code glossary sorted by
// code.
func ListAccountCodeDescriptions(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		byCode, err := models.GetAccountCodeDescriptions(r.Context(), pool)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load account codes: "+err.Error())
			return
		}
		codes := make([]string, 0, len(byCode))
		for code := range byCode {
			codes = append(codes, code)
		}
		sort.Strings(codes)

		out := make([]map[string]interface{}, 0, len(codes))
		for _, code := range codes {
			d := byCode[code]
			out = append(out, map[string]interface{}{
				"id":                  d.ID,
				"account_code":        d.AccountCode,
				"account_description": d.AccountDescription,
				"sensitive_data":      d.SensitiveData,
			})
		}
		api.RespondWithPayload(w, true, "", out)
	}
}
