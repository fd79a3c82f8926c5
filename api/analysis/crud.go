package analysis

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dioptratool/dioptra-web-sub000/api"
	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
	"github.com/dioptratool/dioptra-web-sub000/internal/duplicator"
	"github.com/dioptratool/dioptra-web-sub000/internal/importing"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

const dateLayout = "2006-01-02"

// pathID parses one int64 path variable.
func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

type analysisPayload struct {
	Title               string `json:"title"`
	Description         string `json:"description"`
	StartDate           string `json:"start_date"`
	EndDate             string `json:"end_date"`
	CountryID           *int64 `json:"country_id"`
	Grants              string `json:"grants"`
	CurrencyCode        string `json:"currency_code"`
	Owner               string `json:"owner"`
	OtherHQCosts        bool   `json:"other_hq_costs"`
	InKindContributions bool   `json:"in_kind_contributions"`
	ClientTime          bool   `json:"client_time"`
}

func (p *analysisPayload) dates() (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, p.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(dateLayout, p.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func analysisJSON(a *models.Analysis) map[string]interface{} {
	return map[string]interface{}{
		"id":                       a.ID,
		"title":                    a.Title,
		"description":              a.Description,
		"start_date":               a.StartDate.Format(dateLayout),
		"end_date":                 a.EndDate.Format(dateLayout),
		"country_id":               a.CountryID,
		"grants":                   a.Grants,
		"currency_code":            a.CurrencyCode,
		"owner":                    a.Owner,
		"other_hq_costs":           a.OtherHQCosts,
		"in_kind_contributions":    a.InKindContributions,
		"client_time":              a.ClientTime,
		"needs_transaction_resync": a.NeedsTransactionResync,
		"source":                   a.Source,
		"output_costs":             a.OutputCosts,
		"cloned_from_id":           a.ClonedFromID,
	}
}

// ListAnalyses returns every analysis, newest first.
func ListAnalyses(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := pool.Query(r.Context(), `
			SELECT id, title, description, start_date, end_date, owner, currency_code,
			       needs_transaction_resync
			FROM analyses ORDER BY id DESC`)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to list analyses: "+err.Error())
			return
		}
		defer rows.Close()

		out := []map[string]interface{}{}
		for rows.Next() {
			var (
				id                 int64
				title, desc        string
				start, end         time.Time
				owner, currency    string
				needsResyncPending bool
			)
			if err := rows.Scan(&id, &title, &desc, &start, &end, &owner, &currency, &needsResyncPending); err != nil {
				api.RespondWithError(w, http.StatusInternalServerError, "Failed to scan analysis: "+err.Error())
				return
			}
			out = append(out, map[string]interface{}{
				"id":                       id,
				"title":                    title,
				"description":              desc,
				"start_date":               start.Format(dateLayout),
				"end_date":                 end.Format(dateLayout),
				"owner":                    owner,
				"currency_code":            currency,
				"needs_transaction_resync": needsResyncPending,
			})
		}
		api.RespondWithPayload(w, true, "", out)
	}
}

// CreateAnalysis inserts a new analysis from the define-step fields.
func CreateAnalysis(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p analysisPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if p.Title == "" {
			api.RespondWithError(w, http.StatusBadRequest, "Title is required")
			return
		}
		start, end, err := p.dates()
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Dates must be YYYY-MM-DD")
			return
		}
		if end.Before(start) {
			api.RespondWithError(w, http.StatusBadRequest, "End date must not be before start date")
			return
		}

		var id int64
		err = pool.QueryRow(r.Context(), `
			INSERT INTO analyses (title, description, start_date, end_date, country_id, grants,
			                      currency_code, owner, other_hq_costs, in_kind_contributions,
			                      client_time, needs_transaction_resync, source,
			                      all_transactions_total_cost, output_costs)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, false, '', '', '{}')
			RETURNING id`,
			p.Title, p.Description, start, end, p.CountryID, p.Grants,
			p.CurrencyCode, p.Owner, p.OtherHQCosts, p.InKindContributions, p.ClientTime).
			Scan(&id)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to create analysis: "+err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{"id": id})
	}
}

// GetAnalysis returns one analysis with its intervention instances.
func GetAnalysis(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		a, err := models.GetAnalysis(r.Context(), pool, id)
		if err != nil {
			api.RespondWithError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		instances, err := models.GetInterventionInstances(r.Context(), pool, id)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load instances: "+err.Error())
			return
		}
		payload := analysisJSON(a)
		insts := make([]map[string]interface{}, 0, len(instances))
		for _, ii := range instances {
			insts = append(insts, map[string]interface{}{
				"id":              ii.ID,
				"intervention_id": ii.Intervention.ID,
				"name":            ii.DisplayName(),
				"label":           ii.Label,
				"display_order":   ii.Order,
				"parameters":      ii.Parameters,
			})
		}
		payload["intervention_instances"] = insts
		api.RespondWithPayload(w, true, "", payload)
	}
}

// UpdateAnalysis saves the define-step fields. Changing the date range or
// the grants flags the analysis for a transaction resync.
func UpdateAnalysis(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		var p analysisPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		start, end, err := p.dates()
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Dates must be YYYY-MM-DD")
			return
		}
		if end.Before(start) {
			api.RespondWithError(w, http.StatusBadRequest, "End date must not be before start date")
			return
		}

		current, err := models.GetAnalysis(r.Context(), pool, id)
		if err != nil {
			api.RespondWithError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		needsResync := current.NeedsTransactionResync
		if current.Source == importing.DataStoreName &&
			(!current.StartDate.Equal(start) || !current.EndDate.Equal(end) || current.Grants != p.Grants) {
			needsResync = true
		}

		_, err = pool.Exec(r.Context(), `
			UPDATE analyses SET title = $1, description = $2, start_date = $3, end_date = $4,
			       country_id = $5, grants = $6, currency_code = $7, owner = $8,
			       other_hq_costs = $9, in_kind_contributions = $10, client_time = $11,
			       needs_transaction_resync = $12
			WHERE id = $13`,
			p.Title, p.Description, start, end, p.CountryID, p.Grants, p.CurrencyCode, p.Owner,
			p.OtherHQCosts, p.InKindContributions, p.ClientTime, needsResync, id)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to update analysis: "+err.Error())
			return
		}
		if err := refreshInsights(r.Context(), pool, id); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to refresh insights: "+err.Error())
			return
		}
		api.RespondWithResult(w, true, "")
	}
}

// DeleteAnalysis removes an analysis and every child row.
func DeleteAnalysis(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		err = bulkdb.Atomic(r.Context(), pool, func(tx pgx.Tx) error {
			statements := []string{
				`DELETE FROM cost_line_item_intervention_allocations a
				 USING cost_line_item_configs c, cost_line_items i
				 WHERE a.cli_config_id = c.id AND c.cost_line_item_id = i.id AND i.analysis_id = $1`,
				`DELETE FROM cost_line_item_configs c
				 USING cost_line_items i
				 WHERE c.cost_line_item_id = i.id AND i.analysis_id = $1`,
				`DELETE FROM transactions WHERE analysis_id = $1`,
				`DELETE FROM cost_line_items WHERE analysis_id = $1`,
				`DELETE FROM analysis_cost_type_category_grant_interventions gi
				 USING analysis_cost_type_category_grants g, analysis_cost_type_categories ctc
				 WHERE gi.cost_type_grant_id = g.id AND g.cost_type_category_id = ctc.id AND ctc.analysis_id = $1`,
				`DELETE FROM analysis_cost_type_category_grants g
				 USING analysis_cost_type_categories ctc
				 WHERE g.cost_type_category_id = ctc.id AND ctc.analysis_id = $1`,
				`DELETE FROM analysis_cost_type_categories WHERE analysis_id = $1`,
				`DELETE FROM subcomponent_cost_analyses WHERE analysis_id = $1`,
				`DELETE FROM intervention_instances WHERE analysis_id = $1`,
				`DELETE FROM analyses WHERE id = $1`,
			}
			for _, stmt := range statements {
				if _, err := tx.Exec(r.Context(), stmt, id); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to delete analysis: "+err.Error())
			return
		}
		api.RespondWithResult(w, true, "")
	}
}

// CloneAnalysis deep-copies an analysis, optionally re-dating the clone.
func CloneAnalysis(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid analysis id")
			return
		}
		var p struct {
			Owner     string `json:"owner"`
			StartDate string `json:"start_date"`
			EndDate   string `json:"end_date"`
		}
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		var newStart, newEnd *time.Time
		if p.StartDate != "" || p.EndDate != "" {
			start, err1 := time.Parse(dateLayout, p.StartDate)
			end, err2 := time.Parse(dateLayout, p.EndDate)
			if err1 != nil || err2 != nil {
				api.RespondWithError(w, http.StatusBadRequest, "Dates must be YYYY-MM-DD")
				return
			}
			if end.Before(start) {
				api.RespondWithError(w, http.StatusBadRequest, "End date must not be before start date")
				return
			}
			newStart, newEnd = &start, &end
		}

		newID, err := duplicator.CloneAnalysis(r.Context(), pool, id, p.Owner, newStart, newEnd)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to clone analysis: "+err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{"id": newID})
	}
}
