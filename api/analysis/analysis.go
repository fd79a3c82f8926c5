// Package analysis exposes the analysis workflow over JSON: CRUD, data
// imports, categorization, allocations, insights, the spreadsheet export and
// cloning. Handlers are constructed with the pgx pool and run behind the
// gateway.
package analysis

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dioptratool/dioptra-web-sub000/internal/config"
)

func StartAnalysisService(pool *pgxpool.Pool) {
	r := mux.NewRouter()

	r.HandleFunc("/analysis/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Analysis Service is active"))
	})

	r.HandleFunc("/analysis/analyses", ListAnalyses(pool)).Methods(http.MethodGet)
	r.HandleFunc("/analysis/analyses", CreateAnalysis(pool)).Methods(http.MethodPost)
	r.HandleFunc("/analysis/analyses/{id}", GetAnalysis(pool)).Methods(http.MethodGet)
	r.HandleFunc("/analysis/analyses/{id}", UpdateAnalysis(pool)).Methods(http.MethodPut)
	r.HandleFunc("/analysis/analyses/{id}", DeleteAnalysis(pool)).Methods(http.MethodDelete)
	r.HandleFunc("/analysis/analyses/{id}/clone", CloneAnalysis(pool)).Methods(http.MethodPost)

	r.HandleFunc("/analysis/analyses/{id}/instances", SaveInterventionInstances(pool)).Methods(http.MethodPut)
	r.HandleFunc("/analysis/analyses/{id}/instances/{instanceID}/parameters", SaveInstanceParameters(pool)).Methods(http.MethodPut)

	r.HandleFunc("/analysis/analyses/{id}/workflow", WorkflowNavigation(pool)).Methods(http.MethodGet)
	r.HandleFunc("/analysis/analyses/{id}/steps/{step}/invalidate", InvalidateStep(pool)).Methods(http.MethodPost)

	r.HandleFunc("/analysis/analyses/{id}/transactions", UploadTransactions(pool)).Methods(http.MethodPost)
	r.HandleFunc("/analysis/analyses/{id}/transactions/resync", ResyncTransactions(pool)).Methods(http.MethodPost)
	r.HandleFunc("/analysis/analyses/{id}/budget", UploadBudget(pool)).Methods(http.MethodPost)

	r.HandleFunc("/analysis/analyses/{id}/cost-line-items", ListCostLineItems(pool)).Methods(http.MethodGet)
	r.HandleFunc("/analysis/analyses/{id}/categorize", SaveCategorization(pool)).Methods(http.MethodPost)
	r.HandleFunc("/analysis/analyses/{id}/other-costs", AddOtherCost(pool)).Methods(http.MethodPost)
	r.HandleFunc("/analysis/analyses/{id}/other-costs/{cliID}", DeleteOtherCost(pool)).Methods(http.MethodDelete)

	r.HandleFunc("/analysis/analyses/{id}/allocations", SaveAllocations(pool)).Methods(http.MethodPost)
	r.HandleFunc("/analysis/analyses/{id}/allocations/cells", AllocationCells(pool)).Methods(http.MethodGet)
	r.HandleFunc("/analysis/analyses/{id}/allocations/suggested", SuggestedAllocations(pool)).Methods(http.MethodGet)
	r.HandleFunc("/analysis/analyses/{id}/allocations/suggested/apply", ApplySuggestedAllocations(pool)).Methods(http.MethodPost)

	r.HandleFunc("/analysis/analyses/{id}/subcomponents/confirm", ConfirmSubcomponents(pool)).Methods(http.MethodPost)
	r.HandleFunc("/analysis/analyses/{id}/subcomponents/allocations", SaveSubcomponentAllocations(pool)).Methods(http.MethodPost)
	r.HandleFunc("/analysis/analyses/{id}/subcomponents/reset", ResetSubcomponents(pool)).Methods(http.MethodPost)

	r.HandleFunc("/analysis/analyses/{id}/insights", InsightsData(pool)).Methods(http.MethodGet)
	r.HandleFunc("/analysis/analyses/{id}/export", ExportWorkbook(pool)).Methods(http.MethodGet)

	addr := fmt.Sprintf(":%d", config.AnalysisServicePort)
	log.Println("Analysis Service started on", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("Analysis service failed: %v", err)
	}
}
