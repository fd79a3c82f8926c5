// Package master serves the shared reference data: cost types, categories,
// countries, interventions, settings, account code descriptions, the
// keyword mapping upload and the comparison data upload.
package master

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dioptratool/dioptra-web-sub000/internal/config"
)

func StartMasterService(pool *pgxpool.Pool) {
	r := mux.NewRouter()

	r.HandleFunc("/master/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Master Service is active"))
	})

	r.HandleFunc("/master/cost-types", ListCostTypes(pool)).Methods(http.MethodGet)
	r.HandleFunc("/master/cost-types/{id}/default", SetDefaultCostType(pool)).Methods(http.MethodPost)
	r.HandleFunc("/master/categories", ListCategories(pool)).Methods(http.MethodGet)
	r.HandleFunc("/master/categories/{id}/default", SetDefaultCategory(pool)).Methods(http.MethodPost)
	r.HandleFunc("/master/countries", ListCountries(pool)).Methods(http.MethodGet)
	r.HandleFunc("/master/interventions", ListInterventions(pool)).Methods(http.MethodGet)
	r.HandleFunc("/master/settings", GetSettings(pool)).Methods(http.MethodGet)
	r.HandleFunc("/master/account-code-descriptions", ListAccountCodeDescriptions(pool)).Methods(http.MethodGet)

	r.HandleFunc("/master/mappings", UploadMappings(pool)).Methods(http.MethodPost)
	r.HandleFunc("/master/mappings/export", ExportMappings(pool)).Methods(http.MethodGet)
	r.HandleFunc("/master/comparison-data", UploadComparisonData(pool)).Methods(http.MethodPost)

	addr := fmt.Sprintf(":%d", config.MasterServicePort)
	log.Println("Master Service started on", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("Master Service failed: %v", err)
	}
}
