package master

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xuri/excelize/v2"

	"github.com/dioptratool/dioptra-web-sub000/api"
	"github.com/dioptratool/dioptra-web-sub000/internal/exporting"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// The header row mirrors the mapping upload format so a downloaded file
// re-imports cleanly.
var mappingExportHeaders = []string{
	"Country code", "Grant code", "Budget line code", "Account Code",
	"Account Code Description", "Site code", "Sector code",
	"Budget line description", "Category", "Cost type", "Sensitive Data?",
}

// ExportMappings streams the categorization rule set as a spreadsheet in
// the same column layout the mapping upload expects.
func ExportMappings(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mappings, err := models.GetCostTypeCategoryMappings(r.Context(), pool)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load mappings: "+err.Error())
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
		accounts, err := models.GetAccountCodeDescriptions(r.Context(), pool)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to load account codes: "+err.Error())
			return
		}
		typeNames := make(map[int64]string, len(costTypes))
		for _, ct := range costTypes {
			typeNames[ct.ID] = ct.Name
		}
		categoryNames := make(map[int64]string, len(categories))
		for _, c := range categories {
			categoryNames[c.ID] = c.Name
		}

		f := excelize.NewFile()
		sheet := f.GetSheetName(0)
		for col, h := range mappingExportHeaders {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			f.SetCellValue(sheet, cell, h)
		}
		for i, m := range mappings {
			var description string
			sensitive := "No"
			if acd, ok := accounts[m.AccountCode]; ok {
				description = acd.AccountDescription
				if acd.SensitiveData {
					sensitive = "Yes"
				}
			}
			var costType, category string
			if m.CostTypeID != nil {
				costType = typeNames[*m.CostTypeID]
			}
			if m.CategoryID != nil {
				category = categoryNames[*m.CategoryID]
			}
			values := []string{
				m.CountryCode, m.GrantCode, m.BudgetLineCode, m.AccountCode,
				description, m.SiteCode, m.SectorCode,
				m.BudgetLineDescription, category, costType, sensitive,
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
				f.SetCellValue(sheet, cell, v)
			}
		}

		filename := "categorization-mappings-" + time.Now().Format("20060102-1504") + ".xlsx"
		w.Header().Set("Content-Type", exporting.ContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		if err := f.Write(w); err != nil {
			api.LogError("mapping export write failed: " + err.Error())
		}
		api.LogInfo("exported " + strconv.Itoa(len(mappings)) + " categorization mappings")
	}
}
