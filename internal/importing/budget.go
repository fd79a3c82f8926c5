package importing

import (
	"context"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// budgetColumn describes one positional column of a budget upload.
type budgetColumn struct {
	name        string
	displayName string
	required    bool
	numeric     bool // numeric-string code column
	amount      bool // four-decimal-place numeric column
}

var budgetColumns = []budgetColumn{
	{name: "grant_code", displayName: "Grant code", required: true, numeric: true},
	{name: "budget_line_code", displayName: "Budget line code", numeric: true},
	{name: "account_code", displayName: "Account code", required: true, numeric: true},
	{name: "site_code", displayName: "Site code", numeric: true},
	{name: "sector_code", displayName: "Sector code", numeric: true},
	{name: "budget_line_description", displayName: "Budget line description", required: true, numeric: true},
	{name: "total_cost", displayName: "Total cost", amount: true},
	{name: "loe_or_unit", displayName: "LOE % or unit", amount: true},
	{name: "months_or_unit", displayName: "Months or unit", amount: true},
	{name: "unit_cost", displayName: "Unit cost", amount: true},
	{name: "dummy_field_1", displayName: "Dummy field 1"},
	{name: "dummy_field_2", displayName: "Dummy field 2"},
}

type budgetRow struct {
	strings map[string]string
	amounts map[string]*decimal.Decimal
}

func parseBudgetRow(rowNum int, row []string) (*budgetRow, []string) {
	out := &budgetRow{strings: map[string]string{}, amounts: map[string]*decimal.Decimal{}}
	var errs []string
	for i, col := range budgetColumns {
		value := cellAt(row, i)
		if col.required && value == "" {
			errs = append(errs, errRequiredRowColumn(rowNum+1, col.displayName))
			continue
		}
		if value != "" && col.numeric {
			value = NumericString(value)
		}
		if col.amount {
			if value == "" {
				out.amounts[col.name] = nil
				continue
			}
			d, err := Decimal4(value)
			if err != nil {
				errs = append(errs, errInvalidRowColumn(rowNum+1, col.displayName, value, ""))
				continue
			}
			out.amounts[col.name] = &d
			continue
		}
		out.strings[col.name] = value
	}
	return out, errs
}

var costLineItemColumns = []string{
	"id", "analysis_id", "country_code", "grant_code", "budget_line_code", "account_code",
	"site_code", "sector_code", "budget_line_description", "total_cost", "loe_or_unit",
	"months_or_unit", "unit_cost", "quantity", "dummy_field_1", "dummy_field_2", "note",
	"is_special_lump_sum",
}

// LoadBudget imports a budget spreadsheet as the analysis's cost line items.
// Rows with a zero total cost are skipped; any row error aborts the import
// and clears whatever cost line items the analysis had.
func LoadBudget(ctx context.Context, db bulkdb.Beginner, analysis *models.Analysis, country *models.Country, f io.Reader, filename string) (bool, *Result) {
	rows, err := ReadTable(f)
	if err != nil {
		return false, &Result{Errors: []string{errErrorReadingFile()}}
	}
	if len(rows) <= 1 {
		return false, &Result{Errors: []string{errFileEmpty()}}
	}
	if len(rows) > CostLineItemRowLimit {
		return false, &Result{Errors: []string{errFileTooLarge()}}
	}

	var parsed []*budgetRow
	var errs []string
	for rowNum, row := range rows[1:] {
		br, rowErrs := parseBudgetRow(rowNum, row)
		if len(rowErrs) > 0 {
			errs = append(errs, rowErrs...)
			continue
		}
		total := br.amounts["total_cost"]
		if total == nil || total.IsZero() {
			continue
		}
		parsed = append(parsed, br)
	}

	if len(errs) > 0 {
		err := bulkdb.Atomic(ctx, db, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, "DELETE FROM cost_line_items WHERE analysis_id = $1", analysis.ID)
			return err
		})
		if err != nil {
			errs = append(errs, errInvalidRowGeneric(0, ""))
		}
		return false, &Result{Errors: errs}
	}

	imported := 0
	err = bulkdb.Atomic(ctx, db, func(tx pgx.Tx) error {
		return bulkdb.WithSequenceLock(ctx, tx, "cost_line_items", func(seq *bulkdb.Sequence) error {
			inserter := bulkdb.NewInserter("cost_line_items", costLineItemColumns...)
			for _, br := range parsed {
				err := inserter.AddRow(ctx, tx, map[string]any{
					"id":                      seq.NextVal(),
					"analysis_id":             analysis.ID,
					"country_code":            country.Code,
					"grant_code":              br.strings["grant_code"],
					"budget_line_code":        br.strings["budget_line_code"],
					"account_code":            br.strings["account_code"],
					"site_code":               br.strings["site_code"],
					"sector_code":             br.strings["sector_code"],
					"budget_line_description": br.strings["budget_line_description"],
					"total_cost":              br.amounts["total_cost"],
					"loe_or_unit":             br.amounts["loe_or_unit"],
					"months_or_unit":          br.amounts["months_or_unit"],
					"unit_cost":               br.amounts["unit_cost"],
					"quantity":                nil,
					"dummy_field_1":           br.strings["dummy_field_1"],
					"dummy_field_2":           br.strings["dummy_field_2"],
					"note":                    "",
					"is_special_lump_sum":     false,
				})
				if err != nil {
					return err
				}
				imported++
			}
			if _, err := inserter.Close(ctx, tx); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "UPDATE analyses SET source = $1 WHERE id = $2", filename, analysis.ID)
			return err
		})
	})
	if err != nil {
		return false, &Result{Errors: []string{errErrorReadingFile()}}
	}
	analysis.Source = filename
	return true, &Result{ImportedCount: imported}
}
