package importing

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// DataStoreName is the analysis source recorded after a transaction import.
const DataStoreName = "Data store"

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// stagedTransaction is one parsed transaction row ready for COPY.
type stagedTransaction struct {
	Date                   time.Time
	CountryCode            string
	GrantCode              string
	BudgetLineCode         string
	AccountCode            string
	SiteCode               string
	SectorCode             string
	TransactionCode        string
	TransactionDescription string
	CurrencyCode           string
	BudgetLineDescription  string
	Amount                 decimal.Decimal
	Dummy                  [5]string
}

type rowValidator struct {
	row      int
	analysis *models.Analysis
	errors   []string
}

func (v *rowValidator) add(msg string) { v.errors = append(v.errors, msg) }

func (v *rowValidator) require(value, prefix string) bool {
	if value == "" {
		v.add(prefix + " cannot be empty")
		return true
	}
	return false
}

func (v *rowValidator) shortLength(value, prefix string) bool {
	if len(value) > 255 {
		v.add(prefix + " is longer than 255 characters")
		return true
	}
	return false
}

func (v *rowValidator) date(value, prefix string) bool {
	if !datePattern.MatchString(value) {
		v.add(fmt.Sprintf("%s must be in the format YYYY-MM-DD (got %s)", prefix, value))
		return true
	}
	return false
}

func (v *rowValidator) dateRange(value, prefix string) bool {
	if v.analysis == nil {
		return false
	}
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		v.add(fmt.Sprintf("%s Unable to check date range (got %s)", prefix, value))
		return true
	}
	if d.Before(v.analysis.StartDate) || d.After(v.analysis.EndDate) {
		v.add(fmt.Sprintf("%s transaction date must be within the analysis range (got %s)", prefix, value))
		return true
	}
	return false
}

func (v *rowValidator) grantCode(value, prefix string) bool {
	if v.analysis == nil {
		return false
	}
	for _, g := range strings.Split(v.analysis.Grants, ",") {
		if value == g {
			return false
		}
	}
	v.add(fmt.Sprintf("%s Unexpected grant code (got %s)", prefix, value))
	return true
}

func (v *rowValidator) currency(value, prefix string) bool {
	if !ValidCurrency(value) {
		v.add(fmt.Sprintf("%s is an invalid currency code (got %s)", prefix, value))
		return true
	}
	return false
}

func (v *rowValidator) number(value, prefix string) bool {
	if _, err := strconv.ParseFloat(value, 64); err != nil {
		v.add(fmt.Sprintf("%s is not a number (got %s)", prefix, value))
		return true
	}
	return false
}

func (v *rowValidator) check(value, prefix string, checkers ...func(string, string) bool) {
	for _, checker := range checkers {
		if checker(value, prefix) {
			return
		}
	}
}

func (v *rowValidator) checkOptional(row []string, index int, prefix string, checkers ...func(string, string) bool) {
	if index >= len(row) {
		return
	}
	v.check(row[index], prefix, checkers...)
}

func (v *rowValidator) fullMessage() string {
	if len(v.errors) == 0 {
		return ""
	}
	return fmt.Sprintf("Row %d: %s", v.row, strings.Join(v.errors, ", "))
}

// validateTransactionRow checks one headerless transaction row against the
// column contract and the analysis constraints.
func validateTransactionRow(index int, row []string, analysis *models.Analysis) *rowValidator {
	v := &rowValidator{row: index, analysis: analysis}
	if len(row) < 12 || len(row) > 17 {
		v.add(fmt.Sprintf("12 to 17 columns required (got %d)", len(row)))
		return v
	}
	for _, cell := range row {
		if strings.ContainsRune(cell, '�') {
			v.add("Contains invalid characters. Re-save the file with utf-8 encoding, " +
				"or remove the funny-looking characters")
			return v
		}
	}
	v.check(row[0], "Transaction date (column A)", v.require, v.date, v.dateRange)
	v.check(row[1], "Country code (column B)", v.require, v.shortLength)
	v.check(row[2], "Grant code (column C)", v.require, v.shortLength, v.grantCode)
	v.check(row[3], "Budget line code (column D)", v.shortLength)
	v.check(row[4], "Account code (column E)", v.require, v.shortLength)
	v.check(row[5], "Site code (column F)", v.shortLength)
	v.check(row[6], "Sector code (column G)", v.shortLength)
	v.check(row[7], "Transaction code (column H)", v.shortLength)
	v.check(row[9], "Currency code (column J)", v.require, v.currency)
	v.check(row[10], "Budget line description (column K)", v.require, v.shortLength)
	v.check(row[11], "Amount (column L)", v.require, v.number)
	v.checkOptional(row, 12, "Dummy field 1 (column M)", v.shortLength)
	v.checkOptional(row, 13, "Dummy field 2 (column N)", v.shortLength)
	v.checkOptional(row, 14, "Dummy field 3 (column O)", v.shortLength)
	v.checkOptional(row, 15, "Dummy field 4 (column P)", v.shortLength)
	v.checkOptional(row, 16, "Dummy field 5 (column Q)", v.shortLength)
	return v
}

// fixGrantColumn undoes Excel's float rendering of numeric grant codes
// before validation sees them.
func fixGrantColumn(rows [][]string) {
	for _, row := range rows {
		if len(row) > 2 {
			row[2] = NumericString(row[2])
		}
	}
}

func validateTransactionFile(rows [][]string, analysis *models.Analysis) []string {
	if len(rows) > TransactionRowLimit {
		return []string{errFileTooLargeTransactions()}
	}
	var errs []string
	for i, row := range rows {
		if msg := validateTransactionRow(i, row, analysis).fullMessage(); msg != "" {
			errs = append(errs, msg)
		}
	}
	return errs
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

// stageTransactionRows filters validated rows down to the analysis's grants
// and date range and parses them.
func stageTransactionRows(rows [][]string, analysis *models.Analysis) ([]*stagedTransaction, error) {
	grants := map[string]bool{}
	for _, g := range strings.Split(analysis.Grants, ",") {
		grants[strings.ToUpper(strings.TrimSpace(g))] = true
	}

	var staged []*stagedTransaction
	for i, row := range rows {
		for _, col := range []int{2, 3, 4, 5, 6, 10} {
			if col < len(row) {
				row[col] = NumericString(row[col])
			}
		}
		grant := strings.ToUpper(cellAt(row, 2))
		if !grants[grant] {
			continue
		}
		date, err := time.Parse("2006-01-02", cellAt(row, 0))
		if err != nil {
			return nil, fmt.Errorf("importing: invalid date on row %d: %s", i, cellAt(row, 0))
		}
		if date.Before(analysis.StartDate) || date.After(analysis.EndDate) {
			continue
		}
		amount, err := decimal.NewFromString(cellAt(row, 11))
		if err != nil {
			return nil, fmt.Errorf("importing: invalid amount on row %d: %s", i, cellAt(row, 11))
		}
		// Credit rows count toward the analysis like any other spend.
		amount = amount.Abs()
		staged = append(staged, &stagedTransaction{
			Date:                   date,
			CountryCode:            cellAt(row, 1),
			GrantCode:              grant,
			BudgetLineCode:         cellAt(row, 3),
			AccountCode:            cellAt(row, 4),
			SiteCode:               cellAt(row, 5),
			SectorCode:             cellAt(row, 6),
			TransactionCode:        cellAt(row, 7),
			TransactionDescription: cellAt(row, 8),
			CurrencyCode:           cellAt(row, 9),
			BudgetLineDescription:  cellAt(row, 10),
			Amount:                 amount,
			Dummy: [5]string{
				cellAt(row, 12), cellAt(row, 13), cellAt(row, 14),
				cellAt(row, 15), cellAt(row, 16),
			},
		})
	}
	return staged, nil
}

var transactionColumns = []string{
	"id", "analysis_id", "date", "country_code", "grant_code", "budget_line_code",
	"account_code", "site_code", "sector_code", "transaction_code",
	"transaction_description", "currency_code", "budget_line_description",
	"amount_in_instance_currency", "amount_in_source_currency",
	"dummy_field_1", "dummy_field_2", "dummy_field_3", "dummy_field_4", "dummy_field_5",
}

// persistTransactions bulk-inserts the staged rows under a sequence lock and
// stores the per-grant totals on the analysis. Per-grant totals cover every
// staged row, but when countryCodes is non-nil only rows from those
// countries are persisted.
func persistTransactions(ctx context.Context, tx pgx.Tx, analysis *models.Analysis, staged []*stagedTransaction, countryCodes []string) (int, error) {
	persistCountry := map[string]bool{}
	for _, c := range countryCodes {
		persistCountry[c] = true
	}

	totals := map[string]decimal.Decimal{}
	imported := 0
	err := bulkdb.WithSequenceLock(ctx, tx, "transactions", func(seq *bulkdb.Sequence) error {
		inserter := bulkdb.NewInserter("transactions", transactionColumns...)
		for _, t := range staged {
			totals[t.GrantCode] = totals[t.GrantCode].Add(t.Amount)
			if countryCodes != nil && !persistCountry[t.CountryCode] {
				continue
			}
			err := inserter.AddRow(ctx, tx, map[string]any{
				"id":                          seq.NextVal(),
				"analysis_id":                 analysis.ID,
				"date":                        t.Date,
				"country_code":                t.CountryCode,
				"grant_code":                  t.GrantCode,
				"budget_line_code":            t.BudgetLineCode,
				"account_code":                t.AccountCode,
				"site_code":                   t.SiteCode,
				"sector_code":                 t.SectorCode,
				"transaction_code":            t.TransactionCode,
				"transaction_description":     t.TransactionDescription,
				"currency_code":               t.CurrencyCode,
				"budget_line_description":     t.BudgetLineDescription,
				"amount_in_instance_currency": t.Amount,
				"amount_in_source_currency":   t.Amount,
				"dummy_field_1":               t.Dummy[0],
				"dummy_field_2":               t.Dummy[1],
				"dummy_field_3":               t.Dummy[2],
				"dummy_field_4":               t.Dummy[3],
				"dummy_field_5":               t.Dummy[4],
			})
			if err != nil {
				return err
			}
			imported++
		}
		_, err := inserter.Close(ctx, tx)
		return err
	})
	if err != nil {
		return 0, err
	}

	for g, sum := range totals {
		totals[g] = sum.Round(4)
	}
	analysis.SetTransactionTotals(totals)
	analysis.Source = DataStoreName
	_, err = tx.Exec(ctx, `
		UPDATE analyses SET source = $1, all_transactions_total_cost = $2, needs_transaction_resync = false
		WHERE id = $3`,
		analysis.Source, analysis.AllTransactionsTotalCost, analysis.ID)
	return imported, err
}

// LoadTransactions imports a headerless transaction file into the analysis.
// The whole file is validated first; nothing is written when any row fails.
func LoadTransactions(ctx context.Context, db bulkdb.Beginner, analysis *models.Analysis, f io.Reader, countryCodes []string) (bool, *Result) {
	rows, err := ReadTable(f)
	if err != nil {
		return false, &Result{Errors: []string{errErrorReadingFile()}}
	}
	fixGrantColumn(rows)
	if errs := validateTransactionFile(rows, analysis); len(errs) > 0 {
		return false, &Result{Errors: errs}
	}

	staged, err := stageTransactionRows(rows, analysis)
	if err != nil {
		return false, &Result{Errors: []string{errImportingTransactions()}}
	}

	imported := 0
	err = bulkdb.Atomic(ctx, db, func(tx pgx.Tx) error {
		imported, err = persistTransactions(ctx, tx, analysis, staged, countryCodes)
		return err
	})
	if err != nil {
		return false, &Result{Errors: []string{errImportingTransactions()}}
	}
	return true, &Result{ImportedCount: imported}
}

// LoadTransactionsFromStore pulls matching rows from the shared transaction
// store and imports them the same way a file upload would.
func LoadTransactionsFromStore(ctx context.Context, db bulkdb.Beginner, store bulkdb.DB, analysis *models.Analysis, countryCodes []string) (bool, *Result) {
	staged, err := fetchStoreTransactions(ctx, store, analysis)
	if err != nil {
		return false, &Result{Errors: []string{errImportingTransactions()}}
	}

	imported := 0
	err = bulkdb.Atomic(ctx, db, func(tx pgx.Tx) error {
		imported, err = persistTransactions(ctx, tx, analysis, staged, countryCodes)
		return err
	})
	if err != nil {
		return false, &Result{Errors: []string{errImportingTransactions()}}
	}
	return true, &Result{ImportedCount: imported}
}

func fetchStoreTransactions(ctx context.Context, store bulkdb.DB, analysis *models.Analysis) ([]*stagedTransaction, error) {
	grants := make([]string, 0)
	for _, g := range analysis.GrantsList() {
		grants = append(grants, strings.ToUpper(g))
	}
	rows, err := store.Query(ctx, `
		SELECT transaction_date, country_code, grant_code, budget_line_code, account_code,
		       site_code, sector_code, transaction_code, transaction_description,
		       currency_code, budget_line_description, amount,
		       dummy_field_1, dummy_field_2, dummy_field_3, dummy_field_4, dummy_field_5
		FROM transactions
		WHERE upper(grant_code) = ANY ($1)
		  AND transaction_date BETWEEN SYMMETRIC $2 AND $3`,
		grants, analysis.StartDate, analysis.EndDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var staged []*stagedTransaction
	for rows.Next() {
		t := &stagedTransaction{}
		err := rows.Scan(
			&t.Date, &t.CountryCode, &t.GrantCode, &t.BudgetLineCode, &t.AccountCode,
			&t.SiteCode, &t.SectorCode, &t.TransactionCode, &t.TransactionDescription,
			&t.CurrencyCode, &t.BudgetLineDescription, &t.Amount,
			&t.Dummy[0], &t.Dummy[1], &t.Dummy[2], &t.Dummy[3], &t.Dummy[4],
		)
		if err != nil {
			return nil, err
		}
		t.GrantCode = strings.ToUpper(t.GrantCode)
		staged = append(staged, t)
	}
	return staged, rows.Err()
}
