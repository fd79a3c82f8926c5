package importing

import (
	"context"
	"io"

	"github.com/jackc/pgx/v5"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// mappingColumn describes one header of the categorization mapping upload.
type mappingColumn struct {
	name        string
	displayName string
	numeric     bool
	boolean     bool
	lengthCheck bool
}

var mappingColumns = []mappingColumn{
	{name: "country_code", displayName: "Country code", lengthCheck: true},
	{name: "grant_code", displayName: "Grant code", numeric: true, lengthCheck: true},
	{name: "budget_line_code", displayName: "Budget line code", numeric: true, lengthCheck: true},
	{name: "account_code", displayName: "Account Code", numeric: true, lengthCheck: true},
	{name: "account_code_description", displayName: "Account Code Description", lengthCheck: true},
	{name: "site_code", displayName: "Site code", numeric: true, lengthCheck: true},
	{name: "sector_code", displayName: "Sector code", numeric: true, lengthCheck: true},
	{name: "budget_line_description", displayName: "Budget line description", numeric: true, lengthCheck: true},
	{name: "category", displayName: "Category"},
	{name: "cost_type", displayName: "Cost type"},
	{name: "sensitive_data?", displayName: "Sensitive Data?", boolean: true},
}

// parsedMapping is one validated mapping row plus its account code
// description side.
type parsedMapping struct {
	fields             map[string]string
	costTypeID         *int64
	categoryID         *int64
	accountCode        string
	accountDescription string
	sensitiveData      bool
}

// mappingParser accumulates rows and cross-row consistency state.
type mappingParser struct {
	costTypes  map[string]*models.CostType
	categories map[string]*models.Category

	rows     []*parsedMapping
	accounts map[string]*models.AccountCodeDescription
	errors   []string
}

func newMappingParser(costTypes map[string]*models.CostType, categories map[string]*models.Category) *mappingParser {
	return &mappingParser{
		costTypes:  costTypes,
		categories: categories,
		accounts:   map[string]*models.AccountCodeDescription{},
	}
}

func (p *mappingParser) parseRow(rowNum int, record map[string]string) {
	if record["category"] == "" && record["cost_type"] == "" && record["account_code_description"] == "" {
		p.errors = append(p.errors, errMissingData(rowNum+1,
			[]string{"Category", "Cost type", "Account Code Description"}))
	}

	row := &parsedMapping{fields: map[string]string{}}
	for _, col := range mappingColumns {
		value := record[col.name]
		if value != "" && col.numeric {
			value = NumericString(value)
		}
		if col.lengthCheck && len(value) > 255 {
			p.errors = append(p.errors, errValueTooLong(rowNum+1, col.displayName, 255))
		}
		switch col.name {
		case "cost_type":
			if value != "" {
				ct, ok := p.costTypes[value]
				if !ok {
					p.errors = append(p.errors, errInvalidRowColumn(rowNum+1, col.displayName, value, "Invalid Cost Type"))
				} else {
					row.costTypeID = &ct.ID
				}
			}
		case "category":
			if value != "" {
				c, ok := p.categories[value]
				if !ok {
					p.errors = append(p.errors, errInvalidRowColumn(rowNum+1, col.displayName, value, "Invalid Category"))
				} else {
					row.categoryID = &c.ID
				}
			}
		case "account_code_description":
			row.accountDescription = value
		case "sensitive_data?":
			sensitive, err := Boolean(value)
			if err != nil {
				p.errors = append(p.errors, errInvalidRowColumn(rowNum+1, col.displayName, value, ""))
			}
			row.sensitiveData = sensitive
		case "account_code":
			row.accountCode = value
			row.fields[col.name] = value
		default:
			row.fields[col.name] = value
		}
	}

	if seen, ok := p.accounts[row.accountCode]; ok {
		if seen.AccountDescription != row.accountDescription || seen.SensitiveData != row.sensitiveData {
			p.errors = append(p.errors, errInconsistentAccountCodeDescription(row.accountCode))
		}
	} else {
		p.accounts[row.accountCode] = &models.AccountCodeDescription{
			AccountCode:        row.accountCode,
			AccountDescription: row.accountDescription,
			SensitiveData:      row.sensitiveData,
		}
	}
	p.rows = append(p.rows, row)
}

var mappingTableColumns = []string{
	"id", "country_code", "grant_code", "budget_line_code", "account_code",
	"site_code", "sector_code", "budget_line_description", "cost_type_id", "category_id",
}

// LoadMappings replaces the global categorization rule set from an upload.
// The account code description table is upserted alongside; any error rolls
// the whole import back.
func LoadMappings(ctx context.Context, db bulkdb.Beginner, costTypes map[string]*models.CostType, categories map[string]*models.Category, f io.Reader) (bool, *Result) {
	records, _, err := ReadRecords(f)
	if err != nil {
		return false, &Result{Errors: []string{errErrorReadingFile()}}
	}
	if len(records) == 0 {
		return false, &Result{Errors: []string{errFileEmpty()}}
	}
	if len(records) > CostLineItemRowLimit {
		return false, &Result{Errors: []string{errFileTooLarge()}}
	}

	parser := newMappingParser(costTypes, categories)
	for rowNum, record := range records {
		parser.parseRow(rowNum, record)
	}
	if len(parser.errors) > 0 {
		return false, &Result{Errors: parser.errors}
	}

	imported := 0
	err = bulkdb.Atomic(ctx, db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM cost_type_category_mappings"); err != nil {
			return err
		}
		err := bulkdb.WithSequenceLock(ctx, tx, "cost_type_category_mappings", func(seq *bulkdb.Sequence) error {
			inserter := bulkdb.NewInserter("cost_type_category_mappings", mappingTableColumns...)
			for _, row := range parser.rows {
				err := inserter.AddRow(ctx, tx, map[string]any{
					"id":                      seq.NextVal(),
					"country_code":            row.fields["country_code"],
					"grant_code":              row.fields["grant_code"],
					"budget_line_code":        row.fields["budget_line_code"],
					"account_code":            row.accountCode,
					"site_code":               row.fields["site_code"],
					"sector_code":             row.fields["sector_code"],
					"budget_line_description": row.fields["budget_line_description"],
					"cost_type_id":            row.costTypeID,
					"category_id":             row.categoryID,
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
			return err
		}

		accounts := make([]map[string]any, 0, len(parser.accounts))
		for _, acd := range parser.accounts {
			accounts = append(accounts, map[string]any{
				"account_code":        acd.AccountCode,
				"account_description": acd.AccountDescription,
				"sensitive_data":      acd.SensitiveData,
			})
		}
		return bulkdb.UpsertMaps(ctx, tx, "account_code_descriptions", accounts,
			bulkdb.Conflict{Columns: []string{"account_code"}},
			[]string{"account_description", "sensitive_data"})
	})
	if err != nil {
		return false, &Result{Errors: []string{errErrorReadingFile()}}
	}
	return true, &Result{ImportedCount: imported}
}
