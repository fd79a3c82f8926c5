package models

import (
	"context"
	"sort"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
)

// Country is a lookup row. always_include_costs exempts a country from the
// transaction country filter.
type Country struct {
	ID                 int64
	Name               string
	Code               string
	RegionID           *int64
	IsDefault          bool
	AlwaysIncludeCosts bool
}

// Region groups countries for reporting.
type Region struct {
	ID         int64
	Name       string
	RegionCode string
}

// GetCountry loads one country by id.
func GetCountry(ctx context.Context, db bulkdb.DB, id int64) (*Country, error) {
	c := &Country{}
	err := db.QueryRow(ctx,
		"SELECT id, name, code, region_id, is_default, always_include_costs FROM countries WHERE id = $1", id).
		Scan(&c.ID, &c.Name, &c.Code, &c.RegionID, &c.IsDefault, &c.AlwaysIncludeCosts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetCountriesByCode maps country codes to rows.
func GetCountriesByCode(ctx context.Context, db bulkdb.DB) (map[string]*Country, error) {
	rows, err := db.Query(ctx,
		"SELECT id, name, code, region_id, is_default, always_include_costs FROM countries")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]*Country{}
	for rows.Next() {
		c := &Country{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.RegionID, &c.IsDefault, &c.AlwaysIncludeCosts); err != nil {
			return nil, err
		}
		out[c.Code] = c
	}
	return out, rows.Err()
}

// AnalysisCountryCodes returns the codes whose transactions an analysis
// keeps: its own country plus every always-include country. Returns nil
// when country filtering is off, meaning no filter at all.
func AnalysisCountryCodes(settings *Settings, country *Country, countries map[string]*Country) []string {
	if !settings.CountryFilteringEnabled() || country == nil {
		return nil
	}
	codes := []string{country.Code}
	for code, c := range countries {
		if c.AlwaysIncludeCosts && code != country.Code {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// AccountCodeDescription labels an account code; sensitive codes are hidden
// from cost listings.
type AccountCodeDescription struct {
	ID                 int64
	AccountCode        string
	AccountDescription string
	SensitiveData      bool
}

// GetAccountCodeDescriptions maps account codes to their description rows.
func GetAccountCodeDescriptions(ctx context.Context, db bulkdb.DB) (map[string]*AccountCodeDescription, error) {
	rows, err := db.Query(ctx,
		"SELECT id, account_code, account_description, sensitive_data FROM account_code_descriptions")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]*AccountCodeDescription{}
	for rows.Next() {
		a := &AccountCodeDescription{}
		if err := rows.Scan(&a.ID, &a.AccountCode, &a.AccountDescription, &a.SensitiveData); err != nil {
			return nil, err
		}
		out[a.AccountCode] = a
	}
	return out, rows.Err()
}

// Settings is the singleton instance configuration row.
type Settings struct {
	TransactionCountryFilter bool
	ShowTransactions         bool
	PaginateBy               int
}

// GetSettings loads the settings row, falling back to defaults when the row
// does not exist yet.
func GetSettings(ctx context.Context, db bulkdb.DB) (*Settings, error) {
	s := &Settings{PaginateBy: 50}
	err := db.QueryRow(ctx,
		"SELECT transaction_country_filter, show_transactions, paginate_by FROM settings LIMIT 1").
		Scan(&s.TransactionCountryFilter, &s.ShowTransactions, &s.PaginateBy)
	if err != nil {
		return &Settings{PaginateBy: 50}, nil
	}
	return s, nil
}

// CountryFilteringEnabled gates the special lump sum path of the CLI builder.
func (s *Settings) CountryFilteringEnabled() bool {
	return s.TransactionCountryFilter
}
