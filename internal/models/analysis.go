package models

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
)

// Analysis is the root aggregate of one cost-efficiency study.
type Analysis struct {
	ID                       int64
	Title                    string
	Description              string
	StartDate                time.Time
	EndDate                  time.Time
	CountryID                *int64
	Grants                   string // comma separated grant codes
	CurrencyCode             string
	Owner                    string
	OtherHQCosts             bool
	InKindContributions      bool
	ClientTime               bool
	NeedsTransactionResync   bool
	Source                   string
	AllTransactionsTotalCost string // per-grant totals, aligned with Grants
	OutputCosts              map[string]map[string]OutputCost
	ClonedFromID             *int64
}

// OutputCost is the cached result bucket for one (instance, metric) pair.
type OutputCost struct {
	All        float64 `json:"all"`
	DirectOnly float64 `json:"direct_only"`
	InKind     float64 `json:"in_kind"`
	Client     float64 `json:"client"`
}

// GrantsList splits the comma-separated grants field, trimming whitespace.
func (a *Analysis) GrantsList() []string {
	if strings.TrimSpace(a.Grants) == "" {
		return nil
	}
	parts := strings.Split(a.Grants, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if g := strings.TrimSpace(p); g != "" {
			out = append(out, g)
		}
	}
	return out
}

const analysisColumns = `id, title, description, start_date, end_date, country_id, grants,
	currency_code, owner, other_hq_costs, in_kind_contributions, client_time,
	needs_transaction_resync, source, all_transactions_total_cost, output_costs, cloned_from_id`

// GetAnalysis loads one analysis by id.
func GetAnalysis(ctx context.Context, db bulkdb.DB, id int64) (*Analysis, error) {
	row := db.QueryRow(ctx, "SELECT "+analysisColumns+" FROM analyses WHERE id = $1", id)
	return scanAnalysis(row)
}

func scanAnalysis(row interface{ Scan(...any) error }) (*Analysis, error) {
	a := &Analysis{}
	err := row.Scan(
		&a.ID, &a.Title, &a.Description, &a.StartDate, &a.EndDate, &a.CountryID, &a.Grants,
		&a.CurrencyCode, &a.Owner, &a.OtherHQCosts, &a.InKindContributions, &a.ClientTime,
		&a.NeedsTransactionResync, &a.Source, &a.AllTransactionsTotalCost, &a.OutputCosts,
		&a.ClonedFromID,
	)
	if err != nil {
		return nil, err
	}
	if a.OutputCosts == nil {
		a.OutputCosts = map[string]map[string]OutputCost{}
	}
	return a, nil
}

// SaveOutputCosts persists the cached output cost map.
func (a *Analysis) SaveOutputCosts(ctx context.Context, db bulkdb.DB) error {
	_, err := db.Exec(ctx,
		"UPDATE analyses SET output_costs = $1 WHERE id = $2", a.OutputCosts, a.ID)
	return err
}

// SetTransactionTotals stores per-grant transaction totals aligned with the
// grants list.
func (a *Analysis) SetTransactionTotals(totals map[string]decimal.Decimal) {
	grants := a.GrantsList()
	parts := make([]string, len(grants))
	for i, g := range grants {
		parts[i] = totals[g].String()
	}
	a.AllTransactionsTotalCost = strings.Join(parts, ",")
}

// Transaction is one imported financial transaction row.
type Transaction struct {
	ID                       int64
	AnalysisID               int64
	CostLineItemID           *int64
	Date                     time.Time
	CountryCode              string
	GrantCode                string
	BudgetLineCode           string
	AccountCode              string
	SiteCode                 string
	SectorCode               string
	TransactionCode          string
	TransactionDescription   string
	CurrencyCode             string
	BudgetLineDescription    string
	AmountInInstanceCurrency decimal.Decimal
	AmountInSourceCurrency   decimal.Decimal
	DummyField1              string
	DummyField2              string
	DummyField3              string
	DummyField4              string
	DummyField5              string
	ClonedFromID             *int64
}
