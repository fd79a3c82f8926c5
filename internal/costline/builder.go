// Package costline derives grouped cost line items from imported
// transactions and keeps the analysis's derived classification tables in
// step with them.
package costline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// groupKey identifies one CLI group. Special lump sum rows collapse to the
// (country, grant) pair.
type groupKey struct {
	special bool
	fields  [6]string
}

var cliInsertColumns = []string{
	"id", "analysis_id", "country_code", "grant_code", "budget_line_code", "account_code",
	"site_code", "sector_code", "budget_line_description", "total_cost", "is_special_lump_sum",
}

// minimumTotal is the suppression threshold: groups that net out to less
// than a cent are noise from offsetting corrections.
var minimumTotal = decimal.RequireFromString("0.01")

// Builder groups transactions of one analysis into cost line items.
type Builder struct {
	Analysis  *models.Analysis
	Country   *models.Country            // the analysis country, may be nil
	Countries map[string]*models.Country // lookup by code
	// FilterEnabled routes out-of-country transactions into special lump
	// sum rows instead of 6-field groups.
	FilterEnabled bool
}

func (b *Builder) keyFor(t *models.Transaction) groupKey {
	if b.isForeign(t) {
		return groupKey{special: true, fields: [6]string{t.CountryCode, t.GrantCode}}
	}
	return groupKey{fields: [6]string{
		t.CountryCode, t.GrantCode, t.BudgetLineCode,
		t.AccountCode, t.SiteCode, t.SectorCode,
	}}
}

func (b *Builder) isForeign(t *models.Transaction) bool {
	if !b.FilterEnabled || b.Country == nil || t.CountryCode == b.Country.Code {
		return false
	}
	if c, ok := b.Countries[t.CountryCode]; ok && c.AlwaysIncludeCosts {
		return false
	}
	return true
}

func (b *Builder) countryDisplayName(code string) string {
	if c, ok := b.Countries[code]; ok {
		return c.Name
	}
	return code
}

type pendingCLI struct {
	id    int64
	key   groupKey
	row   map[string]any
	total decimal.Decimal
}

// Build creates one CLI per distinct group key and links each transaction to
// its CLI. It must run inside a transaction: primary keys are assigned under
// the CLI table's sequence lock so the staging pairs can be written before
// the rows exist.
func (b *Builder) Build(ctx context.Context, tx pgx.Tx, txns []*models.Transaction) error {
	var pending []*pendingCLI
	byKey := map[groupKey]*pendingCLI{}
	staging := make([][2]int64, 0, len(txns))

	err := bulkdb.WithSequenceLock(ctx, tx, "cost_line_items", func(seq *bulkdb.Sequence) error {
		for _, t := range txns {
			key := b.keyFor(t)
			cli, ok := byKey[key]
			if !ok {
				cli = &pendingCLI{id: seq.NextVal(), key: key, row: b.newRow(key, t)}
				cli.row["id"] = cli.id
				byKey[key] = cli
				pending = append(pending, cli)
			}
			cli.total = cli.total.Add(t.AmountInInstanceCurrency)
			staging = append(staging, [2]int64{t.ID, cli.id})
		}

		dropped := map[int64]bool{}
		inserter := bulkdb.NewInserter("cost_line_items", cliInsertColumns...)
		for _, cli := range pending {
			if cli.total.Abs().LessThan(minimumTotal) {
				dropped[cli.id] = true
				continue
			}
			cli.row["total_cost"] = cli.total
			if err := inserter.AddRow(ctx, tx, cli.row); err != nil {
				return err
			}
		}
		if _, err := inserter.Close(ctx, tx); err != nil {
			return err
		}

		if len(dropped) > 0 {
			kept := staging[:0]
			for _, pair := range staging {
				if !dropped[pair[1]] {
					kept = append(kept, pair)
				}
			}
			staging = kept
		}
		return nil
	})
	if err != nil {
		return err
	}

	return b.linkTransactions(ctx, tx, staging)
}

func (b *Builder) newRow(key groupKey, t *models.Transaction) map[string]any {
	row := map[string]any{
		"analysis_id":         b.Analysis.ID,
		"is_special_lump_sum": key.special,
		"total_cost":          decimal.Zero,
	}
	if key.special {
		row["country_code"] = key.fields[0]
		row["grant_code"] = key.fields[1]
		row["budget_line_code"] = ""
		row["account_code"] = ""
		row["site_code"] = ""
		row["sector_code"] = ""
		row["budget_line_description"] = b.countryDisplayName(key.fields[0])
	} else {
		row["country_code"] = key.fields[0]
		row["grant_code"] = key.fields[1]
		row["budget_line_code"] = key.fields[2]
		row["account_code"] = key.fields[3]
		row["site_code"] = key.fields[4]
		row["sector_code"] = key.fields[5]
		// first transaction of the group names the line
		row["budget_line_description"] = t.BudgetLineDescription
	}
	return row
}

// linkTransactions writes the (transaction, cli) pairs through a temp table
// and joins them back in one UPDATE. Transactions that did not land in any
// surviving CLI are removed.
func (b *Builder) linkTransactions(ctx context.Context, tx pgx.Tx, staging [][2]int64) error {
	table := "transaction_cli_staging_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (t bigint, c bigint) ON COMMIT DROP", table)); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE INDEX ON %s (t)", table)); err != nil {
		return err
	}

	inserter := bulkdb.NewInserter(table, "t", "c")
	for _, pair := range staging {
		if err := inserter.AddRow(ctx, tx, map[string]any{"t": pair[0], "c": pair[1]}); err != nil {
			return err
		}
	}
	if _, err := inserter.Close(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE transactions SET cost_line_item_id = s.c
		FROM %s s WHERE transactions.id = s.t`, table)); err != nil {
		return err
	}
	_, err := tx.Exec(ctx,
		"DELETE FROM transactions WHERE analysis_id = $1 AND cost_line_item_id IS NULL",
		b.Analysis.ID)
	return err
}
