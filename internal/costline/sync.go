package costline

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// Sync re-derives CLI totals from the analysis's current transactions,
// reusing existing CLIs where the group key still matches. Used after the
// date range or grants change and the transaction set was re-filtered.
// User-added other-cost rows are left alone: they have no transactions.
func (b *Builder) Sync(ctx context.Context, tx pgx.Tx) error {
	existing, err := models.GetCostLineItems(ctx, tx, b.Analysis.ID)
	if err != nil {
		return err
	}

	order, byKey := reusableCLIs(existing)

	txns, err := loadTransactions(ctx, tx, b.Analysis.ID)
	if err != nil {
		return err
	}

	// Nothing to reconcile against: the first derivation builds from scratch
	// and links each transaction to its group directly.
	if len(order) == 0 {
		return b.Build(ctx, tx, txns)
	}

	var created []*pendingCLI
	err = bulkdb.WithSequenceLock(ctx, tx, "cost_line_items", func(seq *bulkdb.Sequence) error {
		for _, t := range txns {
			key := b.keyFor(t)
			cli, ok := byKey[key]
			if !ok {
				cli = &pendingCLI{id: seq.NextVal(), key: key, row: b.newRow(key, t)}
				cli.row["id"] = cli.id
				byKey[key] = cli
				created = append(created, cli)
			}
			cli.total = cli.total.Add(t.AmountInInstanceCurrency)
		}

		// existing CLIs whose re-accumulated total vanished get removed
		var deadIDs []int64
		for _, cli := range order {
			if cli.total.Abs().LessThan(minimumTotal) {
				deadIDs = append(deadIDs, cli.id)
			}
		}
		if len(deadIDs) > 0 {
			if _, err := tx.Exec(ctx,
				"DELETE FROM cost_line_items WHERE id = ANY($1)", deadIDs); err != nil {
				return err
			}
		}

		inserter := bulkdb.NewInserter("cost_line_items", cliInsertColumns...)
		for _, cli := range created {
			if cli.total.Abs().LessThan(minimumTotal) {
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

		var updates []map[string]any
		for _, cli := range order {
			if cli.total.Abs().LessThan(minimumTotal) {
				continue
			}
			updates = append(updates, map[string]any{"id": cli.id, "total_cost": cli.total})
		}
		return bulkdb.UpdateMaps(ctx, tx, "cost_line_items", updates, nil)
	})
	if err != nil {
		return err
	}

	return b.relinkTransactions(ctx, tx)
}

// reusableCLIs indexes the analysis's imported CLIs by group key. User-added
// other-cost rows are excluded, they have no transactions to reconcile.
func reusableCLIs(existing []*models.CostLineItem) ([]*pendingCLI, map[groupKey]*pendingCLI) {
	byKey := map[groupKey]*pendingCLI{}
	var order []*pendingCLI
	for _, cli := range existing {
		if cli.Config != nil && cli.Config.AnalysisCostType != models.AnalysisCostNone {
			continue
		}
		p := &pendingCLI{id: cli.ID, key: groupKey{special: cli.IsSpecialLumpSum}}
		if cli.IsSpecialLumpSum {
			p.key.fields = [6]string{cli.CountryCode, cli.GrantCode}
		} else {
			p.key.fields = [6]string{
				cli.CountryCode, cli.GrantCode, cli.BudgetLineCode,
				cli.AccountCode, cli.SiteCode, cli.SectorCode,
			}
		}
		byKey[p.key] = p
		order = append(order, p)
	}
	return order, byKey
}

// relinkTransactions rebinds every transaction to the CLI matching its group
// key, then drops transactions that no longer belong to any CLI.
func (b *Builder) relinkTransactions(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, `
		UPDATE transactions t SET cost_line_item_id = c.id
		FROM cost_line_items c
		WHERE t.analysis_id = $1 AND c.analysis_id = $1
		  AND (
		    (NOT c.is_special_lump_sum
		     AND t.country_code = c.country_code AND t.grant_code = c.grant_code
		     AND t.budget_line_code = c.budget_line_code AND t.account_code = c.account_code
		     AND t.site_code = c.site_code AND t.sector_code = c.sector_code)
		    OR
		    (c.is_special_lump_sum
		     AND t.country_code = c.country_code AND t.grant_code = c.grant_code)
		  )`, b.Analysis.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM transactions t
		WHERE t.analysis_id = $1 AND NOT EXISTS (
			SELECT 1 FROM cost_line_items c WHERE c.id = t.cost_line_item_id)`,
		b.Analysis.ID); err != nil {
		return err
	}
	return nil
}

func loadTransactions(ctx context.Context, db bulkdb.DB, analysisID int64) ([]*models.Transaction, error) {
	rows, err := db.Query(ctx, `
		SELECT id, analysis_id, country_code, grant_code, budget_line_code, account_code,
		       site_code, sector_code, budget_line_description, amount_in_instance_currency
		FROM transactions WHERE analysis_id = $1 ORDER BY id`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Transaction
	for rows.Next() {
		t := &models.Transaction{}
		var amount decimal.Decimal
		err := rows.Scan(&t.ID, &t.AnalysisID, &t.CountryCode, &t.GrantCode, &t.BudgetLineCode,
			&t.AccountCode, &t.SiteCode, &t.SectorCode, &t.BudgetLineDescription, &amount)
		if err != nil {
			return nil, err
		}
		t.AmountInInstanceCurrency = amount
		out = append(out, t)
	}
	return out, rows.Err()
}
