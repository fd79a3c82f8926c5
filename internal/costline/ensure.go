package costline

import (
	"context"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// EnsureCostTypeCategoryObjects reconciles the derived
// analysis_cost_type_categories table with the (cost type, category) pairs
// the analysis's configured CLIs actually use: missing pairs are inserted
// unconfirmed, stale pairs are deleted (grant rows cascade). It then
// reconciles the grant level.
func EnsureCostTypeCategoryObjects(ctx context.Context, db bulkdb.DB, analysis *models.Analysis) error {
	type pair struct {
		costType *int64
		category *int64
	}

	rows, err := db.Query(ctx, `
		SELECT DISTINCT cfg.cost_type_id, cfg.category_id
		FROM cost_line_item_configs cfg
		JOIN cost_line_items cli ON cli.id = cfg.cost_line_item_id
		LEFT JOIN cost_types ct ON ct.id = cfg.cost_type_id
		LEFT JOIN categories cat ON cat.id = cfg.category_id
		WHERE cli.analysis_id = $1 AND cfg.analysis_cost_type = 0
		  AND (cfg.cost_type_id IS NOT NULL OR cfg.category_id IS NOT NULL)`,
		analysis.ID)
	if err != nil {
		return err
	}
	var used []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.costType, &p.category); err != nil {
			rows.Close()
			return err
		}
		used = append(used, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	existing, err := models.GetCostTypeCategories(ctx, db, analysis.ID)
	if err != nil {
		return err
	}

	keyOf := func(ct, cat *int64) [2]int64 {
		k := [2]int64{-1, -1}
		if ct != nil {
			k[0] = *ct
		}
		if cat != nil {
			k[1] = *cat
		}
		return k
	}

	usedKeys := map[[2]int64]pair{}
	for _, p := range used {
		usedKeys[keyOf(p.costType, p.category)] = p
	}
	existingKeys := map[[2]int64]*models.AnalysisCostTypeCategory{}
	var staleIDs []int64
	for _, ctc := range existing {
		k := keyOf(ctc.CostTypeID, ctc.CategoryID)
		if _, ok := usedKeys[k]; !ok {
			staleIDs = append(staleIDs, ctc.ID)
			continue
		}
		existingKeys[k] = ctc
	}

	var toCreate []map[string]any
	for k, p := range usedKeys {
		if _, ok := existingKeys[k]; !ok {
			toCreate = append(toCreate, map[string]any{
				"analysis_id":  analysis.ID,
				"cost_type_id": p.costType,
				"category_id":  p.category,
				"confirmed":    false,
			})
		}
	}

	if len(staleIDs) > 0 {
		if _, err := db.Exec(ctx,
			"DELETE FROM analysis_cost_type_categories WHERE id = ANY($1)", staleIDs); err != nil {
			return err
		}
	}
	if err := bulkdb.UpsertMaps(ctx, db, "analysis_cost_type_categories", toCreate,
		bulkdb.Conflict{Columns: []string{"analysis_id", "cost_type_id", "category_id"}}, nil); err != nil {
		return err
	}

	return ensureGrantObjects(ctx, db, analysis)
}

// ensureGrantObjects materializes one grant row per (pair, grant) with a
// matching CLI, plus one intervention edge per instance under each new grant
// row. Grant rows whose CLIs disappeared are removed.
func ensureGrantObjects(ctx context.Context, db bulkdb.DB, analysis *models.Analysis) error {
	pairs, err := models.GetCostTypeCategories(ctx, db, analysis.ID)
	if err != nil {
		return err
	}
	instances, err := models.GetInterventionInstances(ctx, db, analysis.ID)
	if err != nil {
		return err
	}

	// which grants have a CLI under each pair
	rows, err := db.Query(ctx, `
		SELECT DISTINCT cfg.cost_type_id, cfg.category_id, cli.grant_code
		FROM cost_line_item_configs cfg
		JOIN cost_line_items cli ON cli.id = cfg.cost_line_item_id
		WHERE cli.analysis_id = $1 AND cfg.analysis_cost_type = 0`, analysis.ID)
	if err != nil {
		return err
	}
	type pairGrant struct {
		key   [2]int64
		grant string
	}
	usedGrants := map[pairGrant]bool{}
	for rows.Next() {
		var ct, cat *int64
		var grant string
		if err := rows.Scan(&ct, &cat, &grant); err != nil {
			rows.Close()
			return err
		}
		k := [2]int64{-1, -1}
		if ct != nil {
			k[0] = *ct
		}
		if cat != nil {
			k[1] = *cat
		}
		usedGrants[pairGrant{key: k, grant: grant}] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	grants := analysis.GrantsList()
	existing, err := models.GetCostTypeCategoryGrants(ctx, db, analysis.ID)
	if err != nil {
		return err
	}
	pairByID := map[int64]*models.AnalysisCostTypeCategory{}
	for _, p := range pairs {
		pairByID[p.ID] = p
	}
	keyOfPair := func(p *models.AnalysisCostTypeCategory) [2]int64 {
		k := [2]int64{-1, -1}
		if p.CostTypeID != nil {
			k[0] = *p.CostTypeID
		}
		if p.CategoryID != nil {
			k[1] = *p.CategoryID
		}
		return k
	}

	type cell struct {
		pairID int64
		grant  string
	}
	existingCells := map[cell]*models.AnalysisCostTypeCategoryGrant{}
	var staleIDs []int64
	for _, g := range existing {
		p, ok := pairByID[g.CostTypeCategoryID]
		if !ok || !usedGrants[pairGrant{key: keyOfPair(p), grant: g.Grant}] {
			staleIDs = append(staleIDs, g.ID)
			continue
		}
		existingCells[cell{pairID: g.CostTypeCategoryID, grant: g.Grant}] = g
	}
	if len(staleIDs) > 0 {
		if _, err := db.Exec(ctx,
			"DELETE FROM analysis_cost_type_category_grants WHERE id = ANY($1)", staleIDs); err != nil {
			return err
		}
	}

	for _, p := range pairs {
		for _, grant := range grants {
			if !usedGrants[pairGrant{key: keyOfPair(p), grant: grant}] {
				continue
			}
			if _, ok := existingCells[cell{pairID: p.ID, grant: grant}]; ok {
				continue
			}
			var grantID int64
			err := db.QueryRow(ctx, `
				INSERT INTO analysis_cost_type_category_grants (cost_type_category_id, grant_code)
				VALUES ($1, $2) RETURNING id`, p.ID, grant).Scan(&grantID)
			if err != nil {
				return err
			}
			var edges []map[string]any
			for _, inst := range instances {
				edges = append(edges, map[string]any{
					"cost_type_grant_id":       grantID,
					"intervention_instance_id": inst.ID,
				})
			}
			err = bulkdb.UpsertMaps(ctx, db, "analysis_cost_type_category_grant_interventions", edges,
				bulkdb.Conflict{Columns: []string{"cost_type_grant_id", "intervention_instance_id"}}, nil)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
