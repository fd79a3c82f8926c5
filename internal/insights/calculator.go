// Package insights computes the cached cost-efficiency results of an
// analysis and shapes them for the charts and tables of the insights page.
package insights

import (
	"context"
	"math"
	"strconv"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

// bucket selects which CLIs contribute to one cost output sum.
type bucket int

const (
	bucketAll bucket = iota
	bucketDirectOnly
	bucketInKind
	bucketClient
)

func (b bucket) includes(cli *models.CostLineItem, typeByID map[int64]*models.CostType) bool {
	cfg := cli.Config
	if cfg == nil {
		return false
	}
	switch b {
	case bucketAll:
		return cfg.AnalysisCostType != models.AnalysisCostClientTime &&
			cfg.AnalysisCostType != models.AnalysisCostInKind
	case bucketDirectOnly:
		if cfg.AnalysisCostType == models.AnalysisCostClientTime ||
			cfg.AnalysisCostType == models.AnalysisCostInKind {
			return false
		}
		if cfg.CostTypeID == nil {
			return false
		}
		ct := typeByID[*cfg.CostTypeID]
		return ct != nil && ct.Type == models.TypeProgramCost
	case bucketInKind:
		return cfg.AnalysisCostType == models.AnalysisCostInKind
	case bucketClient:
		return cfg.AnalysisCostType == models.AnalysisCostClientTime
	}
	return false
}

// costOutputSum is total_cost x allocation% summed over the bucket's CLIs
// for one intervention instance.
func costOutputSum(items []*models.CostLineItem, typeByID map[int64]*models.CostType, b bucket, instanceID int64) float64 {
	sum := 0.0
	for _, cli := range items {
		if !b.includes(cli, typeByID) {
			continue
		}
		a := cli.Config.AllocationFor(instanceID)
		if a == nil {
			continue
		}
		total, _ := cli.TotalCost.Float64()
		pct, _ := a.Float64()
		sum += total * pct / 100
	}
	return sum
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// CalculateOutputCosts recomputes Analysis.OutputCosts from the current
// allocations and persists it. A metric that fails to calculate (stale
// parameter keys after an intervention edit) is simply left out.
func CalculateOutputCosts(ctx context.Context, db bulkdb.DB, analysis *models.Analysis) error {
	costTypes, err := models.GetCostTypes(ctx, db)
	if err != nil {
		return err
	}
	typeByID := map[int64]*models.CostType{}
	for _, ct := range costTypes {
		typeByID[ct.ID] = ct
	}
	items, err := models.GetCostLineItems(ctx, db, analysis.ID)
	if err != nil {
		return err
	}
	instances, err := models.GetInterventionInstances(ctx, db, analysis.ID)
	if err != nil {
		return err
	}

	analysis.OutputCosts = map[string]map[string]models.OutputCost{}
	for _, inst := range instances {
		key := strconv.FormatInt(inst.ID, 10)
		analysis.OutputCosts[key] = map[string]models.OutputCost{}

		sumAll := costOutputSum(items, typeByID, bucketAll, inst.ID)
		sumDirect := costOutputSum(items, typeByID, bucketDirectOnly, inst.ID)
		sumInKind := 0.0
		if analysis.InKindContributions {
			sumInKind = costOutputSum(items, typeByID, bucketInKind, inst.ID)
		}
		sumClient := 0.0
		if analysis.ClientTime {
			sumClient = costOutputSum(items, typeByID, bucketClient, inst.ID)
		}

		metrics, err := inst.Intervention.OutputMetricObjects()
		if err != nil {
			continue
		}
		for _, m := range metrics {
			all, err := m.Calculate(sumAll, inst.Parameters)
			if err != nil {
				continue
			}
			direct, err := m.Calculate(sumDirect, inst.Parameters)
			if err != nil {
				continue
			}
			inKind, err := m.Calculate(sumInKind, inst.Parameters)
			if err != nil {
				continue
			}
			analysis.OutputCosts[key][m.ID] = models.OutputCost{
				All:        round2(all),
				DirectOnly: round2(direct),
				InKind:     round2(inKind),
				Client:     math.Round(sumClient),
			}
		}
	}
	return analysis.SaveOutputCosts(ctx, db)
}

// CalculationsDone reports whether OutputCosts covers every intervention
// instance's first metric. Partial maps are treated as stale.
func CalculationsDone(analysis *models.Analysis, instances []*models.InterventionInstance) bool {
	if len(analysis.OutputCosts) == 0 {
		return false
	}
	byID := map[string]*models.InterventionInstance{}
	for _, inst := range instances {
		byID[strconv.FormatInt(inst.ID, 10)] = inst
	}
	for key, metrics := range analysis.OutputCosts {
		inst, ok := byID[key]
		if !ok {
			return false
		}
		objs, err := inst.Intervention.OutputMetricObjects()
		if err != nil || len(objs) == 0 {
			return false
		}
		if _, ok := metrics[objs[0].ID]; !ok {
			return false
		}
	}
	return true
}
