package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

type fakeDB struct{ execs []string }

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }

func i64(v int64) *int64 { return &v }

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func instance(id int64) *models.InterventionInstance {
	return &models.InterventionInstance{
		ID:           id,
		Intervention: &models.Intervention{OutputMetrics: []string{"NumberOfPeople"}},
		Parameters:   map[string]float64{"number_of_people": 100},
	}
}

func programItem(grant string, allocs map[int64]*decimal.Decimal) *models.CostLineItem {
	cfg := &models.CostLineItemConfig{CostTypeID: i64(1), CategoryID: i64(10)}
	for inst, pct := range allocs {
		cfg.Allocations = append(cfg.Allocations, &models.InterventionAllocation{
			InterventionInstanceID: inst,
			Allocation:             pct,
		})
	}
	return &models.CostLineItem{
		GrantCode: grant,
		TotalCost: decimal.RequireFromString("100"),
		Config:    cfg,
	}
}

// completeState is an analysis carried all the way through allocation, with
// two instances so the single-instance subcomponent steps stay disabled.
func completeState() *State {
	program := &models.CostType{ID: 1, Name: "Program Costs", Type: models.TypeProgramCost}
	return &State{
		Analysis: &models.Analysis{
			ID:        1,
			Title:     "Cash Relief",
			StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
			CountryID: i64(3),
			Grants:    "G1",
			OutputCosts: map[string]map[string]models.OutputCost{
				"7": {"NumberOfPeople": {All: 5, DirectOnly: 5}},
				"8": {"NumberOfPeople": {All: 5, DirectOnly: 5}},
			},
		},
		Instances: []*models.InterventionInstance{instance(7), instance(8)},
		Items: []*models.CostLineItem{
			programItem("G1", map[int64]*decimal.Decimal{7: dec("50"), 8: dec("50")}),
		},
		Pairs: []*models.AnalysisCostTypeCategory{
			{ID: 1, CostTypeID: i64(1), CategoryID: i64(10), Confirmed: true},
		},
		GrantCells: []*models.AnalysisCostTypeCategoryGrant{
			{ID: 1, CostTypeCategoryID: 1, Grant: "G1"},
		},
		CostTypes: []*models.CostType{program},
		TypeByID:  map[int64]*models.CostType{1: program},
	}
}

func TestLandingStepFreshAnalysis(t *testing.T) {
	st := completeState()
	st.Analysis.Title = ""
	w := New(&fakeDB{}, st)

	assert.Equal(t, "define", w.LandingStep().Name())
}

func TestLandingStepAfterDefine(t *testing.T) {
	st := completeState()
	st.Items = nil
	st.Pairs = nil
	st.GrantCells = nil
	w := New(&fakeDB{}, st)

	assert.Equal(t, "load-data", w.LandingStep().Name())
}

func TestLandingStepDescendsIntoSubsteps(t *testing.T) {
	st := completeState()
	st.Pairs[0].Confirmed = false
	w := New(&fakeDB{}, st)

	landing := w.LandingStep()
	assert.Equal(t, "categorize-cost-type", landing.Name())
	assert.Equal(t, "Program Costs", landing.NavTitle())
}

func TestLandingStepCompleteAnalysis(t *testing.T) {
	w := New(&fakeDB{}, completeState())

	landing := w.LandingStep()
	assert.Equal(t, "insights", landing.Name())
	assert.True(t, landing.IsComplete())
}

func TestNextSkipsDisabledSteps(t *testing.T) {
	w := New(&fakeDB{}, completeState())

	// no other-cost flags and two instances: allocate jumps straight to
	// insights
	next := w.Next(w.GetStep("allocate"))
	require.NotNil(t, next)
	assert.Equal(t, "insights", next.Name())
}

func TestOtherCostStepsFollowAnalysisFlags(t *testing.T) {
	st := completeState()
	st.Analysis.ClientTime = true
	st.Analysis.OtherHQCosts = true
	w := New(&fakeDB{}, st)

	step := w.GetStep("add-other-costs")
	require.True(t, step.IsEnabled())
	subs := step.SubSteps()
	require.Len(t, subs, 2)
	assert.Equal(t, "add-client-time-costs", subs[0].Name())
	assert.Equal(t, "add-other-hq-costs", subs[1].Name())

	// flags are on but no CLIs of either kind exist yet
	assert.False(t, step.IsComplete())
	assert.False(t, w.GetStep("insights").DependenciesMet())
}

func TestAllocateCostTypeOrderingGate(t *testing.T) {
	st := completeState()
	support := &models.CostType{ID: 2, Name: "Support Costs", Type: models.TypeSupport}
	st.CostTypes = append(st.CostTypes, support)
	st.TypeByID[2] = support
	st.Pairs = append(st.Pairs, &models.AnalysisCostTypeCategory{
		ID: 2, CostTypeID: i64(2), CategoryID: i64(11), Confirmed: true,
	})
	st.GrantCells = append(st.GrantCells, &models.AnalysisCostTypeCategoryGrant{
		ID: 2, CostTypeCategoryID: 2, Grant: "G1",
	})
	// leave the Program item without allocations
	st.Items[0].Config.Allocations = nil
	supportItem := programItem("G1", map[int64]*decimal.Decimal{7: dec("100"), 8: dec("100")})
	supportItem.Config.CostTypeID = i64(2)
	supportItem.Config.CategoryID = i64(11)
	st.Items = append(st.Items, supportItem)

	w := New(&fakeDB{}, st)
	subs := w.GetStep("allocate").SubSteps()
	require.Len(t, subs, 2)

	var programSub, supportSub Step
	for _, sub := range subs {
		switch sub.(*allocateCostTypeGrantStep).costType.ID {
		case 1:
			programSub = sub
		case 2:
			supportSub = sub
		}
	}
	require.NotNil(t, programSub)
	require.NotNil(t, supportSub)

	assert.False(t, programSub.IsComplete())
	assert.False(t, supportSub.DependenciesMet(), "support waits for program")
	assert.True(t, programSub.DependenciesMet())
}

func TestSubcomponentStepsRequireSingleInstance(t *testing.T) {
	st := completeState()
	w := New(&fakeDB{}, st)
	assert.False(t, w.GetStep("confirm-subcomponents").IsEnabled())

	st = completeState()
	st.Instances = st.Instances[:1]
	st.Items[0].Config.Allocations = st.Items[0].Config.Allocations[:1]
	w = New(&fakeDB{}, st)

	confirm := w.GetStep("confirm-subcomponents")
	require.True(t, confirm.IsEnabled())
	assert.True(t, confirm.DependenciesMet())
	assert.False(t, confirm.IsComplete())
	assert.False(t, w.GetStep("insights").DependenciesMet())

	st.Subcomponent = &models.SubcomponentCostAnalysis{
		SubcomponentLabels:          []string{"A", "B"},
		SubcomponentLabelsConfirmed: true,
	}
	st.Items[0].Config.SubcomponentAnalysisAllocations = map[string]string{"0": "60", "1": "40"}
	w = New(&fakeDB{}, st)
	assert.True(t, w.GetStep("confirm-subcomponents").IsComplete())
	assert.True(t, w.GetStep("allocate-subcomponent-costs").IsComplete())
	assert.True(t, w.GetStep("insights").DependenciesMet())
}

func TestInvalidateInsightsClearsResultsNotCompleteness(t *testing.T) {
	db := &fakeDB{}
	st := completeState()
	w := New(db, st)

	require.True(t, w.GetStep("insights").IsComplete())
	require.NotEmpty(t, st.Analysis.OutputCosts)

	require.NoError(t, w.InvalidateStep(context.Background(), "insights"))

	assert.Empty(t, st.Analysis.OutputCosts)
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0], "UPDATE analyses SET output_costs")

	// dependencies still hold, so the step stays complete and only the
	// cached numbers are gone until the next recalculation
	assert.True(t, w.GetStep("insights").IsComplete())
}

func TestCalculateIfPossibleSkipsWhenDependenciesUnmet(t *testing.T) {
	db := &fakeDB{}
	st := completeState()
	st.Items[0].Config.Allocations[0].Allocation = nil
	w := New(db, st)

	require.False(t, w.GetStep("insights").DependenciesMet())
	require.NoError(t, w.CalculateIfPossible(context.Background()))
	assert.Empty(t, db.execs)
}

func TestRefreshInsightsDropsCachedOutputCosts(t *testing.T) {
	db := &fakeDB{}
	st := completeState()
	st.Items[0].Config.Allocations[0].Allocation = nil
	w := New(db, st)

	require.NotEmpty(t, st.Analysis.OutputCosts)
	require.NoError(t, w.RefreshInsights(context.Background()))

	// The cached numbers are gone and, with a dependency unmet, nothing
	// recomputes them until the next complete save.
	assert.Empty(t, st.Analysis.OutputCosts)
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0], "UPDATE analyses SET output_costs")
}

func TestInvalidateAllocateDropsAllocations(t *testing.T) {
	db := &fakeDB{}
	w := New(db, completeState())

	require.NoError(t, w.InvalidateStep(context.Background(), "allocate"))

	require.Len(t, db.execs, 2)
	assert.Contains(t, db.execs[0], "UPDATE analyses SET output_costs")
	assert.Contains(t, db.execs[1], "DELETE FROM cost_line_item_intervention_allocations")
}

func TestPrevDescendsIntoSubsteps(t *testing.T) {
	st := completeState()
	st.Pairs[0].Confirmed = false
	w := New(&fakeDB{}, st)

	prev := w.Prev(w.GetStep("allocate"))
	require.NotNil(t, prev)
	assert.Equal(t, "categorize-cost-type", prev.Name())
}
