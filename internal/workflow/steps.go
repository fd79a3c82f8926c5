package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/dioptratool/dioptra-web-sub000/internal/allocation"
	"github.com/dioptratool/dioptra-web-sub000/internal/insights"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
)

type baseStep struct {
	w        *Workflow
	name     string
	navTitle string

	deps     memoBool
	complete memoBool
}

func (b *baseStep) Name() string                     { return b.name }
func (b *baseStep) NavTitle() string                 { return b.navTitle }
func (b *baseStep) IsEnabled() bool                  { return true }
func (b *baseStep) IsFinal() bool                    { return false }
func (b *baseStep) SubSteps() []Step                 { return nil }
func (b *baseStep) Invalidate(context.Context) error { return nil }
func (b *baseStep) clearCache()                      { b.deps.clear(); b.complete.clear() }

func (b *baseStep) analysisHref(suffix string) string {
	return fmt.Sprintf("/analyses/%d/%s", b.w.state.Analysis.ID, suffix)
}

func (w *Workflow) stepComplete(name string) bool {
	if s := w.GetStep(name); s != nil {
		return s.IsComplete()
	}
	return false
}

// define

type defineStep struct{ baseStep }

func newDefineStep(w *Workflow) *defineStep {
	return &defineStep{baseStep{w: w, name: "define", navTitle: "Define Analysis"}}
}

func (s *defineStep) DependenciesMet() bool { return true }

func (s *defineStep) IsComplete() bool {
	return s.complete.get(func() bool {
		a := s.w.state.Analysis
		if a.Title == "" || a.StartDate.IsZero() || a.EndDate.IsZero() {
			return false
		}
		if a.CountryID == nil || len(a.GrantsList()) == 0 {
			return false
		}
		if len(s.w.state.Instances) == 0 {
			return false
		}
		for _, inst := range s.w.state.Instances {
			if !inst.HasParameters() {
				return false
			}
		}
		return true
	})
}

func (s *defineStep) Href() string { return s.analysisHref("define") }

// load-data

type loadDataStep struct{ baseStep }

func newLoadDataStep(w *Workflow) *loadDataStep {
	return &loadDataStep{baseStep{w: w, name: "load-data", navTitle: "Load Data"}}
}

func (s *loadDataStep) DependenciesMet() bool {
	return s.deps.get(func() bool { return s.w.stepComplete("define") })
}

func (s *loadDataStep) IsComplete() bool {
	return s.complete.get(func() bool {
		if !s.DependenciesMet() || s.w.state.Analysis.NeedsTransactionResync {
			return false
		}
		return len(s.w.state.Items) > 0
	})
}

func (s *loadDataStep) Href() string { return s.analysisHref("load-data") }

// Invalidate wipes everything derived from the loaded data: transactions,
// derived category tables, configs and CLIs. Clone back-references are
// nulled first so the deletes cannot trip over them.
func (s *loadDataStep) Invalidate(ctx context.Context) error {
	if err := s.w.InvalidateStep(ctx, "insights"); err != nil {
		return err
	}
	if err := s.w.InvalidateStep(ctx, "allocate"); err != nil {
		return err
	}
	w, id := s.w, s.w.state.Analysis.ID
	stmts := []string{
		`UPDATE transactions SET cloned_from_id = NULL
		 WHERE cloned_from_id IN (SELECT id FROM transactions WHERE analysis_id = $1)`,
		`DELETE FROM transactions WHERE analysis_id = $1`,
		`DELETE FROM analysis_cost_type_categories WHERE analysis_id = $1`,
		`UPDATE cost_line_item_configs SET cloned_from_id = NULL
		 WHERE cloned_from_id IN (
			SELECT c.id FROM cost_line_item_configs c
			JOIN cost_line_items i ON i.id = c.cost_line_item_id
			WHERE i.analysis_id = $1)`,
		`DELETE FROM cost_line_item_configs
		 WHERE cost_line_item_id IN (SELECT id FROM cost_line_items WHERE analysis_id = $1)`,
		`DELETE FROM cost_line_items WHERE analysis_id = $1`,
		`UPDATE analyses SET source = '' WHERE id = $1`,
	}
	for _, q := range stmts {
		if _, err := w.db.Exec(ctx, q, id); err != nil {
			return err
		}
	}
	s.w.state.Analysis.Source = ""
	s.w.state.Items = nil
	s.w.state.Pairs = nil
	s.w.state.GrantCells = nil
	return nil
}

// categorize

type categorizeStep struct {
	baseStep
	subs []Step
}

func newCategorizeStep(w *Workflow) *categorizeStep {
	s := &categorizeStep{baseStep: baseStep{w: w, name: "categorize", navTitle: "Confirm Categories"}}
	for _, ct := range costTypesUsed(w.state) {
		s.subs = append(s.subs, &categorizeCostTypeStep{
			baseStep: baseStep{w: w, name: "categorize-cost-type", navTitle: ct.Name},
			costType: ct,
		})
	}
	return s
}

// costTypesUsed lists the cost types referenced by the derived pairs, in
// display order.
func costTypesUsed(st *State) []*models.CostType {
	seen := map[int64]bool{}
	var out []*models.CostType
	for _, ct := range st.CostTypes {
		for _, p := range st.Pairs {
			if p.CostTypeID != nil && *p.CostTypeID == ct.ID && !seen[ct.ID] {
				seen[ct.ID] = true
				out = append(out, ct)
			}
		}
	}
	return out
}

func (s *categorizeStep) DependenciesMet() bool {
	return s.deps.get(func() bool { return s.w.stepComplete("load-data") })
}

func (s *categorizeStep) IsComplete() bool {
	return s.complete.get(func() bool {
		if !s.DependenciesMet() || len(s.subs) == 0 {
			return false
		}
		for _, sub := range s.subs {
			if !sub.IsComplete() {
				return false
			}
		}
		return true
	})
}

func (s *categorizeStep) SubSteps() []Step { return s.subs }
func (s *categorizeStep) Href() string     { return s.analysisHref("categorize") }

type categorizeCostTypeStep struct {
	baseStep
	costType *models.CostType
}

func (s *categorizeCostTypeStep) DependenciesMet() bool {
	return s.deps.get(func() bool { return s.w.stepComplete("load-data") })
}

func (s *categorizeCostTypeStep) IsComplete() bool {
	return s.complete.get(func() bool {
		if !s.DependenciesMet() {
			return false
		}
		found := false
		for _, p := range s.w.state.Pairs {
			if p.CostTypeID == nil || *p.CostTypeID != s.costType.ID {
				continue
			}
			if !p.Confirmed {
				return false
			}
			found = true
		}
		return found
	})
}

func (s *categorizeCostTypeStep) Href() string {
	return s.analysisHref(fmt.Sprintf("categorize/cost-type/%d", s.costType.ID))
}

// allocate

type allocateStep struct {
	baseStep
	subs []Step
}

func newAllocateStep(w *Workflow) *allocateStep {
	s := &allocateStep{baseStep: baseStep{w: w, name: "allocate", navTitle: "Allocate Costs"}}

	type cell struct {
		costTypeID int64
		grant      string
	}
	seen := map[cell]bool{}
	for _, g := range w.state.GrantCells {
		pair := w.state.pairFor(g)
		if pair == nil || pair.CostTypeID == nil {
			continue
		}
		c := cell{costTypeID: *pair.CostTypeID, grant: g.Grant}
		if seen[c] {
			continue
		}
		seen[c] = true
		ct := w.state.TypeByID[c.costTypeID]
		if ct == nil {
			continue
		}
		s.subs = append(s.subs, &allocateCostTypeGrantStep{
			baseStep: baseStep{w: w, name: "allocate-cost-type-grant", navTitle: allocateNavTitle(w.state, ct.Name, c.grant)},
			parent:   s, costType: ct, grant: c.grant,
		})
	}

	grants := map[string]bool{}
	for _, cli := range w.state.specialItems("") {
		grants[cli.GrantCode] = true
	}
	var codes []string
	for g := range grants {
		codes = append(codes, g)
	}
	sort.Strings(codes)
	for _, g := range codes {
		s.subs = append(s.subs, &allocateSupportingStep{
			baseStep: baseStep{w: w, name: "allocate-supporting-costs", navTitle: allocateNavTitle(w.state, "Other Supporting Costs", g)},
			parent:   s, grant: g,
		})
	}
	return s
}

func allocateNavTitle(st *State, base, grant string) string {
	if len(st.Analysis.GrantsList()) > 1 {
		return base + ": " + grant
	}
	return base
}

func (s *allocateStep) DependenciesMet() bool {
	return s.deps.get(func() bool { return s.w.stepComplete("categorize") })
}

func (s *allocateStep) IsComplete() bool {
	return s.complete.get(func() bool {
		if !s.DependenciesMet() {
			return false
		}
		for _, sub := range s.subs {
			if !sub.IsComplete() {
				return false
			}
		}
		return len(s.subs) > 0
	})
}

func (s *allocateStep) SubSteps() []Step { return s.subs }
func (s *allocateStep) Href() string     { return s.analysisHref("allocate") }

// Invalidate drops every intervention allocation of the analysis.
func (s *allocateStep) Invalidate(ctx context.Context) error {
	if err := s.w.InvalidateStep(ctx, "insights"); err != nil {
		return err
	}
	_, err := s.w.db.Exec(ctx, `
		DELETE FROM cost_line_item_intervention_allocations
		WHERE cli_config_id IN (
			SELECT c.id FROM cost_line_item_configs c
			JOIN cost_line_items i ON i.id = c.cost_line_item_id
			WHERE i.analysis_id = $1)`, s.w.state.Analysis.ID)
	return err
}

// typesCompleteThrough checks the Program -> Support -> Indirect ordering
// gate: all substeps of every type up to and including the given one must
// be complete.
func (s *allocateStep) typesCompleteThrough(typ int) bool {
	for _, t := range []int{models.TypeProgramCost, models.TypeSupport, models.TypeIndirect} {
		done := true
		for _, sub := range s.subs {
			ctg, ok := sub.(*allocateCostTypeGrantStep)
			if !ok || ctg.costType.Type != t {
				continue
			}
			if !ctg.IsComplete() {
				done = false
				break
			}
		}
		if t == typ {
			return done
		}
		if !done {
			return false
		}
	}
	return true
}

func previousType(typ int) int {
	switch typ {
	case models.TypeSupport:
		return models.TypeProgramCost
	case models.TypeIndirect:
		return models.TypeSupport
	}
	return 0
}

type allocateCostTypeGrantStep struct {
	baseStep
	parent   *allocateStep
	costType *models.CostType
	grant    string
}

func (s *allocateCostTypeGrantStep) DependenciesMet() bool {
	return s.deps.get(func() bool {
		if !s.w.stepComplete("categorize") {
			return false
		}
		if prev := previousType(s.costType.Type); prev != 0 {
			return s.parent.typesCompleteThrough(prev)
		}
		return true
	})
}

func (s *allocateCostTypeGrantStep) IsComplete() bool {
	return s.complete.get(func() bool {
		st := s.w.state
		for _, pair := range st.Pairs {
			if pair.CostTypeID == nil || *pair.CostTypeID != s.costType.ID {
				continue
			}
			items := allocation.GrantCellItems(st.Items, pair, s.grant)
			if len(items) == 0 {
				continue
			}
			// every intervention instance needs at least one decided
			// allocation among the cell's items, and none may be pending
			for _, inst := range st.Instances {
				decided := false
				for _, cli := range items {
					for _, a := range cli.Config.Allocations {
						if a.InterventionInstanceID != inst.ID {
							continue
						}
						if a.Allocation == nil {
							return false
						}
						decided = true
					}
				}
				if !decided {
					return false
				}
			}
		}
		return true
	})
}

func (s *allocateCostTypeGrantStep) Href() string {
	return s.analysisHref(fmt.Sprintf("allocate/%d/%s", s.costType.ID, s.grant))
}

type allocateSupportingStep struct {
	baseStep
	parent *allocateStep
	grant  string
}

func (s *allocateSupportingStep) DependenciesMet() bool {
	return s.deps.get(func() bool {
		if !s.w.stepComplete("categorize") {
			return false
		}
		for _, sub := range s.parent.subs {
			if ctg, ok := sub.(*allocateCostTypeGrantStep); ok && !ctg.IsComplete() {
				return false
			}
		}
		return true
	})
}

func (s *allocateSupportingStep) IsComplete() bool {
	return s.complete.get(func() bool {
		items := s.w.state.specialItems(s.grant)
		return len(items) > 0 && allocation.AllocationComplete(items)
	})
}

func (s *allocateSupportingStep) Href() string {
	return s.analysisHref("allocate/supporting/" + s.grant)
}

// add-other-costs

type addOtherCostsStep struct {
	baseStep
	subs []Step
}

func newAddOtherCostsStep(w *Workflow) *addOtherCostsStep {
	s := &addOtherCostsStep{baseStep: baseStep{w: w, name: "add-other-costs", navTitle: "Add Other Costs"}}
	a := w.state.Analysis
	if a.ClientTime {
		s.subs = append(s.subs, newOtherCostSubStep(w, s, models.AnalysisCostClientTime, "add-client-time-costs", "Client Time"))
	}
	if a.InKindContributions {
		s.subs = append(s.subs, newOtherCostSubStep(w, s, models.AnalysisCostInKind, "add-in-kind-contributor-costs", "In-Kind Contributions"))
	}
	if a.OtherHQCosts {
		s.subs = append(s.subs, newOtherCostSubStep(w, s, models.AnalysisCostOtherHQ, "add-other-hq-costs", "Other HQ Costs"))
	}
	return s
}

func (s *addOtherCostsStep) IsEnabled() bool { return len(s.subs) > 0 }

func (s *addOtherCostsStep) DependenciesMet() bool {
	return s.deps.get(func() bool { return s.w.stepComplete("allocate") })
}

func (s *addOtherCostsStep) IsComplete() bool {
	return s.complete.get(func() bool {
		if !s.DependenciesMet() {
			return false
		}
		for _, sub := range s.subs {
			if !sub.IsComplete() {
				return false
			}
		}
		return true
	})
}

func (s *addOtherCostsStep) SubSteps() []Step { return s.subs }
func (s *addOtherCostsStep) Href() string     { return s.analysisHref("add-other-costs") }

type otherCostSubStep struct {
	baseStep
	parent *addOtherCostsStep
	kind   models.AnalysisCostType
}

func newOtherCostSubStep(w *Workflow, parent *addOtherCostsStep, kind models.AnalysisCostType, name, navTitle string) *otherCostSubStep {
	return &otherCostSubStep{
		baseStep: baseStep{w: w, name: name, navTitle: navTitle},
		parent:   parent, kind: kind,
	}
}

func (s *otherCostSubStep) DependenciesMet() bool {
	return s.deps.get(func() bool { return s.parent.DependenciesMet() })
}

func (s *otherCostSubStep) IsComplete() bool {
	return s.complete.get(func() bool {
		items := s.w.state.otherCostItems(s.kind)
		return len(items) > 0 && allocation.AllocationComplete(items)
	})
}

func (s *otherCostSubStep) Href() string {
	return s.analysisHref(fmt.Sprintf("add-other-costs/%d", int(s.kind)))
}

// confirm-subcomponents

type confirmSubcomponentsStep struct{ baseStep }

func newConfirmSubcomponentsStep(w *Workflow) *confirmSubcomponentsStep {
	return &confirmSubcomponentsStep{baseStep{w: w, name: "confirm-subcomponents", navTitle: "Confirm Subcomponents"}}
}

// The subcomponent workflow only makes sense over a single intervention
// instance.
func (s *confirmSubcomponentsStep) IsEnabled() bool {
	return len(s.w.state.Instances) == 1
}

func (s *confirmSubcomponentsStep) DependenciesMet() bool {
	return s.deps.get(func() bool {
		if other := s.w.GetStep("add-other-costs"); other != nil && other.IsEnabled() {
			return other.IsComplete()
		}
		return s.w.stepComplete("allocate")
	})
}

func (s *confirmSubcomponentsStep) IsComplete() bool {
	return s.complete.get(func() bool {
		sc := s.w.state.Subcomponent
		return sc != nil && sc.SubcomponentLabelsConfirmed
	})
}

func (s *confirmSubcomponentsStep) Href() string {
	return s.analysisHref("subcomponents/confirm")
}

// Invalidate unconfirms the labels and clears every CLI's subcomponent
// split.
func (s *confirmSubcomponentsStep) Invalidate(ctx context.Context) error {
	if _, err := s.w.db.Exec(ctx,
		"UPDATE subcomponent_cost_analyses SET subcomponent_labels_confirmed = false WHERE analysis_id = $1",
		s.w.state.Analysis.ID); err != nil {
		return err
	}
	if s.w.state.Subcomponent != nil {
		s.w.state.Subcomponent.SubcomponentLabelsConfirmed = false
	}
	return allocation.ResetSubcomponentAllocations(ctx, s.w.db, s.w.state.Analysis.ID)
}

// allocate-subcomponent-costs

type subcomponentsAllocateStep struct {
	baseStep
	subs []Step
}

func newSubcomponentsAllocateStep(w *Workflow) *subcomponentsAllocateStep {
	s := &subcomponentsAllocateStep{baseStep: baseStep{w: w, name: "allocate-subcomponent-costs", navTitle: "Allocate Subcomponent Costs"}}

	type cell struct {
		costTypeID int64
		grant      string
	}
	seen := map[cell]bool{}
	for _, g := range w.state.GrantCells {
		pair := w.state.pairFor(g)
		if pair == nil || pair.CostTypeID == nil {
			continue
		}
		c := cell{costTypeID: *pair.CostTypeID, grant: g.Grant}
		if seen[c] {
			continue
		}
		seen[c] = true
		ct := w.state.TypeByID[c.costTypeID]
		if ct == nil {
			continue
		}
		sub := &subcomponentsAllocateCellStep{
			baseStep: baseStep{w: w, name: "allocate-subcomponent-cost-type-grant", navTitle: allocateNavTitle(w.state, ct.Name, c.grant)},
			parent:   s, costType: ct, grant: c.grant,
		}
		if sub.hasItemsToAllocate() {
			s.subs = append(s.subs, sub)
		}
	}
	return s
}

func (s *subcomponentsAllocateStep) IsEnabled() bool {
	return len(s.w.state.Instances) == 1
}

func (s *subcomponentsAllocateStep) DependenciesMet() bool {
	return s.deps.get(func() bool { return s.w.stepComplete("confirm-subcomponents") })
}

// IsComplete only requires the Program cells: shared and skipped items pick
// up the computed average split afterwards.
func (s *subcomponentsAllocateStep) IsComplete() bool {
	return s.complete.get(func() bool {
		if !s.DependenciesMet() {
			return false
		}
		for _, sub := range s.subs {
			cell, ok := sub.(*subcomponentsAllocateCellStep)
			if !ok || cell.costType.Type != models.TypeProgramCost {
				continue
			}
			if !cell.IsComplete() {
				return false
			}
		}
		return true
	})
}

func (s *subcomponentsAllocateStep) SubSteps() []Step { return s.subs }
func (s *subcomponentsAllocateStep) Href() string {
	return s.analysisHref("subcomponents/allocate")
}

type subcomponentsAllocateCellStep struct {
	baseStep
	parent   *subcomponentsAllocateStep
	costType *models.CostType
	grant    string
}

func (s *subcomponentsAllocateCellStep) cellItems() []*models.CostLineItem {
	st := s.w.state
	var out []*models.CostLineItem
	for _, pair := range st.Pairs {
		if pair.CostTypeID == nil || *pair.CostTypeID != s.costType.ID {
			continue
		}
		out = append(out, allocation.GrantCellItems(st.Items, pair, s.grant)...)
	}
	return out
}

func (s *subcomponentsAllocateCellStep) hasItemsToAllocate() bool {
	for _, cli := range s.cellItems() {
		if cli.Config.AllocationSum().IsPositive() {
			return true
		}
	}
	return false
}

func (s *subcomponentsAllocateCellStep) DependenciesMet() bool {
	return s.deps.get(func() bool { return s.parent.DependenciesMet() })
}

func (s *subcomponentsAllocateCellStep) IsComplete() bool {
	return s.complete.get(func() bool {
		return allocation.SubcomponentAllocationComplete(s.cellItems())
	})
}

func (s *subcomponentsAllocateCellStep) Href() string {
	return s.analysisHref(fmt.Sprintf("subcomponents/allocate/%d/%s", s.costType.ID, s.grant))
}

// insights

type insightsStep struct{ baseStep }

func newInsightsStep(w *Workflow) *insightsStep {
	return &insightsStep{baseStep{w: w, name: "insights", navTitle: "View Insights"}}
}

func (s *insightsStep) IsFinal() bool { return true }

func (s *insightsStep) DependenciesMet() bool {
	return s.deps.get(func() bool {
		for _, st := range s.w.steps {
			if st.Name() == s.name {
				break
			}
			if st.IsEnabled() && !st.IsComplete() {
				return false
			}
		}
		return true
	})
}

func (s *insightsStep) IsComplete() bool {
	return s.complete.get(s.DependenciesMet)
}

func (s *insightsStep) Href() string { return s.analysisHref("insights") }

// Invalidate drops the cached results; the next visit recomputes them.
func (s *insightsStep) Invalidate(ctx context.Context) error {
	a := s.w.state.Analysis
	a.OutputCosts = map[string]map[string]models.OutputCost{}
	return a.SaveOutputCosts(ctx, s.w.db)
}

func (s *insightsStep) calculateIfPossible(ctx context.Context) error {
	if !s.DependenciesMet() {
		return nil
	}
	return insights.CalculateOutputCosts(ctx, s.w.db, s.w.state.Analysis)
}
