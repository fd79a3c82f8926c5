// Package workflow models the analysis pipeline as an ordered list of steps
// with memoized completion predicates, invalidation cascades and the
// navigation landing rule.
package workflow

import (
	"context"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
)

// Step is one named stage of the analysis pipeline.
type Step interface {
	Name() string
	NavTitle() string
	DependenciesMet() bool
	IsComplete() bool
	IsEnabled() bool
	IsFinal() bool
	Href() string
	SubSteps() []Step
	// Invalidate clears this step's derived state. The workflow clears the
	// predicate caches of this step and everything downstream afterwards.
	Invalidate(ctx context.Context) error

	clearCache()
}

// memoBool caches one predicate per workflow instance.
type memoBool struct {
	set bool
	v   bool
}

func (m *memoBool) get(f func() bool) bool {
	if !m.set {
		m.v = f()
		m.set = true
	}
	return m.v
}

func (m *memoBool) clear() { m.set = false }

// Workflow is a per-request view over one analysis's pipeline.
type Workflow struct {
	db    bulkdb.DB
	state *State
	steps []Step
}

// New builds the fixed step list for one analysis snapshot.
func New(db bulkdb.DB, state *State) *Workflow {
	w := &Workflow{db: db, state: state}
	w.steps = []Step{
		newDefineStep(w),
		newLoadDataStep(w),
		newCategorizeStep(w),
		newAllocateStep(w),
		newAddOtherCostsStep(w),
		newConfirmSubcomponentsStep(w),
		newSubcomponentsAllocateStep(w),
		newInsightsStep(w),
	}
	return w
}

// Steps returns the ordered step list.
func (w *Workflow) Steps() []Step { return w.steps }

// GetStep finds a step by name, or nil.
func (w *Workflow) GetStep(name string) Step {
	for _, s := range w.steps {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// Next returns the next enabled step after the given one.
func (w *Workflow) Next(step Step) Step {
	idx := w.indexOf(step)
	if idx < 0 {
		return nil
	}
	for _, s := range w.steps[idx+1:] {
		if s.IsEnabled() {
			return s
		}
	}
	return nil
}

// Prev returns the step before the given one, descending into the first
// incomplete substep of a multi step.
func (w *Workflow) Prev(step Step) Step {
	idx := w.indexOf(step)
	if idx <= 0 {
		return nil
	}
	prev := w.steps[idx-1]
	if subs := prev.SubSteps(); len(subs) > 0 {
		for _, sub := range subs {
			if !sub.IsComplete() {
				return sub
			}
		}
		return subs[len(subs)-1]
	}
	return prev
}

func (w *Workflow) indexOf(step Step) int {
	for i, s := range w.steps {
		if s == step {
			return i
		}
	}
	return -1
}

// LandingStep is where the UI drops the user: the final step once it is
// complete, otherwise the earliest enabled incomplete step (descending into
// substeps), otherwise the last step.
func (w *Workflow) LandingStep() Step {
	if final := w.finalStep(); final != nil && final.IsComplete() {
		return final
	}
	if s := w.lastIncomplete(); s != nil {
		return s
	}
	return w.steps[len(w.steps)-1]
}

func (w *Workflow) lastIncomplete() Step {
	for _, s := range w.steps {
		if !s.IsEnabled() || s.IsComplete() {
			continue
		}
		if subs := s.SubSteps(); len(subs) > 0 {
			for _, sub := range subs {
				if !sub.IsComplete() {
					return sub
				}
			}
			return subs[len(subs)-1]
		}
		return s
	}
	return nil
}

func (w *Workflow) finalStep() Step {
	for _, s := range w.steps {
		if s.IsFinal() {
			return s
		}
	}
	return nil
}

// InvalidateStep runs the named step's invalidation and clears predicate
// caches from that step onward.
func (w *Workflow) InvalidateStep(ctx context.Context, name string) error {
	for i, s := range w.steps {
		if s.Name() != name {
			continue
		}
		if err := s.Invalidate(ctx); err != nil {
			return err
		}
		for _, downstream := range w.steps[i:] {
			downstream.clearCache()
			for _, sub := range downstream.SubSteps() {
				sub.clearCache()
			}
		}
		return nil
	}
	return nil
}

// RefreshInsights drops the cached output costs and recomputes them when the
// workflow allows it. Mutating endpoints call this after every write that can
// change the numbers.
func (w *Workflow) RefreshInsights(ctx context.Context) error {
	if err := w.InvalidateStep(ctx, "insights"); err != nil {
		return err
	}
	return w.CalculateIfPossible(ctx)
}

// CalculateIfPossible recomputes the insights step's derived state when its
// dependencies allow it.
func (w *Workflow) CalculateIfPossible(ctx context.Context) error {
	s := w.GetStep("insights")
	if s == nil {
		return nil
	}
	if ins, ok := s.(*insightsStep); ok {
		return ins.calculateIfPossible(ctx)
	}
	return nil
}
