package workflow

import (
	"grocery-planner/internal/cart"
	"grocery-planner/internal/planner"
	"grocery-planner/internal/report"
	"grocery-planner/internal/selection"
	"grocery-planner/internal/session"
	"grocery-planner/internal/stores"
)

// Report is a saved report document.
type Report struct {
	Path     string
	Artifact *report.Artifact
}

// Snapshot is a copy of the Core's state. Mutating it never affects the Core.
type Snapshot struct {
	Stage     Stage
	Session   session.Session
	Stores    stores.Results
	Plan      *planner.MealPlan
	PlanGen   uint64
	MealKind  planner.MealKind
	Selection *selection.Model
	Rows      []selection.Node
	Staged    cart.Response
	Report    *Report
	Busy      map[Op]bool
	Errors    map[Op]error
}

// Snapshot returns the current state.
func (c *Core) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Stage:    c.stage(),
		Session:  c.session,
		Stores:   c.results.Clone(),
		MealKind: c.kind,
		Busy:     make(map[Op]bool),
		Errors:   make(map[Op]error),
	}
	if c.plan != nil {
		snap.Plan = clonePlan(c.plan)
		snap.PlanGen = c.planGen
		snap.Selection = c.sel.Clone()
		snap.Rows = c.sel.Rows(c.plan)
	}
	if c.staged != nil {
		snap.Staged = append(cart.Response(nil), c.staged...)
	}
	if c.report != nil {
		r := *c.report
		snap.Report = &r
	}
	for _, op := range Ops {
		if c.busy[op] {
			snap.Busy[op] = true
		}
		if c.errs[op] != nil {
			snap.Errors[op] = c.errs[op]
		}
	}
	return snap
}

// Stage returns the current workflow stage.
func (c *Core) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage()
}

// stage is the furthest step whose result is held. A later failed session
// check does not hide a plan, cart or report that is still usable.
func (c *Core) stage() Stage {
	switch {
	case c.report != nil:
		return StageReportReady
	case len(c.staged) != 0:
		return StageCartStaged
	case c.plan != nil:
		return StagePlanReady
	case c.session.Authenticated:
		return StageAuthenticated
	default:
		return StageUnauthenticated
	}
}

func clonePlan(p *planner.MealPlan) *planner.MealPlan {
	out := &planner.MealPlan{Meals: make([]planner.Meal, len(p.Meals))}
	for i, m := range p.Meals {
		m.Ingredients = append([]planner.Ingredient(nil), m.Ingredients...)
		out.Meals[i] = m
	}
	return out
}
