package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"grocery-planner/internal/planner"
	"grocery-planner/internal/selection"
)

// PlanOptions drives a non-interactive plan run.
type PlanOptions struct {
	Description string
	Kind        planner.MealKind
	Count       int
	Zip         string
	StoreID     string
	Report      bool
}

// PrintStatus checks the session and prints it.
func (a *App) PrintStatus(ctx context.Context, w io.Writer) error {
	s, err := a.Core.CheckSession(ctx)
	fmt.Fprintln(w, s.StatusMessage)
	if !s.Authenticated && err == nil {
		fmt.Fprintf(w, "Log in at: %s\n", a.Backend.LoginURL())
	}
	return err
}

// PrintStores searches stores near zip and prints them.
func (a *App) PrintStores(ctx context.Context, w io.Writer, zip string) error {
	if strings.TrimSpace(zip) == "" {
		return fmt.Errorf("zip code is required")
	}
	_, err := a.Core.SearchStores(ctx, zip)
	res := a.Core.Snapshot().Stores
	fmt.Fprintln(w, res.StatusMessage)
	for _, c := range res.Candidates {
		fmt.Fprintf(w, "  %s  %s\n", c.LocationID, c.Label())
	}
	return err
}

// RunPlan generates a plan, stages the full selection and optionally fetches
// the report.
func (a *App) RunPlan(ctx context.Context, w io.Writer, opts PlanOptions) error {
	s, err := a.Core.CheckSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if !s.Authenticated {
		fmt.Fprintln(w, s.StatusMessage)
		fmt.Fprintf(w, "Log in at: %s\n", a.Backend.LoginURL())
		return fmt.Errorf("not logged in")
	}

	if opts.Zip != "" {
		if _, err := a.Core.SearchStores(ctx, opts.Zip); err != nil {
			return err
		}
		if opts.StoreID != "" {
			if err := a.Core.SelectStore(opts.StoreID); err != nil {
				return err
			}
		}
	}

	fmt.Fprintf(w, "Generating %d %s meals for: \"%s\"...\n", opts.Count, opts.Kind, opts.Description)
	if _, err := a.Core.GeneratePlan(ctx, opts.Description, opts.Kind, opts.Count); err != nil {
		return err
	}

	snap := a.Core.Snapshot()
	WritePlan(w, snap.Plan, snap.Selection)

	resp, err := a.Core.StageCart(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nCart staged: %s\n", string(resp))

	if !opts.Report {
		return nil
	}
	rep, err := a.Core.RequestReport(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Report saved to %s\n", rep.Path)
	return nil
}

// CleanupMetrics removes request metrics older than days.
func (a *App) CleanupMetrics(w io.Writer, days int) error {
	affected, err := a.Metrics.Cleanup(days)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Successfully removed %d old metric records.\n", affected)
	return nil
}

// WritePlan prints the plan with the selection marks used by every text surface.
func WritePlan(w io.Writer, plan *planner.MealPlan, sel *selection.Model) {
	if plan == nil {
		return
	}
	fmt.Fprintln(w, "\n=== MEAL PLAN ===")
	for _, meal := range plan.Meals {
		mark := selection.CheckAll.Mark()
		if sel != nil {
			mark = sel.State(selection.MealKey(meal.MealNumber)).Mark()
		}
		fmt.Fprintf(w, "%s %d. %s\n", mark, meal.MealNumber, meal.Name)
		for i, ing := range meal.Ingredients {
			leaf := selection.CheckAll.Mark()
			if sel != nil {
				leaf = sel.State(selection.LeafKey(meal.MealNumber, i)).Mark()
			}
			if ing.Amount != "" {
				fmt.Fprintf(w, "    %s %s (%s)\n", leaf, ing.Name, ing.Amount)
			} else {
				fmt.Fprintf(w, "    %s %s\n", leaf, ing.Name)
			}
		}
		if text := planner.PlainText(meal.Instructions); text != "" {
			for _, line := range strings.Split(text, "\n") {
				fmt.Fprintf(w, "      %s\n", line)
			}
		}
	}
}
