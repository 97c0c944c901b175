package selection

import (
	"fmt"

	"grocery-planner/internal/planner"
)

// Node is one visible row of the plan tree.
type Node struct {
	Key      Key
	Kind     NodeKind
	Depth    int
	Label    string
	State    CheckState
	Expanded bool
}

// Rows flattens the visible part of the tree. A group is shown when its meal
// is expanded; leaves are shown when both their meal and group are expanded.
func (m *Model) Rows(plan *planner.MealPlan) []Node {
	if plan == nil {
		return nil
	}

	var rows []Node
	for _, meal := range plan.Meals {
		n := meal.MealNumber
		mk := MealKey(n)
		if !m.Resolves(mk) {
			continue
		}
		rows = append(rows, Node{
			Key:      mk,
			Kind:     NodeMeal,
			Label:    fmt.Sprintf("%d. %s", n, meal.Name),
			State:    m.State(mk),
			Expanded: m.IsExpanded(mk),
		})
		if !m.IsExpanded(mk) {
			continue
		}

		gk := GroupKey(n)
		rows = append(rows, Node{
			Key:      gk,
			Kind:     NodeGroup,
			Depth:    1,
			Label:    fmt.Sprintf("Ingredients (%d)", len(meal.Ingredients)),
			State:    m.State(gk),
			Expanded: m.IsExpanded(gk),
		})
		if !m.IsExpanded(gk) {
			continue
		}

		for i, ing := range meal.Ingredients {
			lk := LeafKey(n, i)
			rows = append(rows, Node{
				Key:   lk,
				Kind:  NodeLeaf,
				Depth: 2,
				Label: ingredientLabel(ing),
				State: m.State(lk),
			})
		}
	}
	return rows
}

func ingredientLabel(ing planner.Ingredient) string {
	if ing.Amount == "" {
		return ing.Name
	}
	return fmt.Sprintf("%s (%s)", ing.Name, ing.Amount)
}

// Mark renders a check state as a checkbox.
func (s CheckState) Mark() string {
	switch s {
	case CheckAll:
		return "[x]"
	case CheckPartial:
		return "[-]"
	default:
		return "[ ]"
	}
}
