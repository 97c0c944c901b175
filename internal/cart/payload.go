package cart

import (
	"grocery-planner/internal/planner"
	"grocery-planner/internal/selection"
)

// StagedMeal carries full meal metadata but only the included ingredients.
type StagedMeal struct {
	MealNumber   int                  `json:"meal_num"`
	Name         string               `json:"name"`
	Instructions string               `json:"instructions"`
	Ingredients  []planner.Ingredient `json:"ingredients"`
}

// Payload is the body submitted to /cart. It is rebuilt on every submission.
type Payload struct {
	Meals    []StagedMeal     `json:"meals"`
	MealKind planner.MealKind `json:"meal_type"`
}

// BuildPayload projects the selection onto the plan. Every meal is emitted in
// plan order, even when none of its ingredients are included, because the
// report needs its instructions.
func BuildPayload(plan *planner.MealPlan, sel *selection.Model, kind planner.MealKind) Payload {
	payload := Payload{Meals: []StagedMeal{}, MealKind: kind}
	if plan == nil {
		return payload
	}

	for _, meal := range plan.Meals {
		staged := StagedMeal{
			MealNumber:   meal.MealNumber,
			Name:         meal.Name,
			Instructions: meal.Instructions,
			Ingredients:  []planner.Ingredient{},
		}
		for i, ing := range meal.Ingredients {
			if sel != nil && sel.IsIncluded(selection.LeafKey(meal.MealNumber, i)) {
				staged.Ingredients = append(staged.Ingredients, ing)
			}
		}
		payload.Meals = append(payload.Meals, staged)
	}
	return payload
}

// IngredientCount is the number of ingredients that will be added to the cart.
func (p Payload) IngredientCount() int {
	n := 0
	for _, m := range p.Meals {
		n += len(m.Ingredients)
	}
	return n
}
