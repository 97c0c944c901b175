package planner

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"grocery-planner/internal/shared"
)

// MealKind is the time of day a plan is generated for.
type MealKind string

const (
	KindBreakfast MealKind = "breakfast"
	KindLunch     MealKind = "lunch"
	KindDinner    MealKind = "dinner"
	KindSnack     MealKind = "snack"
	KindDessert   MealKind = "dessert"
)

// MealKinds lists the accepted kinds in display order.
var MealKinds = []MealKind{KindBreakfast, KindLunch, KindDinner, KindSnack, KindDessert}

// ParseMealKind accepts a kind name in any letter case.
func ParseMealKind(s string) (MealKind, error) {
	k := MealKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range MealKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown meal kind %q", s)
}

// Ingredient is a single line of a meal's shopping needs.
type Ingredient struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

// Meal is one entry of a generated plan.
type Meal struct {
	MealNumber   int          `json:"meal_num"`
	Name         string       `json:"name"`
	Instructions string       `json:"instructions"`
	Ingredients  []Ingredient `json:"ingredients"`
}

// MealPlan is an ordered list of meals; MealNumber defines the order.
type MealPlan struct {
	Meals []Meal `json:"plan"`
}

// Meal returns the meal with the given number.
func (p *MealPlan) Meal(mealNumber int) (Meal, bool) {
	if p == nil {
		return Meal{}, false
	}
	for _, m := range p.Meals {
		if m.MealNumber == mealNumber {
			return m, true
		}
	}
	return Meal{}, false
}

type wireMeal struct {
	MealNumber   *int            `json:"meal_num"`
	Name         string          `json:"name"`
	Instructions json.RawMessage `json:"instructions"`
	Ingredients  *[]Ingredient   `json:"ingredients"`
}

type wirePlan struct {
	Plan  *[]wireMeal `json:"plan"`
	Error string      `json:"error"`
}

// ParseResponse decodes a plan response body. Responses that lack the expected
// structure are reported as malformed; an "error" field is reported verbatim
// as a backend failure.
func ParseResponse(endpoint string, data []byte) (*MealPlan, error) {
	var wp wirePlan
	if err := json.Unmarshal(data, &wp); err != nil {
		return nil, shared.MalformedError(endpoint, "plan is not valid JSON", err)
	}
	if wp.Error != "" {
		return nil, shared.BackendError(endpoint, 0, wp.Error)
	}
	if wp.Plan == nil {
		return nil, shared.MalformedError(endpoint, "response has no plan", nil)
	}

	plan := &MealPlan{Meals: make([]Meal, 0, len(*wp.Plan))}
	seen := make(map[int]bool)
	for i, wm := range *wp.Plan {
		if wm.MealNumber == nil {
			return nil, shared.MalformedError(endpoint, fmt.Sprintf("meal at position %d has no meal_num", i), nil)
		}
		n := *wm.MealNumber
		if seen[n] {
			return nil, shared.MalformedError(endpoint, fmt.Sprintf("duplicate meal_num %d", n), nil)
		}
		seen[n] = true

		if wm.Ingredients == nil {
			return nil, shared.MalformedError(endpoint, fmt.Sprintf("meal %d has no ingredients", n), nil)
		}
		instructions, err := decodeInstructions(wm.Instructions)
		if err != nil {
			return nil, shared.MalformedError(endpoint, fmt.Sprintf("meal %d has unreadable instructions", n), err)
		}

		plan.Meals = append(plan.Meals, Meal{
			MealNumber:   n,
			Name:         wm.Name,
			Instructions: instructions,
			Ingredients:  append([]Ingredient(nil), (*wm.Ingredients)...),
		})
	}

	sort.SliceStable(plan.Meals, func(i, j int) bool {
		return plan.Meals[i].MealNumber < plan.Meals[j].MealNumber
	})
	return plan, nil
}

// decodeInstructions accepts a string or a list of steps.
func decodeInstructions(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var steps []string
	if err := json.Unmarshal(raw, &steps); err != nil {
		return "", err
	}
	return strings.Join(steps, "\n"), nil
}
