package selection

import (
	"fmt"
	"strconv"
	"strings"
)

// Key addresses one node of the plan tree. Keys are derived from meal numbers
// and ingredient positions; they are never stored on the plan itself.
type Key string

// NodeKind tells which level of the tree a key addresses.
type NodeKind int

const (
	NodeInvalid NodeKind = iota
	NodeMeal
	NodeGroup
	NodeLeaf
)

const (
	keyPrefix   = "meal-"
	groupSuffix = "-ingredients"
	leafInfix   = "-ingredient-"
)

// MealKey addresses a meal node.
func MealKey(mealNumber int) Key {
	return Key(fmt.Sprintf("meal-%d", mealNumber))
}

// GroupKey addresses a meal's ingredients group.
func GroupKey(mealNumber int) Key {
	return Key(fmt.Sprintf("meal-%d-ingredients", mealNumber))
}

// LeafKey addresses the ingredient at index within a meal.
func LeafKey(mealNumber, index int) Key {
	return Key(fmt.Sprintf("meal-%d-ingredient-%d", mealNumber, index))
}

// Parse splits a key into its kind, meal number and (for leaves) index.
// Only canonical keys parse: "meal-01" or "meal-+1" are NodeInvalid.
func Parse(k Key) (kind NodeKind, mealNumber, index int) {
	kind, mealNumber, index = parse(k)
	if kind == NodeInvalid || canonical(kind, mealNumber, index) != k {
		return NodeInvalid, 0, 0
	}
	return kind, mealNumber, index
}

func parse(k Key) (NodeKind, int, int) {
	rest, ok := strings.CutPrefix(string(k), keyPrefix)
	if !ok || rest == "" {
		return NodeInvalid, 0, 0
	}

	if num, ok := strings.CutSuffix(rest, groupSuffix); ok {
		n, err := strconv.Atoi(num)
		if err != nil {
			return NodeInvalid, 0, 0
		}
		return NodeGroup, n, 0
	}

	if num, idx, ok := strings.Cut(rest, leafInfix); ok {
		n, err := strconv.Atoi(num)
		if err != nil {
			return NodeInvalid, 0, 0
		}
		i, err := strconv.Atoi(idx)
		if err != nil || i < 0 {
			return NodeInvalid, 0, 0
		}
		return NodeLeaf, n, i
	}

	n, err := strconv.Atoi(rest)
	if err != nil {
		return NodeInvalid, 0, 0
	}
	return NodeMeal, n, 0
}

func canonical(kind NodeKind, mealNumber, index int) Key {
	switch kind {
	case NodeMeal:
		return MealKey(mealNumber)
	case NodeGroup:
		return GroupKey(mealNumber)
	case NodeLeaf:
		return LeafKey(mealNumber, index)
	}
	return ""
}
