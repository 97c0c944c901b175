package selection

import (
	"errors"
	"fmt"

	"grocery-planner/internal/planner"
)

var (
	// ErrNotLeaf is returned when a non-ingredient key is toggled.
	ErrNotLeaf = errors.New("key does not address an ingredient")
	// ErrStaleKey is returned for keys that do not resolve in the current plan.
	ErrStaleKey = errors.New("key does not resolve in the current plan")
)

// CheckState is the derived state of a meal or group node.
type CheckState int

const (
	CheckNone CheckState = iota
	CheckPartial
	CheckAll
)

// Model is the side-table of included ingredients and expanded nodes for
// the current plan. Only leaf membership is stored; meal and group states are
// computed from their leaves.
type Model struct {
	order    []int
	counts   map[int]int
	included map[Key]struct{}
	visible  map[Key]struct{}
}

// New builds a fully selected, fully expanded model for plan.
func New(plan *planner.MealPlan) *Model {
	m := &Model{}
	m.Rebuild(plan)
	return m
}

// Rebuild discards all previous state and selects and expands every node of
// plan. It is the only bulk replacement of the included and visible sets.
func (m *Model) Rebuild(plan *planner.MealPlan) {
	m.order = nil
	m.counts = make(map[int]int)
	m.included = make(map[Key]struct{})
	m.visible = make(map[Key]struct{})
	if plan == nil {
		return
	}

	for _, meal := range plan.Meals {
		n := meal.MealNumber
		m.order = append(m.order, n)
		m.counts[n] = len(meal.Ingredients)
		m.visible[MealKey(n)] = struct{}{}
		m.visible[GroupKey(n)] = struct{}{}
		for i := range meal.Ingredients {
			leaf := LeafKey(n, i)
			m.included[leaf] = struct{}{}
			m.visible[leaf] = struct{}{}
		}
	}
}

// Resolves reports whether key addresses a node of the current plan.
func (m *Model) Resolves(key Key) bool {
	kind, n, i := Parse(key)
	count, ok := m.counts[n]
	switch kind {
	case NodeMeal, NodeGroup:
		return ok
	case NodeLeaf:
		return ok && i < count
	default:
		return false
	}
}

// ToggleLeaf flips one ingredient and returns its new inclusion.
func (m *Model) ToggleLeaf(key Key) (bool, error) {
	if kind, _, _ := Parse(key); kind != NodeLeaf {
		return false, fmt.Errorf("%w: %s", ErrNotLeaf, key)
	}
	if !m.Resolves(key) {
		return false, fmt.Errorf("%w: %s", ErrStaleKey, key)
	}

	if _, ok := m.included[key]; ok {
		delete(m.included, key)
		return false, nil
	}
	m.included[key] = struct{}{}
	return true, nil
}

// SetExpanded replaces the expansion set. Keys that do not resolve are dropped.
func (m *Model) SetExpanded(keys []Key) {
	m.visible = make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		if m.Resolves(k) {
			m.visible[k] = struct{}{}
		}
	}
}

// ToggleExpanded flips the expansion of a single node.
func (m *Model) ToggleExpanded(key Key) error {
	if !m.Resolves(key) {
		return fmt.Errorf("%w: %s", ErrStaleKey, key)
	}
	if _, ok := m.visible[key]; ok {
		delete(m.visible, key)
	} else {
		m.visible[key] = struct{}{}
	}
	return nil
}

// IsExpanded reports the cosmetic expansion of a node.
func (m *Model) IsExpanded(key Key) bool {
	_, ok := m.visible[key]
	return ok
}

// ExpandedKeys returns the expansion set in canonical order.
func (m *Model) ExpandedKeys() []Key {
	var keys []Key
	m.walk(func(k Key) {
		if _, ok := m.visible[k]; ok {
			keys = append(keys, k)
		}
	})
	return keys
}

// IsIncluded reports leaf membership. For meal and group keys it reports
// whether every leaf below is included.
func (m *Model) IsIncluded(key Key) bool {
	kind, _, _ := Parse(key)
	if kind == NodeLeaf {
		_, ok := m.included[key]
		return ok
	}
	return m.State(key) == CheckAll
}

// State derives the check state of any node from its leaves. Nodes with no
// ingredients are CheckNone.
func (m *Model) State(key Key) CheckState {
	kind, n, _ := Parse(key)
	if !m.Resolves(key) {
		return CheckNone
	}
	if kind == NodeLeaf {
		if _, ok := m.included[key]; ok {
			return CheckAll
		}
		return CheckNone
	}

	total := m.counts[n]
	selected := 0
	for i := 0; i < total; i++ {
		if _, ok := m.included[LeafKey(n, i)]; ok {
			selected++
		}
	}
	switch {
	case total == 0 || selected == 0:
		return CheckNone
	case selected == total:
		return CheckAll
	default:
		return CheckPartial
	}
}

// LeafKeys returns every leaf derivable from the current plan.
func (m *Model) LeafKeys() []Key {
	var keys []Key
	for _, n := range m.order {
		for i := 0; i < m.counts[n]; i++ {
			keys = append(keys, LeafKey(n, i))
		}
	}
	return keys
}

// IncludedKeys returns the included leaves in plan order.
func (m *Model) IncludedKeys() []Key {
	var keys []Key
	for _, k := range m.LeafKeys() {
		if _, ok := m.included[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Clone returns an independent copy.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	c := &Model{
		order:    append([]int(nil), m.order...),
		counts:   make(map[int]int, len(m.counts)),
		included: make(map[Key]struct{}, len(m.included)),
		visible:  make(map[Key]struct{}, len(m.visible)),
	}
	for k, v := range m.counts {
		c.counts[k] = v
	}
	for k := range m.included {
		c.included[k] = struct{}{}
	}
	for k := range m.visible {
		c.visible[k] = struct{}{}
	}
	return c
}

func (m *Model) walk(fn func(Key)) {
	for _, n := range m.order {
		fn(MealKey(n))
		fn(GroupKey(n))
		for i := 0; i < m.counts[n]; i++ {
			fn(LeafKey(n, i))
		}
	}
}
