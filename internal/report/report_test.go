package report

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"grocery-planner/internal/cart"
	"grocery-planner/internal/logging"
	"grocery-planner/internal/planner"
	"grocery-planner/internal/shared"
)

type mockFetcher struct {
	artifact *Artifact
	err      error
	lastBody json.RawMessage
	calls    int
}

func (m *mockFetcher) FetchReport(ctx context.Context, body json.RawMessage) (*Artifact, error) {
	m.calls++
	m.lastBody = body
	return m.artifact, m.err
}

func testPlan() *planner.MealPlan {
	return &planner.MealPlan{Meals: []planner.Meal{{
		MealNumber:   1,
		Name:         "Omelette",
		Instructions: "Whisk and fry.",
		Ingredients:  []planner.Ingredient{{Name: "egg", Amount: "2"}, {Name: "milk", Amount: "50ml"}},
	}}}
}

func TestRequest(t *testing.T) {
	ctx := context.Background()
	logger := logging.Discard()

	t.Run("NothingStaged", func(t *testing.T) {
		f := &mockFetcher{}
		_, err := NewRequester(f, logger).Request(ctx, nil, testPlan(), planner.KindBreakfast)
		if !errors.Is(err, ErrNothingStaged) {
			t.Fatalf("Expected ErrNothingStaged, got %v", err)
		}
		if f.calls != 0 {
			t.Errorf("Expected no network call, got %d", f.calls)
		}
	})

	t.Run("Success", func(t *testing.T) {
		f := &mockFetcher{artifact: &Artifact{Filename: "report.pdf", Data: []byte("%PDF-1.4")}}
		staged := cart.Response(`{"added": ["egg"], "cart_id": "c-1"}`)

		a, err := NewRequester(f, logger).Request(ctx, staged, testPlan(), planner.KindBreakfast)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if string(a.Data) != "%PDF-1.4" {
			t.Errorf("Unexpected artifact data %q", a.Data)
		}

		var body struct {
			CartID   string         `json:"cart_id"`
			Added    []string       `json:"added"`
			Meals    []planner.Meal `json:"meals"`
			MealType string         `json:"meal_type"`
		}
		if err := json.Unmarshal(f.lastBody, &body); err != nil {
			t.Fatalf("Report body is not JSON: %v", err)
		}
		if body.CartID != "c-1" || len(body.Added) != 1 {
			t.Errorf("Expected cart response merged, got %s", f.lastBody)
		}
		if len(body.Meals) != 1 || len(body.Meals[0].Ingredients) != 2 {
			t.Errorf("Expected the full plan, got %s", f.lastBody)
		}
		if body.MealType != "breakfast" {
			t.Errorf("Expected meal_type breakfast, got %q", body.MealType)
		}
	})

	t.Run("FetchFailure", func(t *testing.T) {
		f := &mockFetcher{err: shared.TransportError("/report", errors.New("reset"))}
		_, err := NewRequester(f, logger).Request(ctx, cart.Response(`{}`), testPlan(), planner.KindDinner)
		if !shared.IsTransport(err) {
			t.Fatalf("Expected transport error, got %v", err)
		}
	})
}

func TestBuildRequestNonObjectCart(t *testing.T) {
	body, err := BuildRequest(cart.Response(`["egg"]`), testPlan(), planner.KindLunch)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(string(body), `"cart":["egg"]`) {
		t.Errorf("Expected array cart response nested under cart, got %s", body)
	}
}

func TestSaver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	s, err := NewSaver(dir)
	if err != nil {
		t.Fatalf("NewSaver failed: %v", err)
	}

	first, err := s.Save(&Artifact{Filename: "../report.pdf", Data: []byte("one")})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if filepath.Dir(first) != dir {
		t.Errorf("Expected file inside download dir, got %s", first)
	}

	second, err := s.Save(&Artifact{Filename: "report.pdf", Data: []byte("two")})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if second == first {
		t.Error("Expected a unique name instead of overwriting")
	}

	data, _ := os.ReadFile(first)
	if string(data) != "one" {
		t.Errorf("Expected first file untouched, got %q", data)
	}

	unnamed, err := s.Save(&Artifact{Data: []byte("three")})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(unnamed), "meal-plan-report-") {
		t.Errorf("Expected default filename, got %s", unnamed)
	}
}
