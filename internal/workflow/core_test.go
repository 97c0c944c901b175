package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"grocery-planner/internal/cart"
	"grocery-planner/internal/logging"
	"grocery-planner/internal/planner"
	"grocery-planner/internal/report"
	"grocery-planner/internal/selection"
	"grocery-planner/internal/session"
	"grocery-planner/internal/shared"
	"grocery-planner/internal/stores"
)

// fakeBackend implements every backend interface the components need.
// hook, when set, runs at the start of each call outside the lock.
type fakeBackend struct {
	mu        sync.Mutex
	loggedIn  bool
	statusErr error
	stores    map[string][]stores.StoreCandidate
	storesErr error
	plans     []*planner.MealPlan
	planErr   error
	cartResp  json.RawMessage
	cartErr   error
	cartReqs  []cart.Request
	artifact  *report.Artifact
	reportErr error
	calls     map[string]int
	hook      func(call, arg string)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		loggedIn: true,
		stores:   make(map[string][]stores.StoreCandidate),
		cartResp: json.RawMessage(`{"cart_id": "c-1", "added": 2}`),
		artifact: &report.Artifact{Filename: "plan.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")},
		calls:    make(map[string]int),
	}
}

func (f *fakeBackend) enter(call, arg string) {
	f.mu.Lock()
	f.calls[call]++
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(call, arg)
	}
}

func (f *fakeBackend) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

func (f *fakeBackend) Status(ctx context.Context) (bool, error) {
	f.enter("status", "")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return false, f.statusErr
	}
	return f.loggedIn, nil
}

func (f *fakeBackend) FindStores(ctx context.Context, zip string) ([]stores.StoreCandidate, error) {
	f.enter("stores", zip)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storesErr != nil {
		return nil, f.storesErr
	}
	return f.stores[zip], nil
}

func (f *fakeBackend) RequestPlan(ctx context.Context, req planner.PlanRequest) (*planner.MealPlan, error) {
	f.enter("plan", req.Description)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.planErr != nil {
		return nil, f.planErr
	}
	plan := f.plans[0]
	if len(f.plans) > 1 {
		f.plans = f.plans[1:]
	}
	return plan, nil
}

func (f *fakeBackend) SubmitCart(ctx context.Context, req cart.Request) (json.RawMessage, error) {
	f.enter("cart", req.LocationID)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cartReqs = append(f.cartReqs, req)
	if f.cartErr != nil {
		return nil, f.cartErr
	}
	return f.cartResp, nil
}

func (f *fakeBackend) FetchReport(ctx context.Context, body json.RawMessage) (*report.Artifact, error) {
	f.enter("report", "")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reportErr != nil {
		return nil, f.reportErr
	}
	return f.artifact, nil
}

type mockJournal struct {
	mu      sync.Mutex
	stages  []cart.Payload
	reports []string
}

func (m *mockJournal) RecordStage(ctx context.Context, payload cart.Payload, locationID string, resp cart.Response) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, payload)
	return int64(len(m.stages)), nil
}

func (m *mockJournal) RecordReport(ctx context.Context, stagedCartID int64, path string, size int, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, path)
	return nil
}

func newTestCore(t *testing.T, fb *fakeBackend, opts ...Option) *Core {
	t.Helper()
	logger := logging.Discard()
	saver, err := report.NewSaver(t.TempDir())
	if err != nil {
		t.Fatalf("NewSaver failed: %v", err)
	}
	return New(Deps{
		Session:   session.NewTracker(fb, "/kroger-success", logger),
		Locator:   stores.NewLocator(fb),
		Generator: planner.NewGenerator(fb, logger),
		Stager:    cart.NewStager(fb, logger),
		Requester: report.NewRequester(fb, logger),
		Saver:     saver,
	}, logger, opts...)
}

func omelettePlan() *planner.MealPlan {
	return &planner.MealPlan{Meals: []planner.Meal{{
		MealNumber:   1,
		Name:         "Omelette",
		Instructions: "Whisk and fry.",
		Ingredients: []planner.Ingredient{
			{Name: "egg", Amount: "2"},
			{Name: "milk", Amount: "50ml"},
		},
	}}}
}

func pastaPlan() *planner.MealPlan {
	return &planner.MealPlan{Meals: []planner.Meal{
		{MealNumber: 1, Name: "Pasta", Instructions: "Boil.", Ingredients: []planner.Ingredient{{Name: "penne", Amount: "200g"}}},
		{MealNumber: 2, Name: "Salad", Instructions: "Toss.", Ingredients: []planner.Ingredient{
			{Name: "lettuce", Amount: "1 head"},
			{Name: "tomato", Amount: "2"},
			{Name: "feta", Amount: "100g"},
		}},
	}}
}

func TestWorkflowProgression(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	fb.plans = []*planner.MealPlan{omelettePlan()}
	journal := &mockJournal{}
	core := newTestCore(t, fb, WithJournal(journal))

	if core.Stage() != StageUnauthenticated {
		t.Fatalf("Expected unauthenticated, got %s", core.Stage())
	}

	if _, err := core.CheckSession(ctx); err != nil {
		t.Fatalf("CheckSession failed: %v", err)
	}
	if core.Stage() != StageAuthenticated {
		t.Fatalf("Expected authenticated, got %s", core.Stage())
	}

	if _, err := core.GeneratePlan(ctx, "quick", planner.KindBreakfast, 1); err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	if core.Stage() != StagePlanReady {
		t.Fatalf("Expected plan ready, got %s", core.Stage())
	}

	if _, err := core.StageCart(ctx); err != nil {
		t.Fatalf("StageCart failed: %v", err)
	}
	if core.Stage() != StageCartStaged {
		t.Fatalf("Expected cart staged, got %s", core.Stage())
	}

	rep, err := core.RequestReport(ctx)
	if err != nil {
		t.Fatalf("RequestReport failed: %v", err)
	}
	if core.Stage() != StageReportReady {
		t.Fatalf("Expected report ready, got %s", core.Stage())
	}
	data, err := os.ReadFile(rep.Path)
	if err != nil || string(data) != "%PDF-1.4" {
		t.Errorf("Expected report saved to %s, got %q (%v)", rep.Path, data, err)
	}

	if len(journal.stages) != 1 || len(journal.reports) != 1 {
		t.Errorf("Expected one stage and one report journaled, got %d and %d", len(journal.stages), len(journal.reports))
	}

	snap := core.Snapshot()
	if len(snap.Errors) != 0 || len(snap.Busy) != 0 {
		t.Errorf("Expected no errors or busy flags, got %v %v", snap.Errors, snap.Busy)
	}
}

func TestPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("PlanRequiresLogin", func(t *testing.T) {
		fb := newFakeBackend()
		fb.loggedIn = false
		fb.plans = []*planner.MealPlan{omelettePlan()}
		core := newTestCore(t, fb)
		_, _ = core.CheckSession(ctx)

		_, err := core.GeneratePlan(ctx, "quick", planner.KindDinner, 1)
		if !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("Expected ErrNotAuthenticated, got %v", err)
		}
		if fb.callCount("plan") != 0 {
			t.Error("Expected no plan request to be issued")
		}
		if !errors.Is(core.Snapshot().Errors[OpPlan], ErrNotAuthenticated) {
			t.Error("Expected the rejection to be recorded on the snapshot")
		}
	})

	t.Run("StageRequiresPlan", func(t *testing.T) {
		fb := newFakeBackend()
		core := newTestCore(t, fb)
		_, _ = core.CheckSession(ctx)

		if _, err := core.StageCart(ctx); !errors.Is(err, ErrNoPlan) {
			t.Fatalf("Expected ErrNoPlan, got %v", err)
		}
		if fb.callCount("cart") != 0 {
			t.Error("Expected no cart request to be issued")
		}
	})

	t.Run("ReportRequiresStage", func(t *testing.T) {
		fb := newFakeBackend()
		fb.plans = []*planner.MealPlan{omelettePlan()}
		core := newTestCore(t, fb)
		_, _ = core.CheckSession(ctx)
		_, _ = core.GeneratePlan(ctx, "quick", planner.KindDinner, 1)

		if _, err := core.RequestReport(ctx); !errors.Is(err, ErrNothingStaged) {
			t.Fatalf("Expected ErrNothingStaged, got %v", err)
		}
		if fb.callCount("report") != 0 {
			t.Error("Expected no report request to be issued")
		}
	})

	t.Run("ToggleRequiresPlan", func(t *testing.T) {
		core := newTestCore(t, newFakeBackend())
		if _, err := core.ToggleLeaf(selection.LeafKey(1, 0)); !errors.Is(err, ErrNoPlan) {
			t.Errorf("Expected ErrNoPlan, got %v", err)
		}
	})
}

func TestRegenerateInvalidatesLaterStages(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	fb.plans = []*planner.MealPlan{omelettePlan(), pastaPlan()}
	core := newTestCore(t, fb)
	_, _ = core.CheckSession(ctx)

	_, _ = core.GeneratePlan(ctx, "quick", planner.KindBreakfast, 1)
	if _, err := core.ToggleLeaf(selection.LeafKey(1, 1)); err != nil {
		t.Fatalf("ToggleLeaf failed: %v", err)
	}
	_, _ = core.StageCart(ctx)
	_, _ = core.RequestReport(ctx)
	if core.Stage() != StageReportReady {
		t.Fatalf("Expected report ready, got %s", core.Stage())
	}

	if _, err := core.GeneratePlan(ctx, "italian", planner.KindDinner, 2); err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	snap := core.Snapshot()
	if snap.Stage != StagePlanReady {
		t.Errorf("Expected plan ready, got %s", snap.Stage)
	}
	if snap.Staged != nil || snap.Report != nil {
		t.Error("Expected staged cart and report dropped")
	}

	want := []selection.Key{
		selection.LeafKey(1, 0),
		selection.LeafKey(2, 0), selection.LeafKey(2, 1), selection.LeafKey(2, 2),
	}
	if got := snap.Selection.IncludedKeys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected every leaf of the new plan included, got %v", got)
	}

	if _, err := core.RequestReport(ctx); !errors.Is(err, ErrNothingStaged) {
		t.Errorf("Expected ErrNothingStaged after regenerating, got %v", err)
	}
}

func TestPlanTransportFailure(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	fb.plans = []*planner.MealPlan{omelettePlan()}
	core := newTestCore(t, fb)
	_, _ = core.CheckSession(ctx)

	t.Run("NoPreviousPlan", func(t *testing.T) {
		fb.planErr = shared.TransportError("/plan", errors.New("connection refused"))
		_, err := core.GeneratePlan(ctx, "quick", planner.KindBreakfast, 1)
		if !shared.IsTransport(err) || shared.IsBackend(err) {
			t.Fatalf("Expected a transport error distinct from backend errors, got %v", err)
		}
		snap := core.Snapshot()
		if snap.Plan != nil || snap.Stage != StageAuthenticated {
			t.Errorf("Expected no plan and no stage change, got %s", snap.Stage)
		}
		if !shared.IsTransport(snap.Errors[OpPlan]) {
			t.Errorf("Expected transport error recorded, got %v", snap.Errors[OpPlan])
		}
	})

	t.Run("PreviousPlanKept", func(t *testing.T) {
		fb.planErr = nil
		_, _ = core.GeneratePlan(ctx, "quick", planner.KindBreakfast, 1)
		_, _ = core.StageCart(ctx)

		fb.planErr = shared.TransportError("/plan", errors.New("connection refused"))
		_, _ = core.GeneratePlan(ctx, "again", planner.KindBreakfast, 1)

		snap := core.Snapshot()
		if snap.Plan == nil || snap.Plan.Meals[0].Name != "Omelette" {
			t.Errorf("Expected the previous plan kept, got %+v", snap.Plan)
		}
		if snap.Stage != StageCartStaged {
			t.Errorf("Expected staged cart kept, got %s", snap.Stage)
		}
	})
}

func TestOmeletteStaging(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	fb.plans = []*planner.MealPlan{omelettePlan()}
	fb.stores["45202"] = []stores.StoreCandidate{{LocationID: "01400943", Name: "Kroger Downtown"}}
	core := newTestCore(t, fb)
	_, _ = core.CheckSession(ctx)
	_, _ = core.GeneratePlan(ctx, "quick", planner.KindBreakfast, 1)

	snap := core.Snapshot()
	if !snap.Selection.IsIncluded(selection.LeafKey(1, 0)) || !snap.Selection.IsIncluded(selection.LeafKey(1, 1)) {
		t.Fatal("Expected both ingredients included by default")
	}

	if _, err := core.ToggleLeaf("meal-1-ingredient-1"); err != nil {
		t.Fatalf("ToggleLeaf failed: %v", err)
	}
	if _, err := core.SearchStores(ctx, "45202"); err != nil {
		t.Fatalf("SearchStores failed: %v", err)
	}
	if err := core.SelectStore("01400943"); err != nil {
		t.Fatalf("SelectStore failed: %v", err)
	}
	if _, err := core.StageCart(ctx); err != nil {
		t.Fatalf("StageCart failed: %v", err)
	}

	req := fb.cartReqs[0]
	want := []cart.StagedMeal{{
		MealNumber:   1,
		Name:         "Omelette",
		Instructions: "Whisk and fry.",
		Ingredients:  []planner.Ingredient{{Name: "egg", Amount: "2"}},
	}}
	if !reflect.DeepEqual(req.Meals, want) {
		t.Errorf("Expected %+v, got %+v", want, req.Meals)
	}
	if req.MealKind != planner.KindBreakfast || req.LocationID != "01400943" {
		t.Errorf("Unexpected request %+v", req)
	}
}

func TestFailedRestageKeepsPreviousResponse(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	fb.plans = []*planner.MealPlan{omelettePlan()}
	core := newTestCore(t, fb)
	_, _ = core.CheckSession(ctx)
	_, _ = core.GeneratePlan(ctx, "quick", planner.KindBreakfast, 1)
	_, _ = core.StageCart(ctx)
	_, _ = core.RequestReport(ctx)

	fb.cartErr = shared.BackendError("/cart", 500, "cart service down")
	if _, err := core.StageCart(ctx); !shared.IsBackend(err) {
		t.Fatalf("Expected backend error, got %v", err)
	}

	snap := core.Snapshot()
	if string(snap.Staged) != `{"cart_id": "c-1", "added": 2}` {
		t.Errorf("Expected previous staged response kept, got %s", snap.Staged)
	}
	if snap.Report == nil || snap.Stage != StageReportReady {
		t.Errorf("Expected report kept after a failed re-stage, got %s", snap.Stage)
	}

	fb.cartErr = nil
	_, _ = core.StageCart(ctx)
	if got := core.Stage(); got != StageCartStaged {
		t.Errorf("Expected a successful re-stage to drop the report, got %s", got)
	}
}

func TestStoreSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("ZeroCandidates", func(t *testing.T) {
		fb := newFakeBackend()
		fb.stores["99999"] = []stores.StoreCandidate{}
		core := newTestCore(t, fb)

		if _, err := core.SearchStores(ctx, "99999"); err != nil {
			t.Fatalf("SearchStores failed: %v", err)
		}
		res := core.Snapshot().Stores
		if res.StatusMessage != "Found 0 stores near 99999." {
			t.Errorf("Unexpected message %q", res.StatusMessage)
		}
		if len(res.Candidates) != 0 || res.OffersSelection() {
			t.Error("Expected no candidates and no selection control")
		}
	})

	t.Run("FailureKeepsCandidates", func(t *testing.T) {
		fb := newFakeBackend()
		fb.stores["45202"] = []stores.StoreCandidate{{LocationID: "1", Name: "A"}, {LocationID: "2", Name: "B"}}
		core := newTestCore(t, fb)
		_, _ = core.SearchStores(ctx, "45202")
		_ = core.SelectStore("2")

		fb.storesErr = shared.TransportError("/stores", errors.New("timeout"))
		if _, err := core.SearchStores(ctx, "10001"); err == nil {
			t.Fatal("Expected an error")
		}
		res := core.Snapshot().Stores
		if len(res.Candidates) != 2 || res.SelectedID != "2" {
			t.Errorf("Expected previous candidates and selection kept, got %+v", res)
		}
		if res.StatusMessage == "Found 2 stores near 45202." {
			t.Error("Expected the status message to report the failure")
		}
	})
}

func TestOutOfOrderStoreSearch(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	fb.stores["11111"] = []stores.StoreCandidate{{LocationID: "old", Name: "Old"}}
	fb.stores["22222"] = []stores.StoreCandidate{{LocationID: "new", Name: "New"}}

	started := make(chan struct{})
	release := make(chan struct{})
	fb.hook = func(call, arg string) {
		if call == "stores" && arg == "11111" {
			close(started)
			<-release
		}
	}
	core := newTestCore(t, fb)

	done := make(chan error, 1)
	go func() {
		_, err := core.SearchStores(ctx, "11111")
		done <- err
	}()
	<-started

	if _, err := core.SearchStores(ctx, "22222"); err != nil {
		t.Fatalf("SearchStores failed: %v", err)
	}
	close(release)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Expected the late search to be superseded, got %v", err)
	}
	res := core.Snapshot().Stores
	if res.Query != "22222" || len(res.Candidates) != 1 || res.Candidates[0].LocationID != "new" {
		t.Errorf("Expected the newer search to win, got %+v", res)
	}
}

func TestLateStageAfterRegenerate(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	fb.plans = []*planner.MealPlan{omelettePlan(), pastaPlan()}

	started := make(chan struct{})
	release := make(chan struct{})
	fb.hook = func(call, arg string) {
		if call == "cart" {
			close(started)
			<-release
		}
	}
	core := newTestCore(t, fb)
	_, _ = core.CheckSession(ctx)
	_, _ = core.GeneratePlan(ctx, "quick", planner.KindBreakfast, 1)

	done := make(chan error, 1)
	go func() {
		_, err := core.StageCart(ctx)
		done <- err
	}()
	<-started

	if !core.Snapshot().Busy[OpCart] {
		t.Error("Expected the cart request to be marked busy")
	}

	if _, err := core.GeneratePlan(ctx, "italian", planner.KindDinner, 2); err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	close(release)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Expected the stale stage to be superseded, got %v", err)
	}
	snap := core.Snapshot()
	if snap.Stage != StagePlanReady || snap.Staged != nil {
		t.Errorf("Expected the stale stage dropped, got %s", snap.Stage)
	}
	if snap.Busy[OpCart] {
		t.Error("Expected no cart request marked busy")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	fb.plans = []*planner.MealPlan{omelettePlan()}
	core := newTestCore(t, fb)
	_, _ = core.CheckSession(ctx)
	_, _ = core.GeneratePlan(ctx, "quick", planner.KindBreakfast, 1)

	snap := core.Snapshot()
	snap.Plan.Meals[0].Ingredients[0].Name = "duck egg"
	_, _ = snap.Selection.ToggleLeaf(selection.LeafKey(1, 0))

	fresh := core.Snapshot()
	if fresh.Plan.Meals[0].Ingredients[0].Name != "egg" {
		t.Error("Expected the plan to be unaffected by snapshot edits")
	}
	if !fresh.Selection.IsIncluded(selection.LeafKey(1, 0)) {
		t.Error("Expected the selection to be unaffected by snapshot edits")
	}
}

func TestExpansion(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	fb.plans = []*planner.MealPlan{pastaPlan()}
	core := newTestCore(t, fb)
	_, _ = core.CheckSession(ctx)
	_, _ = core.GeneratePlan(ctx, "italian", planner.KindDinner, 2)

	if err := core.SetExpanded([]selection.Key{selection.MealKey(2), "meal-9"}); err != nil {
		t.Fatalf("SetExpanded failed: %v", err)
	}
	snap := core.Snapshot()
	if got := snap.Selection.ExpandedKeys(); !reflect.DeepEqual(got, []selection.Key{selection.MealKey(2)}) {
		t.Errorf("Expected only meal-2 expanded, got %v", got)
	}
	if err := core.ToggleExpanded(selection.MealKey(1)); err != nil {
		t.Fatalf("ToggleExpanded failed: %v", err)
	}
	if !core.Snapshot().Selection.IsExpanded(selection.MealKey(1)) {
		t.Error("Expected meal-1 expanded")
	}
}

func TestOnNavigate(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	core := newTestCore(t, fb)

	checked, err := core.OnNavigate(ctx, "/recipes")
	if checked || err != nil || fb.callCount("status") != 0 {
		t.Errorf("Expected no check for an unrelated page, got %v %v", checked, err)
	}

	for i := 0; i < 2; i++ {
		checked, err = core.OnNavigate(ctx, "http://localhost:8080/kroger-success/")
		if !checked || err != nil {
			t.Fatalf("Expected a session check, got %v %v", checked, err)
		}
	}
	if core.Stage() != StageAuthenticated {
		t.Errorf("Expected authenticated, got %s", core.Stage())
	}
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	core := newTestCore(t, fb)

	var (
		mu     sync.Mutex
		stages []Stage
		busy   []bool
	)
	unsubscribe := core.Subscribe(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		stages = append(stages, s.Stage)
		busy = append(busy, s.Busy[OpSession])
	})

	_, _ = core.CheckSession(ctx)
	unsubscribe()
	_, _ = core.CheckSession(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(stages) != 2 {
		t.Fatalf("Expected two notifications before unsubscribing, got %d", len(stages))
	}
	if !busy[0] || busy[1] {
		t.Errorf("Expected busy then idle, got %v", busy)
	}
	if stages[1] != StageAuthenticated {
		t.Errorf("Expected authenticated, got %s", stages[1])
	}
}

func TestFailedSessionCheckKeepsLaterStages(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	fb.plans = []*planner.MealPlan{omelettePlan()}
	core := newTestCore(t, fb)

	_, _ = core.CheckSession(ctx)
	_, _ = core.GeneratePlan(ctx, "quick", planner.KindBreakfast, 1)
	if _, err := core.StageCart(ctx); err != nil {
		t.Fatalf("StageCart failed: %v", err)
	}

	fb.mu.Lock()
	fb.statusErr = shared.TransportError("/status", errors.New("connection reset"))
	fb.mu.Unlock()
	if _, err := core.OnNavigate(ctx, "/kroger-success"); !shared.IsTransport(err) {
		t.Fatalf("Expected a transport error, got %v", err)
	}

	snap := core.Snapshot()
	if snap.Session.Authenticated {
		t.Error("Expected the failed check to be reflected in the session")
	}
	if snap.Stage != StageCartStaged {
		t.Errorf("Expected cart staged after a failed session check, got %s", snap.Stage)
	}
	if _, err := core.RequestReport(ctx); err != nil {
		t.Fatalf("RequestReport failed: %v", err)
	}
	if core.Stage() != StageReportReady {
		t.Errorf("Expected report ready, got %s", core.Stage())
	}
}

func TestSelectionEditsAgainstReplacedPlan(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	fb.plans = []*planner.MealPlan{omelettePlan(), pastaPlan()}
	core := newTestCore(t, fb)
	_, _ = core.CheckSession(ctx)

	_, _ = core.GeneratePlan(ctx, "quick", planner.KindBreakfast, 1)
	first := core.Snapshot().PlanGen
	if first == 0 {
		t.Fatal("Expected a plan generation")
	}
	_, _ = core.GeneratePlan(ctx, "italian", planner.KindDinner, 2)
	second := core.Snapshot().PlanGen
	if second == first {
		t.Fatalf("Expected a new generation, got %d twice", first)
	}

	if _, err := core.ToggleLeafAt(first, selection.LeafKey(1, 0)); !errors.Is(err, ErrStalePlan) {
		t.Errorf("Expected ErrStalePlan, got %v", err)
	}
	if err := core.ToggleExpandedAt(first, selection.MealKey(1)); !errors.Is(err, ErrStalePlan) {
		t.Errorf("Expected ErrStalePlan, got %v", err)
	}
	snap := core.Snapshot()
	if !snap.Selection.IsIncluded(selection.LeafKey(1, 0)) || !snap.Selection.IsExpanded(selection.MealKey(1)) {
		t.Error("Expected the current plan untouched by a stale edit")
	}

	included, err := core.ToggleLeafAt(second, selection.LeafKey(1, 0))
	if err != nil || included {
		t.Errorf("Expected penne excluded, got %v (%v)", included, err)
	}
}

// blockingSaver calls back into the core while saving, which would deadlock
// if the core held its lock across the write.
type blockingSaver struct {
	during func()
	paths  int
}

func (s *blockingSaver) Save(a *report.Artifact) (string, error) {
	if s.during != nil {
		s.during()
	}
	s.paths++
	return fmt.Sprintf("/tmp/report-%d.pdf", s.paths), nil
}

func TestReportSavedWithoutLock(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	fb.plans = []*planner.MealPlan{omelettePlan(), pastaPlan()}
	logger := logging.Discard()
	saver := &blockingSaver{}
	core := New(Deps{
		Session:   session.NewTracker(fb, "/kroger-success", logger),
		Locator:   stores.NewLocator(fb),
		Generator: planner.NewGenerator(fb, logger),
		Stager:    cart.NewStager(fb, logger),
		Requester: report.NewRequester(fb, logger),
		Saver:     saver,
	}, logger)

	_, _ = core.CheckSession(ctx)
	_, _ = core.GeneratePlan(ctx, "quick", planner.KindBreakfast, 1)
	_, _ = core.StageCart(ctx)

	saver.during = func() {
		done := make(chan struct{})
		go func() {
			_ = core.Snapshot()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("Snapshot blocked while the report was being saved")
		}
	}
	rep, err := core.RequestReport(ctx)
	if err != nil || rep.Path != "/tmp/report-1.pdf" {
		t.Fatalf("Expected a saved report, got %+v (%v)", rep, err)
	}

	t.Run("SupersededWhileSaving", func(t *testing.T) {
		saver.during = func() {
			if _, err := core.GeneratePlan(ctx, "italian", planner.KindDinner, 2); err != nil {
				t.Errorf("GeneratePlan failed: %v", err)
			}
		}
		_, _ = core.StageCart(ctx)
		if _, err := core.RequestReport(ctx); !errors.Is(err, ErrSuperseded) {
			t.Errorf("Expected ErrSuperseded, got %v", err)
		}
		snap := core.Snapshot()
		if snap.Report != nil || snap.Stage != StagePlanReady {
			t.Errorf("Expected no report for the replaced plan, got stage %s", snap.Stage)
		}
	})
}
