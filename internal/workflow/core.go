package workflow

import (
	"context"
	"fmt"
	"sync"

	"grocery-planner/internal/cart"
	"grocery-planner/internal/planner"
	"grocery-planner/internal/report"
	"grocery-planner/internal/selection"
	"grocery-planner/internal/session"
	"grocery-planner/internal/stores"

	"github.com/sirupsen/logrus"
)

// Downloader stores a report artifact on the client side.
type Downloader interface {
	Save(a *report.Artifact) (string, error)
}

// Journal keeps a durable record of stages and reports.
type Journal interface {
	RecordStage(ctx context.Context, payload cart.Payload, locationID string, resp cart.Response) (int64, error)
	RecordReport(ctx context.Context, stagedCartID int64, path string, size int, contentType string) error
}

// Deps are the components the Core drives.
type Deps struct {
	Session   *session.Tracker
	Locator   *stores.Locator
	Generator *planner.Generator
	Stager    *cart.Stager
	Requester *report.Requester
	Saver     Downloader
}

// Option configures a Core.
type Option func(*Core)

// WithJournal records every successful stage and report.
func WithJournal(j Journal) Option {
	return func(c *Core) { c.journal = j }
}

// Core owns the session, store results, plan, selection, staged cart and
// report. All of it is guarded by mu, which is never held across a backend
// call. Completions apply only if their sequence token is still the latest
// for their Op.
type Core struct {
	deps    Deps
	journal Journal
	logger  logrus.FieldLogger

	mu       sync.Mutex
	seq      [opCount]uint64
	busy     [opCount]bool
	errs     [opCount]error
	session  session.Session
	results  stores.Results
	plan     *planner.MealPlan
	planGen  uint64
	kind     planner.MealKind
	sel      *selection.Model
	staged   cart.Response
	stagedID int64
	report   *Report

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Snapshot)
}

// New creates a Core in the Unauthenticated stage.
func New(deps Deps, logger logrus.FieldLogger, opts ...Option) *Core {
	c := &Core{
		deps:   deps,
		logger: logger,
		subs:   make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// begin issues a new sequence token for op. Callers hold mu.
func (c *Core) begin(op Op) uint64 {
	c.seq[op]++
	c.busy[op] = true
	return c.seq[op]
}

// current reports whether token is still the latest for op. Callers hold mu.
func (c *Core) current(op Op, token uint64) bool {
	return c.seq[op] == token
}

// finish records the outcome of a current request. Callers hold mu.
func (c *Core) finish(op Op, err error) {
	c.busy[op] = false
	c.errs[op] = err
}

// invalidate drops every later stage's state and in-flight requests. Callers hold mu.
func (c *Core) invalidate(ops ...Op) {
	for _, op := range ops {
		c.seq[op]++
		c.busy[op] = false
		c.errs[op] = nil
		switch op {
		case OpCart:
			c.staged = nil
			c.stagedID = 0
		case OpReport:
			c.report = nil
		}
	}
}

// reject records a synchronous precondition failure for op.
func (c *Core) reject(op Op, err error) error {
	c.mu.Lock()
	c.errs[op] = err
	c.mu.Unlock()
	c.notify()
	return err
}

func (c *Core) stale(op Op, token uint64) error {
	c.logger.WithFields(logrus.Fields{"kind": op.String(), "seq": token}).Debug("Dropping superseded result")
	return ErrSuperseded
}

// CheckSession asks the backend for the current session status.
func (c *Core) CheckSession(ctx context.Context) (session.Session, error) {
	c.mu.Lock()
	token := c.begin(OpSession)
	c.mu.Unlock()
	c.notify()

	s := c.deps.Session.CheckStatus(ctx)

	c.mu.Lock()
	if !c.current(OpSession, token) {
		c.mu.Unlock()
		return s, c.stale(OpSession, token)
	}
	c.session = s
	c.finish(OpSession, s.Err)
	c.mu.Unlock()
	c.notify()
	return s, s.Err
}

// OnNavigate re-checks the session when target is the landing page of the
// retailer's authorization hand-off. It reports whether a check was made.
func (c *Core) OnNavigate(ctx context.Context, target string) (bool, error) {
	if !c.deps.Session.IsAuthReturn(target) {
		return false, nil
	}
	_, err := c.CheckSession(ctx)
	return true, err
}

// SearchStores replaces the store candidates with the stores near query.
// A failed search keeps the previous candidates.
func (c *Core) SearchStores(ctx context.Context, query string) ([]stores.StoreCandidate, error) {
	c.mu.Lock()
	token := c.begin(OpStores)
	c.mu.Unlock()
	c.notify()

	candidates, err := c.deps.Locator.Search(ctx, query)

	c.mu.Lock()
	if !c.current(OpStores, token) {
		c.mu.Unlock()
		return nil, c.stale(OpStores, token)
	}
	if err != nil {
		c.results.Fail(query, err)
	} else {
		c.results.Apply(query, candidates)
	}
	c.finish(OpStores, err)
	c.mu.Unlock()
	c.notify()
	return candidates, err
}

// SelectStore picks one of the current candidates.
func (c *Core) SelectStore(locationID string) error {
	c.mu.Lock()
	err := c.results.Select(locationID)
	c.mu.Unlock()
	if err == nil {
		c.notify()
	}
	return err
}

// GeneratePlan requests a new plan. On success the selection is rebuilt
// fully selected and any staged cart or report is dropped. On failure the
// previous plan is kept.
func (c *Core) GeneratePlan(ctx context.Context, description string, kind planner.MealKind, count int) (*planner.MealPlan, error) {
	c.mu.Lock()
	if !c.session.Authenticated {
		c.mu.Unlock()
		return nil, c.reject(OpPlan, ErrNotAuthenticated)
	}
	token := c.begin(OpPlan)
	c.mu.Unlock()
	c.notify()

	plan, err := c.deps.Generator.Generate(ctx, description, kind, count)

	c.mu.Lock()
	if !c.current(OpPlan, token) {
		c.mu.Unlock()
		return nil, c.stale(OpPlan, token)
	}
	c.finish(OpPlan, err)
	if err == nil {
		c.plan = plan
		c.planGen = token
		c.kind = kind
		if c.sel == nil {
			c.sel = selection.New(plan)
		} else {
			c.sel.Rebuild(plan)
		}
		c.invalidate(OpCart, OpReport)
	}
	c.mu.Unlock()
	c.notify()

	if err != nil {
		return nil, err
	}
	return plan, nil
}

// ToggleLeaf flips one ingredient in or out of the cart selection.
func (c *Core) ToggleLeaf(key selection.Key) (bool, error) {
	return c.toggleLeaf(0, key)
}

// ToggleLeafAt is ToggleLeaf for a key taken from a rendering of plan
// generation gen. It fails with ErrStalePlan once a newer plan has replaced it.
func (c *Core) ToggleLeafAt(gen uint64, key selection.Key) (bool, error) {
	return c.toggleLeaf(gen, key)
}

func (c *Core) toggleLeaf(gen uint64, key selection.Key) (bool, error) {
	c.mu.Lock()
	if err := c.checkPlan(gen); err != nil {
		c.mu.Unlock()
		return false, err
	}
	included, err := c.sel.ToggleLeaf(key)
	c.mu.Unlock()
	if err == nil {
		c.notify()
	}
	return included, err
}

// checkPlan requires a plan, and when gen is non-zero, that it is the plan
// of that generation. Callers hold mu.
func (c *Core) checkPlan(gen uint64) error {
	if c.plan == nil {
		return ErrNoPlan
	}
	if gen != 0 && gen != c.planGen {
		return fmt.Errorf("%w: generation %d, current %d", ErrStalePlan, gen, c.planGen)
	}
	return nil
}

// SetExpanded replaces the expansion state. Keys outside the plan are ignored.
func (c *Core) SetExpanded(keys []selection.Key) error {
	c.mu.Lock()
	if c.plan == nil {
		c.mu.Unlock()
		return ErrNoPlan
	}
	c.sel.SetExpanded(keys)
	c.mu.Unlock()
	c.notify()
	return nil
}

// ToggleExpanded opens or closes one meal or ingredients group.
func (c *Core) ToggleExpanded(key selection.Key) error {
	return c.toggleExpanded(0, key)
}

// ToggleExpandedAt is ToggleExpanded guarded by a plan generation, like
// ToggleLeafAt.
func (c *Core) ToggleExpandedAt(gen uint64, key selection.Key) error {
	return c.toggleExpanded(gen, key)
}

func (c *Core) toggleExpanded(gen uint64, key selection.Key) error {
	c.mu.Lock()
	if err := c.checkPlan(gen); err != nil {
		c.mu.Unlock()
		return err
	}
	err := c.sel.ToggleExpanded(key)
	c.mu.Unlock()
	if err == nil {
		c.notify()
	}
	return err
}

// StageCart submits the current selection. A failed stage keeps the previous
// staged response; a successful one drops any report.
func (c *Core) StageCart(ctx context.Context) (cart.Response, error) {
	c.mu.Lock()
	if c.plan == nil {
		c.mu.Unlock()
		return nil, c.reject(OpCart, ErrNoPlan)
	}
	payload := cart.BuildPayload(c.plan, c.sel, c.kind)
	locationID := c.results.SelectedID
	token := c.begin(OpCart)
	c.mu.Unlock()
	c.notify()

	resp, err := c.deps.Stager.Stage(ctx, payload, locationID)

	c.mu.Lock()
	if !c.current(OpCart, token) {
		c.mu.Unlock()
		return nil, c.stale(OpCart, token)
	}
	c.finish(OpCart, err)
	if err == nil {
		c.invalidate(OpReport)
		c.staged = resp
		c.stagedID = 0
	}
	c.mu.Unlock()
	c.notify()

	if err != nil {
		return nil, err
	}

	if c.journal != nil {
		id, jerr := c.journal.RecordStage(ctx, payload, locationID, resp)
		if jerr != nil {
			c.logger.WithError(jerr).Warn("Failed to record staged cart")
		} else {
			c.mu.Lock()
			if c.current(OpCart, token) {
				c.stagedID = id
			}
			c.mu.Unlock()
		}
	}
	return resp, nil
}

// RequestReport fetches the report for the staged cart and saves it.
func (c *Core) RequestReport(ctx context.Context) (*Report, error) {
	c.mu.Lock()
	if len(c.staged) == 0 {
		c.mu.Unlock()
		return nil, c.reject(OpReport, ErrNothingStaged)
	}
	staged := c.staged
	plan := c.plan
	kind := c.kind
	token := c.begin(OpReport)
	c.mu.Unlock()
	c.notify()

	artifact, err := c.deps.Requester.Request(ctx, staged, plan, kind)

	// the file is written without holding mu; a result superseded while
	// saving is still dropped below
	var path string
	if err == nil {
		c.mu.Lock()
		fresh := c.current(OpReport, token)
		c.mu.Unlock()
		if !fresh {
			return nil, c.stale(OpReport, token)
		}
		path, err = c.deps.Saver.Save(artifact)
	}

	c.mu.Lock()
	if !c.current(OpReport, token) {
		c.mu.Unlock()
		return nil, c.stale(OpReport, token)
	}
	var rep *Report
	if err == nil {
		rep = &Report{Path: path, Artifact: artifact}
		c.report = rep
	}
	c.finish(OpReport, err)
	stagedID := c.stagedID
	c.mu.Unlock()
	c.notify()

	if err != nil {
		return nil, err
	}

	c.logger.WithField("path", rep.Path).Info("Report saved")
	if c.journal != nil {
		if jerr := c.journal.RecordReport(ctx, stagedID, rep.Path, len(artifact.Data), artifact.ContentType); jerr != nil {
			c.logger.WithError(jerr).Warn("Failed to record saved report")
		}
	}
	return rep, nil
}

// Subscribe calls fn with a fresh snapshot after every state change. The
// returned function removes the subscription.
func (c *Core) Subscribe(fn func(Snapshot)) func() {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Core) notify() {
	c.subMu.Lock()
	if len(c.subs) == 0 {
		c.subMu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	snap := c.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}
