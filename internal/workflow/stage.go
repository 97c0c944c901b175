package workflow

import (
	"errors"

	"grocery-planner/internal/report"
)

// Stage is the user's position in the plan, stage, report flow.
type Stage int

const (
	StageUnauthenticated Stage = iota
	StageAuthenticated
	StagePlanReady
	StageCartStaged
	StageReportReady
)

func (s Stage) String() string {
	switch s {
	case StageUnauthenticated:
		return "unauthenticated"
	case StageAuthenticated:
		return "authenticated"
	case StagePlanReady:
		return "plan ready"
	case StageCartStaged:
		return "cart staged"
	case StageReportReady:
		return "report ready"
	default:
		return "unknown"
	}
}

// Op is a kind of backend request. Each kind has its own sequence.
type Op int

const (
	OpSession Op = iota
	OpStores
	OpPlan
	OpCart
	OpReport
	opCount
)

// Ops lists every operation kind in workflow order.
var Ops = []Op{OpSession, OpStores, OpPlan, OpCart, OpReport}

func (o Op) String() string {
	switch o {
	case OpSession:
		return "session"
	case OpStores:
		return "stores"
	case OpPlan:
		return "plan"
	case OpCart:
		return "cart"
	case OpReport:
		return "report"
	default:
		return "unknown"
	}
}

var (
	// ErrNotAuthenticated rejects plan generation before login.
	ErrNotAuthenticated = errors.New("not connected to Kroger: log in before generating a plan")
	// ErrNoPlan rejects staging, or editing the selection, before a plan exists.
	ErrNoPlan = errors.New("no meal plan: generate a plan first")
	// ErrStalePlan rejects a selection edit made against a replaced plan.
	ErrStalePlan = errors.New("plan has been replaced by a newer one")
	// ErrSuperseded is returned to the caller of a request whose result
	// arrived after a newer request of the same kind was issued.
	ErrSuperseded = errors.New("result superseded by a newer request")
	// ErrNothingStaged rejects a report request before a cart was staged.
	ErrNothingStaged = report.ErrNothingStaged
)
