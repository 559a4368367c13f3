package planner

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"semaphore/internal/adapter"
)

// ErrNoViableTargets is returned when every requested target was
// excluded by validation; a partially valid request never errors.
var ErrNoViableTargets = errors.New("no viable targets in request")

// Job is one unit of dispatch work, consumed exactly once by the
// execution coordinator. Index is the target's position in the
// original request, preserved for stable result ordering.
type Job struct {
	ID          string
	Index       int
	Target      adapter.Target
	Content     adapter.AdaptedContent
	Mode        adapter.Mode
	ScheduledAt time.Time
	// RefEventID is the source event for reply, quote, retweet and
	// like actions. Empty for manual publishes.
	RefEventID string
}

// Excluded is a target dropped from the plan before dispatch, kept so
// execution results still cover every requested target.
type Excluded struct {
	Index   int
	Target  adapter.Target
	Content adapter.AdaptedContent
}

// Plan is the validated dispatch plan for one request.
type Plan struct {
	Jobs     []Job
	Excluded []Excluded
}

// TargetCount is the number of targets in the original request.
func (p Plan) TargetCount() int {
	return len(p.Jobs) + len(p.Excluded)
}

// Validations returns every target's adapted content in request order,
// planned and excluded alike.
func (p Plan) Validations() []TargetValidation {
	out := make([]TargetValidation, p.TargetCount())
	for _, job := range p.Jobs {
		out[job.Index] = TargetValidation{Target: job.Target, Content: job.Content}
	}
	for _, ex := range p.Excluded {
		out[ex.Index] = TargetValidation{Target: ex.Target, Content: ex.Content}
	}
	return out
}

// TargetValidation pairs a target with its adaptation outcome.
type TargetValidation struct {
	Target  adapter.Target
	Content adapter.AdaptedContent
}

// Planner expands a validated request into independent dispatch jobs.
type Planner struct {
	adapter *adapter.Adapter
}

// New creates a planner on top of the content adapter.
func New(a *adapter.Adapter) *Planner {
	return &Planner{adapter: a}
}

// Plan adapts the draft for each target and splits the request into
// dispatchable jobs and pre-excluded targets. A target with any
// error-level issue is excluded and recorded, never dispatched; the
// call fails outright only when no target survives. Job order is the
// insertion order of the target list.
func (p *Planner) Plan(draft adapter.Draft, source adapter.Source, targets []adapter.Target, opts adapter.Options) (Plan, error) {
	var plan Plan
	for i, target := range targets {
		content, err := p.adapter.Adapt(draft, source, target, opts)
		if err != nil {
			return Plan{}, err
		}

		if content.HasErrors() {
			plan.Excluded = append(plan.Excluded, Excluded{Index: i, Target: target, Content: content})
			continue
		}

		plan.Jobs = append(plan.Jobs, Job{
			ID:          uuid.NewString(),
			Index:       i,
			Target:      target,
			Content:     content,
			Mode:        opts.Mode,
			ScheduledAt: opts.ScheduledAt,
			RefEventID:  source.EventID,
		})
	}

	if len(plan.Jobs) == 0 && len(plan.Excluded) > 0 {
		return plan, ErrNoViableTargets
	}
	return plan, nil
}
