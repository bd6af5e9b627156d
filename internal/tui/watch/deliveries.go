package watch

import (
	"encoding/json"
	"time"

	"github.com/mattjoyce/smoked-tofu/internal/checks"
	"github.com/mattjoyce/smoked-tofu/internal/dispatch"
	"github.com/mattjoyce/smoked-tofu/internal/events"
)

const maxDeliveries = 50

// DeliveryState tracks one push delivery discovered from events.
type DeliveryState struct {
	ID         string
	Repository string
	Ref        string
	Commits    int
	Outcomes   []dispatch.Outcome
	StartedAt  time.Time
	FinishedAt time.Time
}

// Done reports whether the delivery.finished event has been seen.
func (d *DeliveryState) Done() bool {
	return !d.FinishedAt.IsZero()
}

// Count returns how many commits ended at stage so far.
func (d *DeliveryState) Count(stage dispatch.Stage) int {
	n := 0
	for _, o := range d.Outcomes {
		if o.Stage == stage {
			n++
		}
	}
	return n
}

// Failed reports whether any commit did not complete or concluded in failure.
func (d *DeliveryState) Failed() bool {
	for _, o := range d.Outcomes {
		if o.Stage != dispatch.StageCompleted || o.Conclusion == string(checks.ConclusionFailure) {
			return true
		}
	}
	return false
}

// Tracker folds the event stream into per-delivery state, newest first.
type Tracker struct {
	byID  map[string]*DeliveryState
	order []string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{byID: make(map[string]*DeliveryState)}
}

// Apply updates state from one event. Events without a delivery ID are ignored.
func (t *Tracker) Apply(e events.Event) {
	if e.DeliveryID == "" {
		return
	}
	d := t.get(e.DeliveryID, e.At)

	switch e.Type {
	case events.TypeDeliveryStarted:
		var data struct {
			Repository string `json:"repository"`
			Ref        string `json:"ref"`
			Commits    int    `json:"commits"`
		}
		if err := json.Unmarshal(e.Data, &data); err != nil {
			return
		}
		d.Repository = data.Repository
		d.Ref = data.Ref
		d.Commits = data.Commits
		d.StartedAt = e.At

	case events.TypeCommitOutcome:
		var o dispatch.Outcome
		if err := json.Unmarshal(e.Data, &o); err != nil || o.CommitID == "" {
			return
		}
		d.Outcomes = append(d.Outcomes, o)

	case events.TypeDeliveryFinished:
		var batch dispatch.BatchResult
		if err := json.Unmarshal(e.Data, &batch); err != nil {
			return
		}
		// The batch is authoritative and fills in anything missed while disconnected.
		if batch.Repository != "" {
			d.Repository = batch.Repository
		}
		if batch.Ref != "" {
			d.Ref = batch.Ref
		}
		d.Outcomes = batch.Outcomes
		if len(batch.Outcomes) > d.Commits {
			d.Commits = len(batch.Outcomes)
		}
		if !batch.StartedAt.IsZero() {
			d.StartedAt = batch.StartedAt
		}
		d.FinishedAt = batch.FinishedAt
		if d.FinishedAt.IsZero() {
			d.FinishedAt = e.At
		}
	}
}

// Deliveries returns tracked deliveries, newest first.
func (t *Tracker) Deliveries() []*DeliveryState {
	out := make([]*DeliveryState, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

// Len returns the number of tracked deliveries.
func (t *Tracker) Len() int {
	return len(t.order)
}

func (t *Tracker) get(id string, at time.Time) *DeliveryState {
	if d, ok := t.byID[id]; ok {
		return d
	}
	d := &DeliveryState{ID: id, StartedAt: at}
	t.byID[id] = d
	t.order = append([]string{id}, t.order...)
	if len(t.order) > maxDeliveries {
		for _, old := range t.order[maxDeliveries:] {
			delete(t.byID, old)
		}
		t.order = t.order[:maxDeliveries]
	}
	return d
}

// Totals summarizes commit outcomes across tracked deliveries.
type Totals struct {
	Deliveries int
	Passed     int
	Failed     int
	Running    int
}

// Totals counts tracked commits by result. Commits announced by a delivery
// that has not finished and has no outcome yet count as running.
func (t *Tracker) Totals() Totals {
	totals := Totals{Deliveries: len(t.order)}
	for _, id := range t.order {
		d := t.byID[id]
		for _, o := range d.Outcomes {
			if o.Stage == dispatch.StageCompleted && o.Conclusion == string(checks.ConclusionSuccess) {
				totals.Passed++
			} else {
				totals.Failed++
			}
		}
		if !d.Done() && d.Commits > len(d.Outcomes) {
			totals.Running += d.Commits - len(d.Outcomes)
		}
	}
	return totals
}
