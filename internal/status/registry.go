// Package status is the single source of truth for all tracked operations.
// One Registry instance holds every in-flight and recently finished
// operation; schedulers report into it through a Reporter and observers
// subscribe to its events. It is safe to call from any goroutine and its
// mutators are guaranteed not to panic: status tracking must never take the
// business logic down with it.
package status

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smahi/mirrorbot/internal/models"
)

// InvalidID is the sentinel returned by Create when the registry cannot
// insert a record. Callers must tolerate it; Update and friends treat it as
// an unknown id and report false.
const InvalidID = ""

// DefaultGrace is how long finished operations stay visible before the sweep
// purges them.
const DefaultGrace = 2 * time.Minute

// Stats are running counters over the registry's lifetime.
type Stats struct {
	TotalCreated   int `json:"total_created"`
	TotalCompleted int `json:"total_completed"`
	TotalFailed    int `json:"total_failed"`
	Active         int `json:"active"`
	Current        int `json:"current"`
}

// Registry tracks every operation in the process. The zero value is not
// usable; construct one with New and pass it to schedulers explicitly.
type Registry struct {
	mu          sync.Mutex
	ops         map[string]*models.Operation
	subscribers map[int]chan Event
	nextSubID   int
	grace       time.Duration
	stats       Stats
}

// New returns a Registry with the given retention grace for finished
// operations. A grace of zero uses DefaultGrace.
func New(grace time.Duration) *Registry {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Registry{
		ops:         make(map[string]*models.Operation),
		subscribers: make(map[int]chan Event),
		grace:       grace,
	}
}

// Create inserts a fully populated record and returns its id. Observers see
// the operation complete from the first event; no placeholder rows. On an
// internal failure it logs and returns InvalidID instead of panicking.
func (r *Registry) Create(section, item string, kind models.OperationKind, changes ...Change) (id string) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("status: recovered panic in Create(%s:%s): %v", section, item, rec)
			id = InvalidID
		}
	}()

	op := &models.Operation{
		ID:         uuid.NewString(),
		Section:    section,
		Item:       item,
		Kind:       kind,
		Status:     models.StatusInitializing,
		Details:    "Initializing...",
		MaxRetries: 3,
		StartTime:  time.Now(),
	}

	var cs changeSet
	for _, c := range changes {
		c(&cs)
	}
	cs.applyTo(op)

	r.mu.Lock()
	r.ops[op.ID] = op
	r.stats.TotalCreated++
	r.stats.Active++
	snapshot := op.Clone()
	r.mu.Unlock()

	r.emit(Event{Type: EventCreated, OperationID: op.ID, Operation: snapshot})
	return op.ID
}

// Update applies a partial update atomically. Unknown ids return false
// without raising. Progress is normalized to [0,1]; a progress write while
// the operation is still pending or initializing auto-promotes it to
// running, and a progress of 1.0 with no explicit status completes a
// running operation.
func (r *Registry) Update(id string, changes ...Change) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("status: recovered panic in Update(%s): %v", id, rec)
			ok = false
		}
	}()

	var cs changeSet
	for _, c := range changes {
		c(&cs)
	}

	r.mu.Lock()
	op, found := r.ops[id]
	if !found {
		r.mu.Unlock()
		return false
	}

	wasActive := op.Status.IsActive() || op.Status == models.StatusPending
	r.applyLocked(op, &cs)
	nowTerminal := op.Status.IsTerminal()

	if wasActive && nowTerminal {
		r.stats.Active--
		switch op.Status {
		case models.StatusCompleted:
			r.stats.TotalCompleted++
		case models.StatusFailed:
			r.stats.TotalFailed++
		}
	}
	snapshot := op.Clone()
	r.mu.Unlock()

	r.emit(Event{Type: EventUpdated, OperationID: id, Operation: snapshot})
	if wasActive && nowTerminal {
		r.emit(Event{Type: EventCompleted, OperationID: id, Operation: snapshot})
	}
	return true
}

// applyLocked merges a change set into op, enforcing the lifecycle rules.
// Caller holds r.mu.
func (r *Registry) applyLocked(op *models.Operation, cs *changeSet) {
	if cs.progress != nil {
		p := *cs.progress
		// Some callers still report 0-100 percentages.
		if p > 1 {
			p = p / 100
		}
		if p < 0 {
			p = 0
		}
		if p > 1 {
			p = 1
		}
		cs.progress = &p

		if cs.status == nil {
			if p > 0 && (op.Status == models.StatusPending || op.Status == models.StatusInitializing) {
				running := models.StatusRunning
				cs.status = &running
			}
			if p >= 1 && op.Status == models.StatusRunning {
				completed := models.StatusCompleted
				cs.status = &completed
			}
		}
	}

	if cs.status != nil && !validTransition(op.Status, *cs.status) {
		log.Printf("status: ignoring illegal transition %s -> %s for %s", op.Status, *cs.status, op.ID)
		cs.status = nil
	}

	cs.applyTo(op)

	if op.Status.IsTerminal() && op.EndTime == nil {
		now := time.Now()
		op.EndTime = &now
	}
	if !op.Status.IsTerminal() {
		op.EndTime = nil
	}
}

// validTransition encodes the lifecycle state machine: pending/initializing
// feed running, paused is only reachable from running and only returns to
// running, and terminal states are final.
func validTransition(from, to models.OperationStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case models.StatusPending:
		return to == models.StatusInitializing || to == models.StatusRunning || to.IsTerminal()
	case models.StatusInitializing:
		return to == models.StatusRunning || to.IsTerminal()
	case models.StatusRunning:
		return to == models.StatusPaused || to.IsTerminal()
	case models.StatusPaused:
		return to == models.StatusRunning || to == models.StatusCancelled || to == models.StatusFailed
	default:
		// Terminal states never change.
		return false
	}
}

// Get returns a snapshot of one operation.
func (r *Registry) Get(id string) (models.Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok {
		return models.Operation{}, false
	}
	return op.Clone(), true
}

// GetAll returns snapshots of every tracked operation.
func (r *Registry) GetAll() []models.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Operation, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, op.Clone())
	}
	return out
}

// GetActive returns snapshots of operations that are initializing, running
// or paused.
func (r *Registry) GetActive() []models.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Operation
	for _, op := range r.ops {
		if op.Status.IsActive() {
			out = append(out, op.Clone())
		}
	}
	return out
}

// Remove deletes an operation and notifies subscribers.
func (r *Registry) Remove(id string) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("status: recovered panic in Remove(%s): %v", id, rec)
			ok = false
		}
	}()

	r.mu.Lock()
	op, found := r.ops[id]
	if !found {
		r.mu.Unlock()
		return false
	}
	if op.Status.IsActive() || op.Status == models.StatusPending {
		r.stats.Active--
	}
	snapshot := op.Clone()
	delete(r.ops, id)
	r.mu.Unlock()

	r.emit(Event{Type: EventRemoved, OperationID: id, Operation: snapshot})
	return true
}

// Sweep purges finished operations whose end time is older than the grace
// window and returns how many were removed. It is scheduled periodically by
// the jobs package.
func (r *Registry) Sweep() int {
	cutoff := time.Now().Add(-r.grace)

	r.mu.Lock()
	var expired []string
	for id, op := range r.ops {
		if op.Status.IsTerminal() && op.EndTime != nil && op.EndTime.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		r.Remove(id)
	}
	if len(expired) > 0 {
		log.Printf("status: swept %d finished operations", len(expired))
	}
	return len(expired)
}

// Statistics returns the registry's running counters.
func (r *Registry) Statistics() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Current = len(r.ops)
	return s
}
