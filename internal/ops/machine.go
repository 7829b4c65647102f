package ops

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Action is the opaque asynchronous work an operation drives. It must honor
// ctx cancellation at its next safe checkpoint and may publish progress in
// [0,1] any number of times while running.
type Action func(ctx context.Context, progress func(float64)) (any, error)

// operation pairs the latest record snapshot with the runtime handles of the
// work driving it. Transitions replace the record; the handles are shared
// across replacements.
type operation struct {
	rec    *Record
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (o *operation) with(rec Record) *operation {
	return &operation{rec: &rec, ctx: o.ctx, cancel: o.cancel, done: o.done}
}

// Machine runs at most one operation per kind at a time. Each kind has its
// own atomic record slot, so operations of different kinds proceed fully in
// parallel; mutual exclusion is a compare-and-set on the slot, not a global
// lock.
type Machine struct {
	logger *log.Logger

	// OnTerminal, when set before the first request, is invoked with every
	// record that reaches a terminal state. Used to persist an audit trail.
	OnTerminal func(Record)

	slots map[Kind]*atomic.Pointer[operation]
}

// NewMachine returns a machine with an empty slot per operation kind.
// A nil logger falls back to the process default.
func NewMachine(logger *log.Logger) *Machine {
	if logger == nil {
		logger = log.Default()
	}
	slots := make(map[Kind]*atomic.Pointer[operation], len(Kinds()))
	for _, k := range Kinds() {
		slots[k] = &atomic.Pointer[operation]{}
	}
	return &Machine{logger: logger, slots: slots}
}

// Request admits a new operation of the given kind and starts driving action
// on its own goroutine. It fails with *ConflictError while any record for
// kind exists, terminal included; the existing record is untouched. The
// returned snapshot is in state Requested.
func (m *Machine) Request(kind Kind, action Action) (Record, error) {
	slot, ok := m.slots[kind]
	if !ok {
		return Record{}, fmt.Errorf("unknown operation kind %q", kind)
	}

	rec := Record{
		ID:          uuid.New(),
		Kind:        kind,
		State:       StateRequested,
		RequestedAt: time.Now(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	op := &operation{rec: &rec, ctx: ctx, cancel: cancel, done: make(chan struct{})}

	if !slot.CompareAndSwap(nil, op) {
		cancel()
		var active uuid.UUID
		if cur := slot.Load(); cur != nil {
			active = cur.rec.ID
		}
		return Record{}, &ConflictError{Kind: kind, Active: active}
	}

	m.logger.Printf("ops: %s %s requested", kind, shortID(rec.ID))
	go m.run(slot, op, action)
	return rec, nil
}

func (m *Machine) run(slot *atomic.Pointer[operation], op *operation, action Action) {
	started := time.Now()
	running := *op.rec
	running.State = StateRunning
	running.StartedAt = &started

	// Nothing else transitions a Requested record, so this swap only fails
	// if the machine itself is broken.
	if !slot.CompareAndSwap(op, op.with(running)) {
		return
	}
	m.logger.Printf("ops: %s %s running", running.Kind, shortID(running.ID))

	progress := func(p float64) {
		m.publishProgress(slot, running.ID, p)
	}
	result, err := action(op.ctx, progress)

	now := time.Now()
	if err != nil {
		m.publishTerminal(slot, running.ID, func(r Record) Record {
			r.State = StateFailed
			r.FinishedAt = &now
			r.Error = kindForError(err)
			r.ErrorMessage = err.Error()
			return r
		})
		return
	}
	m.publishTerminal(slot, running.ID, func(r Record) Record {
		r.State = StateSucceeded
		r.FinishedAt = &now
		r.Progress = 1
		r.Result = result
		return r
	})
}

// publishTerminal moves the running record with the given id to a terminal
// snapshot. It reports false when the record already left the Running state,
// in which case the caller's outcome is discarded; this is how a late action
// result loses to an earlier cancellation. The winning transition closes the
// record's done channel exactly once.
func (m *Machine) publishTerminal(slot *atomic.Pointer[operation], id uuid.UUID, terminalize func(Record) Record) (Record, bool) {
	for {
		cur := slot.Load()
		if cur == nil || cur.rec.ID != id || cur.rec.State != StateRunning {
			return Record{}, false
		}
		rec := terminalize(*cur.rec)
		next := cur.with(rec)
		if !slot.CompareAndSwap(cur, next) {
			continue
		}
		next.cancel()
		close(next.done)
		m.logTerminal(rec)
		if m.OnTerminal != nil {
			m.OnTerminal(rec)
		}
		return rec, true
	}
}

func (m *Machine) publishProgress(slot *atomic.Pointer[operation], id uuid.UUID, p float64) {
	if math.IsNaN(p) {
		return
	}
	p = math.Min(math.Max(p, 0), 1)
	for {
		cur := slot.Load()
		if cur == nil || cur.rec.ID != id || cur.rec.State != StateRunning {
			return
		}
		rec := *cur.rec
		rec.Progress = p
		if slot.CompareAndSwap(cur, cur.with(rec)) {
			return
		}
	}
}

// Cancel transitions a Running operation to Cancelled and signals its action
// to stop. Cancelling in any other state, including an empty slot, fails
// with *TooLateError and changes nothing. The action's eventual return value
// is discarded.
func (m *Machine) Cancel(kind Kind) (Record, error) {
	slot, ok := m.slots[kind]
	if !ok {
		return Record{}, fmt.Errorf("unknown operation kind %q", kind)
	}

	cur := slot.Load()
	if cur == nil {
		return Record{}, &TooLateError{Kind: kind, State: StateIdle, Verb: "cancel"}
	}
	if cur.rec.State != StateRunning {
		return Record{}, &TooLateError{Kind: kind, State: cur.rec.State, Verb: "cancel"}
	}

	now := time.Now()
	rec, won := m.publishTerminal(slot, cur.rec.ID, func(r Record) Record {
		r.State = StateCancelled
		r.FinishedAt = &now
		return r
	})
	if !won {
		state := StateIdle
		if latest := slot.Load(); latest != nil {
			state = latest.rec.State
		}
		return Record{}, &TooLateError{Kind: kind, State: state, Verb: "cancel"}
	}
	return rec, nil
}

// Clear empties the slot of a terminal record, returning the kind to Idle.
// Clearing a non-terminal record or an empty slot fails with *TooLateError.
func (m *Machine) Clear(kind Kind) error {
	slot, ok := m.slots[kind]
	if !ok {
		return fmt.Errorf("unknown operation kind %q", kind)
	}

	cur := slot.Load()
	if cur == nil {
		return &TooLateError{Kind: kind, State: StateIdle, Verb: "clear"}
	}
	if !cur.rec.State.Terminal() {
		return &TooLateError{Kind: kind, State: cur.rec.State, Verb: "clear"}
	}
	if !slot.CompareAndSwap(cur, nil) {
		return &TooLateError{Kind: kind, State: StateIdle, Verb: "clear"}
	}
	m.logger.Printf("ops: %s %s cleared", kind, shortID(cur.rec.ID))
	return nil
}

// Current returns the latest record snapshot for kind without blocking. The
// second return is false when the kind is Idle.
func (m *Machine) Current(kind Kind) (Record, bool) {
	slot, ok := m.slots[kind]
	if !ok {
		return Record{}, false
	}
	cur := slot.Load()
	if cur == nil {
		return Record{}, false
	}
	return *cur.rec, true
}

// Records returns the latest snapshot of every non-Idle kind, in stable
// kind order.
func (m *Machine) Records() []Record {
	var recs []Record
	for _, k := range Kinds() {
		if rec, ok := m.Current(k); ok {
			recs = append(recs, rec)
		}
	}
	return recs
}

// Wait blocks until the current operation for kind reaches a terminal state
// and returns that terminal snapshot. It returns immediately if the record
// is already terminal, and an error if the kind is Idle or ctx expires
// first.
func (m *Machine) Wait(ctx context.Context, kind Kind) (Record, error) {
	slot, ok := m.slots[kind]
	if !ok {
		return Record{}, fmt.Errorf("unknown operation kind %q", kind)
	}

	cur := slot.Load()
	if cur == nil {
		return Record{}, fmt.Errorf("no operation of kind %s", kind)
	}
	if cur.rec.State.Terminal() {
		return *cur.rec, nil
	}

	select {
	case <-ctx.Done():
		return *cur.rec, ctx.Err()
	case <-cur.done:
	}

	latest := slot.Load()
	if latest == nil || latest.rec.ID != cur.rec.ID {
		return Record{}, fmt.Errorf("operation %s was cleared before its result was read", kind)
	}
	return *latest.rec, nil
}

func (m *Machine) logTerminal(rec Record) {
	switch rec.State {
	case StateSucceeded:
		m.logger.Printf("ops: %s %s succeeded in %s", rec.Kind, shortID(rec.ID), runDuration(rec))
	case StateFailed:
		m.logger.Printf("ops: %s %s failed (%s): %s", rec.Kind, shortID(rec.ID), rec.Error, rec.ErrorMessage)
	case StateCancelled:
		m.logger.Printf("ops: %s %s cancelled after %s", rec.Kind, shortID(rec.ID), runDuration(rec))
	}
}

func runDuration(rec Record) time.Duration {
	if rec.StartedAt == nil || rec.FinishedAt == nil {
		return 0
	}
	return rec.FinishedAt.Sub(*rec.StartedAt).Round(time.Millisecond)
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
