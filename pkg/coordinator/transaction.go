package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// TxnState is the coordinator-level state of a Transaction, matching the
// state set exactly. Transitions are one-directional; a Transaction never
// returns to an earlier state. There is no FAILED transaction state — an
// operation failure against one participant is recorded on that Participant
// (see ParticipantState) and leaves the transaction ACTIVE, so Rollback
// still applies normally.
type TxnState int

const (
	StateInit TxnState = iota
	StateActive
	StatePreparing
	StatePrepared
	StateCommitting
	StateCommitted
	StateAborting
	StateAborted
)

func (s TxnState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateActive:
		return "ACTIVE"
	case StatePreparing:
		return "PREPARING"
	case StatePrepared:
		return "PREPARED"
	case StateCommitting:
		return "COMMITTING"
	case StateCommitted:
		return "COMMITTED"
	case StateAborting:
		return "ABORTING"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// ParticipantState is the per-branch state of one participant within a
// Transaction.
type ParticipantState int

const (
	ParticipantActive ParticipantState = iota
	ParticipantPrepared
	ParticipantCommitted
	ParticipantAborted
	ParticipantFailed
)

func (s ParticipantState) String() string {
	switch s {
	case ParticipantActive:
		return "ACTIVE"
	case ParticipantPrepared:
		return "PREPARED"
	case ParticipantCommitted:
		return "COMMITTED"
	case ParticipantAborted:
		return "ABORTED"
	case ParticipantFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Participant binds one backend's loaned Session to a Transaction's branch.
type Participant struct {
	BackendID string
	BranchID  string
	Session   *Session
	State     ParticipantState
}

// OperationRecord is an append-only log entry recording that an operation
// was dispatched to a participant, written before the operation closure runs
// so an operation that fails or panics still leaves a trace of intent in the
// in-memory log.
type OperationRecord struct {
	ParticipantID string
	Name          string
	Timestamp     time.Time
}

// Transaction is the 2PC state machine coordinating XA branches across a
// registry's backends. Grounded on
// _examples/mnohosten-laura-db/pkg/distributed/two_phase_commit.go's overall
// Coordinator shape, with its parallel sync.WaitGroup fan-out rewritten as
// sequential per-participant iteration in registry order (spec mandates
// deterministic sequential prepare/commit rather than the teacher's
// all-at-once fan-out), and on original_source/transaction_manager.py's
// begin_transaction/prepare/commit/rollback state handling.
type Transaction struct {
	mu sync.Mutex

	txid     string
	state    TxnState
	registry *Registry
	cfg      TransactionConfig
	sink     Sink

	order        []string
	participants map[string]*Participant
	operations   []OperationRecord

	startTime      time.Time
	preparingSince time.Time
}

// NewTransaction constructs a Transaction in the INIT state against
// registry, generating its txid. It performs no I/O; call Begin to acquire
// participant sessions and enter ACTIVE. Grounded on
// original_source/transaction_manager.py's TransactionManager.__init__
// versus its separate begin_transaction method.
func NewTransaction(registry *Registry, cfg TransactionConfig, sink Sink) (*Transaction, error) {
	if sink == nil {
		sink = NoopSink{}
	}
	txid, err := newTxID()
	if err != nil {
		return nil, fmt.Errorf("generate transaction id: %w", err)
	}

	return &Transaction{
		txid:         txid,
		state:        StateInit,
		registry:     registry,
		cfg:          cfg,
		sink:         sink,
		participants: make(map[string]*Participant),
	}, nil
}

// Begin acquires one session per registry backend, in registry order, and
// issues XA START on each, moving the transaction from INIT to ACTIVE. On
// any failure it best-effort rolls back and releases whatever was already
// started, moves the transaction to ABORTED and returns BeginFailed; a
// further Begin call is refused with WrongState (construct a new
// Transaction instead).
func (t *Transaction) Begin(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateInit {
		return &CoordinatorError{Kind: ErrWrongState, Diagnostic: fmt.Sprintf("begin requires INIT, got %s", t.state)}
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.GlobalTimeout)
	defer cancel()

	ids := t.registry.BackendIDs()
	for _, backendID := range ids {
		sess, err := t.registry.Acquire(ctx, backendID)
		if err != nil {
			t.abortPartialBegin(ctx)
			return newCoordErr(ErrBeginFailed, backendID, err)
		}
		branchID := fmt.Sprintf("%s.%s", t.txid, backendID)
		if err := sess.xaStart(ctx, branchID); err != nil {
			t.registry.Release(backendID, sess, false)
			t.abortPartialBegin(ctx)
			return newCoordErr(ErrBeginFailed, backendID, err)
		}
		t.order = append(t.order, backendID)
		t.participants[backendID] = &Participant{
			BackendID: backendID,
			BranchID:  branchID,
			Session:   sess,
			State:     ParticipantActive,
		}
	}

	t.state = StateActive
	t.startTime = time.Now()
	t.sink.Emit(Event{Kind: EventTransactionBegin, TxID: t.txid, State: t.state.String(), Success: true, Timestamp: time.Now()})
	return nil
}

// abortPartialBegin best-effort rolls back and releases any participant that
// had already been started before a later participant failed to begin, and
// moves the transaction to ABORTED.
func (t *Transaction) abortPartialBegin(ctx context.Context) {
	for _, backendID := range t.order {
		p := t.participants[backendID]
		_ = p.Session.xaEnd(ctx)
		_ = p.Session.xaRollback(ctx)
		p.State = ParticipantAborted
		t.registry.Release(backendID, p.Session, false)
		p.Session = nil
	}
	t.state = StateAborted
}

// TxID returns the transaction's opaque identifier.
func (t *Transaction) TxID() string {
	return t.txid
}

func newTxID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// checkActive returns ErrNotActive if the transaction isn't in ACTIVE state,
// or ErrTimeout if the global deadline has passed.
func (t *Transaction) checkActive() error {
	if t.state != StateActive {
		return &CoordinatorError{Kind: ErrNotActive, Diagnostic: fmt.Sprintf("transaction is %s", t.state)}
	}
	if time.Since(t.startTime) > t.cfg.GlobalTimeout {
		return &CoordinatorError{Kind: ErrTimeout, Diagnostic: "global timeout exceeded"}
	}
	return nil
}

// Prepare runs the prepare phase sequentially over participants in registry
// order: XA END then XA PREPARE per branch. Any failure rolls back every
// participant (including those already prepared) and leaves the transaction
// ABORTED. Success leaves it PREPARED.
func (t *Transaction) Prepare(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkActive(); err != nil {
		return err
	}
	t.state = StatePreparing
	t.preparingSince = time.Now()

	pctx, cancel := context.WithTimeout(ctx, t.cfg.PrepareTimeout)
	defer cancel()

	for _, backendID := range t.order {
		p := t.participants[backendID]

		if time.Since(t.preparingSince) > t.cfg.PrepareTimeout {
			t.rollbackAllLocked(ctx)
			t.state = StateAborted
			return &CoordinatorError{Kind: ErrTimeout, ParticipantID: backendID, Diagnostic: "prepare phase timed out"}
		}

		if err := p.Session.xaEnd(pctx); err != nil {
			p.State = ParticipantFailed
			t.sink.Emit(Event{Kind: EventParticipantOutcome, TxID: t.txid, ParticipantID: backendID, State: "END_FAILED", Success: false, Diagnostic: err.Error(), Timestamp: time.Now()})
			t.rollbackAllLocked(ctx)
			t.state = StateAborted
			return newCoordErr(ErrPrepareFailed, backendID, err)
		}

		if err := p.Session.xaPrepare(pctx); err != nil {
			p.State = ParticipantFailed
			t.sink.Emit(Event{Kind: EventParticipantOutcome, TxID: t.txid, ParticipantID: backendID, State: "PREPARE_FAILED", Success: false, Diagnostic: err.Error(), Timestamp: time.Now()})
			t.rollbackAllLocked(ctx)
			t.state = StateAborted
			return newCoordErr(ErrPrepareFailed, backendID, err)
		}

		p.State = ParticipantPrepared
		t.sink.Emit(Event{Kind: EventParticipantOutcome, TxID: t.txid, ParticipantID: backendID, State: "PREPARED", Success: true, Timestamp: time.Now()})
	}

	t.state = StatePrepared
	t.sink.Emit(Event{Kind: EventTransactionPrepare, TxID: t.txid, State: t.state.String(), Success: true, Timestamp: time.Now()})
	return nil
}

// Commit runs the commit phase sequentially over participants in registry
// order: XA COMMIT per branch. Unlike Prepare, a commit-phase failure on one
// participant does not undo participants already committed — that would
// violate atomicity in the other direction, since a committed XA branch
// cannot be rolled back. Any such failure is recorded and surfaced as
// ErrCommitWarning with the final state still COMMITTED.
func (t *Transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StatePrepared {
		return &CoordinatorError{Kind: ErrWrongState, Diagnostic: fmt.Sprintf("commit requires PREPARED, got %s", t.state)}
	}
	t.state = StateCommitting

	var firstWarning error
	for _, backendID := range t.order {
		p := t.participants[backendID]
		if err := p.Session.xaCommit(ctx); err != nil {
			p.State = ParticipantFailed
			t.sink.Emit(Event{Kind: EventParticipantOutcome, TxID: t.txid, ParticipantID: backendID, State: "COMMIT_FAILED", Success: false, Diagnostic: err.Error(), Timestamp: time.Now()})
			if firstWarning == nil {
				firstWarning = newCoordErr(ErrCommitWarning, backendID, err)
			}
			t.registry.Release(backendID, p.Session, false)
			p.Session = nil
			continue
		}
		p.State = ParticipantCommitted
		t.sink.Emit(Event{Kind: EventParticipantOutcome, TxID: t.txid, ParticipantID: backendID, State: "COMMITTED", Success: true, Timestamp: time.Now()})
		t.registry.Release(backendID, p.Session, true)
		p.Session = nil
	}

	t.state = StateCommitted
	t.sink.Emit(Event{Kind: EventTransactionCommit, TxID: t.txid, State: t.state.String(), Success: firstWarning == nil, Timestamp: time.Now()})
	return firstWarning
}

// Rollback aborts the transaction once Begin has succeeded. From ACTIVE,
// each participant is XA END then XA ROLLBACK. From PREPARED, each is
// XA ROLLBACK directly (END already happened in Prepare). From INIT or a
// terminal state it is a no-op.
func (t *Transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateInit, StateCommitted, StateAborted:
		return nil
	}

	t.state = StateAborting
	t.rollbackAllLocked(ctx)
	t.state = StateAborted
	t.sink.Emit(Event{Kind: EventTransactionRollback, TxID: t.txid, State: t.state.String(), Success: true, Timestamp: time.Now()})
	return nil
}

// rollbackAllLocked issues the correct rollback sequence per participant
// given their individual state, and releases every session. Caller must hold
// t.mu.
//
// ParticipantFailed is grouped with ParticipantActive (XA END then XA
// ROLLBACK) rather than with ParticipantPrepared: a participant can reach
// FAILED either from a Prepare-phase error (branch already ended) or from an
// ExecuteOperation error (branch never ended). Issuing XA END unconditionally
// before XA ROLLBACK covers both — a redundant END against an already-ended
// branch errors, but that error is discarded here just like every other
// rollback-path error, and the following XA ROLLBACK still runs.
func (t *Transaction) rollbackAllLocked(ctx context.Context) {
	for _, backendID := range t.order {
		p := t.participants[backendID]
		switch p.State {
		case ParticipantCommitted, ParticipantAborted:
			continue
		case ParticipantActive, ParticipantFailed:
			_ = p.Session.xaEnd(ctx)
			fallthrough
		case ParticipantPrepared:
			_ = p.Session.xaRollback(ctx)
		}
		p.State = ParticipantAborted
		t.registry.Release(backendID, p.Session, false)
		p.Session = nil
	}
}

// Cleanup releases any session still held by the transaction. It is
// idempotent and safe to call after Commit or Rollback has already released
// everything.
func (t *Transaction) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, backendID := range t.order {
		p := t.participants[backendID]
		if p.Session == nil {
			continue
		}
		t.registry.Release(backendID, p.Session, p.State == ParticipantCommitted)
		p.Session = nil
	}
}

// Status is a point-in-time snapshot of a Transaction's state, suitable for
// diagnostics and the smoke harness's progress output.
type Status struct {
	TxID         string
	State        string
	Participants map[string]string
	Operations   int
	Elapsed      time.Duration
}

// Status returns a snapshot of the transaction's current state.
func (t *Transaction) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	participants := make(map[string]string, len(t.participants))
	for id, p := range t.participants {
		participants[id] = p.State.String()
	}
	return Status{
		TxID:         t.txid,
		State:        t.state.String(),
		Participants: participants,
		Operations:   len(t.operations),
		Elapsed:      time.Since(t.startTime),
	}
}
