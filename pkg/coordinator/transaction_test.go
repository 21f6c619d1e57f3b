package coordinator

import (
	"context"
	"errors"
	"testing"
)

func TestNewTransactionStartsInInit(t *testing.T) {
	registry, conns := newMockRegistry("db1", "db2")
	cfg := DefaultTransactionConfig()

	txn, err := NewTransaction(registry, cfg, nil)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	if txn.Status().State != StateInit.String() {
		t.Fatalf("state = %s, want INIT", txn.Status().State)
	}
	for id, conn := range conns {
		if conn.startCalls != 0 {
			t.Errorf("participant %s: startCalls = %d, want 0 before Begin", id, conn.startCalls)
		}
	}
}

func TestBeginStartsAllParticipants(t *testing.T) {
	registry, conns := newMockRegistry("db1", "db2")
	cfg := DefaultTransactionConfig()

	txn, err := NewTransaction(registry, cfg, nil)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	if err := txn.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if txn.Status().State != StateActive.String() {
		t.Fatalf("state = %s, want ACTIVE", txn.Status().State)
	}
	for id, conn := range conns {
		if conn.startCalls != 1 {
			t.Errorf("participant %s: startCalls = %d, want 1", id, conn.startCalls)
		}
	}
}

func TestBeginRejectsNonInitState(t *testing.T) {
	registry, _ := newMockRegistry("db1")
	cfg := DefaultTransactionConfig()

	txn := beginTransaction(t, registry, cfg)
	err := txn.Begin(context.Background())
	if !errors.Is(err, ErrWrongState) {
		t.Fatalf("second Begin err = %v, want ErrWrongState", err)
	}
}

func TestBeginRollsBackOnPartialFailure(t *testing.T) {
	registry, conns := newMockRegistry("db1", "db2")
	conns["db2"].failStart = errors.New("connection refused")
	cfg := DefaultTransactionConfig()

	txn, err := NewTransaction(registry, cfg, nil)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	err = txn.Begin(context.Background())
	if err == nil {
		t.Fatal("expected begin failure")
	}
	var coordErr *CoordinatorError
	if !errors.As(err, &coordErr) || !errors.Is(coordErr, ErrBeginFailed) {
		t.Fatalf("err = %v, want ErrBeginFailed", err)
	}
	if conns["db1"].rollbackCalls != 1 {
		t.Errorf("db1 rollbackCalls = %d, want 1 (partial begin must roll back)", conns["db1"].rollbackCalls)
	}
}

func TestPrepareThenCommitHappyPath(t *testing.T) {
	registry, conns := newMockRegistry("db1", "db2")
	cfg := DefaultTransactionConfig()
	txn := beginTransaction(t, registry, cfg)

	if err := txn.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if txn.Status().State != StatePrepared.String() {
		t.Fatalf("state after Prepare = %s, want PREPARED", txn.Status().State)
	}

	if err := txn.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if txn.Status().State != StateCommitted.String() {
		t.Fatalf("state after Commit = %s, want COMMITTED", txn.Status().State)
	}
	for id, conn := range conns {
		if conn.endCalls != 1 || conn.prepareCalls != 1 || conn.commitCalls != 1 {
			t.Errorf("participant %s: end=%d prepare=%d commit=%d, want 1/1/1", id, conn.endCalls, conn.prepareCalls, conn.commitCalls)
		}
	}
}

func TestPrepareFailureRollsBackAllParticipants(t *testing.T) {
	registry, conns := newMockRegistry("db1", "db2")
	conns["db2"].failPrepare = errors.New("disk full")
	cfg := DefaultTransactionConfig()
	txn := beginTransaction(t, registry, cfg)

	err := txn.Prepare(context.Background())
	if !errors.Is(err, ErrPrepareFailed) {
		t.Fatalf("Prepare err = %v, want ErrPrepareFailed", err)
	}
	if txn.Status().State != StateAborted.String() {
		t.Fatalf("state = %s, want ABORTED", txn.Status().State)
	}
	if conns["db1"].rollbackCalls != 1 {
		t.Errorf("db1 (already prepared) rollbackCalls = %d, want 1", conns["db1"].rollbackCalls)
	}
	if conns["db2"].rollbackCalls != 1 {
		t.Errorf("db2 (failed prepare) rollbackCalls = %d, want 1", conns["db2"].rollbackCalls)
	}
}

func TestCommitWarningDoesNotUndoEarlierCommits(t *testing.T) {
	registry, conns := newMockRegistry("db1", "db2")
	conns["db2"].failCommit = errors.New("connection lost mid-commit")
	cfg := DefaultTransactionConfig()
	txn := beginTransaction(t, registry, cfg)
	if err := txn.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	err := txn.Commit(context.Background())
	if !errors.Is(err, ErrCommitWarning) {
		t.Fatalf("Commit err = %v, want ErrCommitWarning", err)
	}
	if txn.Status().State != StateCommitted.String() {
		t.Fatalf("state = %s, want COMMITTED even with a warning", txn.Status().State)
	}
	if conns["db1"].commitCalls != 1 {
		t.Errorf("db1 commitCalls = %d, want 1 (must not be undone)", conns["db1"].commitCalls)
	}
	if conns["db2"].rollbackCalls != 0 {
		t.Errorf("db2 rollbackCalls = %d, want 0 (a failed XA COMMIT is not retried with rollback)", conns["db2"].rollbackCalls)
	}
}

func TestRollbackFromActiveEndsThenRollsBack(t *testing.T) {
	registry, conns := newMockRegistry("db1")
	cfg := DefaultTransactionConfig()
	txn := beginTransaction(t, registry, cfg)

	if err := txn.Rollback(context.Background()); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if conns["db1"].endCalls != 1 {
		t.Errorf("endCalls = %d, want 1", conns["db1"].endCalls)
	}
	if conns["db1"].rollbackCalls != 1 {
		t.Errorf("rollbackCalls = %d, want 1", conns["db1"].rollbackCalls)
	}
	if txn.Status().State != StateAborted.String() {
		t.Fatalf("state = %s, want ABORTED", txn.Status().State)
	}
}

func TestRollbackIsIdempotent(t *testing.T) {
	registry, conns := newMockRegistry("db1")
	cfg := DefaultTransactionConfig()
	txn := beginTransaction(t, registry, cfg)
	_ = txn.Rollback(context.Background())
	_ = txn.Rollback(context.Background())

	if conns["db1"].rollbackCalls != 1 {
		t.Errorf("rollbackCalls = %d, want 1 after two Rollback calls", conns["db1"].rollbackCalls)
	}
}

func TestCommitBeforePrepareIsWrongState(t *testing.T) {
	registry, _ := newMockRegistry("db1")
	cfg := DefaultTransactionConfig()
	txn := beginTransaction(t, registry, cfg)
	err := txn.Commit(context.Background())
	if !errors.Is(err, ErrWrongState) {
		t.Fatalf("err = %v, want ErrWrongState", err)
	}
}
