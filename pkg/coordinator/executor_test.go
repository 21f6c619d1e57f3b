package coordinator

import (
	"context"
	"errors"
	"testing"
)

func TestExecuteOperationSuccess(t *testing.T) {
	registry, conns := newMockRegistry("db1")
	txn := beginTransaction(t, registry, DefaultTransactionConfig())

	called := false
	op := func(ctx context.Context, sess *Session) error {
		called = true
		_, err := sess.Exec(ctx, "UPDATE accounts SET balance = balance - 1 WHERE id = 1")
		return err
	}

	if err := txn.ExecuteOperation(context.Background(), "db1", "debit", op); err != nil {
		t.Fatalf("ExecuteOperation: %v", err)
	}
	if !called {
		t.Fatal("operation closure was never invoked")
	}
	if conns["db1"].execCalls != 1 {
		t.Errorf("execCalls = %d, want 1", conns["db1"].execCalls)
	}
	if txn.Status().Operations != 1 {
		t.Errorf("Operations logged = %d, want 1", txn.Status().Operations)
	}
}

func TestExecuteOperationUnknownParticipant(t *testing.T) {
	registry, _ := newMockRegistry("db1")
	txn := beginTransaction(t, registry, DefaultTransactionConfig())

	err := txn.ExecuteOperation(context.Background(), "db-nonexistent", "debit", func(ctx context.Context, sess *Session) error {
		return nil
	})
	if !errors.Is(err, ErrUnknownParticipant) {
		t.Fatalf("err = %v, want ErrUnknownParticipant", err)
	}
}

func TestExecuteOperationFailureMarksParticipantFailedNotTransaction(t *testing.T) {
	registry, _ := newMockRegistry("db1")
	txn := beginTransaction(t, registry, DefaultTransactionConfig())

	boom := errors.New("constraint violation")
	err := txn.ExecuteOperation(context.Background(), "db1", "debit", func(ctx context.Context, sess *Session) error {
		return boom
	})
	if !errors.Is(err, ErrOperationFailed) {
		t.Fatalf("err = %v, want ErrOperationFailed", err)
	}
	if txn.Status().State != StateActive.String() {
		t.Fatalf("state = %s, want ACTIVE — an operation failure stays on one participant", txn.Status().State)
	}
	if got := txn.Status().Participants["db1"]; got != ParticipantFailed.String() {
		t.Fatalf("db1 participant state = %s, want FAILED", got)
	}
}

func TestExecuteOperationRefusedAfterParticipantFailure(t *testing.T) {
	registry, _ := newMockRegistry("db1")
	txn := beginTransaction(t, registry, DefaultTransactionConfig())

	_ = txn.ExecuteOperation(context.Background(), "db1", "debit", func(ctx context.Context, sess *Session) error {
		return errors.New("boom")
	})

	err := txn.ExecuteOperation(context.Background(), "db1", "credit", func(ctx context.Context, sess *Session) error {
		return nil
	})
	if !errors.Is(err, ErrWrongState) {
		t.Fatalf("err = %v, want ErrWrongState once the participant has FAILED", err)
	}
}

func TestRollbackAfterOperationFailureReleasesSession(t *testing.T) {
	registry, conns := newMockRegistry("db1")
	txn := beginTransaction(t, registry, DefaultTransactionConfig())

	_ = txn.ExecuteOperation(context.Background(), "db1", "debit", func(ctx context.Context, sess *Session) error {
		return errors.New("boom")
	})

	if err := txn.Rollback(context.Background()); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if conns["db1"].endCalls != 1 {
		t.Errorf("endCalls = %d, want 1 (the failed branch was never XA-ENDed by ExecuteOperation)", conns["db1"].endCalls)
	}
	if conns["db1"].rollbackCalls != 1 {
		t.Errorf("rollbackCalls = %d, want 1", conns["db1"].rollbackCalls)
	}
	if conns["db1"].closeCalls != 1 {
		t.Errorf("closeCalls = %d, want 1 (session released back to its pool and discarded)", conns["db1"].closeCalls)
	}
	if txn.Status().State != StateAborted.String() {
		t.Fatalf("state = %s, want ABORTED", txn.Status().State)
	}
}
