package coordinator

import (
	"context"
	"fmt"
	"time"
)

// Operation is a caller-supplied unit of work run against one participant's
// Session while a Transaction is ACTIVE, e.g. a debit or credit statement.
type Operation func(ctx context.Context, sess *Session) error

// ExecuteOperation dispatches op against the named participant. It refuses
// to run outside ACTIVE state or once the global timeout has elapsed,
// appends an OperationRecord before invoking op (so the in-memory log
// reflects intent even if op panics), and marks that
// participant FAILED if op returns an error. The transaction itself stays
// ACTIVE — a failed operation does not move the transaction off the §4.4
// state graph, it just leaves one branch in a state that Prepare/Rollback
// must account for. Callers are expected to Rollback after a failure.
//
// Grounded on original_source/transaction_manager.py's execute_operation,
// which performs the same not-active/timeout guard and append-then-invoke
// ordering around each participant call.
func (t *Transaction) ExecuteOperation(ctx context.Context, participantID, name string, op Operation) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkActive(); err != nil {
		return err
	}

	p, ok := t.participants[participantID]
	if !ok {
		return &CoordinatorError{Kind: ErrUnknownParticipant, ParticipantID: participantID}
	}
	if p.State == ParticipantFailed {
		return &CoordinatorError{Kind: ErrWrongState, ParticipantID: participantID, Diagnostic: "participant already failed, roll back the transaction"}
	}

	t.operations = append(t.operations, OperationRecord{
		ParticipantID: participantID,
		Name:          name,
		Timestamp:     time.Now(),
	})

	if err := op(ctx, p.Session); err != nil {
		p.State = ParticipantFailed
		t.sink.Emit(Event{
			Kind:          EventParticipantOutcome,
			TxID:          t.txid,
			ParticipantID: participantID,
			State:         "OPERATION_FAILED",
			Success:       false,
			Diagnostic:    err.Error(),
			Timestamp:     time.Now(),
		})
		return &CoordinatorError{Kind: ErrOperationFailed, ParticipantID: participantID, Diagnostic: fmt.Sprintf("%s: %s", name, err)}
	}

	return nil
}
