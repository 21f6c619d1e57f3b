package coordinator

import (
	"log"
	"time"
)

// EventKind identifies the structured events the coordinator emits, mapping
// to original_source/logger.py's log_transaction_start/prepare/commit
// helper functions.
type EventKind string

const (
	EventTransactionBegin    EventKind = "transaction_begin"
	EventTransactionPrepare  EventKind = "transaction_prepare"
	EventTransactionCommit   EventKind = "transaction_commit"
	EventTransactionRollback EventKind = "transaction_rollback"
	EventParticipantOutcome  EventKind = "participant_outcome"
)

// Event is a structured telemetry record. It carries no backend connection
// parameters or credentials.
type Event struct {
	Kind          EventKind
	TxID          string
	ParticipantID string
	State         string
	Success       bool
	Diagnostic    string
	Timestamp     time.Time
}

// Sink receives Events as the coordinator emits them. Implementations must
// not block the caller for long; the coordinator does not buffer events
// beyond this call. The package ships NoopSink and the stdlib-log-backed
// LogSink; any other destination is a Sink the caller supplies.
type Sink interface {
	Emit(Event)
}

// NoopSink discards every event. It is the default when a Transaction is
// constructed without an explicit Sink.
type NoopSink struct{}

func (NoopSink) Emit(Event) {}

// LogSink writes events through the standard library logger, matching the
// teacher's own use of stdlib `log` at its service edges
// (pkg/server/handlers/websocket.go) rather than adopting a structured
// logging library the corpus never reaches for.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink wraps logger (or log.Default() if nil) as a Sink.
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(e Event) {
	if e.ParticipantID == "" {
		s.logger.Printf("[%s] tx=%s state=%s success=%t", e.Kind, e.TxID, e.State, e.Success)
		return
	}
	s.logger.Printf("[%s] tx=%s participant=%s state=%s success=%t diagnostic=%q",
		e.Kind, e.TxID, e.ParticipantID, e.State, e.Success, e.Diagnostic)
}
