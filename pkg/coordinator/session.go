package coordinator

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// xaConn is the subset of *xadriver.Conn a Session needs. Narrowing to an
// interface here (rather than depending on the concrete type directly) lets
// tests substitute a fake connection without a live MySQL backend.
type xaConn interface {
	Probe(ctx context.Context) error
	Start(ctx context.Context, branchID string) error
	End(ctx context.Context, branchID string) error
	Prepare(ctx context.Context, branchID string) error
	Commit(ctx context.Context, branchID string) error
	Rollback(ctx context.Context, branchID string) error
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Close() error
}

// Session is a live connection to a Backend, capable of executing SQL
// including the XA verbs. It is owned by the Pool that produced it, loaned
// to callers, and invalidated on error. A Session loaned to a Transaction is
// owned exclusively by that transaction until terminal state.
type Session struct {
	backend Backend
	conn    xaConn

	branchID   string // set once the session is enlisted in a transaction
	lastOpTime time.Time
}

func newSession(backend Backend, conn xaConn) *Session {
	return &Session{backend: backend, conn: conn, lastOpTime: time.Now()}
}

// BackendID returns the id of the Backend this session connects to.
func (s *Session) BackendID() string {
	return s.backend.ID
}

// Probe runs the SELECT 1 health check on this session's connection.
func (s *Session) Probe(ctx context.Context) error {
	return s.conn.Probe(ctx)
}

// Exec runs an arbitrary statement against this session, updating
// lastOpTime. This is the hook caller-supplied operation closures use.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.lastOpTime = time.Now()
	return s.conn.Exec(ctx, query, args...)
}

// Query runs an arbitrary query against this session, updating lastOpTime.
func (s *Session) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	s.lastOpTime = time.Now()
	return s.conn.Query(ctx, query, args...)
}

// xaStart issues XA START for branchID and records it on the session.
func (s *Session) xaStart(ctx context.Context, branchID string) error {
	if err := s.conn.Start(ctx, branchID); err != nil {
		return err
	}
	s.branchID = branchID
	s.lastOpTime = time.Now()
	return nil
}

func (s *Session) xaEnd(ctx context.Context) error {
	if s.branchID == "" {
		return fmt.Errorf("session has no active XA branch")
	}
	err := s.conn.End(ctx, s.branchID)
	s.lastOpTime = time.Now()
	return err
}

func (s *Session) xaPrepare(ctx context.Context) error {
	if s.branchID == "" {
		return fmt.Errorf("session has no active XA branch")
	}
	err := s.conn.Prepare(ctx, s.branchID)
	s.lastOpTime = time.Now()
	return err
}

func (s *Session) xaCommit(ctx context.Context) error {
	if s.branchID == "" {
		return fmt.Errorf("session has no active XA branch")
	}
	err := s.conn.Commit(ctx, s.branchID)
	s.lastOpTime = time.Now()
	return err
}

func (s *Session) xaRollback(ctx context.Context) error {
	if s.branchID == "" {
		return fmt.Errorf("session has no active XA branch")
	}
	err := s.conn.Rollback(ctx, s.branchID)
	s.lastOpTime = time.Now()
	return err
}

// close releases the underlying physical connection entirely (used when a
// Pool discards an invalid session rather than returning it to idle).
func (s *Session) close() error {
	return s.conn.Close()
}
