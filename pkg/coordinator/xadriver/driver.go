// Package xadriver issues the literal MySQL-compatible XA verbs spec §6
// names over a single database/sql connection, backed by the
// go-sql-driver/mysql driver.
package xadriver

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// Conn is one live connection capable of executing the XA verbs. It wraps a
// single *sql.Conn checked out of a *sql.DB pool — XA branch state is tied
// to the underlying MySQL session, so the same physical connection must be
// used for START/END/PREPARE/COMMIT|ROLLBACK of one branch.
type Conn struct {
	db   *sql.DB
	conn *sql.Conn
}

// Open creates a *sql.DB for dsn. The pool itself owns connection lifetime;
// Open does not verify connectivity (callers probe via Ping/Probe).
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("xadriver: open: %w", err)
	}
	return db, nil
}

// Acquire checks out one physical connection from db for exclusive use by
// one XA branch.
func Acquire(ctx context.Context, db *sql.DB) (*Conn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("xadriver: acquire: %w", err)
	}
	return &Conn{db: db, conn: conn}, nil
}

// Close releases the underlying physical connection back to the pool.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Probe runs SELECT 1, the health check spec §6 names.
func (c *Conn) Probe(ctx context.Context) error {
	var discard int
	row := c.conn.QueryRowContext(ctx, "SELECT 1")
	if err := row.Scan(&discard); err != nil {
		return fmt.Errorf("xadriver: probe: %w", err)
	}
	return nil
}

// Start issues XA START '<branchID>'.
func (c *Conn) Start(ctx context.Context, branchID string) error {
	return c.exec(ctx, "XA START '%s'", branchID)
}

// End issues XA END '<branchID>'.
func (c *Conn) End(ctx context.Context, branchID string) error {
	return c.exec(ctx, "XA END '%s'", branchID)
}

// Prepare issues XA PREPARE '<branchID>'.
func (c *Conn) Prepare(ctx context.Context, branchID string) error {
	return c.exec(ctx, "XA PREPARE '%s'", branchID)
}

// Commit issues XA COMMIT '<branchID>'.
func (c *Conn) Commit(ctx context.Context, branchID string) error {
	return c.exec(ctx, "XA COMMIT '%s'", branchID)
}

// Rollback issues XA ROLLBACK '<branchID>'.
func (c *Conn) Rollback(ctx context.Context, branchID string) error {
	return c.exec(ctx, "XA ROLLBACK '%s'", branchID)
}

// Exec runs an arbitrary statement against this branch's connection — the
// hook through which caller-supplied operations (§4.3) reach the backend.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

// Query runs an arbitrary query against this branch's connection.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *Conn) exec(ctx context.Context, verb, branchID string) error {
	stmt := fmt.Sprintf(verb, branchID)
	_, err := c.conn.ExecContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("xadriver: %s: %w", stmt, err)
	}
	return nil
}
