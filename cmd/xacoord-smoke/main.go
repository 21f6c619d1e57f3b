// Command xacoord-smoke drives a single end-to-end transfer across two
// configured backends: it begins a transaction, debits one account, credits
// the other, prepares, and commits — printing the outcome of each phase.
// Grounded on original_source/demo_2pc.py's scripted happy-path walkthrough
// and on the teacher's examples/distributed-2pc/main.go banner-per-step
// presentation style.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mnohosten/ddbs-coordinator/pkg/coordinator"
)

func main() {
	from := flag.String("from", "db1", "backend id to debit")
	to := flag.String("to", "db2", "backend id to credit")
	amount := flag.Int64("amount", 100, "amount to transfer, in cents")
	account := flag.String("account", "ACCT-1", "account id present in both backends' accounts table")
	flag.Parse()

	if err := run(*from, *to, *account, *amount); err != nil {
		fmt.Fprintf(os.Stderr, "xacoord-smoke: %v\n", err)
		os.Exit(1)
	}
}

func run(fromID, toID, account string, amount int64) error {
	fmt.Println("ddbs-coordinator smoke transfer")
	fmt.Println("===============================")

	backendCfg := coordinator.LoadBackendConfig()
	backends := []coordinator.Backend{
		coordinator.LoadBackend(1, fromID, backendCfg),
		coordinator.LoadBackend(2, toID, backendCfg),
	}

	cfg := coordinator.LoadTransactionConfig()
	registry, err := coordinator.NewRegistry(cfg, backends...)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	defer registry.Shutdown()

	sink := coordinator.NewLogSink(nil)
	ctx := context.Background()

	fmt.Printf("beginning transaction: debit %s on %s, credit %s on %s, amount=%d\n", account, fromID, account, toID, amount)
	txn, err := coordinator.NewTransaction(registry, cfg, sink)
	if err != nil {
		return fmt.Errorf("construct transaction: %w", err)
	}
	defer txn.Cleanup()

	if err := txn.Begin(ctx); err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	debit := func(c context.Context, sess *coordinator.Session) error {
		_, err := sess.Exec(c, "UPDATE accounts SET balance = balance - ? WHERE account_id = ?", amount, account)
		return err
	}
	credit := func(c context.Context, sess *coordinator.Session) error {
		_, err := sess.Exec(c, "UPDATE accounts SET balance = balance + ? WHERE account_id = ?", amount, account)
		return err
	}

	if err := txn.ExecuteOperation(ctx, fromID, "debit", debit); err != nil {
		rollback(ctx, txn)
		return fmt.Errorf("debit operation: %w", err)
	}
	if err := txn.ExecuteOperation(ctx, toID, "credit", credit); err != nil {
		rollback(ctx, txn)
		return fmt.Errorf("credit operation: %w", err)
	}

	fmt.Println("preparing...")
	if err := txn.Prepare(ctx); err != nil {
		rollback(ctx, txn)
		return fmt.Errorf("prepare: %w", err)
	}

	fmt.Println("committing...")
	if err := txn.Commit(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "commit reported a warning: %v\n", err)
	}

	status := txn.Status()
	fmt.Printf("final state: %s (elapsed %s)\n", status.State, status.Elapsed.Round(time.Millisecond))
	for id, state := range status.Participants {
		fmt.Printf("  participant %s: %s\n", id, state)
	}
	return nil
}

func rollback(ctx context.Context, txn *coordinator.Transaction) {
	if err := txn.Rollback(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "rollback also failed: %v\n", err)
	}
}
