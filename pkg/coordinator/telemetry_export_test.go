package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/mnohosten/ddbs-coordinator/pkg/metrics"
)

func TestDiagnosticsBundleRoundTrips(t *testing.T) {
	registry, _ := newMockRegistry("db1", "db2")
	collector := metrics.NewCollector()
	collector.RecordBegin(5*time.Millisecond, true)
	collector.RecordCommit(3*time.Millisecond, false)

	generatedAt := time.Unix(1700000000, 0).UTC()
	packed, err := registry.DiagnosticsBundle(context.Background(), collector, generatedAt)
	if err != nil {
		t.Fatalf("DiagnosticsBundle: %v", err)
	}
	if len(packed) == 0 {
		t.Fatal("expected non-empty compressed bundle")
	}

	bundle, err := DecodeDiagnosticsBundle(packed)
	if err != nil {
		t.Fatalf("DecodeDiagnosticsBundle: %v", err)
	}
	if !bundle.GeneratedAt.Equal(generatedAt) {
		t.Errorf("GeneratedAt = %v, want %v", bundle.GeneratedAt, generatedAt)
	}
	if bundle.Metrics.TransactionsStarted != 1 {
		t.Errorf("TransactionsStarted = %d, want 1", bundle.Metrics.TransactionsStarted)
	}
	if len(bundle.Backends) != 2 {
		t.Errorf("Backends count = %d, want 2", len(bundle.Backends))
	}
}
