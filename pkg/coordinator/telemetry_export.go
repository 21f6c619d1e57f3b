package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mnohosten/ddbs-coordinator/pkg/compression"
	"github.com/mnohosten/ddbs-coordinator/pkg/metrics"
)

// DiagnosticsBundle is the payload exported by Registry.DiagnosticsBundle: a
// snapshot of backend health and coordinator metrics suitable for attaching
// to an incident report.
type DiagnosticsBundle struct {
	GeneratedAt time.Time                `json:"generated_at"`
	Backends    map[string]BackendStatus `json:"backends"`
	Metrics     metrics.Snapshot         `json:"metrics"`
}

// DiagnosticsBundle builds a DiagnosticsBundle for the registry's current
// backend status and collector's current counters, marshals it to JSON, and
// compresses it with zstd — reusing pkg/compression's generic Compressor
// rather than inventing a bundle-specific codec.
func (r *Registry) DiagnosticsBundle(ctx context.Context, collector *metrics.Collector, at time.Time) ([]byte, error) {
	bundle := DiagnosticsBundle{
		GeneratedAt: at,
		Backends:    r.Status(ctx),
		Metrics:     collector.Snapshot(),
	}

	raw, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("marshal diagnostics bundle: %w", err)
	}

	comp, err := compression.NewCompressor(compression.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("create compressor: %w", err)
	}
	defer comp.Close()

	packed, err := comp.Compress(raw)
	if err != nil {
		return nil, fmt.Errorf("compress diagnostics bundle: %w", err)
	}
	return packed, nil
}

// DecodeDiagnosticsBundle reverses DiagnosticsBundle's compression and
// unmarshals the result, for tooling that inspects a previously-exported
// bundle.
func DecodeDiagnosticsBundle(packed []byte) (DiagnosticsBundle, error) {
	var bundle DiagnosticsBundle

	comp, err := compression.NewCompressor(compression.DefaultConfig())
	if err != nil {
		return bundle, fmt.Errorf("create compressor: %w", err)
	}
	defer comp.Close()

	raw, err := comp.Decompress(packed)
	if err != nil {
		return bundle, fmt.Errorf("decompress diagnostics bundle: %w", err)
	}
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return bundle, fmt.Errorf("unmarshal diagnostics bundle: %w", err)
	}
	return bundle, nil
}
