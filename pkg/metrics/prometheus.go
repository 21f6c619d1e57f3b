package metrics

import (
	"fmt"
	"io"
)

// PrometheusExporter exports coordinator metrics in Prometheus text format.
type PrometheusExporter struct {
	collector *Collector
	namespace string
}

// NewPrometheusExporter creates a new Prometheus exporter.
func NewPrometheusExporter(collector *Collector) *PrometheusExporter {
	return &PrometheusExporter{
		collector: collector,
		namespace: "ddbs_coordinator",
	}
}

// SetNamespace sets the metric namespace prefix.
func (pe *PrometheusExporter) SetNamespace(namespace string) {
	pe.namespace = namespace
}

// WriteMetrics writes all metrics in Prometheus text format to w.
// https://prometheus.io/docs/instrumenting/exposition_formats/
func (pe *PrometheusExporter) WriteMetrics(w io.Writer) error {
	snap := pe.collector.Snapshot()

	if err := pe.writeGauge(w, "uptime_seconds", "Coordinator process uptime in seconds", snap.UptimeSeconds); err != nil {
		return err
	}

	if err := pe.writeCounter(w, "transactions_started_total", "Total number of transactions begun", snap.TransactionsStarted); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "transactions_committed_total", "Total number of transactions reaching COMMITTED", snap.TransactionsCommitted); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "transactions_aborted_total", "Total number of transactions reaching ABORTED", snap.TransactionsAborted); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "commit_warnings_total", "Transactions committed with at least one failed participant commit", snap.CommitWarnings); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "begin_failures_total", "XA START failures during begin", snap.BeginFailures); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "prepare_failures_total", "Participants that failed or voted no during prepare", snap.PrepareFailures); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "operation_errors_total", "Operation closures that failed against a participant", snap.OperationErrors); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "participant_failures_total", "Participants that transitioned to FAILED", snap.ParticipantFailures); err != nil {
		return err
	}

	if err := pe.writeHistogram(w, "begin_duration_seconds", "Begin phase duration histogram", pe.collector.beginTimings); err != nil {
		return err
	}
	if err := pe.writePercentiles(w, "begin_duration_seconds", pe.collector.beginTimings); err != nil {
		return err
	}

	if err := pe.writeHistogram(w, "prepare_duration_seconds", "Prepare phase duration histogram", pe.collector.prepareTimings); err != nil {
		return err
	}
	if err := pe.writePercentiles(w, "prepare_duration_seconds", pe.collector.prepareTimings); err != nil {
		return err
	}

	if err := pe.writeHistogram(w, "commit_duration_seconds", "Commit phase duration histogram", pe.collector.commitTimings); err != nil {
		return err
	}
	if err := pe.writePercentiles(w, "commit_duration_seconds", pe.collector.commitTimings); err != nil {
		return err
	}

	if err := pe.writeHistogram(w, "rollback_duration_seconds", "Rollback phase duration histogram", pe.collector.rollbackTimings); err != nil {
		return err
	}
	if err := pe.writePercentiles(w, "rollback_duration_seconds", pe.collector.rollbackTimings); err != nil {
		return err
	}

	return nil
}

func (pe *PrometheusExporter) writeCounter(w io.Writer, name, help string, value uint64) error {
	metricName := pe.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n",
		metricName, help, metricName, metricName, value)
	return err
}

func (pe *PrometheusExporter) writeGauge(w io.Writer, name, help string, value float64) error {
	metricName := pe.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n",
		metricName, help, metricName, metricName, value)
	return err
}

func (pe *PrometheusExporter) writeHistogram(w io.Writer, name, help string, th *TimingHistogram) error {
	metricName := pe.namespace + "_" + name

	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", metricName, help, metricName); err != nil {
		return err
	}

	buckets := th.GetBuckets()
	var cumulative uint64

	for _, b := range []struct {
		key string
		le  string
	}{
		{"0-1ms", "0.001"},
		{"1-10ms", "0.01"},
		{"10-100ms", "0.1"},
		{"100-1000ms", "1.0"},
		{">1000ms", "+Inf"},
	} {
		cumulative += buckets[b.key]
		if _, err := fmt.Fprintf(w, "%s_bucket{le=\"%s\"} %d\n", metricName, b.le, cumulative); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "%s_count %d\n", metricName, cumulative); err != nil {
		return err
	}

	return nil
}

func (pe *PrometheusExporter) writePercentiles(w io.Writer, baseName string, th *TimingHistogram) error {
	percentiles := th.GetPercentiles()

	for _, p := range []string{"p50", "p95", "p99"} {
		if err := pe.writeGauge(w, baseName+"_"+p,
			fmt.Sprintf("%s percentile of %s", p, baseName),
			percentiles[p].Seconds()); err != nil {
			return err
		}
	}

	return nil
}
