// Package metrics defines the backend-neutral instrumentation surface.
//
// Application code depends only on Backend; concrete backends (Datadog,
// no-op) live in subpackages or are selected at startup. Implementations
// must tolerate concurrent calls from request handlers and workers.
package metrics

// Labels carries metric dimensions such as status or rejection rule.
type Labels map[string]string

// Backend receives counters and histogram samples from the application.
type Backend interface {
	// IncCounter adds delta to the named counter. Non-positive deltas
	// are ignored.
	IncCounter(name string, delta float64, labels Labels)

	// ObserveHistogram records one sample for the named distribution.
	ObserveHistogram(name string, value float64, labels Labels)

	// Flush submits buffered data to the sink, if the backend buffers.
	Flush() error

	// Close stops background work and performs a final Flush.
	Close() error
}

// Metric names used across the service. Backends map these onto their own
// naming schemes.
const (
	MetricAnalysisRuns     = "analysis_runs_total"
	MetricAnalysisRows     = "analysis_rows_total"
	MetricAnalysisDuration = "analysis_duration_seconds"
	MetricUploads          = "uploads_total"
	MetricHTTPRequests     = "http_requests_total"
	MetricHTTPErrors       = "http_errors_total"
	MetricHTTPDuration     = "http_request_duration_seconds"
)

// Nop is a Backend that discards everything. Useful when metrics are
// disabled and in tests.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }
func (Nop) Close() error                             { return nil }

var _ Backend = Nop{}
