package types

import "time"

// MetricSample is a group of named numeric observations sharing one source
// and timestamp. A single ingest call may carry multiple metric name/value
// pairs. Samples are immutable once stored.
type MetricSample struct {
	// Source is the logical origin service (e.g. "BackendAPI").
	Source string `json:"source"`

	// Timestamp is the observation time shared by all values in the sample.
	Timestamp time.Time `json:"timestamp"`

	// Metrics maps metric name to numeric value.
	Metrics map[string]float64 `json:"metrics"`
}

// Has reports whether the sample carries a value for the named metric.
func (s *MetricSample) Has(name string) bool {
	_, ok := s.Metrics[name]
	return ok
}

// MetricPoint is a single flattened metric observation as returned by
// metric queries: one row per metric name/value pair of a sample.
type MetricPoint struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
}
