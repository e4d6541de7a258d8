// Package prometheus exports writer counters as Prometheus metrics.
package prometheus

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bqship metric vectors of one registry.
type Metrics struct {
	registry *prometheus.Registry

	RecordsSent              *prometheus.CounterVec
	BytesSent                *prometheus.CounterVec
	RecordsAppended          *prometheus.CounterVec
	SendErrors               *prometheus.CounterVec
	RecordsInSinceCheckpoint *prometheus.GaugeVec
	AppendedSinceCheckpoint  *prometheus.GaugeVec
	Checkpoints              *prometheus.CounterVec
	Restarts                 *prometheus.CounterVec
}

// NewMetrics registers the bqship metrics in a new registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registerer := prometheus.Registerer(registry)
	f := promauto.With(registerer)

	labels := []string{"subtask"}
	return &Metrics{
		registry: registry,
		RecordsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bqship_records_sent_total",
			Help: "Rows dispatched in append requests",
		}, labels),
		BytesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bqship_bytes_sent_total",
			Help: "Framed bytes dispatched in append requests",
		}, labels),
		RecordsAppended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bqship_records_appended_total",
			Help: "Rows acknowledged and validated",
		}, labels),
		SendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bqship_send_errors_total",
			Help: "Rows in append requests that failed",
		}, labels),
		RecordsInSinceCheckpoint: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bqship_records_in_since_checkpoint",
			Help: "Records written since the last successful checkpoint",
		}, labels),
		AppendedSinceCheckpoint: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bqship_appended_since_checkpoint",
			Help: "Rows validated since the last successful checkpoint",
		}, labels),
		Checkpoints: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bqship_checkpoints_total",
			Help: "Checkpoints persisted",
		}, labels),
		Restarts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bqship_task_restarts_total",
			Help: "Subtask restarts after failures",
		}, labels),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, for registering additional
// collectors next to the bqship metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Sink returns a ports.MetricsSink writing to the series of subtask.
func (m *Metrics) Sink(subtask int) *Sink {
	l := prometheus.Labels{"subtask": strconv.Itoa(subtask)}
	return &Sink{
		recordsSent:     m.RecordsSent.With(l),
		bytesSent:       m.BytesSent.With(l),
		recordsAppended: m.RecordsAppended.With(l),
		sendErrors:      m.SendErrors.With(l),
		recordsIn:       m.RecordsInSinceCheckpoint.With(l),
		appendedIn:      m.AppendedSinceCheckpoint.With(l),
		checkpoints:     m.Checkpoints.With(l),
		restarts:        m.Restarts.With(l),
	}
}

// Sink implements ports.MetricsSink for one subtask.
type Sink struct {
	recordsSent     prometheus.Counter
	bytesSent       prometheus.Counter
	recordsAppended prometheus.Counter
	sendErrors      prometheus.Counter
	recordsIn       prometheus.Gauge
	appendedIn      prometheus.Gauge
	checkpoints     prometheus.Counter
	restarts        prometheus.Counter
}

func (s *Sink) AddRecordsSent(n int64)              { s.recordsSent.Add(float64(n)) }
func (s *Sink) AddBytesSent(n int64)                { s.bytesSent.Add(float64(n)) }
func (s *Sink) AddRecordsAppended(n int64)          { s.recordsAppended.Add(float64(n)) }
func (s *Sink) AddSendErrors(n int64)               { s.sendErrors.Add(float64(n)) }
func (s *Sink) AddRecordsInSinceCheckpoint(n int64) { s.recordsIn.Add(float64(n)) }
func (s *Sink) AddAppendedSinceCheckpoint(n int64)  { s.appendedIn.Add(float64(n)) }

// ResetCheckpointCounters zeroes the since-checkpoint gauges.
func (s *Sink) ResetCheckpointCounters() {
	s.recordsIn.Set(0)
	s.appendedIn.Set(0)
}

// CheckpointSaved counts a persisted checkpoint.
func (s *Sink) CheckpointSaved() { s.checkpoints.Inc() }

// TaskRestarted counts a subtask restart.
func (s *Sink) TaskRestarted() { s.restarts.Inc() }
