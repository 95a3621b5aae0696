// Package telemetry emits JSON metric and span records, one per line.
// Secret-shaped tag values are redacted before leaving the process.
package telemetry

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Luiz-Frias/semcode/internal/ports"
	"github.com/Luiz-Frias/semcode/internal/redact"
)

// record is one telemetry line.
type record struct {
	Type        string            `json:"type"`
	TimestampMs int64             `json:"timestampMs"`
	MetricType  string            `json:"metricType,omitempty"`
	Name        string            `json:"name"`
	Value       float64           `json:"value,omitempty"`
	Unit        string            `json:"unit,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Event       string            `json:"event,omitempty"`
	SpanID      string            `json:"spanId,omitempty"`
	DurationMs  float64           `json:"durationMs,omitempty"`
}

// Sink writes telemetry records to a stream.
type Sink struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

var _ ports.Telemetry = (*Sink)(nil)

// NewSink creates a sink writing to out.
func NewSink(out io.Writer) *Sink {
	return &Sink{out: out, now: time.Now}
}

// NewStderr creates the default stderr sink.
func NewStderr() *Sink {
	return NewSink(os.Stderr)
}

func (s *Sink) write(rec record) {
	rec.TimestampMs = s.now().UnixMilli()
	rec.Tags = redact.Map(rec.Tags)
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	s.mu.Lock()
	_, _ = s.out.Write(append(payload, '\n'))
	s.mu.Unlock()
}

// Counter increments a named counter.
func (s *Sink) Counter(name string, value float64, tags map[string]string) {
	s.write(record{Type: "metric", MetricType: "counter", Name: name, Value: value, Tags: tags})
}

// Timer records a duration in milliseconds.
func (s *Sink) Timer(name string, durationMs float64, tags map[string]string) {
	s.write(record{Type: "metric", MetricType: "timer", Name: name, Value: durationMs, Unit: "ms", Tags: tags})
}

// SpanStart opens a span and returns its closer.
func (s *Sink) SpanStart(name string) func() {
	spanID := uuid.NewString()
	start := s.now()
	s.write(record{Type: "span", Name: name, Event: "start", SpanID: spanID})
	return func() {
		s.write(record{
			Type:       "span",
			Name:       name,
			Event:      "end",
			SpanID:     spanID,
			DurationMs: float64(s.now().Sub(start)) / float64(time.Millisecond),
		})
	}
}

// Noop is a telemetry sink that drops everything.
type Noop struct{}

var _ ports.Telemetry = Noop{}

// Counter implements ports.Telemetry.
func (Noop) Counter(name string, value float64, tags map[string]string) {}

// Timer implements ports.Telemetry.
func (Noop) Timer(name string, durationMs float64, tags map[string]string) {}

// SpanStart implements ports.Telemetry.
func (Noop) SpanStart(name string) func() { return func() {} }
