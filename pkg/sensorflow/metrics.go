package sensorflow

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline label values.
const (
	PipelineProducer = "producer"
	PipelineConsumer = "consumer"
)

// Outcome label values. The producer reports published, skipped and failed; the consumer
// reports persisted, not_found, skipped and failed.
const (
	OutcomePublished = "published"
	OutcomePersisted = "persisted"
	OutcomeNotFound  = "not_found"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// PipelineMetrics counts message outcomes per pipeline.
type PipelineMetrics struct {
	messages *prometheus.CounterVec
}

// NewPipelineMetrics registers sensorflow_pipeline_messages_total with reg. Registering
// twice with the same registry reuses the existing collector.
func NewPipelineMetrics(reg prometheus.Registerer) (*PipelineMetrics, error) {
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sensorflow",
		Subsystem: "pipeline",
		Name:      "messages_total",
		Help:      "Messages handled by a sensorflow pipeline, by outcome.",
	}, []string{"pipeline", "outcome"})

	if err := reg.Register(messages); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		messages = existing
	}
	return &PipelineMetrics{messages: messages}, nil
}

// Inc adds one to the pipeline/outcome counter. A nil receiver does nothing.
func (m *PipelineMetrics) Inc(pipeline, outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(pipeline, outcome).Inc()
}

// Counter exposes the underlying vector for tests and custom collectors.
func (m *PipelineMetrics) Counter() *prometheus.CounterVec {
	return m.messages
}
