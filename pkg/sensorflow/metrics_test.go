package sensorflow_test

import (
	"strings"
	"testing"

	"github.com/illmade-knight/go-sensorflow/pkg/sensorflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := sensorflow.NewPipelineMetrics(reg)
	require.NoError(t, err)

	m.Inc(sensorflow.PipelineConsumer, sensorflow.OutcomePersisted)
	m.Inc(sensorflow.PipelineConsumer, sensorflow.OutcomePersisted)
	m.Inc(sensorflow.PipelineProducer, sensorflow.OutcomeSkipped)

	expected := `
# HELP sensorflow_pipeline_messages_total Messages handled by a sensorflow pipeline, by outcome.
# TYPE sensorflow_pipeline_messages_total counter
sensorflow_pipeline_messages_total{outcome="persisted",pipeline="consumer"} 2
sensorflow_pipeline_messages_total{outcome="skipped",pipeline="producer"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "sensorflow_pipeline_messages_total"))

	// A second registration shares the counters.
	again, err := sensorflow.NewPipelineMetrics(reg)
	require.NoError(t, err)
	again.Inc(sensorflow.PipelineConsumer, sensorflow.OutcomePersisted)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Counter().WithLabelValues(sensorflow.PipelineConsumer, sensorflow.OutcomePersisted)))
}

func TestPipelineMetrics_NilIsSafe(t *testing.T) {
	var m *sensorflow.PipelineMetrics
	assert.NotPanics(t, func() { m.Inc(sensorflow.PipelineProducer, sensorflow.OutcomeFailed) })
}
