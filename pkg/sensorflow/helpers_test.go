package sensorflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-sensorflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-sensorflow/pkg/sensorflow"
	"github.com/illmade-knight/go-sensorflow/pkg/sensors"
	"github.com/illmade-knight/go-sensorflow/pkg/sensorstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// chanConsumer is a channel-backed MessageConsumer.
type chanConsumer struct {
	msgs      chan messagepipeline.Message
	done      chan struct{}
	closeOnce sync.Once
}

func newChanConsumer() *chanConsumer {
	return &chanConsumer{msgs: make(chan messagepipeline.Message, 16), done: make(chan struct{})}
}

func (c *chanConsumer) Messages() <-chan messagepipeline.Message { return c.msgs }
func (c *chanConsumer) Start(context.Context) error              { return nil }
func (c *chanConsumer) Done() <-chan struct{}                    { return c.done }
func (c *chanConsumer) Stop(context.Context) error {
	c.closeOnce.Do(func() {
		close(c.msgs)
		close(c.done)
	})
	return nil
}

// delivery tracks the acknowledgement of one pushed message.
type delivery struct {
	mu    sync.Mutex
	acks  int
	nacks int
}

func (d *delivery) counts() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acks, d.nacks
}

func (d *delivery) settled() bool {
	a, n := d.counts()
	return a+n > 0
}

func (c *chanConsumer) push(payload []byte, attrs map[string]string) *delivery {
	d := &delivery{}
	c.msgs <- messagepipeline.Message{
		MessageData: messagepipeline.MessageData{ID: "test-msg", Payload: payload, PublishTime: time.Now()},
		Attributes:  attrs,
		Ack: func() {
			d.mu.Lock()
			d.acks++
			d.mu.Unlock()
		},
		Nack: func() {
			d.mu.Lock()
			d.nacks++
			d.mu.Unlock()
		},
	}
	return d
}

// waitSettled waits for the delivery to be acked or nacked and returns the counts.
func waitSettled(t *testing.T, d *delivery) (int, int) {
	t.Helper()
	require.Eventually(t, d.settled, 2*time.Second, 5*time.Millisecond)
	return d.counts()
}

type published struct {
	payload []byte
	attrs   map[string]string
}

// fakePublisher records publishes; err, when set, fails every publish.
type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, payload []byte, attrs map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{payload: payload, attrs: attrs})
	return nil
}

func (p *fakePublisher) Stop(context.Context) error { return nil }

func (p *fakePublisher) published() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

// faultyStore fails every ApplyReading with a storage fault.
type faultyStore struct {
	sensorstore.Store
}

func (faultyStore) ApplyReading(context.Context, sensors.Message) (*sensorstore.SensorRecord, error) {
	return nil, errors.Join(sensors.ErrStorageFault, errors.New("connection reset"))
}

func newTestMetrics(t *testing.T) *sensorflow.PipelineMetrics {
	t.Helper()
	m, err := sensorflow.NewPipelineMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func count(m *sensorflow.PipelineMetrics, pipeline, outcome string) float64 {
	return testutil.ToFloat64(m.Counter().WithLabelValues(pipeline, outcome))
}

func stopService(t *testing.T, stop func(context.Context) error) {
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = stop(ctx)
	})
}
