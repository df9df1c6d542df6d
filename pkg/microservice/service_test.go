package microservice_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/illmade-knight/go-sensorflow/pkg/microservice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestBaseServer_ServesHealthMetricsAndMountedHandlers(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_server_hits_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	server := microservice.NewBaseServer(zerolog.Nop(), ":0", reg)
	server.Handle("/hello", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("world"))
	}))
	require.NoError(t, server.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})

	port := server.GetHTTPPort()
	require.NotEqual(t, ":0", port)
	base := "http://localhost" + port

	code, body := get(t, base+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)

	code, body = get(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "test_server_hits_total 1")

	code, body = get(t, base+"/hello")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "world", body)
}

func TestBaseServer_StartFailsOnBadAddress(t *testing.T) {
	server := microservice.NewBaseServer(zerolog.Nop(), "not-an-address", nil)
	assert.Error(t, server.Start())
}
