package metric

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/moonraker/errors"
)

func testCounter(name string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "moonraker",
		Subsystem: "test",
		Name:      name,
	})
}

func TestRegisterCounter(t *testing.T) {
	r := NewRegistry()

	counter := testCounter("events_total")
	require.NoError(t, r.RegisterCounter("client", "events", counter))

	counter.Add(3)

	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, family := range families {
		if family.GetName() == "moonraker_test_events_total" {
			found = true
			assert.Equal(t, 3.0, family.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "registered counter not gathered")
}

func TestRegister_DuplicateKeyRejected(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterCounter("client", "events", testCounter("a_total")))

	err := r.RegisterCounter("client", "events", testCounter("b_total"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRegister_PrometheusConflictRejected(t *testing.T) {
	r := NewRegistry()

	// same fully-qualified metric name under different registry keys
	require.NoError(t, r.RegisterCounter("client", "first", testCounter("dup_total")))

	err := r.RegisterCounter("client", "second", testCounter("dup_total"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRegister_SameNameDifferentComponents(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterCounter("client", "events", testCounter("client_events_total")))
	require.NoError(t, r.RegisterCounter("bridge", "events", testCounter("bridge_events_total")))
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterCounter("client", "events", testCounter("gone_total")))
	assert.True(t, r.Unregister("client", "events"))
	assert.False(t, r.Unregister("client", "events"))

	// the name is free again
	require.NoError(t, r.RegisterCounter("client", "events", testCounter("gone_total")))
}

func TestRegisterCounterVec(t *testing.T) {
	r := NewRegistry()

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moonraker",
		Subsystem: "test",
		Name:      "labeled_total",
	}, []string{"result"})
	require.NoError(t, r.RegisterCounterVec("client", "labeled", vec))

	vec.WithLabelValues("ok").Inc()

	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, family := range families {
		if family.GetName() == "moonraker_test_labeled_total" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestServer_ServesMetricsAndHealth(t *testing.T) {
	r := NewRegistry()

	counter := testCounter("served_total")
	require.NoError(t, r.RegisterCounter("client", "served", counter))
	counter.Inc()

	port := freePort(t)
	server := NewServer(port, "/metrics", r)

	go func() {
		if err := server.Start(); err != nil {
			t.Logf("server start: %v", err)
		}
	}()
	t.Cleanup(func() { _ = server.Stop() })

	base := fmt.Sprintf("http://localhost:%d", port)
	body := httpGet(t, base+"/metrics")
	assert.Contains(t, body, "moonraker_test_served_total 1")

	health := httpGet(t, base+"/health")
	assert.Equal(t, "OK", health)
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

func httpGet(t *testing.T, url string) string {
	t.Helper()

	var lastErr error
	for i := 0; i < 50; i++ {
		resp, err := http.Get(url)
		if err != nil {
			lastErr = err
			time.Sleep(20 * time.Millisecond)
			continue
		}
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}
	t.Fatalf("could not reach %s: %v", url, lastErr)
	return ""
}
