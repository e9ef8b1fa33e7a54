package mcp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfarch/pfarch/internal/metrics"
)

func TestHTTPServer_Health(t *testing.T) {
	s, _ := newTestServer(t)
	h := NewHTTPServer(s, HTTPOptions{Addr: "127.0.0.1:0"})

	ts := httptest.NewServer(h.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}

func TestHTTPServer_Metrics(t *testing.T) {
	s, _ := newTestServer(t)
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.ObserveEvaluation("GO", "user", 2_700_000, 0.1)

	h := NewHTTPServer(s, HTTPOptions{
		Addr:    "127.0.0.1:0",
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	ts := httptest.NewServer(h.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pfarch_evaluations_total")
}

func TestHTTPServer_NoMetricsByDefault(t *testing.T) {
	s, _ := newTestServer(t)
	h := NewHTTPServer(s, HTTPOptions{Addr: "127.0.0.1:0"})
	ts := httptest.NewServer(h.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPServer_EndpointPath(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, DefaultEndpointPath, NewHTTPServer(s, HTTPOptions{}).endpointPath)
	assert.Equal(t, "/rpc", NewHTTPServer(s, HTTPOptions{EndpointPath: "rpc"}).endpointPath)
}

func TestHTTPServer_StartStop(t *testing.T) {
	s, _ := newTestServer(t)
	h := NewHTTPServer(s, HTTPOptions{Addr: "127.0.0.1:0"})
	assert.Equal(t, "MCP HTTP Server", h.Name())

	require.NoError(t, h.Start(context.Background()))

	resp, err := http.Get("http://" + h.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Stop(ctx))

	_, err = http.Get("http://" + h.Addr() + "/health")
	assert.Error(t, err)
}

func TestHTTPServer_StopBeforeStart(t *testing.T) {
	s, _ := newTestServer(t)
	h := NewHTTPServer(s, HTTPOptions{Addr: "127.0.0.1:0"})
	assert.NoError(t, h.Stop(context.Background()))
}
