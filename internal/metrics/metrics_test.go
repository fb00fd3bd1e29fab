package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/skillbridge/pkg/plugin"
)

func TestRecorder(t *testing.T) {
	m := NewMetrics()

	m.ObserveCall("echo/index", "say", "ok", 10*time.Millisecond)
	m.ObserveCall("echo/index", "say", "ok", 20*time.Millisecond)
	m.ObserveCall("echo/index", "say", "timeout", time.Second)
	m.SetRegistered(3)
	m.ObserveDiscoveryFailure()
	m.ObserveDecodeFailure()
	m.ObserveDecodeFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CallsTotal.WithLabelValues("echo/index", "say", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallsTotal.WithLabelValues("echo/index", "say", "timeout")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PluginsRegistered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DiscoveryFailuresTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecodeFailuresTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CallDuration))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.SetRegistered(1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "skillbridge_plugins_registered 1")
}

func TestServe(t *testing.T) {
	m := NewMetrics()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, addr, zerolog.Nop()) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		body = string(data)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, strings.Contains(body, "skillbridge_decode_failures_total"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServe_BadAddr(t *testing.T) {
	err := NewMetrics().Serve(context.Background(), "not-an-addr", zerolog.Nop())
	assert.Error(t, err)
}

func TestUnknownNamesShareSeries(t *testing.T) {
	m := NewMetrics()
	r := plugin.NewRegistry(zerolog.Nop(), plugin.WithRecorder(m))

	for _, key := range []string{"a/x", "b/y", "c/z"} {
		_, err := r.Invoke(context.Background(), key, "m-"+key, nil)
		require.Error(t, err)
	}

	assert.Equal(t, 1, testutil.CollectAndCount(m.CallsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CallsTotal.WithLabelValues(plugin.UnknownLabel, plugin.UnknownLabel, plugin.CodeUnknownPlugin)))
}
