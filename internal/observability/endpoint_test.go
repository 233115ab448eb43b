package observability

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/sensorrec/internal/conf"
)

func TestEndpointServesMetrics(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Capture.RecordHandoff("acc", 10, true)

	settings := &conf.Settings{Metrics: conf.MetricsSettings{Enabled: true, Listen: "127.0.0.1:0"}}
	endpoint, err := NewEndpoint(settings, m)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	require.NoError(t, endpoint.Start(ctx))

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + endpoint.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `sensorrec_entries_total{stream="acc"} 10`)
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	endpoint.Wait()
}

func TestNewEndpointDisabled(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	_, err = NewEndpoint(&conf.Settings{}, m)
	require.Error(t, err)
}

func TestEndpointBindError(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	endpoint, err := NewEndpoint(&conf.Settings{Metrics: conf.MetricsSettings{Enabled: true, Listen: "256.0.0.1:99999"}}, m)
	require.NoError(t, err)
	require.Error(t, endpoint.Start(t.Context()))
}
