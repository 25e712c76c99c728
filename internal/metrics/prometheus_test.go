package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GlowingScrewdriver/go-sntp/internal/sntp"
)

func newTestRegistry() *Registry {
	reg := prometheus.NewRegistry()
	return New(reg, reg)
}

func TestExchangeResult(t *testing.T) {
	assert.Equal(t, ResultTransportError, ExchangeResult(nil, sntp.ErrTransport))
	assert.Equal(t, ResultAccepted, ExchangeResult(&sntp.Result{State: sntp.Accepted}, nil))
	assert.Equal(t, ResultReplayMismatch, ExchangeResult(&sntp.Result{
		State:  sntp.Rejected,
		Reason: sntp.ErrReplayMismatch,
	}, nil))
	assert.Equal(t, ResultNonCompliant, ExchangeResult(&sntp.Result{
		State:  sntp.Rejected,
		Reason: errors.Join(sntp.ErrNonCompliant, errors.New("stratum 0")),
	}, nil))
}

func TestRecordExchange(t *testing.T) {
	r := newTestRegistry()

	r.RecordExchange(&sntp.Result{State: sntp.Accepted, Offset: 0.25, Delay: 0.01}, nil)
	r.RecordExchange(&sntp.Result{State: sntp.Rejected, Reason: sntp.ErrReplayMismatch}, nil)
	r.RecordExchange(nil, sntp.ErrTransport)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.ClientExchanges.WithLabelValues(ResultAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ClientExchanges.WithLabelValues(ResultReplayMismatch)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ClientExchanges.WithLabelValues(ResultTransportError)))
	assert.Equal(t, 0.25, testutil.ToFloat64(r.ClientOffset))
	assert.Equal(t, 0.01, testutil.ToFloat64(r.ClientDelay))
}

func TestRecordRequest(t *testing.T) {
	r := newTestRegistry()

	r.RecordRequest(RequestServed, 20*time.Microsecond)
	r.RecordRequest(RequestServed, 30*time.Microsecond)
	r.RecordRequest(RequestRateLimited, 0)
	r.RecordRequest(RequestMalformed, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ServerRequests.WithLabelValues(RequestServed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ServerRequests.WithLabelValues(RequestRateLimited)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ServerRequests.WithLabelValues(RequestMalformed)))
	assert.Equal(t, 1, testutil.CollectAndCount(r.ServerProcessing))
}

func TestServerStateAndReloads(t *testing.T) {
	r := newTestRegistry()
	r.SetServerState(3, sntp.LeapNotInSync)
	r.IncrementConfigReload(true)
	r.IncrementConfigReload(false)
	r.IncrementConfigReload(false)

	assert.Equal(t, 3.0, testutil.ToFloat64(r.ServerStratum))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.ServerLeap))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ConfigReload.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.ConfigReload.WithLabelValues("failure")))
}

func TestHandler(t *testing.T) {
	r := newTestRegistry()
	r.RecordRequest(RequestServed, time.Microsecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `sntp_server_requests_total{result="served"} 1`)
	assert.Contains(t, string(body), "sntp_server_processing_seconds_bucket")
}

func TestGetIsSingleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}
