package ntp

import (
	"context"
	"net"
	"testing"
	"time"

	beevik "github.com/beevik/ntp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GlowingScrewdriver/go-sntp/internal/clock"
	"github.com/GlowingScrewdriver/go-sntp/internal/config"
	"github.com/GlowingScrewdriver/go-sntp/internal/logging"
	"github.com/GlowingScrewdriver/go-sntp/internal/metrics"
	"github.com/GlowingScrewdriver/go-sntp/internal/sntp"
)

func testLogger() *logging.Logger {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LevelError
	return logging.New(cfg)
}

func testServerConfig() *config.ServerConfig {
	cfg := config.Default().Server
	cfg.Listen = "127.0.0.1:0"
	return cfg
}

func newTestService(t *testing.T, cfg *config.ServerConfig) (*Service, *metrics.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, reg)
	svc := NewService(testLogger(), m)
	svc.Configure(cfg)
	return svc, m
}

func startTestService(t *testing.T, cfg *config.ServerConfig) (*Service, *metrics.Registry) {
	t.Helper()
	svc, m := newTestService(t, cfg)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { svc.Stop(context.Background()) })
	return svc, m
}

func query(t *testing.T, addr net.Addr, timeout time.Duration) (*sntp.Result, error) {
	t.Helper()
	tr, err := sntp.ListenUDP("udp4")
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return sntp.NewClient(tr, &clock.RealClock{}).Sync(ctx, addr)
}

func TestServiceAnswersClient(t *testing.T) {
	svc, m := startTestService(t, testServerConfig())
	require.True(t, svc.Status().Running)

	res, err := query(t, svc.LocalAddr(), 2*time.Second)
	require.NoError(t, err)
	require.True(t, res.Accepted(), "reason: %v", res.Reason)

	resp := res.Response
	assert.Equal(t, sntp.ModeServer, resp.Mode())
	assert.Equal(t, sntp.ProtocolVersion, resp.Version())
	assert.Equal(t, uint8(1), resp.Stratum())
	assert.Equal(t, sntp.LeapNone, resp.Leap())
	assert.Equal(t, int8(4), resp.Poll())
	assert.Equal(t, int8(-20), resp.Precision())
	assert.Equal(t, "LOCL", sntp.FormatReferenceID(resp.ReferenceID(), resp.Stratum()))
	assert.InDelta(t, 0, res.Offset, 0.05)

	org, _ := resp.Timestamp(sntp.FieldOriginateTimestamp)
	xmt, _ := res.Request.Timestamp(sntp.FieldTransmitTimestamp)
	assert.Equal(t, xmt, org)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ServerRequests.WithLabelValues(metrics.RequestServed)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ServerStratum))
}

func TestServiceInheritedSocket(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := testServerConfig()
	cfg.Listen = "192.0.2.1:1" // not bindable; must not be used
	svc, _ := newTestService(t, cfg)
	svc.SetPacketConn(pc)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop(context.Background())

	assert.Equal(t, pc.LocalAddr().String(), svc.LocalAddr().String())

	res, err := query(t, pc.LocalAddr(), 2*time.Second)
	require.NoError(t, err)
	assert.True(t, res.Accepted())
}

func TestServiceBeevikInterop(t *testing.T) {
	svc, _ := startTestService(t, testServerConfig())

	resp, err := beevik.QueryWithOptions(svc.LocalAddr().String(), beevik.QueryOptions{Timeout: 2 * time.Second})
	require.NoError(t, err)
	require.NoError(t, resp.Validate())
	assert.Equal(t, uint8(1), resp.Stratum)
	assert.Equal(t, uint32(0x4c4f434c), resp.ReferenceID)
	assert.Less(t, resp.ClockOffset.Abs(), 50*time.Millisecond)
}

func TestServiceRawRequest(t *testing.T) {
	svc, m := startTestService(t, testServerConfig())

	conn, err := net.Dial("udp", svc.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	// malformed datagram first; it is dropped without a reply
	_, err = conn.Write(make([]byte, 10))
	require.NoError(t, err)

	// VN=3 client request with an arbitrary transmit nonce
	req := make([]byte, sntp.MessageSize)
	req[0] = 0x1b
	copy(req[40:48], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	_, err = conn.Write(req)
	require.NoError(t, err)

	resp := make([]byte, 128)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := conn.Read(resp)
	require.NoError(t, err)
	require.Equal(t, sntp.MessageSize, n)

	assert.Equal(t, byte(0x24), resp[0], "LI=0 VN=4 Mode=4")
	assert.Equal(t, req[40:48], resp[24:32], "originate echoes the request transmit field")

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ServerRequests.WithLabelValues(metrics.RequestMalformed)) == 1 &&
			testutil.ToFloat64(m.ServerRequests.WithLabelValues(metrics.RequestServed)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestServiceIgnoresNonClientModes(t *testing.T) {
	svc, m := startTestService(t, testServerConfig())

	conn, err := net.Dial("udp", svc.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	req := make([]byte, sntp.MessageSize)
	req[0] = 0x24 // a server-mode packet
	_, err = conn.Write(req)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err = conn.Read(make([]byte, 128))
	assert.Error(t, err, "no reply expected")
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ServerRequests.WithLabelValues(metrics.RequestMalformed)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestServiceRateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.RateLimit.Requests = 1
	cfg.RateLimit.Interval = "1h"
	svc, m := startTestService(t, cfg)

	res, err := query(t, svc.LocalAddr(), 2*time.Second)
	require.NoError(t, err)
	require.True(t, res.Accepted())

	_, err = query(t, svc.LocalAddr(), 200*time.Millisecond)
	assert.ErrorIs(t, err, sntp.ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ServerRequests.WithLabelValues(metrics.RequestRateLimited)))
}

func TestServiceUpstreamSync(t *testing.T) {
	upCfg := testServerConfig()
	upCfg.Stratum = 3
	upstream, _ := startTestService(t, upCfg)

	cfg := testServerConfig()
	cfg.Upstream = upstream.LocalAddr().String()
	cfg.ReferenceID = "LOCL"
	svc, m := startTestService(t, cfg)

	r := svc.Responder()
	assert.Equal(t, uint8(4), r.Stratum, "one below the upstream")
	assert.Equal(t, uint32(0x7f000001), r.ReferenceID, "upstream IPv4 address")
	assert.Equal(t, sntp.LeapNone, r.Leap)
	assert.WithinDuration(t, time.Now(), r.ReferenceTime.Time(), time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClientExchanges.WithLabelValues(metrics.ResultAccepted)))

	res, err := query(t, svc.LocalAddr(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", sntp.FormatReferenceID(res.Response.ReferenceID(), res.Response.Stratum()))
}

func TestServiceUpstreamStratumCapped(t *testing.T) {
	upCfg := testServerConfig()
	upCfg.Stratum = 15
	upstream, _ := startTestService(t, upCfg)

	cfg := testServerConfig()
	cfg.Upstream = upstream.LocalAddr().String()
	svc, _ := startTestService(t, cfg)
	assert.Equal(t, sntp.MaxStratum, svc.Responder().Stratum)
}

func TestServiceUpstreamFailureFallsBack(t *testing.T) {
	// nothing answers on the discard port; the start context bounds the wait
	cfg := testServerConfig()
	cfg.Upstream = "127.0.0.1:9"
	cfg.Stratum = 5
	cfg.ReferenceID = "192.0.2.1"
	svc, m := newTestService(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop(context.Background())

	r := svc.Responder()
	assert.Equal(t, uint8(5), r.Stratum)
	assert.Equal(t, uint32(0xc0000201), r.ReferenceID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClientExchanges.WithLabelValues(metrics.ResultTransportError)))
	assert.True(t, svc.Status().Running)
}

func TestServiceStatusDuringUpstreamSync(t *testing.T) {
	// an upstream that reads requests and never answers
	silent, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	cfg := testServerConfig()
	cfg.Upstream = silent.LocalAddr().String()
	svc, _ := newTestService(t, cfg)
	defer svc.Stop(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	started := make(chan error, 1)
	go func() { started <- svc.Start(ctx) }()

	// wait until the upstream request is on the wire
	buf := make([]byte, 64)
	silent.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = silent.ReadFrom(buf)
	require.NoError(t, err)

	status := make(chan bool, 1)
	go func() {
		st := svc.Status()
		svc.LocalAddr()
		status <- st.Running
	}()
	select {
	case running := <-status:
		assert.False(t, running)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Status blocked behind the upstream exchange")
	}

	require.NoError(t, <-started)
	assert.True(t, svc.Status().Running)
}

func TestServiceUnreasonableClock(t *testing.T) {
	svc, m := newTestService(t, testServerConfig())
	svc.SetClock(clock.NewMockClock(time.Date(1970, 1, 1, 0, 1, 0, 0, time.UTC)))
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop(context.Background())

	assert.Equal(t, sntp.LeapNotInSync, svc.Responder().Leap)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ServerLeap))
}

func TestServiceDisabled(t *testing.T) {
	cfg := testServerConfig()
	off := false
	cfg.Enabled = &off
	svc, _ := newTestService(t, cfg)

	require.NoError(t, svc.Start(context.Background()))
	assert.False(t, svc.Status().Running)
	assert.Nil(t, svc.LocalAddr())
}

func TestServiceBindError(t *testing.T) {
	cfg := testServerConfig()
	cfg.Listen = "192.0.2.1:1"
	svc, _ := newTestService(t, cfg)

	err := svc.Start(context.Background())
	require.Error(t, err)
	st := svc.Status()
	assert.False(t, st.Running)
	assert.Contains(t, st.Error, "failed to bind")
}

func TestServiceReload(t *testing.T) {
	svc, _ := startTestService(t, testServerConfig())

	full := config.Default()
	full.Server = testServerConfig()
	full.Server.Stratum = 7

	restarted, err := svc.Reload(full)
	require.NoError(t, err)
	assert.True(t, restarted)
	assert.True(t, svc.Status().Running)

	res, err := query(t, svc.LocalAddr(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint8(7), res.Response.Stratum())

	off := false
	full.Server.Enabled = &off
	_, err = svc.Reload(full)
	require.NoError(t, err)
	assert.False(t, svc.Status().Running)
}

func TestServiceStopIdempotent(t *testing.T) {
	svc, _ := startTestService(t, testServerConfig())
	assert.Equal(t, "ntp-server", svc.Name())
	require.NoError(t, svc.Stop(context.Background()))
	require.NoError(t, svc.Stop(context.Background()))
	assert.False(t, svc.Status().Running)
}

func TestPeerKey(t *testing.T) {
	assert.Equal(t, "192.0.2.1", peerKey(&net.UDPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 5000}))
	assert.Equal(t, "2001:db8::1", peerKey(&net.UDPAddr{IP: net.ParseIP("2001:db8::1"), Port: 5000}))
	assert.Equal(t, "10.0.0.1", peerKey(&net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1}))
}
