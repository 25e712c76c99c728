// Package ntp runs the SNTP responder as a long-lived UDP service.
package ntp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/GlowingScrewdriver/go-sntp/internal/clock"
	"github.com/GlowingScrewdriver/go-sntp/internal/config"
	"github.com/GlowingScrewdriver/go-sntp/internal/logging"
	"github.com/GlowingScrewdriver/go-sntp/internal/metrics"
	"github.com/GlowingScrewdriver/go-sntp/internal/ratelimit"
	"github.com/GlowingScrewdriver/go-sntp/internal/services"
	"github.com/GlowingScrewdriver/go-sntp/internal/sntp"
)

const (
	// readBufferSize is larger than a message so oversized datagrams are
	// seen as such instead of being truncated to a valid length.
	readBufferSize = 1024

	upstreamTimeout = 5 * time.Second
	limiterSweep    = time.Minute
	limiterMaxIdle  = 10 * time.Minute
)

// Service answers SNTP client requests.
type Service struct {
	mu        sync.RWMutex
	logger    *logging.Logger
	metrics   *metrics.Registry
	clock     clock.Clock
	conn      net.PacketConn
	adopted   net.PacketConn
	cancel    context.CancelFunc
	running   bool
	cfg       *config.ServerConfig
	responder sntp.Responder
	lastErr   error
	wg        sync.WaitGroup
}

// NewService creates a new SNTP server service.
func NewService(logger *logging.Logger, reg *metrics.Registry) *Service {
	return &Service{
		logger:  logger.WithComponent("ntp-server"),
		metrics: reg,
		clock:   &clock.RealClock{},
	}
}

// SetClock replaces the time source used for timestamps.
func (s *Service) SetClock(c clock.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = c
}

// SetPacketConn hands the service an already bound socket (socket
// activation, tests). It is used by the next Start instead of binding
// server.listen, and is closed by Stop.
func (s *Service) SetPacketConn(conn net.PacketConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adopted = conn
}

// Configure sets the server block used by the next Start.
func (s *Service) Configure(cfg *config.ServerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *Service) Name() string {
	return "ntp-server"
}

// Start binds the listener and begins answering requests. The upstream
// exchange runs without holding the lock.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.cfg == nil {
		s.cfg = config.Default().Server
	}
	cfg, c := s.cfg, s.clock
	s.mu.Unlock()

	if !cfg.IsEnabled() {
		s.logger.Info("Server disabled by configuration")
		return nil
	}

	responder := s.buildResponder(ctx, cfg, c)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		// a concurrent Start got there first
		return nil
	}

	s.responder = responder
	s.metrics.SetServerState(responder.Stratum, responder.Leap)

	conn, err := s.listen(cfg)
	if err != nil {
		s.lastErr = err
		return err
	}
	s.conn = conn
	s.lastErr = nil

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	limiter := ratelimit.NewLimiter(cfg.RateLimit.Requests, cfg.RateLimit.IntervalDuration(), c)
	limiter.StartCleanup(runCtx, limiterSweep, limiterMaxIdle)

	s.logger.Info("Serving SNTP",
		"addr", conn.LocalAddr().String(),
		"stratum", responder.Stratum,
		"leap", responder.Leap,
		"refid", sntp.FormatReferenceID(responder.ReferenceID, responder.Stratum))

	s.wg.Add(1)
	go s.serve(runCtx, conn, responder, limiter, c)
	return nil
}

// listen binds cfg.Listen, or adopts the socket passed to SetPacketConn.
// Callers hold s.mu.
func (s *Service) listen(cfg *config.ServerConfig) (net.PacketConn, error) {
	conn := s.adopted
	s.adopted = nil
	if conn != nil {
		s.logger.Info("Using inherited socket", "addr", conn.LocalAddr().String())
	} else {
		var err error
		conn, err = net.ListenPacket("udp", cfg.Listen)
		if err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", cfg.Listen, err)
		}
	}

	if cfg.DSCP > 0 {
		if err := setDSCP(conn, cfg.DSCP); err != nil {
			s.logger.Warn("Failed to set DSCP", "dscp", cfg.DSCP, "error", err)
		}
	}
	return conn, nil
}

// setDSCP marks outgoing replies. DSCP occupies the upper six bits of the
// TOS / traffic class byte.
func setDSCP(conn net.PacketConn, dscp int) error {
	tos := dscp << 2
	udp, ok := conn.(*net.UDPConn)
	if !ok {
		return fmt.Errorf("unsupported socket type %T", conn)
	}
	addr, _ := udp.LocalAddr().(*net.UDPAddr)
	if addr != nil && addr.IP.To4() == nil && !addr.IP.IsUnspecified() {
		return ipv6.NewPacketConn(udp).SetTrafficClass(tos)
	}
	err4 := ipv4.NewPacketConn(udp).SetTOS(tos)
	if addr != nil && addr.IP.IsUnspecified() {
		// dual-stack socket: the IPv6 option may be the only one that applies
		if err6 := ipv6.NewPacketConn(udp).SetTrafficClass(tos); err6 == nil {
			return nil
		}
	}
	return err4
}

func (s *Service) serve(ctx context.Context, conn net.PacketConn, r sntp.Responder, limiter *ratelimit.Limiter, c clock.Clock) {
	defer s.wg.Done()
	buf := make([]byte, readBufferSize)
	now := func() sntp.Timestamp { return sntp.TimestampFromTime(c.Now()) }

	for {
		n, peer, err := conn.ReadFrom(buf)
		received := now()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Read error", "error", err)
			continue
		}
		s.handlePacket(conn, peer, buf[:n], received, now, r, limiter)
	}
}

func (s *Service) handlePacket(conn net.PacketConn, peer net.Addr, data []byte, received sntp.Timestamp, now func() sntp.Timestamp, r sntp.Responder, limiter *ratelimit.Limiter) {
	req, err := sntp.ParseMessage(data, peer)
	if err != nil {
		s.logger.Debug("Dropping malformed request", "peer", peer.String(), "size", len(data))
		s.metrics.RecordRequest(metrics.RequestMalformed, 0)
		return
	}
	if req.Mode() != sntp.ModeClient {
		s.logger.Debug("Dropping non-client request", "peer", peer.String(), "mode", req.Mode().String())
		s.metrics.RecordRequest(metrics.RequestMalformed, 0)
		return
	}
	if !limiter.Allow(peerKey(peer)) {
		s.metrics.RecordRequest(metrics.RequestRateLimited, 0)
		return
	}

	// a fresh response per request; nothing is shared between exchanges
	resp, err := r.Respond(req, received, now)
	if err != nil {
		s.logger.Error("Failed to build response", "peer", peer.String(), "error", err)
		s.metrics.RecordRequest(metrics.RequestMalformed, 0)
		return
	}
	if _, err := conn.WriteTo(resp.Bytes(), peer); err != nil {
		s.logger.Warn("Failed to send response", "peer", peer.String(), "error", err)
		s.metrics.RecordRequest(metrics.RequestWriteError, 0)
		return
	}

	xmt, _ := resp.Timestamp(sntp.FieldTransmitTimestamp)
	s.metrics.RecordRequest(metrics.RequestServed, sntp.SecondsToDuration(xmt.Sub(received)))
}

// peerKey buckets clients by address, ignoring the source port.
func peerKey(addr net.Addr) string {
	if u, ok := addr.(*net.UDPAddr); ok {
		return u.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// buildResponder derives the advertised server state. With an upstream, a
// single exchange decides stratum, reference id, leap and reference time;
// otherwise the configured values are used with the startup time as the
// reference time.
func (s *Service) buildResponder(ctx context.Context, cfg *config.ServerConfig, c clock.Clock) sntp.Responder {
	refID, err := sntp.ParseReferenceID(cfg.ReferenceID)
	if err != nil {
		s.logger.Warn("Invalid reference id, using zero", "reference_id", cfg.ReferenceID, "error", err)
	}
	now := c.Now()
	r := sntp.Responder{
		Leap:          uint8(cfg.Leap),
		Stratum:       uint8(cfg.Stratum),
		Poll:          int8(cfg.Poll),
		Precision:     int8(cfg.Precision),
		ReferenceID:   refID,
		ReferenceTime: sntp.TimestampFromTime(now),
	}

	if cfg.Upstream != "" {
		res, err := s.syncUpstream(ctx, cfg.Upstream, c)
		s.metrics.RecordExchange(res, err)
		switch {
		case err != nil:
			s.logger.Warn("Upstream sync failed, using configured values", "upstream", cfg.Upstream, "error", err)
		case !res.Accepted():
			s.logger.Warn("Upstream response rejected, using configured values", "upstream", cfg.Upstream, "reason", res.Reason)
		default:
			r.ReferenceTime = sntp.PosixToNTP(res.Corrected)
			r.Stratum = uint8(min(int(res.Response.Stratum())+1, int(sntp.MaxStratum)))
			r.ReferenceID = sntp.ReferenceIDFromAddr(res.Server)
			r.Leap = res.Response.Leap()
			s.logger.Info("Synchronized with upstream",
				"upstream", res.Server.String(),
				"offset", res.OffsetDuration().String(),
				"delay", res.DelayDuration().String(),
				"stratum", r.Stratum)
			return r
		}
	}

	if !clock.IsReasonableTime(now) {
		s.logger.Warn("Local clock looks unset, advertising alarm condition", "now", now.Format(time.RFC3339))
		r.Leap = sntp.LeapNotInSync
	}
	return r
}

func (s *Service) syncUpstream(ctx context.Context, upstream string, c clock.Clock) (*sntp.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, upstreamTimeout)
	defer cancel()

	log := s.logger.WithFields(map[string]any{"exchange": uuid.NewString(), "upstream": upstream})
	addr, err := sntp.ResolveServer(ctx, "udp", upstream)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", sntp.ErrTransport, upstream, err)
	}
	tr, err := sntp.ListenUDP("udp")
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	log.Debug("Querying upstream", "addr", addr.String())
	return sntp.NewClient(tr, c).Sync(ctx, addr)
}

// LocalAddr returns the bound address while running.
func (s *Service) LocalAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Responder returns the server state currently advertised.
func (s *Service) Responder() sntp.Responder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.responder
}

// Stop stops the service
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

func (s *Service) stopLocked() {
	if !s.running {
		return
	}
	s.cancel()
	if s.conn != nil {
		s.conn.Close()
	}
	s.wg.Wait()
	s.conn = nil
	s.running = false
	s.logger.Info("Stopped")
}

// Reload restarts the listener with the new server block.
func (s *Service) Reload(cfg *config.Config) (bool, error) {
	srv := cfg.Server
	s.mu.Lock()
	s.stopLocked()
	s.cfg = srv
	s.mu.Unlock()

	if srv == nil || !srv.IsEnabled() {
		return true, nil
	}
	return true, s.Start(context.Background())
}

// Status returns status
func (s *Service) Status() services.ServiceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := services.ServiceStatus{
		Name:    s.Name(),
		Running: s.running,
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	return st
}

var _ services.Service = (*Service)(nil)
