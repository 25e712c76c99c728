package sntp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// State is the position of an Exchange in the client state machine.
type State int

const (
	Idle State = iota
	RequestSent
	ResponseReceived
	Accepted
	Rejected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RequestSent:
		return "request-sent"
	case ResponseReceived:
		return "response-received"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// client request header: unsynchronised, NTPv4, client mode, secondary stratum
var requestHeader = Header{
	Leap:    LeapNotInSync,
	Version: ProtocolVersion,
	Mode:    ModeClient,
	Stratum: MaxStratum,
}

// Result is the outcome of one exchange. A rejected response is a
// result, not an error: Reason says why it was discarded.
type Result struct {
	State    State
	Reason   error
	Server   net.Addr
	Request  *Message
	Response *Message

	T1, T2, T3, T4 Timestamp

	// Delay is the round-trip delay in seconds. Diagnostic only.
	Delay float64
	// Offset is the estimated local clock offset in seconds.
	Offset float64
	// Corrected is the corrected local time in POSIX seconds (T4 + Offset).
	Corrected float64
}

// Accepted reports whether the response passed validation.
func (r *Result) Accepted() bool {
	return r.State == Accepted
}

// OffsetDuration returns Offset as a time.Duration.
func (r *Result) OffsetDuration() time.Duration {
	return SecondsToDuration(r.Offset)
}

// DelayDuration returns Delay as a time.Duration.
func (r *Result) DelayDuration() time.Duration {
	return SecondsToDuration(r.Delay)
}

// CorrectedTime returns the corrected local time, computed from T4 in
// fixed point plus the offset.
func (r *Result) CorrectedTime() time.Time {
	return r.T4.Time().Add(r.OffsetDuration())
}

// Exchange drives one client request/response. It is not safe for
// concurrent use and cannot be reused.
type Exchange struct {
	state   State
	request *Message
}

// NewExchange returns an exchange in the Idle state.
func NewExchange() *Exchange {
	return &Exchange{state: Idle}
}

// State returns the current state.
func (e *Exchange) State() State {
	return e.state
}

// Request builds the client request stamped with t1 and moves the
// exchange to RequestSent.
func (e *Exchange) Request(t1 Timestamp) (*Message, error) {
	if e.state != Idle {
		return nil, fmt.Errorf("request in state %s", e.state)
	}
	req := NewMessage()
	if err := req.SetHeader(requestHeader); err != nil {
		return nil, err
	}
	req.mustSet(FieldOriginateTimestamp, uint64(t1))
	req.mustSet(FieldTransmitTimestamp, uint64(t1))

	e.request = req
	e.state = RequestSent
	return req, nil
}

// Receive parses a response captured at t4 and validates it. Malformed
// datagrams return an error and leave the exchange waiting.
func (e *Exchange) Receive(data []byte, addr net.Addr, t4 Timestamp) (*Result, error) {
	if e.state != RequestSent {
		return nil, fmt.Errorf("receive in state %s", e.state)
	}
	resp, err := ParseMessage(data, addr)
	if err != nil {
		return nil, err
	}
	e.state = ResponseReceived

	res := &Result{
		Server:   addr,
		Request:  e.request,
		Response: resp,
	}
	if err := Validate(e.request, resp); err != nil {
		e.state = Rejected
		res.State = Rejected
		res.Reason = err
		return res, nil
	}

	res.T1 = Timestamp(e.request.mustGet(FieldOriginateTimestamp))
	res.T2 = Timestamp(resp.mustGet(FieldReceiveTimestamp))
	res.T3 = Timestamp(resp.mustGet(FieldTransmitTimestamp))
	res.T4 = t4
	res.Delay, res.Offset = DelayOffset(res.T1, res.T2, res.T3, res.T4)
	res.Corrected = NTPToPosix(res.T4) + res.Offset

	e.state = Accepted
	res.State = Accepted
	return res, nil
}

// Validate applies the anti-replay check and the RFC 4330 sanity checks
// to a response.
func Validate(request, response *Message) error {
	sent := request.mustGet(FieldTransmitTimestamp)
	echoed := response.mustGet(FieldOriginateTimestamp)
	if echoed != sent {
		return fmt.Errorf("%w: sent %#016x, echoed %#016x", ErrReplayMismatch, sent, echoed)
	}
	if response.Stratum() == 0 {
		return fmt.Errorf("%w: stratum 0 (kiss-o'-death %q)", ErrNonCompliant,
			FormatReferenceID(response.ReferenceID(), 0))
	}
	if response.mustGet(FieldTransmitTimestamp) == 0 {
		return fmt.Errorf("%w: zero transmit timestamp", ErrNonCompliant)
	}
	if mode := response.Mode(); mode != ModeServer && mode != ModeBroadcast {
		return fmt.Errorf("%w: mode %s", ErrNonCompliant, mode)
	}
	return nil
}

// DelayOffset computes round-trip delay and clock offset in seconds. All
// differences are taken in fixed point.
func DelayOffset(t1, t2, t3, t4 Timestamp) (delay, offset float64) {
	delay = t4.Sub(t1) - t3.Sub(t2)
	offset = (t2.Sub(t1) + t3.Sub(t4)) / 2
	return delay, offset
}

// Transport sends and receives raw datagrams.
type Transport interface {
	Send(ctx context.Context, data []byte, addr net.Addr) error
	Receive(ctx context.Context, maxLen int) ([]byte, net.Addr, error)
}

// Clock is the local time source.
type Clock interface {
	Now() time.Time
}

// Client performs single SNTP exchanges over a Transport.
type Client struct {
	transport Transport
	clock     Clock
}

// NewClient creates a client.
func NewClient(transport Transport, clock Clock) *Client {
	return &Client{transport: transport, clock: clock}
}

// Sync runs Idle -> RequestSent -> ResponseReceived -> Accepted|Rejected
// against addr. Only transport failures (including ctx expiry) return an
// error; they always wrap ErrTransport.
func (c *Client) Sync(ctx context.Context, addr net.Addr) (*Result, error) {
	ex := NewExchange()
	req, err := ex.Request(TimestampFromTime(c.clock.Now()))
	if err != nil {
		return nil, err
	}
	if err := c.transport.Send(ctx, req.Bytes(), addr); err != nil {
		return nil, transportError("send", err)
	}

	data, from, err := c.transport.Receive(ctx, MessageSize)
	t4 := TimestampFromTime(c.clock.Now())
	if err != nil {
		return nil, transportError("receive", err)
	}
	res, err := ex.Receive(data, from, t4)
	if err != nil {
		return nil, transportError("receive", err)
	}
	return res, nil
}

func transportError(op string, err error) error {
	if errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}
