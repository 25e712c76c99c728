package sntp

// Responder builds server replies. Its fields describe the server's own
// synchronization state and are supplied by the caller; a Responder is a
// value and is safe to share between goroutines.
type Responder struct {
	Leap           uint8
	Stratum        uint8
	Poll           int8
	Precision      int8
	RootDelay      uint32
	RootDispersion uint32
	ReferenceID    uint32
	// ReferenceTime is when the server clock was last synchronized.
	ReferenceTime Timestamp
}

// Respond builds a fresh response to req. received is the time req
// arrived; now is called last so the transmit timestamp is as close to
// the send as possible. Requests are never rejected here.
func (r Responder) Respond(req *Message, received Timestamp, now func() Timestamp) (*Message, error) {
	resp := NewMessage()
	resp.SetAddr(req.Addr())

	err := resp.SetHeader(Header{
		Leap:           r.Leap,
		Version:        ProtocolVersion,
		Mode:           ModeServer,
		Stratum:        r.Stratum,
		Poll:           r.Poll,
		Precision:      r.Precision,
		RootDelay:      r.RootDelay,
		RootDispersion: r.RootDispersion,
		ReferenceID:    r.ReferenceID,
	})
	if err != nil {
		return nil, err
	}

	resp.mustSet(FieldReferenceTimestamp, uint64(r.ReferenceTime))
	resp.mustSet(FieldOriginateTimestamp, req.mustGet(FieldTransmitTimestamp))
	resp.mustSet(FieldReceiveTimestamp, uint64(received))
	resp.mustSet(FieldTransmitTimestamp, uint64(now()))
	return resp, nil
}
