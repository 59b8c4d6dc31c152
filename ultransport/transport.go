// Package ultransport owns the TCP (or TLS-wrapped) socket carrying
// DICOM Upper Layer PDUs: length-prefixed framing and the ARTIM timer.
// Grounded on the teacher's pdu.Layer.readPDU/HandleConnection loop,
// split out from PDU interpretation so the state machine can drive it.
package ultransport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// DefaultMaxPDULength bounds an incoming PDU absent explicit configuration.
const DefaultMaxPDULength = 16384

// safetyMargin is added on top of the negotiated Maximum Length ceiling
// to tolerate peers whose header/PDV overhead estimate differs slightly.
const safetyMargin = 4096

// Error is a transport-level failure (spec.md §7 TransportError).
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("ultransport: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Transport frames PDU bytes over a net.Conn and manages ARTIM.
type Transport struct {
	conn net.Conn

	writeMu sync.Mutex

	maxIncomingPDU uint32

	artimMu      sync.Mutex
	artimDeadline time.Time
	artimArmed    bool
}

// New wraps conn (already dialed/accepted, optionally TLS) in a Transport.
// maxIncomingPDU is the ceiling applied to peer-declared PDU lengths; 0
// selects DefaultMaxPDULength+safetyMargin.
func New(conn net.Conn, maxIncomingPDU uint32) *Transport {
	if maxIncomingPDU == 0 {
		maxIncomingPDU = DefaultMaxPDULength
	}
	return &Transport{conn: conn, maxIncomingPDU: maxIncomingPDU + safetyMargin}
}

// Send writes a fully-encoded PDU. Writes are serialized: the SM action
// executor is the only writer (spec.md §5).
func (t *Transport) Send(pdu []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write(pdu); err != nil {
		return &Error{Op: "send", Err: err}
	}
	return nil
}

// Recv blocks for one complete PDU: 6-byte header, then length more bytes.
// Read deadline, if any, must be set by the caller via SetReadDeadline.
func (t *Transport) Recv() ([]byte, error) {
	header := make([]byte, 6)
	if _, err := io.ReadFull(t.conn, header); err != nil {
		return nil, &Error{Op: "recv-header", Err: err}
	}
	length := binary.BigEndian.Uint32(header[2:6])
	if length > t.maxIncomingPDU {
		return nil, &Error{Op: "recv-header", Err: fmt.Errorf("PDU length %d exceeds ceiling %d", length, t.maxIncomingPDU)}
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(t.conn, body); err != nil {
		return nil, &Error{Op: "recv-body", Err: err}
	}
	out := make([]byte, 6+len(body))
	copy(out, header)
	copy(out[6:], body)
	return out, nil
}

// SetReadDeadline configures the network_timeout for the next Recv call.
func (t *Transport) SetReadDeadline(d time.Duration) error {
	if d <= 0 {
		return t.conn.SetReadDeadline(time.Time{})
	}
	return t.conn.SetReadDeadline(time.Now().Add(d))
}

// Close closes the underlying socket. Idempotent.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// RemoteAddr exposes the peer address for logging.
func (t *Transport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// ArmARTIM starts the Association Request Timer for duration d, entered
// by the state machine on Sta2 and Sta13 (spec.md §4.2).
func (t *Transport) ArmARTIM(d time.Duration) {
	t.artimMu.Lock()
	defer t.artimMu.Unlock()
	t.artimArmed = true
	t.artimDeadline = time.Now().Add(d)
}

// DisarmARTIM cancels a pending ARTIM expiry.
func (t *Transport) DisarmARTIM() {
	t.artimMu.Lock()
	defer t.artimMu.Unlock()
	t.artimArmed = false
}

// ARTIMFired is a non-blocking query the SM consumes as event AR-TIM_EXP.
func (t *Transport) ARTIMFired() bool {
	t.artimMu.Lock()
	defer t.artimMu.Unlock()
	return t.artimArmed && time.Now().After(t.artimDeadline)
}
