// Package castv2test is an in-process emulated Cast device: a real
// net.Listener speaking the actual frame codec, used by controller_test
// to drive connect/auth/heartbeat/receiver scenarios end to end without
// a physical device.
package castv2test

import (
	"net"
	"sync"
	"time"

	"github.com/ofmooseandmen/castv2/envelope"
	"github.com/ofmooseandmen/castv2/wire"
)

// Device is an emulated Cast receiver. By default it accepts
// authentication, acknowledges CONNECT silently, and answers PING with
// PONG. Tests override AuthRejected, call SilenceOutput, or set
// OnReceiverFrame to drive failure and receiver-namespace scenarios.
type Device struct {
	ln net.Listener

	mu   sync.Mutex
	conn net.Conn

	AuthRejected bool
	silent       bool

	// OnReceiverFrame, when set, is invoked for every frame read on the
	// receiver namespace instead of the default no-op, letting a test
	// script canned responses for GET_STATUS/LAUNCH/STOP.
	OnReceiverFrame func(d *Device, msg *wire.CastMessage)
}

// Start listens on an ephemeral localhost port and begins accepting one
// connection in the background.
func Start() (*Device, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	d := &Device{ln: ln}
	go d.acceptLoop()
	return d, nil
}

// Addr returns the "host:port" the device is listening on.
func (d *Device) Addr() string {
	return d.ln.Addr().String()
}

// Close stops accepting and closes any active connection.
func (d *Device) Close() {
	_ = d.ln.Close()
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// SilenceOutput stops the device from answering anything further,
// simulating a device that goes dark — used by both the connect-timeout
// scenario (silence from the very first frame) and the heartbeat-dead
// scenario (silence after a connection is already open).
func (d *Device) SilenceOutput() {
	d.mu.Lock()
	d.silent = true
	d.mu.Unlock()
}

// SendFrame writes msg directly to the active connection, for tests that
// need to push an unsolicited frame (e.g. an out-of-band RECEIVER_STATUS
// or a device-initiated CLOSE).
func (d *Device) SendFrame(msg *wire.CastMessage) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}
	return wire.WriteFrame(conn, msg)
}

func (d *Device) acceptLoop() {
	conn, err := d.ln.Accept()
	if err != nil {
		return
	}
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()

	for {
		msg, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		d.handle(conn, msg)
	}
}

func (d *Device) handle(conn net.Conn, msg *wire.CastMessage) {
	d.mu.Lock()
	silent := d.silent
	d.mu.Unlock()
	if silent {
		return
	}
	switch msg.Namespace {
	case wire.NamespaceDeviceAuth:
		d.handleAuth(conn, msg)
	case wire.NamespaceHeartbeat:
		d.handleHeartbeat(conn, msg)
	case wire.NamespaceConnection:
		// CONNECT / CLOSE expect no response from a well-behaved peer.
	case wire.NamespaceReceiver:
		if d.OnReceiverFrame != nil {
			d.OnReceiverFrame(d, msg)
		}
	}
}

func (d *Device) handleAuth(conn net.Conn, msg *wire.CastMessage) {
	reply := &wire.DeviceAuthMessage{HasError: d.AuthRejected}
	data, err := reply.Marshal()
	if err != nil {
		return
	}
	frame := &wire.CastMessage{
		SourceID: wire.DefaultReceiverID, DestinationID: msg.SourceID,
		Namespace: wire.NamespaceDeviceAuth, PayloadType: wire.PayloadTypeBinary,
		PayloadBinary: data,
	}
	_ = wire.WriteFrame(conn, frame)
}

func (d *Device) handleHeartbeat(conn net.Conn, msg *wire.CastMessage) {
	if !envelope.HasType(msg, "PING") {
		return
	}
	pong := &pongPayload{Header: envelope.Header{Type: "PONG"}}
	frame, err := envelope.BuildMessage(wire.NamespaceHeartbeat, wire.DefaultReceiverID, msg.SourceID, pong)
	if err != nil {
		return
	}
	_ = wire.WriteFrame(conn, frame)
}

type pongPayload struct {
	envelope.Header
}

// WaitConnected blocks until the device has accepted a connection or
// timeout elapses.
func (d *Device) WaitConnected(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		ok := d.conn != nil
		d.mu.Unlock()
		if ok {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
