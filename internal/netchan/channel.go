// Package netchan owns the TCP/TLS socket to a Cast device: the inbound
// read loop, the namespace/wildcard listener registry, and serialized
// outbound writes. It is the "Socket channel" component of the device
// channel design.
package netchan

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/ofmooseandmen/castv2/cerror"
	"github.com/ofmooseandmen/castv2/envelope"
	"github.com/ofmooseandmen/castv2/wire"
)

// State is one of the channel's monotonic lifecycle states.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Listener receives every inbound frame dispatched to it, either because
// it registered on the frame's namespace or as a wildcard.
type Listener interface {
	MessageReceived(msg *wire.CastMessage)
}

// ErrorListener is implemented optionally by a wildcard Listener that
// wants to be notified when the read loop observes a framing or socket
// error and marks the channel dead.
type ErrorListener interface {
	SocketError(err error)
}

// Channel owns one TCP (optionally TLS) connection to a Cast device.
type Channel struct {
	sourceID string
	log      *slog.Logger

	state atomic.Int32

	connMu sync.Mutex
	conn   net.Conn

	writeMu sync.Mutex

	listenersMu sync.RWMutex
	byNamespace map[string]map[Listener]struct{}
	wildcard    map[Listener]struct{}

	closeOnce    sync.Once
	teardownOnce sync.Once
	doneCh       chan struct{}
}

// New creates a Channel in StateIdle, identified on the wire as sourceID.
func New(sourceID string, log *slog.Logger) *Channel {
	return &Channel{
		sourceID:    sourceID,
		log:         log,
		byNamespace: make(map[string]map[Listener]struct{}),
		wildcard:    make(map[Listener]struct{}),
		doneCh:      make(chan struct{}),
	}
}

// State returns the channel's current lifecycle state.
func (c *Channel) State() State {
	return State(c.state.Load())
}

// SourceID returns the sender id this channel identifies itself as on
// the wire.
func (c *Channel) SourceID() string {
	return c.sourceID
}

func (c *Channel) setState(s State) {
	c.state.Store(int32(s))
}

// Done returns a channel closed once the socket channel reaches
// StateClosed, letting dependents (the requestors) unblock their waits with an IO error instead of hanging forever.
func (c *Channel) Done() <-chan struct{} {
	return c.doneCh
}

// Connect dials address over TCP, optionally wrapping the connection in a
// TLS 1.2+ client handshake, and starts the read loop. Cast devices
// present self-signed, per-device certificates not chained to a public
// CA, so certificate validation is intentionally disabled. No hook for a
// caller-supplied *tls.Config or certificate pin is exposed: every device
// certificate is accepted without chain validation.
func (c *Channel) Connect(ctx context.Context, address string, useTLS bool) error {
	c.setState(StateConnecting)

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		c.setState(StateClosed)
		return cerror.Wrap(cerror.KindIO, "dial cast device", err)
	}

	if useTLS {
		tlsConn := tls.Client(conn, &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec — Cast devices ship self-signed per-device certs
			MinVersion:         tls.VersionTLS12,
		})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			c.setState(StateClosed)
			return cerror.Wrap(cerror.KindIO, "TLS handshake with cast device", err)
		}
		conn = tlsConn
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Send writes one frame to the socket. Concurrent callers are serialized
// by writeMu so frames never interleave on the wire.
func (c *Channel) Send(msg *wire.CastMessage) error {
	if c.State() == StateClosed {
		return cerror.New(cerror.KindIO, "send on closed channel")
	}
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return cerror.New(cerror.KindIO, "send before connect")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wire.WriteFrame(conn, msg); err != nil {
		c.teardown()
		return cerror.Wrap(cerror.KindIO, "write frame", err)
	}
	return nil
}

// AddListener registers l to receive every inbound frame on namespace.
// Registration takes effect before the next dispatched frame.
func (c *Channel) AddListener(l Listener, namespace string) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	set, ok := c.byNamespace[namespace]
	if !ok {
		set = make(map[Listener]struct{})
		c.byNamespace[namespace] = set
	}
	set[l] = struct{}{}
}

// AddWildcardListener registers l to receive every inbound frame
// regardless of namespace.
func (c *Channel) AddWildcardListener(l Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.wildcard[l] = struct{}{}
}

// RemoveListener deregisters l from every namespace and from the
// wildcard set.
func (c *Channel) RemoveListener(l Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	for _, set := range c.byNamespace {
		delete(set, l)
	}
	delete(c.wildcard, l)
}

func (c *Channel) readLoop(conn net.Conn) {
	for {
		msg, err := wire.ReadFrame(conn)
		if err != nil {
			c.handleReadError(err)
			return
		}
		c.dispatch(msg)
	}
}

func (c *Channel) dispatch(msg *wire.CastMessage) {
	c.listenersMu.RLock()
	set := c.byNamespace[msg.Namespace]
	targets := make([]Listener, 0, len(set)+len(c.wildcard))
	for l := range set {
		targets = append(targets, l)
	}
	for l := range c.wildcard {
		targets = append(targets, l)
	}
	c.listenersMu.RUnlock()

	for _, l := range targets {
		l.MessageReceived(msg)
	}
}

func (c *Channel) handleReadError(err error) {
	if c.log != nil {
		c.log.Debug("read loop terminated", "err", err)
	}
	c.teardown()

	c.listenersMu.RLock()
	targets := make([]ErrorListener, 0, len(c.wildcard))
	for l := range c.wildcard {
		if el, ok := l.(ErrorListener); ok {
			targets = append(targets, el)
		}
	}
	c.listenersMu.RUnlock()

	wrapped := cerror.Wrap(cerror.KindIO, "cast device read loop", err)
	for _, el := range targets {
		el.SocketError(wrapped)
	}
}

// Close is idempotent. It sends a best-effort CLOSE frame on the
// connection namespace, then shuts the socket and the read loop down.
func (c *Channel) Close() error {
	var sendErr error
	c.closeOnce.Do(func() {
		c.setState(StateClosing)

		c.connMu.Lock()
		writable := c.conn != nil
		c.connMu.Unlock()

		if writable {
			closeMsg, err := envelope.BuildMessage(wire.NamespaceConnection, c.sourceID, wire.DefaultReceiverID, newClosePayload())
			if err == nil {
				sendErr = c.Send(closeMsg)
			}
		}
		c.teardown()
	})
	if sendErr != nil {
		return errors.Wrap(sendErr, "send CLOSE frame")
	}
	return nil
}

// teardown closes the underlying socket and transitions to StateClosed
// exactly once, unblocking Done() for every waiter. Safe to call
// concurrently from both Close() and the read loop's error path.
func (c *Channel) teardown() {
	c.teardownOnce.Do(func() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		c.setState(StateClosed)
		close(c.doneCh)
	})
}

// closePayload is the minimal {"type":"CLOSE"} envelope payload.
type closePayload struct {
	envelope.Header
}

func newClosePayload() *closePayload {
	return &closePayload{Header: envelope.Header{Type: "CLOSE"}}
}
