// Package requestor implements the request/response correlation layer
// sitting on top of the socket channel: a String requestor that
// correlates by requestId for JSON payloads, and a Binary requestor that
// correlates by "next frame on this namespace" for the authentication
// handshake, which carries no requestId at all.
package requestor

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ofmooseandmen/castv2/cerror"
	"github.com/ofmooseandmen/castv2/envelope"
	"github.com/ofmooseandmen/castv2/internal/netchan"
	"github.com/ofmooseandmen/castv2/wire"
)

// Sender is the socket channel surface a requestor writes through.
type Sender interface {
	Send(msg *wire.CastMessage) error
}

// Registrar is the socket channel surface a requestor listens through.
// *netchan.Channel satisfies it.
type Registrar interface {
	AddListener(l netchan.Listener, namespace string)
	RemoveListener(l netchan.Listener)
	Done() <-chan struct{}
}

// String correlates outbound JSON requests with their inbound JSON
// response by requestId. Each String requestor listens only on the
// namespace it was created for, so every namespace that speaks the typed
// JSON envelope (receiver, an application's own namespace) needs its own.
type String struct {
	sender    Sender
	registrar Registrar
	gen       *envelope.IDGenerator
	sourceID  string

	mu      sync.Mutex
	pending map[int32]chan *wire.CastMessage
}

// NewString creates a String requestor bound to namespace.
func NewString(sender Sender, ch Registrar, gen *envelope.IDGenerator, sourceID, namespace string) *String {
	s := &String{
		sender:    sender,
		registrar: ch,
		gen:       gen,
		sourceID:  sourceID,
		pending:   make(map[int32]chan *wire.CastMessage),
	}
	ch.AddListener(s, namespace)
	return s
}

// MessageReceived implements netchan.Listener. It routes a frame to its
// pending requestor by requestId, and drops anything else on the floor —
// unsolicited frames are the caller's concern, delivered separately via
// their own listener registration.
func (s *String) MessageReceived(msg *wire.CastMessage) {
	env, ok := envelope.Parse(msg)
	if !ok || env.RequestID == 0 {
		return
	}
	s.mu.Lock()
	ch, found := s.pending[env.RequestID]
	if found {
		delete(s.pending, env.RequestID)
	}
	s.mu.Unlock()
	if found {
		ch <- msg
	}
}

// RequestRaw sends payload on namespace and blocks for the raw
// correlated response frame, ctx expiring, or the owning channel
// closing. Callers that need to branch on the response's envelope type
// before picking a struct to decode into (e.g. RECEIVER_STATUS vs
// LAUNCH_ERROR) use this instead of Request.
func (s *String) RequestRaw(ctx context.Context, namespace, destinationID string, payload envelope.Payload) (*wire.CastMessage, error) {
	resultCh := make(chan *wire.CastMessage, 1)

	frame, err := envelope.BuildRequest(namespace, s.sourceID, destinationID, payload, s.gen)
	if err != nil {
		return nil, cerror.Wrap(cerror.KindIO, "build request", err)
	}
	reqID := payload.GetRequestID()

	s.mu.Lock()
	s.pending[reqID] = resultCh
	s.mu.Unlock()

	if err := s.sender.Send(frame); err != nil {
		s.mu.Lock()
		delete(s.pending, reqID)
		s.mu.Unlock()
		return nil, cerror.Wrap(cerror.KindIO, "send request", err)
	}

	select {
	case msg := <-resultCh:
		return msg, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, reqID)
		s.mu.Unlock()
		return nil, cerror.Wrap(cerror.KindTimeout, "No response received within the request deadline", ctx.Err())
	case <-s.registrar.Done():
		s.mu.Lock()
		delete(s.pending, reqID)
		s.mu.Unlock()
		return nil, cerror.New(cerror.KindIO, "channel closed while awaiting response")
	}
}

// Request is RequestRaw followed by decoding the response's JSON payload
// into response, when response is non-nil.
func (s *String) Request(ctx context.Context, namespace, destinationID string, payload envelope.Payload, response interface{}) error {
	msg, err := s.RequestRaw(ctx, namespace, destinationID, payload)
	if err != nil {
		return err
	}
	if response == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(msg.PayloadUTF8), response); err != nil {
		return cerror.Wrap(cerror.KindIO, "decode response", err)
	}
	return nil
}

// Close releases the requestor's registration with its channel.
func (s *String) Close() {
	s.registrar.RemoveListener(s)
}

// Binary correlates an outbound BINARY frame with the next inbound
// BINARY frame on the same namespace — the only correlation scheme the
// device authentication handshake supports, since DeviceAuthMessage
// carries no requestId.
type Binary struct {
	sender    Sender
	registrar Registrar

	mu       sync.Mutex
	awaiting chan *wire.CastMessage
}

// NewBinary creates a Binary requestor listening on namespace.
func NewBinary(sender Sender, ch Registrar, namespace string) *Binary {
	b := &Binary{sender: sender, registrar: ch}
	ch.AddListener(b, namespace)
	return b
}

// MessageReceived implements netchan.Listener.
func (b *Binary) MessageReceived(msg *wire.CastMessage) {
	if msg.PayloadType != wire.PayloadTypeBinary {
		return
	}
	b.mu.Lock()
	ch := b.awaiting
	b.awaiting = nil
	b.mu.Unlock()
	if ch != nil {
		ch <- msg
	}
}

// Request sends frame and blocks for the next BINARY frame on the
// registered namespace, ctx expiring, or the channel closing.
func (b *Binary) Request(ctx context.Context, frame *wire.CastMessage) (*wire.CastMessage, error) {
	resultCh := make(chan *wire.CastMessage, 1)

	b.mu.Lock()
	if b.awaiting != nil {
		b.mu.Unlock()
		return nil, cerror.New(cerror.KindIllegalState, "binary requestor already has a request in flight")
	}
	b.awaiting = resultCh
	b.mu.Unlock()

	if err := b.sender.Send(frame); err != nil {
		b.mu.Lock()
		b.awaiting = nil
		b.mu.Unlock()
		return nil, cerror.Wrap(cerror.KindIO, "send auth request", err)
	}

	select {
	case msg := <-resultCh:
		return msg, nil
	case <-ctx.Done():
		b.mu.Lock()
		b.awaiting = nil
		b.mu.Unlock()
		return nil, cerror.Wrap(cerror.KindTimeout, "No response received within the auth request deadline", ctx.Err())
	case <-b.registrar.Done():
		b.mu.Lock()
		b.awaiting = nil
		b.mu.Unlock()
		return nil, cerror.New(cerror.KindAuth, "channel closed during auth handshake")
	}
}

// Close releases the requestor's registration with its channel.
func (b *Binary) Close() {
	b.registrar.RemoveListener(b)
}
