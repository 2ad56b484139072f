// Package envelope implements the JSON object carried inside STRING
// CastMessage payloads: the `type` / `requestId` / `responseType` header
// every typed message shares, request-id minting, and the helpers used to
// build outbound requests and parse inbound frames.
package envelope

import (
	"encoding/json"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/ofmooseandmen/castv2/wire"
)

// Header is embedded by every request/response payload struct. It carries
// the fields every STRING message shares.
type Header struct {
	Type         string `json:"type"`
	RequestID    int32  `json:"requestId,omitempty"`
	ResponseType string `json:"responseType,omitempty"`
}

// SetRequestID implements Payload.
func (h *Header) SetRequestID(id int32) { h.RequestID = id }

// GetRequestID implements Payload.
func (h *Header) GetRequestID() int32 { return h.RequestID }

// GetType implements Payload.
func (h *Header) GetType() string { return h.Type }

// Payload is satisfied by every outbound request struct via an embedded
// Header. BuildRequest mints a request id through SetRequestID before
// marshaling.
type Payload interface {
	SetRequestID(id int32)
	GetRequestID() int32
	GetType() string
}

// Envelope is the typed view of a parsed STRING payload's header fields.
type Envelope struct {
	Type         string `json:"type"`
	RequestID    int32  `json:"requestId,omitempty"`
	ResponseType string `json:"responseType,omitempty"`
}

// IDGenerator mints request ids that are unique within one socket channel.
// Request ids are 1-based; 0 is reserved to mean "absent" so unsolicited
// messages (GLOSSARY: an inbound frame with no requestId) can be told
// apart from a correlated response without a separate presence flag.
type IDGenerator struct {
	counter atomic.Int32
}

// NewIDGenerator returns a generator starting from 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the next request id, wrapping back to 1 after 2^31-1.
func (g *IDGenerator) Next() int32 {
	for {
		cur := g.counter.Load()
		next := cur + 1
		if next <= 0 {
			next = 1
		}
		if g.counter.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// BuildRequest mints a fresh request id on payload, marshals it to JSON,
// and wraps it in a STRING CastMessage addressed to destination.
func BuildRequest(namespace, sourceID, destinationID string, payload Payload, gen *IDGenerator) (*wire.CastMessage, error) {
	payload.SetRequestID(gen.Next())
	return marshalMessage(namespace, sourceID, destinationID, payload)
}

// BuildMessage wraps payload in a STRING CastMessage without minting a
// request id, for fire-and-forget sends (CONNECT, CLOSE, PING) that
// expect no correlated reply.
func BuildMessage(namespace, sourceID, destinationID string, payload Payload) (*wire.CastMessage, error) {
	return marshalMessage(namespace, sourceID, destinationID, payload)
}

func marshalMessage(namespace, sourceID, destinationID string, payload Payload) (*wire.CastMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal envelope payload")
	}
	return &wire.CastMessage{
		ProtocolVersion: wire.CastV2_1_0,
		SourceID:        sourceID,
		DestinationID:   destinationID,
		Namespace:       namespace,
		PayloadType:     wire.PayloadTypeString,
		PayloadUTF8:     string(data),
	}, nil
}

// Parse returns the typed envelope header of frame's payload when it is a
// valid JSON object carrying at least a `type` field. It returns false for
// BINARY payloads, invalid JSON, or a missing/empty type.
func Parse(frame *wire.CastMessage) (Envelope, bool) {
	if frame.PayloadType != wire.PayloadTypeString {
		return Envelope{}, false
	}
	var env Envelope
	if err := json.Unmarshal([]byte(frame.PayloadUTF8), &env); err != nil {
		return Envelope{}, false
	}
	if env.Type == "" {
		return Envelope{}, false
	}
	return env, true
}

// HasType reports whether frame's payload parses and carries type t.
func HasType(frame *wire.CastMessage, t string) bool {
	env, ok := Parse(frame)
	return ok && env.Type == t
}

// IsUnsolicited reports whether frame carries no requestId, per the
// GLOSSARY definition of an unsolicited message.
func IsUnsolicited(frame *wire.CastMessage) bool {
	env, ok := Parse(frame)
	return !ok || env.RequestID == 0
}
