// Package apphost manages the lifecycle of launched Cast applications:
// opening a virtual sub-channel to each app's transport id, routing
// messages on the app's own namespaces to a caller-supplied controller,
// and tearing the sub-channel down on stop.
package apphost

import (
	"context"
	"sync"

	"github.com/ofmooseandmen/castv2/envelope"
	"github.com/ofmooseandmen/castv2/internal/netchan"
	"github.com/ofmooseandmen/castv2/internal/requestor"
	"github.com/ofmooseandmen/castv2/wire"
)

// Wire is the public surface an application Controller uses to talk
// back to its device over the shared socket channel. It is a thin
// wrapper because internal/netchan and internal/requestor are not
// importable outside this module — a caller's own Factory lives outside
// the module and can only reach the channel through this type.
//
// Request/response correlation is namespace-scoped: the receiver
// requestor wired up at connect time only listens on the receiver
// namespace, so Wire mints its own requestor.String the first time a
// given app namespace is used with Request, and reuses it afterwards.
type Wire struct {
	channel *netchan.Channel
	gen     *envelope.IDGenerator

	mu   sync.Mutex
	reqs map[string]*requestor.String
}

func newWire(channel *netchan.Channel, gen *envelope.IDGenerator) *Wire {
	return &Wire{channel: channel, gen: gen, reqs: make(map[string]*requestor.String)}
}

// Send sends payload on namespace addressed to destinationID without
// expecting a correlated reply.
func (w *Wire) Send(namespace, destinationID string, payload envelope.Payload) error {
	msg, err := envelope.BuildMessage(namespace, w.channel.SourceID(), destinationID, payload)
	if err != nil {
		return err
	}
	return w.channel.Send(msg)
}

// Request sends payload on namespace addressed to destinationID and
// blocks for a correlated reply, decoding it into response.
func (w *Wire) Request(ctx context.Context, namespace, destinationID string, payload envelope.Payload, response interface{}) error {
	return w.requestorFor(namespace).Request(ctx, namespace, destinationID, payload, response)
}

// RawSend writes a pre-built frame directly, for controllers that need
// a non-JSON (binary) app-namespace payload.
func (w *Wire) RawSend(msg *wire.CastMessage) error {
	return w.channel.Send(msg)
}

func (w *Wire) requestorFor(namespace string) *requestor.String {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.reqs[namespace]
	if !ok {
		r = requestor.NewString(w.channel, w.channel, w.gen, w.channel.SourceID(), namespace)
		w.reqs[namespace] = r
	}
	return r
}

// close releases every per-namespace requestor this Wire minted.
func (w *Wire) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ns, r := range w.reqs {
		r.Close()
		delete(w.reqs, ns)
	}
}
