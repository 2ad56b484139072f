package apphost

import (
	"context"
	"sync"

	"github.com/ofmooseandmen/castv2/cerror"
	"github.com/ofmooseandmen/castv2/envelope"
	"github.com/ofmooseandmen/castv2/internal/netchan"
	"github.com/ofmooseandmen/castv2/receiver"
	"github.com/ofmooseandmen/castv2/wire"
)

// ApplicationData is the launch-time information a Factory receives:
// the application's identity and addressing as reported by the device.
type ApplicationData struct {
	AppID       string
	DisplayName string
	SessionID   string
	TransportID string
	Namespaces  []string
}

// Controller is implemented by the caller-supplied type built for a
// launched application. MessageReceived delivers every unsolicited
// (non-response) frame on one of the controller's declared namespaces.
type Controller interface {
	MessageReceived(msg *wire.CastMessage)
}

// Factory builds a caller-supplied Controller for a freshly launched
// application, given its ApplicationData and a Wire to talk back to the
// device over the same socket channel.
type Factory func(data ApplicationData, w *Wire) Controller

// AppController wraps a caller-built Controller with the bookkeeping the
// host needs: the namespaces it is registered against, and whether it
// has been stopped.
type AppController struct {
	Controller Controller
	Data       ApplicationData

	host *Host
	wire *Wire

	mu      sync.Mutex
	stopped bool
}

// IsStopped reports whether Stop has already completed for this
// controller.
func (a *AppController) IsStopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

func (a *AppController) markStopped() {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
}

// connectPayload is the virtual sub-channel handshake frame, identical
// in shape to the top-level CONNECT but addressed to the app's
// transport id instead of the receiver platform.
type connectPayload struct {
	envelope.Header
}

func newConnectPayload() *connectPayload {
	return &connectPayload{Header: envelope.Header{Type: "CONNECT"}}
}

// Host owns every application launched on one socket channel, enforcing
// at most one running instance per app id.
type Host struct {
	channel *netchan.Channel
	recv    *receiver.Controller
	gen     *envelope.IDGenerator

	mu      sync.Mutex
	running map[string]*AppController // appID -> controller
}

// New builds a Host over channel, using recv for LAUNCH/STOP and gen to
// mint request ids for the per-namespace requestors each application's
// Wire creates on demand.
func New(channel *netchan.Channel, recv *receiver.Controller, gen *envelope.IDGenerator) *Host {
	return &Host{
		channel: channel,
		recv:    recv,
		gen:     gen,
		running: make(map[string]*AppController),
	}
}

// dispatchingController forwards unsolicited frames to the caller's
// Controller and records which namespaces it is bound to. Stop
// deregisters it from every namespace at once via RemoveListener.
type dispatchingController struct {
	inner      Controller
	namespaces []string
}

func (d *dispatchingController) MessageReceived(msg *wire.CastMessage) {
	if !envelope.IsUnsolicited(msg) {
		return
	}
	d.inner.MessageReceived(msg)
}

// Launch issues LAUNCH for appID, opens a virtual sub-channel to the
// resulting transport id, and builds the caller's controller via
// factory. At most one instance of a given app id may be active at a
// time on this host.
func (h *Host) Launch(ctx context.Context, appID string, factory Factory) (*AppController, error) {
	h.mu.Lock()
	if _, active := h.running[appID]; active {
		h.mu.Unlock()
		return nil, cerror.New(cerror.KindIllegalState, "application already launched: "+appID)
	}
	h.mu.Unlock()

	summary, err := h.recv.Launch(ctx, appID)
	if err != nil {
		return nil, err
	}

	data := ApplicationData{
		AppID:       summary.AppID,
		DisplayName: summary.DisplayName,
		SessionID:   summary.SessionID,
		TransportID: summary.TransportID,
		Namespaces:  summary.NamespaceSet(),
	}

	connectMsg, err := envelope.BuildMessage(wire.NamespaceConnection, h.channel.SourceID(), data.TransportID, newConnectPayload())
	if err != nil {
		return nil, cerror.Wrap(cerror.KindIO, "build app CONNECT", err)
	}
	if err := h.channel.Send(connectMsg); err != nil {
		return nil, cerror.Wrap(cerror.KindIO, "send app CONNECT", err)
	}

	w := newWire(h.channel, h.gen)
	controller := factory(data, w)

	ac := &AppController{Controller: controller, Data: data, host: h, wire: w}
	dc := &dispatchingController{inner: ac.Controller, namespaces: data.Namespaces}
	for _, ns := range data.Namespaces {
		h.channel.AddListener(dc, ns)
	}
	ac.Controller = dc

	h.mu.Lock()
	h.running[appID] = ac
	h.mu.Unlock()

	return ac, nil
}

// Stop sends STOP for ac's session, awaits the RECEIVER_STATUS
// response, then deregisters ac's listener and marks it stopped.
// Calling Stop again on a stopped controller fails with
// cerror.KindIllegalState. Stop does not disable the Wire handed to the
// factory: its Send and Request still reach the channel afterwards.
func (h *Host) Stop(ctx context.Context, ac *AppController) (receiver.Status, error) {
	if ac.IsStopped() {
		return receiver.Status{}, cerror.New(cerror.KindIllegalState, "application controller already stopped")
	}

	status, err := h.recv.Stop(ctx, ac.Data.SessionID)
	if err != nil {
		return receiver.Status{}, err
	}

	h.channel.RemoveListener(ac.Controller)
	ac.wire.close()
	ac.markStopped()

	h.mu.Lock()
	delete(h.running, ac.Data.AppID)
	h.mu.Unlock()

	return status, nil
}

// Running returns the app ids currently tracked as launched.
func (h *Host) Running() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.running))
	for id := range h.running {
		ids = append(ids, id)
	}
	return ids
}
