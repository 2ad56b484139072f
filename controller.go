// Package castv2 implements a Google Cast V2 device channel client: the
// CONNECT/AUTH/JOIN handshake, heartbeat-based liveness, the
// receiver-namespace control surface, and application lifecycle
// management, against a real Cast-protocol device (or an emulated one
// speaking the same wire format).
package castv2

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ofmooseandmen/castv2/apphost"
	"github.com/ofmooseandmen/castv2/cerror"
	"github.com/ofmooseandmen/castv2/config"
	"github.com/ofmooseandmen/castv2/envelope"
	"github.com/ofmooseandmen/castv2/internal/castlog"
	"github.com/ofmooseandmen/castv2/internal/heartbeat"
	"github.com/ofmooseandmen/castv2/internal/netchan"
	"github.com/ofmooseandmen/castv2/internal/requestor"
	"github.com/ofmooseandmen/castv2/receiver"
	"github.com/ofmooseandmen/castv2/wire"
)

// connState is the controller's own lifecycle state, layered over the
// socket channel's finer-grained CONNECTING/AUTHENTICATING states.
type connState int32

const (
	stateDisconnected connState = iota
	stateConnecting
	stateOpen
)

// Controller is the top-level facade over one Cast device: it owns the
// socket channel, drives the connect/auth/join handshake, and exposes
// the receiver and application-host operations.
type Controller struct {
	address  string
	cfg      config.Config
	senderID string
	log      *slog.Logger

	state atomic.Int32

	channel *netchan.Channel
	hb      *heartbeat.Engine
	gen     *envelope.IDGenerator

	stringReq *requestor.String
	recv      *receiver.Controller
	apps      *apphost.Host

	listeners *listenerSet

	closeListener  *closeListener
	statusListener *statusFanout

	mu sync.Mutex // guards start/stop of per-connection components
}

// NewController builds a Controller targeting address ("host:port") with
// the given options layered over config.Default(). A session-fixed
// sender id is minted with github.com/google/uuid.
func NewController(address string, opts ...config.Option) *Controller {
	cfg := config.New(opts...)
	return &Controller{
		address:  address,
		cfg:      cfg,
		senderID: "client-" + uuid.NewString(),
		log:      castlog.For("castv2.controller"),
		listeners: newListenerSet(),
	}
}

// IsConnected reports whether the controller currently believes it has
// an OPEN channel to the device.
func (c *Controller) IsConnected() bool {
	return connState(c.state.Load()) == stateOpen
}

// AddListener registers l to receive connection lifecycle events.
func (c *Controller) AddListener(l ConnectionListener) {
	c.listeners.add(l)
}

// RemoveListener deregisters l.
func (c *Controller) RemoveListener(l ConnectionListener) {
	c.listeners.remove(l)
}

// Connect drives the full CONNECT → AUTH → JOIN → heartbeat-start
// handshake, sharing ctx's deadline across every step. On any failure
// the partially-built socket is torn down and the error's Kind reflects
// where it failed.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if connState(c.state.Load()) != stateDisconnected {
		return cerror.New(cerror.KindIllegalState, "Connect called while not disconnected")
	}
	c.state.Store(int32(stateConnecting))

	channel := netchan.New(c.senderID, castlog.For("castv2.channel"))
	if err := channel.Connect(ctx, c.address, c.cfg.UseTLS); err != nil {
		c.state.Store(int32(stateDisconnected))
		return err
	}

	if err := c.authenticate(ctx, channel); err != nil {
		_ = channel.Close()
		c.state.Store(int32(stateDisconnected))
		return err
	}

	if err := c.join(channel); err != nil {
		_ = channel.Close()
		c.state.Store(int32(stateDisconnected))
		return err
	}

	c.wireUp(channel)
	c.hb.Start()
	c.state.Store(int32(stateOpen))
	return nil
}

func (c *Controller) authenticate(ctx context.Context, channel *netchan.Channel) error {
	authReq := requestor.NewBinary(channel, channel, wire.NamespaceDeviceAuth)
	defer authReq.Close()

	challenge := &wire.DeviceAuthMessage{}
	data, err := challenge.Marshal()
	if err != nil {
		return cerror.Wrap(cerror.KindAuth, "build auth challenge", err)
	}
	frame := &wire.CastMessage{
		SourceID: c.senderID, DestinationID: wire.DefaultReceiverID,
		Namespace: wire.NamespaceDeviceAuth, PayloadType: wire.PayloadTypeBinary,
		PayloadBinary: data,
	}

	reply, err := authReq.Request(ctx, frame)
	if err != nil {
		return err
	}

	var authMsg wire.DeviceAuthMessage
	if err := authMsg.Unmarshal(reply.PayloadBinary); err != nil {
		return cerror.Wrap(cerror.KindAuth, "decode auth reply", err)
	}
	if authMsg.HasError {
		return cerror.New(cerror.KindAuth, "Failed to authenticate with Cast device")
	}
	return nil
}

type joinPayload struct {
	envelope.Header
}

func (c *Controller) join(channel *netchan.Channel) error {
	msg, err := envelope.BuildMessage(wire.NamespaceConnection, c.senderID, wire.DefaultReceiverID,
		&joinPayload{Header: envelope.Header{Type: "CONNECT"}})
	if err != nil {
		return cerror.Wrap(cerror.KindIO, "build CONNECT", err)
	}
	if err := channel.Send(msg); err != nil {
		return cerror.Wrap(cerror.KindIO, "send CONNECT", err)
	}
	return nil
}

// wireUp constructs every per-connection component and registers the
// controller's internal listeners. Called once, after auth/join
// succeed, while still holding c.mu.
func (c *Controller) wireUp(channel *netchan.Channel) {
	c.channel = channel
	c.gen = envelope.NewIDGenerator()
	c.stringReq = requestor.NewString(channel, channel, c.gen, c.senderID, wire.NamespaceReceiver)
	c.recv = receiver.New(c.stringReq)
	c.apps = apphost.New(channel, c.recv, c.gen)

	c.hb = heartbeat.New(heartbeat.Config{
		PingInterval:        c.cfg.HeartbeatInterval,
		MissedPongThreshold: c.cfg.MissedHeartbeats,
		SourceID:            c.senderID,
		DestinationID:       wire.DefaultReceiverID,
	}, channel, c.onHeartbeatDead, castlog.For("castv2.heartbeat"))
	channel.AddWildcardListener(c.hb)

	c.closeListener = &closeListener{onClose: c.onRemoteClose}
	channel.AddListener(c.closeListener, wire.NamespaceConnection)

	c.statusListener = &statusFanout{onStatus: c.onDeviceStatus}
	channel.AddListener(c.statusListener, wire.NamespaceReceiver)
}

func (c *Controller) onHeartbeatDead() {
	if !c.transitionToDisconnected() {
		return
	}
	_ = c.channel.Close()
	for _, l := range c.listeners.snapshot() {
		l.ConnectionDead()
	}
}

func (c *Controller) onRemoteClose() {
	if !c.transitionToDisconnected() {
		return
	}
	c.hb.Stop()
	_ = c.channel.Close()
	for _, l := range c.listeners.snapshot() {
		l.RemoteConnectionClosed()
	}
}

func (c *Controller) onDeviceStatus(status receiver.Status) {
	for _, l := range c.listeners.snapshot() {
		l.DeviceStatusUpdated(status)
	}
}

// transitionToDisconnected performs the OPEN->DISCONNECTED swap exactly
// once, so ConnectionDead/RemoteConnectionClosed fire at most once per
// transition even if both paths race.
func (c *Controller) transitionToDisconnected() bool {
	return c.state.CompareAndSwap(int32(stateOpen), int32(stateDisconnected))
}

// Disconnect sends CLOSE, stops the heartbeat engine, and closes the
// socket channel. Idempotent.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if connState(c.state.Load()) == stateDisconnected {
		return nil
	}
	c.state.Store(int32(stateDisconnected))
	if c.hb != nil {
		c.hb.Stop()
	}
	if c.channel == nil {
		return nil
	}
	return c.channel.Close()
}

// ConnectTimeout is sugar over Connect with a bounded context.
func (c *Controller) ConnectTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Connect(ctx)
}

// GetDeviceStatus issues GET_STATUS.
func (c *Controller) GetDeviceStatus(ctx context.Context) (receiver.Status, error) {
	if err := c.requireOpen(); err != nil {
		return receiver.Status{}, err
	}
	return c.recv.GetStatus(ctx)
}

// MuteDevice sets the device volume to muted.
func (c *Controller) MuteDevice(ctx context.Context) (receiver.Status, error) {
	if err := c.requireOpen(); err != nil {
		return receiver.Status{}, err
	}
	return c.recv.SetMuted(ctx, true)
}

// UnmuteDevice clears the device's muted flag.
func (c *Controller) UnmuteDevice(ctx context.Context) (receiver.Status, error) {
	if err := c.requireOpen(); err != nil {
		return receiver.Status{}, err
	}
	return c.recv.SetMuted(ctx, false)
}

// ChangeDeviceVolume sets the device volume level, clamped to [0,1].
func (c *Controller) ChangeDeviceVolume(ctx context.Context, level float64) (receiver.Status, error) {
	if err := c.requireOpen(); err != nil {
		return receiver.Status{}, err
	}
	return c.recv.SetVolumeLevel(ctx, level)
}

// IsAppAvailable reports whether appID is available on the device.
func (c *Controller) IsAppAvailable(ctx context.Context, appID string) (bool, error) {
	if err := c.requireOpen(); err != nil {
		return false, err
	}
	return c.recv.IsAppAvailable(ctx, appID)
}

// GetAppsAvailability reports availability for every id in appIDs.
func (c *Controller) GetAppsAvailability(ctx context.Context, appIDs []string) (map[string]receiver.Availability, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	return c.recv.GetAppAvailability(ctx, appIDs)
}

// LaunchApp launches appID and builds its controller via factory.
func (c *Controller) LaunchApp(ctx context.Context, appID string, factory apphost.Factory) (*apphost.AppController, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	return c.apps.Launch(ctx, appID, factory)
}

// StopApp stops a previously launched application.
func (c *Controller) StopApp(ctx context.Context, ac *apphost.AppController) (receiver.Status, error) {
	if err := c.requireOpen(); err != nil {
		return receiver.Status{}, err
	}
	return c.apps.Stop(ctx, ac)
}

func (c *Controller) requireOpen() error {
	if !c.IsConnected() {
		return cerror.New(cerror.KindIllegalState, "operation requires an open connection")
	}
	return nil
}

// closeListener watches for a peer-initiated CLOSE on the connection
// namespace.
type closeListener struct {
	onClose func()
}

func (l *closeListener) MessageReceived(msg *wire.CastMessage) {
	if envelope.HasType(msg, "CLOSE") {
		l.onClose()
	}
}

// statusFanout watches for unsolicited RECEIVER_STATUS broadcasts.
type statusFanout struct {
	onStatus func(receiver.Status)
}

func (f *statusFanout) MessageReceived(msg *wire.CastMessage) {
	if !envelope.IsUnsolicited(msg) {
		return
	}
	if !envelope.HasType(msg, "RECEIVER_STATUS") {
		return
	}
	var resp struct {
		envelope.Header
		Status receiver.Status `json:"status"`
	}
	if err := json.Unmarshal([]byte(msg.PayloadUTF8), &resp); err != nil {
		return
	}
	f.onStatus(resp.Status)
}
