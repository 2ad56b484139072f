package receiver

import (
	"context"
	"encoding/json"

	"github.com/ofmooseandmen/castv2/cerror"
	"github.com/ofmooseandmen/castv2/envelope"
	"github.com/ofmooseandmen/castv2/internal/requestor"
	"github.com/ofmooseandmen/castv2/wire"
)

// Controller implements the receiver-namespace operations against the
// shared String requestor, bound to wire.NamespaceReceiver and
// destination wire.DefaultReceiverID.
type Controller struct {
	req *requestor.String
}

// New builds a receiver Controller over req.
func New(req *requestor.String) *Controller {
	return &Controller{req: req}
}

// GetStatus issues GET_STATUS and returns the device's current status.
func (c *Controller) GetStatus(ctx context.Context) (Status, error) {
	var resp statusResponse
	req := &getStatusRequest{Header: envelope.Header{Type: typeGetStatus}}
	if err := c.req.Request(ctx, wire.NamespaceReceiver, wire.DefaultReceiverID, req, &resp); err != nil {
		return Status{}, err
	}
	return resp.Status, nil
}

// SetVolumeLevel issues SET_VOLUME with a clamped level in [0.0, 1.0].
func (c *Controller) SetVolumeLevel(ctx context.Context, level float64) (Status, error) {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	req := &setVolumeRequest{Header: envelope.Header{Type: typeSetVolume}, Volume: Volume{Level: level}}
	return c.requestStatus(ctx, req)
}

// SetMuted issues SET_VOLUME toggling mute state.
func (c *Controller) SetMuted(ctx context.Context, muted bool) (Status, error) {
	req := &setVolumeRequest{Header: envelope.Header{Type: typeSetVolume}, Volume: Volume{Muted: muted}}
	return c.requestStatus(ctx, req)
}

func (c *Controller) requestStatus(ctx context.Context, payload envelope.Payload) (Status, error) {
	var resp statusResponse
	if err := c.req.Request(ctx, wire.NamespaceReceiver, wire.DefaultReceiverID, payload, &resp); err != nil {
		return Status{}, err
	}
	return resp.Status, nil
}

// Launch issues LAUNCH for appID and returns the matching application
// summary from the resulting RECEIVER_STATUS. A device-reported
// LAUNCH_ERROR, or a status reply that doesn't list appID, surfaces as
// cerror.KindLaunchFailed.
func (c *Controller) Launch(ctx context.Context, appID string) (AppSummary, error) {
	req := &launchRequest{Header: envelope.Header{Type: typeLaunch}, AppID: appID}
	msg, err := c.req.RequestRaw(ctx, wire.NamespaceReceiver, wire.DefaultReceiverID, req)
	if err != nil {
		return AppSummary{}, err
	}

	env, ok := envelope.Parse(msg)
	if !ok {
		return AppSummary{}, cerror.New(cerror.KindLaunchFailed, "malformed LAUNCH reply")
	}
	if env.Type == typeLaunchError {
		return AppSummary{}, cerror.New(cerror.KindLaunchFailed, "device reported LAUNCH_ERROR for "+appID)
	}
	if env.Type != typeReceiverStatus {
		return AppSummary{}, cerror.New(cerror.KindLaunchFailed, "unexpected LAUNCH reply type: "+env.Type)
	}

	var resp statusResponse
	if err := json.Unmarshal([]byte(msg.PayloadUTF8), &resp); err != nil {
		return AppSummary{}, cerror.Wrap(cerror.KindLaunchFailed, "decode RECEIVER_STATUS", err)
	}
	app, found := resp.Status.AppByID(appID)
	if !found {
		return AppSummary{}, cerror.New(cerror.KindLaunchFailed, "launched appId not present in RECEIVER_STATUS: "+appID)
	}
	return app, nil
}

// Stop issues STOP for sessionID. An unknown session id surfaces as
// cerror.KindInvalidRequest rather than tearing the channel down. The
// device may additionally emit an unsolicited RECEIVER_STATUS after the
// response; that broadcast is delivered separately to whichever
// listener is registered for unsolicited receiver traffic, not through
// this call's return value.
func (c *Controller) Stop(ctx context.Context, sessionID string) (Status, error) {
	req := &stopRequest{Header: envelope.Header{Type: typeStop}, SessionID: sessionID}
	msg, err := c.req.RequestRaw(ctx, wire.NamespaceReceiver, wire.DefaultReceiverID, req)
	if err != nil {
		return Status{}, err
	}

	env, ok := envelope.Parse(msg)
	if !ok {
		return Status{}, cerror.New(cerror.KindInvalidRequest, "malformed STOP reply")
	}
	if env.Type == typeInvalidRequest {
		return Status{}, cerror.New(cerror.KindInvalidRequest, "device rejected STOP for unknown sessionId: "+sessionID)
	}
	if env.Type != typeReceiverStatus {
		return Status{}, cerror.New(cerror.KindInvalidRequest, "unexpected STOP reply type: "+env.Type)
	}

	var resp statusResponse
	if err := json.Unmarshal([]byte(msg.PayloadUTF8), &resp); err != nil {
		return Status{}, cerror.Wrap(cerror.KindIO, "decode RECEIVER_STATUS", err)
	}
	return resp.Status, nil
}

// GetAppAvailability issues GET_APP_AVAILABILITY for every id in appIDs.
func (c *Controller) GetAppAvailability(ctx context.Context, appIDs []string) (map[string]Availability, error) {
	var resp appAvailabilityResponse
	req := &getAppAvailabilityRequest{Header: envelope.Header{Type: typeGetAppAvailability}, AppID: appIDs}
	if err := c.req.Request(ctx, wire.NamespaceReceiver, wire.DefaultReceiverID, req, &resp); err != nil {
		return nil, err
	}
	return resp.Availability, nil
}

// IsAppAvailable is sugar over GetAppAvailability for a single id.
func (c *Controller) IsAppAvailable(ctx context.Context, appID string) (bool, error) {
	result, err := c.GetAppAvailability(ctx, []string{appID})
	if err != nil {
		return false, err
	}
	return result[appID] == AppAvailable, nil
}
