package receiver

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/ofmooseandmen/castv2/cerror"
	"github.com/ofmooseandmen/castv2/envelope"
	"github.com/ofmooseandmen/castv2/internal/netchan"
	"github.com/ofmooseandmen/castv2/internal/requestor"
	"github.com/ofmooseandmen/castv2/wire"
)

// testRig wires a Controller against a live loopback TCP pair so the
// test drives the exact same codec/requestor path production code uses.
type testRig struct {
	ctrl   *Controller
	ch     *netchan.Channel
	server net.Conn
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			serverConnCh <- conn
		}
	}()

	ch := netchan.New("sender-0", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ch.Connect(ctx, ln.Addr().String(), false); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var server net.Conn
	select {
	case server = <-serverConnCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted connection")
	}
	t.Cleanup(func() { _ = server.Close() })
	t.Cleanup(func() { _ = ch.Close() })

	gen := envelope.NewIDGenerator()
	req := requestor.NewString(ch, ch, gen, "sender-0", wire.NamespaceReceiver)
	return &testRig{ctrl: New(req), ch: ch, server: server}
}

func readRequest(t *testing.T, server net.Conn) envelope.Envelope {
	t.Helper()
	msg, err := wire.ReadFrame(server)
	if err != nil {
		t.Fatalf("server ReadFrame: %v", err)
	}
	env, ok := envelope.Parse(msg)
	if !ok {
		t.Fatal("server received unparsable request")
	}
	return env
}

func respond(t *testing.T, server net.Conn, payload envelope.Payload) {
	t.Helper()
	frame, err := envelope.BuildMessage(wire.NamespaceReceiver, wire.DefaultReceiverID, "sender-0", payload)
	if err != nil {
		t.Fatalf("build response: %v", err)
	}
	if err := wire.WriteFrame(server, frame); err != nil {
		t.Fatalf("server WriteFrame: %v", err)
	}
}

func TestControllerGetStatus(t *testing.T) {
	rig := newTestRig(t)

	go func() {
		env := readRequest(t, rig.server)
		resp := &statusResponse{
			Header: envelope.Header{Type: typeReceiverStatus, RequestID: env.RequestID},
			Status: Status{Volume: Volume{Level: 0.5, ControlType: ControlTypeMaster}},
		}
		respond(t, rig.server, resp)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	status, err := rig.ctrl.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Volume.Level != 0.5 {
		t.Errorf("unexpected volume level: %v", status.Volume.Level)
	}
}

func TestControllerSetVolumeLevelClampsRange(t *testing.T) {
	rig := newTestRig(t)

	var gotLevel float64
	go func() {
		msg, err := wire.ReadFrame(rig.server)
		if err != nil {
			return
		}
		var req setVolumeRequest
		_ = json.Unmarshal([]byte(msg.PayloadUTF8), &req)
		gotLevel = req.Volume.Level
		resp := &statusResponse{Header: envelope.Header{Type: typeReceiverStatus, RequestID: req.RequestID}}
		respond(t, rig.server, resp)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := rig.ctrl.SetVolumeLevel(ctx, 1.5); err != nil {
		t.Fatalf("SetVolumeLevel: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if gotLevel != 1.0 {
		t.Errorf("expected clamped level 1.0, got %v", gotLevel)
	}
}

func TestControllerLaunchSucceeds(t *testing.T) {
	rig := newTestRig(t)

	go func() {
		env := readRequest(t, rig.server)
		resp := &statusResponse{
			Header: envelope.Header{Type: typeReceiverStatus, RequestID: env.RequestID},
			Status: Status{Applications: []AppSummary{
				{AppID: "CC1AD845", SessionID: "sess-1", TransportID: "transport-1"},
			}},
		}
		respond(t, rig.server, resp)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	app, err := rig.ctrl.Launch(ctx, "CC1AD845")
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if app.TransportID != "transport-1" {
		t.Errorf("unexpected transportId: %s", app.TransportID)
	}
}

func TestControllerLaunchErrorSurfacesLaunchFailed(t *testing.T) {
	rig := newTestRig(t)

	go func() {
		env := readRequest(t, rig.server)
		resp := &launchErrorResponse{Header: envelope.Header{Type: typeLaunchError, RequestID: env.RequestID}}
		respond(t, rig.server, resp)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := rig.ctrl.Launch(ctx, "unknown-app")
	if !cerror.Is(err, cerror.KindLaunchFailed) {
		t.Fatalf("expected KindLaunchFailed, got %v", err)
	}
}

func TestControllerStopUnknownSessionIsInvalidRequest(t *testing.T) {
	rig := newTestRig(t)

	go func() {
		env := readRequest(t, rig.server)
		resp := &invalidRequestResponse{Header: envelope.Header{Type: typeInvalidRequest, RequestID: env.RequestID}}
		respond(t, rig.server, resp)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := rig.ctrl.Stop(ctx, "no-such-session")
	if !cerror.Is(err, cerror.KindInvalidRequest) {
		t.Fatalf("expected KindInvalidRequest, got %v", err)
	}
}

func TestControllerIsAppAvailable(t *testing.T) {
	rig := newTestRig(t)

	go func() {
		env := readRequest(t, rig.server)
		resp := &appAvailabilityResponse{
			Header:       envelope.Header{Type: "APP_AVAILABILITY", RequestID: env.RequestID},
			Availability: map[string]Availability{"CC1AD845": AppAvailable},
		}
		respond(t, rig.server, resp)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ok, err := rig.ctrl.IsAppAvailable(ctx, "CC1AD845")
	if err != nil {
		t.Fatalf("IsAppAvailable: %v", err)
	}
	if !ok {
		t.Error("expected app available")
	}
}

type launchErrorResponse struct {
	envelope.Header
}

type invalidRequestResponse struct {
	envelope.Header
}
