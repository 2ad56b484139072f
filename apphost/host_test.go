package apphost

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
	"github.com/ofmooseandmen/castv2/receiver"
	"github.com/ofmooseandmen/castv2/wire"
)

type fakeAppController struct {
	data     ApplicationData
	w        *Wire
	received chan *wire.CastMessage
}

func newFakeAppController(data ApplicationData, w *Wire) Controller {
	return &fakeAppController{data: data, w: w, received: make(chan *wire.CastMessage, 8)}
}

func (f *fakeAppController) MessageReceived(msg *wire.CastMessage) {
	f.received <- msg
}

type hostRig struct {
	host   *Host
	server net.Conn
}

func newHostRig(t *testing.T) *hostRig {
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
	reqr := requestor.NewString(ch, ch, gen, "sender-0", wire.NamespaceReceiver)
	recv := receiver.New(reqr)
	host := New(ch, recv, gen)

	return &hostRig{host: host, server: server}
}

func TestHostLaunchOpensSubChannelAndDispatches(t *testing.T) {
	rig := newHostRig(t)

	go func() {
		// LAUNCH request.
		msg, err := wire.ReadFrame(rig.server)
		if err != nil {
			return
		}
		env, _ := envelope.Parse(msg)
		resp := &launchStatusResponse{
			Header: envelope.Header{Type: "RECEIVER_STATUS", RequestID: env.RequestID},
			Status: receiver.Status{Applications: []receiver.AppSummary{
				{AppID: "CC1AD845", SessionID: "sess-1", TransportID: "transport-1",
					Namespaces: []receiver.AppNS{{Name: "urn:x-cast:com.google.cast.media"}}},
			}},
		}
		frame, err := envelope.BuildMessage(wire.NamespaceReceiver, wire.DefaultReceiverID, "sender-0", resp)
		if err != nil {
			return
		}
		if err := wire.WriteFrame(rig.server, frame); err != nil {
			return
		}

		// Virtual sub-channel CONNECT.
		connectMsg, err := wire.ReadFrame(rig.server)
		if err != nil {
			return
		}
		if connectMsg.DestinationID != "transport-1" {
			t.Errorf("expected CONNECT addressed to transport-1, got %s", connectMsg.DestinationID)
		}

		// Unsolicited app-namespace frame.
		unsolicited := &wire.CastMessage{
			SourceID: "transport-1", DestinationID: "sender-0",
			Namespace: "urn:x-cast:com.google.cast.media", PayloadType: wire.PayloadTypeString,
			PayloadUTF8: `{"type":"MEDIA_STATUS"}`,
		}
		_ = wire.WriteFrame(rig.server, unsolicited)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var built *fakeAppController
	ac, err := rig.host.Launch(ctx, "CC1AD845", func(data ApplicationData, w *Wire) Controller {
		built = &fakeAppController{data: data, w: w, received: make(chan *wire.CastMessage, 8)}
		return built
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if ac.Data.TransportID != "transport-1" {
		t.Errorf("unexpected transportId: %s", ac.Data.TransportID)
	}

	select {
	case msg := <-built.received:
		if msg.Namespace != "urn:x-cast:com.google.cast.media" {
			t.Errorf("unexpected namespace: %s", msg.Namespace)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("app controller never received unsolicited frame")
	}
}

func TestHostLaunchRejectsDuplicateActiveApp(t *testing.T) {
	rig := newHostRig(t)

	go func() {
		for i := 0; i < 1; i++ {
			msg, err := wire.ReadFrame(rig.server)
			if err != nil {
				return
			}
			env, _ := envelope.Parse(msg)
			resp := &launchStatusResponse{
				Header: envelope.Header{Type: "RECEIVER_STATUS", RequestID: env.RequestID},
				Status: receiver.Status{Applications: []receiver.AppSummary{
					{AppID: "CC1AD845", SessionID: "sess-1", TransportID: "transport-1"},
				}},
			}
			frame, err := envelope.BuildMessage(wire.NamespaceReceiver, wire.DefaultReceiverID, "sender-0", resp)
			if err != nil {
				return
			}
			_ = wire.WriteFrame(rig.server, frame)
			_, _ = wire.ReadFrame(rig.server) // virtual CONNECT
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := rig.host.Launch(ctx, "CC1AD845", newFakeAppController); err != nil {
		t.Fatalf("first Launch: %v", err)
	}

	_, err := rig.host.Launch(ctx, "CC1AD845", newFakeAppController)
	if !cerror.Is(err, cerror.KindIllegalState) {
		t.Fatalf("expected KindIllegalState on duplicate launch, got %v", err)
	}
}

func TestHostStopDeregistersAndMarksStopped(t *testing.T) {
	rig := newHostRig(t)

	go func() {
		// LAUNCH.
		msg, err := wire.ReadFrame(rig.server)
		if err != nil {
			return
		}
		env, _ := envelope.Parse(msg)
		resp := &launchStatusResponse{
			Header: envelope.Header{Type: "RECEIVER_STATUS", RequestID: env.RequestID},
			Status: receiver.Status{Applications: []receiver.AppSummary{
				{AppID: "CC1AD845", SessionID: "sess-1", TransportID: "transport-1"},
			}},
		}
		frame, _ := envelope.BuildMessage(wire.NamespaceReceiver, wire.DefaultReceiverID, "sender-0", resp)
		_ = wire.WriteFrame(rig.server, frame)
		_, _ = wire.ReadFrame(rig.server) // virtual CONNECT

		// STOP.
		stopMsg, err := wire.ReadFrame(rig.server)
		if err != nil {
			return
		}
		var stopReq struct {
			envelope.Header
			SessionID string `json:"sessionId"`
		}
		_ = json.Unmarshal([]byte(stopMsg.PayloadUTF8), &stopReq)
		stopResp := &launchStatusResponse{Header: envelope.Header{Type: "RECEIVER_STATUS", RequestID: stopReq.RequestID}}
		stopFrame, _ := envelope.BuildMessage(wire.NamespaceReceiver, wire.DefaultReceiverID, "sender-0", stopResp)
		_ = wire.WriteFrame(rig.server, stopFrame)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ac, err := rig.host.Launch(ctx, "CC1AD845", newFakeAppController)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	if _, err := rig.host.Stop(ctx, ac); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !ac.IsStopped() {
		t.Error("expected controller marked stopped")
	}

	if _, err := rig.host.Stop(ctx, ac); !cerror.Is(err, cerror.KindIllegalState) {
		t.Fatalf("expected KindIllegalState on double stop, got %v", err)
	}
}

type launchStatusResponse struct {
	envelope.Header
	Status receiver.Status `json:"status"`
}

type mediaStatusRequest struct {
	envelope.Header
}

type mediaStatusResponse struct {
	envelope.Header
	PlayerState string `json:"playerState"`
}

func TestWireRequestCorrelatesOnAppNamespace(t *testing.T) {
	rig := newHostRig(t)

	const mediaNS = "urn:x-cast:com.google.cast.media"
	appResultCh := make(chan error, 1)
	var resp mediaStatusResponse

	go func() {
		// LAUNCH request.
		msg, err := wire.ReadFrame(rig.server)
		if err != nil {
			return
		}
		env, _ := envelope.Parse(msg)
		launchResp := &launchStatusResponse{
			Header: envelope.Header{Type: "RECEIVER_STATUS", RequestID: env.RequestID},
			Status: receiver.Status{Applications: []receiver.AppSummary{
				{AppID: "CC1AD845", SessionID: "sess-1", TransportID: "transport-1",
					Namespaces: []receiver.AppNS{{Name: mediaNS}}},
			}},
		}
		frame, _ := envelope.BuildMessage(wire.NamespaceReceiver, wire.DefaultReceiverID, "sender-0", launchResp)
		_ = wire.WriteFrame(rig.server, frame)

		_, _ = wire.ReadFrame(rig.server) // virtual CONNECT

		// MEDIA_STATUS request on the app's own namespace.
		reqMsg, err := wire.ReadFrame(rig.server)
		if err != nil {
			return
		}
		if reqMsg.Namespace != mediaNS {
			t.Errorf("expected request on %s, got %s", mediaNS, reqMsg.Namespace)
		}
		reqEnv, _ := envelope.Parse(reqMsg)
		mediaResp := &mediaStatusResponse{
			Header:      envelope.Header{Type: "MEDIA_STATUS", RequestID: reqEnv.RequestID},
			PlayerState: "PLAYING",
		}
		mediaFrame, _ := envelope.BuildMessage(mediaNS, "transport-1", "sender-0", mediaResp)
		_ = wire.WriteFrame(rig.server, mediaFrame)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := rig.host.Launch(ctx, "CC1AD845", func(data ApplicationData, w *Wire) Controller {
		go func() {
			req := &mediaStatusRequest{Header: envelope.Header{Type: "MEDIA_STATUS"}}
			appResultCh <- w.Request(ctx, mediaNS, data.TransportID, req, &resp)
		}()
		return &fakeAppController{data: data, w: w, received: make(chan *wire.CastMessage, 8)}
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	select {
	case err := <-appResultCh:
		if err != nil {
			t.Fatalf("app-namespace Request: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("app-namespace Request never completed")
	}
	if resp.PlayerState != "PLAYING" {
		t.Errorf("expected playerState PLAYING, got %s", resp.PlayerState)
	}
}
