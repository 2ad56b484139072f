// Package heartbeat implements the periodic PING sender and PONG
// watchdog that declares a Cast device channel dead after too many
// heartbeat windows pass without evidence of liveness.
package heartbeat

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ofmooseandmen/castv2/envelope"
	"github.com/ofmooseandmen/castv2/wire"
)

// Sender is the minimal socket channel surface the engine needs.
type Sender interface {
	Send(msg *wire.CastMessage) error
}

// Config configures one Engine.
type Config struct {
	PingInterval        time.Duration
	MissedPongThreshold int
	SourceID            string
	DestinationID       string
}

// Engine runs the ping loop and pong watchdog for one open channel. It
// also doubles as a netchan.Listener registered as a wildcard: any
// inbound frame counts as liveness evidence, not just PONG, per spec.
type Engine struct {
	cfg    Config
	sender Sender
	onDead func()
	log    *slog.Logger

	lastEvidence atomic.Int64 // UnixNano

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	deadOnce sync.Once
}

// New creates an Engine in the STOPPED state.
func New(cfg Config, sender Sender, onDead func(), log *slog.Logger) *Engine {
	e := &Engine{cfg: cfg, sender: sender, onDead: onDead, log: log}
	e.lastEvidence.Store(time.Now().UnixNano())
	return e
}

// Start transitions STOPPED -> RUNNING and begins the ping loop. The
// engine exists only while the owning channel is OPEN — callers stop it
// on disconnect.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.lastEvidence.Store(time.Now().UnixNano())
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	go e.run(e.stopCh, e.doneCh)
}

// Stop transitions RUNNING -> STOPPED. Cancellation is cooperative: the
// scheduler wakes within one tick of Stop being called.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	stopCh := e.stopCh
	doneCh := e.doneCh
	e.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// NoteLiveness records evidence the device is alive now.
func (e *Engine) NoteLiveness() {
	e.lastEvidence.Store(time.Now().UnixNano())
}

// MessageReceived implements netchan.Listener. Every inbound frame on the
// channel counts as liveness evidence, per spec 4.4; a PONG on the
// heartbeat namespace is handled the same way since it carries no
// additional state beyond "the device responded".
func (e *Engine) MessageReceived(msg *wire.CastMessage) {
	e.NoteLiveness()
}

func (e *Engine) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(e.cfg.PingInterval)
	defer ticker.Stop()

	deadline := time.Duration(e.cfg.MissedPongThreshold) * e.cfg.PingInterval

	ping := &pingPayload{Header: envelope.Header{Type: "PING"}}

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			frame, err := envelope.BuildMessage(wire.NamespaceHeartbeat, e.cfg.SourceID, e.cfg.DestinationID, ping)
			if err == nil {
				if err := e.sender.Send(frame); err != nil && e.log != nil {
					e.log.Debug("heartbeat ping send failed", "err", err)
				}
			}

			last := time.Unix(0, e.lastEvidence.Load())
			if time.Since(last) > deadline {
				e.declareDead()
				return
			}
		}
	}
}

func (e *Engine) declareDead() {
	e.deadOnce.Do(func() {
		if e.log != nil {
			e.log.Warn("heartbeat window elapsed with no evidence of liveness")
		}
		if e.onDead != nil {
			e.onDead()
		}
	})
}

type pingPayload struct {
	envelope.Header
}
