// Package config holds the device channel's configuration as an explicit
// record built by New, never a package-level singleton loaded at
// class-load time. Defaults come from a declarative table; callers may
// override them with functional options or by reading the process
// environment once via FromEnv.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the options recognised by the device channel.
type Config struct {
	// UseTLS selects whether the transport is TLS-wrapped TCP.
	UseTLS bool
	// HeartbeatInterval is the PING period.
	HeartbeatInterval time.Duration
	// MissedHeartbeats is the liveness window multiplier: the channel is
	// declared dead after MissedHeartbeats*HeartbeatInterval of silence.
	MissedHeartbeats int
}

// defaults is the declarative table backing Default/New/FromEnv.
var defaults = Config{
	UseTLS:            true,
	HeartbeatInterval: 5 * time.Second,
	MissedHeartbeats:  2,
}

// Default returns a copy of the built-in defaults.
func Default() Config {
	return defaults
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithTLS overrides whether the transport is TLS-wrapped.
func WithTLS(enabled bool) Option {
	return func(c *Config) { c.UseTLS = enabled }
}

// WithHeartbeatInterval overrides the PING period.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Config) { c.HeartbeatInterval = d }
}

// WithMissedHeartbeats overrides the liveness window multiplier.
func WithMissedHeartbeats(n int) Option {
	return func(c *Config) { c.MissedHeartbeats = n }
}

// WithConfig overrides every field at once with cfg, e.g. one built by
// FromEnv. Options passed after WithConfig in the same New call still
// apply on top of it.
func WithConfig(cfg Config) Option {
	return func(c *Config) { *c = cfg }
}

// New builds a Config from the defaults, applying opts in order.
func New(opts ...Option) Config {
	cfg := defaults
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Environment variable names read by FromEnv.
const (
	envUseTLS            = "CASTV2_USE_TLS"
	envHeartbeatInterval = "CASTV2_HEARTBEAT_INTERVAL_MS"
	envMissedHeartbeats  = "CASTV2_MISSED_HEARTBEATS"
)

// FromEnv builds a Config from the defaults, overridden by any of
// CASTV2_USE_TLS, CASTV2_HEARTBEAT_INTERVAL_MS, CASTV2_MISSED_HEARTBEATS
// present in the process environment. Malformed values are ignored and
// the default is kept, so a bad environment never prevents startup.
func FromEnv() Config {
	cfg := defaults
	if v, ok := os.LookupEnv(envUseTLS); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.UseTLS = b
		}
	}
	if v, ok := os.LookupEnv(envHeartbeatInterval); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HeartbeatInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v, ok := os.LookupEnv(envMissedHeartbeats); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MissedHeartbeats = n
		}
	}
	return cfg
}
