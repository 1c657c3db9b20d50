// Package config holds the tunable knobs for a peer: timeouts, retry
// budgets, and a couple of policy decisions left open by the protocol
// design. It keeps a flat options-struct-with-defaults shape rather than
// a builder, and adds an optional BurntSushi/toml loader for operators
// who want these in a file instead of code.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
)

// RelayFilter decides whether a broadcast message from one client should
// also be relayed to another. The default Options.RelayFilter relays to
// everyone but the sender.
type RelayFilter func(fromClientID, toClientID uint32) bool

// Options holds every construction-time knob a peer needs. There is
// deliberately no mutator API for changing these after a peer starts;
// the whole Options value is fixed for the peer's lifetime, which is
// what makes the pool's message capacity safe to size once.
type Options struct {
	// MaxPayloadSize is the largest application payload, in bytes, a
	// single message may carry.
	MaxPayloadSize int `toml:"max_payload_size"`

	// InstancesPerPeer pre-warms this many Messages in the peer's pool at
	// construction.
	InstancesPerPeer int `toml:"instances_per_peer"`

	// TimeoutTime is how long a connection may go without receiving
	// anything before it is torn down as timed out.
	TimeoutTime time.Duration `toml:"timeout_time"`

	// HeartbeatInterval is how often a heartbeat ping is sent to each
	// connected peer.
	HeartbeatInterval time.Duration `toml:"heartbeat_interval"`

	// MaxConnectionAttempts bounds how many times a client retries an
	// unanswered Connect before giving up.
	MaxConnectionAttempts int `toml:"max_connection_attempts"`

	// MaxSendAttempts bounds how many times a reliable message is sent,
	// the first send included, before the connection is considered too
	// poor to use.
	MaxSendAttempts int `toml:"max_send_attempts"`

	// MaxClientCount bounds how many simultaneous connections a server
	// accepts; further Connect attempts get RejectServerFull. Zero, or any
	// value above 65534, means the server's ceiling of 65534.
	MaxClientCount int `toml:"max_client_count"`

	// SuppressAlreadyConnectedReject, when true, silently re-sends
	// Welcome instead of RejectAlreadyConnected for a Connect retried by
	// an already-Connected peer, since the client's prior Welcome was most
	// likely lost, not a genuine second actor. See DESIGN.md.
	SuppressAlreadyConnectedReject bool `toml:"suppress_already_connected_reject"`

	// DisconnectOnPoorConnection, when true, tears a connection down with
	// DisconnectPoorConnection once a pending reliable message exceeds
	// MaxSendAttempts, rather than leaving it pending indefinitely. See
	// DESIGN.md.
	DisconnectOnPoorConnection bool `toml:"disconnect_on_poor_connection"`

	// RelayFilter gates broadcast relaying on a server. Nil means relay to
	// every other connected client.
	RelayFilter RelayFilter `toml:"-"`
}

// Default returns the Options every demo binary and test in this module
// starts from.
func Default() Options {
	return Options{
		MaxPayloadSize:                 1225,
		InstancesPerPeer:               4,
		TimeoutTime:                    5 * time.Second,
		HeartbeatInterval:              1 * time.Second,
		MaxConnectionAttempts:          5,
		MaxSendAttempts:                15,
		MaxClientCount:                 0,
		SuppressAlreadyConnectedReject: true,
		DisconnectOnPoorConnection:     true,
	}
}

// LoadFile reads a TOML configuration file and overlays it onto
// Default(). Fields absent from the file keep their default value;
// RelayFilter is never loaded from file and must be set in code.
func LoadFile(path string) (Options, error) {
	opts := Default()
	if _, err := toml.DecodeFile(path, &opts); err != nil {
		return Options{}, err
	}
	return opts, nil
}
