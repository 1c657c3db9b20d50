package config

import (
	"testing"
	"time"
)

func TestDefaultMatchesDocumentedValues(t *testing.T) {
	d := Default()
	if d.MaxPayloadSize != 1225 {
		t.Errorf("MaxPayloadSize = %d, want 1225", d.MaxPayloadSize)
	}
	if d.TimeoutTime != 5*time.Second {
		t.Errorf("TimeoutTime = %v, want 5s", d.TimeoutTime)
	}
	if d.HeartbeatInterval != 1*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 1s", d.HeartbeatInterval)
	}
	if !d.SuppressAlreadyConnectedReject {
		t.Errorf("SuppressAlreadyConnectedReject = false, want true")
	}
	if !d.DisconnectOnPoorConnection {
		t.Errorf("DisconnectOnPoorConnection = false, want true")
	}
}

func TestLoadFileMissingReturnsError(t *testing.T) {
	if _, err := LoadFile("/nonexistent/ripnet.toml"); err == nil {
		t.Errorf("LoadFile on a missing path returned nil error")
	}
}
