package types

import "fmt"

// ConnectionState represents the lifecycle of the board connection
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateReconnecting ConnectionState = "reconnecting"
	ConnectionStateFailed       ConnectionState = "failed"
)

// AllConnectionStates returns all valid connection states
func AllConnectionStates() []ConnectionState {
	return []ConnectionState{
		ConnectionStateDisconnected,
		ConnectionStateConnecting,
		ConnectionStateConnected,
		ConnectionStateReconnecting,
		ConnectionStateFailed,
	}
}

// IsValid checks if the connection state is valid
func (s ConnectionState) IsValid() bool {
	switch s {
	case ConnectionStateDisconnected,
		ConnectionStateConnecting,
		ConnectionStateConnected,
		ConnectionStateReconnecting,
		ConnectionStateFailed:
		return true
	default:
		return false
	}
}

// IsActive reports whether a socket is open or being opened
func (s ConnectionState) IsActive() bool {
	return s == ConnectionStateConnecting || s == ConnectionStateConnected
}

// String returns the string representation of the connection state
func (s ConnectionState) String() string {
	return string(s)
}

// ParseConnectionState parses a string into a ConnectionState
func ParseConnectionState(s string) (ConnectionState, error) {
	state := ConnectionState(s)
	if !state.IsValid() {
		return "", fmt.Errorf("invalid connection state: %s", s)
	}
	return state, nil
}
