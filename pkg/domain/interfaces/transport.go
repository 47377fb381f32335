package interfaces

import (
	"context"
	"net/http"
)

// Conn is one open socket carrying JSON text frames
type Conn interface {
	// ReadMessage blocks until the next frame arrives or the socket closes
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	// Close performs a close handshake with code and reason, then
	// releases the socket
	Close(code int, reason string) error
}

// Dialer opens sockets
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// Sender transmits outbound messages over the board connection. Send
// reports whether the channel was open; it never returns an error.
type Sender interface {
	Send(ctx context.Context, msg any) bool
}
