// Package websocket adapts gorilla/websocket to the board transport
// interfaces.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/domain/interfaces"
)

var (
	ErrDial = goerr.New("failed to open board socket")
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultReadLimit        = 32 << 20
)

// Dialer opens board sockets with gorilla/websocket
type Dialer struct {
	dialer       *gws.Dialer
	writeTimeout time.Duration
	readLimit    int64
}

type Option func(*Dialer)

// WithHandshakeTimeout bounds the HTTP upgrade. The connection manager
// has its own timeout, so this is only a backstop.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(x *Dialer) { x.dialer.HandshakeTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(x *Dialer) { x.writeTimeout = d }
}

// WithReadLimit sets the maximum frame size. Full bucket loads can be
// large, so the default is generous.
func WithReadLimit(n int64) Option {
	return func(x *Dialer) { x.readLimit = n }
}

func NewDialer(opts ...Option) *Dialer {
	d := &Dialer{
		dialer: &gws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		writeTimeout: defaultWriteTimeout,
		readLimit:    defaultReadLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dialer) Dial(ctx context.Context, target string, header http.Header) (interfaces.Conn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, target, header)
	if err != nil {
		opts := []goerr.Option{goerr.V("cause", err.Error())}
		if resp != nil {
			opts = append(opts, goerr.V("http_status", resp.StatusCode))
		}
		return nil, goerr.Wrap(ErrDial, "websocket handshake failed", opts...)
	}
	ws.SetReadLimit(d.readLimit)
	return &conn{ws: ws, writeTimeout: d.writeTimeout}, nil
}

type conn struct {
	ws           *gws.Conn
	writeTimeout time.Duration
	// gorilla allows one concurrent writer
	writeMu sync.Mutex
}

func (c *conn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == gws.TextMessage || kind == gws.BinaryMessage {
			return data, nil
		}
	}
}

func (c *conn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return goerr.Wrap(err, "failed to set write deadline")
		}
	}
	if err := c.ws.WriteMessage(gws.TextMessage, data); err != nil {
		return goerr.Wrap(err, "failed to write frame")
	}
	return nil
}

func (c *conn) Close(code int, reason string) error {
	c.writeMu.Lock()
	msg := gws.FormatCloseMessage(code, reason)
	// the peer may already be gone; the close frame is best effort
	_ = c.ws.WriteControl(gws.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()

	if err := c.ws.Close(); err != nil {
		return goerr.Wrap(err, "failed to close socket")
	}
	return nil
}
