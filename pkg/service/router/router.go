// Package router decodes inbound board frames and dispatches them by
// their type discriminator.
package router

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
	"github.com/secmon-lab/boardsync/pkg/utils/logging"
)

// Handler processes one frame of its registered type
type Handler func(ctx context.Context, raw []byte) error

// Router is a registry of handlers keyed by message type
type Router struct {
	mu       sync.RWMutex
	handlers map[types.MessageType]Handler
}

func New() *Router {
	return &Router{handlers: make(map[types.MessageType]Handler)}
}

// Register sets the handler for msgType, replacing any previous one
func (r *Router) Register(msgType types.MessageType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[msgType] = h
}

type validator interface {
	Validate() error
}

// On registers a handler receiving the frame decoded into T. Payloads
// that implement Validate are checked before fn is called.
func On[T any](r *Router, msgType types.MessageType, fn func(ctx context.Context, msg *T) error) {
	r.Register(msgType, func(ctx context.Context, raw []byte) error {
		var msg T
		if err := json.Unmarshal(raw, &msg); err != nil {
			return goerr.Wrap(model.ErrInvalidEnvelope, "failed to decode payload",
				goerr.V(model.MessageTypeKey, msgType), goerr.V("cause", err.Error()))
		}
		if v, ok := any(&msg).(validator); ok {
			if err := v.Validate(); err != nil {
				return err
			}
		}
		return fn(ctx, &msg)
	})
}

// Handle dispatches raw. Malformed frames, unknown types, handler errors
// and handler panics are logged and dropped so one bad frame never
// affects the connection.
func (r *Router) Handle(ctx context.Context, raw []byte) {
	logger := logging.From(ctx)

	env, err := model.DecodeEnvelope(raw)
	if err != nil {
		logger.Warn("dropping malformed frame", "error", err, "size", len(raw))
		return
	}

	r.mu.RLock()
	h, ok := r.handlers[env.Type]
	r.mu.RUnlock()
	if !ok {
		logger.Debug("ignoring unknown message type", model.MessageTypeKey, env.Type)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic in frame handler", model.MessageTypeKey, env.Type, "panic", rec)
		}
	}()
	if err := h(ctx, raw); err != nil {
		logger.Warn("frame handler failed", model.MessageTypeKey, env.Type, "error", err)
	}
}
