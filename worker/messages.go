package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/traf3li/clientops/observe"
)

// MessageType names a control message.
type MessageType string

// Control messages.
const (
	// MessageSkipWaiting activates an installed worker immediately.
	MessageSkipWaiting MessageType = "SKIP_WAITING"
)

// Message is a control message from a page.
type Message struct {
	Type MessageType `json:"type"`
}

// Post queues msg for the worker. Unknown types are rejected.
func (w *Worker) Post(ctx context.Context, msg Message) error {
	switch msg.Type {
	case MessageSkipWaiting:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}

	select {
	case w.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) handle(ctx context.Context, msg Message) {
	w.logger.Debug(ctx, "message received", observe.F("type", string(msg.Type)))
	if msg.Type == MessageSkipWaiting {
		w.SkipWaiting()
	}
}

// MessageHandler accepts control messages as JSON over HTTP.
func MessageHandler(w *Worker) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var msg Message
		if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 4<<10)).Decode(&msg); err != nil {
			http.Error(rw, "invalid message", http.StatusBadRequest)
			return
		}
		if err := w.Post(r.Context(), msg); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		rw.WriteHeader(http.StatusAccepted)
	})
}
