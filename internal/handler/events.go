package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/edupaila/community-server-go/internal/errors"
	"github.com/edupaila/community-server-go/internal/middleware"
	"github.com/edupaila/community-server-go/internal/sse"
)

// Subscriber is satisfied by *sse.Broker.
type Subscriber interface {
	Subscribe(operatorID string) *sse.Client
	Unsubscribe(client *sse.Client)
}

// EventsHandler streams broadcast progress to the operator who started it.
type EventsHandler struct {
	broker Subscriber
}

func NewEventsHandler(broker Subscriber) *EventsHandler {
	return &EventsHandler{broker: broker}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())
	if id == nil {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(id.OwnerID)
	defer h.broker.Unsubscribe(client)

	log.Info().
		Str("operatorId", id.OwnerID).
		Msg("sse connection established")

	if err := h.sendEvent(w, flusher, "connected", map[string]any{
		"operatorId": id.OwnerID,
		"email":      id.OwnerAddress,
	}); err != nil {
		return
	}

	ctx := r.Context()
	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("operatorId", id.OwnerID).
				Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().
				Str("operatorId", id.OwnerID).
				Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Str("operatorId", id.OwnerID).
					Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
