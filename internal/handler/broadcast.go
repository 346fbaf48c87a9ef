package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edupaila/community-server-go/internal/audit"
	apperrors "github.com/edupaila/community-server-go/internal/errors"
	"github.com/edupaila/community-server-go/internal/middleware"
	"github.com/edupaila/community-server-go/internal/model"
	"github.com/edupaila/community-server-go/internal/service"
	"github.com/edupaila/community-server-go/internal/util"
)

// Broadcaster is satisfied by *service.BroadcastService.
type Broadcaster interface {
	Dispatch(ctx context.Context, req service.DispatchRequest) (*service.DispatchOutcome, error)
	History(ctx context.Context, limit, offset int) ([]model.Broadcast, int, error)
	Get(ctx context.Context, id string) (*model.Broadcast, error)
}

type attachmentPayload struct {
	Name    string `json:"name" validate:"required,max=255"`
	Content string `json:"content,omitempty"`
	Type    string `json:"type,omitempty"`
}

type sendRequest struct {
	Token       string              `json:"token,omitempty"`
	Subject     string              `json:"subject" validate:"required,max=998"`
	Content     string              `json:"content" validate:"required"`
	Recipients  []string            `json:"recipients" validate:"omitempty,dive,max=254"`
	MediaLinks  []string            `json:"mediaLinks" validate:"omitempty,dive,url"`
	Attachments []attachmentPayload `json:"attachments" validate:"omitempty,dive"`
}

type BroadcastHandler struct {
	broadcasts   Broadcaster
	requireAdmin func(http.Handler) http.Handler
	events       http.Handler
}

func NewBroadcastHandler(
	broadcasts Broadcaster,
	requireAdmin func(http.Handler) http.Handler,
	events http.Handler,
) *BroadcastHandler {
	return &BroadcastHandler{
		broadcasts:   broadcasts,
		requireAdmin: requireAdmin,
		events:       events,
	}
}

func (h *BroadcastHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Post("/send", h.Send)
		r.Get("/history", h.History)
		if h.events != nil {
			r.Get("/events", h.events.ServeHTTP)
		}
		r.Get("/{id}", h.Get)
	})

	return r
}

func (h *BroadcastHandler) Send(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())
	if id == nil {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	var req sendRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	attachments := make([]service.AttachmentInput, len(req.Attachments))
	for i, a := range req.Attachments {
		attachments[i] = service.AttachmentInput{Name: a.Name, Content: a.Content}
	}

	outcome, err := h.broadcasts.Dispatch(r.Context(), service.DispatchRequest{
		Subject:     req.Subject,
		Body:        req.Content,
		Recipients:  req.Recipients,
		MediaLinks:  req.MediaLinks,
		Attachments: attachments,
		OperatorID:  id.OwnerID,
		SentBy:      id.OwnerAddress,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventBroadcastSend,
		Owner:     id.OwnerAddress,
		AccountID: id.OwnerID,
		Details: map[string]any{
			"broadcastId": outcome.Broadcast.ID,
			"sent":        outcome.Sent(),
			"failed":      outcome.Failed(),
		},
	})

	status := http.StatusOK
	if outcome.Failed() > 0 {
		status = http.StatusMultiStatus
	}

	writeJSON(w, status, map[string]any{
		"message":     "Emails processed",
		"broadcastId": outcome.Broadcast.ID,
		"results":     outcome.Results,
		"sent":        outcome.Sent(),
		"failed":      outcome.Failed(),
	})
}

func (h *BroadcastHandler) History(w http.ResponseWriter, r *http.Request) {
	params := ParsePagination(r)

	items, total, err := h.broadcasts.History(r.Context(), params.Limit, params.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, len(items))
	for i, b := range items {
		out[i] = formatBroadcast(b)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  out,
		"total":  total,
		"limit":  params.Limit,
		"offset": params.Offset,
	})
}

func (h *BroadcastHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !util.IsValidUUID(id) {
		writeError(w, apperrors.InvalidInput("id", "must be a UUID"))
		return
	}

	b, err := h.broadcasts.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, formatBroadcast(*b))
}
