package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupaila/community-server-go/internal/middleware"
	"github.com/edupaila/community-server-go/internal/model"
	"github.com/edupaila/community-server-go/internal/sse"
	"github.com/edupaila/community-server-go/internal/token"
)

type fakeSubscriber struct {
	mu           sync.Mutex
	client       *sse.Client
	subscribed   chan string
	unsubscribed bool
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subscribed: make(chan string, 1)}
}

func (s *fakeSubscriber) Subscribe(operatorID string) *sse.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = &sse.Client{
		OperatorID: operatorID,
		Events:     make(chan sse.Event, 4),
		Done:       make(chan struct{}),
	}
	s.subscribed <- operatorID
	return s.client
}

func (s *fakeSubscriber) Unsubscribe(client *sse.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed = true
}

func adminIdentity() *token.Identity {
	return &token.Identity{OwnerID: "acc-admin", OwnerAddress: "admin@co.com", Role: model.RoleAdmin}
}

func TestEventsHandler_ServeHTTP(t *testing.T) {
	t.Run("returns 401 without an identity", func(t *testing.T) {
		h := NewEventsHandler(newFakeSubscriber())

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/broadcast/events", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("streams events for the operator", func(t *testing.T) {
		sub := newFakeSubscriber()
		h := NewEventsHandler(sub)

		ctx, cancel := context.WithCancel(middleware.WithIdentity(context.Background(), adminIdentity()))
		req := httptest.NewRequest(http.MethodGet, "/broadcast/events", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		done := make(chan struct{})
		go func() {
			h.ServeHTTP(rec, req)
			close(done)
		}()

		select {
		case id := <-sub.subscribed:
			assert.Equal(t, "acc-admin", id)
		case <-time.After(2 * time.Second):
			t.Fatal("handler never subscribed")
		}

		event, err := sse.NewEvent(sse.EventBroadcastProgress, map[string]any{"index": 1, "total": 2})
		require.NoError(t, err)
		sub.mu.Lock()
		sub.client.Events <- event
		sub.mu.Unlock()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("handler did not return after cancel")
		}

		body := rec.Body.String()
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		assert.Contains(t, body, "event: connected\n")
		assert.Contains(t, body, "event: broadcast_progress\n")
		assert.Contains(t, body, `"total":2`)
		assert.True(t, sub.unsubscribed)
	})
}

func TestEventsHandler_sendRawEvent(t *testing.T) {
	h := &EventsHandler{}
	rec := httptest.NewRecorder()

	err := h.sendRawEvent(rec, rec, sse.Event{
		Type: sse.EventBroadcastComplete,
		Data: json.RawMessage(`{"sent":3,"failed":0}`),
	})

	require.NoError(t, err)
	assert.Equal(t, "event: broadcast_complete\ndata: {\"sent\":3,\"failed\":0}\n\n", rec.Body.String())
}
