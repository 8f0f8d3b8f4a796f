package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chatcore/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL + "/api", Token: "tok"})
	require.NoError(t, err)
	return c
}

func TestListThreadsSendsBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/threads/", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]model.Thread{{ID: 1}, {ID: 2, IsGroup: true}})
	})

	threads, err := c.ListThreads(context.Background())

	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.True(t, threads[1].IsGroup)
}

func TestGetMessagesPassesPaging(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/threads/7/", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "120", r.URL.Query().Get("before_id"))
		_ = json.NewEncoder(w).Encode(model.ListMessagesResponse{
			Messages: []model.Message{{ID: 100}, {ID: 101}},
		})
	})

	msgs, err := c.GetMessages(context.Background(), 7, 50, 120)

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(7), msgs[0].ThreadID)
}

func TestSendMessageBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(4), body["thread"])
		assert.Equal(t, "hi", body["content"])
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(model.Message{ID: 55, Content: "hi"})
	})

	msg, err := c.SendMessage(context.Background(), 4, "hi")

	require.NoError(t, err)
	assert.Equal(t, int64(55), msg.ID)
	assert.Equal(t, int64(4), msg.ThreadID)
}

func TestDeleteMessageScope(t *testing.T) {
	scope := make(chan string, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/messages/9/delete/", r.URL.Path)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		scope <- body["type"]
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.DeleteMessage(context.Background(), 9, true))
	assert.Equal(t, "everyone", <-scope)
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"forbidden", http.StatusForbidden, ErrForbidden},
		{"bad request", http.StatusBadRequest, ErrValidation},
		{"server error", http.StatusInternalServerError, ErrTransient},
		{"bad gateway", http.StatusBadGateway, ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"detail":"nope"}`))
			})

			err := c.AcceptRequest(context.Background(), 3)

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind))
			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, "nope", apiErr.Detail)
			assert.Equal(t, "accept_request", apiErr.Op)
		})
	}
}

func TestTransportFailureIsTransient(t *testing.T) {
	c, err := NewHTTPClient(HTTPConfig{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = c.ListThreads(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestVerifyThreadDeleted(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		code := int(status.Load())
		w.WriteHeader(code)
		if code == http.StatusOK {
			_ = json.NewEncoder(w).Encode(model.Thread{ID: 8})
		}
	})

	gone, err := c.VerifyThreadDeleted(context.Background(), 8)
	require.NoError(t, err)
	assert.True(t, gone)

	status.Store(http.StatusOK)
	gone, err = c.VerifyThreadDeleted(context.Background(), 8)
	require.NoError(t, err)
	assert.False(t, gone)

	status.Store(http.StatusServiceUnavailable)
	_, err = c.VerifyThreadDeleted(context.Background(), 8)
	assert.ErrorIs(t, err, ErrTransient)
}
