package handler

import (
	"net/http"

	"github.com/capitalize-ai/chatcore/internal/messagelog"
	"github.com/capitalize-ai/chatcore/internal/middleware"
	"github.com/capitalize-ai/chatcore/internal/model"
	"github.com/capitalize-ai/chatcore/internal/session"
	"github.com/capitalize-ai/chatcore/pkg/logger"
)

// MessageHandler handles endpoints on the active thread's messages.
type MessageHandler struct {
	session Session
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(s Session, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		session: s,
		logger:  log,
	}
}

// MessageListResponse is the body of GET /messages.
type MessageListResponse struct {
	ThreadID          int64            `json:"thread_id"`
	Messages          []model.Message  `json:"messages"`
	Pager             messagelog.Pager `json:"pager"`
	ShowRequestPrompt bool             `json:"show_request_prompt"`
}

// OlderResponse is the body of POST /messages/older.
type OlderResponse struct {
	AnchorID int64 `json:"anchor_id"`
	MessageListResponse
}

// ContentRequest carries message content.
type ContentRequest struct {
	Content string `json:"content"`
}

// TypingRequest toggles the typing indicator.
type TypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// List handles GET /api/v1/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	snap := h.session.Snapshot()
	if snap.ActiveThreadID == 0 {
		writeSessionError(w, r, h.logger, "list_messages", session.ErrNoActiveThread)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(snap))
}

// Send handles POST /api/v1/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if !decode(w, r, &req) {
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.session.Send(r.Context(), req.Content)
	if err != nil {
		writeSessionError(w, r, h.logger, "send", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// Older handles POST /api/v1/messages/older
func (h *MessageHandler) Older(w http.ResponseWriter, r *http.Request) {
	anchor, err := h.session.LoadOlder(r.Context())
	if err != nil {
		writeSessionError(w, r, h.logger, "load_older", err)
		return
	}
	writeJSON(w, http.StatusOK, OlderResponse{
		AnchorID:            anchor,
		MessageListResponse: listResponse(h.session.Snapshot()),
	})
}

// Edit handles PUT /api/v1/messages/:id
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ContentRequest
	if !decode(w, r, &req) {
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.session.Edit(r.Context(), id, req.Content)
	if err != nil {
		writeSessionError(w, r, h.logger, "edit", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// Delete handles DELETE /api/v1/messages/:id?scope=me|everyone
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var forEveryone bool
	switch r.URL.Query().Get("scope") {
	case "", "me":
	case "everyone":
		forEveryone = true
	default:
		writeError(w, http.StatusBadRequest, "scope must be me or everyone")
		return
	}

	if err := h.session.DeleteMessage(r.Context(), id, forEveryone); err != nil {
		writeSessionError(w, r, h.logger, "delete_message", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Typing handles POST /api/v1/typing
func (h *MessageHandler) Typing(w http.ResponseWriter, r *http.Request) {
	var req TypingRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.session.SetTyping(r.Context(), req.IsTyping); err != nil {
		writeSessionError(w, r, h.logger, "typing", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func listResponse(snap session.Snapshot) MessageListResponse {
	return MessageListResponse{
		ThreadID:          snap.ActiveThreadID,
		Messages:          snap.Messages,
		Pager:             snap.Pager,
		ShowRequestPrompt: snap.ShowRequestPrompt,
	}
}
