package handler

import (
	"context"
	"net/http"

	"github.com/capitalize-ai/chatcore/internal/middleware"
	"github.com/capitalize-ai/chatcore/internal/model"
	"github.com/capitalize-ai/chatcore/pkg/logger"
)

// ThreadHandler handles thread directory and lifecycle endpoints.
type ThreadHandler struct {
	session Session
	logger  *logger.Logger
}

// NewThreadHandler creates a new thread handler.
func NewThreadHandler(s Session, log *logger.Logger) *ThreadHandler {
	return &ThreadHandler{
		session: s,
		logger:  log,
	}
}

// ThreadListResponse is the body of GET /threads.
type ThreadListResponse struct {
	Threads  []model.Thread `json:"threads"`
	Loaded   bool           `json:"loaded"`
	Restored bool           `json:"restored,omitempty"`
}

// OpenThreadRequest opens a direct thread (UserID) or creates a group
// (Name and MemberIDs).
type OpenThreadRequest struct {
	UserID    int64   `json:"user_id,omitempty"`
	Name      string  `json:"name,omitempty"`
	MemberIDs []int64 `json:"member_ids,omitempty"`
}

// MembersRequest carries user ids for membership changes.
type MembersRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

// MemberRequest carries a single member id.
type MemberRequest struct {
	UserID int64 `json:"user_id"`
}

// RenameRequest carries a new group name.
type RenameRequest struct {
	Name string `json:"name"`
}

// Session handles GET /api/v1/session
func (h *ThreadHandler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// List handles GET /api/v1/threads
func (h *ThreadHandler) List(w http.ResponseWriter, r *http.Request) {
	snap := h.session.Snapshot()
	writeJSON(w, http.StatusOK, ThreadListResponse{Threads: snap.Threads, Loaded: snap.Loaded, Restored: snap.Restored})
}

// Refresh handles POST /api/v1/refresh
func (h *ThreadHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Refresh(r.Context()); err != nil {
		writeSessionError(w, r, h.logger, "refresh", err)
		return
	}
	h.List(w, r)
}

// Open handles POST /api/v1/threads
func (h *ThreadHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req OpenThreadRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		thread *model.Thread
		err    error
	)
	switch {
	case req.UserID != 0 && len(req.MemberIDs) == 0:
		thread, err = h.session.OpenDirect(r.Context(), req.UserID)
	case req.UserID == 0 && len(req.MemberIDs) > 0:
		if err := middleware.ValidateGroupName(req.Name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := middleware.ValidateUserIDs(req.MemberIDs); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		thread, err = h.session.CreateGroup(r.Context(), req.Name, req.MemberIDs)
	default:
		writeError(w, http.StatusBadRequest, "either user_id or member_ids is required")
		return
	}
	if err != nil {
		writeSessionError(w, r, h.logger, "open_thread", err)
		return
	}
	writeJSON(w, http.StatusCreated, thread)
}

// Select handles POST /api/v1/threads/:id/select
func (h *ThreadHandler) Select(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.session.Select(r.Context(), id); err != nil {
		writeSessionError(w, r, h.logger, "select", err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// Deselect handles DELETE /api/v1/selection
func (h *ThreadHandler) Deselect(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Deselect(r.Context()); err != nil {
		writeSessionError(w, r, h.logger, "deselect", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/v1/threads/:id
func (h *ThreadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.action("delete_thread", h.session.DeleteThread)(w, r)
}

// Accept handles POST /api/v1/threads/:id/accept
func (h *ThreadHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.action("accept", h.session.AcceptRequest)(w, r)
}

// Reject handles POST /api/v1/threads/:id/reject
func (h *ThreadHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.action("reject", h.session.RejectRequest)(w, r)
}

// Block handles POST /api/v1/threads/:id/block
func (h *ThreadHandler) Block(w http.ResponseWriter, r *http.Request) {
	h.action("block", h.session.Block)(w, r)
}

// Unblock handles POST /api/v1/threads/:id/unblock
func (h *ThreadHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.action("unblock", h.session.Unblock)(w, r)
}

// Leave handles POST /api/v1/threads/:id/leave
func (h *ThreadHandler) Leave(w http.ResponseWriter, r *http.Request) {
	h.action("leave", h.session.LeaveGroup)(w, r)
}

// AddMembers handles POST /api/v1/threads/:id/members
func (h *ThreadHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req MembersRequest
	if !decode(w, r, &req) {
		return
	}
	if err := middleware.ValidateUserIDs(req.UserIDs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.session.AddMembers(r.Context(), id, req.UserIDs); err != nil {
		writeSessionError(w, r, h.logger, "add_members", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember handles DELETE /api/v1/threads/:id/members/:member
func (h *ThreadHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	h.memberAction("remove_member", h.session.RemoveMember)(w, r)
}

// PromoteAdmin handles POST /api/v1/threads/:id/admins
func (h *ThreadHandler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req MemberRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := h.session.PromoteAdmin(r.Context(), id, req.UserID); err != nil {
		writeSessionError(w, r, h.logger, "promote_admin", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DemoteAdmin handles DELETE /api/v1/threads/:id/admins/:member
func (h *ThreadHandler) DemoteAdmin(w http.ResponseWriter, r *http.Request) {
	h.memberAction("demote_admin", h.session.DemoteAdmin)(w, r)
}

// Rename handles PUT /api/v1/threads/:id/name
func (h *ThreadHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req RenameRequest
	if !decode(w, r, &req) {
		return
	}
	if err := middleware.ValidateGroupName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.session.RenameGroup(r.Context(), id, req.Name); err != nil {
		writeSessionError(w, r, h.logger, "rename_group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ThreadHandler) action(op string, call func(ctx context.Context, threadID int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		if err := call(r.Context(), id); err != nil {
			writeSessionError(w, r, h.logger, op, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *ThreadHandler) memberAction(op string, call func(ctx context.Context, threadID, memberID int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		member, ok := pathID(w, r, "member")
		if !ok {
			return
		}
		if err := call(r.Context(), id, member); err != nil {
			writeSessionError(w, r, h.logger, op, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
