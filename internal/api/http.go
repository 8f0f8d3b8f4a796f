package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/capitalize-ai/chatcore/internal/model"
	"github.com/capitalize-ai/chatcore/pkg/metrics"
)

// HTTPConfig holds remote API settings.
type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// HTTPClient talks to the chat REST API.
type HTTPClient struct {
	base  *url.URL
	token string
	http  *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the API rooted at cfg.BaseURL.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		base:  base,
		token: cfg.Token,
		http:  &http.Client{Timeout: timeout},
	}, nil
}

type participantBody struct {
	ParticipantID int64 `json:"participant_id"`
}

// ListThreads handles GET chat/threads/
func (c *HTTPClient) ListThreads(ctx context.Context) ([]model.Thread, error) {
	var threads []model.Thread
	if err := c.do(ctx, "list_threads", http.MethodGet, "chat/threads/", nil, &threads); err != nil {
		return nil, err
	}
	return threads, nil
}

// GetThread handles GET chat/threads/:id/
func (c *HTTPClient) GetThread(ctx context.Context, threadID int64) (*model.Thread, error) {
	var thread model.Thread
	if err := c.do(ctx, "get_thread", http.MethodGet, threadPath(threadID, ""), nil, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// GetOrCreateThread posts a single participant; the server returns the
// existing direct thread when there is one.
func (c *HTTPClient) GetOrCreateThread(ctx context.Context, otherUserID int64) (*model.Thread, error) {
	return c.createThread(ctx, "get_or_create_thread", &model.CreateThreadRequest{
		Participants: []int64{otherUserID},
	})
}

// CreateThread handles POST chat/threads/
func (c *HTTPClient) CreateThread(ctx context.Context, req *model.CreateThreadRequest) (*model.Thread, error) {
	return c.createThread(ctx, "create_thread", req)
}

func (c *HTTPClient) createThread(ctx context.Context, op string, req *model.CreateThreadRequest) (*model.Thread, error) {
	var thread model.Thread
	if err := c.do(ctx, op, http.MethodPost, "chat/threads/", req, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// DeleteThread handles DELETE chat/threads/:id/delete/
func (c *HTTPClient) DeleteThread(ctx context.Context, threadID int64) error {
	return c.do(ctx, "delete_thread", http.MethodDelete, threadPath(threadID, "delete/"), nil, nil)
}

// VerifyThreadDeleted reports true when the thread can no longer be read.
func (c *HTTPClient) VerifyThreadDeleted(ctx context.Context, threadID int64) (bool, error) {
	_, err := c.GetThread(ctx, threadID)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, ErrNotFound):
		return true, nil
	default:
		return false, err
	}
}

// GetMessages handles GET chat/threads/:id/?limit=&before_id=
func (c *HTTPClient) GetMessages(ctx context.Context, threadID int64, limit int, beforeID int64) ([]model.Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if beforeID > 0 {
		q.Set("before_id", strconv.FormatInt(beforeID, 10))
	}
	path := threadPath(threadID, "")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp model.ListMessagesResponse
	if err := c.do(ctx, "get_messages", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Messages {
		if resp.Messages[i].ThreadID == 0 {
			resp.Messages[i].ThreadID = threadID
		}
	}
	return resp.Messages, nil
}

// SendMessage handles POST chat/messages/
func (c *HTTPClient) SendMessage(ctx context.Context, threadID int64, content string) (*model.Message, error) {
	var msg model.Message
	body := &model.SendMessageRequest{ThreadID: threadID, Content: content}
	if err := c.do(ctx, "send_message", http.MethodPost, "chat/messages/", body, &msg); err != nil {
		return nil, err
	}
	if msg.ThreadID == 0 {
		msg.ThreadID = threadID
	}
	return &msg, nil
}

// EditMessage handles PATCH chat/messages/:id/update/
func (c *HTTPClient) EditMessage(ctx context.Context, messageID int64, content string) (*model.Message, error) {
	var msg model.Message
	body := map[string]string{"content": content}
	if err := c.do(ctx, "edit_message", http.MethodPatch, messagePath(messageID, "update/"), body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage handles POST chat/messages/:id/delete/
func (c *HTTPClient) DeleteMessage(ctx context.Context, messageID int64, forEveryone bool) error {
	scope := "me"
	if forEveryone {
		scope = "everyone"
	}
	body := map[string]string{"type": scope}
	return c.do(ctx, "delete_message", http.MethodPost, messagePath(messageID, "delete/"), body, nil)
}

// AcceptRequest handles POST chat/threads/:id/accept/
func (c *HTTPClient) AcceptRequest(ctx context.Context, threadID int64) error {
	return c.do(ctx, "accept_request", http.MethodPost, threadPath(threadID, "accept/"), nil, nil)
}

// RejectRequest handles POST chat/threads/:id/reject/
func (c *HTTPClient) RejectRequest(ctx context.Context, threadID int64) error {
	return c.do(ctx, "reject_request", http.MethodPost, threadPath(threadID, "reject/"), nil, nil)
}

// BlockUser handles POST chat/block/:user/
func (c *HTTPClient) BlockUser(ctx context.Context, userID int64) error {
	return c.do(ctx, "block_user", http.MethodPost, fmt.Sprintf("chat/block/%d/", userID), nil, nil)
}

// UnblockUser handles POST chat/unblock/:user/
func (c *HTTPClient) UnblockUser(ctx context.Context, userID int64) error {
	return c.do(ctx, "unblock_user", http.MethodPost, fmt.Sprintf("chat/unblock/%d/", userID), nil, nil)
}

// LeaveGroup handles POST chat/threads/:id/leave/
func (c *HTTPClient) LeaveGroup(ctx context.Context, threadID int64) error {
	return c.do(ctx, "leave_group", http.MethodPost, threadPath(threadID, "leave/"), nil, nil)
}

// AddMembers handles POST chat/threads/:id/add-members/
func (c *HTTPClient) AddMembers(ctx context.Context, threadID int64, userIDs []int64) error {
	body := map[string][]int64{"participants": userIDs}
	return c.do(ctx, "add_members", http.MethodPost, threadPath(threadID, "add-members/"), body, nil)
}

// RemoveMember handles POST chat/threads/:id/remove-member/
func (c *HTTPClient) RemoveMember(ctx context.Context, threadID, memberID int64) error {
	return c.do(ctx, "remove_member", http.MethodPost, threadPath(threadID, "remove-member/"), participantBody{memberID}, nil)
}

// PromoteAdmin handles POST chat/threads/:id/promote-admin/
func (c *HTTPClient) PromoteAdmin(ctx context.Context, threadID, memberID int64) error {
	return c.do(ctx, "promote_admin", http.MethodPost, threadPath(threadID, "promote-admin/"), participantBody{memberID}, nil)
}

// DemoteAdmin handles POST chat/threads/:id/demote-admin/
func (c *HTTPClient) DemoteAdmin(ctx context.Context, threadID, memberID int64) error {
	return c.do(ctx, "demote_admin", http.MethodPost, threadPath(threadID, "demote-admin/"), participantBody{memberID}, nil)
}

// UpdateGroupName handles PATCH chat/threads/:id/
func (c *HTTPClient) UpdateGroupName(ctx context.Context, threadID int64, name string) error {
	body := map[string]string{"group_name": name}
	return c.do(ctx, "update_group_name", http.MethodPatch, threadPath(threadID, ""), body, nil)
}

func threadPath(threadID int64, suffix string) string {
	return fmt.Sprintf("chat/threads/%d/%s", threadID, suffix)
}

func messagePath(messageID int64, suffix string) string {
	return fmt.Sprintf("chat/messages/%d/%s", messageID, suffix)
}

// errorBody is the error payload returned by the API.
type errorBody struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, in, out interface{}) (err error) {
	start := time.Now()
	status := 0
	defer func() {
		metrics.RecordAPICall(op, metrics.StatusLabel(status, err), time.Since(start).Seconds())
	}()

	ref, err := url.Parse(path)
	if err != nil {
		return &Error{Op: op, Err: err}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.ResolveReference(ref).String(), body)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode >= 300 {
		var eb errorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		detail := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &eb) == nil {
			if eb.Detail != "" {
				detail = eb.Detail
			} else if eb.Error != "" {
				detail = eb.Error
			}
		}
		return &Error{Op: op, Status: resp.StatusCode, Detail: detail}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
