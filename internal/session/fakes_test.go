package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/capitalize-ai/chatcore/internal/api"
	"github.com/capitalize-ai/chatcore/internal/model"
	"github.com/capitalize-ai/chatcore/internal/stream"
)

func apiErr(op string, status int) error {
	return &api.Error{Op: op, Status: status, Detail: "injected"}
}

// fakeAPI is an in-memory chat server.
type fakeAPI struct {
	mu       sync.Mutex
	threads  map[int64]model.Thread
	messages map[int64][]model.Message
	fail     map[string]error
	calls    map[string]int
	blocked  []int64
	nextID   int64
	// stale, when set, is served by ListThreads instead of the live state.
	stale []model.Thread
	// direct pins the thread GetOrCreateThread returns for a user.
	direct map[int64]int64
}

func newFakeAPI(threads ...model.Thread) *fakeAPI {
	f := &fakeAPI{
		threads:  make(map[int64]model.Thread),
		messages: make(map[int64][]model.Message),
		fail:     make(map[string]error),
		calls:    make(map[string]int),
		direct:   make(map[int64]int64),
		nextID:   1000,
	}
	for _, t := range threads {
		f.threads[t.ID] = t
	}
	return f
}

func (f *fakeAPI) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) setMessages(threadID int64, msgs []model.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[threadID] = msgs
}

func (f *fakeAPI) setThread(t model.Thread) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads[t.ID] = t
}

func (f *fakeAPI) serveStale(threads []model.Thread) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stale = threads
}

// enter records a call and returns the injected error for it.
func (f *fakeAPI) enter(op string) error {
	f.calls[op]++
	return f.fail[op]
}

func (f *fakeAPI) ListThreads(ctx context.Context) ([]model.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("list_threads"); err != nil {
		return nil, err
	}
	if f.stale != nil {
		return append([]model.Thread(nil), f.stale...), nil
	}
	out := make([]model.Thread, 0, len(f.threads))
	for _, t := range f.threads {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAPI) GetThread(ctx context.Context, threadID int64) (*model.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get_thread"); err != nil {
		return nil, err
	}
	t, ok := f.threads[threadID]
	if !ok {
		return nil, apiErr("get_thread", 404)
	}
	return &t, nil
}

func (f *fakeAPI) GetOrCreateThread(ctx context.Context, otherUserID int64) (*model.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get_or_create_thread"); err != nil {
		return nil, err
	}
	if id, ok := f.direct[otherUserID]; ok {
		t := f.threads[id]
		return &t, nil
	}
	for _, t := range f.threads {
		if !t.IsGroup && t.HasParticipant(otherUserID) {
			return &t, nil
		}
	}
	f.nextID++
	t := model.Thread{
		ID:           f.nextID,
		Participants: []model.Participant{{ID: selfID}, {ID: otherUserID}},
		Initiator:    &model.Participant{ID: selfID},
		Status:       model.ThreadStatusPending,
		CreatedAt:    time.Now(),
	}
	f.threads[t.ID] = t
	return &t, nil
}

func (f *fakeAPI) CreateThread(ctx context.Context, req *model.CreateThreadRequest) (*model.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("create_thread"); err != nil {
		return nil, err
	}
	f.nextID++
	t := model.Thread{
		ID:        f.nextID,
		IsGroup:   req.IsGroup,
		GroupName: req.GroupName,
		Status:    model.ThreadStatusActive,
		Admin:     &model.Participant{ID: selfID},
		CreatedAt: time.Now(),
	}
	t.Participants = append(t.Participants, model.Participant{ID: selfID})
	for _, id := range req.Participants {
		t.Participants = append(t.Participants, model.Participant{ID: id})
	}
	f.threads[t.ID] = t
	return &t, nil
}

func (f *fakeAPI) DeleteThread(ctx context.Context, threadID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("delete_thread"); err != nil {
		return err
	}
	delete(f.threads, threadID)
	return nil
}

func (f *fakeAPI) VerifyThreadDeleted(ctx context.Context, threadID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("verify_thread_deleted"); err != nil {
		return false, err
	}
	_, ok := f.threads[threadID]
	return !ok, nil
}

func (f *fakeAPI) GetMessages(ctx context.Context, threadID int64, limit int, beforeID int64) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get_messages"); err != nil {
		return nil, err
	}
	if _, ok := f.threads[threadID]; !ok {
		return nil, apiErr("get_messages", 404)
	}
	var page []model.Message
	for _, m := range f.messages[threadID] {
		if beforeID == 0 || m.ID < beforeID {
			page = append(page, m)
		}
	}
	if len(page) > limit {
		page = page[len(page)-limit:]
	}
	return append([]model.Message(nil), page...), nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, threadID int64, content string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("send_message"); err != nil {
		return nil, err
	}
	f.nextID++
	m := model.Message{
		ID:        f.nextID,
		ThreadID:  threadID,
		Sender:    model.Participant{ID: selfID},
		Content:   content,
		CreatedAt: time.Now(),
	}
	f.messages[threadID] = append(f.messages[threadID], m)
	return &m, nil
}

func (f *fakeAPI) EditMessage(ctx context.Context, messageID int64, content string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("edit_message"); err != nil {
		return nil, err
	}
	for tid, msgs := range f.messages {
		for i := range msgs {
			if msgs[i].ID == messageID {
				msgs[i].Content = content
				msgs[i].IsEdited = true
				m := msgs[i]
				m.ThreadID = tid
				return &m, nil
			}
		}
	}
	return nil, apiErr("edit_message", 404)
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, messageID int64, forEveryone bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter("delete_message")
}

func (f *fakeAPI) setStatus(op string, threadID int64, status model.ThreadStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(op); err != nil {
		return err
	}
	t, ok := f.threads[threadID]
	if !ok {
		return apiErr(op, 404)
	}
	t.Status = status
	f.threads[threadID] = t
	return nil
}

func (f *fakeAPI) AcceptRequest(ctx context.Context, threadID int64) error {
	return f.setStatus("accept_request", threadID, model.ThreadStatusActive)
}

func (f *fakeAPI) RejectRequest(ctx context.Context, threadID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("reject_request"); err != nil {
		return err
	}
	delete(f.threads, threadID)
	return nil
}

func (f *fakeAPI) BlockUser(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("block_user"); err != nil {
		return err
	}
	f.blocked = append(f.blocked, userID)
	for id, t := range f.threads {
		if other, ok := t.OtherParticipant(selfID); ok && other.UserID() == userID {
			t.Status = model.ThreadStatusBlocked
			f.threads[id] = t
		}
	}
	return nil
}

func (f *fakeAPI) UnblockUser(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("unblock_user"); err != nil {
		return err
	}
	for id, t := range f.threads {
		if other, ok := t.OtherParticipant(selfID); ok && other.UserID() == userID {
			t.Status = model.ThreadStatusActive
			f.threads[id] = t
		}
	}
	return nil
}

func (f *fakeAPI) LeaveGroup(ctx context.Context, threadID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("leave_group"); err != nil {
		return err
	}
	delete(f.threads, threadID)
	return nil
}

func (f *fakeAPI) AddMembers(ctx context.Context, threadID int64, userIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("add_members"); err != nil {
		return err
	}
	t := f.threads[threadID]
	for _, id := range userIDs {
		t.Participants = append(t.Participants, model.Participant{ID: id})
	}
	f.threads[threadID] = t
	return nil
}

func (f *fakeAPI) RemoveMember(ctx context.Context, threadID, memberID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter("remove_member")
}

func (f *fakeAPI) PromoteAdmin(ctx context.Context, threadID, memberID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter("promote_admin")
}

func (f *fakeAPI) DemoteAdmin(ctx context.Context, threadID, memberID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter("demote_admin")
}

func (f *fakeAPI) UpdateGroupName(ctx context.Context, threadID int64, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("update_group_name"); err != nil {
		return err
	}
	t := f.threads[threadID]
	t.GroupName = name
	f.threads[threadID] = t
	return nil
}

var _ api.Client = (*fakeAPI)(nil)

// fakeStream is a scripted stream subscription.
type fakeStream struct {
	threadID int64
	events   chan model.StreamEvent

	mu     sync.Mutex
	closed bool
	err    error
	typing []bool
}

func (s *fakeStream) ThreadID() int64                  { return s.threadID }
func (s *fakeStream) Events() <-chan model.StreamEvent { return s.events }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Close() error {
	s.end(nil)
	return nil
}

func (s *fakeStream) SendTyping(_ context.Context, typing bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = append(s.typing, typing)
	return nil
}

func (s *fakeStream) sentTyping() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.typing...)
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// push delivers an event, reporting false if the stream is already closed.
func (s *fakeStream) push(ev model.StreamEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	ev.ThreadID = s.threadID
	s.events <- ev
	return true
}

func (s *fakeStream) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.events)
}

// fakeOpener hands out fake streams and remembers them per thread.
type fakeOpener struct {
	mu      sync.Mutex
	streams map[int64][]*fakeStream
	fail    error
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{streams: make(map[int64][]*fakeStream)}
}

func (o *fakeOpener) Open(ctx context.Context, threadID int64) (stream.Subscription, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return nil, o.fail
	}
	s := &fakeStream{threadID: threadID, events: make(chan model.StreamEvent, 16)}
	o.streams[threadID] = append(o.streams[threadID], s)
	return s, nil
}

func (o *fakeOpener) opened(threadID int64) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.streams[threadID])
}

func (o *fakeOpener) latest(threadID int64) (*fakeStream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	list := o.streams[threadID]
	if len(list) == 0 {
		return nil, fmt.Errorf("no stream for thread %d", threadID)
	}
	return list[len(list)-1], nil
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
