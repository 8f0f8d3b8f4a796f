package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/capitalize-ai/chatcore/internal/model"
	"github.com/capitalize-ai/chatcore/internal/session"
)

// fakeSession records calls and returns err for every action.
type fakeSession struct {
	mu      sync.Mutex
	snap    session.Snapshot
	calls   []string
	err     error
	updates chan session.Update
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		snap:    session.Snapshot{Threads: []model.Thread{}, Messages: []model.Message{}},
		updates: make(chan session.Update, 8),
	}
}

func (f *fakeSession) record(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.err
}

func (f *fakeSession) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSession) setSnapshot(s session.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = s
}

func (f *fakeSession) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSession) Subscribe() (<-chan session.Update, func()) {
	return f.updates, func() {}
}

func (f *fakeSession) Refresh(context.Context) error { return f.record("refresh") }

func (f *fakeSession) Select(_ context.Context, id int64) error { return f.record("select %d", id) }

func (f *fakeSession) Deselect(context.Context) error { return f.record("deselect") }

func (f *fakeSession) OpenDirect(_ context.Context, userID int64) (*model.Thread, error) {
	if err := f.record("open_direct %d", userID); err != nil {
		return nil, err
	}
	return &model.Thread{ID: 500}, nil
}

func (f *fakeSession) CreateGroup(_ context.Context, name string, ids []int64) (*model.Thread, error) {
	if err := f.record("create_group %s %v", name, ids); err != nil {
		return nil, err
	}
	return &model.Thread{ID: 501, IsGroup: true, GroupName: name}, nil
}

func (f *fakeSession) AcceptRequest(_ context.Context, id int64) error {
	return f.record("accept %d", id)
}

func (f *fakeSession) RejectRequest(_ context.Context, id int64) error {
	return f.record("reject %d", id)
}

func (f *fakeSession) DeleteThread(_ context.Context, id int64) error {
	return f.record("delete_thread %d", id)
}

func (f *fakeSession) LeaveGroup(_ context.Context, id int64) error {
	return f.record("leave %d", id)
}

func (f *fakeSession) Block(_ context.Context, id int64) error { return f.record("block %d", id) }

func (f *fakeSession) Unblock(_ context.Context, id int64) error { return f.record("unblock %d", id) }

func (f *fakeSession) AddMembers(_ context.Context, id int64, users []int64) error {
	return f.record("add_members %d %v", id, users)
}

func (f *fakeSession) RemoveMember(_ context.Context, id, member int64) error {
	return f.record("remove_member %d %d", id, member)
}

func (f *fakeSession) PromoteAdmin(_ context.Context, id, member int64) error {
	return f.record("promote_admin %d %d", id, member)
}

func (f *fakeSession) DemoteAdmin(_ context.Context, id, member int64) error {
	return f.record("demote_admin %d %d", id, member)
}

func (f *fakeSession) RenameGroup(_ context.Context, id int64, name string) error {
	return f.record("rename %d %s", id, name)
}

func (f *fakeSession) Send(_ context.Context, content string) (*model.Message, error) {
	if err := f.record("send %s", content); err != nil {
		return nil, err
	}
	return &model.Message{ID: 77, Content: content}, nil
}

func (f *fakeSession) Edit(_ context.Context, id int64, content string) (*model.Message, error) {
	if err := f.record("edit %d %s", id, content); err != nil {
		return nil, err
	}
	return &model.Message{ID: id, Content: content}, nil
}

func (f *fakeSession) DeleteMessage(_ context.Context, id int64, everyone bool) error {
	return f.record("delete_message %d %t", id, everyone)
}

func (f *fakeSession) LoadOlder(context.Context) (int64, error) {
	if err := f.record("load_older"); err != nil {
		return 0, err
	}
	return 10, nil
}

func (f *fakeSession) SetTyping(_ context.Context, typing bool) error {
	return f.record("typing %t", typing)
}
