package service

import (
	"context"
	"sync"
	"testing"

	"PPresence/module/friend/model"
	"PPresence/module/friend/store"
	"PPresence/tools/errs"

	"github.com/pkg/errors"
)

type notice struct {
	userID int64
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notice
}

func (f *fakeNotifier) SendText(uid int64, text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notice{uid, text})
	return 1
}

func TestNoticeFormat(t *testing.T) {
	if got := Notice(NoticeAccepted, 12, 7); got != "friend_request:accepted:12:7" {
		t.Fatalf("notice = %q", got)
	}
}

func TestRequestAcceptFlow(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewFriendService(store.NewMemoryStore(), n)
	ctx := context.Background()

	r, err := svc.SendRequest(ctx, 1, 2, " hi ")
	if err != nil {
		t.Fatal(err)
	}
	if r.Note != "hi" || r.Status != model.StatusPending {
		t.Fatalf("request = %+v", r)
	}
	if _, err := svc.SendRequest(ctx, 1, 2, ""); !errors.Is(err, errs.ErrStateConflict) {
		t.Fatalf("duplicate err = %v", err)
	}
	if _, err := svc.Accept(ctx, 1, r.ID); !errors.Is(err, errs.ErrNoPermission) {
		t.Fatalf("requester accepting err = %v", err)
	}
	got, err := svc.Accept(ctx, 2, r.ID)
	if err != nil || got.Status != model.StatusAccepted || got.HandledAt == nil {
		t.Fatalf("accept: %+v %v", got, err)
	}
	if _, err := svc.Reject(ctx, 2, r.ID); !errors.Is(err, errs.ErrStateConflict) {
		t.Fatalf("reject after accept err = %v", err)
	}

	want := []notice{
		{2, Notice(NoticeReceived, r.ID, 1)},
		{1, Notice(NoticeAccepted, r.ID, 2)},
	}
	if len(n.sent) != len(want) {
		t.Fatalf("sent = %+v", n.sent)
	}
	for i := range want {
		if n.sent[i] != want[i] {
			t.Fatalf("sent[%d] = %+v, want %+v", i, n.sent[i], want[i])
		}
	}
}

func TestRejectNotifiesRequester(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewFriendService(store.NewMemoryStore(), n)
	ctx := context.Background()
	r, _ := svc.SendRequest(ctx, 3, 4, "")
	if _, err := svc.Reject(ctx, 4, r.ID); err != nil {
		t.Fatal(err)
	}
	last := n.sent[len(n.sent)-1]
	if last.userID != 3 || last.text != Notice(NoticeRejected, r.ID, 4) {
		t.Fatalf("last notice = %+v", last)
	}
	// 拒绝后可以重新申请
	if _, err := svc.SendRequest(ctx, 3, 4, ""); err != nil {
		t.Fatalf("re-request: %v", err)
	}
}

func TestSendRequestValidation(t *testing.T) {
	svc := NewFriendService(store.NewMemoryStore(), &fakeNotifier{})
	ctx := context.Background()
	if _, err := svc.SendRequest(ctx, 1, 1, ""); !errors.Is(err, errs.ErrArgs) {
		t.Fatalf("self err = %v", err)
	}
	if _, err := svc.SendRequest(ctx, 0, 2, ""); !errors.Is(err, errs.ErrNoPermission) {
		t.Fatalf("anonymous err = %v", err)
	}
	if _, err := svc.Accept(ctx, 2, 404); !errors.Is(err, errs.ErrRecordNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}
