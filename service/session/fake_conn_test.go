package session

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

var (
	errFakeClosed = errors.New("fake: closed")
	errFakeBroken = errors.New("fake: broken pipe")
)

var fakeSeq atomic.Int64

type fakeConn struct {
	id    string
	uid   int64
	topic Topic

	mu     sync.Mutex
	state  State
	broken bool
	delay  time.Duration
	writes []string
	closes int
}

func newFakeConn(uid int64) *fakeConn {
	return &fakeConn{
		id:    "c" + strconv.FormatInt(fakeSeq.Add(1), 10),
		uid:   uid,
		topic: TopicChat,
		state: StateOpen,
	}
}

func (f *fakeConn) ID() string    { return f.id }
func (f *fakeConn) UserID() int64 { return f.uid }
func (f *fakeConn) Topic() Topic  { return f.topic }

func (f *fakeConn) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConn) Write(p []byte) error {
	f.mu.Lock()
	delay := f.delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateOpen {
		return errFakeClosed
	}
	if f.broken {
		return errFakeBroken
	}
	f.writes = append(f.writes, string(p))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateClosed
	f.closes++
	return nil
}

func (f *fakeConn) breakWrites() {
	f.mu.Lock()
	f.broken = true
	f.mu.Unlock()
}

func (f *fakeConn) slowWrites(d time.Duration) {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
}

func (f *fakeConn) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeConn) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fakeConn) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}
