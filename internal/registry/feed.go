package registry

import (
	"sync"

	"github.com/peerloom/liveclass-service/internal/model"
)

// Op is the kind of row change carried on the feed.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is a row-level notification on the meeting_requests table.
type Change struct {
	Op  Op
	Row model.AdmissionRequest
}

type subscription struct {
	groupID string // empty matches every group
	userID  string // empty matches every user
	ch      chan Change
}

// Feed fans row changes out to subscribers. It is the push half of the
// push+poll hybrid: every admission transition also has a polling
// fallback, so a dropped notification delays a transition rather than
// losing it.
type Feed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscription
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]*subscription)}
}

// Subscribe registers a filtered subscriber and returns its channel
// plus a cancel function. Either filter may be empty to match all.
func (f *Feed) Subscribe(groupID, userID string) (<-chan Change, func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	sub := &subscription{groupID: groupID, userID: userID, ch: make(chan Change, 16)}
	f.subs[id] = sub
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if s, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(s.ch)
		}
		f.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish delivers a change to every matching subscriber. Slow
// subscribers drop notifications instead of blocking writers.
func (f *Feed) Publish(c Change) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		if sub.groupID != "" && sub.groupID != c.Row.GroupID {
			continue
		}
		if sub.userID != "" && sub.userID != c.Row.UserID {
			continue
		}
		select {
		case sub.ch <- c:
		default:
		}
	}
}
