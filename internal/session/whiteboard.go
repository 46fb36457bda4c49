package session

import (
	"context"
	"sync"
	"time"

	"github.com/peerloom/liveclass-service/internal/control"
)

// Batcher coalesces whiteboard strokes and flushes them as one batch
// on a fixed interval, so a burst of tiny draw events becomes a single
// broadcast per tick.
type Batcher struct {
	mu       sync.Mutex
	pending  []control.WhiteboardStroke
	senderID string
	interval time.Duration
	flush    func(senderID string, strokes []control.WhiteboardStroke)
}

// NewBatcher creates a batcher. flush is invoked from the run loop
// with the accumulated strokes of the last interval.
func NewBatcher(interval time.Duration, flush func(senderID string, strokes []control.WhiteboardStroke)) *Batcher {
	return &Batcher{interval: interval, flush: flush}
}

// Add queues strokes for the next flush. The last sender id wins for
// the merged batch; receivers key rendering on stroke content, not
// sender.
func (b *Batcher) Add(senderID string, strokes []control.WhiteboardStroke) {
	if len(strokes) == 0 {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, strokes...)
	b.senderID = senderID
	b.mu.Unlock()
}

// Run flushes pending strokes every interval until ctx is cancelled.
// A final flush drains whatever is left on shutdown.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.drain()
		case <-ctx.Done():
			b.drain()
			return
		}
	}
}

func (b *Batcher) drain() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	strokes := b.pending
	sender := b.senderID
	b.pending = nil
	b.mu.Unlock()
	b.flush(sender, strokes)
}
