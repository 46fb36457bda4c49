package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/peerloom/liveclass-service/internal/control"
)

func TestBatcherCoalescesPerTick(t *testing.T) {
	var mu sync.Mutex
	var flushes [][]control.WhiteboardStroke

	b := NewBatcher(10*time.Millisecond, func(sender string, strokes []control.WhiteboardStroke) {
		mu.Lock()
		flushes = append(flushes, strokes)
		mu.Unlock()
	})
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	stroke := control.WhiteboardStroke{ToX: 1, Tool: "pen"}
	b.Add("u1", []control.WhiteboardStroke{stroke})
	b.Add("u1", []control.WhiteboardStroke{stroke, stroke})

	time.Sleep(30 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(flushes) == 0 {
		t.Fatal("no flush happened")
	}
	total := 0
	for _, f := range flushes {
		total += len(f)
	}
	if total != 3 {
		t.Fatalf("flushed strokes = %d, want 3", total)
	}
	// A burst inside one interval must not produce one flush per Add.
	if len(flushes) > 2 {
		t.Fatalf("flushes = %d, burst was not coalesced", len(flushes))
	}
}

func TestBatcherDrainsOnShutdown(t *testing.T) {
	var mu sync.Mutex
	var got []control.WhiteboardStroke

	b := NewBatcher(time.Hour, func(sender string, strokes []control.WhiteboardStroke) {
		mu.Lock()
		got = append(got, strokes...)
		mu.Unlock()
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	b.Add("u1", []control.WhiteboardStroke{{Tool: "pen"}})
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("drained strokes = %d, want 1", len(got))
	}
}

func TestBatcherIgnoresEmptyAdd(t *testing.T) {
	b := NewBatcher(time.Hour, func(string, []control.WhiteboardStroke) {
		t.Fatal("flush called for empty batch")
	})
	b.Add("u1", nil)
	b.drain()
}
