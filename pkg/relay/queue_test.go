package relay

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func testQueue(maxLen int, ttl time.Duration) *Queue {
	var counter uint64
	nextID := func() string {
		counter++
		return FormatMessageID(counter)
	}
	return newQueue("sess-1", maxLen, ttl, nextID, time.Now)
}

func TestQueue_EnqueueAssignsOrderedIDs(t *testing.T) {
	q := testQueue(10, time.Minute)

	var prev string
	for i := 0; i < 5; i++ {
		m, length, evicted := q.Enqueue(Message{Content: fmt.Sprintf("msg-%d", i)})
		if evicted {
			t.Fatalf("unexpected eviction at %d", i)
		}
		if length != i+1 {
			t.Errorf("length: got %d, want %d", length, i+1)
		}
		if m.ID <= prev {
			t.Errorf("ids not strictly increasing: %q then %q", prev, m.ID)
		}
		if m.SessionID != "sess-1" {
			t.Errorf("session id: got %q", m.SessionID)
		}
		if m.ExpiresAt.Sub(m.ReceivedAt) != time.Minute {
			t.Errorf("ttl: got %v", m.ExpiresAt.Sub(m.ReceivedAt))
		}
		prev = m.ID
	}
}

func TestQueue_CapacityEvictsOldest(t *testing.T) {
	q := testQueue(3, time.Minute)

	for i := 0; i < 5; i++ {
		q.Enqueue(Message{Content: fmt.Sprintf("msg-%d", i)})
	}

	if q.Len() != 3 {
		t.Fatalf("length after overflow: got %d, want 3", q.Len())
	}

	batch, hasMore := q.Drain(10, "")
	if hasMore {
		t.Error("expected no more after full drain")
	}
	if len(batch) != 3 {
		t.Fatalf("drained %d, want 3", len(batch))
	}
	// The three most recently enqueued survive.
	for i, m := range batch {
		want := fmt.Sprintf("msg-%d", i+2)
		if m.Content != want {
			t.Errorf("batch[%d]: got %q, want %q", i, m.Content, want)
		}
	}
}

func TestQueue_DrainRemovesOnRead(t *testing.T) {
	q := testQueue(10, time.Minute)
	q.Enqueue(Message{Content: "a"})
	q.Enqueue(Message{Content: "b"})
	q.Enqueue(Message{Content: "c"})

	first, hasMore := q.Drain(2, "")
	if len(first) != 2 || !hasMore {
		t.Fatalf("first drain: got %d messages, hasMore=%v", len(first), hasMore)
	}
	if first[0].Content != "a" || first[1].Content != "b" {
		t.Errorf("first drain order: %q, %q", first[0].Content, first[1].Content)
	}

	second, hasMore := q.Drain(2, "")
	if len(second) != 1 || hasMore {
		t.Fatalf("second drain: got %d messages, hasMore=%v", len(second), hasMore)
	}
	if second[0].Content != "c" {
		t.Errorf("second drain: got %q, want c", second[0].Content)
	}

	third, hasMore := q.Drain(2, "")
	if len(third) != 0 || hasMore {
		t.Errorf("third drain: got %d messages, hasMore=%v", len(third), hasMore)
	}
}

func TestQueue_DrainSinceCursor(t *testing.T) {
	q := testQueue(10, time.Minute)
	q.Enqueue(Message{Content: "a"})
	b, _, _ := q.Enqueue(Message{Content: "b"})
	q.Enqueue(Message{Content: "c"})

	batch, hasMore := q.Drain(10, b.ID)
	if len(batch) != 1 || hasMore {
		t.Fatalf("drain since %s: got %d messages, hasMore=%v", b.ID, len(batch), hasMore)
	}
	if batch[0].Content != "c" {
		t.Errorf("got %q, want c", batch[0].Content)
	}
}

func TestQueue_ExpireDropsOldMessages(t *testing.T) {
	q := testQueue(10, 50*time.Millisecond)
	q.Enqueue(Message{Content: "doomed"})

	dropped := q.Expire(time.Now().Add(time.Second))
	if dropped != 1 {
		t.Fatalf("dropped: got %d, want 1", dropped)
	}

	batch, _ := q.Drain(10, "")
	if len(batch) != 0 {
		t.Errorf("expired message still drained: %v", batch)
	}
}

func TestQueue_ExpireKeepsFreshMessages(t *testing.T) {
	q := testQueue(10, time.Hour)
	q.Enqueue(Message{Content: "fresh"})

	if dropped := q.Expire(time.Now()); dropped != 0 {
		t.Fatalf("dropped fresh message: %d", dropped)
	}
	if q.Len() != 1 {
		t.Errorf("length: got %d, want 1", q.Len())
	}
}

func TestQueue_Clear(t *testing.T) {
	q := testQueue(10, time.Minute)
	q.Enqueue(Message{Content: "a"})
	q.Enqueue(Message{Content: "b"})

	if n := q.Clear(); n != 2 {
		t.Errorf("cleared: got %d, want 2", n)
	}
	if q.Len() != 0 {
		t.Errorf("length after clear: got %d", q.Len())
	}
}

func TestQueue_ConcurrentEnqueueKeepsFIFO(t *testing.T) {
	q := testQueue(1000, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				q.Enqueue(Message{Content: "x"})
			}
		}()
	}
	wg.Wait()

	if q.Len() != 500 {
		t.Fatalf("length: got %d, want 500", q.Len())
	}

	var prev string
	for {
		batch, hasMore := q.Drain(64, "")
		for _, m := range batch {
			if m.ID <= prev {
				t.Fatalf("order violated: %q after %q", m.ID, prev)
			}
			prev = m.ID
		}
		if !hasMore {
			break
		}
	}
}
