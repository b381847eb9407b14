package transcodepool

import "testing"

func TestQueueFIFOOrder(t *testing.T) {
	q := newQueue()
	items := []Item{
		{HashKind: "sha256", Hash: "a", LocalPath: "/a"},
		{HashKind: "sha256", Hash: "b", LocalPath: "/b"},
		{HashKind: "sha256", Hash: "c", LocalPath: "/c"},
	}
	q.Extend(items)

	for _, want := range items {
		got, ok := q.Wait()
		if !ok {
			t.Fatal("expected item, got closed")
		}
		if got.Hash != want.Hash {
			t.Fatalf("order: want %s, got %s", want.Hash, got.Hash)
		}
	}
}

func TestQueuePrioritizeMovesToFront(t *testing.T) {
	q := newQueue()
	q.Extend([]Item{
		{HashKind: "sha256", Hash: "a", LocalPath: "/a"},
		{HashKind: "sha256", Hash: "b", LocalPath: "/b"},
		{HashKind: "sha256", Hash: "c", LocalPath: "/c"},
	})

	q.Prioritize(map[key]bool{{"sha256", "c"}: true})

	first, _ := q.Wait()
	if first.Hash != "c" {
		t.Fatalf("expected prioritized item first, got %s", first.Hash)
	}

	second, _ := q.Wait()
	if second.Hash != "a" {
		t.Fatalf("expected original FIFO order to resume, got %s", second.Hash)
	}
}

func TestQueueRemove(t *testing.T) {
	q := newQueue()
	q.Extend([]Item{
		{HashKind: "sha256", Hash: "a", LocalPath: "/a"},
		{HashKind: "sha256", Hash: "b", LocalPath: "/b"},
	})

	q.Remove(map[key]bool{{"sha256", "a"}: true})

	if q.Len() != 1 {
		t.Fatalf("Len: want 1, got %d", q.Len())
	}

	remaining, _ := q.Wait()
	if remaining.Hash != "b" {
		t.Fatalf("expected item b to remain, got %s", remaining.Hash)
	}
}

func TestQueueCloseUnblocksWait(t *testing.T) {
	q := newQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Wait()
		done <- ok
	}()

	q.Close()

	if ok := <-done; ok {
		t.Fatal("expected Wait to return ok=false after Close")
	}
}

func TestStatusCacheCounters(t *testing.T) {
	c := NewStatusCache()
	c.Insert("sha256", "a", Status{Kind: StatusQueued, EstimatedSize: 100})
	c.Insert("sha256", "b", Status{Kind: StatusQueued, EstimatedSize: 200})
	if c.Queued() != 2 {
		t.Fatalf("Queued: want 2, got %d", c.Queued())
	}

	c.Insert("sha256", "a", Status{Kind: StatusReady, LocalPath: "/x.ogg", FileSize: 5000})
	if c.Queued() != 1 {
		t.Fatalf("Queued after transition: want 1, got %d", c.Queued())
	}
	if c.Ready() != 1 {
		t.Fatalf("Ready: want 1, got %d", c.Ready())
	}

	size := c.Size()
	if !size.Estimated {
		t.Fatal("expected Size to be tagged Estimated with a Queued entry present")
	}
	if size.Bytes != 200+5000 {
		t.Fatalf("Size.Bytes: want %d, got %d", 200+5000, size.Bytes)
	}
}

func TestStatusCacheRemoveQueuedLeavesReadyUntouched(t *testing.T) {
	c := NewStatusCache()
	c.Insert("sha256", "a", Status{Kind: StatusReady, LocalPath: "/x.ogg", FileSize: 123})
	c.RemoveQueued("sha256", "a")

	s, ok := c.Get("sha256", "a")
	if !ok || s.Kind != StatusReady {
		t.Fatal("RemoveQueued should not evict a Ready entry")
	}
}
