package querycache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// gatedFetcher, her çağrıda gate'ten bir değer bekler.
type gatedFetcher struct {
	calls atomic.Int32
	gate  chan any
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{gate: make(chan any, 8)}
}

func (g *gatedFetcher) fetch(ctx context.Context, _ string) (any, error) {
	g.calls.Add(1)
	select {
	case v := <-g.gate:
		if err, ok := v.(error); ok {
			return nil, err
		}
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestGetTriggersSingleBackgroundFetch(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	f := newGatedFetcher()
	s.Register("unread", f.fetch)

	if _, ok := s.Get("unread"); ok {
		t.Fatal("empty store returned a value")
	}
	// Fetch uçuştayken tekrar okumak ikinci fetch başlatmaz.
	s.Get("unread")
	s.Get("unread")

	f.gate <- 3
	s.Wait()

	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
	v, ok := Load[int](s, "unread")
	if !ok || v != 3 {
		t.Errorf("value = %v %v, want 3", v, ok)
	}
	if s.IsStale("unread") {
		t.Error("fresh fetch result should not be stale")
	}

	// Taze kayıt fetch tetiklemez.
	s.Get("unread")
	s.Wait()
	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetch calls after fresh read = %d, want 1", n)
	}
}

func TestMarkStaleServesOldDataThenRefetches(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	f := newGatedFetcher()
	s.Register("messages:", f.fetch)
	s.Set("messages:channel:c1", "v1")
	s.Set("messages:dm:d1", "v1")
	s.Set("presence", "online")

	if n := s.MarkStale("messages:"); n != 2 {
		t.Errorf("marked = %d, want 2", n)
	}
	if s.IsStale("presence") {
		t.Error("unrelated key marked stale")
	}

	// Bayat veri hemen döner; fetch arka planda.
	v, ok := s.Get("messages:channel:c1")
	if !ok || v != "v1" {
		t.Errorf("stale get = %v %v, want v1", v, ok)
	}

	f.gate <- "v2"
	s.Wait()

	if v, _ := s.Peek("messages:channel:c1"); v != "v2" {
		t.Errorf("after refetch = %v, want v2", v)
	}
	if !s.IsStale("messages:dm:d1") {
		t.Error("unread key should stay stale until read")
	}
}

func TestMarkStaleDuringFetchKeepsEntryStale(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	f := newGatedFetcher()
	s.Register("unread", f.fetch)
	s.Set("unread", 1)
	s.MarkStale("unread")
	s.Get("unread") // fetch başlar

	s.MarkStale("unread") // fetch sürerken yeniden bağlanma
	f.gate <- 2
	s.Wait()

	if v, _ := s.Peek("unread"); v != 2 {
		t.Errorf("value = %v, want 2", v)
	}
	if !s.IsStale("unread") {
		t.Error("entry marked stale mid-fetch should remain stale")
	}
}

func TestPushAndFetchApplyInArrivalOrder(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	f := newGatedFetcher()
	s.Register("unread", f.fetch)
	s.Set("unread", 10)
	s.MarkStale("unread")
	s.Get("unread")

	// Push, fetch'ten önce gelir; fetch sonucu sonra geldiği için kazanır.
	if !Update(s, "unread", func(n int) int { return n + 1 }) {
		t.Fatal("update of cached value failed")
	}
	f.gate <- 5
	s.Wait()
	if v, _ := s.Peek("unread"); v != 5 {
		t.Errorf("after fetch = %v, want 5", v)
	}

	// Fetch'ten sonra gelen push onu ezer.
	Update(s, "unread", func(n int) int { return n + 1 })
	if v, _ := s.Peek("unread"); v != 6 {
		t.Errorf("after push = %v, want 6", v)
	}
}

func TestUpdateRules(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	if Update(s, "missing", func(n int) int { return n }) {
		t.Error("update of missing key should report false")
	}
	s.Set("k", "text")
	if Update(s, "k", func(n int) int { return n + 1 }) {
		t.Error("update with wrong type should report false")
	}

	s.Set("messages:a", 1)
	s.Set("messages:b", 2)
	s.Set("other", 3)
	n := UpdatePrefix(s, "messages:", func(_ string, v int) int { return v * 10 })
	if n != 2 {
		t.Errorf("updated = %d, want 2", n)
	}
	if v, _ := s.Peek("messages:b"); v != 20 {
		t.Errorf("messages:b = %v", v)
	}
	if v, _ := s.Peek("other"); v != 3 {
		t.Errorf("other = %v", v)
	}
}

func TestFailedFetchStaysStale(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	f := newGatedFetcher()
	s.Register("presence", f.fetch)
	s.Set("presence", "old")
	s.MarkStale("presence")

	s.Get("presence")
	f.gate <- errors.New("boom")
	s.Wait()

	if v, _ := s.Peek("presence"); v != "old" {
		t.Errorf("value = %v, want old", v)
	}
	if !s.IsStale("presence") {
		t.Error("failed refetch should leave the entry stale")
	}

	s.Get("presence")
	f.gate <- "new"
	s.Wait()
	if v, _ := s.Peek("presence"); v != "new" {
		t.Errorf("retry value = %v, want new", v)
	}
}

func TestStaleTimeAndLongestPrefix(t *testing.T) {
	s := New(Options{StaleTime: time.Minute})
	defer s.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	var generic, specific atomic.Int32
	s.Register("messages:", func(context.Context, string) (any, error) { generic.Add(1); return "g", nil })
	s.Register("messages:dm:", func(context.Context, string) (any, error) { specific.Add(1); return "s", nil })

	s.Set("messages:dm:d1", "v")
	s.Get("messages:dm:d1")
	s.Wait()
	if specific.Load() != 0 {
		t.Fatal("fresh entry refetched")
	}

	now = now.Add(2 * time.Minute)
	s.Get("messages:dm:d1")
	s.Wait()
	if specific.Load() != 1 || generic.Load() != 0 {
		t.Errorf("fetchers called generic=%d specific=%d, want 0/1", generic.Load(), specific.Load())
	}
}

func TestEvictIdle(t *testing.T) {
	s := New(Options{GCTime: time.Minute})
	defer s.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Set("old", 1)
	now = now.Add(2 * time.Minute)
	s.Set("new", 2)
	s.evictIdle()

	if _, ok := s.Peek("old"); ok {
		t.Error("idle entry not evicted")
	}
	if _, ok := s.Peek("new"); !ok {
		t.Error("recent entry evicted")
	}
}

func TestCloseCancelsInflightFetch(t *testing.T) {
	s := New(Options{})
	f := newGatedFetcher()
	s.Register("unread", f.fetch)
	s.Get("unread")

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the in-flight fetch")
	}
}
