package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestSetAndGet(t *testing.T) {
	c := New[string]()
	c.Set("key1", "value1", 1*time.Second)
	val, ok := c.Get("key1")
	if !ok || val != "value1" {
		t.Fatalf("expected value1, got %v, exists=%v", val, ok)
	}
}

func TestExpiration(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	c := NewWithClock[string](clock.now)
	c.Set("key1", "value1", 100*time.Millisecond)
	clock.advance(150 * time.Millisecond)
	_, ok := c.Get("key1")
	if ok {
		t.Fatalf("expected expired key to return false")
	}
}

func TestDelete(t *testing.T) {
	c := New[string]()
	c.Set("key1", "value1", 1*time.Second)
	c.Delete("key1")
	_, ok := c.Get("key1")
	if ok {
		t.Fatalf("expected deleted key to return false")
	}
}

func TestInvalidate(t *testing.T) {
	c := New[string]()
	c.Set("t-1|active", "a", time.Second)
	c.Set("t-1|exists", "e", time.Second)
	c.Set("t-10|active", "other", time.Second)
	c.Invalidate("t-1|")
	_, ok1 := c.Get("t-1|active")
	_, ok2 := c.Get("t-1|exists")
	_, ok3 := c.Get("t-10|active")
	if ok1 || ok2 {
		t.Fatalf("expected t-1 keys to be invalidated")
	}
	if !ok3 {
		t.Fatalf("expected t-10 to survive")
	}
}

func TestPurge(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	c := NewWithClock[int](clock.now)
	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)
	clock.advance(time.Minute)

	if removed := c.Purge(); removed != 1 {
		t.Fatalf("expected 1 purged entry, got %d", removed)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", c.Len())
	}
	if v, ok := c.Get("long"); !ok || v != 2 {
		t.Fatalf("expected long-lived entry to survive purge")
	}
}
