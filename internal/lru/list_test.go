package lru

import (
	"sync"
	"testing"
)

func TestListPushAndRemoveOldest(t *testing.T) {
	l := NewList[string]()

	if l.Len() != 0 {
		t.Errorf("new list Len = %d, want 0", l.Len())
	}
	if _, ok := l.RemoveOldest(); ok {
		t.Error("RemoveOldest on empty list should return false")
	}

	l.PushFront("a")
	l.PushFront("b")
	l.PushFront("c")

	if l.Len() != 3 {
		t.Errorf("Len = %d, want 3", l.Len())
	}

	// Oldest is the first pushed.
	key, ok := l.RemoveOldest()
	if !ok || key != "a" {
		t.Errorf("RemoveOldest = %q, %v; want a, true", key, ok)
	}
	key, ok = l.RemoveOldest()
	if !ok || key != "b" {
		t.Errorf("RemoveOldest = %q, %v; want b, true", key, ok)
	}
	if l.Len() != 1 {
		t.Errorf("Len after removals = %d, want 1", l.Len())
	}
}

func TestListMoveToFront(t *testing.T) {
	l := NewList[int]()

	n1 := l.PushFront(1)
	l.PushFront(2)
	l.PushFront(3)

	// 1 is at the tail. After moving it to the front, 2 becomes oldest.
	l.MoveToFront(n1)

	if key, _ := l.Oldest(); key != 2 {
		t.Errorf("Oldest after MoveToFront = %d, want 2", key)
	}
	if l.Len() != 3 {
		t.Errorf("Len = %d, want 3", l.Len())
	}

	// Moving head is a no-op.
	l.MoveToFront(n1)
	if key, _ := l.Oldest(); key != 2 {
		t.Errorf("Oldest after head move = %d, want 2", key)
	}
}

func TestListRemove(t *testing.T) {
	l := NewList[int]()

	l.PushFront(1)
	n2 := l.PushFront(2)
	l.PushFront(3)

	l.Remove(n2)

	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2", l.Len())
	}
	key, _ := l.RemoveOldest()
	if key != 1 {
		t.Errorf("oldest = %d, want 1", key)
	}
	key, _ = l.RemoveOldest()
	if key != 3 {
		t.Errorf("next = %d, want 3", key)
	}

	// Removing nil must not panic.
	l.Remove(nil)
}

func TestListRemoveOldestFunc(t *testing.T) {
	l := NewList[string]()

	l.PushFront("a")
	l.PushFront("b")
	l.PushFront("c")

	// Skip the true oldest, evict the next one.
	key, ok := l.RemoveOldestFunc(func(k string) bool { return k != "a" })
	if !ok || key != "b" {
		t.Errorf("RemoveOldestFunc = %q, %v; want b, true", key, ok)
	}
	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2", l.Len())
	}

	// Nothing evictable.
	if _, ok := l.RemoveOldestFunc(func(string) bool { return false }); ok {
		t.Error("expected no evictable node")
	}
	if l.Len() != 2 {
		t.Errorf("Len changed on failed eviction: %d", l.Len())
	}
}

func TestListClear(t *testing.T) {
	l := NewList[int]()
	for i := 0; i < 10; i++ {
		l.PushFront(i)
	}
	l.Clear()
	if l.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", l.Len())
	}
	if _, ok := l.Oldest(); ok {
		t.Error("Oldest after Clear should return false")
	}
}

func TestMemoGetOrCreate(t *testing.T) {
	m := NewMemo[string, int](0)

	calls := 0
	v := m.GetOrCreate("a", func() int { calls++; return 42 })
	if v != 42 {
		t.Errorf("GetOrCreate = %d, want 42", v)
	}

	// Second call hits the cache.
	v = m.GetOrCreate("a", func() int { calls++; return 99 })
	if v != 42 {
		t.Errorf("cached GetOrCreate = %d, want 42", v)
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestMemoSoftLimit(t *testing.T) {
	m := NewMemo[int, int](8)

	for i := 0; i < 20; i++ {
		m.GetOrCreate(i, func() int { return i })
	}

	// Eviction keeps the cache near the soft limit.
	if m.Len() > 8 {
		t.Errorf("Len = %d, want <= 8", m.Len())
	}

	// The most recent entry survives and its value was memoized, not
	// rebuilt.
	calls := 0
	if v := m.GetOrCreate(19, func() int { calls++; return -1 }); v != 19 {
		t.Errorf("GetOrCreate(19) = %d, want 19", v)
	}
	if calls != 0 {
		t.Error("most recent entry was evicted")
	}

	m.Clear()
	if m.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", m.Len())
	}
}

func TestMemoConcurrent(t *testing.T) {
	m := NewMemo[int, int](64)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := (g*7 + i) % 100
				v := m.GetOrCreate(k, func() int { return k * 2 })
				if v != k*2 {
					t.Errorf("GetOrCreate(%d) = %d, want %d", k, v, k*2)
				}
			}
		}(g)
	}
	wg.Wait()
}
