package agent

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedLockSerializesSameKey(t *testing.T) {
	locks := NewKeyedLock()

	var mu sync.Mutex
	var events []int

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			unlock := locks.Lock("212600000001")
			defer unlock()

			// Record entry and exit; interleaving would produce two entries
			// without the matching exit between them.
			mu.Lock()
			events = append(events, n)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			events = append(events, -n-1)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if len(events) != 20 {
		t.Fatalf("expected 20 events, got %d", len(events))
	}
	for i := 0; i < len(events); i += 2 {
		enter, exit := events[i], events[i+1]
		if exit != -enter-1 {
			t.Fatalf("critical sections interleaved: enter %d followed by %d", enter, exit)
		}
	}
}

func TestKeyedLockIndependentKeys(t *testing.T) {
	locks := NewKeyedLock()

	unlockA := locks.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on key b blocked by holder of key a")
	}
	unlockA()
}

func TestKeyedLockReleasesEntries(t *testing.T) {
	locks := NewKeyedLock()

	unlock := locks.Lock("ephemeral")
	unlock()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	if len(locks.entries) != 0 {
		t.Fatalf("expected empty entry map after release, got %d entries", len(locks.entries))
	}
}
