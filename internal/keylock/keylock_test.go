package keylock

import (
	"sync"
	"testing"
)

func TestLockSerializesPerKey(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("submission:1:1")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("expected 50 increments, got %d", counter)
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	m := New()

	unlockA := m.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := m.Lock("b")
		unlock()
		close(done)
	}()
	<-done
	unlockA()
}

func TestEntriesReleased(t *testing.T) {
	m := New()

	unlock := m.Lock("a")
	unlock()
	unlock2 := m.Lock("b")
	unlock2()

	m.mu.Lock()
	n := len(m.locks)
	m.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected map emptied after unlock, got %d entries", n)
	}
}

func TestSubmissionKey(t *testing.T) {
	if got := SubmissionKey(3, 14); got != "submission:3:14" {
		t.Errorf("unexpected key %q", got)
	}
}
