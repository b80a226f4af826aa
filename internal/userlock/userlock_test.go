package userlock

import (
	"sync"
	"testing"
)

func TestKeyedSerializesSameUser(t *testing.T) {
	k := New()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = k.With("u1", func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	if counter != 100 {
		t.Fatalf("expected 100 serialized increments, got %d", counter)
	}
}

func TestKeyedIndependentUsers(t *testing.T) {
	k := New()
	k.Lock("u1")
	done := make(chan struct{})
	go func() {
		k.Lock("u2")
		k.Unlock("u2")
		close(done)
	}()
	<-done // must not block on u1's lock
	k.Unlock("u1")
}

func TestKeyedReleasesIdleEntries(t *testing.T) {
	k := New()
	k.Lock("u1")
	k.Unlock("u1")
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.locks) != 0 {
		t.Fatalf("expected empty lock map, got %d entries", len(k.locks))
	}
}
