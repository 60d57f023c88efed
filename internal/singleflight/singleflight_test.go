package singleflight

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	g := New[string]()
	if g == nil {
		t.Fatal("New() returned nil")
	}
	if g.m == nil {
		t.Error("New() did not initialize map")
	}
}

func TestDo(t *testing.T) {
	g := New[string]()

	val, err, shared := g.Do("key1", func() (string, error) {
		return "hello", nil
	})

	if err != nil {
		t.Errorf("Do() returned error: %v", err)
	}
	if val != "hello" {
		t.Errorf("Do() returned %v, want hello", val)
	}
	if shared {
		t.Error("Do() reported a shared result for a single caller")
	}
}

func TestDoError(t *testing.T) {
	g := New[*int]()
	expectedErr := errors.New("test error")

	val, err, _ := g.Do("key1", func() (*int, error) {
		return nil, expectedErr
	})

	if err != expectedErr {
		t.Errorf("Do() returned error %v, want %v", err, expectedErr)
	}
	if val != nil {
		t.Errorf("Do() returned %v, want nil", val)
	}
}

func TestDoDuplicateCalls(t *testing.T) {
	g := New[string]()

	var callCount int32
	release := make(chan struct{})
	started := make(chan struct{})

	fn := func() (string, error) {
		if atomic.AddInt32(&callCount, 1) == 1 {
			close(started)
		}
		<-release
		return "result", nil
	}

	const numCalls = 10
	var wg sync.WaitGroup
	results := make([]string, numCalls)
	errs := make([]error, numCalls)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0], _ = g.Do("same-key", fn)
	}()
	<-started

	for i := 1; i < numCalls; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			results[index], errs[index], _ = g.Do("same-key", fn)
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		g.mu.Lock()
		dups := g.m["same-key"].dups
		g.mu.Unlock()
		if dups == numCalls-1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d duplicates attached", dups)
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&callCount); got != 1 {
		t.Errorf("Function called %d times, want 1", got)
	}

	for i, result := range results {
		if errs[i] != nil {
			t.Errorf("Call %d returned error: %v", i, errs[i])
		}
		if result != "result" {
			t.Errorf("Call %d returned %v, want result", i, result)
		}
	}
}

func TestDoReleasesKeyAfterCompletion(t *testing.T) {
	g := New[int]()

	calls := 0
	for i := 0; i < 3; i++ {
		_, _, _ = g.Do("key", func() (int, error) {
			calls++
			return calls, nil
		})
	}

	if calls != 3 {
		t.Errorf("sequential calls executed %d times, want 3", calls)
	}
	if inFlight(g, "key") {
		t.Error("key still marked in flight after completion")
	}
}

func TestDoRecoversPanic(t *testing.T) {
	g := New[string]()

	_, err, _ := g.Do("boom", func() (string, error) {
		panic("kaboom")
	})

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Do() returned %v, want *PanicError", err)
	}
	if panicErr.Value != "kaboom" {
		t.Errorf("PanicError.Value = %v, want kaboom", panicErr.Value)
	}
	if inFlight(g, "boom") {
		t.Error("panicking call left key in flight")
	}
}

func TestForgetDetachesInFlightCall(t *testing.T) {
	g := New[string]()
	release := make(chan struct{})
	started := make(chan struct{})

	done := make(chan string)
	go func() {
		val, _, _ := g.Do("key", func() (string, error) {
			close(started)
			<-release
			return "old", nil
		})
		done <- val
	}()
	<-started

	g.Forget("key")

	val, err, shared := g.Do("key", func() (string, error) {
		return "new", nil
	})
	if err != nil {
		t.Errorf("Do() after Forget returned error: %v", err)
	}
	if val != "new" || shared {
		t.Errorf("Do() after Forget returned %v shared=%v, want new unshared", val, shared)
	}

	close(release)
	if got := <-done; got != "old" {
		t.Errorf("forgotten call returned %v, want old", got)
	}
	if inFlight(g, "key") {
		t.Error("key still marked in flight after both calls finished")
	}
}

func inFlight[T any](g *Group[T], key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.m[key]
	return ok
}

func BenchmarkDo(b *testing.B) {
	g := New[string]()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = g.Do("bench-key", func() (string, error) {
			return "result", nil
		})
	}
}
