package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestImportLock_AcquireRelease(t *testing.T) {
	lock := NewImportLock(time.Second)

	if lock.Status().Held {
		t.Fatal("new lock should not be held")
	}

	ctx := context.Background()
	if err := lock.Acquire(ctx, "imp-1"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if !lock.Status().Held {
		t.Error("lock should be held after Acquire")
	}
	status := lock.Status()
	if !status.Held || status.ImportID != "imp-1" {
		t.Errorf("Status = %+v, want held by imp-1", status)
	}
	if status.Since.IsZero() {
		t.Error("Status.Since should be set")
	}

	lock.Release()

	if lock.Status().Held {
		t.Error("lock should not be held after Release")
	}
	if status := lock.Status(); status.Held || status.ImportID != "" {
		t.Errorf("Status after Release = %+v, want empty", status)
	}
}

func TestImportLock_Timeout(t *testing.T) {
	lock := NewImportLock(50 * time.Millisecond)
	ctx := context.Background()

	if err := lock.Acquire(ctx, "first"); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer lock.Release()

	start := time.Now()
	err := lock.Acquire(ctx, "second")
	elapsed := time.Since(start)

	if !errors.Is(err, ErrImportInProgress) {
		t.Errorf("Acquire error = %v, want ErrImportInProgress", err)
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("Acquire returned too quickly: %v", elapsed)
	}
	if got := lock.Status().ImportID; got != "first" {
		t.Errorf("holder = %q, want first", got)
	}
}

func TestImportLock_NoWait(t *testing.T) {
	for _, wait := range []time.Duration{0, -1} {
		lock := NewImportLock(wait)
		ctx := context.Background()

		if err := lock.Acquire(ctx, "first"); err != nil {
			t.Fatalf("wait %v: first Acquire failed: %v", wait, err)
		}

		start := time.Now()
		if err := lock.Acquire(ctx, "second"); !errors.Is(err, ErrImportInProgress) {
			t.Errorf("wait %v: Acquire error = %v, want ErrImportInProgress", wait, err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("wait %v: Acquire blocked for %v", wait, elapsed)
		}
		lock.Release()
	}
}

func TestImportLock_ContextCanceled(t *testing.T) {
	lock := NewImportLock(5 * time.Second)

	if err := lock.Acquire(context.Background(), "first"); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer lock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := lock.Acquire(ctx, "second")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire error = %v, want context.Canceled", err)
	}
}

func TestImportLock_WaitsForRelease(t *testing.T) {
	lock := NewImportLock(time.Second)
	ctx := context.Background()

	if err := lock.Acquire(ctx, "first"); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		lock.Release()
	}()

	if err := lock.Acquire(ctx, "second"); err != nil {
		t.Fatalf("second Acquire should succeed after release: %v", err)
	}
	if got := lock.Status().ImportID; got != "second" {
		t.Errorf("holder = %q, want second", got)
	}
	lock.Release()
}

func TestImportLock_TryAcquire(t *testing.T) {
	lock := NewImportLock(0)

	if !lock.TryAcquire("first") {
		t.Fatal("TryAcquire on idle lock should succeed")
	}
	if lock.TryAcquire("second") {
		t.Error("TryAcquire on held lock should fail")
	}

	lock.Release()

	if !lock.TryAcquire("third") {
		t.Error("TryAcquire after Release should succeed")
	}
	lock.Release()
}

func TestImportLock_Serializes(t *testing.T) {
	lock := NewImportLock(5 * time.Second)
	ctx := context.Background()

	var (
		active    int32
		maxActive int32
		wg        sync.WaitGroup
	)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lock.Acquire(ctx, "worker"); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			defer lock.Release()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}

	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
}
