package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEnqueueRunsOnTick(t *testing.T) {
	d := New()
	ran := false
	future := d.Enqueue(func() (any, error) {
		ran = true
		return 42, nil
	})

	if ran {
		t.Fatal("task ran before Drain")
	}
	d.Drain()
	if !ran {
		t.Fatal("task did not run after Drain")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := future.Await(ctx)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if result != 42 {
		t.Fatalf("result = %v, want 42", result)
	}
}

func TestFIFOOrdering(t *testing.T) {
	d := New()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		d.Enqueue(func() (any, error) {
			order = append(order, i)
			return nil, nil
		})
	}
	d.Drain()

	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want [0 1 2 3 4]", order)
		}
	}
}

func TestTaskEnqueuedDuringDrainRunsNextDrain(t *testing.T) {
	d := New()
	var order []string
	d.Enqueue(func() (any, error) {
		order = append(order, "first")
		d.Enqueue(func() (any, error) {
			order = append(order, "nested")
			return nil, nil
		})
		return nil, nil
	})
	d.Enqueue(func() (any, error) {
		order = append(order, "second")
		return nil, nil
	})

	d.Drain()
	if got := []string{"first", "second"}; !equal(order, got) {
		t.Fatalf("after first Drain: order = %v, want %v", order, got)
	}

	d.Drain()
	if got := []string{"first", "second", "nested"}; !equal(order, got) {
		t.Fatalf("after second Drain: order = %v, want %v", order, got)
	}
}

func TestTaskErrorPropagatesToFuture(t *testing.T) {
	d := New()
	wantErr := errors.New("boom")
	future := d.Enqueue(func() (any, error) {
		return nil, wantErr
	})
	d.Drain()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := future.Await(ctx)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestAwaitRespectsContextCancellation(t *testing.T) {
	d := New()
	future := d.Enqueue(func() (any, error) { return nil, nil }) // never ticked

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := future.Await(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestStopFailsQueuedTasks(t *testing.T) {
	d := New()
	future := d.Enqueue(func() (any, error) { return 1, nil })
	d.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := future.Await(ctx)
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestEnqueueAfterStopFailsImmediately(t *testing.T) {
	d := New()
	d.Stop()
	future := d.Enqueue(func() (any, error) { return 1, nil })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := future.Await(ctx)
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestPendingReflectsQueueDepth(t *testing.T) {
	d := New()
	if n := d.Pending(); n != 0 {
		t.Fatalf("Pending() = %d, want 0 before any Enqueue", n)
	}

	release := make(chan struct{})
	d.Enqueue(func() (any, error) {
		<-release
		return nil, nil
	})
	d.Enqueue(func() (any, error) { return nil, nil })
	d.Enqueue(func() (any, error) { return nil, nil })

	if n := d.Pending(); n != 3 {
		t.Fatalf("Pending() = %d, want 3 queued before Drain", n)
	}
	close(release)
	d.Drain()

	if n := d.Pending(); n != 0 {
		t.Fatalf("Pending() = %d, want 0 after Drain", n)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
