package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDoRunsInSubmissionOrder(t *testing.T) {
	l := New(16)
	defer l.Stop()

	var got []int
	for i := 0; i < 100; i++ {
		if err := l.Do(context.Background(), func() { got = append(got, i) }); err != nil {
			t.Fatal(err)
		}
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d", i, v)
		}
	}
}

func TestDoSerialisesConcurrentCallers(t *testing.T) {
	l := New(0)
	defer l.Stop()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = l.Do(context.Background(), func() { counter++ })
			}
		}()
	}
	wg.Wait()

	var final int
	if err := l.Do(context.Background(), func() { final = counter }); err != nil {
		t.Fatal(err)
	}
	if final != 5000 {
		t.Errorf("counter = %d, want 5000", final)
	}
}

func TestDoAfterStop(t *testing.T) {
	l := New(1)
	l.Stop()
	l.Stop()

	if err := l.Do(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("Do() error = %v, want ErrStopped", err)
	}
	if err := l.Go(func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("Go() error = %v, want ErrStopped", err)
	}
}

func TestDoHonoursContext(t *testing.T) {
	l := New(0)
	defer l.Stop()

	release := make(chan struct{})
	go func() { _ = l.Do(context.Background(), func() { <-release }) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Do(ctx, func() {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want DeadlineExceeded", err)
	}
	close(release)
}
