package calccache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCache_Memoizes(t *testing.T) {
	c := New[int](true)
	calls := 0
	compute := func() (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.Get("answer", compute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != 42 {
			t.Errorf("expected 42, got %d", v)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 computation, got %d", calls)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 held value, got %d", c.Len())
	}
}

func TestCache_ErrorsNotCached(t *testing.T) {
	c := New[string](true)
	boom := errors.New("boom")
	calls := 0

	_, err := c.Get("k", func() (string, error) {
		calls++
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	v, err := c.Get("k", func() (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Errorf("expected recomputed value, got %q, %v", v, err)
	}
	if calls != 2 {
		t.Errorf("expected 2 computations, got %d", calls)
	}
}

func TestCache_Disabled(t *testing.T) {
	c := New[int](false)
	calls := 0
	for i := 0; i < 3; i++ {
		_, _ = c.Get("k", func() (int, error) {
			calls++
			return calls, nil
		})
	}
	if calls != 3 {
		t.Errorf("expected every call to compute, got %d", calls)
	}
	if c.Len() != 0 {
		t.Errorf("expected nothing held, got %d", c.Len())
	}
}

func TestCache_SetEnabledClearsAndPropagates(t *testing.T) {
	child := New[int](true)
	grandchild := New[int](true)
	child.Adopt(grandchild)
	root := New[int](true, child)

	_, _ = root.Get("a", func() (int, error) { return 1, nil })
	_, _ = child.Get("b", func() (int, error) { return 2, nil })

	root.SetEnabled(false)

	if root.Enabled() || child.Enabled() || grandchild.Enabled() {
		t.Error("expected the whole tree to be disabled")
	}
	if root.Len() != 0 || child.Len() != 0 {
		t.Error("expected held values to be cleared")
	}

	root.SetEnabled(true)
	if !child.Enabled() || !grandchild.Enabled() {
		t.Error("expected the whole tree to be enabled again")
	}
}

type countingToggle struct {
	enabled bool
	calls   int
}

func (c *countingToggle) SetEnabled(enabled bool) {
	c.calls++
	c.enabled = enabled
}

func (c *countingToggle) Enabled() bool { return c.enabled }

func TestCache_SetEnabledSameStateIsNoop(t *testing.T) {
	child := &countingToggle{enabled: true}
	c := New[int](true, child)
	_, _ = c.Get("k", func() (int, error) { return 1, nil })

	c.SetEnabled(true)

	if child.calls != 0 {
		t.Errorf("expected no propagation, got %d calls", child.calls)
	}
	if c.Len() != 1 {
		t.Error("expected held values to survive")
	}
}

func TestCache_AdoptAligns(t *testing.T) {
	c := New[int](false)
	child := &countingToggle{enabled: true}
	c.Adopt(child)
	if child.enabled {
		t.Error("expected adopted child to follow the cache state")
	}
}

func TestCache_ConcurrentMissesShareComputation(t *testing.T) {
	c := New[int](true)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get("slow", func() (int, error) {
				calls.Add(1)
				<-release
				return 7, nil
			})
			if err != nil || v != 7 {
				t.Errorf("expected 7, got %d, %v", v, err)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 computation, got %d", n)
	}
}

func TestCache_InterfaceValueWithError(t *testing.T) {
	c := New[error](true)
	v, err := c.Get("k", func() (error, error) { return nil, errors.New("fail") })
	if err == nil || v != nil {
		t.Errorf("expected nil value and error, got %v, %v", v, err)
	}
}

func TestCache_StaleComputationNotStored(t *testing.T) {
	c := New[string](true)
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan string)
	go func() {
		v, _ := c.Get("k", func() (string, error) {
			close(started)
			<-release
			return "old", nil
		})
		done <- v
	}()

	<-started
	c.SetEnabled(false)
	c.SetEnabled(true)
	close(release)

	if v := <-done; v != "old" {
		t.Errorf("expected the running caller to get its value, got %q", v)
	}
	if c.Len() != 0 {
		t.Errorf("expected stale value to be dropped, got %d held", c.Len())
	}

	v, err := c.Get("k", func() (string, error) { return "new", nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "new" {
		t.Errorf("expected recomputed value, got %q", v)
	}
}

func TestCache_ClearDropsRunningComputation(t *testing.T) {
	c := New[int](true)
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan struct{})
	go func() {
		_, _ = c.Get("k", func() (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		close(done)
	}()

	<-started
	c.Clear()
	close(release)
	<-done

	if c.Len() != 0 {
		t.Errorf("expected no held values after clear, got %d", c.Len())
	}
}

func TestCache_GetContext(t *testing.T) {
	t.Run("computes and stores", func(t *testing.T) {
		c := New[string](true)
		v, err := c.GetContext(context.Background(), "k", func(context.Context) (string, error) {
			return "v", nil
		})
		if err != nil || v != "v" {
			t.Fatalf("expected v, got %q, %v", v, err)
		}
		if c.Len() != 1 {
			t.Errorf("expected 1 held value, got %d", c.Len())
		}
	})

	t.Run("canceled before start", func(t *testing.T) {
		c := New[string](true)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		called := false
		_, err := c.GetContext(ctx, "k", func(context.Context) (string, error) {
			called = true
			return "v", nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if called {
			t.Error("expected no computation")
		}
	})

	t.Run("waiter cancel does not cancel computation", func(t *testing.T) {
		c := New[string](true)
		started := make(chan struct{})
		release := make(chan struct{})
		computeErr := make(chan error, 1)

		ctx, cancel := context.WithCancel(context.Background())
		waitErr := make(chan error, 1)
		go func() {
			_, err := c.GetContext(ctx, "k", func(cctx context.Context) (string, error) {
				close(started)
				<-release
				computeErr <- cctx.Err()
				return "v", nil
			})
			waitErr <- err
		}()

		<-started
		cancel()
		if err := <-waitErr; !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled for the waiter, got %v", err)
		}
		close(release)
		if err := <-computeErr; err != nil {
			t.Errorf("expected computation context to stay live, got %v", err)
		}

		deadline := time.Now().Add(2 * time.Second)
		for c.Len() == 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		v, err := c.Get("k", func() (string, error) { return "other", nil })
		if err != nil || v != "v" {
			t.Errorf("expected stored value v, got %q, %v", v, err)
		}
	})
}
