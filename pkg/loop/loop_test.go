package loop

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestLoopOrdering(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = l.Run(ctx)
	}()

	var seen []int
	for i := 0; i < 10; i++ {
		i := i
		l.Post(func() {
			seen = append(seen, i)
		})
	}

	var res []int
	l.Do(func() {
		res = append(res, seen...)
	})
	assert.DeepEqual(t, res, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
}

func TestLoopTimerStop(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = l.Run(ctx)
	}()

	fired := make(chan struct{}, 2)
	var stopped Timer
	l.Do(func() {
		stopped = l.AfterFunc(10*time.Millisecond, func() {
			fired <- struct{}{}
		})
		l.AfterFunc(20*time.Millisecond, func() {
			fired <- struct{}{}
		})
		stopped.Stop()
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoopPostFromLoopWithFullQueue(t *testing.T) {
	l := New(WithQueueSize(2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = l.Run(ctx)
	}()

	var seen []int
	posted := make(chan struct{})
	l.Post(func() {
		for i := 0; i < 10; i++ {
			i := i
			l.Post(func() {
				seen = append(seen, i)
			})
		}
		close(posted)
	})

	select {
	case <-posted:
	case <-time.After(time.Second):
		t.Fatal("posting from the control thread blocked")
	}

	var res []int
	l.Do(func() {
		res = append(res, seen...)
	})
	assert.DeepEqual(t, res, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
}

func TestLoopClose(t *testing.T) {
	l := New(WithQueueSize(1))
	errChan := make(chan error)
	go func() {
		errChan <- l.Run(context.Background())
	}()

	l.Close()
	assert.NilError(t, <-errChan)

	// Posting to a closed loop must not block
	l.Post(func() {})
	l.Do(func() {})
}

func TestManualTimers(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var order []string
	m.AfterFunc(200*time.Millisecond, func() {
		order = append(order, "b")
	})
	m.AfterFunc(100*time.Millisecond, func() {
		order = append(order, "a")
		m.AfterFunc(50*time.Millisecond, func() {
			order = append(order, "a2")
		})
	})
	cancelled := m.AfterFunc(120*time.Millisecond, func() {
		order = append(order, "never")
	})
	cancelled.Stop()

	m.Advance(99 * time.Millisecond)
	assert.Equal(t, len(order), 0)

	m.Advance(time.Second)
	assert.DeepEqual(t, order, []string{"a", "a2", "b"})
	assert.Equal(t, m.Pending(), 0)
	assert.Assert(t, m.Now().Equal(time.Unix(0, 0).Add(1099*time.Millisecond)))
}

func TestManualPostReentrancy(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var order []int
	m.Post(func() {
		m.Post(func() {
			order = append(order, 2)
		})
		order = append(order, 1)
	})
	assert.DeepEqual(t, order, []int{1, 2})
}
