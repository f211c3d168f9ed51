package runtime

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// noopLogger discards everything; tests assert on callback counts, not logs.
func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// driveStrategy starts name's task, resumes it once to prime the first
// suspension, and returns the task. offer below then hands ev to the task
// if its want matches, mimicking the Executor's dispatch loop without
// pulling in the full Executor/Host machinery.
func driveStrategy(t *testing.T, name string, entry func()) *Task {
	t.Helper()
	Reset(name)
	task := newTask(name, entry, noopLogger())
	task.Resume(nil)
	return task
}

func offer(task *Task, ev Event) {
	want, ok := peekWant(task.Name)
	if !ok {
		return
	}
	if v, matched := want(ev); matched {
		clearWant(task.Name)
		task.Resume(v)
	}
}

func TestRouterWarmUpGate(t *testing.T) {
	defer SetCurrent("")

	var calls int
	var lastResults map[int64]any

	task := driveStrategy(t, "warmup-test", func() {
		SetCurrent("warmup-test")
		r := NewRouter(noopLogger(), nil)
		subA := r.Register(Fingerprint{URL: "a"}, func(p string) (any, error) { return p, nil })
		subB := r.Register(Fingerprint{URL: "b"}, func(p string) (any, error) { return p, nil })
		_ = subA
		_ = subB
		r.On(func(results map[int64]any, _ *Subscription) {
			calls++
			lastResults = results
		})
	})

	require.False(t, task.Done())

	// Deliver a response for A only: warm-up gate must not open.
	for _, name := range []string{"warmup-test"} {
		if r, ok := routerFor(name); ok {
			r.DeliverFetcherPayload(Fingerprint{URL: "a"}, "payload-a")
		}
	}
	offer(task, Event{Kind: EventFetcherResponse, URL: "a", Content: "payload-a"})
	require.Equal(t, 0, calls, "callback must not fire until every subscription has a value")

	// Deliver a response for B: warm-up gate opens, callback fires once.
	if r, ok := routerFor("warmup-test"); ok {
		r.DeliverFetcherPayload(Fingerprint{URL: "b"}, "payload-b")
	}
	offer(task, Event{Kind: EventFetcherResponse, URL: "b", Content: "payload-b"})

	require.Equal(t, 1, calls)
	require.Len(t, lastResults, 2)
}

func TestRouterChangeOnlyDispatch(t *testing.T) {
	defer SetCurrent("")

	var calls int

	task := driveStrategy(t, "change-only-test", func() {
		SetCurrent("change-only-test")
		r := NewRouter(noopLogger(), nil)
		r.Register(Fingerprint{URL: "only"}, func(p string) (any, error) { return p, nil })
		r.On(func(results map[int64]any, _ *Subscription) {
			calls++
		})
	})

	if r, ok := routerFor("change-only-test"); ok {
		r.DeliverFetcherPayload(Fingerprint{URL: "only"}, "same")
	}
	offer(task, Event{Kind: EventFetcherResponse, URL: "only", Content: "same"})
	require.Equal(t, 1, calls)

	// Re-deliver the identical payload: structurally equal, must not
	// trigger another callback invocation.
	if r, ok := routerFor("change-only-test"); ok {
		r.DeliverFetcherPayload(Fingerprint{URL: "only"}, "same")
	}
	offer(task, Event{Kind: EventFetcherResponse, URL: "only", Content: "same"})
	require.Equal(t, 1, calls, "identical payload must not re-trigger the callback")

	// A changed payload must trigger it again.
	if r, ok := routerFor("change-only-test"); ok {
		r.DeliverFetcherPayload(Fingerprint{URL: "only"}, "different")
	}
	offer(task, Event{Kind: EventFetcherResponse, URL: "only", Content: "different"})
	require.Equal(t, 2, calls)
}

func TestRouterExitUnwindsLoopCleanly(t *testing.T) {
	defer SetCurrent("")

	task := driveStrategy(t, "exit-test", func() {
		SetCurrent("exit-test")
		r := NewRouter(noopLogger(), nil)
		r.Register(Fingerprint{URL: "x"}, func(p string) (any, error) { return p, nil })
		r.On(func(results map[int64]any, _ *Subscription) {
			r.Exit()
		})
	})

	if r, ok := routerFor("exit-test"); ok {
		r.DeliverFetcherPayload(Fingerprint{URL: "x"}, "v1")
	}
	offer(task, Event{Kind: EventFetcherResponse, URL: "x", Content: "v1"})

	require.True(t, task.Done())
	require.NoError(t, task.Err())
}
