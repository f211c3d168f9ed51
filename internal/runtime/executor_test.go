package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeHost is a minimal Host for exercising the Executor without any real
// transport: tests push events onto a channel and read them back via
// NextEvent, and record every SubmitSend call.
type fakeHost struct {
	events chan Event
	sent   []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{events: make(chan Event, 16)}
}

func (h *fakeHost) NextEvent(ctx context.Context) (Event, error) {
	select {
	case ev := <-h.events:
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (h *fakeHost) SubmitSend(strategy string, payload any) (string, error) {
	h.sent = append(h.sent, strategy)
	return "token-1", nil
}

// TestExecutorTrapsUserCallbackPanicAndKeepsRunning verifies that a user
// callback failure (other than the Exit() sentinel) is logged by the
// router's own trap and the strategy's On loop continues — it must not
// kill the task or trigger an executor-level restart.
func TestExecutorTrapsUserCallbackPanicAndKeepsRunning(t *testing.T) {
	registry := NewRegistry()

	var callCount int
	registry.Register("flaky", func(ctx *StrategyContext) {
		r := NewRouter(ctx.Logger, nil)
		r.Register(Fingerprint{URL: "u"}, func(p string) (any, error) { return p, nil })
		r.On(func(results map[int64]any, _ *Subscription) {
			callCount++
			if callCount == 1 {
				panic("boom")
			}
		})
	})

	host := newFakeHost()
	ex := NewExecutor(registry, host, noopLogger(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		host.events <- Event{Kind: EventFetcherResponse, URL: "u", Content: "v1"}
		time.Sleep(20 * time.Millisecond)
		host.events <- Event{Kind: EventFetcherResponse, URL: "u", Content: "v2"}
	}()

	err := ex.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 2, callCount, "the loop must keep dispatching after a trapped callback panic")
}

// TestExecutorRestartsStrategyThatDiesOutsideTheRouterTrap verifies that a
// task reaching terminal state with a non-exit error is swept and
// relaunched under the same name. It panics in raw strategy-level code
// outside the router's own trapped zone (On/callback dispatch), after its
// first successful suspension, so startup succeeds and the failure is
// only observed by the main loop's sweep.
func TestExecutorRestartsStrategyThatDiesOutsideTheRouterTrap(t *testing.T) {
	registry := NewRegistry()

	var starts int
	registry.Register("broken", func(ctx *StrategyContext) {
		starts++
		Yield(func(ev Event) (any, bool) {
			return nil, ev.Kind == EventFetcherResponse
		})
		panic("unprotected failure")
	})

	host := newFakeHost()
	ex := NewExecutor(registry, host, noopLogger(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		host.events <- Event{Kind: EventFetcherResponse, URL: "u", Content: "v1"}
	}()

	err := ex.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.GreaterOrEqual(t, starts, 2, "a task that dies outside the router trap must be restarted")
}

func TestExecutorTerminateSignalStopsMainLoop(t *testing.T) {
	registry := NewRegistry()
	registry.Register("quiet", func(ctx *StrategyContext) {
		r := NewRouter(ctx.Logger, nil)
		r.Register(Fingerprint{URL: "u"}, func(p string) (any, error) { return p, nil })
		r.On(func(results map[int64]any, _ *Subscription) {})
	})

	host := newFakeHost()
	ex := NewExecutor(registry, host, noopLogger(), nil)

	go func() {
		time.Sleep(5 * time.Millisecond)
		host.events <- Event{Kind: EventSignal, Terminate: true}
	}()

	err := ex.Run(context.Background())
	require.ErrorIs(t, err, ErrTerminate)
}
