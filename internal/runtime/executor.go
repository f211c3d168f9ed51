package runtime

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ShutdownDeadline bounds how long clearStrategies waits for atexit
// handlers to finish before giving up on stragglers.
const ShutdownDeadline = 5000 * time.Millisecond

// Host is the narrow interface the Executor needs from the transport layer:
// a single fan-in event stream plus the ability to submit on-demand sends.
type Host interface {
	Sender
	NextEvent(ctx context.Context) (Event, error)
}

// RunRecorder persists strategy lifecycle events (start, restart-after-error,
// clean stop). Implementations are expected to be fire-and-forget — a
// recorder that fails should log, not block the Executor's loop.
type RunRecorder interface {
	RecordStart(name string)
	RecordRestart(name string, err error)
	RecordStop(name string)
}

// Executor is the top-level scheduler: it enumerates strategies at
// startup, runs each to its first suspension, then drains the host's
// event stream forever, dispatching fetcher payloads and resuming
// suspended wants, restarting any strategy whose task dies with an error.
type Executor struct {
	registry *Registry
	host     Host
	logger   *slog.Logger
	metrics  MetricsSink

	runStore RunRecorder
	notify   func(strategy, event, message string)
	changes  ChangeSink

	tasks map[string]*Task
}

// NewExecutor builds an Executor over registry, driven by host. metrics may
// be nil.
func NewExecutor(registry *Registry, host Host, logger *slog.Logger, metrics MetricsSink) *Executor {
	return &Executor{
		registry: registry,
		host:     host,
		logger:   logger,
		metrics:  metrics,
		tasks:    make(map[string]*Task),
	}
}

// SetRunRecorder installs a run-history sink. Must be called before Run.
func (e *Executor) SetRunRecorder(r RunRecorder) {
	e.runStore = r
}

// SetNotifyHook installs the function every strategy's ctx.Notify forwards
// to, receiving the originating strategy's name alongside event/message.
// Must be called before Run.
func (e *Executor) SetNotifyHook(fn func(strategy, event, message string)) {
	e.notify = fn
}

// SetChangeSink installs the sink every strategy's Router publishes its
// warmed-up result changes to. Must be called before Run.
func (e *Executor) SetChangeSink(cs ChangeSink) {
	e.changes = cs
}

// Run performs startup, then drains events until a terminate/restart signal
// or an unrecoverable error, then runs clear_strategies before returning.
func (e *Executor) Run(ctx context.Context) error {
	if err := e.startup(); err != nil {
		return err
	}

	runErr := e.mainLoop(ctx)
	e.clearStrategies(ctx)
	return runErr
}

// startup enumerates every registered strategy, starts its task, and drives
// it to its first suspension point. A task that fails before its first
// suspension is fatal to startup.
func (e *Executor) startup() error {
	for _, name := range e.registry.Names() {
		Reset(name)
		if e.metrics != nil {
			e.metrics.ResetStrategy(name)
		}
		t := e.launch(name)
		if e.runStore != nil {
			e.runStore.RecordStart(name)
		}
		t.Resume(nil)
		if t.Done() {
			if err := t.Err(); err != nil && !errors.Is(err, ErrExit) {
				return &UserCallbackError{Strategy: name, Err: ErrStartup}
			}
		}
		e.tasks[name] = t
	}
	return nil
}

func (e *Executor) launch(name string) *Task {
	entry, _ := e.registry.Lookup(name)
	return newTask(name, func() {
		ctx := newStrategyContext(name, e.logger, e.host, e.metrics)
		if e.notify != nil {
			ctx.SetNotify(func(event, message string) { e.notify(name, event, message) })
		}
		if e.changes != nil {
			ctx.Router().SetChangeSink(e.changes)
		}
		entry(ctx)
	}, e.logger)
}

// mainLoop drains the host, dispatches each event, then sweeps.
func (e *Executor) mainLoop(ctx context.Context) error {
	for {
		ev, err := e.host.NextEvent(ctx)
		if err != nil {
			return err
		}

		if ev.Kind == EventSignal {
			switch {
			case ev.Terminate:
				return ErrTerminate
			case ev.Restart:
				return ErrRestart
			}
			continue
		}

		if ev.Kind == EventFetcherResponse && ev.Error {
			e.logger.Error("fetcher response error",
				slog.String("url", ev.URL),
				slog.Uint64("status", uint64(ev.Status)),
			)
			continue
		}

		e.dispatch(ev)
		e.sweep()
	}
}

// dispatch fans out fetcher payloads, then offers the event to every
// suspended want.
func (e *Executor) dispatch(ev Event) {
	if ev.Kind == EventFetcherResponse {
		for name, t := range e.tasks {
			if t.Done() {
				continue
			}
			if r, ok := routerFor(name); ok {
				r.DeliverFetcherPayload(ev.Fingerprint(), ev.Content)
			}
		}
	}

	for name, t := range e.tasks {
		if t.Done() {
			continue
		}
		want, ok := peekWant(name)
		if !ok {
			continue
		}
		value, matched := want(ev)
		if !matched {
			continue
		}
		clearWant(name)
		t.Resume(value)
	}
}

// sweep runs atexit handlers and clears the store for any task that
// reached a terminal state, and schedules a restart for any that died
// with an error.
func (e *Executor) sweep() {
	for name, t := range e.tasks {
		if !t.Done() {
			continue
		}

		err := t.Err()
		executeAtExit(name, e.logger)
		Reset(name)
		delete(e.tasks, name)

		if err == nil || errors.Is(err, ErrExit) {
			if e.runStore != nil {
				e.runStore.RecordStop(name)
			}
			continue
		}

		e.logger.Error("strategy terminated with error, restarting",
			slog.String("strategy", name),
			slog.Any("error", err),
		)
		if e.metrics != nil {
			e.metrics.ResetStrategy(name)
		}
		if e.runStore != nil {
			e.runStore.RecordRestart(name, err)
		}
		nt := e.launch(name)
		nt.Resume(nil)
		e.tasks[name] = nt
	}
}

// clearStrategies runs every live strategy's atexit handlers
// concurrently, bounded by ShutdownDeadline.
func (e *Executor) clearStrategies(ctx context.Context) {
	done := make(chan struct{}, len(e.tasks))
	for name := range e.tasks {
		name := name
		go func() {
			executeAtExit(name, e.logger)
			Reset(name)
			done <- struct{}{}
		}()
	}

	deadline := time.NewTimer(ShutdownDeadline)
	defer deadline.Stop()

	remaining := len(e.tasks)
	for remaining > 0 {
		select {
		case <-done:
			remaining--
		case <-deadline.C:
			return
		}
	}
}
