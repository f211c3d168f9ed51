package runtime

import (
	"fmt"
	"log/slog"
)

// taskState describes where a Task sits in its lifecycle.
type taskState int

const (
	taskRunning taskState = iota
	taskSuspended
	taskDone
)

// Task wraps one strategy's goroutine. The Go scheduler already runs
// goroutines concurrently; Task layers a cooperative-coroutine discipline
// on top of it with a resume/suspend handshake so that, from the
// Executor's point of view, at most one strategy is ever making progress
// at a time.
type Task struct {
	Name string

	resume    chan any
	suspended chan struct{}
	done      chan struct{}

	state taskState
	err   error
}

// newTask starts name's entry function on its own goroutine, immediately
// blocked until the first Resume.
func newTask(name string, entry func(), logger *slog.Logger) *Task {
	t := &Task{
		Name:      name,
		resume:    make(chan any),
		suspended: make(chan struct{}, 1),
		done:      make(chan struct{}),
		state:     taskRunning,
	}
	registerTask(name, t)
	go t.run(entry, logger)
	return t
}

func (t *Task) run(entry func(), logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				t.err = err
			} else {
				t.err = fmt.Errorf("runtime: strategy %s panicked: %v", t.Name, r)
			}
			if logger != nil && t.err != ErrExit {
				logger.Error("strategy task panicked", slog.String("strategy", t.Name), slog.Any("panic", r))
			}
		}
		t.state = taskDone
		close(t.done)
	}()

	// Block until the Executor performs the first Resume — this is the
	// handshake's starting edge; the strategy body only begins running once
	// the Executor has committed to driving it.
	<-t.resume
	SetCurrent(t.Name)
	entry()
	SetCurrent("")
}

// Yield is called from inside the strategy's own goroutine (by Router.On or
// Send) to suspend until the Executor resumes it with a matching event.
// want is stored so the Executor can test incoming events against it.
func Yield(want Want) any {
	name := mustCurrent()
	setWant(name, want)
	t := currentTask(name)
	t.state = taskSuspended
	SetCurrent("")
	t.suspended <- struct{}{}
	v := <-t.resume
	SetCurrent(name)
	return v
}

// Resume hands value to a suspended task and blocks until it either
// suspends again or finishes. Must be called from the Executor's goroutine,
// never concurrently with another Resume of the same task.
func (t *Task) Resume(value any) {
	t.state = taskRunning
	select {
	case t.resume <- value:
	case <-t.done:
		return
	}
	select {
	case <-t.suspended:
	case <-t.done:
	}
}

// Done reports whether the task's goroutine has finished.
func (t *Task) Done() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Err returns the terminal error, if the task ended with one.
func (t *Task) Err() error {
	return t.err
}

// taskRegistryKeyType is the reserved store key pointing a strategy back at
// its own *Task, so Yield (called deep inside user code) can reach it.
type taskRegistryKeyType struct{}

var taskRegistryKey = taskRegistryKeyType{}

func registerTask(name string, t *Task) {
	storeFor(name).Set(taskRegistryKey, t)
}

func currentTask(name string) *Task {
	v, ok := storeFor(name).Get(taskRegistryKey)
	if !ok {
		panic(fmt.Sprintf("runtime: yield called for %s with no registered task", name))
	}
	return v.(*Task)
}
