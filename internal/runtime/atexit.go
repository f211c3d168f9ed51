package runtime

import (
	"log/slog"
)

// atexitKeyType is the reserved store key holding a strategy's atexit
// handler list.
type atexitKeyType struct{}

var atexitKey = atexitKeyType{}

type atexitEntry struct {
	id int64
	fn func()
}

type atexitList struct {
	nextID  int64
	entries []atexitEntry
}

// AtExit registers fn to run when the current strategy terminates — cleanly,
// on error before restart, or during executor shutdown. It returns a key
// that can be passed to RemoveAtExit to cancel the registration.
func AtExit(fn func()) int64 {
	name := mustCurrent()
	return atExitFor(name, fn)
}

func atExitFor(name string, fn func()) int64 {
	st := storeFor(name)
	v, _ := st.Get(atexitKey)
	list, _ := v.(*atexitList)
	if list == nil {
		list = &atexitList{}
	}
	list.nextID++
	id := list.nextID
	list.entries = append(list.entries, atexitEntry{id: id, fn: fn})
	st.Set(atexitKey, list)
	return id
}

// RemoveAtExit cancels a handler previously registered with AtExit.
func RemoveAtExit(key int64) {
	name := mustCurrent()
	removeAtExitFor(name, key)
}

func removeAtExitFor(name string, key int64) {
	st := storeFor(name)
	v, ok := st.Get(atexitKey)
	if !ok {
		return
	}
	list := v.(*atexitList)
	out := list.entries[:0]
	for _, e := range list.entries {
		if e.id != key {
			out = append(out, e)
		}
	}
	list.entries = out
}

// executeAtExit runs every handler registered for name, in registration
// order, swallowing and logging each handler's panic/failure independently
// so one broken handler never prevents the others from running.
func executeAtExit(name string, logger *slog.Logger) {
	st := storeFor(name)
	v, ok := st.Get(atexitKey)
	if !ok {
		return
	}
	list := v.(*atexitList)
	for _, e := range list.entries {
		runGuarded(e.fn, name, logger)
	}
}

func runGuarded(fn func(), name string, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Error("atexit handler panicked",
				slog.String("strategy", name),
				slog.Any("panic", r),
			)
		}
	}()
	fn()
}
