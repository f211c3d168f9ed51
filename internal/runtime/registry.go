package runtime

import "sync"

// Entry func(*StrategyContext) is a strategy's entry point: it runs inside
// its own task's goroutine, builds whatever subscriptions/callbacks it
// needs off ctx, and (almost always) ends by calling ctx.Router().On(...)
// in an effectively infinite loop.
type Entry func(ctx *StrategyContext)

// Registry is the set of strategies the Executor can enumerate and launch
// at startup, holding pure entry functions rather than push-based
// Strategy implementations.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Entry
	order   []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds a named strategy entry point. Re-registering a name
// replaces its entry without changing its startup order.
func (r *Registry) Register(name string, entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = entry
}

// Names returns every registered strategy name in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	return e, ok
}
