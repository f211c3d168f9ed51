package runtime

import "log/slog"

// StrategyContext bundles the handles a strategy's entry function uses to
// reach the engine: its local store, its router, atexit registration, the
// timer send() pauses around, and the send helper itself, gathered behind
// one value so strategy code never touches package-level globals directly.
type StrategyContext struct {
	Name   string
	Logger *slog.Logger
	sender Sender

	router *Router

	// notify, when set, backs Notify below. Nil means notifications are
	// dropped rather than delivered.
	notify func(event, message string)
}

// newStrategyContext must be called from inside the strategy's own
// goroutine, after SetCurrent has been set by the task handshake. metrics
// may be nil.
func newStrategyContext(name string, logger *slog.Logger, sender Sender, metrics MetricsSink) *StrategyContext {
	return &StrategyContext{
		Name:   name,
		Logger: logger,
		sender: sender,
		router: NewRouter(logger, metrics),
	}
}

// SetNotify installs the hook Notify calls. Intended to be called once,
// right after the StrategyContext is built, before the strategy's entry
// function starts consuming it.
func (c *StrategyContext) SetNotify(fn func(event, message string)) {
	c.notify = fn
}

// Notify fans event/message out through whatever notification hook was
// installed via SetNotify. A no-op when none was installed.
func (c *StrategyContext) Notify(event, message string) {
	if c.notify != nil {
		c.notify(event, message)
	}
}

// Local returns the current strategy's key/value store.
func (c *StrategyContext) Local() *Store {
	return Local()
}

// Router returns the strategy's Router.
func (c *StrategyContext) Router() *Router {
	return c.router
}

// AtExit registers a cleanup handler for strategy termination.
func (c *StrategyContext) AtExit(fn func()) int64 {
	return AtExit(fn)
}

// RemoveAtExit cancels a handler previously registered with AtExit.
func (c *StrategyContext) RemoveAtExit(key int64) {
	RemoveAtExit(key)
}

// Send performs the synchronous-looking on-demand request.
func (c *StrategyContext) Send(payload any) (any, error) {
	return Send(c.sender, c.router.timer, payload)
}

// Exit unwinds the strategy's On loop.
func (c *StrategyContext) Exit() {
	c.router.Exit()
}
