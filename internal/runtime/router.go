package runtime

import (
	"fmt"
	"log/slog"
	"reflect"
	"time"
)

// Cooperative/wall WARN thresholds applied around every user callback
// invocation.
const (
	cooperativeWarnThreshold = 50 * time.Millisecond
	wallWarnThreshold        = 1500 * time.Millisecond
)

// MetricsSink receives each strategy's per-callback timer readings — the
// Router-side half of the host's report_timings capability.
type MetricsSink interface {
	ReportTimings(name string, cooperative, wall time.Duration)
}

// ChangeSink is notified of every warmed-up, structurally-changed
// subscription result just before the user callback runs — e.g. to publish
// the change to an external dashboard. Nil disables publishing.
type ChangeSink interface {
	PublishChange(strategy, fingerprint string, value any)
}

// UserCallback is the strategy's main-loop body: invoked once per
// meaningful change, after the warm-up gate has opened, with the full
// results table and the extractor whose value just changed.
type UserCallback func(results map[int64]any, lastChanged *Subscription)

// Router is the per-strategy dispatch engine. One Router is created per
// running strategy task and lives in that strategy's local store for the
// duration of the task.
type Router struct {
	name    string
	logger  *slog.Logger
	timer   *Timer
	metrics MetricsSink
	changes ChangeSink

	subs *subscriptions

	results map[int64]any
	warm    bool

	// pending holds fetcher payloads handed to deliver_fetcher_payload but
	// not yet consumed by a suspended On loop — the single source of truth
	// a Want only drains from (see the closure fetcherWant builds).
	pending map[Fingerprint]string
}

// routerKeyType is the reserved store key a strategy's *Router lives under.
type routerKeyType struct{}

var routerKey = routerKeyType{}

// NewRouter creates and records the Router for the current strategy.
// metrics may be nil, in which case timing reports are simply dropped.
func NewRouter(logger *slog.Logger, metrics MetricsSink) *Router {
	name := mustCurrent()
	r := &Router{
		name:    name,
		logger:  logger,
		timer:   NewTimer(),
		metrics: metrics,
		subs:    subscriptionsFor(name),
		results: make(map[int64]any),
		pending: make(map[Fingerprint]string),
	}
	storeFor(name).Set(routerKey, r)
	return r
}

// SetChangeSink installs the sink notified of warmed-up result changes.
// Must be called before On starts its loop.
func (r *Router) SetChangeSink(cs ChangeSink) {
	r.changes = cs
}

// routerFor returns the Router registered for name, if any — used by the
// Executor to reach a strategy's DeliverFetcherPayload without the
// strategy's own ctx handle.
func routerFor(name string) (*Router, bool) {
	v, ok := storeFor(name).Get(routerKey)
	if !ok {
		return nil, false
	}
	r, ok := v.(*Router)
	return r, ok
}

// Register is the router's public `register(req, parse_cb)` operation. It
// is idempotent on req's fingerprint and returns a *Subscription whose ID
// indexes into the results table On hands to user_cb.
func (r *Router) Register(fp Fingerprint, extract Extractor) *Subscription {
	return r.subs.subscribe(fp, extract)
}

// DeliverFetcherPayload is invoked by the Executor, inside this strategy's
// context, whenever a fetcher response arrives whose fingerprint is
// registered here. It only buffers the payload; parsing happens lazily
// inside On's delivery loop.
func (r *Router) DeliverFetcherPayload(fp Fingerprint, payload string) {
	if _, ok := r.subs.byFingerprint(fp); !ok {
		return
	}
	r.pending[fp] = payload
}

// fetcherWant returns a Want that resolves as soon as r has a buffered
// payload for any registered fingerprint — either because
// DeliverFetcherPayload already ran this cycle, or because the raw event
// itself matches one of this router's fingerprints (in which case it is
// buffered here before being reported, keeping pending as the single
// source of truth consumed by the delivery loop).
func (r *Router) fetcherWant() Want {
	return func(ev Event) (any, bool) {
		if fp, payload, ok := r.takePending(); ok {
			return pendingDelivery{fp: fp, payload: payload}, true
		}
		if ev.Kind != EventFetcherResponse {
			return nil, false
		}
		fp := ev.Fingerprint()
		if _, registered := r.subs.byFingerprint(fp); !registered {
			return nil, false
		}
		r.pending[fp] = ev.Content
		fp, payload, _ := r.takePending()
		return pendingDelivery{fp: fp, payload: payload}, true
	}
}

type pendingDelivery struct {
	fp      Fingerprint
	payload string
}

func (r *Router) takePending() (Fingerprint, string, bool) {
	for fp, payload := range r.pending {
		delete(r.pending, fp)
		return fp, payload, true
	}
	return Fingerprint{}, "", false
}

// On is the strategy's main loop: it repeatedly takes a buffered payload,
// parses it, updates the results table on a structural change, and — once
// every registered subscription has produced at least one value — invokes
// cb exactly once per meaningful change.
func (r *Router) On(cb UserCallback) {
	for {
		delivery := Yield(r.fetcherWant()).(pendingDelivery)

		sub, ok := r.subs.byFingerprint(delivery.fp)
		if !ok {
			continue
		}

		parsed, err := r.trapParse(sub, delivery.payload)
		if err != nil {
			r.logger.Error("parse failed",
				slog.String("strategy", r.name),
				slog.String("fingerprint", delivery.fp.String()),
				slog.Any("error", err),
			)
			continue
		}

		if equalResult(r.results[sub.ID], parsed) {
			continue
		}
		r.results[sub.ID] = parsed

		if !r.warm {
			r.warm = r.checkWarm()
			if !r.warm {
				continue
			}
		}

		if r.changes != nil {
			r.changes.PublishChange(r.name, sub.Fingerprint.String(), parsed)
		}

		if err := r.invokeUserCallback(cb, sub); err != nil {
			if err == ErrExit {
				return
			}
			r.logger.Error("strategy callback error",
				slog.String("strategy", r.name),
				slog.Any("error", err),
			)
		}
	}
}

func (r *Router) checkWarm() bool {
	for _, fp := range r.subs.fingerprints() {
		sub, _ := r.subs.byFingerprint(fp)
		if _, ok := r.results[sub.ID]; !ok {
			return false
		}
	}
	return true
}

func (r *Router) trapParse(sub *Subscription, payload string) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &ParseFailure{Fingerprint: sub.Fingerprint, Err: panicToErr(rec)}
		}
	}()
	return sub.Extract(payload)
}

func (r *Router) invokeUserCallback(cb UserCallback, lastChanged *Subscription) (err error) {
	r.timer.Start()
	defer func() {
		if rec := recover(); rec != nil {
			if e, ok := rec.(error); ok && e == ErrExit {
				err = ErrExit
			} else {
				err = &UserCallbackError{Strategy: r.name, Err: panicToErr(rec)}
			}
		}
		cooperative, wall, stopErr := r.timer.Stop()
		if stopErr == nil {
			r.warnSlow(cooperative, wall)
			if r.metrics != nil {
				r.metrics.ReportTimings(r.name, cooperative, wall)
			}
		}
	}()
	cb(r.results, lastChanged)
	return nil
}

func (r *Router) warnSlow(cooperative, wall time.Duration) {
	if cooperative > cooperativeWarnThreshold {
		r.logger.Warn("slow strategy callback (cooperative)",
			slog.String("strategy", r.name),
			slog.Duration("cooperative", cooperative),
		)
	}
	if wall > wallWarnThreshold {
		r.logger.Warn("slow strategy callback (wall)",
			slog.String("strategy", r.name),
			slog.Duration("wall", wall),
		)
	}
}

// Exit unwinds the strategy's On loop via the dedicated exit sentinel,
// distinct from any ordinary user error.
func (r *Router) Exit() {
	panic(ErrExit)
}

// equalable is implemented by the canonical external-interface shapes
// (domain.CanonicalBook, domain.CanonicalBalance, domain.CanonicalPosition,
// domain.CanonicalOrders) so the router's change detection can defer to
// their own structural
// equality definitions instead of reflect.DeepEqual's field-by-field
// comparison, which would treat e.g. map key order or zero-valued entries
// differently than a "missing = zero" rule.
type equalable interface {
	Equal(other any) bool
}

// equalResult implements the router's "parsed != results[id]" change
// test: structural equality via the value's own Equal method when it
// implements equalable, else reflect.DeepEqual.
func equalResult(prev, next any) bool {
	if prev == nil || next == nil {
		return prev == nil && next == nil
	}
	if eq, ok := next.(equalable); ok {
		return eq.Equal(prev)
	}
	return reflect.DeepEqual(prev, next)
}

func panicToErr(rec any) error {
	if e, ok := rec.(error); ok {
		return e
	}
	return fmt.Errorf("%v", rec)
}
