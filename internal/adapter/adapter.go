// Package adapter defines the exchange-adapter contract strategies build
// against and the market identifier grammar every adapter's subscribe_*
// entry point parses first. Concrete adapters (polymarket, kalshi) live in
// sibling files, built on the same REST/WS client patterns as
// internal/platform/polymarket and internal/platform/kalshi.
package adapter

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kestrelquant/stratrunner/internal/domain"
	"github.com/kestrelquant/stratrunner/internal/runtime"
)

// MarketType distinguishes spot markets from perpetual/futures swaps.
type MarketType string

const (
	MarketSpot MarketType = "spot"
	MarketSwap MarketType = "swap"
)

// MarketID is a parsed "<market_type>:<BASE>/<QUOTE>" identifier.
type MarketID struct {
	Type  MarketType
	Base  string
	Quote string
}

// String reconstructs the canonical "<market_type>:<BASE>/<QUOTE>" form.
func (m MarketID) String() string {
	return fmt.Sprintf("%s:%s/%s", m.Type, m.Base, m.Quote)
}

// ParseMarketID splits raw on the market identifier grammar
// "<market_type>:<BASE>/<QUOTE>" — the first step of every adapter's
// subscribe_* entry point.
func ParseMarketID(raw string) (MarketID, error) {
	typePart, pair, ok := strings.Cut(raw, ":")
	if !ok {
		return MarketID{}, fmt.Errorf("adapter: market id %q missing ':' separator", raw)
	}
	base, quote, ok := strings.Cut(pair, "/")
	if !ok {
		return MarketID{}, fmt.Errorf("adapter: market id %q missing '/' separator", raw)
	}
	mt := MarketType(typePart)
	if mt != MarketSpot && mt != MarketSwap {
		return MarketID{}, fmt.Errorf("adapter: market id %q has unknown market type %q", raw, typePart)
	}
	if base == "" || quote == "" {
		return MarketID{}, fmt.Errorf("adapter: market id %q has an empty base or quote", raw)
	}
	return MarketID{Type: mt, Base: strings.ToUpper(base), Quote: strings.ToUpper(quote)}, nil
}

// Adapter is the capability set an exchange integration exports:
// subscribe_* registrations return an extractor via the router, order
// operations perform a synchronous-looking send().
type Adapter interface {
	// Name identifies the adapter for logging and Request.Sign selection.
	Name() string

	SubscribeOrderbook(ctx *runtime.StrategyContext, market MarketID) (func(results map[int64]any) (domain.CanonicalBook, bool), error)
	SubscribeBalance(ctx *runtime.StrategyContext, market MarketID) (func(results map[int64]any) (domain.CanonicalBalance, bool), error)
	SubscribeOrders(ctx *runtime.StrategyContext, market MarketID) (func(results map[int64]any) (domain.CanonicalOrders, bool), error)

	// SubscribePosition is optional: adapters without a native position
	// feed (e.g. pure spot exchanges) may return ErrPositionUnsupported.
	SubscribePosition(ctx *runtime.StrategyContext, market MarketID) (func(results map[int64]any) (domain.CanonicalPosition, bool), error)

	LimitOrder(ctx *runtime.StrategyContext, market MarketID, side OrderSide, price, amount decimal.Decimal) (domain.CanonicalOrder, error)
	MarketOrder(ctx *runtime.StrategyContext, market MarketID, side OrderSide, amount decimal.Decimal) (domain.CanonicalOrder, error)
	CancelOrder(ctx *runtime.StrategyContext, market MarketID, orderID string) error
}

// OrderSide is the adapter-facing buy/sell direction order operations take.
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// ErrPositionUnsupported is returned by SubscribePosition on adapters with
// no native per-market position feed.
var ErrPositionUnsupported = fmt.Errorf("adapter: position subscription not supported")

// Subscriber is the host's subscribe capability
// ("subscribe(request, period_ms)"), narrowed to what an adapter needs to
// request polling — distinct from runtime.Sender/Host, which the strategy
// context already wraps for send()/next_event().
type Subscriber interface {
	Subscribe(req domain.Request, periodMs int64) error
}

// extractorFor wraps a Subscription's extractor into the results-table
// accessor shape register() returns — a function that, given a results
// table, returns the last parsed value for this subscription.
func extractorFor[T any](sub *runtime.Subscription) func(results map[int64]any) (T, bool) {
	return func(results map[int64]any) (T, bool) {
		v, ok := results[sub.ID]
		if !ok {
			var zero T
			return zero, false
		}
		typed, ok := v.(T)
		return typed, ok
	}
}
