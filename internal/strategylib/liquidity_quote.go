package strategylib

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kestrelquant/stratrunner/internal/adapter"
	"github.com/kestrelquant/stratrunner/internal/runtime"
)

// LiquidityQuoteConfig holds the same two-sided quoting knobs as a
// push-based liquidity provider, re-expressed against the adapter/router
// model: one bid and one ask resting order, requoted whenever the mid
// price moves past a threshold.
type LiquidityQuoteConfig struct {
	Market           adapter.MarketID
	Size             decimal.Decimal
	HalfSpread       decimal.Decimal
	RequoteThreshold float64

	RiskCheck func(side adapter.OrderSide, price, size decimal.Decimal) error
	Audit     func(event string, detail map[string]any)
}

// LiquidityQuote returns a runtime.Entry that keeps a two-sided quote
// resting around the trailing mid price, requoting only when the mid has
// moved beyond cfg.RequoteThreshold, driven by the router's change-only On
// loop instead of a push-based OnBookUpdate callback.
func LiquidityQuote(ad adapter.Adapter, cfg LiquidityQuoteConfig) runtime.Entry {
	if cfg.RequoteThreshold <= 0 {
		cfg.RequoteThreshold = 0.005
	}

	return func(ctx *runtime.StrategyContext) {
		book, err := ad.SubscribeOrderbook(ctx, cfg.Market)
		if err != nil {
			ctx.Logger.Error("liquidity_quote: subscribe orderbook failed", slog.Any("error", err))
			return
		}

		var bidID, askID string
		var lastMid decimal.Decimal
		quoted := false

		cancelBoth := func() {
			if bidID != "" {
				_ = ad.CancelOrder(ctx, cfg.Market, bidID)
				bidID = ""
			}
			if askID != "" {
				_ = ad.CancelOrder(ctx, cfg.Market, askID)
				askID = ""
			}
		}
		ctx.AtExit(cancelBoth)

		ctx.Router().On(func(results map[int64]any, _ *runtime.Subscription) {
			snap, ok := book(results)
			if !ok || len(snap.Bids) == 0 || len(snap.Asks) == 0 {
				return
			}
			mid := snap.Bids[0].Price.Add(snap.Asks[0].Price).Div(decimal.NewFromInt(2))

			moved := !quoted || mid.Sub(lastMid).Abs().GreaterThan(decimal.NewFromFloat(cfg.RequoteThreshold))
			if !moved {
				return
			}

			bidPrice := mid.Sub(cfg.HalfSpread)
			askPrice := mid.Add(cfg.HalfSpread)
			if bidPrice.IsNegative() {
				bidPrice = decimal.Zero
			}
			if askPrice.GreaterThan(decimal.NewFromInt(1)) {
				askPrice = decimal.NewFromInt(1)
			}

			if cfg.RiskCheck != nil {
				if err := cfg.RiskCheck(adapter.Buy, bidPrice, cfg.Size); err != nil {
					ctx.Logger.Warn("liquidity_quote: requote blocked by risk check", slog.Any("error", err))
					return
				}
			}

			cancelBoth()

			placedBid, err := ad.LimitOrder(ctx, cfg.Market, adapter.Buy, bidPrice, cfg.Size)
			if err != nil {
				ctx.Logger.Error("liquidity_quote: bid failed", slog.Any("error", err))
			} else {
				bidID = placedBid.ID
			}
			placedAsk, err := ad.LimitOrder(ctx, cfg.Market, adapter.Sell, askPrice, cfg.Size)
			if err != nil {
				ctx.Logger.Error("liquidity_quote: ask failed", slog.Any("error", err))
			} else {
				askID = placedAsk.ID
			}

			lastMid = mid
			quoted = true
			ctx.Logger.Info("liquidity_quote: requoted",
				slog.String("market", cfg.Market.String()),
				slog.String("bid", bidPrice.String()),
				slog.String("ask", askPrice.String()),
			)
			if cfg.Audit != nil {
				cfg.Audit("strategy_requote", map[string]any{
					"market": cfg.Market.String(),
					"bid":    bidPrice.String(),
					"ask":    askPrice.String(),
					"ts":     time.Now().UTC().Format(time.RFC3339),
				})
			}
		})
	}
}
