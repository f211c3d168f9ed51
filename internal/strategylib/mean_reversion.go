package strategylib

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/kestrelquant/stratrunner/internal/adapter"
	"github.com/kestrelquant/stratrunner/internal/runtime"
)

// MeanReversionConfig holds the strategy's tunable knobs, re-expressed
// against the adapter/router model.
type MeanReversionConfig struct {
	Market          adapter.MarketID
	Size            decimal.Decimal
	StdDevThreshold float64
	LookbackSamples int

	// RiskCheck, when set, is consulted before every order placement and
	// blocks the trade if it returns an error (service.RiskService's
	// pre-trade checks).
	RiskCheck func(side adapter.OrderSide, price, size decimal.Decimal) error

	// Audit, when set, records every placed order to an audit trail.
	Audit func(event string, detail map[string]any)
}

// MeanReversion returns a runtime.Entry that buys when the market's mid
// price falls significantly below its trailing mean and sells when it
// rises significantly above it, driven by the router's change-only On
// loop instead of a push-based OnBookUpdate callback.
func MeanReversion(ad adapter.Adapter, cfg MeanReversionConfig) runtime.Entry {
	if cfg.StdDevThreshold <= 0 {
		cfg.StdDevThreshold = 2.0
	}
	tracker := newPriceTracker(cfg.LookbackSamples)

	return func(ctx *runtime.StrategyContext) {
		book, err := ad.SubscribeOrderbook(ctx, cfg.Market)
		if err != nil {
			ctx.Logger.Error("mean_reversion: subscribe orderbook failed", slog.Any("error", err))
			return
		}
		orders, err := ad.SubscribeOrders(ctx, cfg.Market)
		if err != nil {
			ctx.Logger.Error("mean_reversion: subscribe orders failed", slog.Any("error", err))
			return
		}

		var openOrderID string
		ctx.AtExit(func() {
			if openOrderID != "" {
				_ = ad.CancelOrder(ctx, cfg.Market, openOrderID)
			}
		})

		ctx.Router().On(func(results map[int64]any, _ *runtime.Subscription) {
			snap, ok := book(results)
			if !ok || len(snap.Bids) == 0 || len(snap.Asks) == 0 {
				return
			}
			mid := midFromBook(snap.Bids[0].Price, snap.Asks[0].Price)
			tracker.observe(mid)
			if !tracker.ready() {
				return
			}

			vol := tracker.stddev()
			avg := tracker.mean()
			if vol == 0 {
				return
			}
			deviation := (mid - avg) / vol

			openOrders, _ := orders(results)
			if len(openOrders) > 0 {
				// An order is already working; wait for it to resolve
				// before placing another (one open position per market).
				return
			}

			var side adapter.OrderSide
			var price decimal.Decimal
			switch {
			case deviation <= -cfg.StdDevThreshold:
				side, price = adapter.Buy, snap.Bids[0].Price
			case deviation >= cfg.StdDevThreshold:
				side, price = adapter.Sell, snap.Asks[0].Price
			default:
				return
			}

			if cfg.RiskCheck != nil {
				if err := cfg.RiskCheck(side, price, cfg.Size); err != nil {
					ctx.Logger.Warn("mean_reversion: order blocked by risk check",
						slog.String("market", cfg.Market.String()),
						slog.Any("error", err),
					)
					return
				}
			}

			placed, err := ad.LimitOrder(ctx, cfg.Market, side, price, cfg.Size)
			if err != nil {
				ctx.Logger.Error("mean_reversion: order failed", slog.String("side", string(side)), slog.Any("error", err))
				return
			}
			openOrderID = placed.ID
			ctx.Logger.Info("mean_reversion: signal",
				slog.String("market", cfg.Market.String()),
				slog.String("side", string(side)),
				slog.Float64("mid", mid),
				slog.Float64("deviation", deviation),
			)
			if cfg.Audit != nil {
				cfg.Audit("strategy_order_placed", map[string]any{
					"market":    cfg.Market.String(),
					"side":      string(side),
					"price":     price.String(),
					"size":      cfg.Size.String(),
					"order_id":  placed.ID,
					"deviation": deviation,
				})
			}
		})
	}
}
