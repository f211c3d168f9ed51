package strategylib

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kestrelquant/stratrunner/internal/adapter"
	"github.com/kestrelquant/stratrunner/internal/domain"
	"github.com/kestrelquant/stratrunner/internal/runtime"
	"github.com/kestrelquant/stratrunner/internal/service"
)

// CrossPlatformArbConfig holds cross-venue arbitrage knobs: the same market
// quoted on two venues, traded when the two best prices cross by more than
// the venues' combined fees and slippage.
type CrossPlatformArbConfig struct {
	PolyMarket   adapter.MarketID
	KalshiMarket adapter.MarketID
	Size         decimal.Decimal

	// ArbSvc applies the net-edge model (gates on MinNetEdgeBps, duration,
	// unhedged exposure, kill switch) before a leg is traded. Nil disables
	// the gate and every crossed edge with a positive net edge is traded.
	ArbSvc *service.ArbService

	EstFeeBps      float64
	EstSlippageBps float64
	EstLatencyBps  float64

	RiskCheck func(side adapter.OrderSide, price, size decimal.Decimal) error
	Audit     func(event string, detail map[string]any)
}

// CrossPlatformArb returns a runtime.Entry that watches a market's best
// prices on both Polymarket and Kalshi and trades the spread whenever it
// crosses, the same net-edge opportunity a pub/sub price feed would hand
// ArbService — here driven directly by the router's change-only On loop
// over two book subscriptions instead of a "prices" bus topic.
func CrossPlatformArb(poly, kalshi adapter.Adapter, cfg CrossPlatformArbConfig) runtime.Entry {
	return func(ctx *runtime.StrategyContext) {
		polyBook, err := poly.SubscribeOrderbook(ctx, cfg.PolyMarket)
		if err != nil {
			ctx.Logger.Error("cross_platform_arb: subscribe polymarket book failed", slog.Any("error", err))
			return
		}
		kalshiBook, err := kalshi.SubscribeOrderbook(ctx, cfg.KalshiMarket)
		if err != nil {
			ctx.Logger.Error("cross_platform_arb: subscribe kalshi book failed", slog.Any("error", err))
			return
		}

		ctx.Router().On(func(results map[int64]any, _ *runtime.Subscription) {
			pBook, ok := polyBook(results)
			if !ok || len(pBook.Bids) == 0 || len(pBook.Asks) == 0 {
				return
			}
			kBook, ok := kalshiBook(results)
			if !ok || len(kBook.Bids) == 0 || len(kBook.Asks) == 0 {
				return
			}

			tryDirection(ctx, poly, kalshi, cfg, "poly_buy_kalshi_sell", pBook.Asks[0].Price, kBook.Bids[0].Price)
			tryDirection(ctx, kalshi, poly, cfg, "kalshi_buy_poly_sell", kBook.Asks[0].Price, pBook.Bids[0].Price)
		})
	}
}

// tryDirection evaluates buying on buyAdapter at buyPrice and selling on
// sellAdapter at sellPrice, the same net-edge computation a single-venue
// yes/no spread strategy uses, generalized to two venues.
func tryDirection(ctx *runtime.StrategyContext, buyAdapter, sellAdapter adapter.Adapter, cfg CrossPlatformArbConfig, direction string, buyPrice, sellPrice decimal.Decimal) {
	if !sellPrice.GreaterThan(buyPrice) {
		return
	}
	mid := buyPrice.Add(sellPrice).Div(decimal.NewFromInt(2))
	if mid.IsZero() {
		return
	}
	grossEdgeBps, _ := sellPrice.Sub(buyPrice).Div(mid).Mul(decimal.NewFromInt(10_000)).Float64()
	netEdgeBps := grossEdgeBps - cfg.EstFeeBps - cfg.EstSlippageBps - cfg.EstLatencyBps
	if netEdgeBps <= 0 {
		return
	}

	if cfg.ArbSvc != nil {
		buyF, _ := buyPrice.Float64()
		notional, _ := cfg.Size.Mul(mid).Float64()
		opp := domain.ArbOpportunity{
			ID:             direction + "-" + time.Now().UTC().Format(time.RFC3339Nano),
			PolyPrice:      buyF,
			GrossEdgeBps:   grossEdgeBps,
			Direction:      direction,
			MaxAmount:      notional,
			EstFeeBps:      cfg.EstFeeBps,
			EstSlippageBps: cfg.EstSlippageBps,
			EstLatencyBps:  cfg.EstLatencyBps,
			NetEdgeBps:     netEdgeBps,
			DetectedAt:     time.Now().UTC(),
		}
		ok, err := cfg.ArbSvc.Evaluate(context.Background(), opp)
		if err != nil || !ok {
			return
		}
		_ = cfg.ArbSvc.Record(context.Background(), opp)
	}

	if cfg.RiskCheck != nil {
		if err := cfg.RiskCheck(adapter.Buy, buyPrice, cfg.Size); err != nil {
			ctx.Logger.Warn("cross_platform_arb: leg blocked by risk check", slog.Any("error", err))
			return
		}
	}

	if _, err := buyAdapter.LimitOrder(ctx, marketFor(cfg, buyAdapter), adapter.Buy, buyPrice, cfg.Size); err != nil {
		ctx.Logger.Error("cross_platform_arb: buy leg failed", slog.Any("error", err))
		return
	}
	if _, err := sellAdapter.LimitOrder(ctx, marketFor(cfg, sellAdapter), adapter.Sell, sellPrice, cfg.Size); err != nil {
		ctx.Logger.Error("cross_platform_arb: sell leg failed", slog.Any("error", err))
		return
	}

	ctx.Logger.Info("cross_platform_arb: executed",
		slog.String("direction", direction),
		slog.String("net_edge_bps", decimal.NewFromFloat(netEdgeBps).String()),
	)
	if cfg.Audit != nil {
		cfg.Audit("cross_platform_arb_executed", map[string]any{
			"direction":      direction,
			"buy_price":      buyPrice.String(),
			"sell_price":     sellPrice.String(),
			"net_edge_bps":   netEdgeBps,
			"size":           cfg.Size.String(),
		})
	}
}

func marketFor(cfg CrossPlatformArbConfig, ad adapter.Adapter) adapter.MarketID {
	if ad.Name() == "kalshi" {
		return cfg.KalshiMarket
	}
	return cfg.PolyMarket
}
