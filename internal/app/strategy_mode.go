package app

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/shopspring/decimal"

	"github.com/kestrelquant/stratrunner/internal/adapter"
	"github.com/kestrelquant/stratrunner/internal/crypto"
	"github.com/kestrelquant/stratrunner/internal/domain"
	"github.com/kestrelquant/stratrunner/internal/host"
	"github.com/kestrelquant/stratrunner/internal/runtime"
	"github.com/kestrelquant/stratrunner/internal/service"
	"github.com/kestrelquant/stratrunner/internal/strategylib"
)

// StrategyMode runs the coroutine-style strategy engine implemented by the
// runtime package: one task per configured strategy, scheduled by a single
// runtime.Executor draining a host.Poller event stream. It is the only mode
// the application runs.
func (a *App) StrategyMode(ctx context.Context, deps *Dependencies) error {
	registry := runtime.NewRegistry()

	names := a.cfg.Strategy.Active
	if len(names) == 0 && a.cfg.Strategy.Name != "" {
		names = []string{a.cfg.Strategy.Name}
	}

	poller := host.NewPoller(&http.Client{}, a.logger, registry.Names)
	if deps != nil && deps.RateLimiter != nil {
		poller.SetRateLimiter(deps.RateLimiter)
	}
	metrics := host.NewInMemoryMetrics()

	polyAdapter, err := a.buildPolymarketAdapter(poller)
	if err != nil {
		return fmt.Errorf("app: build polymarket adapter: %w", err)
	}
	kalshiAdapter, err := a.buildKalshiAdapter(poller)
	if err != nil {
		a.logger.Warn("kalshi adapter unavailable, strategies referencing it will fail to start", "error", err)
	}

	market, marketErr := adapter.ParseMarketID(fmt.Sprintf("spot:%s/USDC", a.cfg.Strategy.Coin))
	if marketErr != nil {
		return fmt.Errorf("app: parse strategy market: %w", marketErr)
	}

	riskCheck := a.buildRiskGate(deps)
	audit := a.buildAuditHook(ctx, deps)

	for _, name := range names {
		ad := resolveAdapterForStrategy(name, polyAdapter, kalshiAdapter)
		if ad == nil {
			a.logger.Warn("strategy skipped: its adapter is not configured", "strategy", name)
			continue
		}

		if name == "liquidity_provider" || (len(name) > 3 && name[len(name)-3:] == "-lp") {
			lpCfg := a.cfg.Strategy.LiquidityProvider
			halfSpreadBps := lpCfg.HalfSpreadBps
			if halfSpreadBps == 0 {
				halfSpreadBps = 50
			}
			size := decimal.NewFromFloat(lpCfg.Size)
			if size.IsZero() {
				size = decimal.NewFromFloat(a.cfg.Strategy.Size)
			}
			registry.Register(name, strategylib.LiquidityQuote(ad, strategylib.LiquidityQuoteConfig{
				Market:           market,
				Size:             size,
				HalfSpread:       decimal.NewFromInt(int64(halfSpreadBps)).Div(decimal.NewFromInt(10_000)),
				RequoteThreshold: lpCfg.RequoteThreshold,
				RiskCheck:        riskCheck,
				Audit:            audit,
			}))
			continue
		}

		registry.Register(name, strategylib.MeanReversion(ad, strategylib.MeanReversionConfig{
			Market:          market,
			Size:            decimal.NewFromFloat(a.cfg.Strategy.Size),
			StdDevThreshold: strategyParamFloat(a.cfg.Strategy.Params, "std_dev_threshold", 2.0),
			LookbackSamples: int(strategyParamFloat(a.cfg.Strategy.Params, "lookback_samples", 30)),
			RiskCheck:       riskCheck,
			Audit:           audit,
		}))
	}

	if err := a.registerCrossPlatformArb(registry, polyAdapter, kalshiAdapter, deps, riskCheck, audit); err != nil {
		a.logger.Warn("cross_platform_arb unavailable", "error", err)
	}

	executor := runtime.NewExecutor(registry, poller, a.logger, metrics)
	if deps != nil && deps.StratRunStore != nil {
		executor.SetRunRecorder(deps.StratRunStore)
	}
	if deps != nil && deps.Notifier != nil {
		executor.SetNotifyHook(func(strategy, event, message string) {
			if err := deps.Notifier.Notify(ctx, event, strategy, message); err != nil {
				a.logger.Warn("strategy mode: notify failed", slog.String("strategy", strategy), slog.Any("error", err))
			}
		})
	}
	if deps != nil && deps.SignalBus != nil {
		executor.SetChangeSink(&signalBusChangeSink{bus: deps.SignalBus, ctx: ctx, logger: a.logger})
	}
	return executor.Run(ctx)
}

// signalBusChangeSink publishes every router change-event to a
// "router:<strategy>" channel on the shared signal bus, for external
// dashboards. Publish failures are logged, never propagated — this is a
// best-effort side channel, not part of the strategy's own control flow.
type signalBusChangeSink struct {
	bus    domain.SignalBus
	ctx    context.Context
	logger *slog.Logger
}

func (s *signalBusChangeSink) PublishChange(strategy, fingerprint string, value any) {
	payload, err := json.Marshal(map[string]any{"fingerprint": fingerprint, "value": value})
	if err != nil {
		return
	}
	if err := s.bus.Publish(s.ctx, "router:"+strategy, payload); err != nil {
		s.logger.Warn("strategy mode: signal bus publish failed", slog.String("strategy", strategy), slog.Any("error", err))
	}
}

// registerCrossPlatformArb wires strategylib.CrossPlatformArb for every
// market pair in cfg.Strategy.CrossPlatformArb.MarketMap, a poly-market-id
// -> kalshi-ticker mapping. A no-op when the feature is disabled or the
// Kalshi adapter could not be built.
func (a *App) registerCrossPlatformArb(registry *runtime.Registry, poly, kalshi adapter.Adapter, deps *Dependencies, riskCheck func(adapter.OrderSide, decimal.Decimal, decimal.Decimal) error, audit func(string, map[string]any)) error {
	cfg := a.cfg.Strategy.CrossPlatformArb
	if !cfg.Enabled {
		return nil
	}
	if kalshi == nil {
		return fmt.Errorf("kalshi adapter required")
	}

	var arbSvc *service.ArbService
	if deps != nil && deps.ArbStore != nil && deps.SignalBus != nil {
		arbSvc = service.NewArbService(deps.ArbStore, deps.SignalBus, deps.AuditStore, service.ArbConfig{
			MinNetEdgeBps:  float64(cfg.MinEdgeBps),
			MaxTradeAmount: cfg.SizePerLeg,
		}, a.logger)
	}

	for polyRaw, kalshiTicker := range cfg.MarketMap {
		polyMarket, err := adapter.ParseMarketID(polyRaw)
		if err != nil {
			a.logger.Warn("cross_platform_arb: skip invalid poly market", "market", polyRaw, "error", err)
			continue
		}
		kalshiMarket, err := adapter.ParseMarketID(fmt.Sprintf("spot:%s/USD", kalshiTicker))
		if err != nil {
			a.logger.Warn("cross_platform_arb: skip invalid kalshi market", "market", kalshiTicker, "error", err)
			continue
		}
		name := fmt.Sprintf("cross_platform_arb:%s", polyRaw)
		registry.Register(name, strategylib.CrossPlatformArb(poly, kalshi, strategylib.CrossPlatformArbConfig{
			PolyMarket:   polyMarket,
			KalshiMarket: kalshiMarket,
			Size:         decimal.NewFromFloat(cfg.SizePerLeg),
			ArbSvc:       arbSvc,
			RiskCheck:    riskCheck,
			Audit:        audit,
		}))
	}
	return nil
}

// resolveAdapterForStrategy names the adapter each strategy trades
// against. All strategies here trade Polymarket unless explicitly
// suffixed "-kalshi", matching the single-coin config knob this mode
// inherits from StrategyConfig.
func resolveAdapterForStrategy(name string, poly, kalshi adapter.Adapter) adapter.Adapter {
	if len(name) > 7 && name[len(name)-7:] == "-kalshi" {
		return kalshi
	}
	return poly
}

// strategyParamFloat reads a float64 out of the freeform strategy.params
// TOML table, falling back to def when absent or the wrong type.
func strategyParamFloat(params map[string]any, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return def
	}
}

func (a *App) buildPolymarketAdapter(sub adapter.Subscriber) (adapter.Adapter, error) {
	if a.cfg.Wallet.PrivateKey == "" {
		return nil, fmt.Errorf("wallet.private_key not configured")
	}
	signer, err := crypto.NewSigner(a.cfg.Wallet.PrivateKey, a.cfg.Polymarket.ChainID)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	hmacAuth := &crypto.HMACAuth{
		Key:        a.cfg.Builder.ApiKey,
		Secret:     a.cfg.Builder.ApiSecret,
		Passphrase: a.cfg.Builder.ApiPassphrase,
	}
	return adapter.NewPolymarket(a.cfg.Polymarket.ClobHost, sub, signer, hmacAuth, a.cfg.Wallet.SafeAddress), nil
}

func (a *App) buildKalshiAdapter(sub adapter.Subscriber) (adapter.Adapter, error) {
	if a.cfg.Kalshi.RsaPrivateKeyPath == "" {
		return nil, fmt.Errorf("kalshi.rsa_private_key_path not configured")
	}
	pemBytes, err := os.ReadFile(a.cfg.Kalshi.RsaPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read kalshi key: %w", err)
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in kalshi key")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		parsed, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err2 != nil {
			return nil, fmt.Errorf("parse kalshi key: %w", err)
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("kalshi key is not RSA")
		}
		key = rsaKey
	}
	return adapter.NewKalshi(a.cfg.Kalshi.BaseURL, sub, a.cfg.Kalshi.ApiKey, key), nil
}

// buildRiskGate adapts service.RiskService's pre-trade checks into the
// narrow shape strategylib.MeanReversion needs. Returns nil when the
// stores it depends on were not wired, in which case strategies run with
// no pre-trade gate.
func (a *App) buildRiskGate(deps *Dependencies) func(side adapter.OrderSide, price, size decimal.Decimal) error {
	if deps == nil || deps.PositionStore == nil || deps.PriceCache == nil {
		return nil
	}
	riskSvc := service.NewRiskService(deps.PositionStore, deps.PriceCache, service.RiskConfig{
		MaxPositions:   a.cfg.Strategy.MaxPositions,
		MaxTradeAmount: a.cfg.Arbitrage.MaxTradeAmount,
		MaxSlippageBps: a.cfg.Arbitrage.MaxSlippageBps,
	}, a.logger)

	return func(side adapter.OrderSide, price, size decimal.Decimal) error {
		priceF, _ := price.Float64()
		sizeF, _ := size.Float64()
		domainSide := domain.OrderSideBuy
		if side == adapter.Sell {
			domainSide = domain.OrderSideSell
		}
		signal := domain.TradeSignal{
			Source:     "strategy",
			Side:       domainSide,
			PriceTicks: int64(priceF * 1e6),
			SizeUnits:  int64(sizeF * 1e6),
		}
		return riskSvc.PreTradeCheck(context.Background(), signal, a.cfg.Wallet.SafeAddress)
	}
}

// buildAuditHook adapts deps.AuditStore into the audit callback
// strategylib.MeanReversion calls after every successful order placement.
func (a *App) buildAuditHook(ctx context.Context, deps *Dependencies) func(event string, detail map[string]any) {
	if deps == nil || deps.AuditStore == nil {
		return nil
	}
	return func(event string, detail map[string]any) {
		if err := deps.AuditStore.Log(ctx, event, detail); err != nil {
			a.logger.Warn("strategy mode: audit log failed", slog.String("event", event), slog.Any("error", err))
		}
	}
}
