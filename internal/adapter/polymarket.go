package adapter

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kestrelquant/stratrunner/internal/crypto"
	"github.com/kestrelquant/stratrunner/internal/domain"
	"github.com/kestrelquant/stratrunner/internal/runtime"
)

// pollPeriodMs is the default polling interval handed to host.Subscribe for
// every Polymarket CLOB book/orders/balance feed.
const pollPeriodMs = 1000

// Polymarket adapts the Polymarket CLOB REST API to the Adapter contract,
// grounded on internal/platform/polymarket's ClobClient/GammaClient request
// shapes and internal/crypto.Signer's EIP-712 order signing.
type Polymarket struct {
	baseURL    string
	subscriber Subscriber
	signer     *crypto.Signer
	hmac       *crypto.HMACAuth
	address    string
}

// NewPolymarket builds a Polymarket adapter. subscriber is normally the
// *host.Poller shared with the Executor.
func NewPolymarket(baseURL string, subscriber Subscriber, signer *crypto.Signer, hmac *crypto.HMACAuth, address string) *Polymarket {
	return &Polymarket{baseURL: baseURL, subscriber: subscriber, signer: signer, hmac: hmac, address: address}
}

func (p *Polymarket) Name() string { return "polymarket" }

// clobBookResponse mirrors the subset of the CLOB /book response this
// adapter cares about.
type clobBookResponse struct {
	Bids []clobLevel `json:"bids"`
	Asks []clobLevel `json:"asks"`
}

type clobLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

func (p *Polymarket) SubscribeOrderbook(ctx *runtime.StrategyContext, market MarketID) (func(map[int64]any) (domain.CanonicalBook, bool), error) {
	req := domain.Request{
		URL:    p.baseURL + "/book?token_id=" + market.Base,
		Method: domain.RequestMethodGet,
	}
	if err := p.subscriber.Subscribe(req, pollPeriodMs); err != nil {
		return nil, fmt.Errorf("adapter/polymarket: subscribe orderbook: %w", err)
	}
	fp := runtime.Fingerprint{URL: req.URL}
	sub := ctx.Router().Register(fp, func(payload string) (any, error) {
		var raw clobBookResponse
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			return nil, fmt.Errorf("adapter/polymarket: decode book: %w", err)
		}
		return domain.CanonicalBook{
			Bids: toLevels(raw.Bids),
			Asks: toLevels(raw.Asks),
		}, nil
	})
	return extractorFor[domain.CanonicalBook](sub), nil
}

func toLevels(raw []clobLevel) []domain.CanonicalLevel {
	out := make([]domain.CanonicalLevel, 0, len(raw))
	for _, lvl := range raw {
		price, _ := decimal.NewFromString(lvl.Price)
		size, _ := decimal.NewFromString(lvl.Size)
		out = append(out, domain.CanonicalLevel{Price: price, Quantity: size})
	}
	return out
}

type clobBalanceResponse struct {
	Balances map[string]struct {
		Available string `json:"available"`
		Locked    string `json:"locked"`
	} `json:"balances"`
}

func (p *Polymarket) SubscribeBalance(ctx *runtime.StrategyContext, market MarketID) (func(map[int64]any) (domain.CanonicalBalance, bool), error) {
	req := domain.Request{
		URL:     p.baseURL + "/balances?address=" + p.address,
		Method:  domain.RequestMethodGet,
		Headers: p.authHeaders("GET", "/balances", ""),
		Sign:    "polymarket-hmac",
	}
	if err := p.subscriber.Subscribe(req, pollPeriodMs); err != nil {
		return nil, fmt.Errorf("adapter/polymarket: subscribe balance: %w", err)
	}
	fp := runtime.Fingerprint{URL: req.URL}
	sub := ctx.Router().Register(fp, func(payload string) (any, error) {
		var raw clobBalanceResponse
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			return nil, fmt.Errorf("adapter/polymarket: decode balances: %w", err)
		}
		out := make(domain.CanonicalBalance, len(raw.Balances))
		for asset, b := range raw.Balances {
			free, _ := decimal.NewFromString(b.Available)
			locked, _ := decimal.NewFromString(b.Locked)
			out[asset] = domain.AssetBalance{Free: free, Locked: locked, Total: free.Add(locked)}
		}
		return out, nil
	})
	return extractorFor[domain.CanonicalBalance](sub), nil
}

// SubscribePosition is not supported natively by the CLOB API: positions
// must be derived from fills, which this adapter does not track.
func (p *Polymarket) SubscribePosition(ctx *runtime.StrategyContext, market MarketID) (func(map[int64]any) (domain.CanonicalPosition, bool), error) {
	return nil, ErrPositionUnsupported
}

type clobOrdersResponse struct {
	Orders []struct {
		ID          string `json:"id"`
		Price       string `json:"price"`
		SizeMatched string `json:"size_matched"`
		OrigSize    string `json:"original_size"`
		Side        string `json:"side"`
	} `json:"orders"`
}

func (p *Polymarket) SubscribeOrders(ctx *runtime.StrategyContext, market MarketID) (func(map[int64]any) (domain.CanonicalOrders, bool), error) {
	req := domain.Request{
		URL:     p.baseURL + "/orders?token_id=" + market.Base,
		Method:  domain.RequestMethodGet,
		Headers: p.authHeaders("GET", "/orders", ""),
		Sign:    "polymarket-hmac",
	}
	if err := p.subscriber.Subscribe(req, pollPeriodMs); err != nil {
		return nil, fmt.Errorf("adapter/polymarket: subscribe orders: %w", err)
	}
	fp := runtime.Fingerprint{URL: req.URL}
	sub := ctx.Router().Register(fp, func(payload string) (any, error) {
		var raw clobOrdersResponse
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			return nil, fmt.Errorf("adapter/polymarket: decode orders: %w", err)
		}
		out := make(domain.CanonicalOrders, 0, len(raw.Orders))
		for _, o := range raw.Orders {
			price, _ := decimal.NewFromString(o.Price)
			remaining, _ := decimal.NewFromString(o.OrigSize)
			matched, _ := decimal.NewFromString(o.SizeMatched)
			amount := remaining.Sub(matched)
			if o.Side == "SELL" {
				amount = amount.Neg()
			}
			out = append(out, domain.CanonicalOrder{ID: o.ID, Price: price, Amount: amount})
		}
		return out, nil
	})
	return extractorFor[domain.CanonicalOrders](sub), nil
}

func (p *Polymarket) LimitOrder(ctx *runtime.StrategyContext, market MarketID, side OrderSide, price, amount decimal.Decimal) (domain.CanonicalOrder, error) {
	return p.placeOrder(ctx, market, side, price, amount, "GTC")
}

func (p *Polymarket) MarketOrder(ctx *runtime.StrategyContext, market MarketID, side OrderSide, amount decimal.Decimal) (domain.CanonicalOrder, error) {
	return p.placeOrder(ctx, market, side, decimal.Zero, amount, "FAK")
}

func (p *Polymarket) placeOrder(ctx *runtime.StrategyContext, market MarketID, side OrderSide, price, amount decimal.Decimal, orderType string) (domain.CanonicalOrder, error) {
	body, err := json.Marshal(map[string]any{
		"tokenID": market.Base,
		"side":    string(side),
		"price":   price.String(),
		"size":    amount.Abs().String(),
		"type":    orderType,
	})
	if err != nil {
		return domain.CanonicalOrder{}, fmt.Errorf("adapter/polymarket: encode order: %w", err)
	}

	req := domain.Request{
		URL:     p.baseURL + "/order",
		Method:  domain.RequestMethodPost,
		Body:    string(body),
		Headers: p.authHeaders("POST", "/order", string(body)),
		Sign:    "polymarket-eip712",
	}

	resp, err := ctx.Send(req)
	if err != nil {
		return domain.CanonicalOrder{}, fmt.Errorf("adapter/polymarket: place order: %w", err)
	}

	var result struct {
		OrderID string `json:"orderID"`
		Success bool   `json:"success"`
	}
	if err := json.Unmarshal([]byte(resp.(string)), &result); err != nil {
		return domain.CanonicalOrder{}, fmt.Errorf("adapter/polymarket: decode order result: %w", err)
	}
	if !result.Success {
		return domain.CanonicalOrder{}, fmt.Errorf("adapter/polymarket: order rejected")
	}

	signedAmount := amount.Abs()
	if side == Sell {
		signedAmount = signedAmount.Neg()
	}
	return domain.CanonicalOrder{ID: result.OrderID, Price: price, Amount: signedAmount, Type: domain.CanonicalOrderType(orderType)}, nil
}

func (p *Polymarket) CancelOrder(ctx *runtime.StrategyContext, market MarketID, orderID string) error {
	body, _ := json.Marshal(map[string]any{"orderID": orderID})
	req := domain.Request{
		URL:     p.baseURL + "/order",
		Method:  domain.RequestMethodDelete,
		Body:    string(body),
		Headers: p.authHeaders("DELETE", "/order", string(body)),
		Sign:    "polymarket-hmac",
	}
	_, err := ctx.Send(req)
	if err != nil {
		return fmt.Errorf("adapter/polymarket: cancel order %s: %w", orderID, err)
	}
	return nil
}

func (p *Polymarket) authHeaders(method, path, body string) map[string]string {
	if p.hmac == nil {
		return nil
	}
	return p.hmac.L2Headers(p.address, method, path, body)
}
