package adapter

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kestrelquant/stratrunner/internal/domain"
	"github.com/kestrelquant/stratrunner/internal/runtime"
)

// Kalshi adapts the Kalshi exchange REST API to the Adapter contract,
// grounded on internal/platform/kalshi.Client's RSA-PSS request signing and
// KalshiOrderbook/KalshiOrder wire shapes. Prices are cents (1-99) on the
// wire and are converted to fractional dollars so they compose with the
// rest of the canonical shapes; quantities and amounts stay contract counts.
type Kalshi struct {
	baseURL    string
	subscriber Subscriber
	apiKeyID   string
	privateKey *rsa.PrivateKey
}

// NewKalshi builds a Kalshi adapter.
func NewKalshi(baseURL string, subscriber Subscriber, apiKeyID string, privateKey *rsa.PrivateKey) *Kalshi {
	return &Kalshi{baseURL: baseURL, subscriber: subscriber, apiKeyID: apiKeyID, privateKey: privateKey}
}

func (k *Kalshi) Name() string { return "kalshi" }

type kalshiLevel struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

type kalshiOrderbookResponse struct {
	Yes []kalshiLevel `json:"yes"`
	No  []kalshiLevel `json:"no"`
}

func (k *Kalshi) SubscribeOrderbook(ctx *runtime.StrategyContext, market MarketID) (func(map[int64]any) (domain.CanonicalBook, bool), error) {
	req := domain.Request{
		URL:     k.baseURL + "/markets/" + market.Base + "/orderbook",
		Method:  domain.RequestMethodGet,
		Headers: k.authHeaders("GET", "/markets/"+market.Base+"/orderbook"),
		Sign:    "kalshi-rsa-pss",
	}
	if err := k.subscriber.Subscribe(req, pollPeriodMs); err != nil {
		return nil, fmt.Errorf("adapter/kalshi: subscribe orderbook: %w", err)
	}
	fp := runtime.Fingerprint{URL: req.URL}
	sub := ctx.Router().Register(fp, func(payload string) (any, error) {
		var raw kalshiOrderbookResponse
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			return nil, fmt.Errorf("adapter/kalshi: decode orderbook: %w", err)
		}
		// Kalshi quotes "yes" contracts; bids are descending by price,
		// "no" side is re-expressed as the complementary ask ladder.
		bids := kalshiLevelsToCanonical(raw.Yes)
		sort.Slice(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
		asks := kalshiLevelsToCanonical(raw.No)
		one := decimal.NewFromInt(1)
		for i := range asks {
			asks[i].Price = one.Sub(asks[i].Price)
		}
		sort.Slice(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })
		return domain.CanonicalBook{Bids: bids, Asks: asks}, nil
	})
	return extractorFor[domain.CanonicalBook](sub), nil
}

func kalshiLevelsToCanonical(levels []kalshiLevel) []domain.CanonicalLevel {
	out := make([]domain.CanonicalLevel, 0, len(levels))
	for _, l := range levels {
		price := decimal.New(l.Price, -2)
		qty := decimal.NewFromInt(l.Quantity)
		out = append(out, domain.CanonicalLevel{Price: price, Quantity: qty})
	}
	return out
}

type kalshiBalanceResponse struct {
	BalanceCents int64 `json:"balance"`
}

func (k *Kalshi) SubscribeBalance(ctx *runtime.StrategyContext, market MarketID) (func(map[int64]any) (domain.CanonicalBalance, bool), error) {
	req := domain.Request{
		URL:     k.baseURL + "/portfolio/balance",
		Method:  domain.RequestMethodGet,
		Headers: k.authHeaders("GET", "/portfolio/balance"),
		Sign:    "kalshi-rsa-pss",
	}
	if err := k.subscriber.Subscribe(req, pollPeriodMs); err != nil {
		return nil, fmt.Errorf("adapter/kalshi: subscribe balance: %w", err)
	}
	fp := runtime.Fingerprint{URL: req.URL}
	sub := ctx.Router().Register(fp, func(payload string) (any, error) {
		var raw kalshiBalanceResponse
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			return nil, fmt.Errorf("adapter/kalshi: decode balance: %w", err)
		}
		free := decimal.New(raw.BalanceCents, -2)
		return domain.CanonicalBalance{"USD": {Free: free, Total: free}}, nil
	})
	return extractorFor[domain.CanonicalBalance](sub), nil
}

// SubscribePosition is not exposed per-market by Kalshi's REST API in the
// shape this adapter needs; positions are settlement-derived and out of
// scope for the polling contract here.
func (k *Kalshi) SubscribePosition(ctx *runtime.StrategyContext, market MarketID) (func(map[int64]any) (domain.CanonicalPosition, bool), error) {
	return nil, ErrPositionUnsupported
}

type kalshiOrdersResponse struct {
	Orders []struct {
		OrderID        string `json:"order_id"`
		YesPrice       int64  `json:"yes_price"`
		RemainingCount int64  `json:"remaining_count"`
		Side           string `json:"side"`
	} `json:"orders"`
}

func (k *Kalshi) SubscribeOrders(ctx *runtime.StrategyContext, market MarketID) (func(map[int64]any) (domain.CanonicalOrders, bool), error) {
	req := domain.Request{
		URL:     k.baseURL + "/portfolio/orders?ticker=" + market.Base,
		Method:  domain.RequestMethodGet,
		Headers: k.authHeaders("GET", "/portfolio/orders"),
		Sign:    "kalshi-rsa-pss",
	}
	if err := k.subscriber.Subscribe(req, pollPeriodMs); err != nil {
		return nil, fmt.Errorf("adapter/kalshi: subscribe orders: %w", err)
	}
	fp := runtime.Fingerprint{URL: req.URL}
	sub := ctx.Router().Register(fp, func(payload string) (any, error) {
		var raw kalshiOrdersResponse
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			return nil, fmt.Errorf("adapter/kalshi: decode orders: %w", err)
		}
		out := make(domain.CanonicalOrders, 0, len(raw.Orders))
		for _, o := range raw.Orders {
			price := decimal.New(o.YesPrice, -2)
			amount := decimal.NewFromInt(o.RemainingCount)
			if o.Side == "no" {
				amount = amount.Neg()
			}
			out = append(out, domain.CanonicalOrder{ID: o.OrderID, Price: price, Amount: amount})
		}
		return out, nil
	})
	return extractorFor[domain.CanonicalOrders](sub), nil
}

func (k *Kalshi) LimitOrder(ctx *runtime.StrategyContext, market MarketID, side OrderSide, price, amount decimal.Decimal) (domain.CanonicalOrder, error) {
	return k.placeOrder(ctx, market, side, price, amount, "limit")
}

func (k *Kalshi) MarketOrder(ctx *runtime.StrategyContext, market MarketID, side OrderSide, amount decimal.Decimal) (domain.CanonicalOrder, error) {
	return k.placeOrder(ctx, market, side, decimal.Zero, amount, "market")
}

func (k *Kalshi) placeOrder(ctx *runtime.StrategyContext, market MarketID, side OrderSide, price, amount decimal.Decimal, orderType string) (domain.CanonicalOrder, error) {
	priceCents, _ := price.Mul(decimal.NewFromInt(100)).Round(0).Float64()
	body, err := json.Marshal(map[string]any{
		"ticker":      market.Base,
		"side":        string(side),
		"action":      "buy",
		"type":        orderType,
		"count":       amount.Abs().IntPart(),
		"yes_price":   int64(priceCents),
		"client_order_id": fmt.Sprintf("%s-%d", market.Base, time.Now().UnixNano()),
	})
	if err != nil {
		return domain.CanonicalOrder{}, fmt.Errorf("adapter/kalshi: encode order: %w", err)
	}

	req := domain.Request{
		URL:     k.baseURL + "/portfolio/orders",
		Method:  domain.RequestMethodPost,
		Body:    string(body),
		Headers: k.authHeaders("POST", "/portfolio/orders"),
		Sign:    "kalshi-rsa-pss",
	}

	resp, err := ctx.Send(req)
	if err != nil {
		return domain.CanonicalOrder{}, fmt.Errorf("adapter/kalshi: place order: %w", err)
	}

	var result struct {
		Order struct {
			OrderID string `json:"order_id"`
		} `json:"order"`
	}
	if err := json.Unmarshal([]byte(resp.(string)), &result); err != nil {
		return domain.CanonicalOrder{}, fmt.Errorf("adapter/kalshi: decode order result: %w", err)
	}

	signedAmount := amount.Abs()
	if side == Sell {
		signedAmount = signedAmount.Neg()
	}
	return domain.CanonicalOrder{ID: result.Order.OrderID, Price: price, Amount: signedAmount, Type: domain.CanonicalOrderType(orderType)}, nil
}

func (k *Kalshi) CancelOrder(ctx *runtime.StrategyContext, market MarketID, orderID string) error {
	req := domain.Request{
		URL:     k.baseURL + "/portfolio/orders/" + orderID,
		Method:  domain.RequestMethodDelete,
		Headers: k.authHeaders("DELETE", "/portfolio/orders/"+orderID),
		Sign:    "kalshi-rsa-pss",
	}
	_, err := ctx.Send(req)
	if err != nil {
		return fmt.Errorf("adapter/kalshi: cancel order %s: %w", orderID, err)
	}
	return nil
}

// authHeaders signs method+path with RSA-PSS over SHA-256, matching
// internal/platform/kalshi.Client.signRequest.
func (k *Kalshi) authHeaders(method, path string) map[string]string {
	if k.privateKey == nil {
		return nil
	}
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := ts + method + path
	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, k.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return nil
	}
	return map[string]string{
		"KALSHI-ACCESS-KEY":       k.apiKeyID,
		"KALSHI-ACCESS-SIGNATURE": base64.StdEncoding.EncodeToString(signature),
		"KALSHI-ACCESS-TIMESTAMP": ts,
	}
}
