package strategylib

import (
	"math"

	"github.com/shopspring/decimal"
)

// priceTracker keeps a bounded rolling window of mid-price samples for one
// market and derives the mean/standard deviation MeanReversion trades off
// of. A push-based equivalent keeps its window per-asset across an
// OnBookUpdate callback in a shared map; here MeanReversion creates one
// tracker per entry and its closure holds it, outside the strategy's local
// Store, so the samples persist across a restart of the task.
type priceTracker struct {
	window  int
	samples []float64
}

func newPriceTracker(window int) *priceTracker {
	if window <= 0 {
		window = 30
	}
	return &priceTracker{window: window}
}

func (t *priceTracker) observe(mid float64) {
	t.samples = append(t.samples, mid)
	if len(t.samples) > t.window {
		t.samples = t.samples[len(t.samples)-t.window:]
	}
}

func (t *priceTracker) mean() float64 {
	if len(t.samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range t.samples {
		sum += v
	}
	return sum / float64(len(t.samples))
}

func (t *priceTracker) stddev() float64 {
	n := len(t.samples)
	if n < 2 {
		return 0
	}
	m := t.mean()
	var sumSq float64
	for _, v := range t.samples {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n))
}

func (t *priceTracker) ready() bool {
	return len(t.samples) >= 2
}

func midFromBook(bestBid, bestAsk decimal.Decimal) float64 {
	mid, _ := bestBid.Add(bestAsk).Div(decimal.NewFromInt(2)).Float64()
	return mid
}
