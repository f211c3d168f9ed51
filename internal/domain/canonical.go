package domain

import "github.com/shopspring/decimal"

// The types in this file are the canonical external-interface shapes a
// router subscription parses fetcher payloads into. They are deliberately
// lighter than the persistence-oriented Position type elsewhere in this
// package: adapters produce these from raw exchange JSON, and the
// router's change detection depends on their Equal methods rather than on
// reflect.DeepEqual.

// CanonicalLevel is one (price, quantity) entry in a CanonicalBook.
type CanonicalLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

func (l CanonicalLevel) equal(other CanonicalLevel) bool {
	return l.Price.Equal(other.Price) && l.Quantity.Equal(other.Quantity)
}

// CanonicalBook is the order book shape: bids ordered descending, asks
// ordered ascending. Equality is element-wise in order.
type CanonicalBook struct {
	Bids []CanonicalLevel
	Asks []CanonicalLevel
}

// Equal reports whether other is a CanonicalBook with identical bids and
// asks, compared element-wise in order.
func (b CanonicalBook) Equal(other any) bool {
	o, ok := other.(CanonicalBook)
	if !ok {
		return false
	}
	if len(b.Bids) != len(o.Bids) || len(b.Asks) != len(o.Asks) {
		return false
	}
	for i := range b.Bids {
		if !b.Bids[i].equal(o.Bids[i]) {
			return false
		}
	}
	for i := range b.Asks {
		if !b.Asks[i].equal(o.Asks[i]) {
			return false
		}
	}
	return true
}

// AssetBalance is one asset's balance entry within a CanonicalBalance.
// Debt is optional; its zero value means "no debt reported".
type AssetBalance struct {
	Free   decimal.Decimal
	Locked decimal.Decimal
	Total  decimal.Decimal
	Debt   decimal.Decimal
}

func (a AssetBalance) isZero() bool {
	return a.Free.IsZero() && a.Locked.IsZero() && a.Total.IsZero() && a.Debt.IsZero()
}

func (a AssetBalance) equal(other AssetBalance) bool {
	return a.Free.Equal(other.Free) && a.Locked.Equal(other.Locked) &&
		a.Total.Equal(other.Total) && a.Debt.Equal(other.Debt)
}

// CanonicalBalance maps asset to its balance entry, with a default of
// all-zeros for assets absent from the map.
type CanonicalBalance map[string]AssetBalance

// Equal compares by the union of asset keys, treating a missing key as the
// zero AssetBalance.
func (b CanonicalBalance) Equal(other any) bool {
	o, ok := other.(CanonicalBalance)
	if !ok {
		return false
	}
	for asset := range unionStringKeys(mapKeysBalance(b), mapKeysBalance(o)) {
		if !b.entryFor(asset).equal(o.entryFor(asset)) {
			return false
		}
	}
	return true
}

func (b CanonicalBalance) entryFor(asset string) AssetBalance {
	v, ok := b[asset]
	if !ok {
		return AssetBalance{}
	}
	return v
}

// CanonicalPosition maps symbol to signed quantity, with a default of zero
// for symbols absent from the map.
type CanonicalPosition map[string]decimal.Decimal

// Equal compares by the union of symbol keys, treating a missing key as
// zero.
func (p CanonicalPosition) Equal(other any) bool {
	o, ok := other.(CanonicalPosition)
	if !ok {
		return false
	}
	for symbol := range unionStringKeys(mapKeysDecimal(p), mapKeysDecimal(o)) {
		if !p[symbol].Equal(o[symbol]) {
			return false
		}
	}
	return true
}

// CanonicalOrderType is an optional order-level time-in-force/type marker.
type CanonicalOrderType string

// CanonicalOrder is one resting or historical order: amount is signed,
// positive for buy and negative for sell.
type CanonicalOrder struct {
	ID     string
	Price  decimal.Decimal
	Amount decimal.Decimal
	Type   CanonicalOrderType
}

// CanonicalOrders is a snapshot of open orders. Equality compares by the
// set of order IDs present, not order or count of duplicates.
type CanonicalOrders []CanonicalOrder

// Equal compares two CanonicalOrders by their set of IDs.
func (os CanonicalOrders) Equal(other any) bool {
	o, ok := other.(CanonicalOrders)
	if !ok {
		return false
	}
	ids := make(map[string]struct{}, len(os))
	for _, ord := range os {
		ids[ord.ID] = struct{}{}
	}
	otherIDs := make(map[string]struct{}, len(o))
	for _, ord := range o {
		if _, present := ids[ord.ID]; !present {
			return false
		}
		otherIDs[ord.ID] = struct{}{}
	}
	return len(ids) == len(otherIDs)
}

func mapKeysBalance(m CanonicalBalance) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func mapKeysDecimal(m CanonicalPosition) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func unionStringKeys(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}
