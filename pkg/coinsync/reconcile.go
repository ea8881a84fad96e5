package coinsync

import (
	"time"

	"github.com/Allamymp/coinApiPortfolio/pkg/models"
)

// Update pairs the merged coin row with the field names that changed,
// keeping the write log explainable.
type Update struct {
	Coin          models.Coin
	ChangedFields []string
}

// Plan is the output of one reconciliation pass: the exact writes needed to
// bring the store in line with the fetched quotes, and nothing more.
type Plan struct {
	Inserts   []models.Coin
	Updates   []Update
	Unchanged []string
}

// Empty reports whether the plan carries no writes.
func (p Plan) Empty() bool {
	return len(p.Inserts) == 0 && len(p.Updates) == 0
}

// Reconcile diffs fetched quotes against the stored rows, keyed by coin name.
// Quotes with no stored counterpart become inserts. For known coins the four
// tracked fields are compared; numeric comparison is by value, so 100.00 and
// 100.0 are equal. A zero-valued field on either side counts as different,
// which lets a later cycle repair a partially written row. Stored coins with
// no quote in this batch are left alone.
func Reconcile(quotes []models.CoinQuote, existing map[string]models.Coin) Plan {
	var plan Plan
	for _, q := range quotes {
		current, ok := existing[q.SymbolID]
		if !ok {
			plan.Inserts = append(plan.Inserts, models.CoinFromQuote(q))
			continue
		}

		incoming := models.CoinFromQuote(q)
		changed := diffFields(current, incoming)
		if len(changed) == 0 {
			plan.Unchanged = append(plan.Unchanged, q.SymbolID)
			continue
		}

		merged := current
		merged.Price = incoming.Price
		merged.MarketValue = incoming.MarketValue
		merged.Last24hChange = incoming.Last24hChange
		merged.LastUpdate = incoming.LastUpdate
		plan.Updates = append(plan.Updates, Update{Coin: merged, ChangedFields: changed})
	}
	return plan
}

func diffFields(current, incoming models.Coin) []string {
	var changed []string
	// Decimal comparison is by numeric value. A zero value stands for a
	// field that was never written, and zero-vs-anything-else differs, so
	// an incomplete row is always rewritten.
	if !current.Price.Equal(incoming.Price) {
		changed = append(changed, "price")
	}
	if !current.MarketValue.Equal(incoming.MarketValue) {
		changed = append(changed, "market_value")
	}
	if !current.Last24hChange.Equal(incoming.Last24hChange) {
		changed = append(changed, "last_24h_change")
	}
	if timeDiffers(current.LastUpdate, incoming.LastUpdate) {
		changed = append(changed, "last_update")
	}
	return changed
}

// timeDiffers treats a zero timestamp on exactly one side as a difference so
// a row that never recorded its source timestamp gets repaired.
func timeDiffers(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() != b.IsZero()
	}
	return !a.Equal(b)
}
