package coinsync

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Allamymp/coinApiPortfolio/pkg/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func quote(name, price string, observed time.Time) models.CoinQuote {
	return models.CoinQuote{
		SymbolID:     name,
		PriceUSD:     dec(price),
		MarketCapUSD: dec("1000000"),
		Change24hPct: dec("1.5"),
		ObservedAt:   observed,
	}
}

func storedFrom(q models.CoinQuote, id int64) models.Coin {
	c := models.CoinFromQuote(q)
	c.ID = id
	return c
}

func TestReconcile_InsertsUnknownCoins(t *testing.T) {
	ts := time.Unix(1756700000, 0).UTC()
	quotes := []models.CoinQuote{
		quote("bitcoin", "61000.5", ts),
		quote("ethereum", "2450", ts),
	}

	plan := Reconcile(quotes, map[string]models.Coin{})
	require.Len(t, plan.Inserts, 2)
	assert.Empty(t, plan.Updates)
	assert.Empty(t, plan.Unchanged)
	assert.Equal(t, "bitcoin", plan.Inserts[0].Name)
	assert.True(t, plan.Inserts[0].Price.Equal(dec("61000.5")))
	assert.Equal(t, ts, plan.Inserts[0].LastUpdate)
}

func TestReconcile_NoOpWhenIdentical(t *testing.T) {
	ts := time.Unix(1756700000, 0).UTC()
	q := quote("bitcoin", "61000.5", ts)
	existing := map[string]models.Coin{"bitcoin": storedFrom(q, 7)}

	plan := Reconcile([]models.CoinQuote{q}, existing)
	assert.True(t, plan.Empty())
	assert.Equal(t, []string{"bitcoin"}, plan.Unchanged)
}

func TestReconcile_DecimalEqualityIgnoresScale(t *testing.T) {
	ts := time.Unix(1756700000, 0).UTC()
	stored := storedFrom(quote("bitcoin", "100.00", ts), 7)
	incoming := quote("bitcoin", "100.0", ts)

	plan := Reconcile([]models.CoinQuote{incoming}, map[string]models.Coin{"bitcoin": stored})
	assert.True(t, plan.Empty())
}

func TestReconcile_UpdateReportsChangedFields(t *testing.T) {
	ts := time.Unix(1756700000, 0).UTC()
	stored := storedFrom(quote("bitcoin", "61000.5", ts), 7)
	incoming := quote("bitcoin", "62000", ts.Add(time.Minute))

	plan := Reconcile([]models.CoinQuote{incoming}, map[string]models.Coin{"bitcoin": stored})
	require.Len(t, plan.Updates, 1)
	upd := plan.Updates[0]
	assert.Equal(t, []string{"price", "last_update"}, upd.ChangedFields)
	assert.Equal(t, int64(7), upd.Coin.ID)
	assert.True(t, upd.Coin.Price.Equal(dec("62000")))
	assert.Equal(t, ts.Add(time.Minute), upd.Coin.LastUpdate)
}

func TestReconcile_ZeroStoredFieldForcesUpdate(t *testing.T) {
	ts := time.Unix(1756700000, 0).UTC()
	stored := storedFrom(quote("bitcoin", "61000.5", ts), 7)
	stored.MarketValue = decimal.Decimal{}
	incoming := quote("bitcoin", "61000.5", ts)

	plan := Reconcile([]models.CoinQuote{incoming}, map[string]models.Coin{"bitcoin": stored})
	require.Len(t, plan.Updates, 1)
	assert.Equal(t, []string{"market_value"}, plan.Updates[0].ChangedFields)
}

func TestReconcile_ZeroStoredTimestampForcesUpdate(t *testing.T) {
	ts := time.Unix(1756700000, 0).UTC()
	stored := storedFrom(quote("bitcoin", "61000.5", ts), 7)
	stored.LastUpdate = time.Time{}
	incoming := quote("bitcoin", "61000.5", ts)

	plan := Reconcile([]models.CoinQuote{incoming}, map[string]models.Coin{"bitcoin": stored})
	require.Len(t, plan.Updates, 1)
	assert.Equal(t, []string{"last_update"}, plan.Updates[0].ChangedFields)
}

func TestReconcile_LeavesUnquotedCoinsAlone(t *testing.T) {
	ts := time.Unix(1756700000, 0).UTC()
	existing := map[string]models.Coin{
		"bitcoin":  storedFrom(quote("bitcoin", "61000.5", ts), 1),
		"dogecoin": storedFrom(quote("dogecoin", "0.12", ts), 2),
	}

	plan := Reconcile([]models.CoinQuote{quote("bitcoin", "61000.5", ts)}, existing)
	assert.True(t, plan.Empty())
	assert.Equal(t, []string{"bitcoin"}, plan.Unchanged)
}

func TestReconcile_Idempotent(t *testing.T) {
	ts := time.Unix(1756700000, 0).UTC()
	quotes := []models.CoinQuote{
		quote("bitcoin", "61000.5", ts),
		quote("ethereum", "2450", ts),
	}

	first := Reconcile(quotes, map[string]models.Coin{})
	existing := make(map[string]models.Coin, len(first.Inserts))
	for i, c := range first.Inserts {
		c.ID = int64(i + 1)
		existing[c.Name] = c
	}

	second := Reconcile(quotes, existing)
	assert.True(t, second.Empty())
	assert.Len(t, second.Unchanged, 2)
}
