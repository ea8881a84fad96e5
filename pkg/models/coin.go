package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Allamymp/coinApiPortfolio/pkg/validation"
)

// CoinQuote is one price snapshot for a single tracked symbol, as reported
// by the external price API. Quotes are ephemeral: they are consumed by
// reconciliation in the same cycle they were fetched.
type CoinQuote struct {
	SymbolID     string          `json:"symbol_id" validate:"required,coinname"`
	PriceUSD     decimal.Decimal `json:"price_usd" validate:"decimal"`
	MarketCapUSD decimal.Decimal `json:"market_cap_usd" validate:"decimal"`
	Change24hPct decimal.Decimal `json:"change_24h_pct" validate:"decimal"`
	ObservedAt   time.Time       `json:"observed_at" validate:"required"`
}

// Validate validates the CoinQuote struct
func (q CoinQuote) Validate() error {
	if errors := validation.ValidateStruct(q); len(errors) > 0 {
		return errors
	}
	return nil
}

// Sanitize cleans the CoinQuote data
func (q *CoinQuote) Sanitize() {
	q.SymbolID = validation.SanitizeString(q.SymbolID)
}

// Coin is the persisted market record for one tracked symbol. Name is the
// reconciliation join key and is unique across all coins; the store-assigned
// id is unknown until first insert.
type Coin struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name" validate:"required,coinname"`
	Price         decimal.Decimal `json:"price" validate:"decimal"`
	MarketValue   decimal.Decimal `json:"market_value" validate:"decimal"`
	Last24hChange decimal.Decimal `json:"last_24h_change" validate:"decimal"`
	LastUpdate    time.Time       `json:"last_update"`
}

// Validate validates the Coin struct
func (c Coin) Validate() error {
	if errors := validation.ValidateStruct(c); len(errors) > 0 {
		return errors
	}
	return nil
}

// Sanitize cleans the Coin data
func (c *Coin) Sanitize() {
	c.Name = validation.SanitizeString(c.Name)
}

// CoinFromQuote builds a fresh Coin carrying every field of the quote.
func CoinFromQuote(q CoinQuote) Coin {
	return Coin{
		Name:          q.SymbolID,
		Price:         q.PriceUSD,
		MarketValue:   q.MarketCapUSD,
		Last24hChange: q.Change24hPct,
		LastUpdate:    q.ObservedAt,
	}
}
