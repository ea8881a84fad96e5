package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCoinFromQuote_CarriesAllFields(t *testing.T) {
	observed := time.Unix(1719400000, 0).UTC()
	q := CoinQuote{
		SymbolID:     "bitcoin",
		PriceUSD:     decimal.RequireFromString("61234.123456"),
		MarketCapUSD: decimal.RequireFromString("1207000000000.5"),
		Change24hPct: decimal.RequireFromString("-1.25"),
		ObservedAt:   observed,
	}

	coin := CoinFromQuote(q)
	if coin.Name != "bitcoin" {
		t.Errorf("Name = %q; want %q", coin.Name, "bitcoin")
	}
	if !coin.Price.Equal(q.PriceUSD) {
		t.Errorf("Price = %v; want %v", coin.Price, q.PriceUSD)
	}
	if !coin.MarketValue.Equal(q.MarketCapUSD) {
		t.Errorf("MarketValue = %v; want %v", coin.MarketValue, q.MarketCapUSD)
	}
	if !coin.Last24hChange.Equal(q.Change24hPct) {
		t.Errorf("Last24hChange = %v; want %v", coin.Last24hChange, q.Change24hPct)
	}
	if !coin.LastUpdate.Equal(observed) {
		t.Errorf("LastUpdate = %v; want %v", coin.LastUpdate, observed)
	}
	if coin.ID != 0 {
		t.Errorf("ID = %d; want 0 before insert", coin.ID)
	}
}

func TestCoinValidate_BadName(t *testing.T) {
	coin := Coin{Name: "Not A Slug!"}
	if err := coin.Validate(); err == nil {
		t.Fatal("expected validation error for bad coin name")
	}
}

func TestClientValidate(t *testing.T) {
	cases := []struct {
		name    string
		req     RegisterRequest
		wantErr bool
	}{
		{"valid", RegisterRequest{Email: "a@b.com", Password: "secret1"}, false},
		{"bad email", RegisterRequest{Email: "nope", Password: "secret1"}, true},
		{"short password", RegisterRequest{Email: "a@b.com", Password: "abc"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.req.Validate()
			if (err != nil) != c.wantErr {
				t.Errorf("err = %v; wantErr %v", err, c.wantErr)
			}
		})
	}
}
