package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Allamymp/coinApiPortfolio/pkg/logger"
	"github.com/Allamymp/coinApiPortfolio/pkg/metrics"
	"github.com/Allamymp/coinApiPortfolio/pkg/models"
)

var (
	// ErrSourceUnavailable marks transport-level failures reaching the API.
	ErrSourceUnavailable = errors.New("price source unavailable")
	// ErrMalformedResponse marks a response body that is not parseable at
	// all; the whole fetch aborts and no partial batch is returned.
	ErrMalformedResponse = errors.New("malformed price source response")
)

// Client talks to the CoinGecko REST API. The tracked symbol set is fixed at
// construction and defines the request universe for every fetch.
type Client struct {
	baseURL string
	apiKey  string
	symbols []string
	client  *http.Client
}

// New creates a CoinGecko client for the given tracked symbols.
func New(baseURL, apiKey string, symbols []string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		symbols: append([]string(nil), symbols...),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Symbols returns the tracked symbol set.
func (c *Client) Symbols() []string {
	return append([]string(nil), c.symbols...)
}

// Ping checks the API liveness endpoint. It returns nil iff the service
// answered with a success status; transport failures wrap
// ErrSourceUnavailable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		return fmt.Errorf("failed to create ping request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: ping returned status %d", ErrSourceUnavailable, resp.StatusCode)
	}
	return nil
}

// FetchQuotes issues one batched request for every tracked symbol and returns
// the parsed quotes. Symbols absent from the response, or carrying missing or
// malformed numeric fields, are skipped with a warning while the rest of the
// batch proceeds.
func (c *Client) FetchQuotes(ctx context.Context) ([]models.CoinQuote, error) {
	start := time.Now()
	defer func() {
		metrics.GeckoFetchLatency.Observe(time.Since(start).Seconds())
	}()

	params := url.Values{}
	// one comma-joined request for the whole universe, not N round-trips
	params.Add("ids", strings.Join(c.symbols, ","))
	params.Add("vs_currencies", "usd")
	params.Add("include_market_cap", "true")
	params.Add("include_24hr_change", "true")
	params.Add("include_last_updated_at", "true")

	fullURL := fmt.Sprintf("%s/simple/price?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.GeckoFetchErrors.WithLabelValues("transport").Inc()
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.GeckoFetchErrors.WithLabelValues("status").Inc()
		return nil, fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	// decode the outer object only; each symbol's detail block is parsed
	// on its own so one bad field never poisons the rest of the batch
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		metrics.GeckoFetchErrors.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	quotes := make([]models.CoinQuote, 0, len(c.symbols))
	for _, symbol := range c.symbols {
		detail, ok := raw[symbol]
		if !ok {
			logger.Log.Warn("symbol missing from price response", zap.String("symbol", symbol))
			metrics.GeckoSymbolsSkipped.Inc()
			continue
		}

		var details map[string]json.Number
		if err := json.Unmarshal(detail, &details); err != nil {
			logger.Log.Warn("skipping symbol with unparseable quote",
				zap.String("symbol", symbol), zap.Error(err))
			metrics.GeckoSymbolsSkipped.Inc()
			continue
		}

		quote, err := parseQuote(symbol, details)
		if err != nil {
			logger.Log.Warn("skipping symbol with unparseable quote",
				zap.String("symbol", symbol), zap.Error(err))
			metrics.GeckoSymbolsSkipped.Inc()
			continue
		}
		quotes = append(quotes, quote)
	}

	metrics.GeckoQuotesFetched.Add(float64(len(quotes)))
	return quotes, nil
}

// parseQuote converts one symbol's detail object into a CoinQuote.
func parseQuote(symbol string, details map[string]json.Number) (models.CoinQuote, error) {
	price, err := decimalField(details, "usd")
	if err != nil {
		return models.CoinQuote{}, err
	}
	marketCap, err := decimalField(details, "usd_market_cap")
	if err != nil {
		return models.CoinQuote{}, err
	}
	change, err := decimalField(details, "usd_24h_change")
	if err != nil {
		return models.CoinQuote{}, err
	}

	rawTS, ok := details["last_updated_at"]
	if !ok {
		return models.CoinQuote{}, fmt.Errorf("missing field last_updated_at")
	}
	epoch, err := strconv.ParseInt(rawTS.String(), 10, 64)
	if err != nil {
		return models.CoinQuote{}, fmt.Errorf("invalid last_updated_at: %w", err)
	}

	return models.CoinQuote{
		SymbolID:     symbol,
		PriceUSD:     price,
		MarketCapUSD: marketCap,
		Change24hPct: change,
		ObservedAt:   time.Unix(epoch, 0).UTC(),
	}, nil
}

// decimalField parses one numeric field as an arbitrary-precision decimal.
func decimalField(details map[string]json.Number, field string) (decimal.Decimal, error) {
	raw, ok := details[field]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("missing field %s", field)
	}
	d, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return d, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}
}
