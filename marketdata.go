package costbasis

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
)

// This file contains the providers backed by remote market-data services:
// CoinGecko for current token prices and Frankfurter for fiat exchange rates.
// Both are free, keyless endpoints.

// diskCache implements a simple disk cache for HTTP responses. The cache key
// includes the current day, so every entry expires at midnight.
type diskCache struct {
	base http.RoundTripper
	log  *slog.Logger
}

func (c *diskCache) RoundTrip(req *http.Request) (*http.Response, error) {
	key := fmt.Sprintf("%s %s %s", Today(), req.Method, req.URL.String())
	key = fmt.Sprintf("%x", sha1.Sum([]byte(key)))

	if cached, err := c.get(key, req); err == nil {
		return cached, nil
	}

	resp, err := c.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	c.log.Debug("market data fetched", "host", req.URL.Host, "path", req.URL.Path, "status", resp.Status)
	if resp.StatusCode >= 300 {
		return resp, nil
	}
	if err := c.put(key, resp); err != nil {
		c.log.Warn("market data cache write failed", "err", err)
	}
	return resp, nil
}

func (c *diskCache) get(key string, req *http.Request) (*http.Response, error) {
	content, err := os.ReadFile(filepath.Join(os.TempDir(), key))
	if err != nil {
		return nil, err
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewBuffer(content)), req)
}

func (c *diskCache) put(key string, resp *http.Response) error {
	content, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(os.TempDir(), key), content, 0o600)
}

// dailyClient returns an http.Client whose responses are cached on disk until
// the end of the day. Spot prices and daily rates never need to be fetched
// twice in one day.
func dailyClient(log *slog.Logger) *http.Client {
	return &http.Client{Transport: &diskCache{base: http.DefaultTransport, log: log}}
}

// jwget performs an HTTP GET and unmarshals the JSON response into data.
func jwget(ctx context.Context, client *http.Client, addr string, data any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cannot http GET %v%v: %v", resp.Request.URL.Host, resp.Request.URL.Path, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, data)
}

// coinIDs maps common token symbols to CoinGecko coin ids. Symbols missing
// here fall back to their lowercased form, which is right for most coins.
var coinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"ADA":   "cardano",
	"DOT":   "polkadot",
	"MATIC": "matic-network",
	"AVAX":  "avalanche-2",
	"USDC":  "usd-coin",
	"USDT":  "tether",
	"BNB":   "binancecoin",
	"XRP":   "ripple",
	"DOGE":  "dogecoin",
}

// CoinGeckoPrices is a PriceProvider backed by the CoinGecko simple-price
// endpoint. Responses are cached on disk for the rest of the day.
type CoinGeckoPrices struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

func NewCoinGeckoPrices(log *slog.Logger) *CoinGeckoPrices {
	if log == nil {
		log = slog.Default()
	}
	return &CoinGeckoPrices{
		baseURL: "https://api.coingecko.com/api/v3",
		client:  dailyClient(log),
		log:     log,
	}
}

func (p *CoinGeckoPrices) Price(ctx context.Context, token string) (Money, bool) {
	id, ok := coinIDs[strings.ToUpper(token)]
	if !ok {
		id = strings.ToLower(token)
	}
	addr := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", p.baseURL, url.QueryEscape(id))

	// {"bitcoin":{"usd":30123.45}}
	payload := make(map[string]map[string]decimal.Decimal)
	if err := jwget(ctx, p.client, addr, &payload); err != nil {
		p.log.Warn("price lookup failed", "token", token, "err", err)
		return Money{}, false
	}
	quote, ok := payload[id]["usd"]
	if !ok {
		return Money{}, false
	}
	return M(quote, USD), true
}

// FrankfurterRates is a RateProvider backed by the Frankfurter exchange-rate
// API. It serves reference rates for fiat currencies; the date is part of the
// request, so historical rates work too.
type FrankfurterRates struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

func NewFrankfurterRates(log *slog.Logger) *FrankfurterRates {
	if log == nil {
		log = slog.Default()
	}
	return &FrankfurterRates{
		baseURL: "https://api.frankfurter.app",
		client:  dailyClient(log),
		log:     log,
	}
}

func (r *FrankfurterRates) Rate(from, to string, on Date) (decimal.Decimal, string, bool) {
	addr := fmt.Sprintf("%s/%s?base=%s&symbols=%s", r.baseURL, on, url.QueryEscape(from), url.QueryEscape(to))

	// {"base":"USD","date":"2025-03-01","rates":{"EUR":0.9234}}
	var payload struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	if err := jwget(context.Background(), r.client, addr, &payload); err != nil {
		r.log.Warn("rate lookup failed", "from", from, "to", to, "on", on, "err", err)
		return decimal.Decimal{}, "", false
	}
	rate, ok := payload.Rates[to]
	if !ok {
		return decimal.Decimal{}, "", false
	}
	return rate, "frankfurter", true
}

var _ PriceProvider = (*CoinGeckoPrices)(nil)
var _ RateProvider = (*FrankfurterRates)(nil)
