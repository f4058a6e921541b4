// Package coinpaprika fetches the CoinPaprika ticker list. Each fetch is a
// single attempt; the first ticker is checked for structural drift against a
// golden document.
package coinpaprika

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ahmethakanbesel/market-ingest/internal/drift"
	"github.com/ahmethakanbesel/market-ingest/internal/ingest"
	"github.com/ahmethakanbesel/market-ingest/internal/market"
	"github.com/ahmethakanbesel/market-ingest/internal/schema"
)

const (
	defaultURL   = "https://api.coinpaprika.com/v1/tickers"
	DefaultLimit = 20
)

// DefaultGolden is the reference ticker shape.
const DefaultGolden = `{
	"id": "btc-bitcoin",
	"name": "Bitcoin",
	"symbol": "BTC",
	"quotes": {
		"USD": {
			"price": 50000,
			"market_cap": 1000000000,
			"volume_24h": 500000
		}
	}
}`

var Schema = schema.Schema{
	Name: "coinpaprika ticker",
	Fields: []schema.Field{
		{Path: "id", Kind: schema.KindString},
		{Path: "name", Kind: schema.KindString},
		{Path: "symbol", Kind: schema.KindNonEmpty},
		{Path: "quotes", Kind: schema.KindObject},
		{Path: "quotes.USD", Kind: schema.KindObject},
		{Path: "quotes.USD.price", Kind: schema.KindNumber},
		{Path: "quotes.USD.market_cap", Kind: schema.KindNumber},
		{Path: "quotes.USD.volume_24h", Kind: schema.KindNumber},
	},
}

type Source struct {
	client *http.Client
	url    string
	limit  int
	golden []byte
	notify func(source string, r *drift.Report)
	now    func() time.Time

	detector *drift.Detector
}

type Option func(*Source)

func WithClient(c *http.Client) Option {
	return func(s *Source) { s.client = c }
}

func WithURL(u string) Option {
	return func(s *Source) { s.url = u }
}

// WithLimit sets how many tickers are kept from each payload. Zero or less
// keeps all of them.
func WithLimit(n int) Option {
	return func(s *Source) { s.limit = n }
}

// WithGolden replaces DefaultGolden.
func WithGolden(doc []byte) Option {
	return func(s *Source) { s.golden = doc }
}

// WithDriftNotify registers a hook called for each drift report.
func WithDriftNotify(fn func(source string, r *drift.Report)) Option {
	return func(s *Source) { s.notify = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

func New(opts ...Option) *Source {
	s := &Source{
		client: &http.Client{Timeout: 30 * time.Second},
		url:    defaultURL,
		limit:  DefaultLimit,
		golden: []byte(DefaultGolden),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	var dopts []drift.Option
	if s.notify != nil {
		dopts = append(dopts, drift.WithNotify(s.notify))
	}
	s.detector = drift.NewDetector(market.SourceCoinPaprika, s.golden, dopts...)
	return s
}

func (s *Source) Name() string { return market.SourceCoinPaprika }

func (s *Source) FetchRaw(ctx context.Context) (json.RawMessage, error) {
	raw, err := ingest.GetJSON(ctx, s.client, s.url)
	if err != nil {
		return nil, fmt.Errorf("fetch tickers: %w", err)
	}

	raw = ingest.Truncate(raw, s.limit)
	s.detector.CheckBatch(raw)
	return raw, nil
}

func (s *Source) Normalize(raw json.RawMessage) []market.Record {
	return ingest.NormalizeBatch(market.SourceCoinPaprika, raw, Schema, extract, s.now())
}

func extract(item gjson.Result) market.Record {
	usd := item.Get("quotes.USD")
	return market.Record{
		Symbol:       item.Get("symbol").String(),
		Name:         item.Get("name").String(),
		PriceUSD:     usd.Get("price").Float(),
		MarketCapUSD: usd.Get("market_cap").Float(),
		Volume24h:    usd.Get("volume_24h").Float(),
	}
}
