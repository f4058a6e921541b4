// Package coingecko fetches the CoinGecko markets endpoint with retries.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ahmethakanbesel/market-ingest/internal/ingest"
	"github.com/ahmethakanbesel/market-ingest/internal/market"
	"github.com/ahmethakanbesel/market-ingest/internal/retry"
	"github.com/ahmethakanbesel/market-ingest/internal/schema"
)

const defaultURL = "https://api.coingecko.com/api/v3/coins/markets?vs_currency=usd&order=market_cap_desc&per_page=10&page=1&sparkline=false"

// ExhaustionPolicy decides what FetchRaw returns once retries are spent.
type ExhaustionPolicy int

const (
	// DegradeOnExhaustion returns an empty batch and no error.
	DegradeOnExhaustion ExhaustionPolicy = iota
	// FailOnExhaustion returns the last transport error.
	FailOnExhaustion
)

func (p ExhaustionPolicy) String() string {
	if p == FailOnExhaustion {
		return "fail"
	}
	return "degrade"
}

var Schema = schema.Schema{
	Name: "coingecko market",
	Fields: []schema.Field{
		{Path: "id", Kind: schema.KindString},
		{Path: "symbol", Kind: schema.KindNonEmpty},
		{Path: "name", Kind: schema.KindString},
		{Path: "current_price", Kind: schema.KindNumber},
		{Path: "market_cap", Kind: schema.KindNumber},
		{Path: "total_volume", Kind: schema.KindNumber},
	},
}

type Source struct {
	client     *http.Client
	url        string
	policy     retry.Policy
	exhaustion ExhaustionPolicy
	retryOpts  []retry.Option
	now        func() time.Time

	executor *retry.Executor
}

type Option func(*Source)

func WithClient(c *http.Client) Option {
	return func(s *Source) { s.client = c }
}

func WithURL(u string) Option {
	return func(s *Source) { s.url = u }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Source) { s.policy = p }
}

// WithRetryOptions passes options to the underlying retry executor.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(s *Source) { s.retryOpts = append(s.retryOpts, opts...) }
}

func WithExhaustionPolicy(p ExhaustionPolicy) Option {
	return func(s *Source) { s.exhaustion = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

func New(opts ...Option) *Source {
	s := &Source{
		client:     &http.Client{Timeout: 30 * time.Second},
		url:        defaultURL,
		policy:     retry.DefaultPolicy(),
		exhaustion: DegradeOnExhaustion,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.executor = retry.New(market.SourceCoinGecko, s.policy, s.retryOpts...)
	return s
}

func (s *Source) Name() string { return market.SourceCoinGecko }

func (s *Source) FetchRaw(ctx context.Context) (json.RawMessage, error) {
	out := retry.Do(ctx, s.executor, func(ctx context.Context) (json.RawMessage, error) {
		return ingest.GetJSON(ctx, s.client, s.url)
	}, ingest.EmptyBatch())

	switch {
	case out.Err == nil:
		return out.Value, nil
	case out.Cancelled:
		return nil, fmt.Errorf("fetch markets: %w", out.Err)
	case s.exhaustion == DegradeOnExhaustion:
		slog.Warn("degrading to empty batch", "source", market.SourceCoinGecko,
			"attempts", out.Attempts, "error", out.Err)
		return out.Value, nil
	default:
		return nil, fmt.Errorf("fetch markets after %d attempts: %w", out.Attempts, out.Err)
	}
}

func (s *Source) Normalize(raw json.RawMessage) []market.Record {
	return ingest.NormalizeBatch(market.SourceCoinGecko, raw, Schema, extract, s.now())
}

func extract(item gjson.Result) market.Record {
	return market.Record{
		Symbol:       item.Get("symbol").String(),
		Name:         item.Get("name").String(),
		PriceUSD:     item.Get("current_price").Float(),
		MarketCapUSD: item.Get("market_cap").Float(),
		Volume24h:    item.Get("total_volume").Float(),
	}
}
