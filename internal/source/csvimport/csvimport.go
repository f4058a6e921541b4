// Package csvimport reads historical quotes from a local CSV file. The first
// row is the header; every following row becomes one JSON object keyed by
// header.
package csvimport

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ahmethakanbesel/market-ingest/internal/ingest"
	"github.com/ahmethakanbesel/market-ingest/internal/market"
	"github.com/ahmethakanbesel/market-ingest/internal/schema"
)

const DefaultPath = "data/historical_data.csv"

var Schema = schema.Schema{
	Name: "csv row",
	Fields: []schema.Field{
		{Path: "symbol", Kind: schema.KindNonEmpty},
		{Path: "name", Kind: schema.KindString},
		{Path: "price", Kind: schema.KindDecimal},
		{Path: "market_cap", Kind: schema.KindDecimal},
		{Path: "vol_24", Kind: schema.KindDecimal},
	},
}

type Source struct {
	path string
	now  func() time.Time
}

type Option func(*Source)

func WithPath(p string) Option {
	return func(s *Source) { s.path = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

func New(opts ...Option) *Source {
	s := &Source{
		path: DefaultPath,
		now:  time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Source) Name() string { return market.SourceCSV }

func (s *Source) Path() string { return s.path }

// FetchRaw reads the whole file. I/O and parse errors are returned as is;
// there is no retry.
func (s *Source) FetchRaw(ctx context.Context) (json.RawMessage, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	rows := []map[string]string{}
	for row, err := range Rows(f) {
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.path, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", s.path, err)
	}
	slog.Info("read csv file", "source", market.SourceCSV, "path", s.path, "rows", len(rows))
	return raw, nil
}

func (s *Source) Normalize(raw json.RawMessage) []market.Record {
	return ingest.NormalizeBatch(market.SourceCSV, raw, Schema, extract, s.now())
}

func extract(item gjson.Result) market.Record {
	return market.Record{
		Symbol:       item.Get("symbol").String(),
		Name:         item.Get("name").String(),
		PriceUSD:     parseDecimal(item.Get("price").String()),
		MarketCapUSD: parseDecimal(item.Get("market_cap").String()),
		Volume24h:    parseDecimal(item.Get("vol_24").String()),
	}
}

func parseDecimal(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

// Rows yields each data row of r as a header-keyed map. Short rows omit the
// missing columns and extra cells are dropped. An empty input yields nothing.
func Rows(r io.Reader) iter.Seq2[map[string]string, error] {
	return func(yield func(map[string]string, error) bool) {
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true

		header, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			yield(nil, fmt.Errorf("header: %w", err))
			return
		}
		for i, h := range header {
			if i == 0 {
				h = strings.TrimPrefix(h, "\ufeff")
			}
			header[i] = strings.TrimSpace(h)
		}

		for {
			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}

			row := make(map[string]string, len(header))
			for i, cell := range rec {
				if i >= len(header) {
					break
				}
				row[header[i]] = cell
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}
