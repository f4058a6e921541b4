package ingest

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ahmethakanbesel/market-ingest/internal/market"
	"github.com/ahmethakanbesel/market-ingest/internal/schema"
)

// Extractor maps one validated element to a record. Source and IngestedAt
// are filled in by NormalizeBatch.
type Extractor func(item gjson.Result) market.Record

// EmptyBatch returns an empty JSON array.
func EmptyBatch() json.RawMessage {
	return json.RawMessage("[]")
}

// NormalizeBatch validates every element of a JSON array against s and maps
// the valid ones with extract. Invalid elements are dropped. Non-array input
// yields an empty, non-nil slice. All records share one ingestion timestamp.
func NormalizeBatch(source string, raw json.RawMessage, s schema.Schema, extract Extractor, now time.Time) []market.Record {
	doc := gjson.ParseBytes(raw)
	if !json.Valid(raw) || !doc.IsArray() {
		slog.Debug("normalize: payload is not a list", "source", source)
		return []market.Record{}
	}

	now = now.UTC()
	records := make([]market.Record, 0, len(doc.Array()))
	var discarded int
	doc.ForEach(func(_, item gjson.Result) bool {
		if err := schema.ValidateResult(s, item); err != nil {
			discarded++
			return true
		}

		rec := extract(item)
		rec.Symbol = strings.ToUpper(strings.TrimSpace(rec.Symbol))
		if rec.Symbol == "" {
			discarded++
			return true
		}
		rec.Source = source
		rec.IngestedAt = now
		if rec.PriceUSD < 0 {
			slog.Warn("normalize: negative price", "source", source, "symbol", rec.Symbol, "price", rec.PriceUSD)
		}
		records = append(records, rec)
		return true
	})

	slog.Debug("normalize: batch done", "source", source, "valid", len(records), "discarded", discarded)
	return records
}

// BatchLen returns the number of elements of a JSON array, or 0.
func BatchLen(raw json.RawMessage) int {
	doc := gjson.ParseBytes(raw)
	if !doc.IsArray() {
		return 0
	}
	return len(doc.Array())
}

// Truncate keeps the first n elements of a JSON array. Anything else, or
// n <= 0, is returned unchanged.
func Truncate(raw json.RawMessage, n int) json.RawMessage {
	doc := gjson.ParseBytes(raw)
	if n <= 0 || !doc.IsArray() {
		return raw
	}
	items := doc.Array()
	if len(items) <= n {
		return raw
	}

	var b strings.Builder
	b.WriteByte('[')
	for i, item := range items[:n] {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(item.Raw)
	}
	b.WriteByte(']')
	return json.RawMessage(b.String())
}
