package market

import "github.com/ahmethakanbesel/market-ingest/internal/schema"

// RecordSchema is the shape of a Record's JSON form.
var RecordSchema = schema.Schema{
	Name: "record",
	Fields: []schema.Field{
		{Path: "symbol", Kind: schema.KindNonEmpty},
		{Path: "name", Kind: schema.KindString},
		{Path: "price_usd", Kind: schema.KindNumber},
		{Path: "market_cap_usd", Kind: schema.KindNumber},
		{Path: "volume_24h", Kind: schema.KindNumber},
		{Path: "source", Kind: schema.KindNonEmpty},
		{Path: "ingested_at", Kind: schema.KindNonEmpty},
	},
}
