package market

import (
	"encoding/json"
	"time"
)

// Source identifiers of the built-in adapters.
const (
	SourceCoinPaprika = "COINPAPRIKA"
	SourceCoinGecko   = "COINGECKO"
	SourceCSV         = "CSV_IMPORT"
)

// Record is one normalized market quote.
type Record struct {
	ID           int64     `json:"id,omitempty"`
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`
	PriceUSD     float64   `json:"price_usd"`
	MarketCapUSD float64   `json:"market_cap_usd"`
	Volume24h    float64   `json:"volume_24h"`
	Source       string    `json:"source"`
	IngestedAt   time.Time `json:"ingested_at"`
}

// Snapshot is an archived raw payload exactly as fetched.
type Snapshot struct {
	ID         int64           `json:"id"`
	Source     string          `json:"source"`
	Payload    json.RawMessage `json:"payload"`
	CapturedAt time.Time       `json:"captured_at"`
}
