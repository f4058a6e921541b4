package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmethakanbesel/market-ingest/internal/market"
)

type namedSource string

func (n namedSource) Name() string { return string(n) }

func (n namedSource) FetchRaw(context.Context) (json.RawMessage, error) { return EmptyBatch(), nil }

func (n namedSource) Normalize(json.RawMessage) []market.Record { return nil }

func TestRegistry_Order(t *testing.T) {
	r := NewRegistry()
	r.Register(namedSource("COINPAPRIKA"))
	r.Register(namedSource("CSV_IMPORT"))
	r.Register(namedSource("COINGECKO"))
	r.Register(namedSource("CSV_IMPORT"))

	assert.Equal(t, []string{"COINPAPRIKA", "CSV_IMPORT", "COINGECKO"}, r.Names())
	assert.Equal(t, 3, r.Len())

	sources := r.Sources()
	require.Len(t, sources, 3)
	assert.Equal(t, "COINGECKO", sources[2].Name())
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Register(namedSource("COINGECKO"))

	s, err := r.Get("COINGECKO")
	require.NoError(t, err)
	assert.Equal(t, "COINGECKO", s.Name())

	_, err = r.Get("missing")
	assert.Error(t, err)
}
