//go:build integration

package market

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	domain "github.com/ahmethakanbesel/market-ingest/internal/market"
	"github.com/ahmethakanbesel/market-ingest/internal/platform/postgres"
)

func setupPostgres(t *testing.T) *postgres.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresRepository(t *testing.T) {
	repo := NewPostgresRepository(setupPostgres(t))
	ctx := context.Background()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	n, err := repo.SaveRecords(ctx, makeRecords(domain.SourceCoinPaprika, 3, at))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	// Replaying a batch position updates in place.
	again := makeRecords(domain.SourceCoinPaprika, 1, at)
	again[0].PriceUSD = 42
	_, err = repo.SaveRecords(ctx, again)
	require.NoError(t, err)

	got, err := repo.ListRecords(ctx, "SYM0", 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 42.0, got[0].PriceUSD)
	assert.True(t, got[0].IngestedAt.Equal(at))

	// Repeated symbols within one batch are separate rows.
	at2 := at.Add(time.Minute)
	dupes := []domain.Record{
		{Symbol: "BTC", Name: "Bitcoin", PriceUSD: 1, Source: domain.SourceCSV, IngestedAt: at2},
		{Symbol: "BTC", Name: "Bitcoin", PriceUSD: 2, Source: domain.SourceCSV, IngestedAt: at2},
	}
	n, err = repo.SaveRecords(ctx, dupes)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	btc, err := repo.ListRecords(ctx, "BTC", 0, 10)
	require.NoError(t, err)
	assert.Len(t, btc, 2)

	// A failing record rolls back the whole batch.
	bad := makeRecords(domain.SourceCoinGecko, 5, at)
	bad = append(bad, domain.Record{Symbol: "", Source: domain.SourceCoinGecko, IngestedAt: at})
	_, err = repo.SaveRecords(ctx, bad)
	require.Error(t, err)

	all, err := repo.ListRecords(ctx, "", 0, 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	s := &domain.Snapshot{Source: domain.SourceCoinPaprika, Payload: json.RawMessage(`[{"id":"btc-bitcoin"}]`), CapturedAt: at}
	require.NoError(t, repo.SaveSnapshot(ctx, s))
	assert.NotZero(t, s.ID)

	count, err := repo.CountSnapshots(ctx, domain.SourceCoinPaprika)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
