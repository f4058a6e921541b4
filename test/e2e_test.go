package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ahmethakanbesel/market-ingest/internal/config"
	"github.com/ahmethakanbesel/market-ingest/internal/job"
	"github.com/ahmethakanbesel/market-ingest/internal/market"
	"github.com/ahmethakanbesel/market-ingest/internal/observability"
	"github.com/ahmethakanbesel/market-ingest/internal/pipeline"
	"github.com/ahmethakanbesel/market-ingest/internal/platform/sqlite"
	jobrepo "github.com/ahmethakanbesel/market-ingest/internal/repository/job"
	marketrepo "github.com/ahmethakanbesel/market-ingest/internal/repository/market"
	"github.com/ahmethakanbesel/market-ingest/internal/server"
	"github.com/ahmethakanbesel/market-ingest/internal/source"
)

const historicalCSV = "symbol,name,price,market_cap,vol_24\n" +
	"btc,Bitcoin,50000.5,1000000000,500000\n" +
	"eth,Ethereum,not-a-number,1,1\n" +
	"sol,Solana,150,70000000,9000\n"

func tickers(n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := range n {
		out = append(out, map[string]any{
			"id":     fmt.Sprintf("coin-%d", i),
			"name":   fmt.Sprintf("Coin %d", i),
			"symbol": fmt.Sprintf("c%d", i),
			"quotes": map[string]any{"USD": map[string]any{
				"price": float64(i) + 0.5, "market_cap": 1000, "volume_24h": 10,
			}},
		})
	}
	return out
}

type e2e struct {
	ts            *httptest.Server
	geckoRequests *atomic.Int32
}

func setupE2E(t *testing.T) *e2e {
	t.Helper()

	paprika := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		list := tickers(25)
		list[3]["quotes"] = nil
		_ = json.NewEncoder(w).Encode(list)
	}))
	t.Cleanup(paprika.Close)

	geckoRequests := &atomic.Int32{}
	gecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		geckoRequests.Add(1)
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(gecko.Close)

	csvPath := filepath.Join(t.TempDir(), "historical_data.csv")
	if err := os.WriteFile(csvPath, []byte(historicalCSV), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	metrics := observability.NewMetrics("e2e", prometheus.NewRegistry())
	registry, err := source.Build([]config.Source{
		{Name: market.SourceCoinPaprika, Kind: config.KindCoinPaprika, URL: paprika.URL},
		{Name: market.SourceCSV, Kind: config.KindCSV, Path: csvPath},
		{Name: market.SourceCoinGecko, Kind: config.KindCoinGecko, URL: gecko.URL,
			Retry: config.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}},
	}, source.Hooks{OnDrift: metrics.RecordDrift})
	if err != nil {
		t.Fatalf("build sources: %v", err)
	}

	jobs := jobrepo.NewRepository(db.DB)
	records := marketrepo.NewRepository(db.DB)
	tracker := job.NewTracker(jobs)
	p := pipeline.New(registry, tracker, records, pipeline.WithMetrics(metrics))
	scheduler := pipeline.NewScheduler(p, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(done)
	}()
	// Cleanup runs LIFO: stop scheduler and wait for it before db.Close.
	t.Cleanup(func() {
		cancel()
		<-done
	})

	ts := httptest.NewServer(server.NewHandler(server.Deps{
		Records: market.NewService(records),
		Jobs:    job.NewService(jobs, job.WithInProgress(tracker.InProgress)),
		Sources: registry,
		Trigger: scheduler,
		Ping:    db.Ping,
		Metrics: metrics,
	}))
	t.Cleanup(ts.Close)

	return &e2e{ts: ts, geckoRequests: geckoRequests}
}

func getJSON[T any](t *testing.T, url string) T {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: expected 200, got %d", url, resp.StatusCode)
	}
	var result server.APIResponse[T]
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return result.Data
}

// waitForRuns polls /stats until want runs exist and none is still STARTED.
func waitForRuns(t *testing.T, baseURL string, want int64) *job.StatsResponse {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d finished runs", want)
		default:
		}

		stats := getJSON[job.StatsResponse](t, baseURL+"/stats")
		s := stats.Summary
		if s.TotalRuns == want && s.InProgressRuns == 0 && s.InterruptedRuns == 0 {
			return &stats
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestE2E_Health(t *testing.T) {
	env := setupE2E(t)

	resp, err := http.Get(env.ts.URL + "/health") //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestE2E_ListSources(t *testing.T) {
	env := setupE2E(t)

	names := getJSON[[]string](t, env.ts.URL+"/api/v1/sources")
	want := []string{market.SourceCoinPaprika, market.SourceCSV, market.SourceCoinGecko}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, names)
	}
}

func TestE2E_TriggeredRun(t *testing.T) {
	env := setupE2E(t)

	resp, err := http.Post(env.ts.URL+"/api/v1/pipeline/run", "application/json", nil) //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	stats := waitForRuns(t, env.ts.URL, 3)
	if stats.Summary.SuccessRate != "100.0%" {
		t.Errorf("expected 100.0%% success rate, got %s", stats.Summary.SuccessRate)
	}

	processed := map[string]int64{}
	for _, r := range stats.RecentRuns {
		if r.Status != job.StatusSuccess {
			t.Errorf("%s: expected SUCCESS, got %s (%s)", r.Source, r.Status, r.ErrorMessage)
		}
		if r.RecordsProcessed != nil {
			processed[r.Source] = *r.RecordsProcessed
		}
		if r.DurationMS == nil {
			t.Errorf("%s: expected duration_ms", r.Source)
		}
	}

	// 25 tickers truncated to 20, one without quotes.
	if processed[market.SourceCoinPaprika] != 19 {
		t.Errorf("coinpaprika: expected 19 records, got %d", processed[market.SourceCoinPaprika])
	}
	if processed[market.SourceCSV] != 2 {
		t.Errorf("csv: expected 2 records, got %d", processed[market.SourceCSV])
	}
	// Exhausted retries degrade to an empty batch.
	if processed[market.SourceCoinGecko] != 0 {
		t.Errorf("coingecko: expected 0 records, got %d", processed[market.SourceCoinGecko])
	}
	if n := env.geckoRequests.Load(); n != 3 {
		t.Errorf("coingecko: expected 3 attempts, got %d", n)
	}

	data := getJSON[market.ListRecordsResponse](t, env.ts.URL+"/data?limit=100")
	if len(data.Records) != 21 {
		t.Fatalf("expected 21 records, got %d", len(data.Records))
	}
	if data.RequestID == "" {
		t.Error("expected request_id")
	}

	btc := getJSON[market.ListRecordsResponse](t, env.ts.URL+"/data?symbol=btc")
	if len(btc.Records) != 1 || btc.Records[0].PriceUSD != 50000.5 || btc.Records[0].Source != market.SourceCSV {
		t.Errorf("unexpected BTC records: %+v", btc.Records)
	}
}

func TestE2E_JobLookup(t *testing.T) {
	env := setupE2E(t)

	resp, err := http.Post(env.ts.URL+"/api/v1/pipeline/run", "application/json", nil) //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	_ = resp.Body.Close()
	waitForRuns(t, env.ts.URL, 3)

	runs := getJSON[[]job.Run](t, env.ts.URL+"/api/v1/jobs?source="+market.SourceCSV)
	if len(runs) != 1 {
		t.Fatalf("expected 1 CSV run, got %d", len(runs))
	}

	run := getJSON[job.Run](t, fmt.Sprintf("%s/api/v1/jobs/%d", env.ts.URL, runs[0].ID))
	if run.Status != job.StatusSuccess || run.EndTime == nil {
		t.Errorf("expected finished SUCCESS run, got %+v", run)
	}

	missing, err := http.Get(env.ts.URL + "/api/v1/jobs/99999") //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	_ = missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", missing.StatusCode)
	}
}
