// Package source builds the ingest registry from source configuration.
package source

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ahmethakanbesel/market-ingest/internal/config"
	"github.com/ahmethakanbesel/market-ingest/internal/drift"
	"github.com/ahmethakanbesel/market-ingest/internal/ingest"
	"github.com/ahmethakanbesel/market-ingest/internal/retry"
	"github.com/ahmethakanbesel/market-ingest/internal/source/coingecko"
	"github.com/ahmethakanbesel/market-ingest/internal/source/coinpaprika"
	"github.com/ahmethakanbesel/market-ingest/internal/source/csvimport"
)

const defaultTimeout = 30 * time.Second

// Hooks are optional callbacks attached to every adapter that supports them.
type Hooks struct {
	OnDrift func(source string, r *drift.Report)
}

// Build creates one adapter per configured source, in configuration order.
func Build(sources []config.Source, hooks Hooks) (*ingest.Registry, error) {
	reg := ingest.NewRegistry()
	for _, sc := range sources {
		s, err := build(sc, hooks)
		if err != nil {
			return nil, err
		}
		reg.Register(s)
	}
	return reg, nil
}

func build(sc config.Source, hooks Hooks) (ingest.Source, error) {
	timeout := sc.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	switch sc.Kind {
	case config.KindCoinPaprika:
		opts := []coinpaprika.Option{coinpaprika.WithClient(client)}
		if sc.URL != "" {
			opts = append(opts, coinpaprika.WithURL(sc.URL))
		}
		if sc.Limit != nil {
			opts = append(opts, coinpaprika.WithLimit(*sc.Limit))
		}
		golden, err := sc.GoldenJSON()
		if err != nil {
			return nil, err
		}
		if golden != nil {
			opts = append(opts, coinpaprika.WithGolden(golden))
		}
		if hooks.OnDrift != nil {
			opts = append(opts, coinpaprika.WithDriftNotify(hooks.OnDrift))
		}
		return named(sc.Name, coinpaprika.New(opts...)), nil

	case config.KindCoinGecko:
		opts := []coingecko.Option{
			coingecko.WithClient(client),
			coingecko.WithRetryPolicy(retry.Policy{
				MaxAttempts: sc.Retry.MaxAttempts,
				BaseDelay:   sc.Retry.BaseDelay,
			}),
		}
		if sc.URL != "" {
			opts = append(opts, coingecko.WithURL(sc.URL))
		}
		if sc.OnExhaustion == "fail" {
			opts = append(opts, coingecko.WithExhaustionPolicy(coingecko.FailOnExhaustion))
		}
		return named(sc.Name, coingecko.New(opts...)), nil

	case config.KindCSV:
		return named(sc.Name, csvimport.New(csvimport.WithPath(sc.Path))), nil

	default:
		return nil, fmt.Errorf("build source %q: unknown kind %q", sc.Name, sc.Kind)
	}
}

// named overrides the registry name of s when the configuration gives the
// source a different one. Records keep the adapter's own source identifier.
func named(name string, s ingest.Source) ingest.Source {
	if name == "" || name == s.Name() {
		return s
	}
	return renamed{Source: s, name: name}
}

type renamed struct {
	ingest.Source
	name string
}

func (r renamed) Name() string { return r.name }
