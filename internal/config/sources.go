package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	KindCoinPaprika = "coinpaprika"
	KindCoinGecko   = "coingecko"
	KindCSV         = "csv"
)

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

// Source configures one adapter. Zero values select the adapter's defaults.
type Source struct {
	Name    string        `yaml:"name"`
	Kind    string        `yaml:"kind"`
	URL     string        `yaml:"url"`
	Path    string        `yaml:"path"`
	// Limit caps the elements kept per payload. Unset selects the adapter
	// default; zero or less keeps every element.
	Limit *int `yaml:"limit"`
	Timeout time.Duration `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"retry"`
	// OnExhaustion is "degrade" (default) or "fail".
	OnExhaustion string `yaml:"on_exhaustion"`
	// Golden is the reference document for drift detection.
	Golden map[string]any `yaml:"golden"`
}

// GoldenJSON returns the golden document as JSON, or nil if none is set.
func (s Source) GoldenJSON() ([]byte, error) {
	if len(s.Golden) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(s.Golden)
	if err != nil {
		return nil, fmt.Errorf("source %s: encode golden: %w", s.Name, err)
	}
	return b, nil
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// DefaultSources mirrors the built-in pipeline order.
func DefaultSources() []Source {
	return []Source{
		{Name: "COINPAPRIKA", Kind: KindCoinPaprika},
		{Name: "CSV_IMPORT", Kind: KindCSV, Path: "data/historical_data.csv"},
		{Name: "COINGECKO", Kind: KindCoinGecko},
	}
}

// LoadSources reads the sources file. A missing file yields DefaultSources.
func LoadSources(path string) ([]Source, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("sources file not found, using defaults", "path", path)
		return DefaultSources(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return LoadSourcesFromReader(f)
}

func LoadSourcesFromReader(r io.Reader) ([]Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal sources file: %w", err)
	}
	if len(file.Sources) == 0 {
		return nil, errors.New("sources file: no sources defined")
	}

	seen := make(map[string]bool, len(file.Sources))
	for i := range file.Sources {
		s := &file.Sources[i]
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			s.Name = defaultName(s.Kind)
		}
		if err := s.validate(); err != nil {
			return nil, err
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("sources file: duplicate source %q", s.Name)
		}
		seen[s.Name] = true
	}
	return file.Sources, nil
}

func defaultName(kind string) string {
	switch kind {
	case KindCoinPaprika:
		return "COINPAPRIKA"
	case KindCoinGecko:
		return "COINGECKO"
	case KindCSV:
		return "CSV_IMPORT"
	default:
		return ""
	}
}

func (s Source) validate() error {
	switch s.Kind {
	case KindCoinPaprika, KindCoinGecko:
	case KindCSV:
		if s.Path == "" {
			return fmt.Errorf("sources file: source %q: path is required", s.Name)
		}
	default:
		return fmt.Errorf("sources file: source %q: unknown kind %q", s.Name, s.Kind)
	}
	if s.Retry.MaxAttempts < 0 || s.Retry.BaseDelay < 0 || s.Timeout < 0 {
		return fmt.Errorf("sources file: source %q: negative retry or timeout", s.Name)
	}
	switch s.OnExhaustion {
	case "", "degrade", "fail":
	default:
		return fmt.Errorf("sources file: source %q: on_exhaustion must be degrade or fail", s.Name)
	}
	return nil
}
