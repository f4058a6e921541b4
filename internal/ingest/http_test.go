package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`[{"id":"btc-bitcoin"}]`))
	}))
	defer ts.Close()

	body, err := GetJSON(context.Background(), ts.Client(), ts.URL)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"btc-bitcoin"}]`, string(body))
}

func TestGetJSON_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"rate limited", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTooManyRequests) }},
		{"not json", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("<html>")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			_, err := GetJSON(context.Background(), ts.Client(), ts.URL)
			assert.ErrorIs(t, err, ErrTransport)
		})
	}
}

func TestGetJSON_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := GetJSON(context.Background(), http.DefaultClient, url)
	assert.ErrorIs(t, err, ErrTransport)
}
