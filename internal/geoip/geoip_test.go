package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientLookupParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1.2.3.4", r.URL.Query().Get("ip"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"country":"US","is_vpn":true}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	got, err := client.Lookup(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "US", got.Country)
	assert.True(t, got.IsVPN)
}

func TestClientLookupErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Lookup(context.Background(), "1.2.3.4")
	assert.Error(t, err)
}

func TestNoopProviderAlwaysAllows(t *testing.T) {
	p := NoopProvider{}
	got, err := p.Lookup(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, got.IsVPN)
}
