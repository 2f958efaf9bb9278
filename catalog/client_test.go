package catalog_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azenco/stock-ledger/catalog"
	"github.com/azenco/stock-ledger/ledger"
)

func newServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/users/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":1,"name":"Aysel"}`))
	})
	mux.HandleFunc("/products/10", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":10,"name":"Cement M400","code":"CEM-400","unit":"kg","unitPrice":"5.25"}`))
	})
	mux.HandleFunc("/products/13", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_ResolvesOwnersAndProducts(t *testing.T) {
	var calls int32
	c := catalog.New(newServer(t, &calls).URL, time.Second)
	ctx := context.Background()

	owner, err := c.GetOwner(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ledger.Identity{ID: 1, Name: "Aysel"}, owner)

	p, err := c.GetProduct(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "CEM-400", p.Code)
	assert.Equal(t, "kg", p.Unit)
	assert.Equal(t, "5.25", p.UnitPrice.String())
}

func TestClient_MapsFailures(t *testing.T) {
	var calls int32
	c := catalog.New(newServer(t, &calls).URL, time.Second)
	ctx := context.Background()

	// WHEN: The resource does not exist
	_, err := c.GetOwner(ctx, 2)
	assert.True(t, errors.Is(err, ledger.ErrOwnerNotFound))
	_, err = c.GetProduct(ctx, 99)
	assert.True(t, errors.Is(err, ledger.ErrProductNotFound))

	// WHEN: The upstream fails
	_, err = c.GetProduct(ctx, 13)

	// THEN: The error is transient and the request was retried
	assert.Equal(t, ledger.KindTransient, ledger.KindOf(err))
	assert.True(t, ledger.IsRetryable(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}
