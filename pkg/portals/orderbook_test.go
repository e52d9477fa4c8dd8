package portals

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderBookSubmit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/orders", r.URL.Path)

		var order SignedOrder
		require.NoError(t, json.NewDecoder(r.Body).Decode(&order))
		assert.Equal(t, "0xsig", order.Signature)
		assert.Equal(t, uint64(1), order.ChainID)

		w.Write([]byte(`{"orderId":"order-123"}`))
	}))
	defer server.Close()

	client := NewOrderBookClient(server.URL, time.Second)
	id, err := client.Submit(context.Background(), SignedOrder{ChainID: 1, Signature: "0xsig"})
	require.NoError(t, err)
	assert.Equal(t, "order-123", id)
}

func TestOrderBookSubmitMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewOrderBookClient(server.URL, time.Second)
	_, err := client.Submit(context.Background(), SignedOrder{})
	assert.Error(t, err)
}

func TestOrderBookStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders/order-123", r.URL.Path)
		w.Write([]byte(`{"status":"fulfilled"}`))
	}))
	defer server.Close()

	client := NewOrderBookClient(server.URL, time.Second)
	status, err := client.Status(context.Background(), "order-123")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusFulfilled, status)
}
