package escrow_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/buymart/dealflow-api/internal/config"
	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/escrow"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newClient(url string) *escrow.Client {
	return escrow.NewClient(&config.EscrowConfig{
		BaseURL:                url,
		APIKey:                 "secret-key",
		TimeoutSeconds:         5,
		ReconcileAttempts:      3,
		ReconcileBackoffMillis: 1,
		UserAgent:              "dealflow-test/1.0",
	}, zap.NewNop())
}

func TestClient_Open(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transactions", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		assert.Equal(t, "dealflow-test/1.0", r.Header.Get("User-Agent"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "txn-42", "status": "created"})
	}))
	defer server.Close()

	txn, err := newClient(server.URL).Open(context.Background(), escrow.OpenRequest{
		Title:            "Business Acquisition - Corner Bakery",
		Currency:         "USD",
		BrokerCommission: decimal.NewFromInt(1000),
		Items:            []escrow.Item{{Title: "Corner Bakery", InspectionPeriod: 14, Quantity: 1, Price: decimal.NewFromInt(20000)}},
		Metadata:         map[string]string{"deal_number": "DL-2024-0001"},
	})
	require.NoError(t, err)
	assert.Equal(t, "txn-42", txn.ID)
	assert.Equal(t, domain.EscrowStatusCreated, txn.Status)
	assert.Equal(t, "1000", got["broker_commission"])
	assert.Equal(t, "USD", got["currency"])
}

func TestClient_ReleaseAndCancelPayloads(t *testing.T) {
	bodies := map[string]map[string]any{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies[r.URL.Path] = body
		status := "released"
		if body["action"] == "cancel" {
			status = "cancelled"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "txn-1", "status": status})
	}))
	defer server.Close()

	client := newClient(server.URL)
	ctx := context.Background()

	txn, err := client.Release(ctx, "txn-1", escrow.ReleaseRequest{Reason: "done", Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusReleased, txn.Status)
	assert.Equal(t, "seller", bodies["/transactions/txn-1/release"]["release_to"])
	assert.Equal(t, "done", bodies["/transactions/txn-1/release"]["reason"])

	txn, err = client.Cancel(ctx, "txn-1", escrow.CancelRequest{Reason: "buyer walked"})
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusCancelled, txn.Status)
	assert.Equal(t, "buyer", bodies["/transactions/txn-1/cancel"]["return_to"])
}

func TestClient_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "insufficient funds"})
	}))
	defer server.Close()

	_, err := newClient(server.URL).Fund(context.Background(), "txn-1", escrow.FundRequest{PaymentMethod: domain.PaymentMethodACH})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.NotErrorIs(t, err, domain.ErrProviderTimeout)
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := newClient(server.URL).WithTimeout(50 * time.Millisecond)
	_, err := client.Fund(context.Background(), "txn-1", escrow.FundRequest{PaymentMethod: domain.PaymentMethodWireTransfer})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderTimeout)
	assert.Equal(t, domain.KindProviderTimeout, domain.KindOf(err))
}

func TestClient_GetStatusRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "txn-1", "status": "disputed"})
	}))
	defer server.Close()

	txn, err := newClient(server.URL).GetStatus(context.Background(), "txn-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusDisputed, txn.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_GetStatusGivesUp(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newClient(server.URL).GetStatus(context.Background(), "txn-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_GetStatusDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newClient(server.URL).GetStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_FundOutlivesCallerCancellation(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(150 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "txn-1", "status": "funded"})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)
	defer cancel()

	txn, err := newClient(server.URL).Fund(ctx, "txn-1", escrow.FundRequest{PaymentMethod: domain.PaymentMethodWireTransfer})
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusFunded, txn.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_GetStatusCancelledIsAmbiguous(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)
	defer cancel()

	_, err := newClient(server.URL).GetStatus(ctx, "txn-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderTimeout)
}
