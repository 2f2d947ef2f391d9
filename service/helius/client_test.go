package helius

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/soltrack/service/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const subject = "SubjectWa11et1111111111111111111111111111111"

func newTestClient(baseURL string) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient("test-key", baseURL, 5*time.Second, nil, logger)
}

// pagedServer serves total transactions named sig-0..sig-N, honoring limit and before.
type pagedServer struct {
	mu       sync.Mutex
	total    int
	requests []*http.Request
}

func (p *pagedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.requests = append(p.requests, r)
	p.mu.Unlock()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	start := 0
	if before := r.URL.Query().Get("before"); before != "" {
		fmt.Sscanf(before, "sig-%d", &start)
		start++
	}

	var page []EnhancedTransaction
	for i := start; i < p.total && len(page) < limit; i++ {
		page = append(page, EnhancedTransaction{
			Signature: fmt.Sprintf("sig-%d", i),
			Timestamp: int64(1700000000 - i),
			NativeTransfers: []NativeTransfer{
				{FromUserAccount: "Other", ToUserAccount: subject, Amount: 1_000_000_000},
			},
		})
	}
	json.NewEncoder(w).Encode(page)
}

func TestFetchTransactions_SinglePage(t *testing.T) {
	// Setup
	srv := &pagedServer{total: 3}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := newTestClient(ts.URL)

	// Act
	txns, err := client.FetchTransactions(context.Background(), subject, 10)

	// Assert
	require.NoError(t, err)
	require.Len(t, txns, 3)
	require.Len(t, srv.requests, 1)

	q := srv.requests[0].URL.Query()
	assert.Equal(t, "test-key", q.Get("api-key"))
	assert.Equal(t, "10", q.Get("limit"))
	assert.Empty(t, q.Get("before"))
	assert.Equal(t, "/v0/addresses/"+subject+"/transactions", srv.requests[0].URL.Path)

	first := txns[0]
	assert.Equal(t, "sig-0", first.Signature)
	assert.Equal(t, transfer.ShapeEvent, first.Shape)
	assert.Equal(t, int64(1700000000), first.Timestamp)
	require.Len(t, first.NativeTransfers, 1)
	assert.Equal(t, transfer.NativeTransfer{From: "Other", To: subject, Amount: 1_000_000_000}, first.NativeTransfers[0])
}

func TestFetchTransactions_Paginates(t *testing.T) {
	srv := &pagedServer{total: 250}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := newTestClient(ts.URL)

	txns, err := client.FetchTransactions(context.Background(), subject, 230)

	require.NoError(t, err)
	require.Len(t, txns, 230)
	require.Len(t, srv.requests, 3)
	assert.Equal(t, "100", srv.requests[0].URL.Query().Get("limit"))
	assert.Equal(t, "sig-99", srv.requests[1].URL.Query().Get("before"))
	assert.Equal(t, "30", srv.requests[2].URL.Query().Get("limit"))
	assert.Equal(t, "sig-229", txns[229].Signature)
}

func TestFetchTransactions_StopsOnShortPage(t *testing.T) {
	srv := &pagedServer{total: 120}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := newTestClient(ts.URL)

	txns, err := client.FetchTransactions(context.Background(), subject, 500)

	require.NoError(t, err)
	assert.Len(t, txns, 120)
	assert.Len(t, srv.requests, 2)
}

func TestFetchTransactions_Non200IsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer ts.Close()
	client := newTestClient(ts.URL)

	txns, err := client.FetchTransactions(context.Background(), subject, 10)

	require.Error(t, err)
	assert.Nil(t, txns)
	assert.Contains(t, err.Error(), "status 401")
}

func TestFetchTransactions_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"a list"}`))
	}))
	defer ts.Close()
	client := newTestClient(ts.URL)

	_, err := client.FetchTransactions(context.Background(), subject, 10)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding response")
}

func TestFetchTransactions_MissingFieldsStillExtract(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"signature":"no-time","nativeTransfers":[{"fromUserAccount":"` + subject + `","toUserAccount":"Other","amount":500000000}]},
			{"signature":"no-transfers","timestamp":1700000000},
			{"signature":"failed","timestamp":1700000000,"transactionError":{"InstructionError":[0,"Custom"]}}
		]`))
	}))
	defer ts.Close()
	client := newTestClient(ts.URL)

	txns, err := client.FetchTransactions(context.Background(), subject, 10)
	require.NoError(t, err)
	require.Len(t, txns, 3)

	transfers, outcomes := transfer.Extract(subject, txns)
	require.Len(t, transfers, 1)
	assert.Equal(t, transfer.NoTimestamp, transfers[0].Timestamp)
	assert.Equal(t, 0.5, transfers[0].Amount)
	assert.Equal(t, transfer.SkipNoSubjectTransfer, outcomes[1].Skip)
	assert.Equal(t, transfer.SkipNoSubjectTransfer, outcomes[2].Skip)
}
