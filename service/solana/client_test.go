package solana

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/soltrack/service/transfer"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	mu           sync.Mutex
	signatures   []*rpc.TransactionSignature
	sigErr       error
	transactions map[string]*rpc.GetTransactionResult
	failures     map[string][]error // returned in order before the transaction
	calls        map[string]int
	legacyCalls  int
}

func (m *mockRPCClient) GetSignaturesForAddress(
	ctx context.Context,
	address solana.PublicKey,
	opts *rpc.GetSignaturesForAddressOpts,
) ([]*rpc.TransactionSignature, error) {
	if m.sigErr != nil {
		return nil, m.sigErr
	}
	return m.signatures, nil
}

func (m *mockRPCClient) GetTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetTransactionOpts,
) (*rpc.GetTransactionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := signature.String()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[key]++
	if opts.MaxSupportedTransactionVersion == nil {
		m.legacyCalls++
	}
	if errs := m.failures[key]; len(errs) > 0 {
		m.failures[key] = errs[1:]
		return nil, errs[0]
	}
	return m.transactions[key], nil
}

func (m *mockRPCClient) callsFor(sig solana.Signature) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[sig.String()]
}

func newTestClient(mock *mockRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient(mock, "test", 2, 1000, nil, logger)
	c.baseBackoff = time.Millisecond
	return c
}

// makeTransactionEnvelope builds a TransactionResultEnvelope from a Transaction.
// Since TransactionResultEnvelope has unexported fields, we use JSON marshaling.
func makeTransactionEnvelope(tx *solana.Transaction) (*rpc.TransactionResultEnvelope, error) {
	txJSON, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}

	var temp struct {
		Transaction json.RawMessage `json:"transaction"`
	}
	temp.Transaction = txJSON

	envelopeJSON, err := json.Marshal(temp)
	if err != nil {
		return nil, err
	}

	var result rpc.GetTransactionResult
	if err := json.Unmarshal(envelopeJSON, &result); err != nil {
		return nil, err
	}

	return result.Transaction, nil
}

func blockTimePtr(unix int64) *solana.UnixTimeSeconds {
	t := solana.UnixTimeSeconds(unix)
	return &t
}

func transferResult(t *testing.T, from, to solana.PublicKey, pre, post []uint64, unix int64) *rpc.GetTransactionResult {
	t.Helper()
	envelope, err := makeTransactionEnvelope(&solana.Transaction{
		Message: solana.Message{
			AccountKeys: []solana.PublicKey{from, to, solana.SystemProgramID},
		},
	})
	require.NoError(t, err)
	return &rpc.GetTransactionResult{
		Slot:        100,
		BlockTime:   blockTimePtr(unix),
		Transaction: envelope,
		Meta: &rpc.TransactionMeta{
			PreBalances:  pre,
			PostBalances: post,
		},
	}
}

func TestFetchTransactions_PreservesOrder(t *testing.T) {
	ctx := context.Background()

	// Setup
	subject := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()
	sig1 := solana.Signature{1}
	sig2 := solana.Signature{2}
	sig3 := solana.Signature{3}

	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{
			{Signature: sig1, Slot: 102, BlockTime: blockTimePtr(1700000300)},
			{Signature: sig2, Slot: 101, BlockTime: blockTimePtr(1700000200)},
			{Signature: sig3, Slot: 100, BlockTime: blockTimePtr(1700000100)},
		},
		transactions: map[string]*rpc.GetTransactionResult{
			sig1.String(): transferResult(t, subject, other, []uint64{5_000_000_000, 0, 1}, []uint64{3_000_000_000, 2_000_000_000, 1}, 1700000300),
			sig2.String(): transferResult(t, other, subject, []uint64{9, 0, 1}, []uint64{4, 5, 1}, 1700000200),
			sig3.String(): transferResult(t, subject, other, []uint64{7, 7, 1}, []uint64{7, 7, 1}, 1700000100),
		},
	}
	client := newTestClient(mock)

	// Act
	txns, err := client.FetchTransactions(ctx, subject.String(), 10)

	// Assert
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, sig1.String(), txns[0].Signature)
	assert.Equal(t, sig2.String(), txns[1].Signature)
	assert.Equal(t, sig3.String(), txns[2].Signature)

	first := txns[0]
	assert.Equal(t, transfer.ShapeBalanceDelta, first.Shape)
	assert.Equal(t, int64(1700000300), first.Timestamp)
	assert.Empty(t, first.FetchErr)
	require.NotNil(t, first.Message)
	assert.Equal(t, []string{subject.String(), other.String(), solana.SystemProgramID.String()}, first.Message.Accounts)
	require.NotNil(t, first.Meta)
	assert.Equal(t, []int64{5_000_000_000, 0, 1}, first.Meta.PreBalances)
	assert.Equal(t, []int64{3_000_000_000, 2_000_000_000, 1}, first.Meta.PostBalances)
}

func TestFetchTransactions_FeedsExtraction(t *testing.T) {
	ctx := context.Background()

	// Setup
	subject := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()
	sig := solana.Signature{9}

	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{{Signature: sig}},
		transactions: map[string]*rpc.GetTransactionResult{
			sig.String(): transferResult(t, subject, other, []uint64{5_000_000_000, 0, 1}, []uint64{3_000_000_000, 2_000_000_000, 1}, 1700000000),
		},
	}
	client := newTestClient(mock)

	// Act
	txns, err := client.FetchTransactions(ctx, subject.String(), 1)
	require.NoError(t, err)
	transfers, _ := transfer.Extract(subject.String(), txns)

	// Assert
	require.Len(t, transfers, 1)
	assert.Equal(t, -2.0, transfers[0].Amount)
	assert.Equal(t, "2023-11-14 22:13:20", transfers[0].Timestamp)
	assert.Nil(t, transfers[0].From)
	assert.Nil(t, transfers[0].To)
}

func TestFetchTransactions_InvalidAddress(t *testing.T) {
	client := newTestClient(&mockRPCClient{})

	_, err := client.FetchTransactions(context.Background(), "not-a-key", 10)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid address")
}

func TestFetchTransactions_SignatureError(t *testing.T) {
	client := newTestClient(&mockRPCClient{sigErr: errors.New("connection refused")})

	_, err := client.FetchTransactions(context.Background(), solana.NewWallet().PublicKey().String(), 10)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFetchTransactions_DetailFailureIsRecordedNotFatal(t *testing.T) {
	ctx := context.Background()

	// Setup
	subject := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()
	bad := solana.Signature{1}
	good := solana.Signature{2}

	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{
			{Signature: bad, BlockTime: blockTimePtr(1700000000)},
			{Signature: good},
		},
		transactions: map[string]*rpc.GetTransactionResult{
			good.String(): transferResult(t, other, subject, []uint64{9, 0, 1}, []uint64{4, 5, 1}, 1700000000),
		},
		failures: map[string][]error{
			bad.String(): {errors.New("timeout"), errors.New("timeout"), errors.New("timeout")},
		},
	}
	client := newTestClient(mock)

	// Act
	txns, err := client.FetchTransactions(ctx, subject.String(), 10)

	// Assert
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "timeout", txns[0].FetchErr)
	assert.Equal(t, int64(1700000000), txns[0].Timestamp)
	assert.Nil(t, txns[0].Meta)
	assert.Empty(t, txns[1].FetchErr)
	assert.Equal(t, maxAttempts, mock.callsFor(bad))

	_, outcomes := transfer.Extract(subject.String(), txns)
	assert.Equal(t, transfer.SkipFetchFailed, outcomes[0].Skip)
	assert.True(t, outcomes[1].OK())
}

func TestFetchTransactions_RetriesAfterRateLimit(t *testing.T) {
	ctx := context.Background()

	subject := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()
	sig := solana.Signature{4}

	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{{Signature: sig}},
		transactions: map[string]*rpc.GetTransactionResult{
			sig.String(): transferResult(t, other, subject, []uint64{9, 0, 1}, []uint64{4, 5, 1}, 1700000000),
		},
		failures: map[string][]error{
			sig.String(): {errors.New("429 Too Many Requests")},
		},
	}
	client := newTestClient(mock)

	txns, err := client.FetchTransactions(ctx, subject.String(), 1)

	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Empty(t, txns[0].FetchErr)
	assert.Equal(t, 2, mock.callsFor(sig))
}

func TestFetchTransactions_LegacyFallback(t *testing.T) {
	ctx := context.Background()

	subject := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()
	sig := solana.Signature{5}

	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{{Signature: sig}},
		transactions: map[string]*rpc.GetTransactionResult{
			sig.String(): transferResult(t, other, subject, []uint64{9, 0, 1}, []uint64{4, 5, 1}, 1700000000),
		},
		failures: map[string][]error{
			sig.String(): {errors.New(`expects '"' or 'n', but found '{'`)},
		},
	}
	client := newTestClient(mock)

	txns, err := client.FetchTransactions(ctx, subject.String(), 1)

	require.NoError(t, err)
	assert.Empty(t, txns[0].FetchErr)
	assert.Equal(t, 1, mock.legacyCalls)
}

func TestFetchTransactions_NotFound(t *testing.T) {
	sig := solana.Signature{6}
	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{{Signature: sig}},
	}
	client := newTestClient(mock)

	txns, err := client.FetchTransactions(context.Background(), solana.NewWallet().PublicKey().String(), 1)

	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "transaction not found", txns[0].FetchErr)
}

func TestFetchTransactions_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{{Signature: solana.Signature{7}}},
	}
	client := newTestClient(mock)

	_, err := client.FetchTransactions(ctx, solana.NewWallet().PublicKey().String(), 1)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
