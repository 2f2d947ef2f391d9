package transfer

import (
	"time"
)

// LamportsPerSOL is the number of smallest units in one major unit.
const LamportsPerSOL = 1_000_000_000

// TimestampLayout is the display layout for transfer timestamps (always UTC).
const TimestampLayout = "2006-01-02 15:04:05"

// NoTimestamp is shown when a transaction carries no block time.
const NoTimestamp = "N/A"

// Shape identifies which of the two source record layouts a RawTransaction uses.
type Shape int

const (
	// ShapeUnknown is the zero value and is always skipped.
	ShapeUnknown Shape = iota
	// ShapeEvent records carry explicit native transfer events (indexing API).
	ShapeEvent
	// ShapeBalanceDelta records carry pre/post balances aligned to an accounts list (JSON-RPC).
	ShapeBalanceDelta
)

// String returns the wire name of the shape.
func (s Shape) String() string {
	switch s {
	case ShapeEvent:
		return "event"
	case ShapeBalanceDelta:
		return "balance_delta"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so shapes serialize by name.
func (s Shape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Shape) UnmarshalText(b []byte) error {
	switch string(b) {
	case "event":
		*s = ShapeEvent
	case "balance_delta":
		*s = ShapeBalanceDelta
	default:
		*s = ShapeUnknown
	}
	return nil
}

// NativeTransfer is a single native SOL movement reported by an indexing API.
type NativeTransfer struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"` // lamports
}

// Message holds the account list of a transaction.
type Message struct {
	Accounts []string `json:"accounts"`
}

// TokenBalance is a post-transaction token balance snapshot for one token account.
type TokenBalance struct {
	AccountIndex int    `json:"account_index"`
	Owner        string `json:"owner"`
	Mint         string `json:"mint"`
	Amount       string `json:"amount"`    // raw integer amount
	UIAmount     string `json:"ui_amount"` // decimal-adjusted, may be empty
	Decimals     int    `json:"decimals"`
}

// Meta holds balance information. PreBalances and PostBalances are indexed like Message.Accounts.
type Meta struct {
	PreBalances       []int64        `json:"pre_balances"`
	PostBalances      []int64        `json:"post_balances"`
	PostTokenBalances []TokenBalance `json:"post_token_balances,omitempty"`
}

// RawTransaction is a transaction as delivered by a data source, before normalization.
// Which fields are meaningful depends on Shape. For ShapeBalanceDelta a nil Message or Meta
// means the corresponding sub-object was absent from the source payload.
type RawTransaction struct {
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"` // unix seconds, 0 when absent
	Shape     Shape  `json:"shape"`

	NativeTransfers []NativeTransfer `json:"native_transfers,omitempty"`

	Message *Message `json:"message,omitempty"`
	Meta    *Meta    `json:"meta,omitempty"`

	// FetchErr is set by sources when the detail lookup failed; the transaction is skipped.
	FetchErr string `json:"fetch_err,omitempty"`
}

// NormalizedTransfer is one transfer attributable to the subject address.
type NormalizedTransfer struct {
	TxHash    string    `json:"tx_hash"`
	Timestamp string    `json:"timestamp"`
	BlockTime time.Time `json:"block_time"`
	From      *string   `json:"from,omitempty"`
	To        *string   `json:"to,omitempty"`
	Amount    float64   `json:"amount"` // major unit, signed for balance deltas
	Shape     Shape     `json:"shape"`
	FiatValue float64   `json:"fiat_value"`
}

// ProfitSummary aggregates the subject's transfers.
type ProfitSummary struct {
	Received float64 `json:"received"`
	Sent     float64 `json:"sent"`
	Net      float64 `json:"net"`
}

// FiatSummary is ProfitSummary expressed in the fiat currency.
type FiatSummary struct {
	Rate     float64 `json:"rate"`
	Received float64 `json:"received"`
	Sent     float64 `json:"sent"`
	Net      float64 `json:"net"`
}

// TokenActivity is one token balance snapshot owned by the subject.
type TokenActivity struct {
	Timestamp string `json:"timestamp"`
	Mint      string `json:"mint"`
	Amount    string `json:"amount"`
	TxHash    string `json:"tx_hash"`
}

// SkipReason explains why a transaction produced no transfers.
type SkipReason string

const (
	SkipMissingMeta        SkipReason = "missing_meta"
	SkipMissingTransaction SkipReason = "missing_transaction"
	SkipSubjectNotFound    SkipReason = "subject_not_found"
	SkipIndexOutOfRange    SkipReason = "index_out_of_range"
	SkipZeroDelta          SkipReason = "zero_delta"
	SkipNoSubjectTransfer  SkipReason = "no_subject_transfer"
	SkipUnknownShape       SkipReason = "unknown_shape"
	SkipFetchFailed        SkipReason = "fetch_failed"
)

// Outcome is the result of normalizing a single transaction.
// Skip is empty when the transaction yielded at least one transfer.
type Outcome struct {
	Signature string               `json:"signature"`
	Transfers []NormalizedTransfer `json:"transfers,omitempty"`
	Skip      SkipReason           `json:"skip,omitempty"`
}

// OK reports whether the transaction yielded transfers.
func (o Outcome) OK() bool {
	return o.Skip == ""
}
