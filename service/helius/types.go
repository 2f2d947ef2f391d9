package helius

import "encoding/json"

// EnhancedTransaction is the subset of a Helius enhanced transaction we consume.
type EnhancedTransaction struct {
	Signature       string           `json:"signature"`
	Timestamp       int64            `json:"timestamp"`
	Type            string           `json:"type"`
	Fee             int64            `json:"fee"`
	FeePayer        string           `json:"feePayer"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
	// TransactionError is kept raw; its layout varies by failure kind.
	TransactionError json.RawMessage `json:"transactionError,omitempty"`
}

// NativeTransfer represents a SOL transfer.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"` // lamports
}
