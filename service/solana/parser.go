package solana

import (
	"strconv"

	"github.com/brojonat/soltrack/service/transfer"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// convertTransaction maps an RPC transaction result to the balance-delta shape.
// Missing sub-objects stay nil so extraction can report why the transaction was skipped.
func convertTransaction(sig *rpc.TransactionSignature, result *rpc.GetTransactionResult) transfer.RawTransaction {
	raw := transfer.RawTransaction{
		Signature: sig.Signature.String(),
		Timestamp: blockTime(sig, result),
		Shape:     transfer.ShapeBalanceDelta,
	}
	if result == nil {
		return raw
	}

	var accounts []string
	if result.Transaction != nil {
		if tx, err := result.Transaction.GetTransaction(); err == nil && tx != nil {
			accounts = appendKeys(accounts, tx.Message.AccountKeys)
			raw.Message = &transfer.Message{Accounts: accounts}
		}
	}

	if result.Meta != nil {
		raw.Meta = convertMeta(result.Meta)
		// Addresses loaded from lookup tables follow the static keys: writable first, then read-only.
		if raw.Message != nil {
			raw.Message.Accounts = appendKeys(raw.Message.Accounts, result.Meta.LoadedAddresses.Writable)
			raw.Message.Accounts = appendKeys(raw.Message.Accounts, result.Meta.LoadedAddresses.ReadOnly)
		}
	}

	return raw
}

// failedTransaction records a signature whose details could not be fetched.
func failedTransaction(sig *rpc.TransactionSignature, err error) transfer.RawTransaction {
	return transfer.RawTransaction{
		Signature: sig.Signature.String(),
		Timestamp: blockTime(sig, nil),
		Shape:     transfer.ShapeBalanceDelta,
		FetchErr:  err.Error(),
	}
}

func blockTime(sig *rpc.TransactionSignature, result *rpc.GetTransactionResult) int64 {
	if result != nil && result.BlockTime != nil {
		return int64(*result.BlockTime)
	}
	if sig != nil && sig.BlockTime != nil {
		return int64(*sig.BlockTime)
	}
	return 0
}

func appendKeys(dst []string, keys []solana.PublicKey) []string {
	for _, k := range keys {
		dst = append(dst, k.String())
	}
	return dst
}

func convertMeta(m *rpc.TransactionMeta) *transfer.Meta {
	meta := &transfer.Meta{
		PreBalances:  toInt64s(m.PreBalances),
		PostBalances: toInt64s(m.PostBalances),
	}
	for _, tb := range m.PostTokenBalances {
		bal := transfer.TokenBalance{
			AccountIndex: int(tb.AccountIndex),
			Mint:         tb.Mint.String(),
		}
		if tb.Owner != nil {
			bal.Owner = tb.Owner.String()
		}
		if tb.UiTokenAmount != nil {
			bal.Amount = tb.UiTokenAmount.Amount
			bal.Decimals = int(tb.UiTokenAmount.Decimals)
			bal.UIAmount = uiAmount(tb.UiTokenAmount)
		}
		meta.PostTokenBalances = append(meta.PostTokenBalances, bal)
	}
	return meta
}

func uiAmount(a *rpc.UiTokenAmount) string {
	if a.UiAmountString != "" {
		return a.UiAmountString
	}
	if a.UiAmount != nil {
		return strconv.FormatFloat(*a.UiAmount, 'f', -1, 64)
	}
	return ""
}

func toInt64s(in []uint64) []int64 {
	if in == nil {
		return nil
	}
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}

