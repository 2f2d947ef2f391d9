package transfer

import (
	"time"
)

// FormatTimestamp converts unix seconds into the display layout in UTC.
// A zero or negative timestamp yields NoTimestamp and the zero time.
func FormatTimestamp(unix int64) (string, time.Time) {
	if unix <= 0 {
		return NoTimestamp, time.Time{}
	}
	t := time.Unix(unix, 0).UTC()
	return t.Format(TimestampLayout), t
}

// ToMajor converts lamports into SOL.
func ToMajor(lamports int64) float64 {
	return float64(lamports) / LamportsPerSOL
}

// Extract normalizes every transaction for the subject address.
// Transfers come back in source order; outcomes has one entry per input transaction.
func Extract(subject string, txns []RawTransaction) (transfers []NormalizedTransfer, outcomes []Outcome) {
	outcomes = make([]Outcome, 0, len(txns))
	for i := range txns {
		out := ExtractOne(subject, &txns[i])
		transfers = append(transfers, out.Transfers...)
		outcomes = append(outcomes, out)
	}
	return transfers, outcomes
}

// ExtractOne dispatches a single transaction to the extractor for its shape.
func ExtractOne(subject string, tx *RawTransaction) Outcome {
	if tx.FetchErr != "" {
		return Outcome{Signature: tx.Signature, Skip: SkipFetchFailed}
	}
	switch tx.Shape {
	case ShapeEvent:
		return extractEvents(subject, tx)
	case ShapeBalanceDelta:
		return extractBalanceDelta(subject, tx)
	default:
		return Outcome{Signature: tx.Signature, Skip: SkipUnknownShape}
	}
}

func extractEvents(subject string, tx *RawTransaction) Outcome {
	out := Outcome{Signature: tx.Signature}
	stamp, blockTime := FormatTimestamp(tx.Timestamp)

	for _, ev := range tx.NativeTransfers {
		if ev.From != subject && ev.To != subject {
			continue
		}
		from, to := ev.From, ev.To
		out.Transfers = append(out.Transfers, NormalizedTransfer{
			TxHash:    tx.Signature,
			Timestamp: stamp,
			BlockTime: blockTime,
			From:      &from,
			To:        &to,
			Amount:    ToMajor(ev.Amount),
			Shape:     ShapeEvent,
		})
	}

	if len(out.Transfers) == 0 {
		out.Skip = SkipNoSubjectTransfer
	}
	return out
}

func extractBalanceDelta(subject string, tx *RawTransaction) Outcome {
	out := Outcome{Signature: tx.Signature}

	if tx.Meta == nil {
		out.Skip = SkipMissingMeta
		return out
	}
	if tx.Message == nil {
		out.Skip = SkipMissingTransaction
		return out
	}

	idx := -1
	for i, acct := range tx.Message.Accounts {
		if acct == subject {
			idx = i
			break
		}
	}
	if idx < 0 {
		out.Skip = SkipSubjectNotFound
		return out
	}
	if idx >= len(tx.Meta.PreBalances) || idx >= len(tx.Meta.PostBalances) {
		out.Skip = SkipIndexOutOfRange
		return out
	}

	delta := tx.Meta.PostBalances[idx] - tx.Meta.PreBalances[idx]
	if delta == 0 {
		out.Skip = SkipZeroDelta
		return out
	}

	stamp, blockTime := FormatTimestamp(tx.Timestamp)
	out.Transfers = []NormalizedTransfer{{
		TxHash:    tx.Signature,
		Timestamp: stamp,
		BlockTime: blockTime,
		Amount:    ToMajor(delta),
		Shape:     ShapeBalanceDelta,
	}}
	return out
}

// Skipped returns only the outcomes that yielded nothing.
func Skipped(outcomes []Outcome) []Outcome {
	var skipped []Outcome
	for _, o := range outcomes {
		if !o.OK() {
			skipped = append(skipped, Outcome{Signature: o.Signature, Skip: o.Skip})
		}
	}
	return skipped
}
