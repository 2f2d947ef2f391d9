package transfer

// TokenActivities lists the post-transaction token balances owned by subject,
// one entry per matching snapshot, in source order.
func TokenActivities(subject string, txns []RawTransaction) []TokenActivity {
	var out []TokenActivity
	for _, tx := range txns {
		if tx.Meta == nil {
			continue
		}
		stamp, _ := FormatTimestamp(tx.Timestamp)
		for _, bal := range tx.Meta.PostTokenBalances {
			if bal.Owner != subject {
				continue
			}
			amount := bal.UIAmount
			if amount == "" {
				amount = bal.Amount
			}
			out = append(out, TokenActivity{
				Timestamp: stamp,
				Mint:      bal.Mint,
				Amount:    amount,
				TxHash:    tx.Signature,
			})
		}
	}
	return out
}
