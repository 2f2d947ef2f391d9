package transfer

import (
	"fmt"
	"math"
	"sort"
)

// Summarize aggregates the transfers attributable to subject.
//
// Event transfers are attributed by endpoint: an amount counts as received when To is the
// subject and as sent when From is the subject, so a self-transfer counts in both.
// Balance-delta transfers are attributed by sign.
func Summarize(subject string, transfers []NormalizedTransfer) ProfitSummary {
	var s ProfitSummary
	for _, t := range transfers {
		switch t.Shape {
		case ShapeEvent:
			if t.To != nil && *t.To == subject {
				s.Received += t.Amount
			}
			if t.From != nil && *t.From == subject {
				s.Sent += t.Amount
			}
		case ShapeBalanceDelta:
			if t.Amount > 0 {
				s.Received += t.Amount
			} else if t.Amount < 0 {
				s.Sent += -t.Amount
			}
		}
	}
	s.Net = s.Received - s.Sent
	return s
}

// SanitizeRate maps unusable rates (NaN, Inf, negative) to zero.
func SanitizeRate(rate float64) float64 {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return 0
	}
	return rate
}

// ApplyRate sets FiatValue on every transfer in place and returns the fiat summary.
// A zero rate produces zero fiat figures throughout.
func ApplyRate(transfers []NormalizedTransfer, summary ProfitSummary, rate float64) FiatSummary {
	rate = SanitizeRate(rate)
	for i := range transfers {
		transfers[i].FiatValue = transfers[i].Amount * rate
	}
	return FiatSummary{
		Rate:     rate,
		Received: summary.Received * rate,
		Sent:     summary.Sent * rate,
		Net:      summary.Net * rate,
	}
}

// SortByTimeDesc orders transfers newest first. Transfers without a block time go last;
// ties keep source order.
func SortByTimeDesc(transfers []NormalizedTransfer) {
	sort.SliceStable(transfers, func(i, j int) bool {
		a, b := transfers[i].BlockTime, transfers[j].BlockTime
		if a.IsZero() != b.IsZero() {
			return !a.IsZero()
		}
		return a.After(b)
	})
}

// FormatAmount renders a figure with the fixed four decimal places used for display.
func FormatAmount(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
