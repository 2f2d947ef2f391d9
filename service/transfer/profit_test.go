package transfer

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestSummarize_SelfTransferCountsBothWays(t *testing.T) {
	transfers := []NormalizedTransfer{
		{From: strPtr(subject), To: strPtr(subject), Amount: 1.25, Shape: ShapeEvent},
	}

	s := Summarize(subject, transfers)

	assert.Equal(t, 1.25, s.Received)
	assert.Equal(t, 1.25, s.Sent)
	assert.Equal(t, 0.0, s.Net)
}

func TestSummarize_SelfTransferLeavesNetUnchanged(t *testing.T) {
	base := []NormalizedTransfer{
		{From: strPtr("X"), To: strPtr(subject), Amount: 3, Shape: ShapeEvent},
		{From: strPtr(subject), To: strPtr("Y"), Amount: 1, Shape: ShapeEvent},
	}
	withSelf := append(append([]NormalizedTransfer{}, base...),
		NormalizedTransfer{From: strPtr(subject), To: strPtr(subject), Amount: 7, Shape: ShapeEvent},
	)

	before := Summarize(subject, base)
	after := Summarize(subject, withSelf)

	assert.Equal(t, before.Net, after.Net)
	assert.Equal(t, before.Received+7, after.Received)
	assert.Equal(t, before.Sent+7, after.Sent)
}

func TestSummarize_BalanceDeltaBySign(t *testing.T) {
	transfers := []NormalizedTransfer{
		{Amount: 2.5, Shape: ShapeBalanceDelta},
		{Amount: -0.75, Shape: ShapeBalanceDelta},
		{Amount: -0.25, Shape: ShapeBalanceDelta},
	}

	s := Summarize(subject, transfers)

	assert.Equal(t, 2.5, s.Received)
	assert.Equal(t, 1.0, s.Sent)
	assert.Equal(t, 1.5, s.Net)
}

func TestSummarize_NetIsReceivedMinusSent(t *testing.T) {
	inputs := [][]NormalizedTransfer{
		nil,
		{{Amount: 0.1, Shape: ShapeBalanceDelta}, {Amount: -0.2, Shape: ShapeBalanceDelta}, {Amount: 0.3, Shape: ShapeBalanceDelta}},
		{{From: strPtr("X"), To: strPtr(subject), Amount: 0.3333, Shape: ShapeEvent}, {From: strPtr(subject), To: strPtr("X"), Amount: 0.1111, Shape: ShapeEvent}},
	}

	for _, in := range inputs {
		s := Summarize(subject, in)
		assert.Equal(t, s.Received-s.Sent, s.Net)
		assert.GreaterOrEqual(t, s.Received, 0.0)
		assert.GreaterOrEqual(t, s.Sent, 0.0)
	}
}

func TestApplyRate(t *testing.T) {
	t.Run("fiat equals major times rate", func(t *testing.T) {
		transfers := []NormalizedTransfer{
			{Amount: 2, Shape: ShapeBalanceDelta},
			{Amount: -0.5, Shape: ShapeBalanceDelta},
		}
		summary := Summarize(subject, transfers)

		fiat := ApplyRate(transfers, summary, 150)

		assert.Equal(t, 300.0, transfers[0].FiatValue)
		assert.Equal(t, -75.0, transfers[1].FiatValue)
		assert.Equal(t, 150.0, fiat.Rate)
		assert.Equal(t, summary.Received*150, fiat.Received)
		assert.Equal(t, summary.Sent*150, fiat.Sent)
		assert.Equal(t, summary.Net*150, fiat.Net)
	})

	rates := map[string]float64{
		"zero":     0,
		"negative": -3,
		"nan":      math.NaN(),
		"inf":      math.Inf(1),
	}
	for name, rate := range rates {
		t.Run(name+" rate zeroes fiat", func(t *testing.T) {
			transfers := []NormalizedTransfer{{Amount: 2, Shape: ShapeBalanceDelta}}
			summary := Summarize(subject, transfers)

			fiat := ApplyRate(transfers, summary, rate)

			assert.Equal(t, 0.0, fiat.Rate)
			assert.Equal(t, 0.0, fiat.Received)
			assert.Equal(t, 0.0, fiat.Net)
			assert.Equal(t, 0.0, transfers[0].FiatValue)
		})
	}
}

func TestSortByTimeDesc(t *testing.T) {
	t0 := time.Unix(1700000000, 0).UTC()
	transfers := []NormalizedTransfer{
		{TxHash: "old", BlockTime: t0},
		{TxHash: "none"},
		{TxHash: "new", BlockTime: t0.Add(time.Hour)},
		{TxHash: "old-2", BlockTime: t0},
	}

	SortByTimeDesc(transfers)

	got := make([]string, len(transfers))
	for i, tr := range transfers {
		got[i] = tr.TxHash
	}
	assert.Equal(t, []string{"new", "old", "old-2", "none"}, got)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "-0.1000", FormatAmount(-0.1))
	assert.Equal(t, "2.0000", FormatAmount(2))
	assert.Equal(t, "0.0001", FormatAmount(0.00012))
}

func TestTokenActivities(t *testing.T) {
	txns := []RawTransaction{
		{
			Signature: "tok1",
			Timestamp: 1700000000,
			Shape:     ShapeBalanceDelta,
			Meta: &Meta{PostTokenBalances: []TokenBalance{
				{Owner: subject, Mint: "MintA", Amount: "1500000", UIAmount: "1.5", Decimals: 6},
				{Owner: "someone", Mint: "MintB", Amount: "1", UIAmount: "1"},
				{Owner: subject, Mint: "MintC", Amount: "42"},
			}},
		},
		{Signature: "no-meta", Shape: ShapeBalanceDelta},
	}

	acts := TokenActivities(subject, txns)

	require.Len(t, acts, 2)
	assert.Equal(t, TokenActivity{Timestamp: "2023-11-14 22:13:20", Mint: "MintA", Amount: "1.5", TxHash: "tok1"}, acts[0])
	assert.Equal(t, "MintC", acts[1].Mint)
	assert.Equal(t, "42", acts[1].Amount)
}
