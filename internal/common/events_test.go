package common

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPositionContentIDIsDeterministic(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	a := &Position{
		PoolAddress:    "0xPool",
		Holder:         "0xHolder",
		BinID:          8388608,
		BaseAmount:     big.NewInt(100),
		QuoteAmount:    big.NewInt(200),
		ReceiptAmount:  big.NewInt(10),
		Sign:           1,
		TxHash:         "0xabc",
		LogIndex:       3,
		BlockTimestamp: ts,
	}
	b := &Position{
		PoolAddress:    "0xPool",
		Holder:         "0xHolder",
		BinID:          8388608,
		BaseAmount:     big.NewInt(999), // amounts do not participate
		QuoteAmount:    big.NewInt(1),
		ReceiptAmount:  big.NewInt(2),
		Sign:           1,
		TxHash:         "0xabc",
		LogIndex:       7,
		BlockTimestamp: ts,
	}

	assert.Equal(t, a.ContentID(), b.ContentID())

	b.BinID = 8388609
	assert.NotEqual(t, a.ContentID(), b.ContentID())
}

func TestSwapContentIDIndependentOfBinInsertionOrder(t *testing.T) {
	bins := func(ids ...uint64) map[uint64]BinAmounts {
		m := make(map[uint64]BinAmounts, len(ids))
		for _, id := range ids {
			m[id] = BinAmounts{Base: big.NewInt(1), Quote: big.NewInt(2)}
		}
		return m
	}

	a := &Swap{PoolAddress: "0xPool", Sender: "0xS", TxHash: "0xabc", BinBreakdown: bins(3, 1, 2)}
	b := &Swap{PoolAddress: "0xPool", Sender: "0xS", TxHash: "0xabc", BinBreakdown: bins(1, 2, 3)}
	assert.Equal(t, a.ContentID(), b.ContentID())

	// a different bin set is a different swap
	c := &Swap{PoolAddress: "0xPool", Sender: "0xS", TxHash: "0xabc", BinBreakdown: bins(1, 2)}
	assert.NotEqual(t, a.ContentID(), c.ContentID())
}

func TestTransferLedgerContentIDDistinguishesKindAndSign(t *testing.T) {
	base := TransferLedger{
		Kind:         "liquidity_deposit",
		TokenAddress: "0xPool",
		FromAddress:  "0xFrom",
		ToAddress:    "0xTo",
		Sign:         1,
		TxHash:       "0xabc",
	}

	withdrawal := base
	withdrawal.Kind = "liquidity_withdrawal"
	withdrawal.Sign = -1

	assert.NotEqual(t, base.ContentID(), withdrawal.ContentID())
}
