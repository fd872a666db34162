package transform

import (
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexlens/indexer/internal/common"
)

const (
	testPool   = "0x1111111111111111111111111111111111111111"
	testSender = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testHolder = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	testTx     = "0xdeadbeef"
)

var testTimestamp = time.Unix(1700000000, 0)

func lbLog(name string, logIndex uint64, attrs map[string]interface{}) common.DecodedLog {
	return common.DecodedLog{
		Contract:        testPool,
		ContractType:    TypeLBPair,
		Name:            name,
		TransactionHash: testTx,
		LogIndex:        logIndex,
		Attributes:      attrs,
	}
}

func mustPack(t *testing.T, base, quote int64) []byte {
	t.Helper()
	packed, err := common.PackAmounts(big.NewInt(base), big.NewInt(quote))
	require.NoError(t, err)
	return packed
}

func bigs(values ...int64) []*big.Int {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = big.NewInt(v)
	}
	return out
}

func depositPair(t *testing.T, bins []uint64, receipts []int64, packed [][]byte) []common.DecodedLog {
	t.Helper()
	return []common.DecodedLog{
		lbLog(EventTransferBatch, 0, map[string]interface{}{
			"sender":  testSender,
			"from":    "0x0000000000000000000000000000000000000000",
			"to":      testHolder,
			"ids":     bins,
			"amounts": bigs(receipts...),
		}),
		lbLog(EventDepositedToBins, 1, map[string]interface{}{
			"sender":  testSender,
			"to":      testHolder,
			"ids":     bins,
			"amounts": packed,
		}),
	}
}

func TestTransformDepositBuildsPositionsAndLedger(t *testing.T) {
	tr := NewLBPairTransformer(zerolog.Nop())

	logs := depositPair(t,
		[]uint64{8388607, 8388608},
		[]int64{10, 20},
		[][]byte{mustPack(t, 100, 0), mustPack(t, 50, 200)})

	events, procErrors := tr.Transform(testTx, testTimestamp, logs)
	require.Empty(t, procErrors)
	require.Len(t, events, 3) // one position per bin plus the ledger entry

	first, ok := events[0].(*common.Position)
	require.True(t, ok)
	assert.Equal(t, uint64(8388607), first.BinID)
	assert.Equal(t, testHolder, first.Holder)
	assert.Equal(t, big.NewInt(100), first.BaseAmount)
	assert.Equal(t, 0, first.QuoteAmount.Sign())
	assert.Equal(t, big.NewInt(10), first.ReceiptAmount)
	assert.Equal(t, int8(1), first.Sign)

	second, ok := events[1].(*common.Position)
	require.True(t, ok)
	assert.Equal(t, uint64(8388608), second.BinID)
	assert.Equal(t, big.NewInt(50), second.BaseAmount)
	assert.Equal(t, big.NewInt(200), second.QuoteAmount)

	ledger, ok := events[2].(*common.TransferLedger)
	require.True(t, ok)
	assert.Equal(t, "liquidity_deposit", ledger.Kind)
	assert.Equal(t, big.NewInt(150), ledger.BaseAmount)
	assert.Equal(t, big.NewInt(200), ledger.QuoteAmount)
	assert.Equal(t, big.NewInt(30), ledger.ReceiptAmount)
	assert.Equal(t, big.NewInt(30), ledger.Breakdown[testHolder])
}

func TestTransformWithdrawalNegatesAmounts(t *testing.T) {
	tr := NewLBPairTransformer(zerolog.Nop())

	logs := []common.DecodedLog{
		lbLog(EventTransferBatch, 0, map[string]interface{}{
			"sender":  testSender,
			"from":    testHolder,
			"to":      "0x0000000000000000000000000000000000000000",
			"ids":     []uint64{100},
			"amounts": bigs(10),
		}),
		lbLog(EventWithdrawnFromBins, 1, map[string]interface{}{
			"sender":  testSender,
			"to":      testHolder,
			"ids":     []uint64{100},
			"amounts": [][]byte{mustPack(t, 40, 60)},
		}),
	}

	events, procErrors := tr.Transform(testTx, testTimestamp, logs)
	require.Empty(t, procErrors)
	require.Len(t, events, 2)

	position, ok := events[0].(*common.Position)
	require.True(t, ok)
	assert.Equal(t, testHolder, position.Holder) // withdrawal attributes to the sender of the receipt
	assert.Equal(t, big.NewInt(-40), position.BaseAmount)
	assert.Equal(t, big.NewInt(-60), position.QuoteAmount)
	assert.Equal(t, big.NewInt(-10), position.ReceiptAmount)
	assert.Equal(t, int8(-1), position.Sign)

	ledger, ok := events[1].(*common.TransferLedger)
	require.True(t, ok)
	assert.Equal(t, "liquidity_withdrawal", ledger.Kind)
	assert.Equal(t, int8(-1), ledger.Sign)
}

func TestTransformBinMismatchCollectsOneErrorAndNoEvents(t *testing.T) {
	tr := NewLBPairTransformer(zerolog.Nop())

	transfer := lbLog(EventTransferBatch, 0, map[string]interface{}{
		"from":    "0x0000000000000000000000000000000000000000",
		"to":      testHolder,
		"ids":     []uint64{1, 2, 3},
		"amounts": bigs(10, 20, 30),
	})
	companion := lbLog(EventDepositedToBins, 1, map[string]interface{}{
		"to":      testHolder,
		"ids":     []uint64{1, 2, 4},
		"amounts": [][]byte{mustPack(t, 1, 0), mustPack(t, 2, 0), mustPack(t, 3, 0)},
	})

	events, procErrors := tr.Transform(testTx, testTimestamp, []common.DecodedLog{transfer, companion})
	assert.Empty(t, events)
	require.Len(t, procErrors, 1)
	assert.Equal(t, common.ErrTypeInvalidLBTransfer, procErrors[0].ErrorType)
	assert.Contains(t, procErrors[0].Message, "bin mismatch")
	assert.Equal(t, testTx, procErrors[0].TxHash)
}

func TestTransformBinCountMismatchCollectsOneError(t *testing.T) {
	tr := NewLBPairTransformer(zerolog.Nop())

	logs := []common.DecodedLog{
		lbLog(EventTransferBatch, 0, map[string]interface{}{
			"from":    "0x0000000000000000000000000000000000000000",
			"to":      testHolder,
			"ids":     []uint64{1, 2, 3},
			"amounts": bigs(10, 20), // fewer amounts than bins
		}),
		lbLog(EventDepositedToBins, 1, map[string]interface{}{
			"to":      testHolder,
			"ids":     []uint64{1, 2, 3},
			"amounts": [][]byte{mustPack(t, 1, 0), mustPack(t, 2, 0), mustPack(t, 3, 0)},
		}),
	}

	events, procErrors := tr.Transform(testTx, testTimestamp, logs)
	assert.Empty(t, events)
	require.Len(t, procErrors, 1)
	assert.Equal(t, common.ErrTypeInvalidLBTransfer, procErrors[0].ErrorType)
}

func TestTransformUnpairedLogsAreErrors(t *testing.T) {
	tr := NewLBPairTransformer(zerolog.Nop())

	// a receipt transfer without a companion liquidity event
	transferOnly := lbLog(EventTransferBatch, 0, map[string]interface{}{
		"from":    "0x0000000000000000000000000000000000000000",
		"to":      testHolder,
		"ids":     []uint64{1},
		"amounts": bigs(10),
	})

	events, procErrors := tr.Transform(testTx, testTimestamp, []common.DecodedLog{transferOnly})
	assert.Empty(t, events)
	require.Len(t, procErrors, 1)
	assert.Equal(t, common.ErrTypeInvalidLBTransfer, procErrors[0].ErrorType)
}

func TestTransformSwapNetsAcrossBins(t *testing.T) {
	tr := NewLBPairTransformer(zerolog.Nop())

	swap := lbLog(EventSwap, 0, map[string]interface{}{
		"sender": testSender,
		"to":     testHolder,
		"ids":    []uint64{1, 2, 3},
		"amountsIn": [][]byte{
			mustPack(t, 100, 0),
			mustPack(t, 0, 0),
			mustPack(t, 0, 0),
		},
		"amountsOut": [][]byte{
			mustPack(t, 0, 0),
			mustPack(t, 40, 60),
			mustPack(t, 30, 40),
		},
	})

	events, procErrors := tr.Transform(testTx, testTimestamp, []common.DecodedLog{swap})
	require.Empty(t, procErrors)
	require.Len(t, events, 1)

	result, ok := events[0].(*common.Swap)
	require.True(t, ok)
	assert.Equal(t, big.NewInt(30), result.NetBase)    // 100 - 40 - 30
	assert.Equal(t, big.NewInt(-100), result.NetQuote) // 0 - 60 - 40
	assert.Equal(t, testSender, result.Sender)
	assert.Equal(t, testHolder, result.Recipient)

	// the per-bin breakdown must reconcile with the net figures
	sumBase := new(big.Int)
	sumQuote := new(big.Int)
	for _, bin := range result.BinBreakdown {
		sumBase.Add(sumBase, bin.Base)
		sumQuote.Add(sumQuote, bin.Quote)
	}
	assert.Equal(t, result.NetBase, sumBase)
	assert.Equal(t, result.NetQuote, sumQuote)
}

func TestTransformSwapLengthMismatchIsError(t *testing.T) {
	tr := NewLBPairTransformer(zerolog.Nop())

	swap := lbLog(EventSwap, 0, map[string]interface{}{
		"sender":     testSender,
		"to":         testHolder,
		"ids":        []uint64{1, 2, 3},
		"amountsIn":  [][]byte{mustPack(t, 1, 0), mustPack(t, 2, 0)}, // one short
		"amountsOut": [][]byte{mustPack(t, 0, 0), mustPack(t, 0, 0), mustPack(t, 0, 0)},
	})

	events, procErrors := tr.Transform(testTx, testTimestamp, []common.DecodedLog{swap})
	assert.Empty(t, events)
	require.Len(t, procErrors, 1)
	assert.Equal(t, common.ErrTypeInvalidLBSwap, procErrors[0].ErrorType)
}

func TestTransformSwapBadLogContributesNothing(t *testing.T) {
	tr := NewLBPairTransformer(zerolog.Nop())

	good := lbLog(EventSwap, 0, map[string]interface{}{
		"sender":     testSender,
		"to":         testHolder,
		"ids":        []uint64{5},
		"amountsIn":  [][]byte{mustPack(t, 10, 0)},
		"amountsOut": [][]byte{mustPack(t, 0, 3)},
	})
	bad := lbLog(EventSwap, 1, map[string]interface{}{
		"sender":     testSender,
		"to":         testHolder,
		"ids":        []uint64{5, 6},
		"amountsIn":  [][]byte{mustPack(t, 999, 0)},
		"amountsOut": [][]byte{mustPack(t, 0, 0), mustPack(t, 0, 0)},
	})

	events, procErrors := tr.Transform(testTx, testTimestamp, []common.DecodedLog{good, bad})
	require.Len(t, procErrors, 1)
	require.Len(t, events, 1)

	result := events[0].(*common.Swap)
	assert.Equal(t, big.NewInt(10), result.NetBase)
	assert.Equal(t, big.NewInt(-3), result.NetQuote)
	assert.Len(t, result.BinBreakdown, 1)
}

func TestTransformSynthesizesOneFeeTransfer(t *testing.T) {
	tr := NewLBPairTransformer(zerolog.Nop())

	recipient := "0xfee00000000000000000000000000000000000ee"
	fees := []common.DecodedLog{
		lbLog(EventProtocolFees, 0, map[string]interface{}{
			"feeRecipient": recipient,
			"amounts":      [][]byte{mustPack(t, 5, 7)},
		}),
		lbLog(EventProtocolFees, 1, map[string]interface{}{
			"feeRecipient": recipient,
			"amounts":      [][]byte{mustPack(t, 3, 1)},
		}),
	}

	events, procErrors := tr.Transform(testTx, testTimestamp, fees)
	require.Empty(t, procErrors)
	require.Len(t, events, 1) // exactly one regardless of fee log count

	ledger, ok := events[0].(*common.TransferLedger)
	require.True(t, ok)
	assert.Equal(t, "protocol_fee", ledger.Kind)
	assert.Equal(t, recipient, ledger.ToAddress)
	assert.Equal(t, big.NewInt(8), ledger.BaseAmount)
	assert.Equal(t, big.NewInt(8), ledger.QuoteAmount)
	// the breakdown carries the base side per recipient
	assert.Equal(t, big.NewInt(8), ledger.Breakdown[recipient])
}

func TestTransformFeeBreakdownPerRecipient(t *testing.T) {
	tr := NewLBPairTransformer(zerolog.Nop())

	treasury := "0xfee00000000000000000000000000000000000ee"
	operator := "0x0bee000000000000000000000000000000000bee"
	fees := []common.DecodedLog{
		lbLog(EventProtocolFees, 0, map[string]interface{}{
			"feeRecipient": treasury,
			"amounts":      [][]byte{mustPack(t, 5, 7)},
		}),
		lbLog(EventProtocolFees, 1, map[string]interface{}{
			"feeRecipient": operator,
			"amounts":      [][]byte{mustPack(t, 3, 1)},
		}),
	}

	events, procErrors := tr.Transform(testTx, testTimestamp, fees)
	require.Empty(t, procErrors)
	require.Len(t, events, 1)

	ledger := events[0].(*common.TransferLedger)
	assert.Equal(t, big.NewInt(8), ledger.BaseAmount)
	assert.Equal(t, big.NewInt(8), ledger.QuoteAmount)
	require.Len(t, ledger.Breakdown, 2)
	assert.Equal(t, big.NewInt(5), ledger.Breakdown[treasury])
	assert.Equal(t, big.NewInt(3), ledger.Breakdown[operator])
}

func TestTransformNoLogsNoEvents(t *testing.T) {
	tr := NewLBPairTransformer(zerolog.Nop())
	events, procErrors := tr.Transform(testTx, testTimestamp, nil)
	assert.Empty(t, events)
	assert.Empty(t, procErrors)
}
