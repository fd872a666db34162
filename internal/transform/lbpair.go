package transform

import (
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexlens/indexer/internal/common"
)

const TypeLBPair = "lbpair"

// Events emitted by a liquidity-bin pair contract.
const (
	EventTransferBatch     = "TransferBatch"
	EventDepositedToBins   = "DepositedToBins"
	EventWithdrawnFromBins = "WithdrawnFromBins"
	EventSwap              = "Swap"
	EventProtocolFees      = "CollectedProtocolFees"
)

// LBPairTransformer aggregates liquidity-bin events. A liquidity change is
// a pair of logs: a receipt-token TransferBatch and a companion
// DepositedToBins/WithdrawnFromBins carrying packed per-bin amounts. The two
// logs' bin arrays must match exactly before any amount is trusted; the
// engine never guesses alignment.
type LBPairTransformer struct {
	logger zerolog.Logger
}

func NewLBPairTransformer(logger zerolog.Logger) *LBPairTransformer {
	return &LBPairTransformer{logger: logger}
}

func (t *LBPairTransformer) ContractType() string { return TypeLBPair }

func (t *LBPairTransformer) Transform(txHash string, timestamp time.Time, logs []common.DecodedLog) ([]common.DomainEvent, []common.ProcessingError) {
	events := []common.DomainEvent{}
	procErrors := []common.ProcessingError{}

	var transfers []common.DecodedLog
	var liquidity []common.DecodedLog
	var swaps []common.DecodedLog
	var fees []common.DecodedLog

	// logs arrive in on-chain index order and each log is attributed to
	// exactly one aggregation pass
	for _, l := range logs {
		switch l.Name {
		case EventTransferBatch:
			transfers = append(transfers, l)
		case EventDepositedToBins, EventWithdrawnFromBins:
			liquidity = append(liquidity, l)
		case EventSwap:
			swaps = append(swaps, l)
		case EventProtocolFees:
			fees = append(fees, l)
		}
	}

	positionEvents, positionErrors := t.buildPositions(txHash, timestamp, transfers, liquidity)
	events = append(events, positionEvents...)
	procErrors = append(procErrors, positionErrors...)

	swapEvents, swapErrors := t.buildSwaps(txHash, timestamp, swaps)
	events = append(events, swapEvents...)
	procErrors = append(procErrors, swapErrors...)

	if feeEvent := t.buildFeeTransfer(txHash, timestamp, fees); feeEvent != nil {
		events = append(events, feeEvent)
	}

	return events, procErrors
}

// buildPositions pairs each receipt transfer with its companion liquidity
// log in order and builds one Position per bin plus a single aggregate
// ledger entry with running totals across all bins.
func (t *LBPairTransformer) buildPositions(txHash string, timestamp time.Time, transfers, liquidity []common.DecodedLog) ([]common.DomainEvent, []common.ProcessingError) {
	events := []common.DomainEvent{}
	procErrors := []common.ProcessingError{}

	pairCount := len(transfers)
	if len(liquidity) < pairCount {
		pairCount = len(liquidity)
	}
	for i := pairCount; i < len(transfers); i++ {
		procErrors = append(procErrors, common.NewProcessingError(
			common.ErrTypeInvalidLBTransfer,
			"receipt transfer has no companion liquidity event",
			txHash, transfers[i].LogIndex))
	}
	for i := pairCount; i < len(liquidity); i++ {
		procErrors = append(procErrors, common.NewProcessingError(
			common.ErrTypeInvalidLBTransfer,
			fmt.Sprintf("%s has no companion receipt transfer", liquidity[i].Name),
			txHash, liquidity[i].LogIndex))
	}

	for i := 0; i < pairCount; i++ {
		transfer := transfers[i]
		companion := liquidity[i]

		pairEvents, pairErr := t.buildPositionPair(txHash, timestamp, transfer, companion)
		if pairErr != nil {
			procErrors = append(procErrors, *pairErr)
			continue
		}
		events = append(events, pairEvents...)
	}
	return events, procErrors
}

func (t *LBPairTransformer) buildPositionPair(txHash string, timestamp time.Time, transfer, companion common.DecodedLog) ([]common.DomainEvent, *common.ProcessingError) {
	fail := func(format string, args ...interface{}) *common.ProcessingError {
		e := common.NewProcessingError(common.ErrTypeInvalidLBTransfer,
			fmt.Sprintf(format, args...), txHash, transfer.LogIndex)
		return &e
	}

	transferBins, err := transfer.Uints("ids")
	if err != nil {
		return nil, fail("transfer bin ids: %v", err)
	}
	receiptAmounts, err := transfer.BigInts("amounts")
	if err != nil {
		return nil, fail("transfer amounts: %v", err)
	}
	if len(receiptAmounts) != len(transferBins) {
		return nil, fail("transfer has %d amounts for %d bins", len(receiptAmounts), len(transferBins))
	}

	companionBins, err := companion.Uints("ids")
	if err != nil {
		return nil, fail("companion bin ids: %v", err)
	}
	packedAmounts, err := companion.Bytes32Slice("amounts")
	if err != nil {
		return nil, fail("companion amounts: %v", err)
	}
	if len(packedAmounts) != len(companionBins) {
		return nil, fail("companion has %d amounts for %d bins", len(packedAmounts), len(companionBins))
	}

	if len(transferBins) != len(companionBins) {
		return nil, fail("transfer references %d bins, companion %d", len(transferBins), len(companionBins))
	}
	for i := range transferBins {
		if transferBins[i] != companionBins[i] {
			return nil, fail("bin mismatch at index %d: transfer bin %d, companion bin %d",
				i, transferBins[i], companionBins[i])
		}
	}

	negative := companion.Name == EventWithdrawnFromBins
	sign := int8(1)
	if negative {
		sign = -1
	}
	kind := "liquidity_deposit"
	if negative {
		kind = "liquidity_withdrawal"
	}
	from := transfer.String("from")
	to := transfer.String("to")
	holder := to
	if negative {
		holder = from
	}

	events := make([]common.DomainEvent, 0, len(transferBins)+1)
	totalBase := new(big.Int)
	totalQuote := new(big.Int)
	totalReceipt := new(big.Int)

	for i, binID := range transferBins {
		base, quote, err := common.UnpackAmounts(packedAmounts[i])
		if err != nil {
			return nil, fail("bin %d packed amount: %v", binID, err)
		}
		receipt := new(big.Int).Set(receiptAmounts[i])
		if negative {
			base = new(big.Int).Neg(base)
			quote = new(big.Int).Neg(quote)
			receipt = receipt.Neg(receipt)
		}

		totalBase.Add(totalBase, base)
		totalQuote.Add(totalQuote, quote)
		totalReceipt.Add(totalReceipt, receipt)

		events = append(events, &common.Position{
			PoolAddress:    transfer.Contract,
			Holder:         holder,
			BinID:          binID,
			BaseAmount:     base,
			QuoteAmount:    quote,
			ReceiptAmount:  receipt,
			Sign:           sign,
			TxHash:         txHash,
			LogIndex:       companion.LogIndex,
			BlockTimestamp: timestamp,
		})
	}

	events = append(events, &common.TransferLedger{
		Kind:           kind,
		TokenAddress:   transfer.Contract,
		FromAddress:    from,
		ToAddress:      to,
		BaseAmount:     totalBase,
		QuoteAmount:    totalQuote,
		ReceiptAmount:  totalReceipt,
		Breakdown:      map[string]*big.Int{holder: totalReceipt},
		Sign:           sign,
		TxHash:         txHash,
		BlockTimestamp: timestamp,
	})
	return events, nil
}

// buildSwaps nets amount-in minus amount-out per token across all swap logs
// of the transaction, retaining a per-bin breakdown that reconciles with the
// net figure by construction.
func (t *LBPairTransformer) buildSwaps(txHash string, timestamp time.Time, swaps []common.DecodedLog) ([]common.DomainEvent, []common.ProcessingError) {
	procErrors := []common.ProcessingError{}

	type swapAgg struct {
		pool      string
		sender    string
		recipient string
		netBase   *big.Int
		netQuote  *big.Int
		bins      map[uint64]common.BinAmounts
	}
	aggs := map[string]*swapAgg{}
	order := []string{}

	for _, l := range swaps {
		fail := func(format string, args ...interface{}) {
			procErrors = append(procErrors, common.NewProcessingError(
				common.ErrTypeInvalidLBSwap, fmt.Sprintf(format, args...), txHash, l.LogIndex))
		}

		bins, err := l.Uints("ids")
		if err != nil {
			fail("swap bin ids: %v", err)
			continue
		}
		amountsIn, err := l.Bytes32Slice("amountsIn")
		if err != nil {
			fail("swap amountsIn: %v", err)
			continue
		}
		amountsOut, err := l.Bytes32Slice("amountsOut")
		if err != nil {
			fail("swap amountsOut: %v", err)
			continue
		}
		if len(amountsIn) != len(bins) {
			fail("swap has %d in-amounts for %d bins", len(amountsIn), len(bins))
			continue
		}
		if len(amountsOut) != len(bins) {
			fail("swap has %d out-amounts for %d bins", len(amountsOut), len(bins))
			continue
		}

		agg, ok := aggs[l.Contract]
		if !ok {
			agg = &swapAgg{
				pool:      l.Contract,
				sender:    l.String("sender"),
				recipient: l.String("to"),
				netBase:   new(big.Int),
				netQuote:  new(big.Int),
				bins:      map[uint64]common.BinAmounts{},
			}
			aggs[l.Contract] = agg
			order = append(order, l.Contract)
		}

		valid := true
		binDeltas := make([]common.BinAmounts, len(bins))
		for i := range bins {
			inBase, inQuote, err := common.UnpackAmounts(amountsIn[i])
			if err != nil {
				fail("bin %d in-amount: %v", bins[i], err)
				valid = false
				break
			}
			outBase, outQuote, err := common.UnpackAmounts(amountsOut[i])
			if err != nil {
				fail("bin %d out-amount: %v", bins[i], err)
				valid = false
				break
			}
			binDeltas[i] = common.BinAmounts{
				Base:  new(big.Int).Sub(inBase, outBase),
				Quote: new(big.Int).Sub(inQuote, outQuote),
			}
		}
		if !valid {
			continue
		}

		// apply only after the whole log validated, so a bad log
		// contributes nothing
		for i, binID := range bins {
			agg.netBase.Add(agg.netBase, binDeltas[i].Base)
			agg.netQuote.Add(agg.netQuote, binDeltas[i].Quote)

			existing, ok := agg.bins[binID]
			if !ok {
				existing = common.BinAmounts{Base: new(big.Int), Quote: new(big.Int)}
			}
			agg.bins[binID] = common.BinAmounts{
				Base:  new(big.Int).Add(existing.Base, binDeltas[i].Base),
				Quote: new(big.Int).Add(existing.Quote, binDeltas[i].Quote),
			}
		}
	}

	events := []common.DomainEvent{}
	for _, pool := range order {
		agg := aggs[pool]
		if len(agg.bins) == 0 {
			continue
		}
		events = append(events, &common.Swap{
			PoolAddress:    agg.pool,
			Sender:         agg.sender,
			Recipient:      agg.recipient,
			NetBase:        agg.netBase,
			NetQuote:       agg.netQuote,
			BinBreakdown:   agg.bins,
			TxHash:         txHash,
			BlockTimestamp: timestamp,
		})
	}
	return events, procErrors
}

// buildFeeTransfer synthesizes exactly one ledger entry summarizing protocol
// fee collection when any fee log is present, and none otherwise. The
// breakdown attributes the base side per fee recipient; the quote side is
// carried only in the QuoteAmount aggregate.
func (t *LBPairTransformer) buildFeeTransfer(txHash string, timestamp time.Time, fees []common.DecodedLog) common.DomainEvent {
	if len(fees) == 0 {
		return nil
	}

	totalBase := new(big.Int)
	totalQuote := new(big.Int)
	pool := fees[0].Contract
	recipient := fees[0].String("feeRecipient")
	breakdown := make(map[string]*big.Int)

	for _, l := range fees {
		packed, err := l.Bytes32Slice("amounts")
		if err != nil {
			t.logger.Warn().Err(err).Uint64("log_index", l.LogIndex).Msg("skipping malformed fee log")
			continue
		}
		to := l.String("feeRecipient")
		for _, p := range packed {
			base, quote, err := common.UnpackAmounts(p)
			if err != nil {
				t.logger.Warn().Err(err).Uint64("log_index", l.LogIndex).Msg("skipping malformed fee amount")
				continue
			}
			totalBase.Add(totalBase, base)
			totalQuote.Add(totalQuote, quote)
			if prev, ok := breakdown[to]; ok {
				prev.Add(prev, base)
			} else {
				breakdown[to] = new(big.Int).Set(base)
			}
		}
	}

	return &common.TransferLedger{
		Kind:           "protocol_fee",
		TokenAddress:   pool,
		FromAddress:    pool,
		ToAddress:      recipient,
		BaseAmount:     totalBase,
		QuoteAmount:    totalQuote,
		ReceiptAmount:  new(big.Int),
		Breakdown:      breakdown,
		Sign:           1,
		TxHash:         txHash,
		BlockTimestamp: timestamp,
	}
}
