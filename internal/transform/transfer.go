package transform

import (
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexlens/indexer/internal/common"
)

const TypeERC20 = "erc20"

const EventTransfer = "Transfer"

// TransferTransformer nets plain token transfers per token into one ledger
// entry per transaction, with a per-counterparty breakdown.
type TransferTransformer struct {
	logger zerolog.Logger
}

func NewTransferTransformer(logger zerolog.Logger) *TransferTransformer {
	return &TransferTransformer{logger: logger}
}

func (t *TransferTransformer) ContractType() string { return TypeERC20 }

func (t *TransferTransformer) Transform(txHash string, timestamp time.Time, logs []common.DecodedLog) ([]common.DomainEvent, []common.ProcessingError) {
	procErrors := []common.ProcessingError{}

	type tokenAgg struct {
		token     string
		from      string
		to        string
		total     *big.Int
		breakdown map[string]*big.Int
	}
	aggs := map[string]*tokenAgg{}
	order := []string{}

	for _, l := range logs {
		if l.Name != EventTransfer {
			continue
		}
		value, err := l.BigInt("value")
		if err != nil {
			procErrors = append(procErrors, common.NewProcessingError(
				common.ErrTypeInvalidTransfer,
				fmt.Sprintf("transfer value: %v", err), txHash, l.LogIndex))
			continue
		}
		from := l.String("from")
		to := l.String("to")

		agg, ok := aggs[l.Contract]
		if !ok {
			agg = &tokenAgg{
				token:     l.Contract,
				from:      from,
				to:        to,
				total:     new(big.Int),
				breakdown: map[string]*big.Int{},
			}
			aggs[l.Contract] = agg
			order = append(order, l.Contract)
		}
		agg.total.Add(agg.total, value)
		if existing, ok := agg.breakdown[to]; ok {
			agg.breakdown[to] = new(big.Int).Add(existing, value)
		} else {
			agg.breakdown[to] = new(big.Int).Set(value)
		}
	}

	events := []common.DomainEvent{}
	for _, token := range order {
		agg := aggs[token]
		events = append(events, &common.TransferLedger{
			Kind:           "transfer",
			TokenAddress:   agg.token,
			FromAddress:    agg.from,
			ToAddress:      agg.to,
			BaseAmount:     agg.total,
			QuoteAmount:    new(big.Int),
			ReceiptAmount:  new(big.Int),
			Breakdown:      agg.breakdown,
			Sign:           1,
			TxHash:         txHash,
			BlockTimestamp: timestamp,
		})
	}
	return events, procErrors
}
