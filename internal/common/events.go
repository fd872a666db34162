package common

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// DomainEvent is a business-meaning record derived from decoded logs. Its
// content identifier is deterministic over the event's stable fields so
// persistence is an idempotent upsert, never an append.
type DomainEvent interface {
	ContentID() string
	EventType() string
	TransactionHash() string
	EventTimestamp() time.Time
}

func contentID(parts ...string) string {
	return crypto.Keccak256Hash([]byte(strings.Join(parts, ":"))).Hex()
}

// Position is a receipt-token holdings change for one liquidity bin. Sign
// represents deposit (+1) vs withdrawal (-1) with one code path.
type Position struct {
	PoolAddress    string    `json:"pool_address" ch:"pool_address"`
	Holder         string    `json:"holder" ch:"holder"`
	BinID          uint64    `json:"bin_id" ch:"bin_id"`
	BaseAmount     *big.Int  `json:"base_amount" ch:"base_amount"`
	QuoteAmount    *big.Int  `json:"quote_amount" ch:"quote_amount"`
	ReceiptAmount  *big.Int  `json:"receipt_amount" ch:"receipt_amount"`
	Sign           int8      `json:"sign" ch:"sign"`
	TxHash         string    `json:"transaction_hash" ch:"transaction_hash"`
	LogIndex       uint64    `json:"log_index" ch:"log_index"`
	BlockTimestamp time.Time `json:"block_timestamp" ch:"block_timestamp"`
}

func (p *Position) ContentID() string {
	return contentID("position", p.TxHash, p.PoolAddress, p.Holder,
		fmt.Sprintf("%d", p.BinID), fmt.Sprintf("%d", p.Sign))
}

func (p *Position) EventType() string         { return "position" }
func (p *Position) TransactionHash() string   { return p.TxHash }
func (p *Position) EventTimestamp() time.Time { return p.BlockTimestamp }

// TransferLedger is an aggregate transfer with a per-counterparty breakdown.
// Kind distinguishes liquidity deposits/withdrawals, protocol fee sweeps and
// plain token transfers. The breakdown's denomination follows the kind:
// receipt units for liquidity ledgers, token units for plain transfers, base
// units for protocol fee sweeps.
type TransferLedger struct {
	Kind           string              `json:"kind" ch:"kind"`
	TokenAddress   string              `json:"token_address" ch:"token_address"`
	FromAddress    string              `json:"from_address" ch:"from_address"`
	ToAddress      string              `json:"to_address" ch:"to_address"`
	BaseAmount     *big.Int            `json:"base_amount" ch:"base_amount"`
	QuoteAmount    *big.Int            `json:"quote_amount" ch:"quote_amount"`
	ReceiptAmount  *big.Int            `json:"receipt_amount" ch:"receipt_amount"`
	Breakdown      map[string]*big.Int `json:"breakdown" ch:"breakdown"`
	Sign           int8                `json:"sign" ch:"sign"`
	TxHash         string              `json:"transaction_hash" ch:"transaction_hash"`
	BlockTimestamp time.Time           `json:"block_timestamp" ch:"block_timestamp"`
}

func (t *TransferLedger) ContentID() string {
	return contentID("transfer", t.TxHash, t.Kind, t.TokenAddress,
		t.FromAddress, t.ToAddress, fmt.Sprintf("%d", t.Sign))
}

func (t *TransferLedger) EventType() string         { return "transfer_ledger" }
func (t *TransferLedger) TransactionHash() string   { return t.TxHash }
func (t *TransferLedger) EventTimestamp() time.Time { return t.BlockTimestamp }

// BinAmounts is the base/quote pair attributed to one bin of a swap.
type BinAmounts struct {
	Base  *big.Int `json:"base"`
	Quote *big.Int `json:"quote"`
}

// Swap is the net trade record for one transaction's swap logs on one pool.
// NetBase/NetQuote are signed (amount-in minus amount-out per token) and
// must equal the sum of the per-bin breakdown.
type Swap struct {
	PoolAddress    string                `json:"pool_address" ch:"pool_address"`
	Sender         string                `json:"sender" ch:"sender"`
	Recipient      string                `json:"recipient" ch:"recipient"`
	NetBase        *big.Int              `json:"net_base" ch:"net_base"`
	NetQuote       *big.Int              `json:"net_quote" ch:"net_quote"`
	BinBreakdown   map[uint64]BinAmounts `json:"bin_breakdown" ch:"bin_breakdown"`
	TxHash         string                `json:"transaction_hash" ch:"transaction_hash"`
	BlockTimestamp time.Time             `json:"block_timestamp" ch:"block_timestamp"`
}

func (s *Swap) ContentID() string {
	// bin ids participate so two distinct swaps in one tx on the same pool
	// cannot collide
	bins := make([]uint64, 0, len(s.BinBreakdown))
	for id := range s.BinBreakdown {
		bins = append(bins, id)
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i] < bins[j] })
	parts := []string{"swap", s.TxHash, s.PoolAddress, s.Sender}
	for _, id := range bins {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return contentID(parts...)
}

func (s *Swap) EventType() string         { return "swap" }
func (s *Swap) TransactionHash() string   { return s.TxHash }
func (s *Swap) EventTimestamp() time.Time { return s.BlockTimestamp }
