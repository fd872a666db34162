package common

import (
	"errors"

	"github.com/google/uuid"
)

// Sentinel errors distinguishing "no data" from "store unreachable" and
// configuration problems from runtime ones.
var (
	ErrBlockNotFound       = errors.New("block not found")
	ErrUnknownContractType = errors.New("unknown contract type")
	ErrRegistryUnavailable = errors.New("block registry unavailable")
)

// Validation error types produced by transformers.
const (
	ErrTypeInvalidLBTransfer = "invalid_lb_transfer"
	ErrTypeInvalidLBSwap     = "invalid_lb_swap"
	ErrTypeInvalidTransfer   = "invalid_transfer"
)

// ProcessingError is a recoverable, reportable validation failure collected
// during transformation. It does not abort the surrounding transaction.
type ProcessingError struct {
	ErrorID   string `json:"error_id"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	TxHash    string `json:"transaction_hash"`
	LogIndex  uint64 `json:"log_index"`
}

func NewProcessingError(errorType, message, txHash string, logIndex uint64) ProcessingError {
	return ProcessingError{
		ErrorID:   uuid.New().String(),
		ErrorType: errorType,
		Message:   message,
		TxHash:    txHash,
		LogIndex:  logIndex,
	}
}
