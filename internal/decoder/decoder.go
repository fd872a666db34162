package decoder

import (
	"context"
	"fmt"
	"strings"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/dexlens/indexer/internal/common"
	"github.com/dexlens/indexer/internal/transform"
)

// defaultSignatures lists the event signatures decoded per contract type.
var defaultSignatures = map[string][]string{
	transform.TypeLBPair: {
		"TransferBatch(address indexed sender,address indexed from,address indexed to,uint256[] ids,uint256[] amounts)",
		"DepositedToBins(address indexed sender,address indexed to,uint256[] ids,bytes32[] amounts)",
		"WithdrawnFromBins(address indexed sender,address indexed to,uint256[] ids,bytes32[] amounts)",
		"Swap(address indexed sender,address indexed to,uint256[] ids,bytes32[] amountsIn,bytes32[] amountsOut)",
		"CollectedProtocolFees(address indexed feeRecipient,bytes32[] amounts)",
	},
	transform.TypeERC20: {
		"Transfer(address indexed from,address indexed to,uint256 value)",
	},
}

type eventDef struct {
	contractType string
	event        *gethabi.Event
}

// EventDecoder turns raw logs into decoded logs grouped by transaction,
// keeping log-index order within each group. Only logs from active
// configured contracts whose events pass the active-rule filter are
// decoded; everything else is skipped silently.
type EventDecoder struct {
	events    map[gethcommon.Hash]eventDef
	contracts map[string]string // lowercased address -> contract type
	logger    zerolog.Logger
}

func NewEventDecoder(registry *transform.Registry, logger zerolog.Logger) (*EventDecoder, error) {
	d := &EventDecoder{
		events:    make(map[gethcommon.Hash]eventDef),
		contracts: make(map[string]string),
		logger:    logger,
	}

	for _, contract := range registry.ActiveContracts() {
		d.contracts[strings.ToLower(contract.Address)] = contract.Type
	}

	for contractType, signatures := range defaultSignatures {
		for _, signature := range signatures {
			event, err := ConstructEventABI(signature)
			if err != nil {
				return nil, fmt.Errorf("contract type %s: %w", contractType, err)
			}
			if !registry.EventActive(contractType, event.Name) {
				continue
			}
			d.events[event.ID] = eventDef{contractType: contractType, event: event}
		}
	}
	return d, nil
}

func (d *EventDecoder) DecodeBlockEvents(_ context.Context, rawLogs []common.RawLog) (map[string][]common.DecodedLog, error) {
	decoded := make(map[string][]common.DecodedLog)
	for _, rawLog := range rawLogs {
		decodedLog, ok, err := d.decodeLog(rawLog)
		if err != nil {
			return nil, fmt.Errorf("log %d of transaction %s: %w", rawLog.LogIndex, rawLog.TransactionHash, err)
		}
		if !ok {
			continue
		}
		decoded[rawLog.TransactionHash] = append(decoded[rawLog.TransactionHash], decodedLog)
	}
	return decoded, nil
}

func (d *EventDecoder) decodeLog(rawLog common.RawLog) (common.DecodedLog, bool, error) {
	contractType, ok := d.contracts[strings.ToLower(rawLog.Address)]
	if !ok || len(rawLog.Topics) == 0 {
		return common.DecodedLog{}, false, nil
	}
	def, ok := d.events[gethcommon.HexToHash(rawLog.Topics[0])]
	if !ok || def.contractType != contractType {
		return common.DecodedLog{}, false, nil
	}

	attributes := make(map[string]interface{})

	// indexed params come from topics
	topicIdx := 1
	for _, input := range def.event.Inputs {
		if !input.Indexed {
			continue
		}
		if topicIdx >= len(rawLog.Topics) {
			return common.DecodedLog{}, false, fmt.Errorf("event %s: missing topic for indexed param %s", def.event.Name, input.Name)
		}
		topic := gethcommon.HexToHash(rawLog.Topics[topicIdx])
		switch input.Type.T {
		case gethabi.AddressTy:
			attributes[input.Name] = gethcommon.BytesToAddress(topic.Bytes()).Hex()
		default:
			attributes[input.Name] = topic.Big()
		}
		topicIdx++
	}

	// non-indexed params come from data
	data, err := hexutil.Decode(rawLog.Data)
	if err != nil {
		return common.DecodedLog{}, false, fmt.Errorf("event %s: invalid data: %w", def.event.Name, err)
	}
	nonIndexed := def.event.Inputs.NonIndexed()
	if len(nonIndexed) > 0 {
		values, err := nonIndexed.Unpack(data)
		if err != nil {
			return common.DecodedLog{}, false, fmt.Errorf("event %s: %w", def.event.Name, err)
		}
		for i, input := range nonIndexed {
			attributes[input.Name] = normalizeValue(values[i])
		}
	}

	return common.DecodedLog{
		Contract:        rawLog.Address,
		ContractType:    contractType,
		Name:            def.event.Name,
		TransactionHash: rawLog.TransactionHash,
		LogIndex:        rawLog.LogIndex,
		Attributes:      attributes,
	}, true, nil
}

// normalizeValue maps go-ethereum decoding output onto the attribute types
// the transform engine consumes.
func normalizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case gethcommon.Address:
		return v.Hex()
	case [][32]byte:
		out := make([][]byte, len(v))
		for i := range v {
			b := v[i]
			out[i] = b[:]
		}
		return out
	case [32]byte:
		b := v
		return [][]byte{b[:]}
	default:
		return value
	}
}
