package common

import (
	"fmt"
	"math/big"
)

// RawLog is one on-chain log emission before decoding.
type RawLog struct {
	BlockNumber     uint64   `json:"block_number"`
	TransactionHash string   `json:"transaction_hash"`
	LogIndex        uint64   `json:"log_index"`
	Address         string   `json:"address"`
	Data            string   `json:"data"`
	Topics          []string `json:"topics"`
}

// DecodedLog is one on-chain event occurrence with named, typed attributes.
// LogIndex defines the total order within a transaction.
type DecodedLog struct {
	Contract        string                 `json:"contract"`
	ContractType    string                 `json:"contract_type"`
	Name            string                 `json:"name"`
	TransactionHash string                 `json:"transaction_hash"`
	LogIndex        uint64                 `json:"log_index"`
	Attributes      map[string]interface{} `json:"attributes"`
}

// Uints reads an attribute as a slice of non-negative integers. Anything
// that is not an integer (fractional floats, negative values, strings)
// is rejected, since callers use these as map keys.
func (l *DecodedLog) Uints(name string) ([]uint64, error) {
	raw, ok := l.Attributes[name]
	if !ok {
		return nil, fmt.Errorf("attribute %q not present", name)
	}
	var values []interface{}
	switch typed := raw.(type) {
	case []interface{}:
		values = typed
	case []uint64:
		result := make([]uint64, len(typed))
		copy(result, typed)
		return result, nil
	case []*big.Int:
		result := make([]uint64, len(typed))
		for i, v := range typed {
			if v == nil || v.Sign() < 0 || !v.IsUint64() {
				return nil, fmt.Errorf("attribute %q[%d] is not a valid unsigned integer", name, i)
			}
			result[i] = v.Uint64()
		}
		return result, nil
	default:
		return nil, fmt.Errorf("attribute %q is not an integer array", name)
	}
	result := make([]uint64, len(values))
	for i, v := range values {
		n, err := toUint64(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q[%d]: %w", name, i, err)
		}
		result[i] = n
	}
	return result, nil
}

// BigInts reads an attribute as a slice of unsigned big integers.
func (l *DecodedLog) BigInts(name string) ([]*big.Int, error) {
	raw, ok := l.Attributes[name]
	if !ok {
		return nil, fmt.Errorf("attribute %q not present", name)
	}
	switch typed := raw.(type) {
	case []*big.Int:
		result := make([]*big.Int, len(typed))
		for i, v := range typed {
			if v == nil || v.Sign() < 0 {
				return nil, fmt.Errorf("attribute %q[%d] is not a valid unsigned integer", name, i)
			}
			result[i] = v
		}
		return result, nil
	case []uint64:
		result := make([]*big.Int, len(typed))
		for i, v := range typed {
			result[i] = new(big.Int).SetUint64(v)
		}
		return result, nil
	case []interface{}:
		result := make([]*big.Int, len(typed))
		for i, v := range typed {
			if b, ok := v.(*big.Int); ok {
				if b == nil || b.Sign() < 0 {
					return nil, fmt.Errorf("attribute %q[%d] is not a valid unsigned integer", name, i)
				}
				result[i] = b
				continue
			}
			n, err := toUint64(v)
			if err != nil {
				return nil, fmt.Errorf("attribute %q[%d]: %w", name, i, err)
			}
			result[i] = new(big.Int).SetUint64(n)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("attribute %q is not an integer array", name)
	}
}

// Bytes32Slice reads an attribute as a slice of 32-byte packed values.
func (l *DecodedLog) Bytes32Slice(name string) ([][]byte, error) {
	raw, ok := l.Attributes[name]
	if !ok {
		return nil, fmt.Errorf("attribute %q not present", name)
	}
	switch typed := raw.(type) {
	case [][]byte:
		return typed, nil
	case [][32]byte:
		result := make([][]byte, len(typed))
		for i := range typed {
			b := typed[i]
			result[i] = b[:]
		}
		return result, nil
	case []interface{}:
		result := make([][]byte, len(typed))
		for i, v := range typed {
			switch b := v.(type) {
			case []byte:
				result[i] = b
			case [32]byte:
				result[i] = b[:]
			default:
				return nil, fmt.Errorf("attribute %q[%d] is not a byte string", name, i)
			}
		}
		return result, nil
	default:
		return nil, fmt.Errorf("attribute %q is not a byte-string array", name)
	}
}

// String reads a string attribute, defaulting to empty when absent.
func (l *DecodedLog) String(name string) string {
	if v, ok := l.Attributes[name].(string); ok {
		return v
	}
	return ""
}

// BigInt reads a single unsigned integer attribute.
func (l *DecodedLog) BigInt(name string) (*big.Int, error) {
	raw, ok := l.Attributes[name]
	if !ok {
		return nil, fmt.Errorf("attribute %q not present", name)
	}
	switch v := raw.(type) {
	case *big.Int:
		if v == nil || v.Sign() < 0 {
			return nil, fmt.Errorf("attribute %q is not a valid unsigned integer", name)
		}
		return v, nil
	default:
		n, err := toUint64(raw)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		return new(big.Int).SetUint64(n), nil
	}
}

func toUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case uint32:
		return uint64(n), nil
	case uint:
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case *big.Int:
		if n == nil || n.Sign() < 0 || !n.IsUint64() {
			return 0, fmt.Errorf("value is not a valid unsigned integer")
		}
		return n.Uint64(), nil
	case float64:
		if n < 0 || n != float64(uint64(n)) {
			return 0, fmt.Errorf("value %v is not an integer", n)
		}
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("value of type %T is not an integer", v)
	}
}
