package common

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// UnpackAmounts splits a 32-byte packed amount into its two independent
// unsigned components: the base amount occupies the low 128 bits, the quote
// amount the high 128 bits. Inputs shorter than 32 bytes are accepted and
// treated as left-padded.
func UnpackAmounts(packed []byte) (base *big.Int, quote *big.Int, err error) {
	if len(packed) > 32 {
		return nil, nil, fmt.Errorf("packed amount is %d bytes, want at most 32", len(packed))
	}
	value := new(uint256.Int).SetBytes(packed)

	lo := new(uint256.Int).And(value, lowMask128)
	hi := new(uint256.Int).Rsh(value, 128)

	return lo.ToBig(), hi.ToBig(), nil
}

// PackAmounts is the inverse of UnpackAmounts; both components must fit in
// 128 bits.
func PackAmounts(base, quote *big.Int) ([]byte, error) {
	b, overflow := uint256.FromBig(base)
	if overflow || b.BitLen() > 128 {
		return nil, fmt.Errorf("base amount does not fit in 128 bits")
	}
	q, overflow := uint256.FromBig(quote)
	if overflow || q.BitLen() > 128 {
		return nil, fmt.Errorf("quote amount does not fit in 128 bits")
	}
	packed := new(uint256.Int).Lsh(q, 128)
	packed.Or(packed, b)
	out := packed.Bytes32()
	return out[:], nil
}

var lowMask128 = func() *uint256.Int {
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	return mask.Sub(mask, uint256.NewInt(1))
}()
