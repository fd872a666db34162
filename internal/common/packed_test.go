package common

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnpackAmountsSplitsComponents(t *testing.T) {
	// quote in the high 128 bits, base in the low 128 bits
	value := new(big.Int).Lsh(big.NewInt(7), 128)
	value.Or(value, big.NewInt(5))

	packed := make([]byte, 32)
	value.FillBytes(packed)

	base, quote, err := UnpackAmounts(packed)
	require.NoError(t, err)
	assert.Equal(t, 0, base.Cmp(big.NewInt(5)))
	assert.Equal(t, 0, quote.Cmp(big.NewInt(7)))
}

func TestUnpackAmountsShortInputIsLeftPadded(t *testing.T) {
	base, quote, err := UnpackAmounts([]byte{0x05})
	require.NoError(t, err)
	assert.Equal(t, 0, base.Cmp(big.NewInt(5)))
	assert.Equal(t, 0, quote.Sign())
}

func TestUnpackAmountsRejectsOversizedInput(t *testing.T) {
	_, _, err := UnpackAmounts(make([]byte, 33))
	assert.Error(t, err)
}

func TestPackUnpackRoundtrip(t *testing.T) {
	// values near the top of the 128-bit range
	max128 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	cases := []struct {
		name  string
		base  *big.Int
		quote *big.Int
	}{
		{"zero", big.NewInt(0), big.NewInt(0)},
		{"small", big.NewInt(42), big.NewInt(1337)},
		{"max base", max128, big.NewInt(0)},
		{"max both", max128, max128},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			packed, err := PackAmounts(tc.base, tc.quote)
			require.NoError(t, err)
			require.Len(t, packed, 32)

			base, quote, err := UnpackAmounts(packed)
			require.NoError(t, err)
			assert.Equal(t, 0, tc.base.Cmp(base))
			assert.Equal(t, 0, tc.quote.Cmp(quote))
		})
	}
}

func TestPackAmountsRejectsOverflow(t *testing.T) {
	tooBig := new(big.Int).Lsh(big.NewInt(1), 128)

	_, err := PackAmounts(tooBig, big.NewInt(0))
	assert.Error(t, err)

	_, err = PackAmounts(big.NewInt(0), tooBig)
	assert.Error(t, err)
}
