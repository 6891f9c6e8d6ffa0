package ethutil

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToWei(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"-1", "0"},
		{"1", "1000000000000000000"},
		{"0.01", "10000000000000000"},
		{"0.1", "100000000000000000"},
		{"0.0000000000000000019", "1"},
	}
	for _, tc := range cases {
		got := ToWei(decimal.RequireFromString(tc.in))
		assert.Equal(t, tc.want, got.String(), "ToWei(%s)", tc.in)
	}
}

func TestFormatWei(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0", FormatWei(nil))
	assert.Equal(t, "0", FormatWei(big.NewInt(0)))
	assert.Equal(t, "0.0000000000000005", FormatWei(big.NewInt(500)))

	v, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5", FormatWei(v))
}
