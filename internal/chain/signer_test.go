package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known hardhat account #0.
const testKeyHex = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestNewKeySigner(t *testing.T) {
	t.Parallel()

	s, err := NewKeySigner(testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), s.Address())

	noPrefix, err := NewKeySigner(testKeyHex[2:])
	require.NoError(t, err)
	assert.Equal(t, s.Address(), noPrefix.Address())
}

func TestNewKeySigner_Invalid(t *testing.T) {
	t.Parallel()

	_, err := NewKeySigner("")
	assert.Error(t, err)

	_, err = NewKeySigner("0xzz")
	assert.Error(t, err)
}

func TestKeySigner_SignTxRecoversSender(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s := NewKeySignerFromKey(key)

	to := common.HexToAddress("0xfa")
	chainID := big.NewInt(1666600000)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    7,
		To:       &to,
		Value:    big.NewInt(1),
		Gas:      21000,
		GasPrice: big.NewInt(100),
	})

	signed, err := s.SignTx(tx, chainID)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), sender)
	assert.Equal(t, 0, chainID.Cmp(signed.ChainId()))
}

func TestKeySigner_SignTxRejectsBadInput(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s := NewKeySignerFromKey(key)

	_, err = s.SignTx(nil, big.NewInt(1))
	assert.Error(t, err)

	tx := types.NewTx(&types.LegacyTx{Gas: 21000, GasPrice: big.NewInt(1)})
	_, err = s.SignTx(tx, nil)
	assert.Error(t, err)
}
