package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	erc20BalanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	erc20TransferTopic     = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

func BalanceOfCalldata(owner common.Address) []byte {
	data := make([]byte, 0, 4+32)
	data = append(data, erc20BalanceOfSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	return data
}

func DecodeUint256(out []byte) (*big.Int, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("empty result")
	}
	if len(out) > 32 {
		out = out[:32]
	}
	return new(big.Int).SetBytes(out), nil
}

// TokenDelta sums the ERC-20 Transfer logs emitted by token in the receipt
// and returns the account's net movement (positive = received). Transfers
// between other parties are ignored.
func TokenDelta(receipt *types.Receipt, token, account common.Address) *big.Int {
	delta := new(big.Int)
	if receipt == nil {
		return delta
	}

	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != token {
			continue
		}
		if len(lg.Topics) < 3 || lg.Topics[0] != erc20TransferTopic || len(lg.Data) < 32 {
			continue
		}
		from := common.BytesToAddress(lg.Topics[1].Bytes())
		to := common.BytesToAddress(lg.Topics[2].Bytes())
		value := new(big.Int).SetBytes(lg.Data[:32])
		if value.Sign() <= 0 || from == to {
			continue
		}

		switch account {
		case to:
			delta.Add(delta, value)
		case from:
			delta.Sub(delta, value)
		}
	}
	return delta
}
