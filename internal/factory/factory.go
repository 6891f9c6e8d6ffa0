// Package factory encodes and decodes calls to the token factory contract.
package factory

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/harmony-one/pump-fun-trading-bot/internal/domain"
)

const (
	MethodBuy  = "buy"
	MethodSell = "sell"
)

// Only the trading entry points are declared; the rest of the factory ABI is
// never called by the bot.
const abiJSON = `[
  {"inputs":[
    {"internalType":"address","name":"tokenAddress","type":"address"}
  ],"name":"buy","outputs":[],"stateMutability":"payable","type":"function"},
  {"inputs":[
    {"internalType":"address","name":"tokenAddress","type":"address"},
    {"internalType":"uint256","name":"amount","type":"uint256"}
  ],"name":"sell","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

type Contract struct {
	address common.Address
	abi     abi.ABI
}

func New(address common.Address) (*Contract, error) {
	if (address == common.Address{}) {
		return nil, fmt.Errorf("factory address missing")
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("factory abi parse: %w", err)
	}
	return &Contract{address: address, abi: parsed}, nil
}

func (c *Contract) Address() common.Address {
	return c.address
}

// Call is a decoded factory invocation. Amount is nil for buy.
type Call struct {
	Method string
	Token  common.Address
	Amount *big.Int
}

// Pack encodes the call for a trade side: buy(token) or sell(token, amount).
func (c *Contract) Pack(side domain.Side, token common.Address, amount *big.Int) ([]byte, error) {
	switch side {
	case domain.SideBuy:
		return c.abi.Pack(MethodBuy, token)
	case domain.SideSell:
		if amount == nil || amount.Sign() < 0 {
			return nil, fmt.Errorf("sell amount must be non-negative, got %v", amount)
		}
		return c.abi.Pack(MethodSell, token, amount)
	default:
		return nil, fmt.Errorf("unknown side %q", side)
	}
}

// Decode reverses Pack.
func (c *Contract) Decode(data []byte) (Call, error) {
	if len(data) < 4 {
		return Call{}, fmt.Errorf("calldata too short: %d bytes", len(data))
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return Call{}, err
	}
	vals, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return Call{}, fmt.Errorf("unpack %s: %w", method.Name, err)
	}

	out := Call{Method: method.Name}
	switch method.Name {
	case MethodBuy:
		if len(vals) != 1 {
			return Call{}, fmt.Errorf("buy: unexpected arg count %d", len(vals))
		}
		token, ok := vals[0].(common.Address)
		if !ok {
			return Call{}, fmt.Errorf("buy: unexpected token type %T", vals[0])
		}
		out.Token = token
	case MethodSell:
		if len(vals) != 2 {
			return Call{}, fmt.Errorf("sell: unexpected arg count %d", len(vals))
		}
		token, ok := vals[0].(common.Address)
		if !ok {
			return Call{}, fmt.Errorf("sell: unexpected token type %T", vals[0])
		}
		amount, ok := vals[1].(*big.Int)
		if !ok {
			return Call{}, fmt.Errorf("sell: unexpected amount type %T", vals[1])
		}
		out.Token = token
		out.Amount = amount
	}
	return out, nil
}
