package domain

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

func (s Side) Label() string {
	return strings.ToLower(string(s))
}

// AccountState is read from the chain right before a decision and never
// reused across cycles.
type AccountState struct {
	Address      common.Address
	TokenBalance *big.Int
}

// Decision is a single-use trade instruction.
//
// Amount semantics:
//   - BUY: wei of the native currency to pay into the factory
//   - SELL: smallest token units to sell (the full balance read at decision time)
type Decision struct {
	Token  Token
	Side   Side
	Amount *big.Int
}

// Transaction is the unsigned transaction built for a decision.
// Value is only non-zero for BUY; SELL carries the amount in Data.
type Transaction struct {
	From     common.Address
	To       common.Address
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
	Nonce    uint64
	Data     []byte
}

// ReceiptSummary is filled only when the executor waited for inclusion.
type ReceiptSummary struct {
	Status      uint64
	BlockNumber uint64
	GasUsed     uint64

	// TokenDelta is the account's net token movement seen in Transfer logs
	// (positive = received).
	TokenDelta *big.Int
}

// Outcome is reported for every successfully broadcast trade. It is logged,
// not persisted.
type Outcome struct {
	TxHash        common.Hash
	Side          Side
	Token         Token
	Amount        *big.Int
	AmountDisplay string
	Gas           uint64
	GasPrice      *big.Int
	Nonce         uint64
	Elapsed       time.Duration
	Receipt       *ReceiptSummary
}
