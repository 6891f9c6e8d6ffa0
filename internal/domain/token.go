package domain

import "github.com/ethereum/go-ethereum/common"

// Token is a catalog snapshot. Identity is the contract address.
type Token struct {
	Address common.Address
	Name    string
	Symbol  string

	// Creator is the zero address when the catalog did not report one.
	Creator common.Address
}

func (t Token) String() string {
	if t.Symbol == "" {
		return t.Address.Hex()
	}
	return t.Symbol + "(" + t.Address.Hex() + ")"
}
