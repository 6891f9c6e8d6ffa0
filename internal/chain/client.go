// Package chain talks to the EVM JSON-RPC node and holds the signing
// capability for the trading account.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	DefaultRPCURL      = "https://api.harmony.one"
	DefaultCallTimeout = 30 * time.Second
)

// Client wraps ethclient and bounds every RPC call with a timeout.
type Client struct {
	rpc     *ethclient.Client
	timeout time.Duration
}

func ValidateRPCURL(rpcURL string) error {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return fmt.Errorf("RPC URL missing")
	}
	for _, p := range []string{"http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(rpcURL, p) {
			return nil
		}
	}
	return fmt.Errorf("RPC URL must be http(s):// or ws(s)://, got %q", rpcURL)
}

func Dial(ctx context.Context, rpcURL string, timeout time.Duration) (*Client, error) {
	if err := ValidateRPCURL(rpcURL); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	rpc, err := ethclient.DialContext(dialCtx, strings.TrimSpace(rpcURL))
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	return &Client{rpc: rpc, timeout: timeout}, nil
}

func (c *Client) Close() {
	if c == nil || c.rpc == nil {
		return
	}
	c.rpc.Close()
}

func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.rpc.ChainID(ctx)
}

func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.rpc.BalanceAt(ctx, account, nil)
}

// BalanceOf reads an ERC-20 balance with a raw balanceOf(address) call.
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if (token == common.Address{}) {
		return nil, fmt.Errorf("token address missing")
	}
	if (owner == common.Address{}) {
		return nil, fmt.Errorf("owner address missing")
	}

	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	out, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &token, Data: BalanceOfCalldata(owner)}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s) on %s: %w", owner.Hex(), token.Hex(), err)
	}
	return DecodeUint256(out)
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.rpc.EstimateGas(ctx, msg)
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.rpc.SuggestGasPrice(ctx)
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.rpc.PendingNonceAt(ctx, account)
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.rpc.SendTransaction(ctx, tx)
}

// TransactionReceipt returns ethereum.NotFound while the tx is pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.rpc.TransactionReceipt(ctx, hash)
}
