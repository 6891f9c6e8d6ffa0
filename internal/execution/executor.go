// Package execution turns trade decisions into signed, broadcast factory
// transactions.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/harmony-one/pump-fun-trading-bot/internal/chain"
	"github.com/harmony-one/pump-fun-trading-bot/internal/domain"
	"github.com/harmony-one/pump-fun-trading-bot/internal/ethutil"
	"github.com/harmony-one/pump-fun-trading-bot/internal/factory"
)

const defaultReceiptPoll = 2 * time.Second

// ChainClient is the subset of the RPC node the executor needs.
// *chain.Client satisfies it.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type Options struct {
	// ReceiptTimeout > 0 makes Execute wait (up to this long) for the receipt
	// after broadcast. Zero accepts the node's acknowledgement as final.
	ReceiptTimeout time.Duration
	ReceiptPoll    time.Duration
}

type Executor struct {
	chain   ChainClient
	signer  chain.Signer
	factory *factory.Contract
	opts    Options
	logger  *zap.Logger

	chainIDMu sync.Mutex
	chainID   *big.Int

	now func() time.Time
}

func NewExecutor(client ChainClient, signer chain.Signer, contract *factory.Contract, opts Options, logger *zap.Logger) (*Executor, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer required")
	}
	if contract == nil {
		return nil, fmt.Errorf("factory contract required")
	}
	if opts.ReceiptPoll <= 0 {
		opts.ReceiptPoll = defaultReceiptPoll
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		chain:   client,
		signer:  signer,
		factory: contract,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Execute runs one decision to broadcast. The account must be the signer's
// address; the executor never signs for anyone else.
func (e *Executor) Execute(ctx context.Context, d domain.Decision, account common.Address) (domain.Outcome, error) {
	start := e.now()

	if err := e.validate(d, account); err != nil {
		return domain.Outcome{}, err
	}

	tx, err := e.Prepare(ctx, d, account)
	if err != nil {
		return domain.Outcome{}, err
	}

	chainID, err := e.chainIDFor(ctx)
	if err != nil {
		return domain.Outcome{}, err
	}

	signed, err := e.signer.SignTx(ToEthTx(tx), chainID)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	if err := e.chain.SendTransaction(ctx, signed); err != nil {
		return domain.Outcome{}, fmt.Errorf("%w: nonce=%d: %w", ErrBroadcast, tx.Nonce, err)
	}

	out := domain.Outcome{
		TxHash:        signed.Hash(),
		Side:          d.Side,
		Token:         d.Token,
		Amount:        new(big.Int).Set(d.Amount),
		AmountDisplay: ethutil.FormatWei(d.Amount),
		Gas:           tx.Gas,
		GasPrice:      tx.GasPrice,
		Nonce:         tx.Nonce,
	}

	if e.opts.ReceiptTimeout > 0 {
		receipt, err := e.waitReceipt(ctx, signed.Hash())
		if err != nil {
			e.logger.Warn("receipt not available",
				zap.String("tx", signed.Hash().Hex()),
				zap.Error(err),
			)
		} else {
			out.Receipt = summarize(receipt, d.Token.Address, account)
			if receipt.Status != types.ReceiptStatusSuccessful {
				e.logger.Warn("trade transaction reverted",
					zap.String("tx", signed.Hash().Hex()),
					zap.Uint64("block", out.Receipt.BlockNumber),
				)
			}
		}
	}

	out.Elapsed = e.now().Sub(start)
	return out, nil
}

// Prepare encodes the call, estimates gas and reads the gas price and pending
// nonce. Gas and gas price are fetched fresh for every transaction.
func (e *Executor) Prepare(ctx context.Context, d domain.Decision, from common.Address) (domain.Transaction, error) {
	data, err := e.factory.Pack(d.Side, d.Token.Address, d.Amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("%w: encode %s call: %w", ErrSigning, d.Side.Label(), err)
	}

	value := new(big.Int)
	if d.Side == domain.SideBuy {
		value.Set(d.Amount)
	}
	to := e.factory.Address()

	gas, err := e.chain.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("%w: %s %s: %w", ErrGasEstimation, d.Side.Label(), d.Token.Address.Hex(), err)
	}

	gasPrice, err := e.chain.SuggestGasPrice(ctx)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("%w: gas price: %w", ErrNetwork, err)
	}
	if gasPrice == nil {
		return domain.Transaction{}, fmt.Errorf("%w: gas price: empty result", ErrNetwork)
	}

	nonce, err := e.chain.PendingNonceAt(ctx, from)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("%w: pending nonce: %w", ErrNetwork, err)
	}

	return domain.Transaction{
		From:     from,
		To:       to,
		Value:    value,
		Gas:      gas,
		GasPrice: new(big.Int).Set(gasPrice),
		Nonce:    nonce,
		Data:     data,
	}, nil
}

// ToEthTx converts the record to an unsigned legacy (gas price) transaction.
func ToEthTx(tx domain.Transaction) *types.Transaction {
	to := tx.To
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    tx.Nonce,
		To:       &to,
		Value:    value,
		Gas:      tx.Gas,
		GasPrice: tx.GasPrice,
		Data:     tx.Data,
	})
}

func (e *Executor) validate(d domain.Decision, account common.Address) error {
	switch {
	case !d.Side.Valid():
		return fmt.Errorf("%w: side %q", ErrInvalidDecision, d.Side)
	case (d.Token.Address == common.Address{}):
		return fmt.Errorf("%w: token address missing", ErrInvalidDecision)
	case d.Amount == nil || d.Amount.Sign() <= 0:
		return fmt.Errorf("%w: amount must be positive, got %v", ErrInvalidDecision, d.Amount)
	case account != e.signer.Address():
		return fmt.Errorf("%w: account %s is not the signer %s", ErrSigning, account.Hex(), e.signer.Address().Hex())
	}
	return nil
}

func (e *Executor) chainIDFor(ctx context.Context) (*big.Int, error) {
	e.chainIDMu.Lock()
	defer e.chainIDMu.Unlock()

	if e.chainID != nil {
		return e.chainID, nil
	}
	id, err := e.chain.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %w", ErrNetwork, err)
	}
	if id == nil || id.Sign() <= 0 {
		return nil, fmt.Errorf("%w: chain id: invalid %v", ErrNetwork, id)
	}
	e.chainID = id
	return id, nil
}

func (e *Executor) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, e.opts.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(e.opts.ReceiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := e.chain.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			e.logger.Debug("receipt poll failed", zap.String("tx", hash.Hex()), zap.Error(err))
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("wait receipt %s: %w", hash.Hex(), waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func summarize(r *types.Receipt, token, account common.Address) *domain.ReceiptSummary {
	s := &domain.ReceiptSummary{
		Status:     r.Status,
		GasUsed:    r.GasUsed,
		TokenDelta: chain.TokenDelta(r, token, account),
	}
	if r.BlockNumber != nil {
		s.BlockNumber = r.BlockNumber.Uint64()
	}
	return s
}
