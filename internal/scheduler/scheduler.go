// Package scheduler drives the fetch, decide, execute cycle on a fixed
// interval until cancelled.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harmony-one/pump-fun-trading-bot/internal/catalog"
	"github.com/harmony-one/pump-fun-trading-bot/internal/domain"
	"github.com/harmony-one/pump-fun-trading-bot/internal/ethutil"
	"github.com/harmony-one/pump-fun-trading-bot/internal/execution"
	"github.com/harmony-one/pump-fun-trading-bot/internal/metrics"
)

const (
	DefaultInterval       = 60 * time.Second
	DefaultCandidateLimit = 3
	DefaultMaxBackoff     = 5 * time.Minute
)

var (
	ErrAlreadyRunning = errors.New("scheduler already running")
	errCyclePanic     = errors.New("cycle panicked")
)

type Catalog interface {
	ListTokens(ctx context.Context, filter catalog.Filter) ([]domain.Token, error)
}

type BalanceReader interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

type Decider interface {
	Decide(token domain.Token, balance *big.Int) domain.Decision
}

type Executor interface {
	Execute(ctx context.Context, d domain.Decision, account common.Address) (domain.Outcome, error)
}

type Config struct {
	Account        common.Address
	Interval       time.Duration
	CandidateLimit int
	Search         string
	// Creators restricts trading to tokens launched by these addresses.
	// Empty means no restriction.
	Creators   map[common.Address]struct{}
	MaxBackoff time.Duration
}

// CycleReport summarizes one pass over the candidates.
type CycleReport struct {
	ID         string
	Fetched    int
	Candidates int
	Executed   int
	Skipped    int
	Failed     int
}

type Scheduler struct {
	cfg      Config
	catalog  Catalog
	balances BalanceReader
	decider  Decider
	executor Executor
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	// Only touched by the loop goroutine.
	catalogFailures int
}

func New(cfg Config, cat Catalog, balances BalanceReader, decider Decider, executor Executor, logger *zap.Logger) (*Scheduler, error) {
	switch {
	case cat == nil:
		return nil, fmt.Errorf("catalog required")
	case balances == nil:
		return nil, fmt.Errorf("balance reader required")
	case decider == nil:
		return nil, fmt.Errorf("decider required")
	case executor == nil:
		return nil, fmt.Errorf("executor required")
	case (cfg.Account == common.Address{}):
		return nil, fmt.Errorf("trading account required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCandidateLimit
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.MaxBackoff < cfg.Interval {
		cfg.MaxBackoff = cfg.Interval
	}
	if len(cfg.Creators) == 0 {
		cfg.Creators = nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:      cfg,
		catalog:  cat,
		balances: balances,
		decider:  decider,
		executor: executor,
		logger:   logger,
	}, nil
}

// Start launches Run in the background. Stop cancels it and waits. Once the
// loop has exited, by Stop or by ctx, Start may be called again.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done, s.running = cancel, done, true

	go func() {
		defer close(done)
		_ = s.Run(runCtx)
		cancel()

		// The parent context may have ended the loop; allow a fresh Start.
		s.mu.Lock()
		if s.done == done {
			s.cancel, s.done, s.running = nil, nil, false
		}
		s.mu.Unlock()
	}()
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done, s.running = nil, nil, false
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run blocks until ctx is cancelled. Cycle failures never end the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("trading loop started",
		zap.String("account", s.cfg.Account.Hex()),
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("candidate_limit", s.cfg.CandidateLimit),
		zap.Int("creator_allowlist", len(s.cfg.Creators)),
	)

	for {
		if ctx.Err() != nil {
			s.logger.Info("trading loop stopped")
			return nil
		}

		_, err := s.safeCycle(ctx)
		delay := s.nextDelay(err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("trading loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

func (s *Scheduler) safeCycle(ctx context.Context) (report CycleReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("trading cycle panicked", zap.Any("panic", r), zap.Stack("stack"))
			metrics.CyclesTotal.WithLabelValues("panic").Inc()
			err = fmt.Errorf("%w: %v", errCyclePanic, r)
		}
	}()
	return s.RunCycle(ctx)
}

// nextDelay grows the sleep exponentially while the catalog keeps failing.
func (s *Scheduler) nextDelay(err error) time.Duration {
	if err == nil || !errors.Is(err, catalog.ErrCatalog) {
		s.catalogFailures = 0
		return s.cfg.Interval
	}
	s.catalogFailures++
	return backoff(s.cfg.Interval, s.cfg.MaxBackoff, s.catalogFailures)
}

func backoff(base, limit time.Duration, failures int) time.Duration {
	d := base
	for i := 1; i < failures; i++ {
		if d >= limit/2 {
			return limit
		}
		d *= 2
	}
	if d > limit {
		return limit
	}
	return d
}

// RunCycle performs a single fetch and trade pass. It returns an error only
// when the catalog could not be read; per-token failures are logged and
// counted in the report.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{ID: uuid.NewString()}
	log := s.logger.With(zap.String("cycle_id", report.ID))

	tokens, err := s.catalog.ListTokens(ctx, catalog.Filter{
		Search: s.cfg.Search,
		Limit:  s.cfg.CandidateLimit,
	})
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("catalog_error").Inc()
		log.Error("fetch tokens failed", zap.Error(err))
		return report, err
	}
	report.Fetched = len(tokens)
	metrics.CatalogTokens.Set(float64(len(tokens)))

	candidates := s.filter(tokens)
	report.Candidates = len(candidates)
	log.Info("tokens fetched",
		zap.Int("fetched", report.Fetched),
		zap.Int("candidates", report.Candidates),
	)

	for _, tok := range candidates {
		if ctx.Err() != nil {
			break
		}
		switch s.trade(ctx, log, tok) {
		case tradeExecuted:
			report.Executed++
		case tradeSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}

	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	log.Info("cycle finished",
		zap.Int("executed", report.Executed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *Scheduler) filter(tokens []domain.Token) []domain.Token {
	if s.cfg.Creators == nil {
		return tokens
	}
	out := make([]domain.Token, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := s.cfg.Creators[tok.Creator]; ok {
			out = append(out, tok)
		}
	}
	return out
}

type tradeResult int

const (
	tradeFailed tradeResult = iota
	tradeSkipped
	tradeExecuted
)

func (s *Scheduler) trade(ctx context.Context, log *zap.Logger, tok domain.Token) tradeResult {
	log = log.With(zap.String("token", tok.String()))

	balance, err := s.balances.BalanceOf(ctx, tok.Address, s.cfg.Account)
	if err != nil {
		err = fmt.Errorf("%w: token balance: %w", execution.ErrNetwork, err)
		metrics.TradesTotal.WithLabelValues("none", execution.Kind(err)).Inc()
		log.Warn("read balance failed", zap.Error(err))
		return tradeFailed
	}

	d := s.decider.Decide(tok, balance)
	side := d.Side.Label()
	if d.Amount == nil || d.Amount.Sign() <= 0 {
		metrics.TradesTotal.WithLabelValues(side, "skipped").Inc()
		log.Info("zero trade amount, skipping", zap.String("side", side))
		return tradeSkipped
	}

	out, err := s.executor.Execute(ctx, d, s.cfg.Account)
	metrics.TradesTotal.WithLabelValues(side, execution.Kind(err)).Inc()
	if err != nil {
		log.Warn("trade failed",
			zap.String("side", side),
			zap.String("amount", ethutil.FormatWei(d.Amount)),
			zap.String("kind", execution.Kind(err)),
			zap.Error(err),
		)
		return tradeFailed
	}

	metrics.TradeDuration.WithLabelValues(side).Observe(out.Elapsed.Seconds())
	fields := []zap.Field{
		zap.String("side", side),
		zap.String("amount", out.AmountDisplay),
		zap.String("tx", out.TxHash.Hex()),
		zap.Uint64("nonce", out.Nonce),
		zap.Uint64("gas", out.Gas),
		zap.Duration("elapsed", out.Elapsed),
	}
	if out.Receipt != nil {
		fields = append(fields,
			zap.Uint64("status", out.Receipt.Status),
			zap.Uint64("block", out.Receipt.BlockNumber),
			zap.String("token_delta", out.Receipt.TokenDelta.String()),
		)
	}
	log.Info("trade sent", fields...)
	return tradeExecuted
}
