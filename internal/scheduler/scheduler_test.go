package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harmony-one/pump-fun-trading-bot/internal/catalog"
	"github.com/harmony-one/pump-fun-trading-bot/internal/decision"
	"github.com/harmony-one/pump-fun-trading-bot/internal/domain"
	"github.com/harmony-one/pump-fun-trading-bot/internal/execution"
	"github.com/harmony-one/pump-fun-trading-bot/internal/randsrc"
)

var account = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func tok(n int64, creator string) domain.Token {
	return domain.Token{
		Address: common.BigToAddress(big.NewInt(n)),
		Symbol:  fmt.Sprintf("T%d", n),
		Creator: common.HexToAddress(creator),
	}
}

type fakeCatalog struct {
	mu      sync.Mutex
	calls   int
	filters []catalog.Filter
	// failFirst calls return a catalog error before tokens are served.
	failFirst int
	tokens    []domain.Token
}

func (f *fakeCatalog) ListTokens(_ context.Context, filter catalog.Filter) ([]domain.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.filters = append(f.filters, filter)
	if f.calls <= f.failFirst {
		return nil, fmt.Errorf("%w: dial tcp: connection refused", catalog.ErrCatalog)
	}
	return f.tokens, nil
}

func (f *fakeCatalog) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeBalances struct {
	err     map[common.Address]error
	balance map[common.Address]int64
}

func (f fakeBalances) BalanceOf(_ context.Context, token, _ common.Address) (*big.Int, error) {
	if err := f.err[token]; err != nil {
		return nil, err
	}
	return big.NewInt(f.balance[token]), nil
}

type fixedDecider struct {
	amount *big.Int
	panics bool
}

func (d fixedDecider) Decide(token domain.Token, _ *big.Int) domain.Decision {
	if d.panics {
		panic("boom")
	}
	return domain.Decision{Token: token, Side: domain.SideBuy, Amount: d.amount}
}

type fakeExecutor struct {
	mu        sync.Mutex
	fail      map[common.Address]error
	traded    []common.Address
	decisions []domain.Decision
}

func (f *fakeExecutor) Execute(_ context.Context, d domain.Decision, _ common.Address) (domain.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[d.Token.Address]; err != nil {
		return domain.Outcome{}, err
	}
	f.traded = append(f.traded, d.Token.Address)
	f.decisions = append(f.decisions, d)
	return domain.Outcome{Side: d.Side, Token: d.Token, Amount: d.Amount, AmountDisplay: "0.05"}, nil
}

func (f *fakeExecutor) Traded() []common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]common.Address(nil), f.traded...)
}

func newScheduler(t *testing.T, cfg Config, cat Catalog, bal BalanceReader, dec Decider, ex Executor) *Scheduler {
	t.Helper()
	if (cfg.Account == common.Address{}) {
		cfg.Account = account
	}
	s, err := New(cfg, cat, bal, dec, ex, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestRunCycle_GasFailureDoesNotStopOtherTokens(t *testing.T) {
	t.Parallel()

	tokens := []domain.Token{tok(1, ""), tok(2, ""), tok(3, "")}
	cat := &fakeCatalog{tokens: tokens}
	ex := &fakeExecutor{fail: map[common.Address]error{
		tokens[1].Address: fmt.Errorf("%w: execution reverted", execution.ErrGasEstimation),
	}}
	s := newScheduler(t, Config{}, cat, fakeBalances{}, fixedDecider{amount: big.NewInt(1)}, ex)

	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Candidates)
	assert.Equal(t, 2, report.Executed)
	assert.Equal(t, 1, report.Failed)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, []common.Address{tokens[0].Address, tokens[2].Address}, ex.Traded())
}

func TestRunCycle_WithDecisionEngine(t *testing.T) {
	t.Parallel()

	held, fresh := tok(0xA, ""), tok(0xB, "")
	bal := fakeBalances{balance: map[common.Address]int64{held.Address: 500}}
	engine, err := decision.NewEngine(decision.Policy{
		Mode:         decision.SizingRandom,
		MaxTradeSize: decimal.RequireFromString("0.1"),
	}, randsrc.Fixed{Value: 0.9, Fraction: 0.5})
	require.NoError(t, err)

	ex := &fakeExecutor{}
	s := newScheduler(t, Config{}, &fakeCatalog{tokens: []domain.Token{held, fresh}}, bal, engine, ex)

	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Executed)
	require.Len(t, ex.decisions, 2)

	assert.Equal(t, domain.SideSell, ex.decisions[0].Side)
	assert.Equal(t, big.NewInt(500), ex.decisions[0].Amount)

	assert.Equal(t, domain.SideBuy, ex.decisions[1].Side)
	assert.Positive(t, ex.decisions[1].Amount.Sign())
}

func TestRunCycle_BalanceFailureMovesOn(t *testing.T) {
	t.Parallel()

	tokens := []domain.Token{tok(1, ""), tok(2, "")}
	bal := fakeBalances{err: map[common.Address]error{tokens[0].Address: errors.New("timeout")}}
	ex := &fakeExecutor{}
	s := newScheduler(t, Config{}, &fakeCatalog{tokens: tokens}, bal, fixedDecider{amount: big.NewInt(1)}, ex)

	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []common.Address{tokens[1].Address}, ex.Traded())
}

func TestRunCycle_UsesCandidateLimitAndSearch(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{}
	s := newScheduler(t, Config{Search: "dog"}, cat, fakeBalances{}, fixedDecider{amount: big.NewInt(1)}, &fakeExecutor{})

	_, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, cat.filters, 1)
	assert.Equal(t, catalog.Filter{Search: "dog", Limit: DefaultCandidateLimit}, cat.filters[0])
}

func TestRunCycle_CreatorAllowlist(t *testing.T) {
	t.Parallel()

	allowed := "0x00000000000000000000000000000000000000c1"
	tokens := []domain.Token{tok(1, allowed), tok(2, "0x00000000000000000000000000000000000000c2"), tok(3, "")}
	ex := &fakeExecutor{}
	cfg := Config{Creators: map[common.Address]struct{}{common.HexToAddress(allowed): {}}}
	s := newScheduler(t, cfg, &fakeCatalog{tokens: tokens}, fakeBalances{}, fixedDecider{amount: big.NewInt(1)}, ex)

	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, []common.Address{tokens[0].Address}, ex.Traded())
}

func TestRunCycle_ZeroAmountSkipped(t *testing.T) {
	t.Parallel()

	ex := &fakeExecutor{}
	s := newScheduler(t, Config{}, &fakeCatalog{tokens: []domain.Token{tok(1, "")}}, fakeBalances{}, fixedDecider{amount: new(big.Int)}, ex)

	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, ex.Traded())
}

func TestRunCycle_CatalogError(t *testing.T) {
	t.Parallel()

	ex := &fakeExecutor{}
	s := newScheduler(t, Config{}, &fakeCatalog{failFirst: 1}, fakeBalances{}, fixedDecider{amount: big.NewInt(1)}, ex)

	_, err := s.RunCycle(context.Background())
	assert.ErrorIs(t, err, catalog.ErrCatalog)
	assert.Empty(t, ex.Traded())
}

func TestRun_RetriesAfterCatalogFailure(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{failFirst: 1, tokens: []domain.Token{tok(1, "")}}
	ex := &fakeExecutor{}
	s := newScheduler(t, Config{Interval: 5 * time.Millisecond}, cat, fakeBalances{}, fixedDecider{amount: big.NewInt(1)}, ex)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool { return len(ex.Traded()) > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, cat.Calls(), 2)
}

func TestRun_SurvivesPanics(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{tokens: []domain.Token{tok(1, "")}}
	s := newScheduler(t, Config{Interval: 5 * time.Millisecond}, cat, fakeBalances{}, fixedDecider{panics: true}, &fakeExecutor{})

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return cat.Calls() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{}
	s := newScheduler(t, Config{Interval: time.Hour}, cat, fakeBalances{}, fixedDecider{amount: big.NewInt(1)}, &fakeExecutor{})

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)

	require.Eventually(t, func() bool { return cat.Calls() == 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not interrupt the sleep")
	}

	// Stopping twice is harmless and the scheduler can be restarted.
	s.Stop()
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestStart_AfterParentContextCancelled(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{}
	s := newScheduler(t, Config{Interval: time.Hour}, cat, fakeBalances{}, fixedDecider{amount: big.NewInt(1)}, &fakeExecutor{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	require.Eventually(t, func() bool { return cat.Calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	// The loop exits on its own; a new Start must succeed without Stop.
	require.Eventually(t, func() bool {
		err := s.Start(context.Background())
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return cat.Calls() == 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestRun_ReturnsOnCancelledContext(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{}
	s := newScheduler(t, Config{}, cat, fakeBalances{}, fixedDecider{amount: big.NewInt(1)}, &fakeExecutor{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
	assert.Zero(t, cat.Calls())
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	base, limit := time.Second, 5*time.Second
	assert.Equal(t, time.Second, backoff(base, limit, 1))
	assert.Equal(t, 2*time.Second, backoff(base, limit, 2))
	assert.Equal(t, 4*time.Second, backoff(base, limit, 3))
	assert.Equal(t, limit, backoff(base, limit, 4))
	assert.Equal(t, limit, backoff(base, limit, 1000))
}

func TestNextDelay_ResetsAfterSuccess(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, Config{Interval: time.Second, MaxBackoff: time.Minute}, &fakeCatalog{}, fakeBalances{}, fixedDecider{}, &fakeExecutor{})
	catErr := fmt.Errorf("%w: 502", catalog.ErrCatalog)

	assert.Equal(t, time.Second, s.nextDelay(catErr))
	assert.Equal(t, 2*time.Second, s.nextDelay(catErr))
	assert.Equal(t, 4*time.Second, s.nextDelay(catErr))
	assert.Equal(t, time.Second, s.nextDelay(nil))
	assert.Equal(t, time.Second, s.nextDelay(catErr))
	// Panics are not catalog failures.
	assert.Equal(t, time.Second, s.nextDelay(errCyclePanic))
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, &fakeCatalog{}, fakeBalances{}, fixedDecider{}, &fakeExecutor{}, nil)
	assert.Error(t, err)

	_, err = New(Config{Account: account}, nil, fakeBalances{}, fixedDecider{}, &fakeExecutor{}, nil)
	assert.Error(t, err)
}
