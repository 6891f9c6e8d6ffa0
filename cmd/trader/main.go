package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harmony-one/pump-fun-trading-bot/internal/catalog"
	"github.com/harmony-one/pump-fun-trading-bot/internal/chain"
	"github.com/harmony-one/pump-fun-trading-bot/internal/config"
	"github.com/harmony-one/pump-fun-trading-bot/internal/decision"
	"github.com/harmony-one/pump-fun-trading-bot/internal/ethutil"
	"github.com/harmony-one/pump-fun-trading-bot/internal/execution"
	"github.com/harmony-one/pump-fun-trading-bot/internal/factory"
	"github.com/harmony-one/pump-fun-trading-bot/internal/logging"
	"github.com/harmony-one/pump-fun-trading-bot/internal/metrics"
	"github.com/harmony-one/pump-fun-trading-bot/internal/randsrc"
	"github.com/harmony-one/pump-fun-trading-bot/internal/scheduler"
)

func main() {
	var (
		envFile string
		once    bool
	)
	flag.StringVar(&envFile, "env", ".env", "Optional .env file loaded before reading the environment")
	flag.BoolVar(&once, "once", false, "Run a single trading cycle and exit")
	flag.Parse()

	cfg, err := config.Load(envFile)
	if err != nil {
		boot, _ := logging.New(config.Logging{})
		if boot == nil {
			fmt.Fprintf(os.Stderr, "%v, exit\n", err)
			os.Exit(1)
		}
		boot.Error(fmt.Sprintf("%v, exit", err))
		_ = boot.Sync()
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, once); err != nil {
		logger.Error("trader exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("trader stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, once bool) error {
	signer, err := chain.NewKeySigner(cfg.PrivateKey)
	if err != nil {
		return err
	}
	account := signer.Address()

	logger.Info("starting trader",
		zap.String("account", account.Hex()),
		zap.String("rpc", cfg.RPCURL),
		zap.String("api", cfg.APIURL),
		zap.String("factory", cfg.Factory.Hex()),
		zap.String("sizing_mode", string(cfg.Mode)),
		zap.String("max_trade_size", cfg.MaxTradeSize.String()),
		zap.Duration("interval", cfg.TradingInterval),
		zap.String("creators", ethutil.JoinHex(cfg.Creators)),
		zap.Strings("env_files", cfg.EnvFiles),
	)

	client, err := chain.Dial(ctx, cfg.RPCURL, cfg.RPCTimeout)
	if err != nil {
		return err
	}
	defer client.Close()

	if native, err := client.NativeBalance(ctx, account); err != nil {
		logger.Warn("read native balance failed", zap.Error(err))
	} else {
		logger.Info("account balance", zap.String("native", ethutil.FormatWei(native)))
	}

	contract, err := factory.New(cfg.Factory)
	if err != nil {
		return err
	}

	tokens, err := catalog.NewClient(cfg.APIURL, cfg.CatalogTimeout, logger.Named("catalog"))
	if err != nil {
		return err
	}

	src, err := randsrc.New()
	if err != nil {
		return err
	}
	engine, err := decision.NewEngine(cfg.Policy(), src)
	if err != nil {
		return err
	}

	executor, err := execution.NewExecutor(client, signer, contract, execution.Options{
		ReceiptTimeout: cfg.ReceiptTimeout,
	}, logger.Named("executor"))
	if err != nil {
		return err
	}

	sched, err := scheduler.New(scheduler.Config{
		Account:        account,
		Interval:       cfg.TradingInterval,
		CandidateLimit: cfg.CandidateLimit,
		Search:         cfg.TokenSearch,
		Creators:       ethutil.AddressSet(cfg.Creators),
		MaxBackoff:     cfg.CatalogMaxBackoff,
	}, tokens, client, engine, executor, logger.Named("scheduler"))
	if err != nil {
		return err
	}

	if once {
		_, err := sched.RunCycle(ctx)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.MetricsAddr, logger.Named("metrics"))
		})
	}
	g.Go(func() error {
		return sched.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
