package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/harmony-one/pump-fun-trading-bot/internal/catalog"
	"github.com/harmony-one/pump-fun-trading-bot/internal/chain"
	"github.com/harmony-one/pump-fun-trading-bot/internal/config"
	"github.com/harmony-one/pump-fun-trading-bot/internal/domain"
	"github.com/harmony-one/pump-fun-trading-bot/internal/dotenv"
	"github.com/harmony-one/pump-fun-trading-bot/internal/ethutil"
	"github.com/harmony-one/pump-fun-trading-bot/internal/logging"
)

func main() {
	logger, err := logging.New(config.Logging{Level: "warn"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if _, err := dotenv.Load(); err != nil {
		logger.Warn("load .env", zap.Error(err))
	}

	var (
		addrFlag  string
		tokenFlag string
		search    string
		limit     int
	)
	flag.StringVar(&addrFlag, "address", "", "Wallet address to check (default: signer from PRIVATE_KEY)")
	flag.StringVar(&tokenFlag, "token", "", "Comma separated token addresses (default: tokens from the catalog)")
	flag.StringVar(&search, "search", "", "Catalog search filter when --token is not set")
	flag.IntVar(&limit, "limit", 10, "Catalog tokens to check when --token is not set")
	flag.Parse()

	rpcURL := firstNonEmpty(os.Getenv("RPC_URL"), chain.DefaultRPCURL)
	apiURL := firstNonEmpty(os.Getenv("API_URL"), catalog.DefaultURL)

	owner, ownerSrc, err := resolveOwnerAddress(addrFlag)
	if err != nil {
		logger.Fatal("resolve owner", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := chain.Dial(ctx, rpcURL, chain.DefaultCallTimeout)
	if err != nil {
		logger.Fatal("dial rpc", zap.Error(err))
	}
	defer client.Close()

	tokens, err := resolveTokens(ctx, tokenFlag, apiURL, search, limit, logger)
	if err != nil {
		logger.Fatal("resolve tokens", zap.Error(err))
	}

	native, err := client.NativeBalance(ctx, owner)
	if err != nil {
		logger.Fatal("native balance", zap.Error(err))
	}

	fmt.Printf("owner: %s (%s)\n", owner.Hex(), ownerSrc)
	fmt.Printf("native_balance: %s (wei=%s)\n", ethutil.FormatWei(native), native.String())
	for _, tok := range tokens {
		bal, err := client.BalanceOf(ctx, tok.Address, owner)
		if err != nil {
			fmt.Printf("token %s: error: %v\n", tok, err)
			continue
		}
		fmt.Printf("token %s: %s\n", tok, ethutil.FormatWei(bal))
	}
}

func resolveOwnerAddress(addrFlag string) (common.Address, string, error) {
	if raw := strings.TrimSpace(addrFlag); raw != "" {
		if !common.IsHexAddress(raw) {
			return common.Address{}, "", fmt.Errorf("invalid --address %q", raw)
		}
		return common.HexToAddress(raw), "--address", nil
	}

	if pkHex := strings.TrimSpace(os.Getenv("PRIVATE_KEY")); pkHex != "" {
		signer, err := chain.NewKeySigner(pkHex)
		if err != nil {
			return common.Address{}, "", fmt.Errorf("invalid PRIVATE_KEY: %w", err)
		}
		return signer.Address(), "PRIVATE_KEY", nil
	}

	return common.Address{}, "", fmt.Errorf("wallet required: set PRIVATE_KEY or pass --address")
}

func resolveTokens(ctx context.Context, tokenFlag, apiURL, search string, limit int, logger *zap.Logger) ([]domain.Token, error) {
	if strings.TrimSpace(tokenFlag) != "" {
		addrs, err := ethutil.ParseAddressList(tokenFlag)
		if err != nil {
			return nil, fmt.Errorf("--token: %w", err)
		}
		out := make([]domain.Token, 0, len(addrs))
		for _, a := range addrs {
			out = append(out, domain.Token{Address: a})
		}
		return out, nil
	}

	cat, err := catalog.NewClient(apiURL, catalog.DefaultTimeout, logger)
	if err != nil {
		return nil, err
	}
	return cat.ListTokens(ctx, catalog.Filter{Search: search, Limit: limit})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
