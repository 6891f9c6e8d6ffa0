// Package config loads the trader's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"github.com/harmony-one/pump-fun-trading-bot/internal/catalog"
	"github.com/harmony-one/pump-fun-trading-bot/internal/chain"
	"github.com/harmony-one/pump-fun-trading-bot/internal/decision"
	"github.com/harmony-one/pump-fun-trading-bot/internal/dotenv"
	"github.com/harmony-one/pump-fun-trading-bot/internal/ethutil"
)

var ErrInvalidConfig = errors.New("invalid config")

type Logging struct {
	Level       string `mapstructure:"log_level"`
	Encoding    string `mapstructure:"log_encoding"`
	Development bool   `mapstructure:"log_development"`
}

type Config struct {
	PrivateKey     string `mapstructure:"private_key"`
	RPCURL         string `mapstructure:"rpc_url"`
	APIURL         string `mapstructure:"api_url"`
	FactoryAddress string `mapstructure:"token_factory_address"`

	TradingInterval time.Duration   `mapstructure:"trading_interval"`
	SizingMode      string          `mapstructure:"sizing_mode"`
	MaxTradeSize    decimal.Decimal `mapstructure:"max_trade_size"`
	FixedTradeSize  decimal.Decimal `mapstructure:"fixed_trade_size"`
	FixedRandomSide bool            `mapstructure:"fixed_random_side"`

	CandidateLimit   int    `mapstructure:"candidate_limit"`
	TokenSearch      string `mapstructure:"token_search"`
	CreatorAddresses string `mapstructure:"creator_addresses"`

	RPCTimeout        time.Duration `mapstructure:"rpc_timeout"`
	CatalogTimeout    time.Duration `mapstructure:"catalog_timeout"`
	CatalogMaxBackoff time.Duration `mapstructure:"catalog_max_backoff"`
	ReceiptTimeout    time.Duration `mapstructure:"receipt_timeout"`

	MetricsAddr string `mapstructure:"metrics_addr"`

	Logging `mapstructure:",squash"`

	// Resolved by Validate.
	Factory  common.Address      `mapstructure:"-"`
	Creators []common.Address    `mapstructure:"-"`
	Mode     decision.SizingMode `mapstructure:"-"`

	// EnvFiles lists the .env files that were read.
	EnvFiles []string `mapstructure:"-"`
}

var defaults = map[string]any{
	"private_key":           "",
	"rpc_url":               chain.DefaultRPCURL,
	"api_url":               catalog.DefaultURL,
	"token_factory_address": "",
	"trading_interval":      "60",
	"sizing_mode":           string(decision.SizingRandom),
	"max_trade_size":        "0.1",
	"fixed_trade_size":      decision.DefaultFixedSize.String(),
	"fixed_random_side":     false,
	"candidate_limit":       3,
	"token_search":          "",
	"creator_addresses":     "",
	"rpc_timeout":           "30s",
	"catalog_timeout":       "12s",
	"catalog_max_backoff":   "5m",
	"receipt_timeout":       "0",
	"metrics_addr":          "",
	"log_level":             "info",
	"log_encoding":          "console",
	"log_development":       false,
}

// Load reads envFiles (default ".env") into the environment, then decodes
// and validates the settings. Variables already present in the process
// environment take precedence over file contents.
func Load(envFiles ...string) (*Config, error) {
	loaded, err := dotenv.Load(envFiles...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.EnvFiles = loaded

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			secondsOrDurationHook(),
			decimalHook(),
		)
	}
}

// secondsOrDurationHook accepts bare numbers as seconds ("60") as well as Go
// duration strings ("1m30s").
func secondsOrDurationHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(_ reflect.Type, t reflect.Type, data any) (any, error) {
		if t != durationType {
			return data, nil
		}
		switch raw := data.(type) {
		case string:
			s := strings.TrimSpace(raw)
			if s == "" {
				return time.Duration(0), nil
			}
			if secs, err := strconv.ParseFloat(s, 64); err == nil {
				return time.Duration(secs * float64(time.Second)), nil
			}
			return time.ParseDuration(s)
		case int:
			return time.Duration(raw) * time.Second, nil
		case int64:
			return time.Duration(raw) * time.Second, nil
		case float64:
			return time.Duration(raw * float64(time.Second)), nil
		}
		return data, nil
	}
}

func decimalHook() mapstructure.DecodeHookFuncType {
	decimalType := reflect.TypeOf(decimal.Decimal{})
	return func(_ reflect.Type, t reflect.Type, data any) (any, error) {
		if t != decimalType {
			return data, nil
		}
		switch raw := data.(type) {
		case string:
			s := strings.TrimSpace(raw)
			if s == "" {
				return decimal.Zero, nil
			}
			return decimal.NewFromString(s)
		case int:
			return decimal.NewFromInt(int64(raw)), nil
		case float64:
			return decimal.NewFromFloat(raw), nil
		}
		return data, nil
	}
}

// Validate checks every field, collecting all problems, and resolves the
// derived fields. Missing required variables are reported first, in the
// form "missing env: [A B]".
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.PrivateKey) == "" {
		missing = append(missing, "PRIVATE_KEY")
	}
	if strings.TrimSpace(c.FactoryAddress) == "" {
		missing = append(missing, "TOKEN_FACTORY_ADDRESS")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing env: [%s]", ErrInvalidConfig, strings.Join(missing, " "))
	}

	var err error

	if _, keyErr := chain.NewKeySigner(c.PrivateKey); keyErr != nil {
		err = multierr.Append(err, errors.New("PRIVATE_KEY is not a valid secp256k1 hex key"))
	}
	if rpcErr := chain.ValidateRPCURL(c.RPCURL); rpcErr != nil {
		err = multierr.Append(err, fmt.Errorf("RPC_URL: %w", rpcErr))
	}
	if u, parseErr := url.Parse(strings.TrimSpace(c.APIURL)); parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		err = multierr.Append(err, fmt.Errorf("API_URL must be an http(s) URL, got %q", c.APIURL))
	}

	factory := strings.TrimSpace(c.FactoryAddress)
	if !common.IsHexAddress(factory) || common.HexToAddress(factory) == (common.Address{}) {
		err = multierr.Append(err, fmt.Errorf("TOKEN_FACTORY_ADDRESS is not a valid address: %q", c.FactoryAddress))
	} else {
		c.Factory = common.HexToAddress(factory)
	}

	if c.TradingInterval <= 0 {
		err = multierr.Append(err, errors.New("TRADING_INTERVAL must be > 0"))
	}

	mode, modeErr := decision.ParseSizingMode(c.SizingMode)
	if modeErr != nil {
		err = multierr.Append(err, fmt.Errorf("SIZING_MODE: %w", modeErr))
	} else {
		c.Mode = mode
		if policyErr := c.Policy().Validate(); policyErr != nil {
			err = multierr.Append(err, policyErr)
		}
	}

	if c.CandidateLimit <= 0 {
		err = multierr.Append(err, errors.New("CANDIDATE_LIMIT must be > 0"))
	}

	creators, listErr := ethutil.ParseAddressList(c.CreatorAddresses)
	if listErr != nil {
		err = multierr.Append(err, fmt.Errorf("CREATOR_ADDRESSES: %w", listErr))
	} else {
		c.Creators = creators
	}

	if c.RPCTimeout <= 0 {
		err = multierr.Append(err, errors.New("RPC_TIMEOUT must be > 0"))
	}
	if c.CatalogTimeout <= 0 {
		err = multierr.Append(err, errors.New("CATALOG_TIMEOUT must be > 0"))
	}
	if c.CatalogMaxBackoff <= 0 {
		err = multierr.Append(err, errors.New("CATALOG_MAX_BACKOFF must be > 0"))
	}
	if c.ReceiptTimeout < 0 {
		err = multierr.Append(err, errors.New("RECEIPT_TIMEOUT must be >= 0"))
	}

	if _, lvlErr := zapcore.ParseLevel(c.Logging.Level); lvlErr != nil {
		err = multierr.Append(err, fmt.Errorf("LOG_LEVEL: %w", lvlErr))
	}
	switch c.Logging.Encoding {
	case "console", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("LOG_ENCODING must be console or json, got %q", c.Logging.Encoding))
	}

	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Policy returns the trade sizing policy described by the config.
func (c *Config) Policy() decision.Policy {
	return decision.Policy{
		Mode:            c.Mode,
		MaxTradeSize:    c.MaxTradeSize,
		FixedTradeSize:  c.FixedTradeSize,
		FixedRandomSide: c.FixedRandomSide,
	}
}
