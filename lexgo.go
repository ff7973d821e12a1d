// Package lexgo bundles the market engine with its configuration,
// logging and metrics so callers embed one client instead of wiring
// the pieces themselves.
package lexgo

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lexfi/lex-go/lex"
	"github.com/lexfi/lex-go/lex/helpers"
)

type (
	Engine       = lex.Engine
	EngineConfig = lex.EngineConfig
	MarketConfig = lex.MarketConfig
	MarketID     = lex.MarketID
	TokenHandle  = lex.TokenHandle
	SynthTokens  = lex.SynthTokens
	LexState     = lex.LexState
	PriceOracle  = lex.PriceOracle
	Option       = lex.Option

	MintParams   = lex.MintParams
	MintResult   = lex.MintResult
	RedeemParams = lex.RedeemParams
	RedeemResult = lex.RedeemResult
	SwapParams   = lex.SwapParams
	SwapResult   = lex.SwapResult
	SwapQuote    = lex.SwapQuote

	AssetType = lex.AssetType
	SwapMode  = lex.SwapMode
)

const (
	AssetTypeBase     = lex.AssetTypeBase
	AssetTypeLeverage = lex.AssetTypeLeverage
	AssetTypeDebt     = lex.AssetTypeDebt

	SwapModeExactIn  = lex.SwapModeExactIn
	SwapModeExactOut = lex.SwapModeExactOut
)

var (
	NewEngine            = lex.NewEngine
	NewMetrics           = lex.NewMetrics
	WithLogger           = lex.WithLogger
	WithMetrics          = lex.WithMetrics
	WithClock            = lex.WithClock
	WithMaxMarkets       = lex.WithMaxMarkets
	DefaultEngineConfig  = lex.DefaultEngineConfig
	LoadEngineConfig     = lex.LoadEngineConfig
	ValidateMarketConfig = lex.ValidateMarketConfig
	ParseMarketConfig    = helpers.ParseMarketConfig
)

// Client is a configured engine with its logger and metrics attached.
type Client struct {
	Engine  *lex.Engine
	Logger  *zap.Logger
	Metrics *lex.Metrics
	Config  lex.EngineConfig
}

// New builds a client from an engine configuration. A nil registerer
// keeps metrics on a private registry.
func New(cfg lex.EngineConfig, oracle lex.PriceOracle, registerer prometheus.Registerer, opts ...lex.Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := BuildLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	var metrics *lex.Metrics
	if cfg.Metrics.Enabled {
		if registerer == nil {
			registerer = prometheus.NewRegistry()
		}
		metrics = lex.NewMetrics(cfg.Metrics.Namespace, registerer)
	}
	opts = append([]lex.Option{
		lex.WithLogger(logger),
		lex.WithMetrics(metrics),
		lex.WithMaxMarkets(cfg.MaxMarkets),
	}, opts...)
	engine, err := lex.NewEngine(oracle, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{
		Engine:  engine,
		Logger:  logger,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// NewFromConfigFile loads the engine configuration from a YAML file
// and builds a client from it.
func NewFromConfigFile(path string, oracle lex.PriceOracle, registerer prometheus.Registerer, opts ...lex.Option) (*Client, error) {
	cfg, err := lex.LoadEngineConfig(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, oracle, registerer, opts...)
}

// BuildLogger constructs a zap logger from the log configuration.
func BuildLogger(cfg lex.LogConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zapCfg.Build()
}
