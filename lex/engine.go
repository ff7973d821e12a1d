package lex

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lexfi/lex-go/lex/helpers"
	"github.com/lexfi/lex-go/lex/math"
	"github.com/lexfi/lex-go/lex/shared"
)

// PriceOracle quotes the base asset of a market in its external
// settlement currency, as a 1e18 fixed-point value.
type PriceOracle interface {
	BasePrice(id MarketID) (*big.Int, error)
}

// Engine hosts independent synthetic markets. Markets never interact;
// a per-market mutex serializes operations within one market while the
// engine map lock only guards market lookup and creation.
//
// The engine is the ledger of record for every market's base and
// synthetic supplies, so operations take amounts only and are checked
// against the recorded totals.
type Engine struct {
	mu      sync.RWMutex
	markets map[MarketID]*marketState

	oracle     PriceOracle
	log        *zap.Logger
	metrics    *Metrics
	now        func() uint64
	maxMarkets int
}

type Option func(*Engine)

// WithLogger replaces the no-op default logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics attaches prometheus instrumentation.
func WithMetrics(metrics *Metrics) Option {
	return func(e *Engine) { e.metrics = metrics }
}

// WithClock replaces the wall clock, mainly for tests and replayed
// state transitions. The clock returns unix seconds.
func WithClock(now func() uint64) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMaxMarkets bounds how many markets the engine will host.
func WithMaxMarkets(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.maxMarkets = limit
		}
	}
}

func NewEngine(oracle PriceOracle, opts ...Option) (*Engine, error) {
	if oracle == nil {
		return nil, fmt.Errorf("nil price oracle: %w", ErrInvalidConfig)
	}
	e := &Engine{
		markets:    make(map[MarketID]*marketState),
		oracle:     oracle,
		log:        zap.NewNop(),
		now:        func() uint64 { return uint64(time.Now().Unix()) },
		maxMarkets: DefaultMaxMarkets,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// InitMarket validates the configuration and registers an empty
// market. The returned id is the hash of the normalized configuration.
func (e *Engine) InitMarket(cfg MarketConfig) (MarketID, error) {
	normalized, err := ValidateMarketConfig(cfg)
	if err != nil {
		return MarketID{}, err
	}
	market := newMarketState(normalized, e.now())

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.markets[market.id]; ok {
		return MarketID{}, fmt.Errorf("market %s: %w", market.id, ErrMarketExists)
	}
	if len(e.markets) >= e.maxMarkets {
		return MarketID{}, fmt.Errorf("engine at its limit of %d markets: %w", e.maxMarkets, ErrInvalidConfig)
	}
	e.markets[market.id] = market
	e.metrics.marketOpened()
	e.log.Info("market initialized",
		zap.String("market", market.id.String()),
		zap.Uint64("debt_duration", normalized.DebtDuration),
		zap.Uint16("swap_fee_bps", normalized.SwapFeeBps),
	)
	return market.id, nil
}

func (e *Engine) market(id MarketID) (*marketState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	market, ok := e.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", id, ErrMarketNotFound)
	}
	return market, nil
}

// Markets lists the hosted market ids in stable order.
func (e *Engine) Markets() []MarketID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]MarketID, 0, len(e.markets))
	for id := range e.markets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytesLess(ids[i][:], ids[j][:])
	})
	return ids
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// GetLexState returns a copy of the market's current state.
func (e *Engine) GetLexState(id MarketID) (LexState, error) {
	m, err := e.market(id)
	if err != nil {
		return LexState{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(), nil
}

// GetLexConfig returns a copy of the normalized market configuration.
func (e *Engine) GetLexConfig(id MarketID) (MarketConfig, error) {
	m, err := e.market(id)
	if err != nil {
		return MarketConfig{}, err
	}
	cfg := m.cfg
	cfg.EdgeSqrtPriceAX96 = new(big.Int).Set(m.cfg.EdgeSqrtPriceAX96)
	cfg.EdgeSqrtPriceBX96 = new(big.Int).Set(m.cfg.EdgeSqrtPriceBX96)
	cfg.LimHighSqrtPriceX96 = new(big.Int).Set(m.cfg.LimHighSqrtPriceX96)
	cfg.LimMaxSqrtPriceX96 = new(big.Int).Set(m.cfg.LimMaxSqrtPriceX96)
	return cfg, nil
}

// GetSynthTokens returns the token handles minted by the market.
func (e *Engine) GetSynthTokens(id MarketID) (SynthTokens, error) {
	m, err := e.market(id)
	if err != nil {
		return SynthTokens{}, err
	}
	return SynthTokens{LeverageToken: m.leverageToken, DebtToken: m.debtToken}, nil
}

// GetDebtPriceDiscount reports the current debt valuation discount as
// a decimal in (0, 1].
func (e *Engine) GetDebtPriceDiscount(id MarketID) (decimal.Decimal, error) {
	m, err := e.market(id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return helpers.X96ToDecimal(math.DebtPriceDiscountX96(m.sqrtPrice), 18), nil
}

// GetLTV reports the debt share of curve value as a decimal in [0, 1].
func (e *Engine) GetLTV(id MarketID) (decimal.Decimal, error) {
	m, err := e.market(id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ltv, err := math.LTVX96(m.liquidity, m.sqrtPrice, m.cfg.EdgeSqrtPriceAX96, m.cfg.EdgeSqrtPriceBX96)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return helpers.X96ToDecimal(ltv, 18), nil
}

// GetProtocolFeeGrowth returns the protocol fees accumulated by the
// market, in base units.
func (e *Engine) GetProtocolFeeGrowth(id MarketID) (*big.Int, error) {
	m, err := e.market(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feeGrowth.ToBig(), nil
}

// IsUnderCollateralized reports whether outstanding debt notional
// exceeds the oracle value of the base supply.
func (e *Engine) IsUnderCollateralized(id MarketID) (bool, error) {
	m, err := e.market(id)
	if err != nil {
		return false, err
	}
	priceX96, err := e.oraclePriceX96(id)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return underCollateralized(m.debtSupply.ToBig(), m.notionalPrice, m.baseSupply.ToBig(), priceX96), nil
}

// SnapshotMarket serializes the market's state for persistence.
func (e *Engine) SnapshotMarket(id MarketID) ([]byte, error) {
	m, err := e.market(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, err := m.wireSnapshotLocked()
	if err != nil {
		return nil, err
	}
	return helpers.EncodeMarketSnapshot(snapshot)
}

// RestoreMarket registers a market from its configuration and a
// previously taken snapshot. The snapshot must belong to the
// configuration it is restored with.
func (e *Engine) RestoreMarket(cfg MarketConfig, data []byte) (MarketID, error) {
	normalized, err := ValidateMarketConfig(cfg)
	if err != nil {
		return MarketID{}, err
	}
	snapshot, err := helpers.DecodeMarketSnapshot(data)
	if err != nil {
		return MarketID{}, err
	}
	market := newMarketState(normalized, e.now())
	if snapshot.MarketID != market.id {
		return MarketID{}, fmt.Errorf("snapshot belongs to market %x: %w", snapshot.MarketID, ErrInvalidConfig)
	}
	if err := market.restoreLocked(snapshot); err != nil {
		return MarketID{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.markets[market.id]; ok {
		return MarketID{}, fmt.Errorf("market %s: %w", market.id, ErrMarketExists)
	}
	if len(e.markets) >= e.maxMarkets {
		return MarketID{}, fmt.Errorf("engine at its limit of %d markets: %w", e.maxMarkets, ErrInvalidConfig)
	}
	e.markets[market.id] = market
	e.metrics.marketOpened()
	e.log.Info("market restored", zap.String("market", market.id.String()))
	return market.id, nil
}

func (e *Engine) oraclePriceX96(id MarketID) (*big.Int, error) {
	price, err := e.oracle.BasePrice(id)
	if err != nil {
		return nil, fmt.Errorf("oracle price for %s: %w", id, err)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("oracle returned non-positive price: %w", ErrInvalidDomain)
	}
	return math.MulDiv(price, shared.OneX96, shared.Wad, RoundingDown)
}

func underCollateralized(debtSupply, notionalPrice, baseSupply, priceX96 *big.Int) bool {
	debtValue := new(big.Int).Mul(debtSupply, notionalPrice)
	baseValue := new(big.Int).Mul(baseSupply, priceX96)
	return debtValue.Cmp(baseValue) > 0
}
