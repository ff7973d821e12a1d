package lex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/zeebo/blake3"

	"github.com/lexfi/lex-go/lex/helpers"
	"github.com/lexfi/lex-go/lex/shared"
)

// marketState is the mutable state of one market. The mutex serializes
// every operation touching the market; token supplies are kept in
// 256-bit words, the curve variables in big integers for the math
// package.
type marketState struct {
	mu sync.Mutex

	id  MarketID
	cfg MarketConfig

	yieldFeeBps uint16
	tvlFeeBps   uint16
	tvlRateX96  *big.Int
	lnRateBias  *big.Int

	leverageToken TokenHandle
	debtToken     TokenHandle

	sqrtPrice     *big.Int
	liquidity     *big.Int
	notionalPrice *big.Int
	lastUpdate    uint64

	baseSupply     uint256.Int
	leverageSupply uint256.Int
	debtSupply     uint256.Int
	feeGrowth      uint256.Int
}

func newMarketState(cfg MarketConfig, now uint64) *marketState {
	id := deriveMarketID(cfg)
	yieldFeeBps, tvlFeeBps := helpers.DecodeProtocolFee(cfg.ProtocolFee)

	tvlRate := new(big.Int).Mul(big.NewInt(int64(tvlFeeBps)), shared.OneX96)
	tvlRate.Div(tvlRate, big.NewInt(shared.BasisPointMax))

	return &marketState{
		id:            id,
		cfg:           cfg,
		yieldFeeBps:   yieldFeeBps,
		tvlFeeBps:     tvlFeeBps,
		tvlRateX96:    tvlRate,
		lnRateBias:    big.NewInt(cfg.LnRateBiasQ64),
		leverageToken: deriveTokenHandle(id, AssetTypeLeverage),
		debtToken:     deriveTokenHandle(id, AssetTypeDebt),
		sqrtPrice:     new(big.Int).Set(shared.OneX96),
		liquidity:     new(big.Int),
		notionalPrice: new(big.Int).Set(shared.OneX96),
		lastUpdate:    now,
	}
}

// deriveMarketID hashes the canonical encoding of a configuration, so
// identical configurations map to the same market.
func deriveMarketID(cfg MarketConfig) MarketID {
	buf := new(bytes.Buffer)
	var word [32]byte
	for _, bound := range []*big.Int{
		cfg.EdgeSqrtPriceAX96,
		cfg.EdgeSqrtPriceBX96,
		cfg.LimHighSqrtPriceX96,
		cfg.LimMaxSqrtPriceX96,
	} {
		bound.FillBytes(word[:])
		buf.Write(word[:])
	}
	var scalars [24]byte
	binary.LittleEndian.PutUint64(scalars[0:8], cfg.DebtDuration)
	binary.LittleEndian.PutUint16(scalars[8:10], cfg.SwapFeeBps)
	scalars[10] = cfg.NoCapLimit
	binary.LittleEndian.PutUint32(scalars[11:15], cfg.ProtocolFee)
	binary.LittleEndian.PutUint64(scalars[16:24], uint64(cfg.LnRateBiasQ64))
	buf.Write(scalars[:])
	return MarketID(blake3.Sum256(buf.Bytes()))
}

func deriveTokenHandle(id MarketID, asset AssetType) TokenHandle {
	seed := make([]byte, 0, len(id)+1)
	seed = append(seed, id[:]...)
	seed = append(seed, byte(asset))
	return TokenHandle(blake3.Sum256(seed))
}

func (m *marketState) snapshotLocked() LexState {
	return LexState{
		SqrtPriceX96:      new(big.Int).Set(m.sqrtPrice),
		Liquidity:         new(big.Int).Set(m.liquidity),
		BaseSupply:        m.baseSupply.ToBig(),
		LeverageSupply:    m.leverageSupply.ToBig(),
		DebtSupply:        m.debtSupply.ToBig(),
		DebtNotionalPrice: new(big.Int).Set(m.notionalPrice),
		ProtocolFeeGrowth: m.feeGrowth.ToBig(),
		LastUpdate:        m.lastUpdate,
	}
}

// wireSnapshotLocked converts state to its borsh wire form. All wide
// fields are little-endian words.
func (m *marketState) wireSnapshotLocked() (*helpers.MarketSnapshot, error) {
	snapshot := &helpers.MarketSnapshot{
		MarketID:   m.id,
		LastUpdate: m.lastUpdate,
	}
	fields := []struct {
		dst   *[32]byte
		value *big.Int
	}{
		{&snapshot.SqrtPriceX96, m.sqrtPrice},
		{&snapshot.Liquidity, m.liquidity},
		{&snapshot.BaseSupply, m.baseSupply.ToBig()},
		{&snapshot.LeverageSupply, m.leverageSupply.ToBig()},
		{&snapshot.DebtSupply, m.debtSupply.ToBig()},
		{&snapshot.DebtNotionalPrice, m.notionalPrice},
		{&snapshot.ProtocolFeeGrowth, m.feeGrowth.ToBig()},
	}
	for _, field := range fields {
		word, err := helpers.BigToBytes32(field.value)
		if err != nil {
			return nil, err
		}
		*field.dst = word
	}
	return snapshot, nil
}

// restoreLocked installs state from a wire snapshot.
func (m *marketState) restoreLocked(snapshot *helpers.MarketSnapshot) error {
	supplies := []struct {
		dst *uint256.Int
		src [32]byte
	}{
		{&m.baseSupply, snapshot.BaseSupply},
		{&m.leverageSupply, snapshot.LeverageSupply},
		{&m.debtSupply, snapshot.DebtSupply},
		{&m.feeGrowth, snapshot.ProtocolFeeGrowth},
	}
	for _, supply := range supplies {
		value, overflow := uint256.FromBig(helpers.Bytes32ToBig(supply.src))
		if overflow {
			return fmt.Errorf("snapshot supply exceeds 256 bits: %w", ErrArithmeticOverflow)
		}
		supply.dst.Set(value)
	}
	m.sqrtPrice = helpers.Bytes32ToBig(snapshot.SqrtPriceX96)
	m.liquidity = helpers.Bytes32ToBig(snapshot.Liquidity)
	m.notionalPrice = helpers.Bytes32ToBig(snapshot.DebtNotionalPrice)
	m.lastUpdate = snapshot.LastUpdate
	return nil
}
