package helpers

import (
	"fmt"
	"math"
	"math/big"

	"github.com/tidwall/gjson"

	"github.com/lexfi/lex-go/lex/shared"
)

// ParseMarketConfig reads a market configuration from JSON. Wide
// integers (the price bounds) are decimal strings; fee rates arrive as
// separate basis-point fields and are packed into the encoded word.
//
//	{
//	  "edge_sqrt_price_a": "39614081257132168796771975168",
//	  "edge_sqrt_price_b": "158456325028528675187087900672",
//	  "lim_high_sqrt_price": "118842243771396506390315925504",
//	  "lim_max_sqrt_price": "138649284399962590788701913088",
//	  "debt_duration": 31536000,
//	  "swap_fee_bps": 30,
//	  "no_cap_limit": 10,
//	  "yield_fee_bps": 2000,
//	  "tvl_fee_bps": 50,
//	  "ln_rate_bias": 900019671747786752
//	}
func ParseMarketConfig(data []byte) (shared.MarketConfig, error) {
	if !gjson.ValidBytes(data) {
		return shared.MarketConfig{}, fmt.Errorf("market config is not valid json")
	}
	root := gjson.ParseBytes(data)

	cfg := shared.MarketConfig{}
	var err error
	if cfg.EdgeSqrtPriceAX96, err = bigField(root, "edge_sqrt_price_a"); err != nil {
		return shared.MarketConfig{}, err
	}
	if cfg.EdgeSqrtPriceBX96, err = bigField(root, "edge_sqrt_price_b"); err != nil {
		return shared.MarketConfig{}, err
	}
	if cfg.LimHighSqrtPriceX96, err = bigField(root, "lim_high_sqrt_price"); err != nil {
		return shared.MarketConfig{}, err
	}
	if cfg.LimMaxSqrtPriceX96, err = bigField(root, "lim_max_sqrt_price"); err != nil {
		return shared.MarketConfig{}, err
	}

	cfg.DebtDuration = root.Get("debt_duration").Uint()

	swapFee, err := uintField(root, "swap_fee_bps", math.MaxUint16)
	if err != nil {
		return shared.MarketConfig{}, err
	}
	cfg.SwapFeeBps = uint16(swapFee)

	noCap, err := uintField(root, "no_cap_limit", math.MaxUint8)
	if err != nil {
		return shared.MarketConfig{}, err
	}
	cfg.NoCapLimit = uint8(noCap)

	yieldFee, err := uintField(root, "yield_fee_bps", math.MaxUint16)
	if err != nil {
		return shared.MarketConfig{}, err
	}
	tvlFee, err := uintField(root, "tvl_fee_bps", math.MaxUint16)
	if err != nil {
		return shared.MarketConfig{}, err
	}
	cfg.ProtocolFee = EncodeProtocolFee(uint16(yieldFee), uint16(tvlFee))

	cfg.LnRateBiasQ64 = root.Get("ln_rate_bias").Int()
	return cfg, nil
}

func bigField(root gjson.Result, key string) (*big.Int, error) {
	field := root.Get(key)
	if !field.Exists() {
		return nil, fmt.Errorf("market config missing %q", key)
	}
	value, ok := new(big.Int).SetString(field.String(), 10)
	if !ok {
		return nil, fmt.Errorf("market config field %q is not a decimal integer", key)
	}
	return value, nil
}

func uintField(root gjson.Result, key string, limit uint64) (uint64, error) {
	field := root.Get(key)
	if !field.Exists() {
		return 0, nil
	}
	value := field.Uint()
	if value > limit {
		return 0, fmt.Errorf("market config field %q exceeds %d", key, limit)
	}
	return value, nil
}
