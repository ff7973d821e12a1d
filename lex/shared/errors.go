package shared

import "errors"

// Math errors. Every math routine that can fail wraps one of these so
// callers can classify failures without string matching.
var (
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrInvalidDomain      = errors.New("value outside valid domain")
	ErrZeroLiquidity      = errors.New("zero liquidity")
)

// Operation errors returned by the engine before any state is mutated.
var (
	ErrZeroAmount                          = errors.New("zero amount")
	ErrEqualSwapAssets                     = errors.New("swap assets must differ")
	ErrCapExceeded                         = errors.New("operation cap exceeded")
	ErrInsufficientTokens                  = errors.New("insufficient tokens")
	ErrActionNotAllowedUnderCollateralized = errors.New("action not allowed while under-collateralized")
)

// Engine lifecycle errors.
var (
	ErrMarketExists   = errors.New("market already exists")
	ErrMarketNotFound = errors.New("market not found")
	ErrInvalidConfig  = errors.New("invalid market config")
)
