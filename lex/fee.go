package lex

import (
	"fmt"
	"math/big"

	"github.com/lexfi/lex-go/lex/shared"
)

var basisPointMaxBig = big.NewInt(shared.BasisPointMax)

// feeOnAmount rounds the fee up so the protocol never undercollects.
func feeOnAmount(amount *big.Int, feeBps uint16) *big.Int {
	if feeBps == 0 || amount.Sign() <= 0 {
		return new(big.Int)
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(feeBps)))
	fee.Add(fee, big.NewInt(shared.BasisPointMax-1))
	return fee.Div(fee, basisPointMaxBig)
}

// grossFromNet returns the smallest gross amount whose fee leaves at
// least net behind.
func grossFromNet(net *big.Int, feeBps uint16) (*big.Int, error) {
	if feeBps == 0 {
		return new(big.Int).Set(net), nil
	}
	if feeBps >= shared.BasisPointMax {
		return nil, fmt.Errorf("fee of %d bps consumes the whole amount: %w", feeBps, ErrInvalidDomain)
	}
	keep := big.NewInt(int64(shared.BasisPointMax - int(feeBps)))
	gross := new(big.Int).Mul(net, basisPointMaxBig)
	gross.Add(gross, new(big.Int).Sub(keep, big.NewInt(1)))
	return gross.Div(gross, keep), nil
}
