package helpers

import (
	"bytes"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"

	"github.com/lexfi/lex-go/lex/shared"
)

// MarketSnapshot is the borsh wire form of one market's state. Wide
// integers travel as 32-byte little-endian words so the layout stays
// fixed regardless of magnitude.
type MarketSnapshot struct {
	MarketID          [32]byte
	SqrtPriceX96      [32]byte
	Liquidity         [32]byte
	BaseSupply        [32]byte
	LeverageSupply    [32]byte
	DebtSupply        [32]byte
	DebtNotionalPrice [32]byte
	ProtocolFeeGrowth [32]byte
	LastUpdate        uint64
}

// EncodeMarketSnapshot serializes a snapshot with borsh.
func EncodeMarketSnapshot(snapshot *MarketSnapshot) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(snapshot); err != nil {
		return nil, fmt.Errorf("encode market snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeMarketSnapshot deserializes a borsh-encoded snapshot.
func DecodeMarketSnapshot(data []byte) (*MarketSnapshot, error) {
	snapshot := new(MarketSnapshot)
	if err := bin.NewBorshDecoder(data).Decode(snapshot); err != nil {
		return nil, fmt.Errorf("decode market snapshot: %w", err)
	}
	return snapshot, nil
}

// BigToBytes32 stores a non-negative integer of at most 256 bits as a
// little-endian word.
func BigToBytes32(value *big.Int) ([32]byte, error) {
	var word [32]byte
	if value.Sign() < 0 {
		return word, fmt.Errorf("negative value: %w", shared.ErrInvalidDomain)
	}
	if value.BitLen() > 256 {
		return word, fmt.Errorf("value exceeds 256 bits: %w", shared.ErrArithmeticOverflow)
	}
	value.FillBytes(word[:])
	reverse32(&word)
	return word, nil
}

// Bytes32ToBig reads a little-endian 32-byte word back into an integer.
func Bytes32ToBig(word [32]byte) *big.Int {
	reverse32(&word)
	return new(big.Int).SetBytes(word[:])
}

func reverse32(word *[32]byte) {
	for i, j := 0, len(word)-1; i < j; i, j = i+1, j-1 {
		word[i], word[j] = word[j], word[i]
	}
}
