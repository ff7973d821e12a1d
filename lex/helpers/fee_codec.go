package helpers

// EncodeProtocolFee packs the two protocol fee rates into one word:
// the yield share in the high 16 bits, the TVL rate in the low 16,
// both in basis points.
func EncodeProtocolFee(yieldFeeBps, tvlFeeBps uint16) uint32 {
	return uint32(yieldFeeBps)<<16 | uint32(tvlFeeBps)
}

// DecodeProtocolFee splits an encoded protocol fee word back into its
// yield and TVL rates.
func DecodeProtocolFee(encoded uint32) (yieldFeeBps, tvlFeeBps uint16) {
	return uint16(encoded >> 16), uint16(encoded)
}
