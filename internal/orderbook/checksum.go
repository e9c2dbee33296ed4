package orderbook

import (
	"hash/crc32"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Validator checks a reconstructed state against the checksum the exchange
// attached to the message that produced it. Each venue supplies its own
// canonical serialization.
type Validator interface {
	Validate(state State) bool
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(state State) bool

func (f ValidatorFunc) Validate(state State) bool { return f(state) }

// CRC32Validator implements Kraken's book checksum: asks then bids, each
// level contributing price then quantity as decimal text with the point
// removed and leading zeros stripped, hashed with CRC32 (IEEE).
type CRC32Validator struct {
	// Depth caps the levels per side that enter the digest. Zero means all
	// stored levels.
	Depth int
}

// Compute returns the digest of the stored levels.
func (v CRC32Validator) Compute(state State) uint32 {
	var b strings.Builder
	asks, bids := state.Asks, state.Bids
	if v.Depth > 0 {
		if len(asks) > v.Depth {
			asks = asks[:v.Depth]
		}
		if len(bids) > v.Depth {
			bids = bids[:v.Depth]
		}
	}
	for _, l := range asks {
		b.WriteString(checksumText(l.Price))
		b.WriteString(checksumText(l.Quantity))
	}
	for _, l := range bids {
		b.WriteString(checksumText(l.Price))
		b.WriteString(checksumText(l.Quantity))
	}
	return crc32.ChecksumIEEE([]byte(b.String()))
}

// Validate is vacuously true when the state carries no checksum.
func (v CRC32Validator) Validate(state State) bool {
	if state.Checksum == "" {
		return true
	}
	return strconv.FormatUint(uint64(v.Compute(state)), 10) == state.Checksum
}

// checksumText renders d with the precision it was quoted in, so "0.05000"
// keeps its trailing zeros, then drops the point and leading zeros.
func checksumText(d decimal.Decimal) string {
	s := d.String()
	if exp := d.Exponent(); exp < 0 {
		s = d.StringFixed(-exp)
	}
	s = strings.Replace(s, ".", "", 1)
	return strings.TrimLeft(s, "0")
}
