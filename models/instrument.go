package models

import (
	"fmt"
	"strings"
)

// Instrument identifies a tradeable pair. Symbols are stored uppercased so
// the value can be compared and used as a map key directly.
type Instrument struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

func NewInstrument(base, quote string) (Instrument, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if base == "" || quote == "" {
		return Instrument{}, fmt.Errorf("base and quote must not be empty")
	}
	if base == quote {
		return Instrument{}, fmt.Errorf("base and quote must be different")
	}
	return Instrument{Base: base, Quote: quote}, nil
}

// ParseInstrument accepts "BASE/QUOTE", "BASE-QUOTE" or "BASE_QUOTE".
func ParseInstrument(s string) (Instrument, error) {
	sep := strings.IndexAny(s, "/-_")
	if sep <= 0 || sep != strings.LastIndexAny(s, "/-_") {
		return Instrument{}, fmt.Errorf("invalid instrument %q", s)
	}
	return NewInstrument(s[:sep], s[sep+1:])
}

func (i Instrument) Join(separator string) string {
	return i.Base + separator + i.Quote
}

func (i Instrument) String() string {
	return i.Join("/")
}

func (i Instrument) IsZero() bool {
	return i.Base == "" && i.Quote == ""
}
