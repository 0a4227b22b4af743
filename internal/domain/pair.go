package domain

import (
	"fmt"
	"strings"
)

// TradingPair identifies a tradable base/quote asset combination, e.g.
// ADA/USDT. It is immutable and used as the key for all per-pair state.
type TradingPair struct {
	Base  string
	Quote string
}

// ParsePair parses a "BASE/QUOTE" string into a TradingPair. Both assets are
// upper-cased and trimmed.
func ParsePair(s string) (TradingPair, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return TradingPair{}, fmt.Errorf("domain: invalid trading pair %q (want BASE/QUOTE)", s)
	}
	base := strings.ToUpper(strings.TrimSpace(parts[0]))
	quote := strings.ToUpper(strings.TrimSpace(parts[1]))
	if base == "" || quote == "" {
		return TradingPair{}, fmt.Errorf("domain: invalid trading pair %q (empty asset)", s)
	}
	return TradingPair{Base: base, Quote: quote}, nil
}

// ParsePairs parses a comma-separated pair list ("ADA/USDT,BTC/USDT"),
// skipping empty entries and de-duplicating while preserving order.
func ParsePairs(csv string) ([]TradingPair, error) {
	seen := make(map[TradingPair]struct{})
	var pairs []TradingPair
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		p, err := ParsePair(part)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		pairs = append(pairs, p)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("domain: no trading pairs in %q", csv)
	}
	return pairs, nil
}

// String returns the canonical "BASE/QUOTE" form.
func (p TradingPair) String() string {
	return p.Base + "/" + p.Quote
}

// Symbol returns the exchange symbol form without separator, e.g. "ADAUSDT".
func (p TradingPair) Symbol() string {
	return p.Base + p.Quote
}
