package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidPair = errors.New("invalid pair")

// Pair is a trading pair such as BTC/USDT.
type Pair struct {
	Base  string
	Quote string
}

// ParsePair parses "BASE/QUOTE". Case and surrounding spaces are normalized.
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(s)), "/")
	if len(parts) != 2 {
		return Pair{}, fmt.Errorf("%w: %q, want BASE/QUOTE", ErrInvalidPair, s)
	}
	p := Pair{Base: strings.TrimSpace(parts[0]), Quote: strings.TrimSpace(parts[1])}
	if p.Base == "" || p.Quote == "" {
		return Pair{}, fmt.Errorf("%w: %q, want BASE/QUOTE", ErrInvalidPair, s)
	}
	return p, nil
}

func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}
