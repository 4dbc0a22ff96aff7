package domain

import (
	"errors"
	"testing"
)

func TestParsePair(t *testing.T) {
	p, err := ParsePair(" btc/usdt ")
	if err != nil {
		t.Fatalf("ParsePair failed: %v", err)
	}
	if p.Base != "BTC" || p.Quote != "USDT" {
		t.Errorf("unexpected pair %+v", p)
	}
	if p.String() != "BTC/USDT" {
		t.Errorf("String() got %s", p.String())
	}

	for _, bad := range []string{"", "BTCUSDT", "BTC/", "/USDT", "A/B/C"} {
		if _, err := ParsePair(bad); !errors.Is(err, ErrInvalidPair) {
			t.Errorf("%q: expected ErrInvalidPair, got %v", bad, err)
		}
	}
}
