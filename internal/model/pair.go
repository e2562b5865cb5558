package model

import (
	"fmt"
	"strings"
)

// TradingPair identifies a base/quote market, e.g. {DOGE EUR}.
// Pairs are immutable values; identity is by value.
type TradingPair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// ParsePair parses an exchange-style "BASE_QUOTE" symbol.
func ParsePair(symbol string) (TradingPair, error) {
	parts := strings.SplitN(symbol, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return TradingPair{}, fmt.Errorf("invalid pair symbol %q", symbol)
	}
	return TradingPair{
		Base:  strings.ToUpper(parts[0]),
		Quote: strings.ToUpper(parts[1]),
	}, nil
}

// Symbol returns the "BASE_QUOTE" form used on the wire.
func (p TradingPair) Symbol() string {
	return p.Base + "_" + p.Quote
}

func (p TradingPair) String() string { return p.Symbol() }
