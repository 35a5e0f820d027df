// Package symbol validates and derives exchange metadata for A-share
// instrument codes of the form NNNNNN.XX.
package symbol

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Exchange identifies the listing venue encoded in a symbol's suffix.
type Exchange string

const (
	ExchangeSH Exchange = "SH"
	ExchangeSZ Exchange = "SZ"
)

// Parsed holds the decomposed parts of a validated symbol.
type Parsed struct {
	Code     string
	Exchange Exchange
}

// Parse validates a symbol of the form NNNNNN.XX and derives its exchange
// from the six-digit code prefix. Codes starting with 60 or 68 resolve to
// the Shanghai exchange, 00 or 30 to Shenzhen; any other prefix is rejected.
func Parse(raw string) (Parsed, error) {
	parts := strings.SplitN(raw, ".", 2)
	if len(parts) != 2 {
		return Parsed{}, fmt.Errorf("symbol: %q missing exchange suffix", raw)
	}
	code, suffix := parts[0], strings.ToUpper(parts[1])
	if len(code) != 6 {
		return Parsed{}, fmt.Errorf("symbol: %q code must be six digits", raw)
	}
	if _, err := strconv.Atoi(code); err != nil {
		return Parsed{}, fmt.Errorf("symbol: %q code must be numeric: %w", raw, err)
	}

	derived, err := exchangeForCode(code)
	if err != nil {
		return Parsed{}, err
	}
	if suffix != string(derived) {
		return Parsed{}, fmt.Errorf("symbol: %q suffix %q does not match code prefix (expected %s)", raw, suffix, derived)
	}

	return Parsed{Code: code, Exchange: derived}, nil
}

func exchangeForCode(code string) (Exchange, error) {
	switch code[:2] {
	case "60", "68":
		return ExchangeSH, nil
	case "00", "30":
		return ExchangeSZ, nil
	default:
		return "", fmt.Errorf("symbol: code prefix %q is not a recognized A-share prefix", code[:2])
	}
}

// ToSymbol builds a canonical NNNNNN.XX symbol from a bare six-digit code,
// deriving the exchange suffix the same way Parse validates it.
func ToSymbol(code string) (string, error) {
	ex, err := exchangeForCode(code)
	if err != nil {
		return "", err
	}
	return code + "." + string(ex), nil
}

// IsSTName reports whether a shortname carries the ST/*ST risk-warning
// marker that tightens the limit-move ratio to 5%.
func IsSTName(shortname string) bool {
	upper := strings.ToUpper(strings.TrimSpace(shortname))
	return strings.Contains(upper, "ST")
}

// LimitRatio returns the daily limit-move ratio for a symbol: 20% for
// 30xxxx/68xxxx (ChiNext and STAR Market) codes, 5% for ST-marked names,
// 10% otherwise.
func LimitRatio(code string, st bool) float64 {
	if len(code) >= 2 && (code[:2] == "30" || code[:2] == "68") {
		return 0.20
	}
	if st {
		return 0.05
	}
	return 0.10
}

// RoundTick rounds a price to two decimal places using half-up rounding,
// matching exchange tick convention.
func RoundTick(price float64) float64 {
	return math.Floor(price*100+0.5) / 100
}

// CeilTick rounds a price up to the next whole tick (hundredth of a yuan),
// the ceil2 helper used throughout the sell strategies for limit pricing.
// The small epsilon guards against a price landing a float's-width above
// an exact tick boundary and ceiling to the next tick.
func CeilTick(price float64) float64 {
	return math.Ceil(price*100-1e-6) / 100
}

// LimitPrice derives the up/down limit prices from a pre-close and ratio,
// rounded to tick.
func LimitPrice(preClose, ratio float64) (up, down float64) {
	up = RoundTick(preClose * (1 + ratio))
	down = RoundTick(preClose * (1 - ratio))
	return up, down
}
