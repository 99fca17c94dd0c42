package models

import "strings"

// ExchangeSuffix marks NSE-listed symbols in Yahoo-style tickers.
const ExchangeSuffix = ".NS"

// NormalizeSymbol returns the bare display symbol and its exchange-suffixed form.
// "hdfcbank" and "HDFCBANK.NS" both give ("HDFCBANK", "HDFCBANK.NS").
func NormalizeSymbol(symbol string) (bare, suffixed string) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", ""
	}
	if strings.HasSuffix(s, ExchangeSuffix) {
		return strings.TrimSuffix(s, ExchangeSuffix), s
	}
	return s, s + ExchangeSuffix
}

// SymbolVariants lists the spellings a symbol may be stored under, suffixed form first.
// Index symbols such as ^NSEI have no suffixed variant.
func SymbolVariants(symbol string) []string {
	bare, suffixed := NormalizeSymbol(symbol)
	if bare == "" {
		return nil
	}
	if strings.HasPrefix(bare, "^") {
		return []string{bare}
	}
	return []string{suffixed, bare}
}

// SymbolAliases derives company-name spellings from a ticker, e.g. HDFCBANK gives "HDFC Bank".
func SymbolAliases(symbol string) []string {
	bare, _ := NormalizeSymbol(symbol)
	var out []string
	for _, suffix := range []string{"BANK", "LIFE"} {
		if strings.HasSuffix(bare, suffix) && len(bare) > len(suffix) {
			word := suffix[:1] + strings.ToLower(suffix[1:])
			out = append(out, strings.TrimSuffix(bare, suffix)+" "+word)
		}
	}
	return out
}
