package web

import (
	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/domain"
)

// ResolveInstrument validates a symbol/exchange pair, zero-padding the symbol
// and guessing the exchange when absent.
func ResolveInstrument(symbol, exchange string) (string, domain.Exchange, error) {
	if symbol == "" {
		return "", "", apierr.Validation("symbol is required")
	}
	normalized := domain.NormalizeSymbol(symbol)
	if exchange == "" {
		return normalized, domain.GuessExchange(normalized), nil
	}
	if !domain.ValidExchange(exchange) {
		return "", "", apierr.Validation("unknown exchange %q", exchange)
	}
	return normalized, domain.Exchange(exchange), nil
}
