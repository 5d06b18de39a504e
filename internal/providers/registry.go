package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/datanger/workbench/internal/domain"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Registry holds the available providers and returns them in preferred order.
// Every registered provider is wrapped with a circuit breaker and a rate
// limiter so a flapping upstream cannot stall ingestion.
type Registry struct {
	providers map[string]DataProvider
	order     []string // registration order, used for the unlisted remainder
	log       zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		providers: make(map[string]DataProvider),
		log:       log.With().Str("component", "provider_registry").Logger(),
	}
}

// Register adds a provider wrapped with its guard.
func (r *Registry) Register(p DataProvider, rps float64, burst int) {
	guarded := newGuardedProvider(p, rps, burst, r.log)
	r.providers[p.Name()] = guarded
	r.order = append(r.order, p.Name())
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (DataProvider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Ordered returns providers in the preferred order, then any registered
// provider not named, preserving registration order. Unknown names are skipped.
func (r *Registry) Ordered(preferred []string) []DataProvider {
	var out []DataProvider
	seen := make(map[string]bool)
	for _, name := range preferred {
		if p, ok := r.providers[name]; ok && !seen[name] {
			out = append(out, p)
			seen[name] = true
		}
	}
	for _, name := range r.order {
		if !seen[name] {
			out = append(out, r.providers[name])
			seen[name] = true
		}
	}
	return out
}

// Statuses reports health for every registered provider in registration order.
func (r *Registry) Statuses(ctx context.Context) []Status {
	out := make([]Status, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name].Status(ctx))
	}
	return out
}

// guardedProvider wraps a provider with a circuit breaker and a rate limiter.
type guardedProvider struct {
	inner   DataProvider
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     zerolog.Logger
}

func newGuardedProvider(inner DataProvider, rps float64, burst int, log zerolog.Logger) *guardedProvider {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    inner.Name(),
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Provider breaker state changed")
		},
	})
	return &guardedProvider{
		inner:   inner,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}
}

func (g *guardedProvider) Name() string { return g.inner.Name() }

func (g *guardedProvider) Status(ctx context.Context) Status {
	if g.breaker.State() == gobreaker.StateOpen {
		return Status{Name: g.inner.Name(), OK: false, Details: "circuit breaker open"}
	}
	return g.inner.Status(ctx)
}

func (g *guardedProvider) call(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}
	return g.breaker.Execute(fn)
}

func (g *guardedProvider) Instruments(ctx context.Context) ([]InstrumentRow, error) {
	result, err := g.call(ctx, func() (interface{}, error) {
		return g.inner.Instruments(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]InstrumentRow), nil
}

func (g *guardedProvider) BarsDaily(ctx context.Context, symbol string, exchange domain.Exchange, start, end string, adj domain.Adj) ([]BarDailyRow, error) {
	result, err := g.call(ctx, func() (interface{}, error) {
		return g.inner.BarsDaily(ctx, symbol, exchange, start, end, adj)
	})
	if err != nil {
		return nil, err
	}
	return result.([]BarDailyRow), nil
}

// FundamentalsDaily forwards when the wrapped provider has the capability.
func (g *guardedProvider) FundamentalsDaily(ctx context.Context, symbol string, exchange domain.Exchange) (*FundamentalRow, error) {
	fp, ok := g.inner.(FundamentalsProvider)
	if !ok {
		return nil, fmt.Errorf("provider %s does not supply fundamentals", g.inner.Name())
	}
	result, err := g.call(ctx, func() (interface{}, error) {
		return fp.FundamentalsDaily(ctx, symbol, exchange)
	})
	if err != nil {
		return nil, err
	}
	return result.(*FundamentalRow), nil
}

// CapitalFlowDaily forwards when the wrapped provider has the capability.
func (g *guardedProvider) CapitalFlowDaily(ctx context.Context, symbol string, exchange domain.Exchange, start, end string) ([]CapitalFlowRow, error) {
	cp, ok := g.inner.(CapitalFlowProvider)
	if !ok {
		return nil, fmt.Errorf("provider %s does not supply capital flow", g.inner.Name())
	}
	result, err := g.call(ctx, func() (interface{}, error) {
		return cp.CapitalFlowDaily(ctx, symbol, exchange, start, end)
	})
	if err != nil {
		return nil, err
	}
	return result.([]CapitalFlowRow), nil
}
