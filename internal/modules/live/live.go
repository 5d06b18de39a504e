// Package live defines the broker port for real trading. No broker is wired
// in this build: every live endpoint reports LIVE_NOT_AVAILABLE so the rest
// of the app can ship without a brokerage integration.
package live

import (
	"context"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/domain"
)

// Order is a live order request.
type Order struct {
	Symbol    string           `json:"symbol"`
	Exchange  domain.Exchange  `json:"exchange"`
	Side      domain.Side      `json:"side"`
	OrderType domain.OrderType `json:"order_type"`
	Price     *float64         `json:"price"`
	Qty       float64          `json:"qty"`
}

// Broker is the port a real brokerage adapter would implement.
type Broker interface {
	Name() string
	PlaceOrder(ctx context.Context, order Order) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	Positions(ctx context.Context) (interface{}, error)
}

// unavailableBroker is the only implementation shipped.
type unavailableBroker struct{}

// NewUnavailableBroker returns the stub broker.
func NewUnavailableBroker() Broker {
	return unavailableBroker{}
}

func (unavailableBroker) Name() string { return "none" }

func (unavailableBroker) PlaceOrder(context.Context, Order) (string, error) {
	return "", errNotAvailable()
}

func (unavailableBroker) CancelOrder(context.Context, string) error {
	return errNotAvailable()
}

func (unavailableBroker) Positions(context.Context) (interface{}, error) {
	return nil, errNotAvailable()
}

func errNotAvailable() error {
	return apierr.New(apierr.CodeLiveNotAvailable, "no live broker is configured")
}
