package otp

import (
	"context"
	"fmt"
)

// Dispatcher asks the provider to send a fresh code. Every call results in a
// new message, so callers must not invoke it on blind retries.
type Dispatcher struct {
	provider Provider
	method   Method
}

// NewDispatcher builds a dispatcher that sends codes with method. An empty
// method defaults to SMS.
func NewDispatcher(provider Provider, method Method) *Dispatcher {
	if method == "" {
		method = MethodSMS
	}
	return &Dispatcher{provider: provider, method: method}
}

// Dispatch sends one code to channel and returns the provider receipt.
func (d *Dispatcher) Dispatch(ctx context.Context, channel string) (Receipt, error) {
	if channel == "" {
		return Receipt{}, fmt.Errorf("dispatch code: %w", ErrInvalidChannel)
	}
	receipt, err := d.provider.Send(ctx, channel, d.method)
	if err != nil {
		return Receipt{}, fmt.Errorf("dispatch code: %w", err)
	}
	return receipt, nil
}
