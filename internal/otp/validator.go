package otp

import (
	"context"
	"fmt"
	"strings"
)

const (
	minCodeLen = 4
	maxCodeLen = 10
)

// Validator checks submitted codes with the provider.
type Validator struct {
	provider Provider
}

// NewValidator builds a validator backed by provider.
func NewValidator(provider Provider) *Validator {
	return &Validator{provider: provider}
}

// Validate returns Verified only when the provider matched an unexpired code.
// Wrong and expired codes are both Denied; an error means the provider could
// not answer and the outcome is Denied as well.
func (v *Validator) Validate(ctx context.Context, channel, code string) (Outcome, error) {
	code = strings.TrimSpace(code)
	if channel == "" || !wellFormed(code) {
		return Denied, nil
	}
	res, err := v.provider.Check(ctx, channel, code)
	if err != nil {
		return Denied, fmt.Errorf("check code: %w", err)
	}
	if !res.Matched {
		return Denied, nil
	}
	return Verified, nil
}

func wellFormed(code string) bool {
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
