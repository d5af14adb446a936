// Package otp sends and checks one-time login codes through a pluggable
// provider. The provider owns code state and expiry; this package only
// sequences calls and normalizes outcomes.
package otp

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// Method is the delivery channel requested from the provider.
type Method string

const (
	MethodSMS   Method = "SMS"
	MethodVoice Method = "VOICE"
)

var (
	// ErrInvalidChannel means the provider refused the destination.
	ErrInvalidChannel = errors.New("otp: invalid contact channel")
	// ErrQuotaExceeded means the provider is rate limiting sends.
	ErrQuotaExceeded = errors.New("otp: quota exceeded")
	// ErrProviderUnavailable covers transport failures and provider outages.
	ErrProviderUnavailable = errors.New("otp: provider unavailable")
)

var channelPattern = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// Receipt acknowledges that the provider accepted a send request. It says
// nothing about delivery.
type Receipt struct {
	ID      string
	Channel string
	Method  Method
	SentAt  time.Time
}

// CheckResult is the provider's answer for a submitted code.
type CheckResult struct {
	Matched bool
}

// Provider is the external one-time code service.
type Provider interface {
	Send(ctx context.Context, channel string, method Method) (Receipt, error)
	Check(ctx context.Context, channel, code string) (CheckResult, error)
}

// Outcome of a code validation. The zero value is Denied.
type Outcome int

const (
	Denied Outcome = iota
	Verified
)

func (o Outcome) String() string {
	if o == Verified {
		return "verified"
	}
	return "denied"
}

// ValidChannel reports whether channel is an E.164 phone number.
func ValidChannel(channel string) bool {
	return channelPattern.MatchString(channel)
}
