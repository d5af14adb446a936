package otp

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	potp "github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/redis/go-redis/v9"

	"github.com/otpgate/otpgate/internal/infra"
	"github.com/otpgate/otpgate/internal/notification"
)

const (
	redisKeyPrefix  = "otp:v1:"
	secretSize      = 20 // RFC 4226 recommendation
	quotaWindow     = time.Hour
	defaultCodeTTL  = 5 * time.Minute
	defaultMaxCheck = 5
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// RedisConfig tunes the self-hosted provider.
type RedisConfig struct {
	CodeTTL      time.Duration
	Digits       int
	MaxChecks    int
	SendsPerHour int
}

// RedisProvider is a self-hosted code provider. Each send stores a fresh
// random HOTP secret per channel with a TTL; the code is that secret's HOTP
// value at counter zero, so only the secret ever touches Redis. Codes are
// single use and a per-code check budget limits guessing.
type RedisProvider struct {
	cache    *redis.Client
	notifier notification.Notifier
	cfg      RedisConfig
	opts     hotp.ValidateOpts
	now      func() time.Time
}

// NewRedisProvider builds a provider storing code secrets in cache and
// delivering codes through notifier.
func NewRedisProvider(cache *redis.Client, notifier notification.Notifier, cfg RedisConfig) *RedisProvider {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = defaultCodeTTL
	}
	if cfg.MaxChecks <= 0 {
		cfg.MaxChecks = defaultMaxCheck
	}
	digits := potp.Digits(cfg.Digits)
	if digits != potp.DigitsSix && digits != potp.DigitsEight {
		digits = potp.DigitsSix
	}
	return &RedisProvider{
		cache:    cache,
		notifier: notifier,
		cfg:      cfg,
		opts:     hotp.ValidateOpts{Digits: digits, Algorithm: potp.AlgorithmSHA1},
		now:      time.Now,
	}
}

// Send issues a new code for channel, replacing any pending one.
func (p *RedisProvider) Send(ctx context.Context, channel string, method Method) (Receipt, error) {
	if !ValidChannel(channel) {
		return Receipt{}, ErrInvalidChannel
	}

	if p.cfg.SendsPerHour > 0 {
		sends, err := infra.IncrWindow(ctx, p.cache, sendsKey(channel), quotaWindow)
		if err != nil {
			return Receipt{}, unavailable(err)
		}
		if sends > int64(p.cfg.SendsPerHour) {
			return Receipt{}, ErrQuotaExceeded
		}
	}

	secret, err := newSecret()
	if err != nil {
		return Receipt{}, err
	}
	code, err := hotp.GenerateCodeCustom(secret, 0, p.opts)
	if err != nil {
		return Receipt{}, fmt.Errorf("generate code: %w", err)
	}

	_, err = p.cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, codeKey(channel), secret, p.cfg.CodeTTL)
		pipe.Del(ctx, checksKey(channel))
		return nil
	})
	if err != nil {
		return Receipt{}, unavailable(err)
	}

	msg := notification.Message{
		Kind:        notification.KindVerificationCode,
		Destination: channel,
		Body:        fmt.Sprintf("Your verification code is %s. It expires in %s.", code, p.cfg.CodeTTL),
	}
	if err := p.notifier.Send(ctx, msg); err != nil {
		p.cache.Del(ctx, codeKey(channel))
		return Receipt{}, unavailable(err)
	}

	return Receipt{ID: uuid.NewString(), Channel: channel, Method: method, SentAt: p.now().UTC()}, nil
}

// Check reports whether code matches the pending code for channel. A match
// consumes the code.
func (p *RedisProvider) Check(ctx context.Context, channel, code string) (CheckResult, error) {
	if !ValidChannel(channel) {
		return CheckResult{}, nil
	}

	secret, err := p.cache.Get(ctx, codeKey(channel)).Result()
	if errors.Is(err, redis.Nil) {
		return CheckResult{}, nil
	}
	if err != nil {
		return CheckResult{}, unavailable(err)
	}

	checks, err := infra.IncrWindow(ctx, p.cache, checksKey(channel), p.cfg.CodeTTL)
	if err != nil {
		return CheckResult{}, unavailable(err)
	}
	if checks > int64(p.cfg.MaxChecks) {
		p.cache.Del(ctx, codeKey(channel), checksKey(channel))
		return CheckResult{}, nil
	}

	// Malformed input is reported as an error by hotp; it is just a mismatch here.
	ok, _ := hotp.ValidateCustom(code, 0, secret, p.opts)
	if !ok {
		return CheckResult{}, nil
	}

	matched, err := p.consume(ctx, channel, secret)
	if err != nil {
		return CheckResult{}, unavailable(err)
	}
	return CheckResult{Matched: matched}, nil
}

// consume deletes the pending code only if it is still the one backed by
// secret. A concurrent check that already consumed it, or a re-send that
// replaced it, makes this a mismatch.
func (p *RedisProvider) consume(ctx context.Context, channel, secret string) (bool, error) {
	key := codeKey(channel)
	matched := false
	err := p.cache.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if current != secret {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key, checksKey(channel))
			return nil
		})
		if err != nil {
			return err
		}
		matched = true
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return matched, err
}

func newSecret() (string, error) {
	buf := make([]byte, secretSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return secretEncoding.EncodeToString(buf), nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

func codeKey(channel string) string   { return redisKeyPrefix + "code:" + channel }
func checksKey(channel string) string { return redisKeyPrefix + "checks:" + channel }
func sendsKey(channel string) string  { return redisKeyPrefix + "sends:" + channel }
