package login

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/otpgate/otpgate/internal/auth"
	"github.com/otpgate/otpgate/internal/identity"
	"github.com/otpgate/otpgate/internal/logging"
	"github.com/otpgate/otpgate/internal/otp"
)

const (
	alicePhone = "+15551234567"
	aliceCode  = "482913"
)

// stubProvider plays the external code service: it always "sends" aliceCode.
type stubProvider struct {
	mu       sync.Mutex
	sends    []string
	sendErr  error
	checkErr error
}

func (p *stubProvider) Send(_ context.Context, channel string, method otp.Method) (otp.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return otp.Receipt{}, p.sendErr
	}
	p.sends = append(p.sends, channel)
	return otp.Receipt{ID: "receipt-1", Channel: channel, Method: method, SentAt: time.Now()}, nil
}

func (p *stubProvider) Check(_ context.Context, channel, code string) (otp.CheckResult, error) {
	if p.checkErr != nil {
		return otp.CheckResult{}, p.checkErr
	}
	return otp.CheckResult{Matched: channel == alicePhone && code == aliceCode}, nil
}

func (p *stubProvider) sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sends...)
}

type countingIssuer struct {
	mu     sync.Mutex
	issued []identity.Identity
	err    error
}

func (i *countingIssuer) Issue(_ context.Context, user identity.Identity) (auth.Session, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return auth.Session{}, i.err
	}
	i.issued = append(i.issued, user)
	return auth.Session{ID: "session-1", Token: "token", UserID: user.ID, Username: user.Username, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type brokenStore struct{}

func (brokenStore) Create(context.Context, identity.Identity) error { return errors.New("down") }

func (brokenStore) FindByUsername(context.Context, string) (identity.Identity, error) {
	return identity.Identity{}, errors.New("connection refused")
}

type fixture struct {
	orchestrator *Orchestrator
	provider     *stubProvider
	issuer       *countingIssuer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ids := identity.NewService(identity.NewMemoryRepository(), bcrypt.MinCost)
	if _, err := ids.Register(context.Background(), identity.Registration{Username: "alice", Phone: alicePhone, Password: "correct-pw"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	provider := &stubProvider{}
	issuer := &countingIssuer{}
	o := NewOrchestrator(ids, otp.NewDispatcher(provider, otp.MethodSMS), otp.NewValidator(provider), issuer, logging.Discard(), nil)
	return fixture{orchestrator: o, provider: provider, issuer: issuer}
}

var aliceCreds = identity.Credentials{Username: "alice", Password: "correct-pw"}

func TestStartDispatchesOnceForValidCredentials(t *testing.T) {
	f := newFixture(t)

	attempt, err := f.orchestrator.Start(context.Background(), aliceCreds)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if attempt.State != AwaitingCode {
		t.Fatalf("expected %s, got %s", AwaitingCode, attempt.State)
	}
	if sends := f.provider.sent(); len(sends) != 1 || sends[0] != alicePhone {
		t.Fatalf("expected exactly one send to %s, got %v", alicePhone, sends)
	}
}

func TestStartRejectsInvalidCredentialsWithoutDispatch(t *testing.T) {
	f := newFixture(t)

	cases := []identity.Credentials{
		{Username: "alice", Password: "wrong-pw"},
		{Username: "bob", Password: "correct-pw"},
		{Username: "", Password: ""},
	}
	for _, creds := range cases {
		attempt, err := f.orchestrator.Start(context.Background(), creds)
		if !errors.Is(err, ErrRejected) {
			t.Fatalf("%+v: expected rejection, got %v", creds, err)
		}
		if ReasonOf(err) != ReasonInvalidCredentials {
			t.Fatalf("%+v: expected invalid credentials, got %s", creds, ReasonOf(err))
		}
		if attempt.State != Rejected {
			t.Fatalf("expected rejected state, got %s", attempt.State)
		}
	}
	if sends := f.provider.sent(); len(sends) != 0 {
		t.Fatalf("expected zero sends, got %v", sends)
	}
}

func TestStartDispatchFailureIsRejection(t *testing.T) {
	f := newFixture(t)
	f.provider.sendErr = otp.ErrQuotaExceeded

	attempt, err := f.orchestrator.Start(context.Background(), aliceCreds)
	if ReasonOf(err) != ReasonDispatchFailed {
		t.Fatalf("expected dispatch failure, got %v", err)
	}
	if !errors.Is(err, otp.ErrQuotaExceeded) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	if attempt.State != Rejected {
		t.Fatalf("expected rejected state, got %s", attempt.State)
	}
}

func TestCompleteAuthenticates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.orchestrator.Start(ctx, aliceCreds); err != nil {
		t.Fatalf("start: %v", err)
	}
	res, err := f.orchestrator.Complete(ctx, aliceCreds, aliceCode)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.State != Authenticated {
		t.Fatalf("expected authenticated, got %s", res.State)
	}
	if len(f.issuer.issued) != 1 || f.issuer.issued[0].Username != "alice" {
		t.Fatalf("expected exactly one session for alice, got %+v", f.issuer.issued)
	}
}

func TestCompleteRejectsWrongCode(t *testing.T) {
	for _, code := range []string{"000000", "111111", "", "48291"} {
		f := newFixture(t)
		res, err := f.orchestrator.Complete(context.Background(), aliceCreds, code)
		if ReasonOf(err) != ReasonCodeDenied {
			t.Fatalf("code %q: expected code denied, got %v", code, err)
		}
		if res.State != Rejected || len(f.issuer.issued) != 0 {
			t.Fatalf("code %q: expected rejection without session, got %s / %d sessions", code, res.State, len(f.issuer.issued))
		}
	}
}

func TestCompleteRechecksPassword(t *testing.T) {
	f := newFixture(t)

	res, err := f.orchestrator.Complete(context.Background(), identity.Credentials{Username: "alice", Password: "wrong-pw"}, aliceCode)
	if ReasonOf(err) != ReasonInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if res.State != Rejected || len(f.issuer.issued) != 0 {
		t.Fatalf("expected rejection without session")
	}
}

func TestCompleteUnknownUser(t *testing.T) {
	f := newFixture(t)

	if _, err := f.orchestrator.Complete(context.Background(), identity.Credentials{Username: "mallory", Password: "correct-pw"}, aliceCode); ReasonOf(err) != ReasonInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestCompleteProviderUnavailable(t *testing.T) {
	f := newFixture(t)
	f.provider.checkErr = otp.ErrProviderUnavailable

	res, err := f.orchestrator.Complete(context.Background(), aliceCreds, aliceCode)
	if ReasonOf(err) != ReasonProviderUnavailable {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
	if res.State != Rejected || len(f.issuer.issued) != 0 {
		t.Fatalf("expected rejection without session")
	}
}

func TestCompleteSessionFailure(t *testing.T) {
	f := newFixture(t)
	f.issuer.err = errors.New("signing key missing")

	if _, err := f.orchestrator.Complete(context.Background(), aliceCreds, aliceCode); ReasonOf(err) != ReasonSessionFailed {
		t.Fatalf("expected session failure, got %v", err)
	}
}

func TestStoreOutageIsRejection(t *testing.T) {
	provider := &stubProvider{}
	issuer := &countingIssuer{}
	ids := identity.NewService(brokenStore{}, bcrypt.MinCost)
	o := NewOrchestrator(ids, otp.NewDispatcher(provider, otp.MethodSMS), otp.NewValidator(provider), issuer, logging.Discard(), nil)

	if _, err := o.Start(context.Background(), aliceCreds); ReasonOf(err) != ReasonProviderUnavailable {
		t.Fatalf("expected provider unavailable on start, got %v", err)
	}
	if _, err := o.Complete(context.Background(), aliceCreds, aliceCode); ReasonOf(err) != ReasonProviderUnavailable {
		t.Fatalf("expected provider unavailable on complete, got %v", err)
	}
	if len(provider.sent()) != 0 || len(issuer.issued) != 0 {
		t.Fatalf("expected no side effects on store outage")
	}
}
