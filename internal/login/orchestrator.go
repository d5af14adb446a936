package login

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/otpgate/otpgate/internal/auth"
	"github.com/otpgate/otpgate/internal/identity"
	"github.com/otpgate/otpgate/internal/otp"
)

// CredentialVerifier checks the first factor.
type CredentialVerifier interface {
	Verify(ctx context.Context, creds identity.Credentials) (identity.Identity, bool, error)
	Resolve(ctx context.Context, username string) (identity.Identity, bool, error)
	Check(ctx context.Context, user identity.Identity, password string) bool
}

// CodeDispatcher sends a one-time code.
type CodeDispatcher interface {
	Dispatch(ctx context.Context, channel string) (otp.Receipt, error)
}

// CodeValidator checks a submitted one-time code.
type CodeValidator interface {
	Validate(ctx context.Context, channel, code string) (otp.Outcome, error)
}

// SessionIssuer creates the session of a fully authenticated user.
type SessionIssuer interface {
	Issue(ctx context.Context, user identity.Identity) (auth.Session, error)
}

// Observer receives step outcomes for metrics.
type Observer interface {
	ObserveStep(step, result string)
	ObserveDispatch(result string)
	ObserveSession()
}

// Attempt is the outcome of Start.
type Attempt struct {
	State    State
	Username string
	Receipt  otp.Receipt
}

// Result is the outcome of Complete.
type Result struct {
	State   State
	Session auth.Session
}

// Orchestrator runs the two-step login. It holds no per-attempt state: the
// client re-submits its credentials with the code, and both factors are
// checked again on the second step.
type Orchestrator struct {
	credentials CredentialVerifier
	dispatcher  CodeDispatcher
	validator   CodeValidator
	sessions    SessionIssuer
	logger      *slog.Logger
	observer    Observer
}

// NewOrchestrator wires the login collaborators. observer may be nil.
func NewOrchestrator(credentials CredentialVerifier, dispatcher CodeDispatcher, validator CodeValidator, sessions SessionIssuer, logger *slog.Logger, observer Observer) *Orchestrator {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Orchestrator{
		credentials: credentials,
		dispatcher:  dispatcher,
		validator:   validator,
		sessions:    sessions,
		logger:      logger,
		observer:    observer,
	}
}

// Start checks the credentials and, only if they match, sends exactly one
// code to the user's phone.
func (o *Orchestrator) Start(ctx context.Context, creds identity.Credentials) (Attempt, error) {
	user, ok, err := o.credentials.Verify(ctx, creds)
	if err != nil {
		return Attempt{State: Rejected}, o.reject(ctx, StepStart, creds.Username, ReasonProviderUnavailable, err)
	}
	if !ok {
		return Attempt{State: Rejected}, o.reject(ctx, StepStart, creds.Username, ReasonInvalidCredentials, nil)
	}

	receipt, err := o.dispatcher.Dispatch(ctx, user.Phone)
	if err != nil {
		o.observer.ObserveDispatch(dispatchResult(err))
		return Attempt{State: Rejected}, o.reject(ctx, StepStart, user.Username, ReasonDispatchFailed, err)
	}
	o.observer.ObserveDispatch("ok")
	o.observer.ObserveStep(StepStart, "ok")
	o.logger.InfoContext(ctx, "verification started",
		slog.String("username", user.Username),
		slog.String("receipt_id", receipt.ID),
		slog.String("method", string(receipt.Method)),
	)

	return Attempt{State: AwaitingCode, Username: user.Username, Receipt: receipt}, nil
}

// Complete checks the credentials and the code concurrently and issues a
// session only when both succeed for the same user.
func (o *Orchestrator) Complete(ctx context.Context, creds identity.Credentials, code string) (Result, error) {
	user, found, err := o.credentials.Resolve(ctx, creds.Username)
	if err != nil {
		return Result{State: Rejected}, o.reject(ctx, StepComplete, creds.Username, ReasonProviderUnavailable, err)
	}
	if !found || creds.Password == "" {
		o.credentials.Check(ctx, identity.Identity{}, creds.Password)
		return Result{State: Rejected}, o.reject(ctx, StepComplete, creds.Username, ReasonInvalidCredentials, nil)
	}

	var (
		credentialsOK bool
		outcome       otp.Outcome
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		credentialsOK = o.credentials.Check(gctx, user, creds.Password)
		return nil
	})
	g.Go(func() error {
		var err error
		outcome, err = o.validator.Validate(gctx, user.Phone, code)
		return err
	})
	validateErr := g.Wait()

	switch {
	case !credentialsOK:
		return Result{State: Rejected}, o.reject(ctx, StepComplete, user.Username, ReasonInvalidCredentials, nil)
	case validateErr != nil:
		return Result{State: Rejected}, o.reject(ctx, StepComplete, user.Username, ReasonProviderUnavailable, validateErr)
	case outcome != otp.Verified:
		return Result{State: Rejected}, o.reject(ctx, StepComplete, user.Username, ReasonCodeDenied, nil)
	}

	sess, err := o.sessions.Issue(ctx, user)
	if err != nil {
		return Result{State: Rejected}, o.reject(ctx, StepComplete, user.Username, ReasonSessionFailed, err)
	}
	o.observer.ObserveSession()
	o.observer.ObserveStep(StepComplete, "ok")
	o.logger.InfoContext(ctx, "login completed",
		slog.String("username", user.Username),
		slog.String("session_id", sess.ID),
	)

	return Result{State: Authenticated, Session: sess}, nil
}

func (o *Orchestrator) reject(ctx context.Context, step, username string, reason Reason, cause error) error {
	o.observer.ObserveStep(step, string(reason))
	attrs := []any{
		slog.String("step", step),
		slog.String("reason", string(reason)),
		slog.String("username", username),
	}
	if cause != nil {
		attrs = append(attrs, slog.Any("error", cause))
	}
	o.logger.WarnContext(ctx, "login rejected", attrs...)
	return &RejectedError{Step: step, Reason: reason, Err: cause}
}

func dispatchResult(err error) string {
	switch {
	case errors.Is(err, otp.ErrInvalidChannel):
		return "invalid_channel"
	case errors.Is(err, otp.ErrQuotaExceeded):
		return "quota_exceeded"
	default:
		return "unavailable"
	}
}

type nopObserver struct{}

func (nopObserver) ObserveStep(string, string) {}
func (nopObserver) ObserveDispatch(string)     {}
func (nopObserver) ObserveSession()            {}
