package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72
)

var (
	usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,63}$`)
	phonePattern    = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)
)

// Service is the credential verifier. It resolves users from the store and
// checks password proofs; it never mutates stored users outside Register.
type Service struct {
	repo Repository
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewService creates a new identity service. A zero cost selects bcrypt.DefaultCost.
func NewService(repo Repository, cost int) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, cost: cost}
}

// Register validates and stores a new user with a hashed password.
func (s *Service) Register(ctx context.Context, reg Registration) (Identity, error) {
	username := normalizeUsername(reg.Username)
	if !usernamePattern.MatchString(username) {
		return Identity{}, errors.New("username must be 2-64 characters of a-z, 0-9, '.', '_' or '-'")
	}
	if !phonePattern.MatchString(reg.Phone) {
		return Identity{}, errors.New("phone must be in E.164 format")
	}
	if len(reg.Password) < minPasswordLen || len(reg.Password) > maxPasswordLen {
		return Identity{}, fmt.Errorf("password must be %d-%d bytes", minPasswordLen, maxPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return Identity{}, err
	}

	user := Identity{
		ID:           uuid.New().String(),
		Username:     username,
		Phone:        reg.Phone,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return Identity{}, err
	}

	return user, nil
}

// Resolve looks up a user by username. A missing user is reported through
// found, not through err; err is reserved for store failures.
func (s *Service) Resolve(ctx context.Context, username string) (Identity, bool, error) {
	username = normalizeUsername(username)
	if username == "" {
		return Identity{}, false, nil
	}
	user, err := s.repo.FindByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, fmt.Errorf("lookup user: %w", err)
	}
	return user, true, nil
}

// Check compares password against the stored hash. A zero identity is
// compared against a throwaway hash so unknown users cost the same as known ones.
func (s *Service) Check(_ context.Context, user Identity, password string) bool {
	hash := user.PasswordHash
	if len(hash) == 0 {
		hash = s.dummy()
	}
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	return err == nil && len(user.PasswordHash) > 0 && password != ""
}

// Verify resolves the user and checks the password. It returns found=false
// for unknown users and wrong passwords alike.
func (s *Service) Verify(ctx context.Context, creds Credentials) (Identity, bool, error) {
	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		return Identity{}, false, nil
	}
	user, found, err := s.Resolve(ctx, creds.Username)
	if err != nil {
		return Identity{}, false, err
	}
	if !s.Check(ctx, user, creds.Password) || !found {
		return Identity{}, false, nil
	}
	return user, true, nil
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.cost)
	})
	return s.dummyHash
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
