package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/EduPortal/internal/pkg/randcode"
)

// Verdict is the result of checking an answer against a challenge.
type Verdict string

const (
	VerdictValid     Verdict = "valid"
	VerdictInvalid   Verdict = "invalid"
	VerdictExpired   Verdict = "expired"
	VerdictExhausted Verdict = "exhausted"
)

const (
	PurposeEmailVerification = "email_verification"

	DefaultMaxAttempts  = 5
	DefaultChallengeTTL = 10 * time.Minute
	codeDigits          = 6
)

var ErrChallengeNotFound = errors.New("challenge not found")

// Challenge is server-held verification state. Only a hash of the code is kept.
type Challenge struct {
	Token       string
	Subject     string
	Purpose     string
	Payload     string
	CodeHash    string
	Attempts    int
	MaxAttempts int
	ExpiresAt   time.Time
}

// ChallengeStore persists challenges. Records must disappear after ttl.
type ChallengeStore interface {
	Save(ctx context.Context, c *Challenge, ttl time.Duration) error
	Get(ctx context.Context, token string) (*Challenge, error)
	// IncrementAttempts returns the new attempt count, or ErrChallengeNotFound.
	IncrementAttempts(ctx context.Context, token string) (int, error)
	// Delete reports whether the record still existed.
	Delete(ctx context.Context, token string) (bool, error)
}

// ChallengeService issues and checks time-boxed, attempt-limited codes.
type ChallengeService struct {
	store       ChallengeStore
	maxAttempts int
	bcryptCost  int
	now         func() time.Time
}

type ChallengeOption func(*ChallengeService)

func WithMaxAttempts(n int) ChallengeOption {
	return func(s *ChallengeService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBcryptCost lowers the hashing cost, mostly for tests.
func WithBcryptCost(cost int) ChallengeOption {
	return func(s *ChallengeService) { s.bcryptCost = cost }
}

func WithChallengeClock(now func() time.Time) ChallengeOption {
	return func(s *ChallengeService) { s.now = now }
}

func NewChallengeService(store ChallengeStore, opts ...ChallengeOption) *ChallengeService {
	s := &ChallengeService{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		bcryptCost:  bcrypt.DefaultCost,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateChallenge stores a new challenge and returns its token and the plain
// code, which is shown to the user once and never stored.
func (s *ChallengeService) CreateChallenge(ctx context.Context, subject, purpose, payload string, ttl time.Duration) (string, string, error) {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(purpose) == "" {
		return "", "", errors.New("subject and purpose are required")
	}
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}

	code, err := randcode.Digits(codeDigits)
	if err != nil {
		return "", "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.bcryptCost)
	if err != nil {
		return "", "", err
	}

	c := &Challenge{
		Token:       uuid.NewString(),
		Subject:     subject,
		Purpose:     purpose,
		Payload:     payload,
		CodeHash:    string(hash),
		MaxAttempts: s.maxAttempts,
		ExpiresAt:   s.now().Add(ttl),
	}
	if err := s.store.Save(ctx, c, ttl); err != nil {
		return "", "", fmt.Errorf("save challenge: %w", err)
	}
	return c.Token, code, nil
}

// VerifyChallenge checks answer. A token belonging to another subject or
// purpose is reported as expired; empty subject or purpose skips that check.
// The challenge is returned only for a valid answer and is consumed by it.
func (s *ChallengeService) VerifyChallenge(ctx context.Context, token, subject, purpose, answer string) (Verdict, *Challenge, error) {
	c, err := s.store.Get(ctx, token)
	if errors.Is(err, ErrChallengeNotFound) {
		return VerdictExpired, nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	if (subject != "" && c.Subject != subject) || (purpose != "" && c.Purpose != purpose) {
		return VerdictExpired, nil, nil
	}
	if !s.now().Before(c.ExpiresAt) {
		s.discard(ctx, token)
		return VerdictExpired, nil, nil
	}

	// reserve the attempt before comparing so parallel guesses share one budget
	attempts, err := s.store.IncrementAttempts(ctx, token)
	if errors.Is(err, ErrChallengeNotFound) {
		return VerdictExpired, nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	if attempts > c.MaxAttempts {
		s.discard(ctx, token)
		return VerdictExhausted, nil, nil
	}

	if bcrypt.CompareHashAndPassword([]byte(c.CodeHash), []byte(strings.TrimSpace(answer))) == nil {
		// only the caller that removes the record may use it
		deleted, err := s.store.Delete(ctx, token)
		if err != nil {
			return "", nil, err
		}
		if !deleted {
			return VerdictExpired, nil, nil
		}
		c.Attempts = attempts
		return VerdictValid, c, nil
	}

	if attempts >= c.MaxAttempts {
		s.discard(ctx, token)
		return VerdictExhausted, nil, nil
	}
	return VerdictInvalid, nil, nil
}

func (s *ChallengeService) discard(ctx context.Context, token string) {
	if _, err := s.store.Delete(ctx, token); err != nil {
		log.Warnf("[Security] failed to delete challenge %s: %v", token, err)
	}
}

