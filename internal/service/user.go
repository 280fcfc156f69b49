package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tasklist/tasklist/internal/auth"
	"github.com/tasklist/tasklist/internal/metrics"
	"github.com/tasklist/tasklist/internal/model"
	"github.com/tasklist/tasklist/internal/repository"
)

// MaxUsernameLength is the longest accepted username.
const MaxUsernameLength = 150

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9@.+_-]+$`)

const msgInvalidUsername = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."

// UserStore is the persistence contract for identities.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
}

// TokenRevoker records refresh token IDs that have been spent.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
}

// UserService handles registration and credential exchange.
type UserService struct {
	store   UserStore
	hasher  *auth.PasswordHasher
	tokens  *auth.TokenIssuer
	revoker TokenRevoker
	metrics metrics.Recorder
	now     func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewUserService creates a new UserService.
func NewUserService(store UserStore, hasher *auth.PasswordHasher, tokens *auth.TokenIssuer, revoker TokenRevoker, recorder metrics.Recorder) *UserService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &UserService{
		store:   store,
		hasher:  hasher,
		tokens:  tokens,
		revoker: revoker,
		metrics: recorder,
		now:     time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *UserService) WithClock(now func() time.Time) *UserService {
	s.now = now
	return s
}

// RegisterInput defines input for registering an identity.
// Nil means the field was not supplied.
type RegisterInput struct {
	Username *string
	Password *string
}

// Register creates a non-admin identity. The plaintext password is not retained.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	verr := &ValidationError{}

	var username string
	switch {
	case input.Username == nil:
		verr.Add("username", msgRequired)
	default:
		username = strings.TrimSpace(*input.Username)
		switch {
		case username == "":
			verr.Add("username", msgBlank)
		case utf8.RuneCountInString(username) > MaxUsernameLength:
			verr.Add("username", maxLengthMessage(MaxUsernameLength))
		case !usernameRegex.MatchString(username):
			verr.Add("username", msgInvalidUsername)
		}
	}

	switch {
	case input.Password == nil:
		verr.Add("password", msgRequired)
	case *input.Password == "":
		verr.Add("password", msgBlank)
	}

	if verr.Has() {
		return nil, verr
	}

	hash, err := s.hasher.Hash(*input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      false,
		CreatedAt:    s.now().UTC().Truncate(time.Microsecond),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return nil, NewValidationError("username", msgUsernameTaken)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.metrics.IncUserRegistered()
	return user, nil
}

// Login exchanges a username and password for a token pair.
// Unknown usernames and wrong passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, username, password string) (*auth.TokenPair, error) {
	if username == "" || password == "" {
		s.metrics.IncAuthFailed()
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Spend the same hashing work as a real check.
			_, _ = s.hasher.Verify(password, s.dummy())
			s.metrics.IncAuthFailed()
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		s.metrics.IncAuthFailed()
		return nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}

	s.metrics.IncTokenIssued("password")
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. Each refresh token is
// accepted once; the presented token is revoked until it would have expired.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		s.metrics.IncAuthFailed()
		return nil, ErrInvalidToken
	}

	ttl := claims.ExpiresAt.Sub(s.now())
	fresh, err := s.revoker.RevokeToken(ctx, claims.ID, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if !fresh {
		s.metrics.IncAuthFailed()
		return nil, ErrInvalidToken
	}

	// Reload so role changes and deletions take effect on refresh.
	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.metrics.IncAuthFailed()
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	pair, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}

	s.metrics.IncTokenIssued("refresh")
	return pair, nil
}

// Authenticate verifies a bearer access token and returns the caller.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (*model.Identity, error) {
	if accessToken == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		s.metrics.IncAuthFailed()
		return nil, ErrInvalidToken
	}

	return claims.Identity(), nil
}

func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("tasklist-dummy-password")
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}
