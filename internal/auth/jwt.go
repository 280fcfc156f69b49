package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tasklist/tasklist/internal/model"
)

// Token types carried in the token_type claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	// ErrInvalidToken indicates a malformed token or bad signature.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired indicates the token is past its exp claim.
	ErrTokenExpired = errors.New("token expired")
	// ErrWrongTokenType indicates e.g. a refresh token presented as a bearer credential.
	ErrWrongTokenType = errors.New("wrong token type")
)

// Claims is the JWT payload: registered claims plus the caller's username and role.
type Claims struct {
	jwt.RegisteredClaims
	Username  string `json:"username"`
	IsAdmin   bool   `json:"is_admin"`
	TokenType string `json:"token_type"`
}

// Identity converts verified claims into the request identity.
func (c *Claims) Identity() *model.Identity {
	return &model.Identity{
		UserID:   c.Subject,
		Username: c.Username,
		IsAdmin:  c.IsAdmin,
		TokenID:  c.ID,
	}
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenIssuer signs and verifies HS256 access and refresh tokens.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(secret []byte, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	i.now = now
	return i
}

// Issue creates a fresh access/refresh pair for the user.
func (i *TokenIssuer) Issue(user *model.User) (*TokenPair, error) {
	access, err := i.sign(user, TokenTypeAccess, i.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := i.sign(user, TokenTypeRefresh, i.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// ParseAccess verifies an access token.
func (i *TokenIssuer) ParseAccess(token string) (*Claims, error) {
	return i.parse(token, TokenTypeAccess)
}

// ParseRefresh verifies a refresh token.
func (i *TokenIssuer) ParseRefresh(token string) (*Claims, error) {
	return i.parse(token, TokenTypeRefresh)
}

func (i *TokenIssuer) sign(user *model.User, tokenType string, ttl time.Duration) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username:  user.Username,
		IsAdmin:   user.IsAdmin,
		TokenType: tokenType,
	})

	return token.SignedString(i.secret)
}

func (i *TokenIssuer) parse(tokenString, wantType string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	if claims.TokenType != wantType {
		return nil, ErrWrongTokenType
	}

	return claims, nil
}
