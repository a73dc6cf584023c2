package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token defaults.
const (
	DefaultIssuer   = "traf3li"
	DefaultAudience = "traf3li-users"

	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour

	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the payload of both token kinds.
type Claims struct {
	UserID      string   `json:"id"`
	Email       string   `json:"email,omitempty"`
	Type        string   `json:"type"`
	Family      string   `json:"family,omitempty"`
	FirmID      string   `json:"firmId,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Subject is the user a token pair is issued for.
type Subject struct {
	ID          string
	Email       string
	FirmID      string
	Role        string
	Permissions []string
}

// TokenPair is the result of a login or a refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time

	// Family links refresh tokens produced by rotation.
	Family string
}

// IssuerConfig configures a TokenIssuer.
type IssuerConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte

	// Issuer and Audience default to DefaultIssuer and DefaultAudience.
	Issuer   string
	Audience string

	// AccessTTL and RefreshTTL default to 15m and 7d.
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now and NewID replace time.Now and uuid generation in tests.
	Now   func() time.Time
	NewID func() string
}

// TokenIssuer signs and verifies HS256 access and refresh tokens.
type TokenIssuer struct {
	config IssuerConfig
}

// NewTokenIssuer validates config and applies defaults.
func NewTokenIssuer(config IssuerConfig) (*TokenIssuer, error) {
	if len(config.AccessSecret) == 0 || len(config.RefreshSecret) == 0 {
		return nil, ErrMissingSecret
	}
	if string(config.AccessSecret) == string(config.RefreshSecret) {
		return nil, ErrReusedSecret
	}
	if config.Issuer == "" {
		config.Issuer = DefaultIssuer
	}
	if config.Audience == "" {
		config.Audience = DefaultAudience
	}
	if config.AccessTTL <= 0 {
		config.AccessTTL = AccessTokenTTL
	}
	if config.RefreshTTL <= 0 {
		config.RefreshTTL = RefreshTokenTTL
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	return &TokenIssuer{config: config}, nil
}

// Issue creates a fresh pair starting a new refresh family.
func (t *TokenIssuer) Issue(sub Subject) (TokenPair, error) {
	return t.issue(sub, t.config.NewID())
}

// Rotate verifies refreshToken and issues a new pair in the same family.
func (t *TokenIssuer) Rotate(refreshToken string, sub Subject) (TokenPair, error) {
	claims, err := t.ParseRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.UserID != sub.ID {
		return TokenPair{}, ErrInvalidCredentials
	}
	return t.issue(sub, claims.Family)
}

func (t *TokenIssuer) issue(sub Subject, family string) (TokenPair, error) {
	now := t.config.Now()
	accessExp := now.Add(t.config.AccessTTL)
	refreshExp := now.Add(t.config.RefreshTTL)

	access, err := t.sign(t.config.AccessSecret, Claims{
		UserID:           sub.ID,
		Email:            sub.Email,
		Type:             TokenTypeAccess,
		FirmID:           sub.FirmID,
		Role:             sub.Role,
		Permissions:      sub.Permissions,
		RegisteredClaims: t.registered(sub.ID, now, accessExp),
	})
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := t.sign(t.config.RefreshSecret, Claims{
		UserID:           sub.ID,
		Type:             TokenTypeRefresh,
		Family:           family,
		RegisteredClaims: t.registered(sub.ID, now, refreshExp),
	})
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		Family:           family,
	}, nil
}

func (t *TokenIssuer) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    t.config.Issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{t.config.Audience},
		ExpiresAt: jwt.NewNumericDate(exp),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        t.config.NewID(),
	}
}

func (t *TokenIssuer) sign(secret []byte, claims Claims) (string, error) {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign %s token: %w", claims.Type, err)
	}
	return s, nil
}

// ParseAccess verifies an access token.
func (t *TokenIssuer) ParseAccess(token string) (*Claims, error) {
	return t.parse(token, t.config.AccessSecret, TokenTypeAccess)
}

// ParseRefresh verifies a refresh token.
func (t *TokenIssuer) ParseRefresh(token string) (*Claims, error) {
	return t.parse(token, t.config.RefreshSecret, TokenTypeRefresh)
}

func (t *TokenIssuer) parse(token string, secret []byte, wantType string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingCredentials
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.config.Issuer),
		jwt.WithAudience(t.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.config.Now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
	}

	if claims.Type != wantType {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
