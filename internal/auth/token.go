package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultTokenLifetime = 24 * time.Hour

// ClaimPrecision is the resolution of iat and exp, so a token issued at t
// is valid over [t, t+lifetime) to the millisecond.
const ClaimPrecision = time.Millisecond

func init() {
	jwt.TimePrecision = ClaimPrecision
}

// TokenConfig is fixed at construction; a TokenService never reads the
// environment.
type TokenConfig struct {
	Secret   string
	Lifetime time.Duration
	Issuer   string
}

// TokenService issues and verifies HS256 bearer tokens. Tokens are
// stateless: there is no revocation list, so a token stays valid until
// it expires even if the account changes.
type TokenService struct {
	secret   []byte
	lifetime time.Duration
	issuer   string
	parser   *jwt.Parser
}

func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret cannot be empty")
	}
	if cfg.Lifetime < 0 {
		return nil, fmt.Errorf("token lifetime cannot be negative: %v", cfg.Lifetime)
	}
	if cfg.Lifetime == 0 {
		cfg.Lifetime = DefaultTokenLifetime
	}
	return &TokenService{
		secret:   []byte(cfg.Secret),
		lifetime: cfg.Lifetime,
		issuer:   cfg.Issuer,
	}, nil
}

func (ts *TokenService) Lifetime() time.Duration {
	return ts.lifetime
}

// Issue signs a token for userID. now is truncated to ClaimPrecision
// before the expiry is computed.
func (ts *TokenService) Issue(userID int64, now time.Time) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("cannot issue token for user id %d", userID)
	}
	issuedAt := now.UTC().Truncate(ClaimPrecision)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    ts.issuer,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ts.lifetime)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks token at now and returns the user id it carries. The
// signature is checked before any claim is decoded, so any altered byte
// yields ErrBadSignature.
func (ts *TokenService) Verify(token string, now time.Time) (int64, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return 0, ErrMalformedToken
	}

	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, ts.secret); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	var claims jwt.RegisteredClaims
	_, err = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	).ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return ts.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return 0, fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
		return 0, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	expiresAt, err := expiryOf(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if !now.Before(expiresAt) {
		return 0, fmt.Errorf("%w: at %s", ErrExpired, expiresAt.Format(time.RFC3339Nano))
	}
	if ts.issuer != "" && claims.Issuer != ts.issuer {
		return 0, fmt.Errorf("%w: unexpected issuer %q", ErrMalformedToken, claims.Issuer)
	}

	if claims.Subject == "" {
		return 0, ErrMissingSubject
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: subject %q is not a user id", ErrMissingSubject, claims.Subject)
	}
	return userID, nil
}

// expiryOf reads exp straight from the payload as a decimal, since a
// float64 round trip can drop the last millisecond.
func expiryOf(payload string) (time.Time, error) {
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return time.Time{}, err
	}
	var body struct {
		ExpiresAt json.Number `json:"exp"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return time.Time{}, err
	}
	if body.ExpiresAt == "" {
		return time.Time{}, errors.New("token has no exp claim")
	}
	seconds, err := decimal.NewFromString(body.ExpiresAt.String())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid exp claim: %w", err)
	}
	return time.UnixMilli(seconds.Shift(3).Floor().IntPart()).UTC(), nil
}
