// Package auth holds password hashing and the access/refresh token formats.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrBadToken     = errors.New("invalid token")
	ErrWeakPassword = errors.New("password too short")
	ErrLongPassword = errors.New("password too long")
)

const (
	Issuer            = "dermalink"
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
	MinPasswordLen    = 8
	// bcrypt ignores everything past 72 bytes
	maxPasswordBytes = 72
)

// ValidatePassword enforces the length rules checked at registration.
func ValidatePassword(pw string) error {
	switch {
	case len([]rune(pw)) < MinPasswordLen:
		return ErrWeakPassword
	case len(pw) > maxPasswordBytes:
		return ErrLongPassword
	}
	return nil
}

func HashPassword(pw string) (string, error) {
	if err := ValidatePassword(pw); err != nil {
		return "", err
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

func CheckPassword(hash, pw string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Claims is the access token payload.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// MakeToken signs an access token for uid with role. ttl <= 0 uses
// DefaultAccessTTL.
func MakeToken(uid, role, secret string, ttl time.Duration) (string, error) {
	if uid == "" || role == "" {
		return "", fmt.Errorf("make token: uid and role required")
	}
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	now := time.Now()
	c := Claims{
		UserID: uid,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

var parser = jwt.NewParser(
	jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	jwt.WithIssuer(Issuer),
	jwt.WithExpirationRequired(),
	jwt.WithLeeway(5*time.Second),
)

// ParseToken verifies raw and returns its claims. Tokens from another
// issuer, without expiry, or without a user and role are rejected.
func ParseToken(raw, secret string) (*Claims, error) {
	c := &Claims{}
	tok, err := parser.ParseWithClaims(raw, c, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	if !tok.Valid || c.UserID == "" || c.Role == "" {
		return nil, ErrBadToken
	}
	return c, nil
}

// GenerateRefreshToken returns the opaque token handed to the client and
// the SHA-256 hash that is persisted in its place.
func GenerateRefreshToken() (raw, hash string, err error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", "", fmt.Errorf("refresh token: %w", err)
	}
	raw = hex.EncodeToString(b[:])
	return raw, HashRefreshToken(raw), nil
}

func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
