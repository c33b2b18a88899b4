// Package auth issues and verifies the session tokens and password hashes used by the fleet
// admin. Tokens are HS256-signed with the shared secret in AMIGA_JWT_SECRET.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer is the iss claim of every token this package signs
	Issuer = "amiga-backend"

	// DefaultTokenExpiry applies when the caller passes a zero lifetime
	DefaultTokenExpiry = 24 * time.Hour

	minSecretLength = 32
)

// ErrInvalidToken wraps every token verification failure.
var ErrInvalidToken = errors.New("invalid token")

var (
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// Claims carries the session identity. Role is a snapshot taken at login; the auth
// middleware reloads the user and trusts the stored role instead.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func isDevMode() bool {
	switch {
	case os.Getenv("DEV_MODE") == "true", os.Getenv("DEV_MODE") == "1":
		return true
	case os.Getenv("AMIGA_ENV") == "development":
		return true
	default:
		return os.Getenv("GIN_MODE") == "debug"
	}
}

// ValidateJWTSecret loads the signing secret once. Without AMIGA_JWT_SECRET it fails,
// except in dev mode where a random per-process secret is generated.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv("AMIGA_JWT_SECRET")
		switch {
		case secret != "":
			if len(secret) < minSecretLength {
				slog.Warn("AMIGA_JWT_SECRET is shorter than recommended", "min_length", minSecretLength)
			}
			jwtSecret = secret
		case isDevMode():
			buf := make([]byte, minSecretLength)
			if _, err := rand.Read(buf); err != nil {
				jwtSecretErr = fmt.Errorf("failed to generate development JWT secret: %w", err)
				return
			}
			jwtSecret = hex.EncodeToString(buf)
			slog.Warn("AMIGA_JWT_SECRET not set, using a generated secret; sessions will not survive a restart")
		default:
			jwtSecretErr = errors.New("AMIGA_JWT_SECRET is required outside development mode; " +
				"generate one with: go run ./scripts/generate-key.go")
		}
	})
	return jwtSecretErr
}

// GetJWTSecret returns the signing secret, loading it on first use. It panics when no
// secret can be loaded; the server calls ValidateJWTSecret at startup to fail earlier.
func GetJWTSecret() string {
	if jwtSecret == "" {
		if err := ValidateJWTSecret(); err != nil {
			panic(err)
		}
	}
	return jwtSecret
}

// GenerateJWT signs a session token for userID valid for expiresIn.
func GenerateJWT(userID, email, role string, expiresIn time.Duration) (string, error) {
	if expiresIn == 0 {
		expiresIn = DefaultTokenExpiry
	}
	now := time.Now()

	claims := &Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(GetJWTSecret()))
}

// ValidateJWT verifies signature, issuer and expiry and returns the claims. All
// failures wrap ErrInvalidToken.
func ValidateJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(GetJWTSecret()), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}
