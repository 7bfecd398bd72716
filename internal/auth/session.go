// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ControllerRole is the only role a table token carries.
const ControllerRole = "controller"

var ErrInvalidToken = errors.New("invalid table token")

// privateKey and publicKey are used for signing and verifying JWT tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenTTL is how long a table token stays valid (0 => never expires).
	tokenTTL time.Duration
)

// ParseTokenExpireTime reads a TOKEN_EXPIRE_TIME value: "never", "0" or ""
// for no expiry, otherwise a Go duration.
func ParseTokenExpireTime(s string) (time.Duration, error) {
	if s == "never" || s == "0" || s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	return d, nil
}

// Init generates a fresh ed25519 key pair at runtime and sets the token expiration.
func Init(expireTime string) error {
	ttl, err := ParseTokenExpireTime(expireTime)
	if err != nil {
		return err
	}
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	tokenTTL = ttl
	return nil
}

// InitFromPath reads ed25519 private/public keys from file and sets the token expiration.
func InitFromPath(privatePath, publicPath, expireTime string) error {
	ttl, err := ParseTokenExpireTime(expireTime)
	if err != nil {
		return err
	}
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return fmt.Errorf("key files do not hold raw ed25519 keys")
	}

	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	tokenTTL = ttl
	return nil
}

// CreateTableToken signs a controller token for gameID.
func CreateTableToken(gameID uuid.UUID) (string, error) {
	if privateKey == nil {
		return "", fmt.Errorf("auth not initialised")
	}
	claims := jwt.MapClaims{
		"sub":  gameID.String(),
		"role": ControllerRole,
		"iat":  time.Now().Unix(),
	}
	if tokenTTL != 0 {
		claims["exp"] = time.Now().Add(tokenTTL).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateTableToken verifies a token and returns the game it controls.
func AuthenticateTableToken(tokenString string) (uuid.UUID, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok || !t.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	if role, _ := claims["role"].(string); role != ControllerRole {
		return uuid.Nil, fmt.Errorf("%w: wrong role", ErrInvalidToken)
	}
	sub, _ := claims["sub"].(string)
	gameID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return gameID, nil
}
