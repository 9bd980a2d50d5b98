package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "postdispatch"

// SessionClaims identify the signed-in user on API requests.
type SessionClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// StateClaims travel through an OAuth authorization round trip as the state
// parameter. Verifier is the PKCE code verifier for platforms that need one.
type StateClaims struct {
	UserID   string `json:"user_id"`
	Platform string `json:"platform"`
	Verifier string `json:"verifier,omitempty"`
	jwt.RegisteredClaims
}

func registered(now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    tokenIssuer,
	}
}

func GenerateToken(secretKey, userID string, tokenDuration time.Duration) (string, error) {
	claims := SessionClaims{
		UserID:           userID,
		RegisteredClaims: registered(time.Now(), tokenDuration),
	}
	return sign(secretKey, claims)
}

func ValidateToken(secretKey, tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := parse(secretKey, tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func GenerateStateToken(secretKey string, state StateClaims, ttl time.Duration) (string, error) {
	state.RegisteredClaims = registered(time.Now(), ttl)
	return sign(secretKey, state)
}

func ValidateStateToken(secretKey, tokenString string) (*StateClaims, error) {
	claims := &StateClaims{}
	if err := parse(secretKey, tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func sign(secretKey string, claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}

func parse(secretKey, tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return []byte(secretKey), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}
