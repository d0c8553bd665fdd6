package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenService wraps JWT creation and validation for the access/refresh token
// pair. The subject claim carries the user id.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// CreateAccessToken creates a short-lived access token for the given user.
func (t *TokenService) CreateAccessToken(userID string) (string, error) {
	return t.create(userID, tokenTypeAccess, t.accessTTL)
}

// CreateRefreshToken creates a long-lived refresh token for the given user.
func (t *TokenService) CreateRefreshToken(userID string) (string, error) {
	return t.create(userID, tokenTypeRefresh, t.refreshTTL)
}

func (t *TokenService) create(userID, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	// jti makes every token unique, so rotating a refresh token always
	// invalidates the stored digest of the previous one.
	claims := jwt.MapClaims{
		"sub":  userID,
		"type": tokenType,
		"jti":  uuid.NewString(),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// VerifyAccessToken validates an access token and returns the user id.
func (t *TokenService) VerifyAccessToken(tokenStr string) (string, error) {
	return t.verify(tokenStr, tokenTypeAccess)
}

// VerifyRefreshToken validates a refresh token and returns the user id.
func (t *TokenService) VerifyRefreshToken(tokenStr string) (string, error) {
	return t.verify(tokenStr, tokenTypeRefresh)
}

func (t *TokenService) verify(tokenStr, wantType string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", jwt.ErrSignatureInvalid
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", jwt.ErrTokenMalformed
	}
	if typ, _ := claims["type"].(string); typ != wantType {
		return "", ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}
