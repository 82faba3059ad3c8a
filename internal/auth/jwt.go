package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/np-nandanpatil/adi/internal/model"
)

type Claims struct {
	AccountID    string `json:"account_id"`
	PublicUserID string `json:"public_user_id"`
	Name         string `json:"name"`
	jwt.RegisteredClaims
}

func (c *Claims) OwnerID() (model.PublicUserID, error) {
	return model.ParsePublicUserID(c.PublicUserID)
}

func NewAccessToken(secret, issuer string, ttl time.Duration, claims Claims) (string, error) {
	now := time.Now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.AccountID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
