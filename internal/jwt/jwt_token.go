package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"

	"care-support-backend/internal/env"
)

var handlerSecret = []byte(env.Get(env.HandlerSecretKey))

// SetHandlerSecret overrides the signing secret, used by tests.
func SetHandlerSecret(secret []byte) {
	handlerSecret = secret
}

func appendRoleChar(token string, role Role) string {
	switch role {
	case RoleHandler:
		return token + "2"
	}
	return token
}

func expectedRoleChar(role Role) string {
	switch role {
	case RoleHandler:
		return "2"
	}
	return ""
}

func CreateToken(handler Handler, role Role, validUntil int64) (string, error) {
	if role != RoleHandler {
		return "", fmt.Errorf("invalid role specified")
	}
	if len(handlerSecret) == 0 {
		return "", fmt.Errorf("handler secret is not configured")
	}

	if validUntil == 0 {
		validUntil = time.Now().Add(8 * time.Hour).Unix()
	}

	claims := jwt.MapClaims{
		"id":    handler.Id,
		"name":  handler.Name,
		"email": handler.Email,
		"exp":   validUntil,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(handlerSecret)
	if err != nil {
		return "", err
	}

	return appendRoleChar(tokenString, role), nil
}

// ParseToken verifies a console token, including its role character, and
// returns its claims.
func ParseToken(tokenString string, role Role) (jwt.MapClaims, error) {
	if len(tokenString) == 0 {
		return nil, fmt.Errorf("token string is empty")
	}

	if tokenString[len(tokenString)-1:] != expectedRoleChar(role) {
		return nil, fmt.Errorf("invalid role character in token")
	}
	tokenString = tokenString[:len(tokenString)-1]

	if role != RoleHandler || len(handlerSecret) == 0 {
		return nil, fmt.Errorf("invalid role specified")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return handlerSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("unauthorized: %v", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid - unauthorized")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("claims of unauthorized type")
	}

	return claims, nil
}

// HandlerFromClaims extracts the handler identity minted into the token.
func HandlerFromClaims(claims jwt.MapClaims) (Handler, error) {
	id, _ := claims["id"].(string)
	if id == "" {
		return Handler{}, fmt.Errorf("token is missing handler id")
	}
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	return Handler{Id: id, Name: name, Email: email}, nil
}
