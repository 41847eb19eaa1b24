package utils

import (
	"errors"
	"fmt"
	"time"

	"civicflow/models"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateActorJWT generates a JWT carrying the caller's identity: user_id, role and,
// for staff roles, department_id. SYSTEM tokens are never minted; automation uses the
// system token header instead.
func GenerateActorJWT(actor models.ActorContext, secret []byte, expiresInHours int) (string, error) {
	if !actor.Role.Valid() || actor.Role == models.RoleSystem {
		return "", fmt.Errorf("cannot issue a token for role %q", actor.Role)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": actor.UserID,
		"role":    string(actor.Role),
		"exp":     now.Add(time.Duration(expiresInHours) * time.Hour).Unix(),
		"iat":     now.Unix(),
	}
	if actor.DepartmentID != nil {
		claims["department_id"] = *actor.DepartmentID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseActorJWT validates an HS256 token and returns the actor it describes.
func ParseActorJWT(tokenString string, secret []byte) (models.ActorContext, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return models.ActorContext{}, err
	}
	if !token.Valid {
		return models.ActorContext{}, errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.ActorContext{}, errors.New("invalid token claims")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok || userID <= 0 {
		return models.ActorContext{}, errors.New("user_id claim missing")
	}
	roleClaim, _ := claims["role"].(string)
	role := models.Role(roleClaim)
	if !role.Valid() || role == models.RoleSystem {
		return models.ActorContext{}, fmt.Errorf("role claim %q not accepted", roleClaim)
	}
	actor := models.ActorContext{UserID: int64(userID), Role: role}
	if dept, ok := claims["department_id"].(float64); ok {
		id := int64(dept)
		actor.DepartmentID = &id
	}
	return actor, nil
}
