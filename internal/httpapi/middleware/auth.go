package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/suPer8Hu/jewelry-assistant/internal/common"
)

const AdminKey = "admin"

const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super-admin"
)

type AdminClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// SignAdminToken issues an HS256 token for the curation endpoints.
func SignAdminToken(email, role, secret string, ttl time.Duration) (string, error) {
	if role != RoleAdmin && role != RoleSuperAdmin {
		return "", errors.New("unknown admin role")
	}
	now := time.Now()
	claims := AdminClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseAdminToken(token, secret string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Role != RoleAdmin && claims.Role != RoleSuperAdmin {
		return nil, errors.New("not an admin token")
	}
	return claims, nil
}

// AdminRequired rejects requests without a valid admin bearer token.
func AdminRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(h, "Bearer ")
		if !found || token == "" {
			common.Fail(c, http.StatusUnauthorized, 40101, "missing bearer token")
			c.Abort()
			return
		}
		claims, err := ParseAdminToken(token, secret)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid token")
			c.Abort()
			return
		}
		c.Set(AdminKey, claims)
		c.Next()
	}
}
