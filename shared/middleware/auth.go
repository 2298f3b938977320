package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const AdminRole = "admin"

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuthMiddleware admits requests carrying an HS256 bearer token signed
// with secret whose role claim is "admin". An empty secret rejects every
// request.
func AdminAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(secret) == 0 {
			RespondWithError(c, http.StatusUnauthorized, http.StatusUnauthorized, "Admin access is not configured")
			c.Abort()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			RespondWithError(c, http.StatusUnauthorized, http.StatusUnauthorized, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			RespondWithError(c, http.StatusUnauthorized, http.StatusUnauthorized, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims := &AdminClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		if err != nil || !token.Valid {
			RespondWithError(c, http.StatusUnauthorized, http.StatusUnauthorized, "Invalid or expired token")
			c.Abort()
			return
		}
		if claims.Role != AdminRole {
			RespondWithError(c, http.StatusForbidden, http.StatusForbidden, "Admin role required")
			c.Abort()
			return
		}

		c.Set("adminSubject", claims.Subject)
		c.Next()
	}
}

// IssueAdminToken signs an admin token for subject valid for ttl.
func IssueAdminToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("admin secret is empty")
	}
	now := time.Now()
	claims := AdminClaims{
		Role: AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func GetAdminSubject(c *gin.Context) (string, bool) {
	subject, exists := c.Get("adminSubject")
	if !exists {
		return "", false
	}
	return subject.(string), true
}
