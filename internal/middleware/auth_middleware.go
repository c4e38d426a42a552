package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const authTokenCookieName = "auth_token"

const (
	contextUserID = "user_id"
	contextEmail  = "email"
	contextRole   = "role"
)

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   gin.H{"code": code, "message": message},
	})
}

// AuthMiddleware verifies an HS256 bearer token (or the auth_token cookie)
// and stores the caller's id, email and role in the gin context.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "authorization credentials required")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(jwtSecret), nil
		}, jwt.WithExpirationRequired())

		if err != nil || !token.Valid {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token claims")
			return
		}

		userID := claimString(claims, "user_id")
		if userID == "" {
			userID, _ = claims.GetSubject()
		}
		email := claimString(claims, "email")
		role := claimString(claims, "role")

		c.Set(contextUserID, userID)
		c.Set(contextEmail, email)
		c.Set(contextRole, role)

		ctx := logger.ContextWithFields(c.Request.Context(), map[string]interface{}{"user_id": userID})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookieToken, err := c.Cookie(authTokenCookieName); err == nil {
		return strings.TrimSpace(cookieToken)
	}
	return ""
}

// claimString reads a string or numeric claim.
func claimString(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(contextRole) != "admin" {
			abortWithError(c, http.StatusForbidden, "FORBIDDEN", "admin access required")
			return
		}
		c.Next()
	}
}

// Actor returns who is making the request, for audit events.
func Actor(c *gin.Context) models.Actor {
	return models.Actor{
		UserID: c.GetString(contextUserID),
		Email:  c.GetString(contextEmail),
		IP:     c.ClientIP(),
	}
}
