package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AuthMiddleware validates the Bearer token, loads the persisted user and
// attaches both "user_id" and "current_user" to the context. Loading the
// user on every request is what enforces block/demotion immediately: the
// token is an identity pointer, never an authorization cache.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			jsonError(c, http.StatusUnauthorized, "Missing Authorization header")
			c.Abort()
			return
		}

		// Expect: "Bearer token"
		if !strings.HasPrefix(authHeader, "Bearer ") {
			jsonError(c, http.StatusUnauthorized, "Invalid token format")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, err := ParseToken(tokenString)
		if err != nil {
			jsonError(c, http.StatusUnauthorized, "Invalid token")
			c.Abort()
			return
		}

		var user User
		if err := DB.First(&user, userID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				jsonError(c, http.StatusUnauthorized, "user no longer exists")
			} else {
				jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
			}
			c.Abort()
			return
		}

		if user.IsBlocked {
			jsonError(c, http.StatusForbidden, "account is blocked")
			c.Abort()
			return
		}

		c.Set("user_id", user.ID)
		c.Set("current_user", user)

		c.Next()
	}
}

// AdminMiddleware gates admin routes on the role stored in the database,
// as loaded by AuthMiddleware for this request.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := getCurrentUser(c)
		if !ok {
			jsonError(c, http.StatusUnauthorized, "unauthorized")
			c.Abort()
			return
		}
		if user.Role != RoleAdmin {
			jsonError(c, http.StatusForbidden, "admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// getUserIDFromContext expects AuthMiddleware to set "user_id" (uint).
func getUserIDFromContext(c *gin.Context) (uint, bool) {
	uid, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	switch v := uid.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

func getCurrentUser(c *gin.Context) (User, bool) {
	v, exists := c.Get("current_user")
	if !exists {
		return User{}, false
	}
	user, ok := v.(User)
	return user, ok
}

func isAdminRequest(c *gin.Context) bool {
	user, ok := getCurrentUser(c)
	return ok && user.Role == RoleAdmin
}
