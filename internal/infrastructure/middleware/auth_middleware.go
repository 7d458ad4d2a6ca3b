package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/services"
	apperrors "chatgate/pkg/errors"
	"chatgate/pkg/logger"
	"chatgate/pkg/validation"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey   = "user_id"
	usernameKey = "username"
	roomIDKey   = "room_id"
)

// bearerToken reads "Authorization: Bearer <jwt>", falling back to the
// token query parameter browsers use for WebSocket upgrades.
func bearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

func AuthMiddleware(auth services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			abortWith(c, apperrors.NewUnauthorizedError("authorization header required"))
			return
		}

		claims, err := auth.ValidateToken(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, services.ErrExpiredToken) {
				msg = "token expired"
			}
			abortWith(c, apperrors.NewUnauthorizedError(msg))
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(usernameKey, claims.Username)
		c.Request = c.Request.WithContext(logger.WithValue(c.Request.Context(), logger.UserIDKey, string(claims.UserID)))
		c.Next()
	}
}

// UserID returns the caller set by AuthMiddleware.
func UserID(c *gin.Context) (domain.UserID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(domain.UserID)
	return id, ok && id != ""
}

func Username(c *gin.Context) string {
	return c.GetString(usernameKey)
}

// RoomAccessMiddleware lets the request through only if the caller shares a
// role with the room named by the :id path parameter.
func RoomAccessMiddleware(rooms *services.RoomService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			abortWith(c, apperrors.NewUnauthorizedError("authentication required"))
			return
		}

		roomID := domain.RoomID(c.Param("id"))
		if err := validation.ValidateID(string(roomID), "room id"); err != nil {
			abortWith(c, apperrors.NewInvalidInputError(err.Error()))
			return
		}

		if err := rooms.RequireAccess(c.Request.Context(), userID, roomID); err != nil {
			abortWith(c, err)
			return
		}

		c.Set(roomIDKey, roomID)
		c.Next()
	}
}

// AdminTokenMiddleware guards operator endpoints with a shared secret in
// X-Admin-Token. An empty configured token disables the endpoints.
func AdminTokenMiddleware(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminToken == "" {
			abortWith(c, apperrors.NewForbiddenError("admin endpoints are disabled"))
			return
		}
		got := c.GetHeader("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(adminToken)) != 1 {
			abortWith(c, apperrors.NewUnauthorizedError("invalid admin token"))
			return
		}
		c.Next()
	}
}

func abortWith(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
