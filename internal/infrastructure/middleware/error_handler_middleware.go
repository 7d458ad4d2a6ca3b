package middleware

import (
	"context"
	"errors"
	"net/http"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/services"
	apperrors "chatgate/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ToAppError maps domain and service errors onto their client-facing form.
// Unknown errors become INTERNAL_ERROR without leaking their text.
func ToAppError(err error) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return apperrors.NewNotFoundError("room")
	case errors.Is(err, domain.ErrUserNotFound):
		return apperrors.NewNotFoundError("user")
	case errors.Is(err, domain.ErrDocumentNotFound):
		return apperrors.NewNotFoundError("document")
	case errors.Is(err, domain.ErrAccessDenied):
		return apperrors.NewForbiddenError("you do not share a role with this room")
	case errors.Is(err, domain.ErrRoleNotHeld):
		return apperrors.WrapError(err, apperrors.ErrCodeForbidden, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrInvalidCredentials):
		return apperrors.NewUnauthorizedError("invalid login or password")
	case errors.Is(err, domain.ErrNotSignedIn),
		errors.Is(err, services.ErrInvalidToken),
		errors.Is(err, services.ErrExpiredToken):
		return apperrors.WrapError(err, apperrors.ErrCodeUnauthorized, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, domain.ErrLoginTaken):
		return apperrors.NewConflictError("login already registered")
	case errors.Is(err, domain.ErrRoomNameRequired),
		errors.Is(err, domain.ErrRolesRequired),
		errors.Is(err, domain.ErrMessageEmpty),
		errors.Is(err, domain.ErrInvalidArgument):
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrTokenRequest):
		return apperrors.NewBadGatewayError("couldn't start video", err)
	case errors.Is(err, domain.ErrSubscriptionClosed),
		errors.Is(err, context.DeadlineExceeded):
		return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "service temporarily unavailable", http.StatusServiceUnavailable)
	}
	return apperrors.WrapError(err, apperrors.ErrCodeInternal, "internal server error", http.StatusInternalServerError)
}

// ErrorHandlerMiddleware renders the last error attached with c.Error.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr := ToAppError(err)

		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Errorw("request failed",
				"code", appErr.Code,
				"status", appErr.HTTPStatus,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"error", err,
			)
		} else {
			logger.Debugw("request rejected",
				"code", appErr.Code,
				"status", appErr.HTTPStatus,
				"path", c.Request.URL.Path,
				"error", err,
			)
		}

		c.JSON(appErr.HTTPStatus, appErr.Response())
	}
}

func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Errorw("panic recovered",
					"panic", rec,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					apperrors.NewInternalError("internal server error").Response())
			}
		}()

		c.Next()
	}
}
