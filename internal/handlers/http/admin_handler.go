package http

import (
	"net/http"
	"strings"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/services"
	apperrors "chatgate/pkg/errors"
	"chatgate/pkg/validation"

	"github.com/gin-gonic/gin"
)

// AdminHandler routes are mounted behind AdminTokenMiddleware.
type AdminHandler struct {
	authService services.AuthService
}

func NewAdminHandler(authService services.AuthService) *AdminHandler {
	return &AdminHandler{authService: authService}
}

type AssignRoleRequest struct {
	Role domain.RoleName `json:"role"`
}

func (h *AdminHandler) AssignRole(c *gin.Context) {
	var req AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	userID := domain.UserID(c.Param("id"))
	if err := validation.ValidateID(string(userID), "user id"); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	role := domain.RoleName(strings.TrimSpace(string(req.Role)))
	if err := h.authService.AssignRole(c.Request.Context(), userID, role); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "role": role})
}
