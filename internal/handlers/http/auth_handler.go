package http

import (
	"errors"
	"net/http"
	"strings"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/services"
	apperrors "chatgate/pkg/errors"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/auth")
	{
		api.POST("/register", h.Register)
		api.POST("/login", h.Login)
		api.POST("/refresh", h.RefreshToken)
	}
}

type RegisterRequest struct {
	Login       string `json:"login" binding:"required,max=50"`
	DisplayName string `json:"display_name" binding:"required,max=100"`
	Password    string `json:"password" binding:"required,max=128"`
}

type LoginRequest struct {
	Login    string `json:"login" binding:"required,max=50"`
	Password string `json:"password" binding:"required,max=128"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required,max=2048"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req.Login, req.DisplayName, req.Password)
	if err != nil {
		c.Error(err)
		return
	}

	pair, err := h.authService.IssueTokens(user.Identity())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, pair)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	user, err := h.authService.Login(c.Request.Context(), strings.TrimSpace(req.Login), req.Password)
	if err != nil {
		c.Error(err)
		return
	}

	pair, err := h.authService.IssueTokens(user.Identity())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	claims, err := h.authService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		c.Error(apperrors.NewUnauthorizedError("invalid refresh token"))
		return
	}

	// the display name may have changed since the refresh token was issued
	user, err := h.authService.Identity(c.Request.Context(), claims.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		c.Error(apperrors.NewUnauthorizedError("invalid refresh token"))
		return
	}
	if err != nil {
		c.Error(err)
		return
	}

	pair, err := h.authService.IssueTokens(user)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, pair)
}
