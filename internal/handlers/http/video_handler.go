package http

import (
	"net/http"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/services"
	"chatgate/internal/infrastructure/middleware"
	apperrors "chatgate/pkg/errors"

	"github.com/gin-gonic/gin"
)

type VideoHandler struct {
	video *services.VideoService
}

func NewVideoHandler(video *services.VideoService) *VideoHandler {
	return &VideoHandler{video: video}
}

// StartVideo requests a video token for the caller and announces them in
// the room. Mounted behind RoomAccessMiddleware.
func (h *VideoHandler) StartVideo(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.Error(apperrors.NewUnauthorizedError("authentication required"))
		return
	}

	user := domain.UserIdentity{ID: userID, DisplayName: middleware.Username(c)}
	token, err := h.video.Issue(c.Request.Context(), user, domain.RoomID(c.Param("id")))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, token)
}
