package http

import (
	"net/http"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/services"
	"chatgate/internal/infrastructure/middleware"
	apperrors "chatgate/pkg/errors"

	"github.com/gin-gonic/gin"
)

type RoomHandler struct {
	rooms *services.RoomService
}

func NewRoomHandler(rooms *services.RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

type CreateRoomRequest struct {
	Name  string            `json:"name"`
	Roles []domain.RoleName `json:"roles"`
}

type roomResponse struct {
	Room  *domain.Room      `json:"room"`
	Roles []domain.RoleName `json:"roles"`
}

// ListRooms returns the rooms the caller may enter, narrowed by ?filter=.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.Error(apperrors.NewUnauthorizedError("authentication required"))
		return
	}

	views, err := h.rooms.ListVisible(c.Request.Context(), userID, c.Query("filter"))
	if err != nil {
		c.Error(err)
		return
	}
	if views == nil {
		views = []services.RoomView{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": views})
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.Error(apperrors.NewUnauthorizedError("authentication required"))
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	room, err := h.rooms.CreateRoom(c.Request.Context(), userID, req.Name, req.Roles)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, roomResponse{Room: room, Roles: room.RoleList()})
}

// GetRoom is mounted behind RoomAccessMiddleware.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.rooms.GetRoom(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, roomResponse{Room: room, Roles: room.RoleList()})
}
