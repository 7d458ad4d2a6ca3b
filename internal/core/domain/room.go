package domain

import "time"

type RoomID string

type Room struct {
	ID        RoomID    `json:"id"`
	Name      string    `json:"name"`
	Roles     RoleSet   `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// RoleList exposes the room roles in a stable order for serialization.
func (r Room) RoleList() []RoleName {
	return r.Roles.Sorted()
}
