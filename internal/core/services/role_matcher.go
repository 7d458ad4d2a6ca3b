package services

import (
	"strings"

	"chatgate/internal/core/domain"
)

// HasSharedRole reports whether user and room have at least one role in
// common. An empty set on either side never matches.
func HasSharedRole(user, room domain.RoleSet) bool {
	small, large := user, room
	if len(small) > len(large) {
		small, large = large, small
	}
	for role := range small {
		if large.Contains(role) {
			return true
		}
	}
	return false
}

// FindPart reports whether name passes the room search filter: an empty
// filter matches everything, otherwise a case-insensitive substring match.
func FindPart(filter, name string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(filter))
}

func FilterRooms(rooms []domain.Room, filter string) []domain.Room {
	out := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		if FindPart(filter, r.Name) {
			out = append(out, r)
		}
	}
	return out
}
