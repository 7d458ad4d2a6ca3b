package services

import (
	"testing"

	"chatgate/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestHasSharedRole(t *testing.T) {
	tests := []struct {
		name string
		user domain.RoleSet
		room domain.RoleSet
		want bool
	}{
		{"shared role", domain.NewRoleSet("devops", "qa"), domain.NewRoleSet("qa"), true},
		{"disjoint", domain.NewRoleSet("devops"), domain.NewRoleSet("main role"), false},
		{"empty user", domain.NewRoleSet(), domain.NewRoleSet("main role"), false},
		{"empty room", domain.NewRoleSet("main role"), domain.NewRoleSet(), false},
		{"both empty", domain.NewRoleSet(), domain.NewRoleSet(), false},
		{"nil sets", nil, nil, false},
		{"case sensitive", domain.NewRoleSet("DevOps"), domain.NewRoleSet("devops"), false},
		{"larger user set", domain.NewRoleSet("a", "b", "c", "d"), domain.NewRoleSet("d"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasSharedRole(tt.user, tt.room))
			assert.Equal(t, tt.want, HasSharedRole(tt.room, tt.user), "matching is symmetric")
		})
	}
}

func TestFindPart(t *testing.T) {
	assert.True(t, FindPart("", "Anything"))
	assert.True(t, FindPart("abc", "xABCy"))
	assert.False(t, FindPart("zzz", "abc"))
}

func TestFilterRooms(t *testing.T) {
	rooms := []domain.Room{{ID: "1", Name: "General"}, {ID: "2", Name: "DevOps"}, {ID: "3", Name: "general-2"}}

	got := FilterRooms(rooms, "gen")
	assert.Len(t, got, 2)
	assert.Equal(t, domain.RoomID("1"), got[0].ID)
	assert.Equal(t, domain.RoomID("3"), got[1].ID)

	assert.Len(t, FilterRooms(rooms, ""), 3)
}
