package domain

import "sort"

// RoleName is a free-form tag used to gate room visibility. Comparison is
// exact and case-sensitive.
type RoleName string

// DefaultRole is granted to users that have no role records of their own.
const DefaultRole RoleName = "main role"

// RoleSet is an unordered set of role names.
type RoleSet map[RoleName]struct{}

func NewRoleSet(roles ...RoleName) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

func (s RoleSet) Add(role RoleName) {
	s[role] = struct{}{}
}

func (s RoleSet) Contains(role RoleName) bool {
	_, ok := s[role]
	return ok
}

func (s RoleSet) Len() int {
	return len(s)
}

// Clone returns an independent copy. A nil set clones to an empty set.
func (s RoleSet) Clone() RoleSet {
	out := make(RoleSet, len(s))
	for r := range s {
		out[r] = struct{}{}
	}
	return out
}

// Sorted returns the roles in ascending order.
func (s RoleSet) Sorted() []RoleName {
	out := make([]RoleName, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EffectiveUserRoles applies the default-role fallback: a user without any
// role assignment is treated as holding DefaultRole.
func EffectiveUserRoles(assigned RoleSet) RoleSet {
	if assigned.Len() == 0 {
		return NewRoleSet(DefaultRole)
	}
	return assigned.Clone()
}
