package domain

import "time"

type UserID string

// UserIdentity is the signed-in user as seen by the session store.
type UserIdentity struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"display_name"`
	Login       string `json:"login,omitempty"`
}

// UserRecord is the credential document kept in the users-roles collection.
type UserRecord struct {
	ID           UserID
	Login        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

func (u UserRecord) Identity() UserIdentity {
	return UserIdentity{ID: u.ID, DisplayName: u.DisplayName, Login: u.Login}
}
