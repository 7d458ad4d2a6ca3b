package domain

import "time"

// VideoToken is the short-lived credential returned by the token endpoint.
// ExpiresAt is zero when the token is not JWT-shaped.
type VideoToken struct {
	Identity  string    `json:"identity"`
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}
