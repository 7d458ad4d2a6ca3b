package domain

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrRoomNameRequired   = errors.New("room name is required")
	ErrRolesRequired      = errors.New("at least one role is required")
	ErrRoleNotHeld        = errors.New("role is not held by the creator")
	ErrMessageEmpty       = errors.New("message body is empty")
	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrLoginTaken         = errors.New("login already registered")
	ErrNotSignedIn        = errors.New("no signed-in user")
	ErrTokenRequest       = errors.New("video token request failed")
	ErrSubscriptionClosed = errors.New("subscription closed")
	ErrInvalidArgument    = errors.New("invalid argument")
)
