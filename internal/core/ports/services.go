package ports

import (
	"context"
	"time"

	"chatgate/internal/core/domain"
)

// TokenRequester exchanges a display name for a video-session credential.
type TokenRequester interface {
	RequestToken(ctx context.Context, identity string) (domain.VideoToken, error)
}

// VideoRoom is an active video session held by a client.
type VideoRoom interface {
	Disconnect()
}

// Metrics receives service-level observations. Implementations must be safe
// for concurrent use.
type Metrics interface {
	SubscriptionOpened(kind string)
	SubscriptionClosed(kind string)
	SubscriptionFailed(kind string)
	AccessEvaluated(granted bool)
	MessageAppended()
	MessageAppendFailed()
	TokenRequested(success bool, duration time.Duration)
	RoomCreated()
}

// Locker serialises work on a key. The returned release must be called
// exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
