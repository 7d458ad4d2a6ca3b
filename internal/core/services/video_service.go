package services

import (
	"context"
	"fmt"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/ports"
	"chatgate/internal/core/session"

	"go.uber.org/zap"
)

// VideoService moves a session into and out of a room's video call.
type VideoService struct {
	tokens   ports.TokenRequester
	messages *MessageChannel
	logger   *zap.SugaredLogger
}

func NewVideoService(tokens ports.TokenRequester, messages *MessageChannel, logger *zap.SugaredLogger) *VideoService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &VideoService{tokens: tokens, messages: messages, logger: logger}
}

// Start requests a token for the signed-in user, stores it in the session
// and announces the user in the room. A failed request leaves the session
// with VideoError set.
func (v *VideoService) Start(ctx context.Context, store *session.Store, roomID domain.RoomID) (domain.VideoToken, error) {
	state := store.State()
	if state.User == nil {
		return domain.VideoToken{}, domain.ErrNotSignedIn
	}
	identity := state.User.DisplayName

	token, err := v.tokens.RequestToken(ctx, identity)
	if err != nil {
		v.logger.Warnw("video token request failed",
			"identity", identity,
			"room_id", roomID,
			"error", err,
		)
		store.Dispatch(session.VideoFailed())
		return domain.VideoToken{}, err
	}

	store.Dispatch(session.SetToken(token))

	if roomID != "" && v.messages != nil {
		if err := v.messages.AnnounceVideoEntry(ctx, roomID, identity); err != nil {
			v.logger.Warnw("failed to announce video entry",
				"room_id", roomID,
				"error", err,
			)
		}
	}
	return token, nil
}

// Exit tears down room, if any, and clears the session token.
func (v *VideoService) Exit(store *session.Store, room ports.VideoRoom) {
	if room != nil {
		room.Disconnect()
	}
	store.Dispatch(session.ClearToken())
}

// Issue requests a token outside of any session, for REST callers.
func (v *VideoService) Issue(ctx context.Context, user domain.UserIdentity, roomID domain.RoomID) (domain.VideoToken, error) {
	store := session.NewStore()
	store.Dispatch(session.SetUser(user))
	token, err := v.Start(ctx, store, roomID)
	if err != nil {
		return domain.VideoToken{}, fmt.Errorf("start video: %w", err)
	}
	return token, nil
}
