package services

import (
	"context"
	"errors"
	"testing"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTokenRequester struct {
	mock.Mock
}

func (m *MockTokenRequester) RequestToken(ctx context.Context, identity string) (domain.VideoToken, error) {
	args := m.Called(ctx, identity)
	return args.Get(0).(domain.VideoToken), args.Error(1)
}

type MockVideoRoom struct {
	mock.Mock
}

func (m *MockVideoRoom) Disconnect() {
	m.Called()
}

func signedIn() *session.Store {
	s := session.NewStore()
	s.Dispatch(session.SetUser(domain.UserIdentity{ID: "u1", DisplayName: "Alice"}))
	return s
}

func TestVideoService_StartStoresTokenAndAnnounces(t *testing.T) {
	store := newFakeStore()
	tokens := new(MockTokenRequester)
	tokens.On("RequestToken", mock.Anything, "Alice").
		Return(domain.VideoToken{Identity: "Alice", Value: "abc"}, nil)

	channel := NewMessageChannel(store, nil, nil, 0, 0)
	svc := NewVideoService(tokens, channel, nil)
	sess := signedIn()

	token, err := svc.Start(context.Background(), sess, "R1")
	require.NoError(t, err)
	assert.Equal(t, "abc", token.Value)

	state := sess.State()
	require.NotNil(t, state.Token)
	assert.Equal(t, "abc", state.Token.Value)

	msgs, err := channel.History(context.Background(), "R1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].System)

	tokens.AssertExpectations(t)
}

func TestVideoService_StartFailureSetsVideoError(t *testing.T) {
	tokens := new(MockTokenRequester)
	tokens.On("RequestToken", mock.Anything, "Alice").
		Return(domain.VideoToken{}, domain.ErrTokenRequest)

	svc := NewVideoService(tokens, NewMessageChannel(newFakeStore(), nil, nil, 0, 0), nil)
	sess := signedIn()

	_, err := svc.Start(context.Background(), sess, "R1")
	assert.ErrorIs(t, err, domain.ErrTokenRequest)

	state := sess.State()
	assert.Nil(t, state.Token)
	assert.Equal(t, session.VideoStartFailed, state.VideoError)
}

func TestVideoService_StartRequiresUser(t *testing.T) {
	tokens := new(MockTokenRequester)
	svc := NewVideoService(tokens, nil, nil)

	_, err := svc.Start(context.Background(), session.NewStore(), "R1")
	assert.ErrorIs(t, err, domain.ErrNotSignedIn)
	tokens.AssertNotCalled(t, "RequestToken", mock.Anything, mock.Anything)
}

func TestVideoService_AnnounceFailureDoesNotFailStart(t *testing.T) {
	store := newFakeStore()
	store.addErr = errors.New("unavailable")
	tokens := new(MockTokenRequester)
	tokens.On("RequestToken", mock.Anything, "Alice").
		Return(domain.VideoToken{Value: "abc"}, nil)

	svc := NewVideoService(tokens, NewMessageChannel(store, nil, nil, 0, 0), nil)
	sess := signedIn()

	_, err := svc.Start(context.Background(), sess, "R1")
	require.NoError(t, err)
	assert.Equal(t, "abc", sess.State().Token.Value)
}

func TestVideoService_Exit(t *testing.T) {
	svc := NewVideoService(new(MockTokenRequester), nil, nil)
	sess := signedIn()
	sess.Dispatch(session.SetToken(domain.VideoToken{Value: "abc"}))

	room := new(MockVideoRoom)
	room.On("Disconnect").Once()

	svc.Exit(sess, room)
	assert.Nil(t, sess.State().Token)
	room.AssertExpectations(t)

	svc.Exit(sess, nil)
	assert.Nil(t, sess.State().Token)
}

func TestVideoService_Issue(t *testing.T) {
	tokens := new(MockTokenRequester)
	tokens.On("RequestToken", mock.Anything, "Bob").
		Return(domain.VideoToken{Identity: "Bob", Value: "xyz"}, nil)

	svc := NewVideoService(tokens, NewMessageChannel(newFakeStore(), nil, nil, 0, 0), nil)

	token, err := svc.Issue(context.Background(), domain.UserIdentity{ID: "u2", DisplayName: "Bob"}, "")
	require.NoError(t, err)
	assert.Equal(t, "xyz", token.Value)
}
