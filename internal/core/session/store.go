// Package session holds the per-client application state. State changes
// only through Dispatch, which runs the pure Reduce function.
package session

import (
	"sync"

	"chatgate/internal/core/domain"
)

// VideoStartFailed is the user-facing text set by VideoFailed.
const VideoStartFailed = "couldn't start video"

type State struct {
	User         *domain.UserIdentity `json:"user"`
	Token        *domain.VideoToken   `json:"token"`
	RoomName     string               `json:"room_name"`
	SearchFilter string               `json:"search_filter"`
	VideoError   string               `json:"video_error,omitempty"`
}

func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	if s.Token != nil {
		t := *s.Token
		s.Token = &t
	}
	return s
}

type ActionType string

const (
	ActionSetUser         ActionType = "SET_USER"
	ActionSignOut         ActionType = "SIGN_OUT"
	ActionSetToken        ActionType = "SET_TOKEN"
	ActionClearToken      ActionType = "CLEAR_TOKEN"
	ActionSetRoomName     ActionType = "SET_ROOMNAME"
	ActionSetSearchFilter ActionType = "SET_INPUT"
	ActionVideoFailed     ActionType = "VIDEO_FAILED"
)

type Action struct {
	Type     ActionType
	User     *domain.UserIdentity
	Token    *domain.VideoToken
	RoomName string
	Filter   string
}

func SetUser(user domain.UserIdentity) Action {
	return Action{Type: ActionSetUser, User: &user}
}

func SignOut() Action {
	return Action{Type: ActionSignOut}
}

func SetToken(token domain.VideoToken) Action {
	return Action{Type: ActionSetToken, Token: &token}
}

func ClearToken() Action {
	return Action{Type: ActionClearToken}
}

func SetRoomName(name string) Action {
	return Action{Type: ActionSetRoomName, RoomName: name}
}

func SetSearchFilter(filter string) Action {
	return Action{Type: ActionSetSearchFilter, Filter: filter}
}

func VideoFailed() Action {
	return Action{Type: ActionVideoFailed}
}

// Reduce returns the state that results from applying a to s. Unknown
// actions leave the state unchanged.
func Reduce(s State, a Action) State {
	s = s.clone()
	switch a.Type {
	case ActionSetUser:
		if a.User != nil {
			u := *a.User
			s.User = &u
		}
	case ActionSignOut:
		s.User = nil
		s.Token = nil
		s.VideoError = ""
	case ActionSetToken:
		if a.Token != nil {
			t := *a.Token
			s.Token = &t
			s.VideoError = ""
		}
	case ActionClearToken:
		s.Token = nil
	case ActionSetRoomName:
		s.RoomName = a.RoomName
	case ActionSetSearchFilter:
		s.SearchFilter = a.Filter
	case ActionVideoFailed:
		s.Token = nil
		s.VideoError = VideoStartFailed
	}
	return s
}

// Store serializes dispatches and notifies subscribers after every change.
// Subscribers run on the dispatching goroutine, in dispatch order.
type Store struct {
	mu          sync.Mutex
	notifyMu    sync.Mutex
	state       State
	subscribers map[int]func(State)
	nextID      int
}

func NewStore() *Store {
	return &Store{subscribers: make(map[int]func(State))}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *Store) Dispatch(a Action) State {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.state = Reduce(s.state, a)
	state := s.state
	subs := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(state.clone())
	}
	return state.clone()
}

// Subscribe registers fn for future state changes. The returned func
// removes it and may be called more than once.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}
