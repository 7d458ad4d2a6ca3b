package signal

import (
	"encoding/json"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/services"
	"chatgate/internal/core/session"
)

// Client to server message types.
const (
	TypeSetFilter   = "set_filter"
	TypeOpenRoom    = "open_room"
	TypeCloseRoom   = "close_room"
	TypeSendMessage = "send_message"
	TypeStartVideo  = "start_video"
	TypeExitVideo   = "exit_video"
)

// Server to client message types.
const (
	TypeRooms    = "rooms"
	TypeMessages = "messages"
	TypeSession  = "session"
	TypeError    = "error"
)

// ClientMessage is any frame sent by the browser. Only the fields of the
// given Type are meaningful.
type ClientMessage struct {
	Type    string        `json:"type"`
	Filter  string        `json:"filter,omitempty"`
	RoomID  domain.RoomID `json:"room_id,omitempty"`
	Message string        `json:"message,omitempty"`
}

func decodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}

type RoomsMessage struct {
	Type  string              `json:"type"`
	Rooms []services.RoomView `json:"rooms"`
}

type MessagesMessage struct {
	Type     string           `json:"type"`
	RoomID   domain.RoomID    `json:"room_id"`
	Messages []domain.Message `json:"messages"`
}

type SessionMessage struct {
	Type  string        `json:"type"`
	State session.State `json:"state"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func roomsMessage(views []services.RoomView) RoomsMessage {
	if views == nil {
		views = []services.RoomView{}
	}
	return RoomsMessage{Type: TypeRooms, Rooms: views}
}

func messagesMessage(roomID domain.RoomID, msgs []domain.Message) MessagesMessage {
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return MessagesMessage{Type: TypeMessages, RoomID: roomID, Messages: msgs}
}

func sessionMessage(state session.State) SessionMessage {
	return SessionMessage{Type: TypeSession, State: state}
}

func errorMessage(text string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: text}
}
