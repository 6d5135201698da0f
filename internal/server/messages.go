package server

import (
	"net/http"
	"time"

	"github.com/mundstockGG/dreamlet/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Join    *Join    `json:"join,omitempty"`
	Leave   *Leave   `json:"leave,omitempty"`
	Publish *Publish `json:"publish,omitempty"`
	Typing  *Typing  `json:"typing,omitempty"`
	UserId  int      `json:"-"`
	client  *Client  `json:"-"`
}

// Join subscribes the connection to an environment's lobby room, or to a
// place room when PlaceId is set.
type Join struct {
	EnvironmentId int  `json:"environment_id"`
	PlaceId       *int `json:"place_id,omitempty"`
}

type Leave struct {
	EnvironmentId int  `json:"environment_id"`
	PlaceId       *int `json:"place_id,omitempty"`
}

type Publish struct {
	EnvironmentId int    `json:"environment_id"`
	PlaceId       *int   `json:"place_id,omitempty"`
	Content       string `json:"content"`
}

type Typing struct {
	EnvironmentId int  `json:"environment_id"`
	PlaceId       *int `json:"place_id,omitempty"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	// UserId targets server-level delivery to every connection of one user.
	UserId     int     `json:"-"`
	SkipClient *Client `json:"-"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type Notification struct {
	Typing        *TypingNotification `json:"typing,omitempty"`
	RollPrompt    *RollPrompt         `json:"roll_prompt,omitempty"`
	MemberRemoved *MemberRemoved      `json:"member_removed,omitempty"`
	RoomDeleted   *RoomDeleted        `json:"room_deleted,omitempty"`
}

// TypingNotification is ephemeral; receivers clear it locally after a quiet
// interval, the server never sends a stopped-typing event.
type TypingNotification struct {
	UserId        int    `json:"user_id"`
	Username      string `json:"username"`
	EnvironmentId int    `json:"environment_id"`
	PlaceId       *int   `json:"place_id,omitempty"`
}

// RollPrompt tells the sending client to open its dice entry UI. No message
// is persisted or broadcast.
type RollPrompt struct{}

type MemberRemoved struct {
	EnvironmentId int  `json:"environment_id"`
	Banned        bool `json:"banned"`
}

type RoomDeleted struct {
	RoomKey string `json:"room_key"`
}

func NoErrOK(id int, data map[string]any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func errResponse(id, code int, msg string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        msg,
		},
	}
}

func ErrEnvironmentNotFound(id int) *ServerMessage {
	return errResponse(id, http.StatusNotFound, "environment not found")
}

func ErrPlaceNotFound(id int) *ServerMessage {
	return errResponse(id, http.StatusNotFound, "place not found")
}

func ErrNotMember(id int) *ServerMessage {
	return errResponse(id, http.StatusForbidden, "not a member of this environment")
}

func ErrMuted(id int) *ServerMessage {
	return errResponse(id, http.StatusForbidden, "you are muted")
}

func ErrPlaceLocked(id int) *ServerMessage {
	return errResponse(id, http.StatusForbidden, "place is locked")
}

func ErrMalformedCommand(id int, msg string) *ServerMessage {
	return errResponse(id, http.StatusBadRequest, msg)
}

func ErrRoomNotFound(id int) *ServerMessage {
	return errResponse(id, http.StatusNotFound, "room not found")
}

func ErrInternalError(id int) *ServerMessage {
	return errResponse(id, http.StatusInternalServerError, "internal server error")
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return errResponse(id, http.StatusServiceUnavailable, "service unavailable")
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := errResponse(0, http.StatusBadRequest, "invalid message format")
	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
