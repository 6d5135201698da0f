package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Role is a user's standing in an environment. Owner is derived from
// Environment.OwnerId and is never stored as a membership row.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

func (r Role) CanModerate() bool {
	return r == RoleOwner || r == RoleModerator
}

type Environment struct {
	Id         int       `json:"id"`
	Name       string    `json:"name"`
	OwnerId    int       `json:"owner_id"`
	InviteCode string    `json:"invite_code,omitempty"`
	IsLocked   bool      `json:"is_locked"`
	IsNSFW     bool      `json:"is_nsfw"`
	Difficulty string    `json:"difficulty"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

type Place struct {
	Id            int       `json:"id"`
	EnvironmentId int       `json:"environment_id"`
	Name          string    `json:"name"`
	Emoji         string    `json:"emoji"`
	ParentId      *int      `json:"parent_id,omitempty"`
	IsLocked      bool      `json:"is_locked"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

type Member struct {
	UserId        int    `json:"user_id"`
	Username      string `json:"username"`
	EnvironmentId int    `json:"environment_id"`
	Role          Role   `json:"role"`
	IsMuted       bool   `json:"is_muted"`
}

// MessageKind discriminates persisted messages.
type MessageKind string

const (
	KindChat   MessageKind = "chat"
	KindAction MessageKind = "action"
	KindRoll   MessageKind = "roll"
)

// ActionSubtype qualifies a message when Kind is KindAction.
type ActionSubtype string

const (
	ActionMe ActionSubtype = "me"
	ActionDo ActionSubtype = "do"
	ActionRr ActionSubtype = "rr"
)

type Message struct {
	Id            int           `json:"id"`
	EnvironmentId int           `json:"environment_id"`
	PlaceId       *int          `json:"place_id,omitempty"`
	UserId        int           `json:"user_id"`
	Username      string        `json:"username"`
	Content       string        `json:"content"`
	Kind          MessageKind   `json:"kind"`
	ActionSubtype ActionSubtype `json:"action_subtype,omitempty"`
	DiceCount     int           `json:"dice_count,omitempty"`
	DiceSides     int           `json:"dice_sides,omitempty"`
	DiceRolls     []int         `json:"dice_rolls,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}
