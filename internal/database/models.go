package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Environment struct {
	Id         int
	Name       string
	OwnerId    int
	InviteCode string
	IsLocked   bool
	IsNSFW     bool
	Difficulty string
	Tags       []string
	CreatedAt  time.Time
}

type Place struct {
	Id            int
	EnvironmentId int
	Name          string
	Emoji         string
	ParentId      *int
	IsLocked      bool
	CreatedAt     time.Time
}

type Member struct {
	UserId        int
	EnvironmentId int
	Username      string
	Role          string
	IsMuted       bool
	CreatedAt     time.Time
}

type Message struct {
	Id            int
	EnvironmentId int
	PlaceId       *int
	UserId        int
	Username      string
	Content       string
	Kind          string
	ActionSubtype string
	DiceCount     int
	DiceSides     int
	DiceRolls     []int
	CreatedAt     time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type UpdateAccountParams struct {
	UserId       int
	Username     string
	PasswordHash string
}

type CreateEnvironmentParams struct {
	Name       string
	OwnerId    int
	InviteCode string
	IsNSFW     bool
	Difficulty string
	Tags       []string
}

type CreatePlaceParams struct {
	EnvironmentId int
	Name          string
	Emoji         string
	ParentId      *int
}

type UpdatePlaceParams struct {
	PlaceId  int
	Name     string
	Emoji    string
	ParentId *int
}

type CreateMessageParams struct {
	EnvironmentId int
	PlaceId       *int
	UserId        int
	Content       string
	Kind          string
	ActionSubtype string
	DiceCount     int
	DiceSides     int
	DiceRolls     []int
}
