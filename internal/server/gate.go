package server

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mundstockGG/dreamlet/internal/database"
	"github.com/mundstockGG/dreamlet/internal/types"
)

// Access is the actor's state relative to a room. The gate only reports
// state; policy (muted may not send, locked place blocks members) is applied
// by the message pipeline.
type Access struct {
	Role          types.Role
	IsMuted       bool
	IsPlaceLocked bool
}

type DenyReason int

const (
	DenyEnvironmentNotFound DenyReason = iota
	DenyPlaceNotFound
	DenyNotMember
)

type Denial struct {
	Reason DenyReason
}

func (d *Denial) response(id int) *ServerMessage {
	switch d.Reason {
	case DenyEnvironmentNotFound:
		return ErrEnvironmentNotFound(id)
	case DenyPlaceNotFound:
		return ErrPlaceNotFound(id)
	case DenyNotMember:
		return ErrNotMember(id)
	default:
		return ErrInternalError(id)
	}
}

// Gate answers "who is this actor in this room". State is read fresh on
// every call; authorization decisions are never cached across sends.
type Gate struct {
	db database.DreamletRepository
}

func NewGate(db database.DreamletRepository) *Gate {
	return &Gate{db: db}
}

// Authorize resolves the actor's role, mute flag, and the target place's
// lock flag. A non-nil Denial is a clean deny; a non-nil error is a store
// failure.
func (g *Gate) Authorize(actorId, envId int, placeId *int) (Access, *Denial, error) {
	env, err := g.db.GetEnvironmentById(envId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Access{}, &Denial{Reason: DenyEnvironmentNotFound}, nil
		}
		return Access{}, nil, fmt.Errorf("get environment: %w", err)
	}

	var access Access
	if env.OwnerId == actorId {
		// owner role is derived from the environment row, never stored
		access.Role = types.RoleOwner
	} else {
		role, err := g.db.GetMemberRole(actorId, envId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return Access{}, &Denial{Reason: DenyNotMember}, nil
			}
			return Access{}, nil, fmt.Errorf("get member role: %w", err)
		}
		access.Role = types.Role(role)

		muted, err := g.db.IsMuted(actorId, envId)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return Access{}, nil, fmt.Errorf("get mute flag: %w", err)
		}
		access.IsMuted = muted
	}

	if placeId != nil {
		place, err := g.db.GetPlaceById(*placeId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return Access{}, &Denial{Reason: DenyPlaceNotFound}, nil
			}
			return Access{}, nil, fmt.Errorf("get place: %w", err)
		}
		if place.EnvironmentId != envId {
			return Access{}, &Denial{Reason: DenyPlaceNotFound}, nil
		}
		access.IsPlaceLocked = place.IsLocked
	}

	return access, nil, nil
}
