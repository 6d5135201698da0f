package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mundstockGG/dreamlet/internal/database"
	"github.com/mundstockGG/dreamlet/internal/server"
	"github.com/mundstockGG/dreamlet/internal/types"
)

type CreatePlaceRequest struct {
	Name     string `json:"name"`
	Emoji    string `json:"emoji"`
	ParentId *int   `json:"parent_id"`
}

type UpdatePlaceRequest struct {
	Name     string `json:"name"`
	Emoji    string `json:"emoji"`
	ParentId *int   `json:"parent_id"`
}

// isLobby reports whether a place is the environment's built-in Lobby.
// The Lobby cannot be deleted, locked or re-parented.
func isLobby(p database.Place) bool {
	return p.ParentId == nil && p.Name == "Lobby"
}

func placeResponse(p database.Place) types.Place {
	return types.Place{
		Id:            p.Id,
		EnvironmentId: p.EnvironmentId,
		Name:          p.Name,
		Emoji:         p.Emoji,
		ParentId:      p.ParentId,
		IsLocked:      p.IsLocked,
		CreatedAt:     p.CreatedAt,
	}
}

// getPlaceForModerator loads a place by path id and checks the caller holds
// a moderating role in its environment.
func (s *DreamletApp) getPlaceForModerator(w http.ResponseWriter, r *http.Request, userId int) (database.Place, bool) {
	placeId, err := pathId(r, "id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Place{}, false
	}

	place, err := s.db.GetPlaceById(placeId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Place{}, false
	}

	env, err := s.db.GetEnvironmentById(place.EnvironmentId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Place{}, false
	}

	role, ok := s.environmentRole(userId, env)
	if !ok || !role.CanModerate() {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Place{}, false
	}

	return place, true
}

func (s *DreamletApp) createPlace(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	env, role, ok := s.getEnvironmentForUser(w, r, userId)
	if !ok {
		return
	}

	if !role.CanModerate() {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreatePlaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.ParentId != nil {
		parent, err := s.db.GetPlaceById(*req.ParentId)
		if err != nil || parent.EnvironmentId != env.Id {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	place, err := s.db.CreatePlace(database.CreatePlaceParams{
		EnvironmentId: env.Id,
		Name:          req.Name,
		Emoji:         req.Emoji,
		ParentId:      req.ParentId,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, placeResponse(place))
}

func (s *DreamletApp) listPlaces(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	env, _, ok := s.getEnvironmentForUser(w, r, userId)
	if !ok {
		return
	}

	dbPlaces, err := s.db.ListPlaces(env.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var places []types.Place
	for _, p := range dbPlaces {
		places = append(places, placeResponse(p))
	}

	s.writeJson(w, http.StatusOK, places)
}

func (s *DreamletApp) updatePlace(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	place, ok := s.getPlaceForModerator(w, r, userId)
	if !ok {
		return
	}

	var req UpdatePlaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if isLobby(place) && req.ParentId != nil {
		errResp := NewForbiddenErrorWithMessage("the Lobby cannot be re-parented")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.ParentId != nil {
		if *req.ParentId == place.Id {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		parent, err := s.db.GetPlaceById(*req.ParentId)
		if err != nil || parent.EnvironmentId != place.EnvironmentId {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	err := s.db.UpdatePlace(database.UpdatePlaceParams{
		PlaceId:  place.Id,
		Name:     req.Name,
		Emoji:    req.Emoji,
		ParentId: req.ParentId,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	place.Name = req.Name
	place.Emoji = req.Emoji
	place.ParentId = req.ParentId
	s.writeJson(w, http.StatusOK, placeResponse(place))
}

func (s *DreamletApp) lockPlace(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	place, ok := s.getPlaceForModerator(w, r, userId)
	if !ok {
		return
	}

	if isLobby(place) {
		errResp := NewForbiddenErrorWithMessage("the Lobby cannot be locked")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req LockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.SetPlaceLock(place.Id, req.IsLocked); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	place.IsLocked = req.IsLocked
	s.writeJson(w, http.StatusOK, placeResponse(place))
}

func (s *DreamletApp) deletePlace(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	place, ok := s.getPlaceForModerator(w, r, userId)
	if !ok {
		return
	}

	if isLobby(place) {
		errResp := NewForbiddenErrorWithMessage("the Lobby cannot be deleted")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeletePlace(place.Id); err != nil {
		s.log.Println("delete place:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.UnloadRoom(r.Context(), server.PlaceKey(place.EnvironmentId, place.Id), true); err != nil {
		s.log.Println("unload place room:", err)
	}

	s.writeJson(w, http.StatusNoContent, nil)
}
