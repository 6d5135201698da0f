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

type CreateEnvironmentRequest struct {
	Name       string   `json:"name"`
	IsNSFW     bool     `json:"is_nsfw"`
	Difficulty string   `json:"difficulty"`
	Tags       []string `json:"tags"`
}

type JoinEnvironmentRequest struct {
	InviteCode string `json:"invite_code"`
}

type LockRequest struct {
	IsLocked bool `json:"is_locked"`
}

// environmentRole resolves the caller's role in an environment. The owner
// role is derived from OwnerId, everyone else needs a membership row.
func (s *DreamletApp) environmentRole(userId int, env database.Environment) (types.Role, bool) {
	if env.OwnerId == userId {
		return types.RoleOwner, true
	}

	role, err := s.db.GetMemberRole(userId, env.Id)
	if err != nil {
		return "", false
	}

	return types.Role(role), true
}

func environmentResponse(env database.Environment, includeInvite bool) types.Environment {
	resp := types.Environment{
		Id:         env.Id,
		Name:       env.Name,
		OwnerId:    env.OwnerId,
		IsLocked:   env.IsLocked,
		IsNSFW:     env.IsNSFW,
		Difficulty: env.Difficulty,
		Tags:       env.Tags,
		CreatedAt:  env.CreatedAt,
	}
	if includeInvite {
		resp.InviteCode = env.InviteCode
	}

	return resp
}

// getEnvironmentForUser loads an environment and resolves the caller's role,
// writing the appropriate error response when either step fails.
func (s *DreamletApp) getEnvironmentForUser(w http.ResponseWriter, r *http.Request, userId int) (database.Environment, types.Role, bool) {
	envId, err := pathId(r, "id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Environment{}, "", false
	}

	env, err := s.db.GetEnvironmentById(envId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Environment{}, "", false
	}

	role, ok := s.environmentRole(userId, env)
	if !ok {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Environment{}, "", false
	}

	return env, role, true
}

func (s *DreamletApp) createEnvironment(w http.ResponseWriter, r *http.Request) {
	var req CreateEnvironmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Difficulty == "" {
		req.Difficulty = "chill"
	}
	if req.Difficulty != "chill" && req.Difficulty != "survival" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateEnvironmentParams{
		Name:       req.Name,
		OwnerId:    userId,
		InviteCode: sid,
		IsNSFW:     req.IsNSFW,
		Difficulty: req.Difficulty,
		Tags:       req.Tags,
	}

	newEnv, err := s.db.CreateEnvironment(params)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, environmentResponse(newEnv, true))
}

func (s *DreamletApp) listEnvironments(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbEnvs, err := s.db.ListEnvironmentsByUser(userId)
	if err != nil {
		s.log.Println("list environments:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var envs []types.Environment
	for _, env := range dbEnvs {
		envs = append(envs, environmentResponse(env, env.OwnerId == userId))
	}

	s.writeJson(w, http.StatusOK, envs)
}

func (s *DreamletApp) getEnvironment(w http.ResponseWriter, r *http.Request) {
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

	s.writeJson(w, http.StatusOK, environmentResponse(env, role == types.RoleOwner))
}

func (s *DreamletApp) deleteEnvironment(w http.ResponseWriter, r *http.Request) {
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

	if role != types.RoleOwner {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	places, err := s.db.ListPlaces(env.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteEnvironment(env.Id); err != nil {
		s.log.Println("delete environment:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// drop live rooms so connected clients are notified
	if err := s.cs.UnloadRoom(r.Context(), server.LobbyKey(env.Id), true); err != nil {
		s.log.Println("unload lobby room:", err)
	}
	for _, p := range places {
		if err := s.cs.UnloadRoom(r.Context(), server.PlaceKey(env.Id, p.Id), true); err != nil {
			s.log.Println("unload place room:", err)
		}
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *DreamletApp) lockEnvironment(w http.ResponseWriter, r *http.Request) {
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

	if role != types.RoleOwner {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req LockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.SetEnvironmentLock(env.Id, req.IsLocked); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	env.IsLocked = req.IsLocked
	s.writeJson(w, http.StatusOK, environmentResponse(env, true))
}

func (s *DreamletApp) joinEnvironment(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req JoinEnvironmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InviteCode == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	env, err := s.db.GetEnvironmentByInviteCode(req.InviteCode)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if env.IsLocked {
		errResp := NewForbiddenErrorWithMessage("environment is locked")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	banned, err := s.db.IsBanned(userId, env.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if banned {
		errResp := NewForbiddenErrorWithMessage("you are banned from this environment")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, ok := s.environmentRole(userId, env); ok {
		errResp := NewConflictError("already a member")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.AddMember(userId, env.Id, string(types.RoleMember)); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, environmentResponse(env, false))
}

func (s *DreamletApp) leaveEnvironment(w http.ResponseWriter, r *http.Request) {
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

	if role == types.RoleOwner {
		errResp := NewForbiddenErrorWithMessage("owner cannot leave, delete the environment instead")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.RemoveMember(userId, env.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.EvictUser(r.Context(), env.Id, userId, false); err != nil {
		s.log.Println("evict user:", err)
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *DreamletApp) listMembers(w http.ResponseWriter, r *http.Request) {
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

	dbMembers, err := s.db.ListMembers(env.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	members := make([]types.Member, 0, len(dbMembers)+1)

	// the owner has no membership row, surface them first
	if owner, err := s.db.GetAccountById(env.OwnerId); err == nil {
		members = append(members, types.Member{
			UserId:        owner.Id,
			Username:      owner.Username,
			EnvironmentId: env.Id,
			Role:          types.RoleOwner,
		})
	}

	for _, m := range dbMembers {
		members = append(members, types.Member{
			UserId:        m.UserId,
			Username:      m.Username,
			EnvironmentId: m.EnvironmentId,
			Role:          types.Role(m.Role),
			IsMuted:       m.IsMuted,
		})
	}

	s.writeJson(w, http.StatusOK, members)
}

// moderationTarget validates a moderation request: only the owner may act,
// and the owner can never be a target, including of their own actions.
func (s *DreamletApp) moderationTarget(w http.ResponseWriter, r *http.Request, userId int) (database.Environment, int, bool) {
	env, role, ok := s.getEnvironmentForUser(w, r, userId)
	if !ok {
		return database.Environment{}, 0, false
	}

	if role != types.RoleOwner {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Environment{}, 0, false
	}

	targetId, err := pathId(r, "userId")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Environment{}, 0, false
	}

	if targetId == env.OwnerId {
		errResp := NewForbiddenErrorWithMessage("the owner cannot be targeted")
		s.writeJson(w, errResp.StatusCode, errResp)
		return database.Environment{}, 0, false
	}

	return env, targetId, true
}

func (s *DreamletApp) promoteMember(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	env, targetId, ok := s.moderationTarget(w, r, userId)
	if !ok {
		return
	}

	// promoting a non-member is a silent no-op, matching the UPDATE semantics
	if err := s.db.SetMemberRole(targetId, env.Id, string(types.RoleModerator)); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *DreamletApp) kickMember(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	env, targetId, ok := s.moderationTarget(w, r, userId)
	if !ok {
		return
	}

	if err := s.db.RemoveMember(targetId, env.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.EvictUser(r.Context(), env.Id, targetId, false); err != nil {
		s.log.Println("evict user:", err)
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *DreamletApp) banMember(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	env, targetId, ok := s.moderationTarget(w, r, userId)
	if !ok {
		return
	}

	if err := s.db.CreateBan(env.Id, targetId); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// banning a non-member still records the ban; the DELETE is a no-op then
	if err := s.db.RemoveMember(targetId, env.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.EvictUser(r.Context(), env.Id, targetId, true); err != nil {
		s.log.Println("evict user:", err)
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *DreamletApp) toggleMuteMember(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	env, targetId, ok := s.moderationTarget(w, r, userId)
	if !ok {
		return
	}

	muted, err := s.db.ToggleMemberMute(targetId, env.Id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]any{
		"user_id":  targetId,
		"is_muted": muted,
	})
}
