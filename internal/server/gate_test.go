package server

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/mundstockGG/dreamlet/internal/database"
	"github.com/mundstockGG/dreamlet/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestGateAuthorize(t *testing.T) {
	placeId := 5

	testCases := []struct {
		name       string
		actorId    int
		placeId    *int
		setupMocks func(db *database.MockDreamletRepository)
		wantAccess Access
		wantDeny   *DenyReason
		wantErr    bool
	}{
		{
			name:    "owner role is derived from the environment",
			actorId: 1,
			setupMocks: func(db *database.MockDreamletRepository) {
				db.On("GetEnvironmentById", 10).Return(database.Environment{Id: 10, OwnerId: 1}, nil).Once()
			},
			wantAccess: Access{Role: types.RoleOwner},
		},
		{
			name:    "stored member role is honored",
			actorId: 2,
			setupMocks: func(db *database.MockDreamletRepository) {
				db.On("GetEnvironmentById", 10).Return(database.Environment{Id: 10, OwnerId: 1}, nil).Once()
				db.On("GetMemberRole", 2, 10).Return("moderator", nil).Once()
				db.On("IsMuted", 2, 10).Return(false, nil).Once()
			},
			wantAccess: Access{Role: types.RoleModerator},
		},
		{
			name:    "muted member",
			actorId: 2,
			setupMocks: func(db *database.MockDreamletRepository) {
				db.On("GetEnvironmentById", 10).Return(database.Environment{Id: 10, OwnerId: 1}, nil).Once()
				db.On("GetMemberRole", 2, 10).Return("member", nil).Once()
				db.On("IsMuted", 2, 10).Return(true, nil).Once()
			},
			wantAccess: Access{Role: types.RoleMember, IsMuted: true},
		},
		{
			name:    "environment not found",
			actorId: 1,
			setupMocks: func(db *database.MockDreamletRepository) {
				db.On("GetEnvironmentById", 10).Return(database.Environment{}, sql.ErrNoRows).Once()
			},
			wantDeny: denyReason(DenyEnvironmentNotFound),
		},
		{
			name:    "non-member is denied",
			actorId: 3,
			setupMocks: func(db *database.MockDreamletRepository) {
				db.On("GetEnvironmentById", 10).Return(database.Environment{Id: 10, OwnerId: 1}, nil).Once()
				db.On("GetMemberRole", 3, 10).Return("", sql.ErrNoRows).Once()
			},
			wantDeny: denyReason(DenyNotMember),
		},
		{
			name:    "place not found",
			actorId: 1,
			placeId: &placeId,
			setupMocks: func(db *database.MockDreamletRepository) {
				db.On("GetEnvironmentById", 10).Return(database.Environment{Id: 10, OwnerId: 1}, nil).Once()
				db.On("GetPlaceById", placeId).Return(database.Place{}, sql.ErrNoRows).Once()
			},
			wantDeny: denyReason(DenyPlaceNotFound),
		},
		{
			name:    "place in another environment is denied",
			actorId: 1,
			placeId: &placeId,
			setupMocks: func(db *database.MockDreamletRepository) {
				db.On("GetEnvironmentById", 10).Return(database.Environment{Id: 10, OwnerId: 1}, nil).Once()
				db.On("GetPlaceById", placeId).Return(database.Place{Id: placeId, EnvironmentId: 11}, nil).Once()
			},
			wantDeny: denyReason(DenyPlaceNotFound),
		},
		{
			name:    "locked place is reported on access",
			actorId: 1,
			placeId: &placeId,
			setupMocks: func(db *database.MockDreamletRepository) {
				db.On("GetEnvironmentById", 10).Return(database.Environment{Id: 10, OwnerId: 1}, nil).Once()
				db.On("GetPlaceById", placeId).Return(database.Place{Id: placeId, EnvironmentId: 10, IsLocked: true}, nil).Once()
			},
			wantAccess: Access{Role: types.RoleOwner, IsPlaceLocked: true},
		},
		{
			name:    "store failure surfaces as error",
			actorId: 1,
			setupMocks: func(db *database.MockDreamletRepository) {
				db.On("GetEnvironmentById", 10).Return(database.Environment{}, errors.New("db down")).Once()
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockDreamletRepository{}
			defer db.AssertExpectations(t)
			tc.setupMocks(db)

			gate := NewGate(db)
			access, denial, err := gate.Authorize(tc.actorId, 10, tc.placeId)

			if tc.wantErr {
				assert.Error(t, err, "expected an error")
				return
			}

			assert.NoError(t, err, "expected no error")
			if tc.wantDeny != nil {
				assert.NotNil(t, denial, "expected a denial")
				assert.Equal(t, *tc.wantDeny, denial.Reason, "expected denial reason to match")
				return
			}

			assert.Nil(t, denial, "expected no denial")
			assert.Equal(t, tc.wantAccess, access, "expected access to match")
		})
	}
}

func denyReason(r DenyReason) *DenyReason {
	return &r
}

func TestDenialResponse(t *testing.T) {
	testCases := []struct {
		reason   DenyReason
		wantCode int
		wantErr  string
	}{
		{DenyEnvironmentNotFound, 404, "environment not found"},
		{DenyPlaceNotFound, 404, "place not found"},
		{DenyNotMember, 403, "not a member of this environment"},
	}

	for _, tc := range testCases {
		d := &Denial{Reason: tc.reason}
		resp := d.response(1)
		assert.Equal(t, tc.wantCode, resp.Response.ResponseCode, "expected response code to match")
		assert.Equal(t, tc.wantErr, resp.Response.Error, "expected error message to match")
		assert.Equal(t, 1, resp.Id, "expected message id to be echoed")
	}
}
