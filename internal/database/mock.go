package database

import (
	"github.com/stretchr/testify/mock"
)

type MockDreamletRepository struct {
	mock.Mock
}

func (m *MockDreamletRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockDreamletRepository) CreateAccount(accountParams CreateAccountParams) (User, error) {
	args := m.Called(accountParams)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockDreamletRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockDreamletRepository) GetAccountById(userId int) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockDreamletRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockDreamletRepository) CreateEnvironment(params CreateEnvironmentParams) (Environment, error) {
	args := m.Called(params)
	return args.Get(0).(Environment), args.Error(1)
}
func (m *MockDreamletRepository) GetEnvironmentById(envId int) (Environment, error) {
	args := m.Called(envId)
	return args.Get(0).(Environment), args.Error(1)
}
func (m *MockDreamletRepository) GetEnvironmentByInviteCode(code string) (Environment, error) {
	args := m.Called(code)
	return args.Get(0).(Environment), args.Error(1)
}
func (m *MockDreamletRepository) ListEnvironmentsByUser(userId int) ([]Environment, error) {
	args := m.Called(userId)
	return args.Get(0).([]Environment), args.Error(1)
}
func (m *MockDreamletRepository) SetEnvironmentLock(envId int, locked bool) error {
	args := m.Called(envId, locked)
	return args.Error(0)
}
func (m *MockDreamletRepository) DeleteEnvironment(envId int) error {
	args := m.Called(envId)
	return args.Error(0)
}
func (m *MockDreamletRepository) GetMemberRole(userId, envId int) (string, error) {
	args := m.Called(userId, envId)
	return args.String(0), args.Error(1)
}
func (m *MockDreamletRepository) IsMuted(userId, envId int) (bool, error) {
	args := m.Called(userId, envId)
	return args.Bool(0), args.Error(1)
}
func (m *MockDreamletRepository) ListMembers(envId int) ([]Member, error) {
	args := m.Called(envId)
	return args.Get(0).([]Member), args.Error(1)
}
func (m *MockDreamletRepository) AddMember(userId, envId int, role string) error {
	args := m.Called(userId, envId, role)
	return args.Error(0)
}
func (m *MockDreamletRepository) RemoveMember(userId, envId int) error {
	args := m.Called(userId, envId)
	return args.Error(0)
}
func (m *MockDreamletRepository) SetMemberRole(userId, envId int, role string) error {
	args := m.Called(userId, envId, role)
	return args.Error(0)
}
func (m *MockDreamletRepository) ToggleMemberMute(userId, envId int) (bool, error) {
	args := m.Called(userId, envId)
	return args.Bool(0), args.Error(1)
}
func (m *MockDreamletRepository) IsBanned(userId, envId int) (bool, error) {
	args := m.Called(userId, envId)
	return args.Bool(0), args.Error(1)
}
func (m *MockDreamletRepository) CreateBan(envId, userId int) error {
	args := m.Called(envId, userId)
	return args.Error(0)
}
func (m *MockDreamletRepository) CreatePlace(params CreatePlaceParams) (Place, error) {
	args := m.Called(params)
	return args.Get(0).(Place), args.Error(1)
}
func (m *MockDreamletRepository) GetPlaceById(placeId int) (Place, error) {
	args := m.Called(placeId)
	return args.Get(0).(Place), args.Error(1)
}
func (m *MockDreamletRepository) ListPlaces(envId int) ([]Place, error) {
	args := m.Called(envId)
	return args.Get(0).([]Place), args.Error(1)
}
func (m *MockDreamletRepository) UpdatePlace(params UpdatePlaceParams) error {
	args := m.Called(params)
	return args.Error(0)
}
func (m *MockDreamletRepository) SetPlaceLock(placeId int, locked bool) error {
	args := m.Called(placeId, locked)
	return args.Error(0)
}
func (m *MockDreamletRepository) DeletePlace(placeId int) error {
	args := m.Called(placeId)
	return args.Error(0)
}
func (m *MockDreamletRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockDreamletRepository) GetRecentMessages(envId int, placeId *int, limit int) ([]Message, error) {
	args := m.Called(envId, placeId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
