package database

type DreamletRepository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)

	CreateEnvironment(params CreateEnvironmentParams) (Environment, error)
	GetEnvironmentById(envId int) (Environment, error)
	GetEnvironmentByInviteCode(code string) (Environment, error)
	ListEnvironmentsByUser(userId int) ([]Environment, error)
	SetEnvironmentLock(envId int, locked bool) error
	DeleteEnvironment(envId int) error

	// GetMemberRole reads the stored membership row only. The owner role is
	// derived from Environment.OwnerId by the caller, never stored.
	GetMemberRole(userId, envId int) (string, error)
	IsMuted(userId, envId int) (bool, error)
	ListMembers(envId int) ([]Member, error)
	AddMember(userId, envId int, role string) error
	RemoveMember(userId, envId int) error
	SetMemberRole(userId, envId int, role string) error
	ToggleMemberMute(userId, envId int) (bool, error)
	IsBanned(userId, envId int) (bool, error)
	CreateBan(envId, userId int) error

	CreatePlace(params CreatePlaceParams) (Place, error)
	GetPlaceById(placeId int) (Place, error)
	ListPlaces(envId int) ([]Place, error)
	UpdatePlace(params UpdatePlaceParams) error
	SetPlaceLock(placeId int, locked bool) error
	DeletePlace(placeId int) error

	CreateMessage(params CreateMessageParams) (Message, error)
	GetRecentMessages(envId int, placeId *int, limit int) ([]Message, error)
}
