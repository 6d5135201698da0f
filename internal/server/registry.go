package server

import "fmt"

// Room keys are the canonical broadcast scopes: an environment's lobby is
// "env:{id}", a place room is "env:{id}:place:{id}". The ChatServer's rooms
// map is keyed by these.

func LobbyKey(envId int) string {
	return fmt.Sprintf("env:%d", envId)
}

func PlaceKey(envId, placeId int) string {
	return fmt.Sprintf("env:%d:place:%d", envId, placeId)
}

// ResolveRoomKey maps an (environment, optional place) pair to its room key.
func ResolveRoomKey(envId int, placeId *int) string {
	if placeId != nil {
		return PlaceKey(envId, *placeId)
	}
	return LobbyKey(envId)
}
