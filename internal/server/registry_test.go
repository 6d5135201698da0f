package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveRoomKey(t *testing.T) {
	placeId := 7

	assert.Equal(t, "env:3", LobbyKey(3))
	assert.Equal(t, "env:3:place:7", PlaceKey(3, 7))
	assert.Equal(t, "env:3", ResolveRoomKey(3, nil), "expected lobby key without a place")
	assert.Equal(t, "env:3:place:7", ResolveRoomKey(3, &placeId), "expected place key with a place")
}
