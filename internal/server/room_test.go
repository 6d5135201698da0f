package server

import (
	"database/sql"
	"math/rand"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/mundstockGG/dreamlet/internal/database"
	"github.com/mundstockGG/dreamlet/internal/stats"
	"github.com/mundstockGG/dreamlet/internal/testutil"
	"github.com/mundstockGG/dreamlet/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestRoom(t *testing.T, cs *ChatServer) *Room {
	room := &Room{
		key:           LobbyKey(1),
		envId:         1,
		cs:            cs,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[int]map[*Client]struct{}),
		log:           testutil.TestLogger(t),
		rng:           rand.New(rand.NewSource(1)),
		killTimer:     time.NewTimer(idleRoomTimeout),
		exit:          make(chan exitReq),
	}
	room.killTimer.Stop()

	return room
}

func newTestClient(t *testing.T, id int, username string) *Client {
	return &Client{
		user:     types.User{Id: id, Username: username},
		send:     make(chan *ServerMessage, 256),
		rooms:    make(map[string]*Room),
		exitRoom: make(chan string, 8),
		stop:     make(chan struct{}),
		log:      testutil.TestLogger(t),
	}
}

func recvMessage(t *testing.T, c *Client) *ServerMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout: client did not receive message")
		return nil
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("expected no message, got %+v", msg)
	default:
	}
}

func Test_addClient_removeClient(t *testing.T) {
	room := &Room{
		key:     LobbyKey(1),
		clients: make(map[*Client]struct{}),
		userMap: make(map[int]map[*Client]struct{}),
		log:     testutil.TestLogger(t),
	}
	room.killTimer = time.NewTimer(idleRoomTimeout)
	room.killTimer.Stop()

	c := newTestClient(t, 1, "testuser")
	room.addClient(c)
	assert.Len(t, room.clients, 1, "expected 1 client after adding")
	assert.Contains(t, room.clients, c, "expected room.clients to contain client")
	assert.Contains(t, room.userMap, c.user.Id, "expected userMap to contain entry for user")
	assert.Equal(t, room, c.getRoom(room.key), "expected client to track the room")

	room.removeClient(c)
	assert.Len(t, room.clients, 0, "expected 0 clients after removal")
	assert.NotContains(t, room.userMap, c.user.Id, "expected userMap entry to be removed")
	assert.Nil(t, c.getRoom(room.key), "expected client to no longer track the room")
	assert.True(t, room.killTimer.Stop(), "expected kill timer to be running once room is empty")
}

func Test_removeAllClientsForUser(t *testing.T) {
	room := &Room{
		key:     LobbyKey(1),
		clients: make(map[*Client]struct{}),
		userMap: make(map[int]map[*Client]struct{}),
		log:     testutil.TestLogger(t),
	}
	room.killTimer = time.NewTimer(idleRoomTimeout)
	room.killTimer.Stop()

	c1 := newTestClient(t, 1, "conn1")
	c2 := newTestClient(t, 1, "conn2")
	other := newTestClient(t, 2, "other")
	room.addClient(c1)
	room.addClient(c2)
	room.addClient(other)

	room.removeAllClientsForUser(1)
	assert.Len(t, room.clients, 1, "expected only the other user's client to remain")
	assert.Contains(t, room.clients, other, "expected other user's client to remain")
	assert.NotContains(t, room.userMap, 1, "expected userMap entry for evicted user to be removed")
}

// evictions run on the registry goroutine while the room goroutine fans out,
// so the client set must stay safe under concurrent access.
func Test_broadcast_concurrentEviction(t *testing.T) {
	room := newTestRoom(t, nil)

	bystander := newTestClient(t, 1, "bystander")
	room.addClient(bystander)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			c := newTestClient(t, 2, "evicted")
			room.addClient(c)
			room.removeAllClientsForUser(2)
		}
	}()

	for i := 0; i < 500; i++ {
		room.broadcast(NoErrAccepted(i))
		// keep the bystander's buffer from filling up
		select {
		case <-bystander.send:
		default:
		}
	}
	<-done

	room.clientLock.RLock()
	defer room.clientLock.RUnlock()
	assert.Contains(t, room.clients, bystander, "expected bystander to remain subscribed")
}

func Test_handleJoin(t *testing.T) {
	t.Run("owner joins and receives history", func(t *testing.T) {
		db := &database.MockDreamletRepository{}
		defer db.AssertExpectations(t)

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		room := newTestRoom(t, cs)
		c := newTestClient(t, 1, "owner")

		db.On("GetEnvironmentById", 1).Return(database.Environment{Id: 1, OwnerId: 1}, nil).Once()
		db.On("GetRecentMessages", 1, (*int)(nil), historyLimit).Return([]database.Message{
			{Id: 9, EnvironmentId: 1, UserId: 2, Username: "other", Content: "hi", Kind: "chat"},
		}, nil).Once()

		room.handleJoin(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1},
			Join:        &Join{EnvironmentId: 1},
			UserId:      1,
			client:      c,
		})

		assert.Contains(t, room.clients, c, "expected client to be added to room")

		resp := recvMessage(t, c)
		assert.NotNil(t, resp.Response, "expected a response message")
		assert.Equal(t, http.StatusOK, resp.Response.ResponseCode, "expected OK response")
		assert.Equal(t, room.key, resp.Response.Data["room"], "expected room key in response")
		assert.Equal(t, types.RoleOwner, resp.Response.Data["role"], "expected derived owner role")

		messages, ok := resp.Response.Data["messages"].([]types.Message)
		assert.True(t, ok, "expected messages in response data")
		assert.Len(t, messages, 1, "expected one history message")
		assert.Equal(t, "hi", messages[0].Content, "expected history content to match")
	})

	t.Run("non-member is rejected", func(t *testing.T) {
		db := &database.MockDreamletRepository{}
		defer db.AssertExpectations(t)

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		room := newTestRoom(t, cs)
		c := newTestClient(t, 2, "stranger")

		db.On("GetEnvironmentById", 1).Return(database.Environment{Id: 1, OwnerId: 1}, nil).Once()
		db.On("GetMemberRole", 2, 1).Return("", sql.ErrNoRows).Once()

		room.handleJoin(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1},
			Join:        &Join{EnvironmentId: 1},
			UserId:      2,
			client:      c,
		})

		assert.NotContains(t, room.clients, c, "expected client not to be added to room")

		resp := recvMessage(t, c)
		assert.NotNil(t, resp.Response, "expected a response message")
		assert.Equal(t, http.StatusForbidden, resp.Response.ResponseCode, "expected forbidden response")
		assert.Equal(t, "not a member of this environment", resp.Response.Error, "expected not-a-member error")
		assert.True(t, room.killTimer.Stop(), "expected kill timer restarted after rejected join of empty room")

		db.AssertNotCalled(t, "GetRecentMessages", mock.Anything, mock.Anything, mock.Anything)
	})
}

func Test_handlePublish(t *testing.T) {
	memberAccess := func(db *database.MockDreamletRepository, role string, muted bool) {
		db.On("GetEnvironmentById", 1).Return(database.Environment{Id: 1, OwnerId: 99}, nil).Once()
		db.On("GetMemberRole", 1, 1).Return(role, nil).Once()
		db.On("IsMuted", 1, 1).Return(muted, nil).Once()
	}

	publish := func(c *Client, content string) *ClientMessage {
		return &ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Publish:     &Publish{EnvironmentId: 1, Content: content},
			UserId:      c.user.Id,
			client:      c,
		}
	}

	t.Run("chat message is persisted and broadcast to every subscriber", func(t *testing.T) {
		db := &database.MockDreamletRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		cs := newTestChatServer(t, db, su)
		room := newTestRoom(t, cs)

		sender := newTestClient(t, 1, "sender")
		other := newTestClient(t, 2, "other")
		room.addClient(sender)
		room.addClient(other)

		memberAccess(db, "member", false)
		created := Now()
		db.On("CreateMessage", database.CreateMessageParams{
			EnvironmentId: 1,
			UserId:        1,
			Content:       "hello",
			Kind:          "chat",
		}).Return(database.Message{
			Id:            7,
			EnvironmentId: 1,
			UserId:        1,
			Content:       "hello",
			Kind:          "chat",
			CreatedAt:     created,
		}, nil).Once()
		su.On("Incr", MetricTotalMessages).Once()

		room.handlePublish(publish(sender, "hello"))

		ack := recvMessage(t, sender)
		assert.NotNil(t, ack.Response, "expected first sender message to be an ack")
		assert.Equal(t, http.StatusAccepted, ack.Response.ResponseCode, "expected accepted ack")

		// the sender receives the broadcast like any other subscriber
		senderCopy := recvMessage(t, sender)
		otherCopy := recvMessage(t, other)
		assert.NotNil(t, senderCopy.Message, "expected sender to receive the broadcast message")
		assert.NotNil(t, otherCopy.Message, "expected other subscriber to receive the broadcast message")
		assert.Equal(t, senderCopy.Message, otherCopy.Message, "expected identical broadcast for all subscribers")
		assert.Equal(t, "hello", otherCopy.Message.Content, "expected broadcast content to match")
		assert.Equal(t, "sender", otherCopy.Message.Username, "expected sender's username on the broadcast")
		assert.Equal(t, created, otherCopy.Timestamp, "expected broadcast timestamp to be the persisted one")
	})

	t.Run("muted member is rejected before persistence", func(t *testing.T) {
		db := &database.MockDreamletRepository{}
		defer db.AssertExpectations(t)

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		room := newTestRoom(t, cs)
		sender := newTestClient(t, 1, "sender")
		other := newTestClient(t, 2, "other")
		room.addClient(sender)
		room.addClient(other)

		memberAccess(db, "member", true)

		room.handlePublish(publish(sender, "hello"))

		resp := recvMessage(t, sender)
		assert.Equal(t, http.StatusForbidden, resp.Response.ResponseCode, "expected forbidden response")
		assert.Equal(t, "you are muted", resp.Response.Error, "expected muted error")
		assertNoMessage(t, other)
		db.AssertNotCalled(t, "CreateMessage", mock.Anything)
	})

	t.Run("locked place rejects members", func(t *testing.T) {
		db := &database.MockDreamletRepository{}
		defer db.AssertExpectations(t)

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		room := newTestRoom(t, cs)
		placeId := 3
		room.key = PlaceKey(1, placeId)
		room.placeId = &placeId

		sender := newTestClient(t, 1, "sender")
		room.addClient(sender)

		memberAccess(db, "member", false)
		db.On("GetPlaceById", placeId).Return(database.Place{Id: placeId, EnvironmentId: 1, IsLocked: true}, nil).Once()

		room.handlePublish(publish(sender, "hello"))

		resp := recvMessage(t, sender)
		assert.Equal(t, http.StatusForbidden, resp.Response.ResponseCode, "expected forbidden response")
		assert.Equal(t, "place is locked", resp.Response.Error, "expected locked-place error")
		db.AssertNotCalled(t, "CreateMessage", mock.Anything)
	})

	t.Run("moderator bypasses a locked place", func(t *testing.T) {
		db := &database.MockDreamletRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		cs := newTestChatServer(t, db, su)
		room := newTestRoom(t, cs)
		placeId := 3
		room.key = PlaceKey(1, placeId)
		room.placeId = &placeId

		sender := newTestClient(t, 1, "mod")
		room.addClient(sender)

		memberAccess(db, "moderator", false)
		db.On("GetPlaceById", placeId).Return(database.Place{Id: placeId, EnvironmentId: 1, IsLocked: true}, nil).Once()
		db.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
			return p.Kind == "chat" && p.Content == "hello" && p.PlaceId != nil && *p.PlaceId == placeId
		})).Return(database.Message{Id: 8, EnvironmentId: 1, PlaceId: &placeId, UserId: 1, Content: "hello", Kind: "chat", CreatedAt: Now()}, nil).Once()
		su.On("Incr", MetricTotalMessages).Once()

		room.handlePublish(publish(sender, "hello"))

		ack := recvMessage(t, sender)
		assert.Equal(t, http.StatusAccepted, ack.Response.ResponseCode, "expected accepted ack")
	})

	t.Run("action command persists subtype and trimmed content", func(t *testing.T) {
		db := &database.MockDreamletRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		cs := newTestChatServer(t, db, su)
		room := newTestRoom(t, cs)
		sender := newTestClient(t, 1, "sender")
		room.addClient(sender)

		memberAccess(db, "member", false)
		db.On("CreateMessage", database.CreateMessageParams{
			EnvironmentId: 1,
			UserId:        1,
			Content:       "opens the door",
			Kind:          "action",
			ActionSubtype: "do",
		}).Return(database.Message{
			Id:            10,
			EnvironmentId: 1,
			UserId:        1,
			Content:       "opens the door",
			Kind:          "action",
			ActionSubtype: "do",
			CreatedAt:     Now(),
		}, nil).Once()
		su.On("Incr", MetricTotalMessages).Once()

		room.handlePublish(publish(sender, "/do opens the door"))

		ack := recvMessage(t, sender)
		assert.Equal(t, http.StatusAccepted, ack.Response.ResponseCode, "expected accepted ack")

		broadcasted := recvMessage(t, sender)
		assert.Equal(t, types.KindAction, broadcasted.Message.Kind, "expected action kind")
		assert.Equal(t, types.ActionDo, broadcasted.Message.ActionSubtype, "expected do subtype")
	})

	t.Run("roll command executes dice and persists results", func(t *testing.T) {
		db := &database.MockDreamletRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		cs := newTestChatServer(t, db, su)
		room := newTestRoom(t, cs)
		sender := newTestClient(t, 1, "sender")
		room.addClient(sender)

		renderRe := regexp.MustCompile(`^/roll 2d6: \d+, \d+ = \d+$`)

		memberAccess(db, "member", false)
		db.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
			if p.Kind != "roll" || p.DiceCount != 2 || p.DiceSides != 6 || len(p.DiceRolls) != 2 {
				return false
			}
			for _, roll := range p.DiceRolls {
				if roll < 1 || roll > 6 {
					return false
				}
			}
			return renderRe.MatchString(p.Content)
		})).Return(database.Message{
			Id:            11,
			EnvironmentId: 1,
			UserId:        1,
			Content:       "/roll 2d6: 3, 5 = 8",
			Kind:          "roll",
			DiceCount:     2,
			DiceSides:     6,
			DiceRolls:     []int{3, 5},
			CreatedAt:     Now(),
		}, nil).Once()
		su.On("Incr", MetricTotalMessages).Once()

		room.handlePublish(publish(sender, "/roll 2d6"))

		ack := recvMessage(t, sender)
		assert.Equal(t, http.StatusAccepted, ack.Response.ResponseCode, "expected accepted ack")

		broadcasted := recvMessage(t, sender)
		assert.Equal(t, types.KindRoll, broadcasted.Message.Kind, "expected roll kind")
		assert.Equal(t, []int{3, 5}, broadcasted.Message.DiceRolls, "expected persisted rolls on broadcast")
	})

	t.Run("bare roll prompts without persisting", func(t *testing.T) {
		db := &database.MockDreamletRepository{}
		defer db.AssertExpectations(t)

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		room := newTestRoom(t, cs)
		sender := newTestClient(t, 1, "sender")
		other := newTestClient(t, 2, "other")
		room.addClient(sender)
		room.addClient(other)

		memberAccess(db, "member", false)

		room.handlePublish(publish(sender, "/roll"))

		resp := recvMessage(t, sender)
		assert.NotNil(t, resp.Notification, "expected a notification")
		assert.NotNil(t, resp.Notification.RollPrompt, "expected a roll prompt")
		assertNoMessage(t, other)
		db.AssertNotCalled(t, "CreateMessage", mock.Anything)
	})

	t.Run("malformed command returns usage error", func(t *testing.T) {
		db := &database.MockDreamletRepository{}
		defer db.AssertExpectations(t)

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		room := newTestRoom(t, cs)
		sender := newTestClient(t, 1, "sender")
		room.addClient(sender)

		memberAccess(db, "member", false)

		room.handlePublish(publish(sender, "/roll 0d6"))

		resp := recvMessage(t, sender)
		assert.Equal(t, http.StatusBadRequest, resp.Response.ResponseCode, "expected bad request response")
		assert.Equal(t, "Dice count must be 1-100, sides 2-1000", resp.Response.Error, "expected range error")
		db.AssertNotCalled(t, "CreateMessage", mock.Anything)
	})

	t.Run("unknown command is rejected", func(t *testing.T) {
		db := &database.MockDreamletRepository{}
		defer db.AssertExpectations(t)

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		room := newTestRoom(t, cs)
		sender := newTestClient(t, 1, "sender")
		room.addClient(sender)

		memberAccess(db, "member", false)

		room.handlePublish(publish(sender, "/dance"))

		resp := recvMessage(t, sender)
		assert.Equal(t, http.StatusBadRequest, resp.Response.ResponseCode, "expected bad request response")
		assert.Equal(t, "Unknown or malformed command: /dance", resp.Response.Error, "expected unknown-command error")
		db.AssertNotCalled(t, "CreateMessage", mock.Anything)
	})
}

func Test_handleTyping(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockDreamletRepository{}, su)
	room := newTestRoom(t, cs)

	sender := newTestClient(t, 1, "sender")
	other := newTestClient(t, 2, "other")
	room.addClient(sender)
	room.addClient(other)

	su.On("Incr", MetricTypingEvents).Once()

	room.handleTyping(&ClientMessage{
		Typing: &Typing{EnvironmentId: 1},
		UserId: 1,
		client: sender,
	})

	// the sender never sees their own typing indicator
	assertNoMessage(t, sender)

	notif := recvMessage(t, other)
	assert.NotNil(t, notif.Notification, "expected a notification")
	assert.NotNil(t, notif.Notification.Typing, "expected a typing notification")
	assert.Equal(t, 1, notif.Notification.Typing.UserId, "expected typing user id to match")
	assert.Equal(t, "sender", notif.Notification.Typing.Username, "expected typing username to match")
	assert.Equal(t, 1, notif.Notification.Typing.EnvironmentId, "expected environment id to match")
}

func Test_handleRoomTimeout(t *testing.T) {
	t.Run("successfully requests unload", func(t *testing.T) {
		room := &Room{
			key: LobbyKey(1),
			cs:  newTestChatServer(t, &database.MockDreamletRepository{}, &stats.MockStatsUpdater{}),
			log: testutil.TestLogger(t),
		}

		room.handleRoomTimeout()
		select {
		case req := <-room.cs.unloadRoomChan:
			assert.Equal(t, room.key, req.roomKey, "expected room key to match")
			assert.False(t, req.deleted, "expected deleted flag to be false")
		default:
			t.Error("timeout: handleRoomTimeout did not send unload request")
		}
	})

	t.Run("unload channel is full", func(t *testing.T) {
		room := &Room{
			key:       LobbyKey(1),
			cs:        newTestChatServer(t, &database.MockDreamletRepository{}, &stats.MockStatsUpdater{}),
			log:       testutil.TestLogger(t),
			killTimer: time.NewTimer(time.Duration(0)),
		}

		<-room.killTimer.C

		room.cs.unloadRoomChan = make(chan unloadRoomRequest, 1)
		room.cs.unloadRoomChan <- unloadRoomRequest{roomKey: "env:2"}

		room.handleRoomTimeout()
		assert.True(t, room.killTimer.Stop(), "expected kill timer to be restarted after failed unload request")
	})
}

func Test_handleRoomExit(t *testing.T) {
	t.Run("exit with no clients", func(t *testing.T) {
		room := &Room{
			key:     LobbyKey(1),
			clients: make(map[*Client]struct{}),
			userMap: make(map[int]map[*Client]struct{}),
			log:     testutil.TestLogger(t),
		}
		room.killTimer = time.NewTimer(idleRoomTimeout)
		room.killTimer.Stop()

		done := make(chan string)
		go room.handleRoomExit(exitReq{done: done})

		select {
		case key := <-done:
			assert.Equal(t, room.key, key, "expected done to carry the room key")
		case <-time.After(100 * time.Millisecond):
			t.Error("timeout: handleRoomExit did not complete")
		}
	})

	t.Run("deleted room notifies clients before exit", func(t *testing.T) {
		room := &Room{
			key:     LobbyKey(1),
			clients: make(map[*Client]struct{}),
			userMap: make(map[int]map[*Client]struct{}),
			log:     testutil.TestLogger(t),
		}
		room.killTimer = time.NewTimer(idleRoomTimeout)
		room.killTimer.Stop()

		c := newTestClient(t, 1, "user1")
		room.addClient(c)

		done := make(chan string, 1)
		room.handleRoomExit(exitReq{deleted: true, done: done})

		msg := recvMessage(t, c)
		assert.NotNil(t, msg.Notification, "expected a notification")
		assert.NotNil(t, msg.Notification.RoomDeleted, "expected a room-deleted notification")
		assert.Equal(t, room.key, msg.Notification.RoomDeleted.RoomKey, "expected room key on notification")

		select {
		case key := <-c.exitRoom:
			assert.Equal(t, room.key, key, "expected exit notification for the room")
		case <-time.After(100 * time.Millisecond):
			t.Error("timeout: client did not receive exit notification")
		}

		assert.Equal(t, room.key, <-done, "expected done to carry the room key")
	})
}

func Test_handleLeave(t *testing.T) {
	room := &Room{
		key:     LobbyKey(1),
		clients: make(map[*Client]struct{}),
		userMap: make(map[int]map[*Client]struct{}),
		log:     testutil.TestLogger(t),
	}
	room.killTimer = time.NewTimer(idleRoomTimeout)
	room.killTimer.Stop()

	c := newTestClient(t, 1, "user1")
	room.addClient(c)

	room.handleLeave(&ClientMessage{
		BaseMessage: BaseMessage{Id: 2},
		Leave:       &Leave{EnvironmentId: 1},
		UserId:      1,
		client:      c,
	})

	assert.NotContains(t, room.clients, c, "expected client to be removed from room")

	resp := recvMessage(t, c)
	assert.NotNil(t, resp.Response, "expected a response message")
	assert.Equal(t, http.StatusOK, resp.Response.ResponseCode, "expected OK response")
}
