package server

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/mundstockGG/dreamlet/internal/command"
	"github.com/mundstockGG/dreamlet/internal/database"
	"github.com/mundstockGG/dreamlet/internal/types"
)

// idleRoomTimeout is how long an empty room stays loaded before it is
// unloaded from the registry.
const idleRoomTimeout = 30 * time.Second

// historyLimit bounds the recent-message batch sent on join.
const historyLimit = 50

type exitReq struct {
	deleted bool
	done    chan string
}

type Room struct {
	key           string
	envId         int
	placeId       *int
	cs            *ChatServer
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	clients       map[*Client]struct{}
	userMap       map[int]map[*Client]struct{}
	// clientLock guards clients and userMap: the registry goroutine mutates
	// them on evictions while the room goroutine reads them to fan out
	clientLock sync.RWMutex
	log        *log.Logger
	// rng feeds dice rolls; owned by the room goroutine, so no locking
	rng *rand.Rand
	// killTimer unloads the room once it has been empty for idleRoomTimeout
	killTimer *time.Timer
	// exit signals the room goroutine to shut down
	exit chan exitReq
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.key)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.clientMsgChan:
			if msg.Publish != nil {
				r.handlePublish(msg)
			} else if msg.Typing != nil {
				r.handleTyping(msg)
			}
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

func (r *Room) handleJoin(join *ClientMessage) {
	// stop the kill timer since we have a new client
	r.killTimer.Stop()

	c := join.client
	access, denial, err := r.cs.gate.Authorize(join.UserId, r.envId, r.placeId)
	if err != nil {
		r.log.Println("authorize join:", err)
		r.rejectJoin(c, ErrInternalError(join.Id))
		return
	}
	if denial != nil {
		r.rejectJoin(c, denial.response(join.Id))
		return
	}

	history, err := r.cs.db.GetRecentMessages(r.envId, r.placeId, historyLimit)
	if err != nil {
		r.log.Println("GetRecentMessages:", err)
		r.rejectJoin(c, ErrInternalError(join.Id))
		return
	}

	r.addClient(c)

	messages := make([]types.Message, len(history))
	for i, m := range history {
		messages[i] = messageFromRecord(m)
	}

	c.queueMessage(NoErrOK(join.Id, map[string]any{
		"room":     r.key,
		"role":     access.Role,
		"messages": messages,
	}))
}

// rejectJoin sends a private error and restarts the kill timer if the failed
// join would have been the room's only client.
func (r *Room) rejectJoin(c *Client, msg *ServerMessage) {
	r.clientLock.RLock()
	empty := len(r.clients) == 0
	r.clientLock.RUnlock()

	if empty {
		r.killTimer.Reset(idleRoomTimeout)
	}
	c.queueMessage(msg)
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	r.removeClient(leaveMsg.client)

	if leaveMsg.GetUserId() != 0 {
		leaveMsg.client.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}
}

// handlePublish runs the message pipeline for one inbound send: authorize,
// interpret, persist, broadcast. Every step short-circuits with a private
// error; nothing is broadcast unless the durable write succeeded.
func (r *Room) handlePublish(msg *ClientMessage) {
	c := msg.client

	access, denial, err := r.cs.gate.Authorize(msg.UserId, r.envId, r.placeId)
	if err != nil {
		r.log.Println("authorize publish:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}
	if denial != nil {
		c.queueMessage(denial.response(msg.Id))
		return
	}

	if access.IsMuted {
		c.queueMessage(ErrMuted(msg.Id))
		return
	}

	// a locked place rejects members only; moderator and owner bypass
	if access.IsPlaceLocked && access.Role == types.RoleMember {
		c.queueMessage(ErrPlaceLocked(msg.Id))
		return
	}

	intent := command.Interpret(msg.Publish.Content)

	params := database.CreateMessageParams{
		EnvironmentId: r.envId,
		PlaceId:       r.placeId,
		UserId:        msg.UserId,
	}

	switch intent.Kind {
	case command.IntentRollPrompt:
		c.queueMessage(&ServerMessage{
			BaseMessage:  BaseMessage{Id: msg.Id, Timestamp: Now()},
			Notification: &Notification{RollPrompt: &RollPrompt{}},
		})
		return
	case command.IntentError:
		c.queueMessage(ErrMalformedCommand(msg.Id, intent.Message))
		return
	case command.IntentChat:
		params.Content = intent.Content
		params.Kind = string(types.KindChat)
	case command.IntentAction:
		params.Content = intent.Content
		params.Kind = string(types.KindAction)
		params.ActionSubtype = string(intent.Subtype)
	case command.IntentRoll:
		res := command.ExecuteRoll(intent.Count, intent.Sides, r.rng)
		params.Content = res.Render()
		params.Kind = string(types.KindRoll)
		params.DiceCount = res.Count
		params.DiceSides = res.Sides
		params.DiceRolls = res.Rolls
	}

	saved, err := r.cs.db.CreateMessage(params)
	if err != nil {
		r.log.Println("CreateMessage:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	r.cs.stats.Incr(MetricTotalMessages)
	c.queueMessage(NoErrAccepted(msg.Id))

	// the sender is a subscriber like any other; no special echo path
	rendered := messageFromRecord(saved)
	rendered.Username = c.user.Username
	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: saved.CreatedAt},
		Message:     &rendered,
	})
}

// handleTyping fans out a transient typing indicator to everyone but the
// sender. Nothing is persisted; receivers expire the indicator locally.
func (r *Room) handleTyping(msg *ClientMessage) {
	r.cs.stats.Incr(MetricTypingEvents)

	r.broadcast(&ServerMessage{
		Notification: &Notification{
			Typing: &TypingNotification{
				UserId:        msg.UserId,
				Username:      msg.client.user.Username,
				EnvironmentId: r.envId,
				PlaceId:       r.placeId,
			},
		},
		SkipClient: msg.client,
	})
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q timed out", r.key)
	select {
	case r.cs.unloadRoomChan <- unloadRoomRequest{roomKey: r.key}:
	default:
		// registry is busy; try again after another idle interval
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.key)
	r.killTimer.Stop()

	if e.deleted {
		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{
				Timestamp: Now(),
			},
			Notification: &Notification{
				RoomDeleted: &RoomDeleted{RoomKey: r.key},
			},
		})
	}

	r.clientLock.Lock()
	for c := range r.clients {
		c.notifyRoomExit(r.key)
	}
	r.clientLock.Unlock()

	if e.done != nil {
		e.done <- r.key
	}
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.userMap[c.user.Id] == nil {
		r.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Id][c] = struct{}{}

	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		r.log.Printf("client %q not found in room %q", c.user.Username, r.key)
		return
	}

	delete(r.clients, c)
	c.delRoom(r.key)

	if userClients, ok := r.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.user.Id)
		}
	}

	r.log.Printf("removed client %q from room %q", c.user.Username, r.key)

	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.key)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

// removeAllClientsForUser drops every connection the user has in this room,
// used when the user is kicked or banned from the environment.
func (r *Room) removeAllClientsForUser(userId int) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if userClients, ok := r.userMap[userId]; ok {
		for client := range userClients {
			delete(r.clients, client)
			client.delRoom(r.key)
		}
		delete(r.userMap, userId)
	}

	r.log.Printf("removed all clients for user %d from room %q", userId, r.key)

	if len(r.clients) == 0 && r.killTimer != nil {
		r.killTimer.Reset(idleRoomTimeout)
	}
}

// broadcast delivers to every currently subscribed connection, best effort.
// Connections that disconnect mid-broadcast simply miss the event. The read
// lock is required: evictions mutate the client set from the registry
// goroutine while the room goroutine fans out.
func (r *Room) broadcast(msg *ServerMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = Now()
	}

	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
}

func messageFromRecord(m database.Message) types.Message {
	return types.Message{
		Id:            m.Id,
		EnvironmentId: m.EnvironmentId,
		PlaceId:       m.PlaceId,
		UserId:        m.UserId,
		Username:      m.Username,
		Content:       m.Content,
		Kind:          types.MessageKind(m.Kind),
		ActionSubtype: types.ActionSubtype(m.ActionSubtype),
		DiceCount:     m.DiceCount,
		DiceSides:     m.DiceSides,
		DiceRolls:     m.DiceRolls,
		Timestamp:     m.CreatedAt,
	}
}

func (m *ClientMessage) GetUserId() int {
	if m == nil {
		return 0
	}
	return m.UserId
}
