package server

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/mundstockGG/dreamlet/internal/database"
	"github.com/mundstockGG/dreamlet/internal/stats"
)

const (
	MetricTotalConnections = "TotalConnections"
	MetricActiveRooms      = "ActiveRooms"
	MetricTotalMessages    = "TotalMessages"
	MetricTypingEvents     = "TypingEvents"
)

type unloadRoomRequest struct {
	roomKey string
	deleted bool
	done    chan string
}

type evictRequest struct {
	envId  int
	userId int
	banned bool
	done   chan struct{}
}

type stopRequest struct {
	done chan struct{}
}

// ChatServer is the room registry: it owns the mapping from room key to live
// room and tracks which connections belong to which user. All room lifecycle
// goes through its Run loop.
type ChatServer struct {
	log            *log.Logger
	db             database.DreamletRepository
	stats          stats.StatsProvider
	gate           *Gate
	clients        map[*Client]struct{}
	userMap        map[int]map[*Client]struct{}
	clientsLock    sync.Mutex
	joinChan       chan *ClientMessage
	broadcastChan  chan *ServerMessage
	unloadRoomChan chan unloadRoomRequest
	evictChan      chan evictRequest
	rooms          map[string]*Room
	stop           chan stopRequest
}

func NewChatServer(logger *log.Logger, db database.DreamletRepository, sp stats.StatsProvider) (*ChatServer, error) {
	sp.RegisterMetric(MetricTotalConnections)
	sp.RegisterMetric(MetricActiveRooms)
	sp.RegisterMetric(MetricTotalMessages)
	sp.RegisterMetric(MetricTypingEvents)

	return &ChatServer{
		log:            logger,
		db:             db,
		stats:          sp,
		gate:           NewGate(db),
		clients:        make(map[*Client]struct{}),
		userMap:        make(map[int]map[*Client]struct{}),
		joinChan:       make(chan *ClientMessage, 256),
		broadcastChan:  make(chan *ServerMessage, 256),
		unloadRoomChan: make(chan unloadRoomRequest, 64),
		evictChan:      make(chan evictRequest, 64),
		rooms:          make(map[string]*Room),
		stop:           make(chan stopRequest),
	}, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoin(joinMsg)
		case msg := <-cs.broadcastChan:
			cs.deliverToUser(msg)
		case req := <-cs.unloadRoomChan:
			cs.handleUnloadRoom(req)
		case req := <-cs.evictChan:
			cs.handleEvict(req)
		case req := <-cs.stop:
			cs.log.Println("shutting down rooms")
			for key, r := range cs.rooms {
				done := make(chan string, 1)
				r.exit <- exitReq{done: done}
				<-done
				delete(cs.rooms, key)
			}

			close(req.done)
			return
		}
	}
}

// handleJoin resolves the target room, loading it if necessary. The room
// target is validated against the store before a room goroutine is spawned;
// membership itself is checked by the room's own join handling.
func (cs *ChatServer) handleJoin(joinMsg *ClientMessage) {
	key := ResolveRoomKey(joinMsg.Join.EnvironmentId, joinMsg.Join.PlaceId)

	if room, ok := cs.rooms[key]; ok {
		select {
		case room.joinChan <- joinMsg:
		default:
			cs.log.Printf("join channel full on room %q", room.key)
			joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
		}
		return
	}

	if _, err := cs.db.GetEnvironmentById(joinMsg.Join.EnvironmentId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			joinMsg.client.queueMessage(ErrEnvironmentNotFound(joinMsg.Id))
		} else {
			cs.log.Println("GetEnvironmentById:", err)
			joinMsg.client.queueMessage(ErrInternalError(joinMsg.Id))
		}
		return
	}

	if joinMsg.Join.PlaceId != nil {
		place, err := cs.db.GetPlaceById(*joinMsg.Join.PlaceId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				joinMsg.client.queueMessage(ErrPlaceNotFound(joinMsg.Id))
			} else {
				cs.log.Println("GetPlaceById:", err)
				joinMsg.client.queueMessage(ErrInternalError(joinMsg.Id))
			}
			return
		}
		if place.EnvironmentId != joinMsg.Join.EnvironmentId {
			joinMsg.client.queueMessage(ErrPlaceNotFound(joinMsg.Id))
			return
		}
	}

	room := &Room{
		key:           key,
		envId:         joinMsg.Join.EnvironmentId,
		placeId:       joinMsg.Join.PlaceId,
		cs:            cs,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[int]map[*Client]struct{}),
		log:           cs.log,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		exit:          make(chan exitReq),
	}

	cs.rooms[key] = room
	cs.stats.Incr(MetricActiveRooms)
	room.joinChan <- joinMsg

	go room.start()
}

func (cs *ChatServer) handleUnloadRoom(req unloadRoomRequest) {
	room, ok := cs.rooms[req.roomKey]
	if !ok {
		if req.done != nil {
			close(req.done)
		}
		return
	}

	cs.log.Printf("unloading room %q", req.roomKey)
	delete(cs.rooms, req.roomKey)
	cs.stats.Decr(MetricActiveRooms)
	room.exit <- exitReq{deleted: req.deleted, done: req.done}
}

func (cs *ChatServer) handleEvict(req evictRequest) {
	for _, room := range cs.rooms {
		if room.envId == req.envId {
			room.removeAllClientsForUser(req.userId)
		}
	}

	cs.deliverToUser(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			MemberRemoved: &MemberRemoved{EnvironmentId: req.envId, Banned: req.banned},
		},
		UserId: req.userId,
	})

	if req.done != nil {
		close(req.done)
	}
}

// deliverToUser queues a message on every live connection of msg.UserId.
func (cs *ChatServer) deliverToUser(msg *ServerMessage) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	for c := range cs.userMap[msg.UserId] {
		if c == msg.SkipClient {
			continue
		}
		c.queueMessage(msg)
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	if cs.userMap[c.user.Id] == nil {
		cs.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	cs.userMap[c.user.Id][c] = struct{}{}

	cs.stats.Incr(MetricTotalConnections)
	cs.log.Printf("registered connection %s for %q", c.id, c.user.Username)
}

func (cs *ChatServer) DeregisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return
	}

	delete(cs.clients, c)
	if userClients, ok := cs.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(cs.userMap, c.user.Id)
		}
	}

	cs.stats.Decr(MetricTotalConnections)
	cs.log.Printf("deregistered connection %s for %q", c.id, c.user.Username)
}

// UnloadRoom removes a room from the registry, notifying subscribers when the
// underlying environment or place was deleted.
func (cs *ChatServer) UnloadRoom(ctx context.Context, key string, deleted bool) error {
	done := make(chan string, 1)

	select {
	case cs.unloadRoomChan <- unloadRoomRequest{roomKey: key, deleted: deleted, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EvictUser drops a user's live connections from every room of an environment
// after a kick or ban and notifies the user's connections.
func (cs *ChatServer) EvictUser(ctx context.Context, envId, userId int, banned bool) error {
	done := make(chan struct{})

	select {
	case cs.evictChan <- evictRequest{envId: envId, userId: userId, banned: banned, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	req := stopRequest{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
