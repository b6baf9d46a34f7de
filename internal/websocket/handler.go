package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"care-support-backend/internal/env"
)

var (
	upgrader    websocket.Upgrader
	redisClient *redis.Client
)

func init() {
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	redisClient = redis.NewClient(&redis.Options{
		Addr:     env.Get(env.ChatRedisURL),
		Password: env.Get(env.ChatRedisPass),
		DB:       0,
	})
}

// Handler owns the session streams. Events published by any server
// instance land on the session's Redis channel and are relayed into the
// local hub from there, so widget and console clients can be connected to
// different instances.
type Handler struct {
	hub         *Hub
	redisClient *redis.Client
}

func NewHandler(h *Hub) *Handler {
	return &Handler{
		hub:         h,
		redisClient: redisClient,
	}
}

func sessionChannel(sessionID string) string {
	return "session:" + sessionID
}

func (h *Handler) subscribeToSessionChannel(sessionID string) {
	if !h.hub.HasStream(sessionID) {
		log.Printf("session stream %s not found for subscription", sessionID)
		return
	}

	subscriber := h.redisClient.Subscribe(context.Background(), sessionChannel(sessionID))
	defer subscriber.Close()

	ch := subscriber.Channel()
	for msg := range ch {
		h.hub.Broadcast <- &StreamMessage{
			Content:   msg.Payload,
			SessionID: sessionID,
			Timestamp: time.Now().Unix(),
		}
	}
	log.Printf("unsubscribed from session channel %s", sessionID)
}

// EnsureStream opens the local stream for a session and subscribes to its
// Redis channel exactly once per instance.
func (h *Handler) EnsureStream(sessionID string) {
	if h.hub.EnsureStream(sessionID) {
		go h.subscribeToSessionChannel(sessionID)
	}
}

// JoinStream upgrades the request and attaches the client to the
// session's stream.
func (h *Handler) JoinStream(w http.ResponseWriter, r *http.Request, sessionID, clientID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cl := &WSClient{
		Conn:      conn,
		Message:   make(chan *StreamMessage, 10),
		ID:        clientID,
		SessionID: sessionID,
		done:      make(chan struct{}),
		isClosed:  false,
	}

	h.hub.Register <- cl

	go cl.keepAlive()
	go cl.writeMessage()
	go cl.readLoop(h.hub)
}

func (h *Handler) GetStreams(w http.ResponseWriter, r *http.Request) {
	streams := make([]StreamRes, 0)

	for _, id := range h.hub.StreamIDs() {
		streams = append(streams, StreamRes{
			SessionID: id,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(streams)
}
