package websocket

import "sync"

// Hub fans session events out to the clients watching each session. The
// Streams map is created from request goroutines and read by the Run
// goroutine and the Redis relays, so it is guarded by mu. The per-stream
// client maps are touched only on the Run goroutine.
type Hub struct {
	mu      sync.Mutex
	Streams map[string]*Stream

	Register   chan *WSClient
	Unregister chan *WSClient
	Broadcast  chan *StreamMessage
}

func NewHub() *Hub {
	return &Hub{
		Streams:    make(map[string]*Stream),
		Register:   make(chan *WSClient),
		Unregister: make(chan *WSClient),
		Broadcast:  make(chan *StreamMessage),
	}
}

// EnsureStream opens the stream for a session if it does not exist yet and
// reports whether this call created it.
func (h *Hub) EnsureStream(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.Streams[sessionID]; ok {
		return false
	}
	h.Streams[sessionID] = &Stream{
		SessionID: sessionID,
		Clients:   make(map[string]*WSClient),
	}
	setStreams(len(h.Streams))
	return true
}

func (h *Hub) HasStream(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.Streams[sessionID]
	return ok
}

func (h *Hub) StreamIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.Streams))
	for id := range h.Streams {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) stream(sessionID string) (*Stream, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stream, ok := h.Streams[sessionID]
	return stream, ok
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			stream, ok := h.stream(client.SessionID)
			if !ok {
				continue
			}
			stream.Clients[client.ID] = client
			incConnections()

		case client := <-h.Unregister:
			stream, ok := h.stream(client.SessionID)
			if !ok {
				continue
			}
			if _, ok := stream.Clients[client.ID]; ok {
				delete(stream.Clients, client.ID)
				close(client.Message)
				decConnections()
			}

		case message := <-h.Broadcast:
			stream, ok := h.stream(message.SessionID)
			if !ok {
				continue
			}
			delivered := 0
			for _, client := range stream.Clients {
				select {
				case client.Message <- message:
					delivered++
				default:
					// Slow consumer, drop it rather than stall the stream.
					close(client.Message)
					delete(stream.Clients, client.ID)
					decConnections()
				}
			}
			if delivered > 0 {
				addDelivered(delivered)
			}
		}
	}
}
