package endpoints

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"care-support-backend/internal/dto"
	"care-support-backend/internal/env"
	internaljwt "care-support-backend/internal/jwt"
	supportservice "care-support-backend/internal/service/support"
	"care-support-backend/internal/websocket"
)

type SupportEndpoints interface {
	Sessions(http.ResponseWriter, *http.Request) error
	SessionActions(http.ResponseWriter, *http.Request) error
	Websocket(http.ResponseWriter, *http.Request) error
}

type SupportPaths struct {
	SessionsPath    string
	SessionsPrefix  string
	WebsocketPrefix string
}

type supportEndpoints struct {
	service *supportservice.Service
	handler *websocket.Handler
	paths   SupportPaths
}

func NewSupportEndpoints(service *supportservice.Service, handler *websocket.Handler, prefix string) SupportEndpoints {
	base := strings.TrimRight(prefix, "/")
	return NewSupportEndpointsWithPaths(service, handler, SupportPaths{
		SessionsPath:   base + "/sessions",
		SessionsPrefix: base + "/sessions/",
	})
}

func NewSupportEndpointsWithPaths(service *supportservice.Service, handler *websocket.Handler, paths SupportPaths) SupportEndpoints {
	return &supportEndpoints{
		service: service,
		handler: handler,
		paths:   paths,
	}
}

func (h *supportEndpoints) Sessions(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleStartSession,
		http.MethodGet:  h.handleListSessions,
	})
}

func (h *supportEndpoints) SessionActions(w http.ResponseWriter, r *http.Request) error {
	sessionID, action, err := h.extractSessionAction(r.URL.Path)
	if err != nil {
		return err
	}

	switch action {
	case "messages":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleListMessages(w, r, sessionID)
			},
			http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleSubmitTurn(w, r, sessionID)
			},
		})
	case "escalate":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleEscalate(w, r, sessionID)
			},
		})
	case "end":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleEndSession(w, r, sessionID)
			},
		})
	default:
		return &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Not found",
			ErrorLog:   fmt.Errorf("unknown session action: %s", action),
		}
	}
}

func (h *supportEndpoints) handleStartSession(w http.ResponseWriter, r *http.Request) error {
	var req dto.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode start session request: %w", err),
		}
	}

	result, err := h.service.StartSession(r.Context(), strings.TrimSpace(req.UserID), strings.TrimSpace(req.ProductID))
	if err != nil {
		return serviceError(err)
	}

	h.ensureStream(result.Session.SessionID)

	resp := dto.StartSessionResponse{
		Session: toSessionMetadata(result.Session),
		Welcome: toMessageResponse(result.Welcome),
	}
	return WriteJSON(w, http.StatusCreated, resp)
}

func (h *supportEndpoints) handleListSessions(w http.ResponseWriter, r *http.Request) error {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))

	sessions, err := h.service.ListSessionsForUser(r.Context(), userID, 50)
	if err != nil {
		return serviceError(err)
	}

	resp := dto.ListSessionsResponse{Sessions: make([]dto.SessionMetadata, len(sessions))}
	for i, session := range sessions {
		resp.Sessions[i] = toSessionMetadata(session)
	}
	return WriteJSON(w, http.StatusOK, resp)
}

func (h *supportEndpoints) handleListMessages(w http.ResponseWriter, r *http.Request, sessionID string) error {
	messages, err := h.service.ListMessages(r.Context(), sessionID, 200)
	if err != nil {
		return serviceError(err)
	}

	resp := dto.ListMessagesResponse{Messages: make([]dto.MessageResponse, len(messages))}
	for i, msg := range messages {
		resp.Messages[i] = toMessageResponse(msg)
	}
	return WriteJSON(w, http.StatusOK, resp)
}

func (h *supportEndpoints) handleSubmitTurn(w http.ResponseWriter, r *http.Request, sessionID string) error {
	var req dto.SubmitTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode turn request: %w", err),
		}
	}

	var image []byte
	if req.ImageBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			return &HTTPError{
				StatusCode: http.StatusBadRequest,
				Message:    "Invalid image encoding",
				ErrorLog:   fmt.Errorf("decode turn image: %w", err),
			}
		}
		image = decoded
	}

	result, err := h.service.SubmitUserTurn(r.Context(), supportservice.SubmitTurnParams{
		SessionID: sessionID,
		Text:      req.Text,
		Image:     image,
		ImageRef:  strings.TrimSpace(req.ImageRef),
	})
	if err != nil {
		return serviceError(err)
	}

	broadcastEvent(websocket.EventMessageCreated, sessionID, toMessageResponse(result.UserMessage))

	resp := dto.TurnResponse{
		UserMessage: toMessageResponse(result.UserMessage),
		Failed:      result.Failed,
	}
	if result.Reply != nil {
		reply := toMessageResponse(*result.Reply)
		resp.Reply = &reply
		broadcastEvent(websocket.EventMessageCreated, sessionID, reply)
	}
	if result.Notice != nil {
		notice := toMessageResponse(*result.Notice)
		resp.Notice = &notice
		broadcastEvent(websocket.EventMessageCreated, sessionID, notice)
	}

	return WriteJSON(w, http.StatusCreated, resp)
}

func (h *supportEndpoints) handleEscalate(w http.ResponseWriter, r *http.Request, sessionID string) error {
	var req dto.EscalateRequest
	if r.Body != nil {
		// The body is optional; escalation needs no input beyond the session.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	handlerID := strings.TrimSpace(req.HandlerID)
	if handlerID == "" {
		handlerID = env.Get(env.DefaultHandlerID)
	}

	result, err := h.service.Escalate(r.Context(), sessionID, handlerID)
	if err != nil {
		return serviceError(err)
	}

	resp := dto.EscalationResponse{
		Session:          toSessionMetadata(result.Session),
		Ticket:           toTicketResponse(result.Ticket),
		AlreadyEscalated: result.AlreadyEscalated,
	}

	if result.AlreadyEscalated {
		return WriteJSON(w, http.StatusOK, resp)
	}

	broadcastEvent(websocket.EventSessionEscalated, sessionID, resp)
	return WriteJSON(w, http.StatusCreated, resp)
}

func (h *supportEndpoints) handleEndSession(w http.ResponseWriter, r *http.Request, sessionID string) error {
	session, err := h.service.EndSession(r.Context(), sessionID)
	if err != nil {
		return serviceError(err)
	}

	resp := toSessionMetadata(session)
	broadcastEvent(websocket.EventSessionClosed, sessionID, resp)
	return WriteJSON(w, http.StatusOK, resp)
}

// Websocket attaches a client to the session's event stream. Widget users
// join with their user id; console handlers authenticate with their token.
func (h *supportEndpoints) Websocket(w http.ResponseWriter, r *http.Request) error {
	sessionID, err := h.extractFromPath(r.URL.Path, h.paths.WebsocketPrefix)
	if err != nil {
		return err
	}
	sessionID = strings.Trim(sessionID, "/")
	if sessionID == "" {
		return &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Session not found",
			ErrorLog:   fmt.Errorf("websocket session id missing"),
		}
	}

	if _, err := h.service.GetSession(r.Context(), sessionID); err != nil {
		return serviceError(err)
	}

	role := r.URL.Query().Get("role")
	switch role {
	case "user":
		clientID := strings.TrimSpace(r.URL.Query().Get("userId"))
		if clientID == "" {
			return &HTTPError{
				StatusCode: http.StatusBadRequest,
				Message:    "Missing userId parameter",
				ErrorLog:   fmt.Errorf("websocket user id missing"),
			}
		}
		h.ensureStream(sessionID)
		h.handler.JoinStream(w, r, sessionID, clientID)
		return nil

	case "handler":
		token := strings.TrimSpace(r.URL.Query().Get("token"))
		claims, err := internaljwt.ParseToken(token, internaljwt.RoleHandler)
		if err != nil {
			return &HTTPError{
				StatusCode: http.StatusUnauthorized,
				Message:    "Unauthorized",
				ErrorLog:   fmt.Errorf("websocket handler token: %w", err),
			}
		}
		identity, err := internaljwt.HandlerFromClaims(claims)
		if err != nil {
			return &HTTPError{
				StatusCode: http.StatusUnauthorized,
				Message:    "Unauthorized",
				ErrorLog:   err,
			}
		}
		h.ensureStream(sessionID)
		h.handler.JoinStream(w, r, sessionID, identity.Id)
		return nil

	default:
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Missing or invalid role parameter",
			ErrorLog:   fmt.Errorf("websocket role invalid: %s", role),
		}
	}
}

func (h *supportEndpoints) extractSessionAction(path string) (string, string, error) {
	return extractResourceAction(path, h.paths.SessionsPrefix, "Session not found")
}

func (h *supportEndpoints) extractFromPath(path, prefix string) (string, error) {
	if prefix == "" {
		return "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Session not found", ErrorLog: fmt.Errorf("websocket not configured")}
	}
	trimmed := strings.TrimPrefix(path, prefix)
	if trimmed == path {
		return "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Session not found", ErrorLog: fmt.Errorf("path mismatch: %s", path)}
	}
	return trimmed, nil
}

func (h *supportEndpoints) ensureStream(sessionID string) {
	if sessionID == "" || h.handler == nil {
		return
	}
	h.handler.EnsureStream(sessionID)
}
