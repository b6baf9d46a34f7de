package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"care-support-backend/internal/dto"
	internaljwt "care-support-backend/internal/jwt"
	"care-support-backend/internal/model"
	supportservice "care-support-backend/internal/service/support"
	"care-support-backend/internal/websocket"
)

// ConsoleEndpoints is the handler-facing surface: the ticket queue, ticket
// lifecycle actions, and the transcript of escalated sessions. Every route
// here sits behind the handler JWT middleware; endpoints re-parse the
// token to know which handler is acting.
type ConsoleEndpoints interface {
	Tickets(http.ResponseWriter, *http.Request) error
	TicketActions(http.ResponseWriter, *http.Request) error
	SessionMessages(http.ResponseWriter, *http.Request) error
}

type ConsolePaths struct {
	TicketsPath    string
	TicketsPrefix  string
	SessionsPrefix string
}

type consoleEndpoints struct {
	service *supportservice.Service
	paths   ConsolePaths
}

func NewConsoleEndpoints(service *supportservice.Service, prefix string) ConsoleEndpoints {
	base := strings.TrimRight(prefix, "/")
	return NewConsoleEndpointsWithPaths(service, ConsolePaths{
		TicketsPath:    base + "/tickets",
		TicketsPrefix:  base + "/tickets/",
		SessionsPrefix: base + "/sessions/",
	})
}

func NewConsoleEndpointsWithPaths(service *supportservice.Service, paths ConsolePaths) ConsoleEndpoints {
	return &consoleEndpoints{
		service: service,
		paths:   paths,
	}
}

func (h *consoleEndpoints) Tickets(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListTickets,
	})
}

func (h *consoleEndpoints) TicketActions(w http.ResponseWriter, r *http.Request) error {
	sessionID, action, err := extractResourceAction(r.URL.Path, h.paths.TicketsPrefix, "Ticket not found")
	if err != nil {
		return err
	}

	var act func(http.ResponseWriter, *http.Request, string) error
	switch action {
	case "acknowledge":
		act = h.handleAcknowledge
	case "resolve":
		act = h.handleResolve
	case "close":
		act = h.handleClose
	default:
		return &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Not found",
			ErrorLog:   fmt.Errorf("unknown ticket action: %s", action),
		}
	}

	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
			return act(w, r, sessionID)
		},
	})
}

func (h *consoleEndpoints) SessionMessages(w http.ResponseWriter, r *http.Request) error {
	sessionID, action, err := extractResourceAction(r.URL.Path, h.paths.SessionsPrefix, "Session not found")
	if err != nil {
		return err
	}
	if action != "messages" {
		return &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Not found",
			ErrorLog:   fmt.Errorf("unknown console session action: %s", action),
		}
	}

	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
			return h.handleListMessages(w, r, sessionID)
		},
		http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
			return h.handlePostHandlerMessage(w, r, sessionID)
		},
	})
}

func (h *consoleEndpoints) handleListTickets(w http.ResponseWriter, r *http.Request) error {
	if _, err := handlerIdentity(r); err != nil {
		return err
	}

	status, err := ticketStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		return err
	}
	priority, err := priorityFilter(r.URL.Query().Get("priority"))
	if err != nil {
		return err
	}

	tickets, err := h.service.ListTickets(r.Context(), status, priority, 100)
	if err != nil {
		return serviceError(err)
	}

	resp := dto.ListTicketsResponse{Tickets: make([]dto.TicketResponse, len(tickets))}
	for i, ticket := range tickets {
		resp.Tickets[i] = toTicketResponse(ticket)
	}
	return WriteJSON(w, http.StatusOK, resp)
}

func (h *consoleEndpoints) handleAcknowledge(w http.ResponseWriter, r *http.Request, sessionID string) error {
	identity, err := handlerIdentity(r)
	if err != nil {
		return err
	}

	ticket, err := h.service.AcknowledgeTicket(r.Context(), sessionID, identity.Id)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, toTicketResponse(ticket))
}

func (h *consoleEndpoints) handleResolve(w http.ResponseWriter, r *http.Request, sessionID string) error {
	identity, err := handlerIdentity(r)
	if err != nil {
		return err
	}

	ticket, err := h.service.ResolveTicket(r.Context(), sessionID, identity.Id)
	if err != nil {
		return serviceError(err)
	}

	resp := toTicketResponse(ticket)
	broadcastEvent(websocket.EventTicketResolved, sessionID, resp)
	return WriteJSON(w, http.StatusOK, resp)
}

func (h *consoleEndpoints) handleClose(w http.ResponseWriter, r *http.Request, sessionID string) error {
	identity, err := handlerIdentity(r)
	if err != nil {
		return err
	}

	ticket, err := h.service.CloseTicket(r.Context(), sessionID, identity.Id)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, toTicketResponse(ticket))
}

func (h *consoleEndpoints) handleListMessages(w http.ResponseWriter, r *http.Request, sessionID string) error {
	if _, err := handlerIdentity(r); err != nil {
		return err
	}

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

func (h *consoleEndpoints) handlePostHandlerMessage(w http.ResponseWriter, r *http.Request, sessionID string) error {
	identity, err := handlerIdentity(r)
	if err != nil {
		return err
	}

	var req dto.HandlerMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode handler message request: %w", err),
		}
	}

	msg, err := h.service.SendHandlerMessage(r.Context(), sessionID, identity.Id, req.Text)
	if err != nil {
		return serviceError(err)
	}

	resp := toMessageResponse(msg)
	broadcastEvent(websocket.EventMessageCreated, sessionID, resp)
	return WriteJSON(w, http.StatusCreated, resp)
}

func handlerIdentity(r *http.Request) (internaljwt.Handler, error) {
	tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims, err := internaljwt.ParseToken(tokenString, internaljwt.RoleHandler)
	if err != nil {
		return internaljwt.Handler{}, &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Unauthorized",
			ErrorLog:   fmt.Errorf("console token: %w", err),
		}
	}
	identity, err := internaljwt.HandlerFromClaims(claims)
	if err != nil {
		return internaljwt.Handler{}, &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Unauthorized",
			ErrorLog:   err,
		}
	}
	return identity, nil
}

func ticketStatusFilter(value string) (model.TicketStatus, error) {
	switch model.TicketStatus(value) {
	case "", model.TicketStatusOpen, model.TicketStatusInProgress, model.TicketStatusResolved, model.TicketStatusClosed:
		return model.TicketStatus(value), nil
	default:
		return "", &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid status filter",
			ErrorLog:   fmt.Errorf("invalid ticket status filter: %s", value),
		}
	}
}

func priorityFilter(value string) (model.Priority, error) {
	switch model.Priority(value) {
	case "", model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityCritical:
		return model.Priority(value), nil
	default:
		return "", &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid priority filter",
			ErrorLog:   fmt.Errorf("invalid priority filter: %s", value),
		}
	}
}

func extractResourceAction(path, prefix, notFoundMsg string) (string, string, error) {
	if prefix == "" {
		return "", "", &HTTPError{StatusCode: http.StatusNotFound, Message: notFoundMsg, ErrorLog: fmt.Errorf("route not configured")}
	}
	trimmed := strings.TrimPrefix(path, prefix)
	if trimmed == path {
		return "", "", &HTTPError{StatusCode: http.StatusNotFound, Message: notFoundMsg, ErrorLog: fmt.Errorf("path mismatch: %s", path)}
	}
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		return "", "", &HTTPError{StatusCode: http.StatusNotFound, Message: notFoundMsg, ErrorLog: fmt.Errorf("invalid path: %s", path)}
	}
	return parts[0], parts[1], nil
}
