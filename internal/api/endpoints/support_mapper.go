package endpoints

import (
	"fmt"
	"net/http"
	"time"

	"care-support-backend/internal/dto"
	"care-support-backend/internal/model"
	supportservice "care-support-backend/internal/service/support"
	"care-support-backend/internal/websocket"
)

func toSessionMetadata(item model.SessionItem) dto.SessionMetadata {
	return dto.SessionMetadata{
		SessionID:         item.SessionID,
		UserID:            item.UserID,
		ProductID:         item.ProductID,
		Status:            string(item.Status),
		AssignedHandlerID: item.AssignedHandlerID,
		CreatedAt:         item.CreatedAt,
		UpdatedAt:         item.UpdatedAt,
		ClosedAt:          item.ClosedAt,
	}
}

func toMessageResponse(item model.MessageItem) dto.MessageResponse {
	return dto.MessageResponse{
		MessageID: item.MessageID,
		SessionID: item.SessionID,
		Sender:    string(item.Sender),
		Body:      item.Body,
		ImageRef:  item.ImageRef,
		CreatedAt: item.CreatedAt,
	}
}

func toTicketResponse(item model.TicketItem) dto.TicketResponse {
	return dto.TicketResponse{
		TicketID:          item.TicketID,
		SessionID:         item.SessionID,
		AssignedHandlerID: item.AssignedHandlerID,
		Priority:          string(item.Priority),
		Status:            string(item.Status),
		CreatedAt:         item.CreatedAt,
		UpdatedAt:         item.UpdatedAt,
		ResolvedAt:        item.ResolvedAt,
	}
}

// serviceError maps the orchestrator's error codes onto HTTP statuses. The
// user-facing message comes from the service; the wrapped cause goes to
// the log only.
func serviceError(err error) error {
	if err == nil {
		return nil
	}

	svcErr, ok := err.(*supportservice.Error)
	if !ok {
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   fmt.Errorf("support service: %w", err),
		}
	}

	var logErr error
	if svcErr.Err != nil {
		logErr = fmt.Errorf("%s: %w", svcErr.Message, svcErr.Err)
	} else {
		logErr = svcErr
	}

	switch svcErr.Code {
	case supportservice.ErrorCodeValidation:
		return &HTTPError{StatusCode: http.StatusBadRequest, Message: svcErr.Message, ErrorLog: logErr}
	case supportservice.ErrorCodeUnauthorized:
		return &HTTPError{StatusCode: http.StatusUnauthorized, Message: svcErr.Message, ErrorLog: logErr}
	case supportservice.ErrorCodeNotFound:
		return &HTTPError{StatusCode: http.StatusNotFound, Message: svcErr.Message, ErrorLog: logErr}
	case supportservice.ErrorCodeConflict, supportservice.ErrorCodeInvalidTransition:
		return &HTTPError{StatusCode: http.StatusConflict, Message: svcErr.Message, ErrorLog: logErr}
	case supportservice.ErrorCodeBackendFailure:
		return &HTTPError{StatusCode: http.StatusBadGateway, Message: svcErr.Message, ErrorLog: logErr}
	default:
		return &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Internal server error", ErrorLog: logErr}
	}
}

// broadcastEvent pushes a session event to every stream subscriber via the
// session's Redis channel. Delivery is best effort; the HTTP response is
// the source of truth for the caller.
func broadcastEvent(eventType, sessionID string, payload interface{}) {
	event := websocket.SessionEvent{
		Type:      eventType,
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}
	if err := websocket.Publish(event); err != nil {
		fmt.Printf("failed to publish %s event for session %s: %v\n", eventType, sessionID, err)
	}
}
