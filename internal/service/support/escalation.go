package support

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"care-support-backend/internal/model"
)

type EscalationResult struct {
	Session model.SessionItem
	Ticket  model.TicketItem

	// AlreadyEscalated is set when the session had a ticket before this
	// call. The existing ticket is returned and nothing is written twice.
	AlreadyEscalated bool
}

// Escalate hands the session over to a human handler: it moves the session
// to escalated, classifies a priority from the conversation history, and
// opens exactly one ticket. Repeated calls are idempotent and concurrent
// calls race safely: the session guard serializes callers in this process,
// and the store's conditional writes (status compare-and-swap plus
// insert-if-absent ticket keyed by session id) decide any race that
// remains. If the ticket cannot be created the session transition is
// rolled back so the session never sticks in escalated without a ticket.
func (s *Service) Escalate(ctx context.Context, sessionID, handlerID string) (EscalationResult, error) {
	if sessionID == "" {
		return EscalationResult{}, newError(ErrorCodeValidation, "session id is required", nil)
	}
	if handlerID == "" {
		return EscalationResult{}, newError(ErrorCodeValidation, "handler id is required", nil)
	}

	handler, err := s.repo.GetHandler(ctx, handlerID)
	if err != nil {
		if err == ErrNotFound {
			return EscalationResult{}, newError(ErrorCodeNotFound, "handler not found", err)
		}
		return EscalationResult{}, newError(ErrorCodeInternal, "failed to load handler", err)
	}

	g := s.guard(sessionID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if ticket, err := s.repo.GetTicketBySession(ctx, sessionID); err == nil {
		session, serr := s.repo.GetSession(ctx, sessionID)
		if serr != nil {
			return EscalationResult{}, newError(ErrorCodeInternal, "failed to load session", serr)
		}
		return EscalationResult{Session: session, Ticket: ticket, AlreadyEscalated: true}, nil
	} else if err != ErrNotFound {
		return EscalationResult{}, newError(ErrorCodeInternal, "failed to look up ticket", err)
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if err == ErrNotFound {
			return EscalationResult{}, newError(ErrorCodeNotFound, "session not found", err)
		}
		return EscalationResult{}, newError(ErrorCodeInternal, "failed to load session", err)
	}

	if !CanTransitionSession(session.Status, model.SessionStatusEscalated) {
		return EscalationResult{}, newError(ErrorCodeInvalidTransition,
			fmt.Sprintf("cannot escalate a %s session", session.Status), nil)
	}

	now := s.timestamp()
	err = s.repo.UpdateSessionStatus(
		ctx,
		sessionID,
		[]model.SessionStatus{model.SessionStatusActive},
		model.SessionStatusEscalated,
		&handlerID,
		now,
		"",
	)
	if err == ErrConflict {
		// Lost a cross-process race. If the winner opened a ticket this is
		// a duplicate escalation, otherwise the session moved elsewhere.
		if ticket, terr := s.repo.GetTicketBySession(ctx, sessionID); terr == nil {
			session, _ = s.repo.GetSession(ctx, sessionID)
			return EscalationResult{Session: session, Ticket: ticket, AlreadyEscalated: true}, nil
		}
		return EscalationResult{}, newError(ErrorCodeInvalidTransition, "session is no longer active", err)
	}
	if err != nil {
		return EscalationResult{}, newError(ErrorCodeInternal, "failed to escalate session", err)
	}

	history, err := s.repo.ListMessages(ctx, sessionID, 0)
	if err != nil {
		s.rollbackEscalation(ctx, sessionID)
		return EscalationResult{}, newError(ErrorCodeInternal, "failed to load conversation history", err)
	}

	ticket := model.TicketItem{
		PK:                model.TicketPK(sessionID),
		TicketID:          uuid.NewString(),
		SessionID:         sessionID,
		AssignedHandlerID: handlerID,
		Priority:          ClassifyPriority(history),
		Status:            model.TicketStatusOpen,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.repo.CreateTicket(ctx, ticket)
	if err == ErrAlreadyExists {
		existing, terr := s.repo.GetTicketBySession(ctx, sessionID)
		if terr != nil {
			return EscalationResult{}, newError(ErrorCodeInternal, "failed to look up ticket", terr)
		}
		session.Status = model.SessionStatusEscalated
		return EscalationResult{Session: session, Ticket: existing, AlreadyEscalated: true}, nil
	}
	if err != nil {
		s.rollbackEscalation(ctx, sessionID)
		return EscalationResult{}, newError(ErrorCodeInternal, "failed to create ticket", err)
	}

	// Best effort: the ticket and the session transition are already
	// durable, a failed announcement must not fail the escalation.
	note := s.newMessage(sessionID, model.SenderSystem, fmt.Sprintf(
		"You have been connected to %s. A support ticket has been opened with %s priority.",
		handler.Name, ticket.Priority))
	_ = s.repo.AppendMessage(ctx, note)

	session.Status = model.SessionStatusEscalated
	session.AssignedHandlerID = handlerID
	session.UpdatedAt = now
	return EscalationResult{Session: session, Ticket: ticket}, nil
}

func (s *Service) rollbackEscalation(ctx context.Context, sessionID string) {
	clearHandler := ""
	_ = s.repo.UpdateSessionStatus(
		ctx,
		sessionID,
		[]model.SessionStatus{model.SessionStatusEscalated},
		model.SessionStatusActive,
		&clearHandler,
		s.timestamp(),
		"",
	)
}
