package support

import (
	"context"
	"fmt"

	"care-support-backend/internal/model"
)

func (s *Service) ListTickets(ctx context.Context, status model.TicketStatus, priority model.Priority, limit int) ([]model.TicketItem, error) {
	tickets, err := s.repo.ListTickets(ctx, status, priority, limit)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list tickets", err)
	}
	return tickets, nil
}

func (s *Service) GetTicket(ctx context.Context, sessionID string) (model.TicketItem, error) {
	if sessionID == "" {
		return model.TicketItem{}, newError(ErrorCodeValidation, "session id is required", nil)
	}
	ticket, err := s.repo.GetTicketBySession(ctx, sessionID)
	if err != nil {
		if err == ErrNotFound {
			return model.TicketItem{}, newError(ErrorCodeNotFound, "ticket not found", err)
		}
		return model.TicketItem{}, newError(ErrorCodeInternal, "failed to load ticket", err)
	}
	return ticket, nil
}

// AcknowledgeTicket marks an open ticket as being worked on.
func (s *Service) AcknowledgeTicket(ctx context.Context, sessionID, handlerID string) (model.TicketItem, error) {
	_, ticket, err := s.transitionTicket(ctx, sessionID, handlerID, model.TicketStatusInProgress)
	return ticket, err
}

// ResolveTicket completes the handler's work on a ticket. Resolution
// always produces a conversation-visible audit message naming the handler,
// so the user's transcript records who resolved their problem and when.
func (s *Service) ResolveTicket(ctx context.Context, sessionID, handlerID string) (model.TicketItem, error) {
	handler, ticket, err := s.transitionTicket(ctx, sessionID, handlerID, model.TicketStatusResolved)
	if err != nil {
		return model.TicketItem{}, err
	}

	audit := s.newMessage(sessionID, model.SenderSystem,
		fmt.Sprintf("Your support ticket has been resolved by %s.", handler.Name))
	if aerr := s.repo.AppendMessage(ctx, audit); aerr != nil {
		return model.TicketItem{}, newError(ErrorCodeInternal, "failed to persist resolution message", aerr)
	}
	return ticket, nil
}

// CloseTicket archives a resolved ticket.
func (s *Service) CloseTicket(ctx context.Context, sessionID, handlerID string) (model.TicketItem, error) {
	_, ticket, err := s.transitionTicket(ctx, sessionID, handlerID, model.TicketStatusClosed)
	return ticket, err
}

func (s *Service) transitionTicket(ctx context.Context, sessionID, handlerID string, to model.TicketStatus) (model.HandlerItem, model.TicketItem, error) {
	if sessionID == "" {
		return model.HandlerItem{}, model.TicketItem{}, newError(ErrorCodeValidation, "session id is required", nil)
	}
	if handlerID == "" {
		return model.HandlerItem{}, model.TicketItem{}, newError(ErrorCodeUnauthorized, "handler identity is required", nil)
	}

	handler, err := s.repo.GetHandler(ctx, handlerID)
	if err != nil {
		if err == ErrNotFound {
			return model.HandlerItem{}, model.TicketItem{}, newError(ErrorCodeUnauthorized, "unknown handler", err)
		}
		return model.HandlerItem{}, model.TicketItem{}, newError(ErrorCodeInternal, "failed to load handler", err)
	}

	g := s.guard(sessionID)
	g.mu.Lock()
	defer g.mu.Unlock()

	ticket, err := s.repo.GetTicketBySession(ctx, sessionID)
	if err != nil {
		if err == ErrNotFound {
			return model.HandlerItem{}, model.TicketItem{}, newError(ErrorCodeNotFound, "ticket not found", err)
		}
		return model.HandlerItem{}, model.TicketItem{}, newError(ErrorCodeInternal, "failed to load ticket", err)
	}

	if !CanTransitionTicket(ticket.Status, to) {
		return model.HandlerItem{}, model.TicketItem{}, newError(ErrorCodeInvalidTransition,
			fmt.Sprintf("cannot move a %s ticket to %s", ticket.Status, to), nil)
	}

	now := s.timestamp()
	resolvedAt := ""
	if to == model.TicketStatusResolved {
		resolvedAt = now
	}

	err = s.repo.UpdateTicketStatus(ctx, sessionID, ticketSources(to), to, now, resolvedAt)
	if err != nil {
		if err == ErrConflict {
			return model.HandlerItem{}, model.TicketItem{}, newError(ErrorCodeInvalidTransition,
				fmt.Sprintf("ticket is no longer %s", ticket.Status), err)
		}
		return model.HandlerItem{}, model.TicketItem{}, newError(ErrorCodeInternal, "failed to update ticket", err)
	}

	ticket.Status = to
	ticket.UpdatedAt = now
	if resolvedAt != "" {
		ticket.ResolvedAt = resolvedAt
	}
	return handler, ticket, nil
}
