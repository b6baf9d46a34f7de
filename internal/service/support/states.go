package support

import "care-support-backend/internal/model"

// Session lifecycle: active -> escalated -> closed, or active -> closed
// when the user ends the chat before any escalation. Closed is terminal.
var sessionTransitions = map[model.SessionStatus][]model.SessionStatus{
	model.SessionStatusActive:    {model.SessionStatusEscalated, model.SessionStatusClosed},
	model.SessionStatusEscalated: {model.SessionStatusClosed},
	model.SessionStatusClosed:    {},
}

// Ticket lifecycle: open -> in_progress -> resolved -> closed, with
// open -> resolved allowed so a handler can resolve without acknowledging
// first. Closed is terminal.
var ticketTransitions = map[model.TicketStatus][]model.TicketStatus{
	model.TicketStatusOpen:       {model.TicketStatusInProgress, model.TicketStatusResolved},
	model.TicketStatusInProgress: {model.TicketStatusResolved},
	model.TicketStatusResolved:   {model.TicketStatusClosed},
	model.TicketStatusClosed:     {},
}

func CanTransitionSession(from, to model.SessionStatus) bool {
	for _, allowed := range sessionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func CanTransitionTicket(from, to model.TicketStatus) bool {
	for _, allowed := range ticketTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ticketSources lists every status a ticket may move to target from. It is
// what the guarded store update asserts, so a transition that lost a race
// is rejected by the store rather than applied twice.
func ticketSources(target model.TicketStatus) []model.TicketStatus {
	var sources []model.TicketStatus
	for from, allowed := range ticketTransitions {
		for _, to := range allowed {
			if to == target {
				sources = append(sources, from)
			}
		}
	}
	return sources
}
