package support

import (
	"testing"

	"care-support-backend/internal/model"
)

func TestSessionTransitions(t *testing.T) {
	allowed := [][2]model.SessionStatus{
		{model.SessionStatusActive, model.SessionStatusEscalated},
		{model.SessionStatusActive, model.SessionStatusClosed},
		{model.SessionStatusEscalated, model.SessionStatusClosed},
	}
	for _, pair := range allowed {
		if !CanTransitionSession(pair[0], pair[1]) {
			t.Errorf("expected %s -> %s to be allowed", pair[0], pair[1])
		}
	}

	denied := [][2]model.SessionStatus{
		{model.SessionStatusEscalated, model.SessionStatusActive},
		{model.SessionStatusClosed, model.SessionStatusActive},
		{model.SessionStatusClosed, model.SessionStatusEscalated},
		{model.SessionStatusClosed, model.SessionStatusClosed},
	}
	for _, pair := range denied {
		if CanTransitionSession(pair[0], pair[1]) {
			t.Errorf("expected %s -> %s to be denied", pair[0], pair[1])
		}
	}
}

func TestTicketTransitions(t *testing.T) {
	allowed := [][2]model.TicketStatus{
		{model.TicketStatusOpen, model.TicketStatusInProgress},
		{model.TicketStatusOpen, model.TicketStatusResolved},
		{model.TicketStatusInProgress, model.TicketStatusResolved},
		{model.TicketStatusResolved, model.TicketStatusClosed},
	}
	for _, pair := range allowed {
		if !CanTransitionTicket(pair[0], pair[1]) {
			t.Errorf("expected %s -> %s to be allowed", pair[0], pair[1])
		}
	}

	denied := [][2]model.TicketStatus{
		{model.TicketStatusOpen, model.TicketStatusClosed},
		{model.TicketStatusInProgress, model.TicketStatusClosed},
		{model.TicketStatusResolved, model.TicketStatusInProgress},
		{model.TicketStatusClosed, model.TicketStatusResolved},
		{model.TicketStatusClosed, model.TicketStatusOpen},
	}
	for _, pair := range denied {
		if CanTransitionTicket(pair[0], pair[1]) {
			t.Errorf("expected %s -> %s to be denied", pair[0], pair[1])
		}
	}
}

func TestTicketSources(t *testing.T) {
	sources := ticketSources(model.TicketStatusResolved)
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources for resolved, got %v", sources)
	}
	seen := map[model.TicketStatus]bool{}
	for _, s := range sources {
		seen[s] = true
	}
	if !seen[model.TicketStatusOpen] || !seen[model.TicketStatusInProgress] {
		t.Fatalf("unexpected sources %v", sources)
	}
}
