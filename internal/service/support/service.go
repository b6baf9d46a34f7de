package support

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"care-support-backend/internal/assistant"
	"care-support-backend/internal/database"
	"care-support-backend/internal/model"
	"care-support-backend/internal/queue"
)

const defaultTurnTimeout = 60 * time.Second

const welcomeMessage = "Hello! I'm your support assistant. Ask me anything " +
	"about your product, or request a human agent at any time."

// Service orchestrates support sessions: the assistant response pipeline,
// escalation to human handlers, and the ticket lifecycle. All mutations of
// a session happen under that session's guard, so concurrent requests
// against the same session serialize here before they reach the store.
type Service struct {
	repo        Repository
	backend     assistant.Backend
	now         func() time.Time
	turnTimeout time.Duration

	// dispatch hands the assistant call to a worker. The worker only
	// computes; results are applied by the caller under the session guard.
	dispatch func(fn func())

	guards sync.Map // sessionID -> *sessionGuard
}

type sessionGuard struct {
	mu   sync.Mutex
	busy bool
}

func New(db *database.Database, backend assistant.Backend, assistantQueue *queue.RequestQueueManager) *Service {
	s := NewWithRepository(NewDynamoRepository(db), backend, time.Now)
	s.UseDispatchQueue(assistantQueue)
	return s
}

// UseDispatchQueue routes assistant calls onto q instead of ad-hoc
// goroutines. q must be a pool of its own, never the one serving HTTP
// requests: SubmitUserTurn blocks its calling worker until the dispatched
// job completes, so sharing a pool lets concurrent turns occupy every
// worker while their assistant jobs sit unrunnable behind them.
func (s *Service) UseDispatchQueue(q *queue.RequestQueueManager) {
	if q == nil {
		return
	}
	s.dispatch = func(fn func()) {
		q.EnqueueJob(queue.Job{Fn: func() error {
			fn()
			return nil
		}})
	}
}

func NewWithRepository(repo Repository, backend assistant.Backend, now func() time.Time) *Service {
	return &Service{
		repo:        repo,
		backend:     backend,
		now:         now,
		turnTimeout: defaultTurnTimeout,
		dispatch:    func(fn func()) { go fn() },
	}
}

func (s *Service) guard(sessionID string) *sessionGuard {
	v, _ := s.guards.LoadOrStore(sessionID, &sessionGuard{})
	return v.(*sessionGuard)
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *Service) newMessage(sessionID string, sender model.SenderRole, body string) model.MessageItem {
	id := uuid.NewString()
	return model.MessageItem{
		PK:        model.MessagePK(sessionID, id),
		SessionID: sessionID,
		MessageID: id,
		Sender:    sender,
		Body:      body,
		CreatedAt: s.timestamp(),
	}
}

type StartSessionResult struct {
	Session model.SessionItem
	Welcome model.MessageItem
}

// StartSession opens a new active session for userID, optionally bound to
// a product whose knowledge base will ground the assistant. The opening
// assistant greeting is persisted as the first message so reconnecting
// clients replay a complete transcript.
func (s *Service) StartSession(ctx context.Context, userID, productID string) (StartSessionResult, error) {
	if strings.TrimSpace(userID) == "" {
		return StartSessionResult{}, newError(ErrorCodeValidation, "user id is required", nil)
	}

	if productID != "" {
		if _, err := s.repo.GetProduct(ctx, productID); err != nil {
			if err == ErrNotFound {
				return StartSessionResult{}, newError(ErrorCodeNotFound, "product not found", err)
			}
			return StartSessionResult{}, newError(ErrorCodeInternal, "failed to load product", err)
		}
	}

	now := s.timestamp()
	sessionID := uuid.NewString()
	session := model.SessionItem{
		PK:        model.SessionPK(sessionID),
		SessionID: sessionID,
		UserID:    userID,
		ProductID: productID,
		Status:    model.SessionStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return StartSessionResult{}, newError(ErrorCodeInternal, "failed to create session", err)
	}

	welcome := s.newMessage(session.SessionID, model.SenderAssistant, welcomeMessage)
	if err := s.repo.AppendMessage(ctx, welcome); err != nil {
		return StartSessionResult{}, newError(ErrorCodeInternal, "failed to persist welcome message", err)
	}

	return StartSessionResult{Session: session, Welcome: welcome}, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (model.SessionItem, error) {
	if sessionID == "" {
		return model.SessionItem{}, newError(ErrorCodeValidation, "session id is required", nil)
	}
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if err == ErrNotFound {
			return model.SessionItem{}, newError(ErrorCodeNotFound, "session not found", err)
		}
		return model.SessionItem{}, newError(ErrorCodeInternal, "failed to load session", err)
	}
	return session, nil
}

func (s *Service) ListSessionsForUser(ctx context.Context, userID string, limit int) ([]model.SessionItem, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newError(ErrorCodeValidation, "user id is required", nil)
	}
	sessions, err := s.repo.ListSessionsByUser(ctx, userID, limit)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list sessions", err)
	}
	return sessions, nil
}

func (s *Service) ListMessages(ctx context.Context, sessionID string, limit int) ([]model.MessageItem, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	messages, err := s.repo.ListMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list messages", err)
	}
	return messages, nil
}

// EndSession closes the session from the user side. Closing is allowed
// from active and escalated states; a closed session stays closed.
func (s *Service) EndSession(ctx context.Context, sessionID string) (model.SessionItem, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return model.SessionItem{}, err
	}

	g := s.guard(sessionID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if !CanTransitionSession(session.Status, model.SessionStatusClosed) {
		return model.SessionItem{}, newError(ErrorCodeInvalidTransition, "session is already closed", nil)
	}

	now := s.timestamp()
	err = s.repo.UpdateSessionStatus(
		ctx,
		sessionID,
		[]model.SessionStatus{model.SessionStatusActive, model.SessionStatusEscalated},
		model.SessionStatusClosed,
		nil,
		now,
		now,
	)
	if err != nil {
		if err == ErrConflict {
			return model.SessionItem{}, newError(ErrorCodeInvalidTransition, "session is already closed", err)
		}
		return model.SessionItem{}, newError(ErrorCodeInternal, "failed to close session", err)
	}

	farewell := s.newMessage(sessionID, model.SenderSystem, "The session has ended.")
	if err := s.repo.AppendMessage(ctx, farewell); err != nil {
		return model.SessionItem{}, newError(ErrorCodeInternal, "failed to persist closing message", err)
	}

	session.Status = model.SessionStatusClosed
	session.UpdatedAt = now
	session.ClosedAt = now
	return session, nil
}
