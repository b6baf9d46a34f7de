package support

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"care-support-backend/internal/model"
	"care-support-backend/internal/queue"
)

type memoryRepository struct {
	mu       sync.Mutex
	sessions map[string]model.SessionItem
	messages map[string][]model.MessageItem
	tickets  map[string]model.TicketItem
	products map[string]model.ProductItem
	handlers map[string]model.HandlerItem

	ticketErr error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		sessions: make(map[string]model.SessionItem),
		messages: make(map[string][]model.MessageItem),
		tickets:  make(map[string]model.TicketItem),
		products: make(map[string]model.ProductItem),
		handlers: make(map[string]model.HandlerItem),
	}
}

func (m *memoryRepository) CreateSession(ctx context.Context, session model.SessionItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.PK]; ok {
		return ErrAlreadyExists
	}
	m.sessions[session.PK] = session
	return nil
}

func (m *memoryRepository) GetSession(ctx context.Context, sessionID string) (model.SessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[model.SessionPK(sessionID)]
	if !ok {
		return model.SessionItem{}, ErrNotFound
	}
	return session, nil
}

func (m *memoryRepository) ListSessionsByUser(ctx context.Context, userID string, limit int) ([]model.SessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]model.SessionItem, 0)
	for _, s := range m.sessions {
		if s.UserID == userID {
			items = append(items, s)
		}
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memoryRepository) UpdateSessionStatus(ctx context.Context, sessionID string, expect []model.SessionStatus, to model.SessionStatus, handlerID *string, updatedAt, closedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := model.SessionPK(sessionID)
	session, ok := m.sessions[pk]
	if !ok {
		return ErrNotFound
	}
	allowed := false
	for _, status := range expect {
		if session.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrConflict
	}
	session.Status = to
	session.UpdatedAt = updatedAt
	if handlerID != nil {
		session.AssignedHandlerID = *handlerID
	}
	if closedAt != "" {
		session.ClosedAt = closedAt
	}
	m.sessions[pk] = session
	return nil
}

func (m *memoryRepository) AppendMessage(ctx context.Context, message model.MessageItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[message.SessionID] = append(m.messages[message.SessionID], message)
	return nil
}

func (m *memoryRepository) ListMessages(ctx context.Context, sessionID string, limit int) ([]model.MessageItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := append([]model.MessageItem(nil), m.messages[sessionID]...)
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items, nil
}

func (m *memoryRepository) CreateTicket(ctx context.Context, ticket model.TicketItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ticketErr != nil {
		return m.ticketErr
	}
	if _, ok := m.tickets[ticket.PK]; ok {
		return ErrAlreadyExists
	}
	m.tickets[ticket.PK] = ticket
	return nil
}

func (m *memoryRepository) GetTicketBySession(ctx context.Context, sessionID string) (model.TicketItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, ok := m.tickets[model.TicketPK(sessionID)]
	if !ok {
		return model.TicketItem{}, ErrNotFound
	}
	return ticket, nil
}

func (m *memoryRepository) ListTickets(ctx context.Context, status model.TicketStatus, priority model.Priority, limit int) ([]model.TicketItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]model.TicketItem, 0)
	for _, t := range m.tickets {
		if status != "" && t.Status != status {
			continue
		}
		if priority != "" && t.Priority != priority {
			continue
		}
		items = append(items, t)
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memoryRepository) UpdateTicketStatus(ctx context.Context, sessionID string, expect []model.TicketStatus, to model.TicketStatus, updatedAt, resolvedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := model.TicketPK(sessionID)
	ticket, ok := m.tickets[pk]
	if !ok {
		return ErrNotFound
	}
	allowed := false
	for _, status := range expect {
		if ticket.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrConflict
	}
	ticket.Status = to
	ticket.UpdatedAt = updatedAt
	if resolvedAt != "" {
		ticket.ResolvedAt = resolvedAt
	}
	m.tickets[pk] = ticket
	return nil
}

func (m *memoryRepository) GetProduct(ctx context.Context, productID string) (model.ProductItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[productID]
	if !ok {
		return model.ProductItem{}, ErrNotFound
	}
	return product, nil
}

func (m *memoryRepository) GetHandler(ctx context.Context, handlerID string) (model.HandlerItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handler, ok := m.handlers[handlerID]
	if !ok {
		return model.HandlerItem{}, ErrNotFound
	}
	return handler, nil
}

type fakeBackend struct {
	mu          sync.Mutex
	reply       string
	err         error
	calls       int
	visionCalls int

	// When set, Complete blocks: it closes started once and then waits for
	// release. Used to hold a turn in flight.
	started chan struct{}
	release chan struct{}
}

func (f *fakeBackend) Complete(ctx context.Context, prompt string, history []model.MessageItem, productContext string) (string, error) {
	f.mu.Lock()
	f.calls++
	started, release := f.started, f.release
	f.started = nil
	f.mu.Unlock()

	if started != nil {
		close(started)
		<-release
	}
	return f.reply, f.err
}

func (f *fakeBackend) CompleteWithImage(ctx context.Context, prompt string, image []byte, history []model.MessageItem, productContext string) (string, error) {
	f.mu.Lock()
	f.visionCalls++
	f.mu.Unlock()
	return f.reply, f.err
}

func newTestService(repo *memoryRepository, backend *fakeBackend) *Service {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return NewWithRepository(repo, backend, func() time.Time { return now })
}

func mustStartSession(t *testing.T, svc *Service, userID string) model.SessionItem {
	t.Helper()
	result, err := svc.StartSession(context.Background(), userID, "")
	if err != nil {
		t.Fatalf("StartSession error: %v", err)
	}
	return result.Session
}

func TestStartSessionPersistsWelcome(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo, &fakeBackend{reply: "hi"})

	result, err := svc.StartSession(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("StartSession error: %v", err)
	}
	if result.Session.Status != model.SessionStatusActive {
		t.Fatalf("expected active session, got %s", result.Session.Status)
	}

	messages := repo.messages[result.Session.SessionID]
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].Sender != model.SenderAssistant {
		t.Fatalf("expected assistant welcome, got %s", messages[0].Sender)
	}
}

func TestStartSessionUnknownProduct(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo, &fakeBackend{})

	_, err := svc.StartSession(context.Background(), "user-1", "missing-product")
	svcErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %v", err)
	}
	if svcErr.Code != ErrorCodeNotFound {
		t.Fatalf("expected not_found, got %s", svcErr.Code)
	}
}

func TestSubmitUserTurnAppendsReply(t *testing.T) {
	repo := newMemoryRepository()
	backend := &fakeBackend{reply: "Try restarting the router."}
	svc := newTestService(repo, backend)
	session := mustStartSession(t, svc, "user-1")

	result, err := svc.SubmitUserTurn(context.Background(), SubmitTurnParams{
		SessionID: session.SessionID,
		Text:      "My wifi keeps dropping",
	})
	if err != nil {
		t.Fatalf("SubmitUserTurn error: %v", err)
	}
	if result.Failed {
		t.Fatal("expected successful turn")
	}
	if result.Reply == nil || result.Reply.Body != "Try restarting the router." {
		t.Fatalf("unexpected reply %+v", result.Reply)
	}

	messages := repo.messages[session.SessionID]
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[1].Sender != model.SenderUser || messages[2].Sender != model.SenderAssistant {
		t.Fatalf("unexpected message order: %s then %s", messages[1].Sender, messages[2].Sender)
	}
}

func TestSubmitUserTurnBackendFailure(t *testing.T) {
	repo := newMemoryRepository()
	backend := &fakeBackend{err: errors.New("upstream timeout")}
	svc := newTestService(repo, backend)
	session := mustStartSession(t, svc, "user-1")

	result, err := svc.SubmitUserTurn(context.Background(), SubmitTurnParams{
		SessionID: session.SessionID,
		Text:      "Hello?",
	})
	if err != nil {
		t.Fatalf("SubmitUserTurn error: %v", err)
	}
	if !result.Failed || result.Notice == nil {
		t.Fatalf("expected failed turn with notice, got %+v", result)
	}

	messages := repo.messages[session.SessionID]
	// welcome, user message, system notice; no assistant reply.
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[2].Sender != model.SenderSystem {
		t.Fatalf("expected system notice, got %s", messages[2].Sender)
	}
	if session, _ := repo.GetSession(context.Background(), session.SessionID); session.Status != model.SessionStatusActive {
		t.Fatalf("backend failure must not change session status, got %s", session.Status)
	}

	// The session is interactive again.
	backend.err = nil
	backend.reply = "Back online."
	result, err = svc.SubmitUserTurn(context.Background(), SubmitTurnParams{
		SessionID: session.SessionID,
		Text:      "Still there?",
	})
	if err != nil {
		t.Fatalf("SubmitUserTurn after failure error: %v", err)
	}
	if result.Failed {
		t.Fatal("expected recovery after backend came back")
	}
}

func TestSubmitUserTurnRejectsWhileBusy(t *testing.T) {
	repo := newMemoryRepository()
	backend := &fakeBackend{
		reply:   "done",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	started := backend.started
	svc := newTestService(repo, backend)
	session := mustStartSession(t, svc, "user-1")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.SubmitUserTurn(context.Background(), SubmitTurnParams{
			SessionID: session.SessionID,
			Text:      "first",
		})
		if err != nil {
			t.Errorf("first turn error: %v", err)
		}
	}()

	<-started

	_, err := svc.SubmitUserTurn(context.Background(), SubmitTurnParams{
		SessionID: session.SessionID,
		Text:      "second",
	})
	svcErr, ok := err.(*Error)
	if !ok || svcErr.Code != ErrorCodeConflict {
		t.Fatalf("expected conflict while busy, got %v", err)
	}

	close(backend.release)
	wg.Wait()

	// First turn finished; the session accepts turns again.
	if _, err := svc.SubmitUserTurn(context.Background(), SubmitTurnParams{
		SessionID: session.SessionID,
		Text:      "third",
	}); err != nil {
		t.Fatalf("turn after completion error: %v", err)
	}
}

func TestSubmitUserTurnClosedSession(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo, &fakeBackend{})
	session := mustStartSession(t, svc, "user-1")

	if _, err := svc.EndSession(context.Background(), session.SessionID); err != nil {
		t.Fatalf("EndSession error: %v", err)
	}

	_, err := svc.SubmitUserTurn(context.Background(), SubmitTurnParams{
		SessionID: session.SessionID,
		Text:      "anyone?",
	})
	svcErr, ok := err.(*Error)
	if !ok || svcErr.Code != ErrorCodeConflict {
		t.Fatalf("expected conflict on closed session, got %v", err)
	}
}

func TestSubmitUserTurnEscalatedSkipsBackend(t *testing.T) {
	repo := newMemoryRepository()
	repo.handlers["handler-1"] = model.HandlerItem{HandlerID: "handler-1", Name: "Dana"}
	backend := &fakeBackend{reply: "should not be used"}
	svc := newTestService(repo, backend)
	session := mustStartSession(t, svc, "user-1")

	if _, err := svc.Escalate(context.Background(), session.SessionID, "handler-1"); err != nil {
		t.Fatalf("Escalate error: %v", err)
	}

	result, err := svc.SubmitUserTurn(context.Background(), SubmitTurnParams{
		SessionID: session.SessionID,
		Text:      "are you there?",
	})
	if err != nil {
		t.Fatalf("SubmitUserTurn error: %v", err)
	}
	if result.Reply != nil {
		t.Fatal("assistant must not reply on an escalated session")
	}
	if backend.calls != 0 {
		t.Fatalf("expected no backend calls, got %d", backend.calls)
	}
}

func TestSubmitUserTurnRoutesImageToVision(t *testing.T) {
	repo := newMemoryRepository()
	backend := &fakeBackend{reply: "That error dialog means the disk is full."}
	svc := newTestService(repo, backend)
	session := mustStartSession(t, svc, "user-1")

	result, err := svc.SubmitUserTurn(context.Background(), SubmitTurnParams{
		SessionID: session.SessionID,
		Text:      "What does this mean?",
		Image:     []byte{0x89, 0x50, 0x4e, 0x47},
		ImageRef:  "screenshot.png",
	})
	if err != nil {
		t.Fatalf("SubmitUserTurn error: %v", err)
	}
	if backend.visionCalls != 1 || backend.calls != 0 {
		t.Fatalf("expected one vision call, got vision=%d text=%d", backend.visionCalls, backend.calls)
	}
	if result.UserMessage.ImageRef != "screenshot.png" {
		t.Fatalf("expected image ref on persisted message, got %q", result.UserMessage.ImageRef)
	}
}

func TestSubmitUserTurnValidation(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo, &fakeBackend{})
	session := mustStartSession(t, svc, "user-1")

	_, err := svc.SubmitUserTurn(context.Background(), SubmitTurnParams{
		SessionID: session.SessionID,
		Text:      "   ",
	})
	svcErr, ok := err.(*Error)
	if !ok || svcErr.Code != ErrorCodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.messages[session.SessionID]) != 1 {
		t.Fatal("rejected turn must not persist a message")
	}
}

func TestEndSessionTwice(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo, &fakeBackend{})
	session := mustStartSession(t, svc, "user-1")

	closed, err := svc.EndSession(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("EndSession error: %v", err)
	}
	if closed.Status != model.SessionStatusClosed || closed.ClosedAt == "" {
		t.Fatalf("unexpected closed session %+v", closed)
	}

	_, err = svc.EndSession(context.Background(), session.SessionID)
	svcErr, ok := err.(*Error)
	if !ok || svcErr.Code != ErrorCodeInvalidTransition {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestSubmitUserTurnImageOnly(t *testing.T) {
	repo := newMemoryRepository()
	backend := &fakeBackend{reply: "That screenshot shows a full disk."}
	svc := newTestService(repo, backend)
	session := mustStartSession(t, svc, "user-1")

	result, err := svc.SubmitUserTurn(context.Background(), SubmitTurnParams{
		SessionID: session.SessionID,
		Image:     []byte{0x89, 0x50, 0x4e, 0x47},
		ImageRef:  "screenshot.png",
	})
	if err != nil {
		t.Fatalf("SubmitUserTurn error: %v", err)
	}
	if backend.visionCalls != 1 || backend.calls != 0 {
		t.Fatalf("expected one vision call, got vision=%d text=%d", backend.visionCalls, backend.calls)
	}
	if result.Reply == nil || result.Reply.Body != "That screenshot shows a full disk." {
		t.Fatalf("unexpected reply %+v", result.Reply)
	}
	if result.UserMessage.ImageRef != "screenshot.png" {
		t.Fatalf("expected image ref on persisted message, got %q", result.UserMessage.ImageRef)
	}
}

// Turns submitted from a bounded caller pool must still complete when the
// assistant runs on its own queue: submitters block until their dispatched
// job finishes, so the two must never share workers.
func TestQueuedDispatchDoesNotStarveSubmitters(t *testing.T) {
	repo := newMemoryRepository()
	backend := &fakeBackend{reply: "ok"}
	svc := newTestService(repo, backend)

	assistantQueue := queue.NewRequestQueueManager(16, 2)
	t.Cleanup(assistantQueue.Shutdown)
	svc.UseDispatchQueue(assistantQueue)

	callerPool := queue.NewRequestQueueManager(16, 8)
	t.Cleanup(callerPool.Shutdown)

	const turns = 8
	errc := make(chan error, turns)
	for i := 0; i < turns; i++ {
		session := mustStartSession(t, svc, "user-1")
		callerPool.EnqueueJob(queue.Job{
			Fn: func() error {
				_, err := svc.SubmitUserTurn(context.Background(), SubmitTurnParams{
					SessionID: session.SessionID,
					Text:      "hello",
				})
				return err
			},
			Errc: errc,
		})
	}

	timeout := time.After(10 * time.Second)
	for i := 0; i < turns; i++ {
		select {
		case err := <-errc:
			if err != nil {
				t.Fatalf("turn error: %v", err)
			}
		case <-timeout:
			t.Fatal("turns did not complete; callers are starving the dispatch workers")
		}
	}
	if backend.calls != turns {
		t.Fatalf("expected %d backend calls, got %d", turns, backend.calls)
	}
}

// Widget and console operations on the same session go through one shared
// service, so racing EndSession and ResolveTicket serialize on the session
// guard and both land.
func TestEndSessionAndResolveTicketSerialize(t *testing.T) {
	repo := newMemoryRepository()
	repo.handlers["handler-1"] = model.HandlerItem{HandlerID: "handler-1", Name: "Dana"}
	svc := newTestService(repo, &fakeBackend{})
	session := mustStartSession(t, svc, "user-1")

	if _, err := svc.Escalate(context.Background(), session.SessionID, "handler-1"); err != nil {
		t.Fatalf("Escalate error: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := svc.EndSession(context.Background(), session.SessionID); err != nil {
			t.Errorf("EndSession error: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := svc.ResolveTicket(context.Background(), session.SessionID, "handler-1"); err != nil {
			t.Errorf("ResolveTicket error: %v", err)
		}
	}()
	wg.Wait()

	stored, err := repo.GetSession(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("GetSession error: %v", err)
	}
	if stored.Status != model.SessionStatusClosed {
		t.Fatalf("expected closed session, got %s", stored.Status)
	}
	ticket, err := repo.GetTicketBySession(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("GetTicketBySession error: %v", err)
	}
	if ticket.Status != model.TicketStatusResolved {
		t.Fatalf("expected resolved ticket, got %s", ticket.Status)
	}

	var sawEnded, sawResolved bool
	for _, msg := range repo.messages[session.SessionID] {
		if msg.Sender != model.SenderSystem {
			continue
		}
		if strings.Contains(msg.Body, "ended") {
			sawEnded = true
		}
		if strings.Contains(msg.Body, "resolved by Dana") {
			sawResolved = true
		}
	}
	if !sawEnded || !sawResolved {
		t.Fatalf("expected both system messages, got ended=%v resolved=%v", sawEnded, sawResolved)
	}
}

func TestSendHandlerMessageRequiresEscalation(t *testing.T) {
	repo := newMemoryRepository()
	repo.handlers["handler-1"] = model.HandlerItem{HandlerID: "handler-1", Name: "Dana"}
	svc := newTestService(repo, &fakeBackend{})
	session := mustStartSession(t, svc, "user-1")

	_, err := svc.SendHandlerMessage(context.Background(), session.SessionID, "handler-1", "Hi, I can help")
	svcErr, ok := err.(*Error)
	if !ok || svcErr.Code != ErrorCodeConflict {
		t.Fatalf("expected conflict on non-escalated session, got %v", err)
	}

	if _, err := svc.Escalate(context.Background(), session.SessionID, "handler-1"); err != nil {
		t.Fatalf("Escalate error: %v", err)
	}
	msg, err := svc.SendHandlerMessage(context.Background(), session.SessionID, "handler-1", "Hi, I can help")
	if err != nil {
		t.Fatalf("SendHandlerMessage error: %v", err)
	}
	if msg.Sender != model.SenderHandler {
		t.Fatalf("expected handler sender, got %s", msg.Sender)
	}
}
