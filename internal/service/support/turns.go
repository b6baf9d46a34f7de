package support

import (
	"context"
	"strings"

	"care-support-backend/internal/assistant"
	"care-support-backend/internal/model"
)

type SubmitTurnParams struct {
	SessionID string
	Text      string

	// Image carries an optional screenshot. When present the turn is
	// routed to the vision model. ImageRef is the client-side name kept on
	// the persisted message for transcript display.
	Image    []byte
	ImageRef string
}

type TurnResult struct {
	UserMessage model.MessageItem

	// Reply is the assistant message on a successful turn. Notice is the
	// system message persisted instead when the backend call failed, so
	// the transcript records the failure and the user can retry.
	Reply  *model.MessageItem
	Notice *model.MessageItem
	Failed bool
}

type turnOutcome struct {
	reply string
	err   error
}

// SubmitUserTurn runs one turn of the conversation. The user message is
// persisted synchronously, then the session is marked busy and the
// assistant call is handed to a worker. The worker only computes the
// completion; its single result is received here and applied under the
// session guard, so session state is never touched off the calling
// goroutine. While a turn is in flight, further turns on the same session
// are rejected with a conflict. A backend failure produces a system notice
// and re-enables the session; it never escalates and never retries on its
// own. Turns on an escalated session are persisted and relayed to the
// handler without invoking the assistant.
func (s *Service) SubmitUserTurn(ctx context.Context, params SubmitTurnParams) (TurnResult, error) {
	if params.SessionID == "" {
		return TurnResult{}, newError(ErrorCodeValidation, "session id is required", nil)
	}
	if strings.TrimSpace(params.Text) == "" && len(params.Image) == 0 {
		return TurnResult{}, newError(ErrorCodeValidation, "message text or image is required", nil)
	}

	g := s.guard(params.SessionID)
	g.mu.Lock()

	if g.busy {
		g.mu.Unlock()
		return TurnResult{}, newError(ErrorCodeConflict, "a response is already being generated for this session", nil)
	}

	session, err := s.repo.GetSession(ctx, params.SessionID)
	if err != nil {
		g.mu.Unlock()
		if err == ErrNotFound {
			return TurnResult{}, newError(ErrorCodeNotFound, "session not found", err)
		}
		return TurnResult{}, newError(ErrorCodeInternal, "failed to load session", err)
	}
	if session.Status == model.SessionStatusClosed {
		g.mu.Unlock()
		return TurnResult{}, newError(ErrorCodeConflict, "session is closed", nil)
	}

	userMsg := s.newMessage(params.SessionID, model.SenderUser, params.Text)
	userMsg.ImageRef = params.ImageRef
	if err := s.repo.AppendMessage(ctx, userMsg); err != nil {
		g.mu.Unlock()
		return TurnResult{}, newError(ErrorCodeInternal, "failed to persist message", err)
	}

	if session.Status == model.SessionStatusEscalated {
		g.mu.Unlock()
		return TurnResult{UserMessage: userMsg}, nil
	}

	g.busy = true
	g.mu.Unlock()

	history, herr := s.repo.ListMessages(ctx, params.SessionID, 0)
	if herr != nil {
		// The turn can still run on the prompt alone.
		history = []model.MessageItem{userMsg}
	}

	productContext := s.productContext(ctx, session.ProductID)

	done := make(chan turnOutcome, 1)
	prior := historyBefore(history, userMsg.MessageID)
	s.dispatch(func() {
		cctx, cancel := context.WithTimeout(context.Background(), s.turnTimeout)
		defer cancel()

		var reply string
		var err error
		if len(params.Image) > 0 {
			reply, err = s.backend.CompleteWithImage(cctx, params.Text, params.Image, prior, productContext)
		} else {
			reply, err = s.backend.Complete(cctx, params.Text, prior, productContext)
		}
		done <- turnOutcome{reply: reply, err: err}
	})

	out := <-done

	g.mu.Lock()
	defer g.mu.Unlock()
	g.busy = false

	if out.err != nil {
		notice := s.newMessage(params.SessionID, model.SenderSystem,
			"The assistant is temporarily unavailable. Please try again in a moment, or request a human agent.")
		if err := s.repo.AppendMessage(ctx, notice); err != nil {
			return TurnResult{}, newError(ErrorCodeInternal, "failed to persist failure notice", err)
		}
		return TurnResult{UserMessage: userMsg, Notice: &notice, Failed: true}, nil
	}

	reply := s.newMessage(params.SessionID, model.SenderAssistant, out.reply)
	if err := s.repo.AppendMessage(ctx, reply); err != nil {
		return TurnResult{}, newError(ErrorCodeInternal, "failed to persist assistant reply", err)
	}

	return TurnResult{UserMessage: userMsg, Reply: &reply}, nil
}

// SendHandlerMessage relays a human handler's message into an escalated
// session.
func (s *Service) SendHandlerMessage(ctx context.Context, sessionID, handlerID, text string) (model.MessageItem, error) {
	if sessionID == "" || handlerID == "" {
		return model.MessageItem{}, newError(ErrorCodeValidation, "session id and handler id are required", nil)
	}
	if strings.TrimSpace(text) == "" {
		return model.MessageItem{}, newError(ErrorCodeValidation, "message text is required", nil)
	}

	g := s.guard(sessionID)
	g.mu.Lock()
	defer g.mu.Unlock()

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if err == ErrNotFound {
			return model.MessageItem{}, newError(ErrorCodeNotFound, "session not found", err)
		}
		return model.MessageItem{}, newError(ErrorCodeInternal, "failed to load session", err)
	}
	if session.Status != model.SessionStatusEscalated {
		return model.MessageItem{}, newError(ErrorCodeConflict, "session is not escalated", nil)
	}

	msg := s.newMessage(sessionID, model.SenderHandler, text)
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return model.MessageItem{}, newError(ErrorCodeInternal, "failed to persist message", err)
	}
	return msg, nil
}

func (s *Service) productContext(ctx context.Context, productID string) string {
	if productID == "" {
		return assistant.BuildProductContext(nil)
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return assistant.BuildProductContext(nil)
	}
	return assistant.BuildProductContext(&product)
}

// historyBefore drops the just-persisted prompt (and anything after it)
// from the replayed history, since the prompt is sent separately.
func historyBefore(history []model.MessageItem, messageID string) []model.MessageItem {
	for i, msg := range history {
		if msg.MessageID == messageID {
			return history[:i]
		}
	}
	return history
}
