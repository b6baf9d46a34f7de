package dto

type SessionMetadata struct {
	SessionID         string `json:"sessionId"`
	UserID            string `json:"userId"`
	ProductID         string `json:"productId,omitempty"`
	Status            string `json:"status"`
	AssignedHandlerID string `json:"assignedHandlerId,omitempty"`
	CreatedAt         string `json:"createdAt"`
	UpdatedAt         string `json:"updatedAt"`
	ClosedAt          string `json:"closedAt,omitempty"`
}

type MessageResponse struct {
	MessageID string `json:"messageId"`
	SessionID string `json:"sessionId"`
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	ImageRef  string `json:"imageRef,omitempty"`
	CreatedAt string `json:"createdAt"`
}

type TicketResponse struct {
	TicketID          string `json:"ticketId"`
	SessionID         string `json:"sessionId"`
	AssignedHandlerID string `json:"assignedHandlerId,omitempty"`
	Priority          string `json:"priority"`
	Status            string `json:"status"`
	CreatedAt         string `json:"createdAt"`
	UpdatedAt         string `json:"updatedAt"`
	ResolvedAt        string `json:"resolvedAt,omitempty"`
}

type StartSessionRequest struct {
	UserID    string `json:"userId"`
	ProductID string `json:"productId,omitempty"`
}

type StartSessionResponse struct {
	Session SessionMetadata `json:"session"`
	Welcome MessageResponse `json:"welcome"`
}

// SubmitTurnRequest carries one user turn. ImageBase64 holds an optional
// screenshot; when present the turn is answered by the vision model.
type SubmitTurnRequest struct {
	Text        string `json:"text"`
	ImageBase64 string `json:"imageBase64,omitempty"`
	ImageRef    string `json:"imageRef,omitempty"`
}

type TurnResponse struct {
	UserMessage MessageResponse  `json:"userMessage"`
	Reply       *MessageResponse `json:"reply,omitempty"`
	Notice      *MessageResponse `json:"notice,omitempty"`
	Failed      bool             `json:"failed"`
}

type EscalateRequest struct {
	HandlerID string `json:"handlerId,omitempty"`
}

type EscalationResponse struct {
	Session          SessionMetadata `json:"session"`
	Ticket           TicketResponse  `json:"ticket"`
	AlreadyEscalated bool            `json:"alreadyEscalated"`
}

type HandlerMessageRequest struct {
	Text string `json:"text"`
}

type ListMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

type ListSessionsResponse struct {
	Sessions []SessionMetadata `json:"sessions"`
}

type ListTicketsResponse struct {
	Tickets []TicketResponse `json:"tickets"`
}
