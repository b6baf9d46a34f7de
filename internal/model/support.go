package model

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusEscalated SessionStatus = "escalated"
	SessionStatusClosed    SessionStatus = "closed"
)

type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

type SenderRole string

const (
	SenderUser      SenderRole = "user"
	SenderAssistant SenderRole = "assistant"
	SenderHandler   SenderRole = "handler"
	SenderSystem    SenderRole = "system"
)

type SessionItem struct {
	PK                string        `dynamodbav:"pk"`
	SessionID         string        `dynamodbav:"sessionId"`
	UserID            string        `dynamodbav:"userId"`
	ProductID         string        `dynamodbav:"productId,omitempty"`
	Status            SessionStatus `dynamodbav:"status"`
	AssignedHandlerID string        `dynamodbav:"assignedHandlerId,omitempty"`
	CreatedAt         string        `dynamodbav:"createdAt"`
	UpdatedAt         string        `dynamodbav:"updatedAt"`
	ClosedAt          string        `dynamodbav:"closedAt,omitempty"`
}

type MessageItem struct {
	PK        string     `dynamodbav:"pk"`
	SessionID string     `dynamodbav:"sessionId"`
	MessageID string     `dynamodbav:"messageId"`
	Sender    SenderRole `dynamodbav:"sender"`
	Body      string     `dynamodbav:"body"`
	ImageRef  string     `dynamodbav:"imageRef,omitempty"`
	CreatedAt string     `dynamodbav:"createdAt"`
}

type TicketItem struct {
	PK                string       `dynamodbav:"pk"`
	TicketID          string       `dynamodbav:"ticketId"`
	SessionID         string       `dynamodbav:"sessionId"`
	AssignedHandlerID string       `dynamodbav:"assignedHandlerId,omitempty"`
	Priority          Priority     `dynamodbav:"priority"`
	Status            TicketStatus `dynamodbav:"status"`
	CreatedAt         string       `dynamodbav:"createdAt"`
	UpdatedAt         string       `dynamodbav:"updatedAt"`
	ResolvedAt        string       `dynamodbav:"resolvedAt,omitempty"`
}

// ProductItem carries the product record plus its knowledge-base content,
// which grounds the assistant prompt for sessions opened against it.
type ProductItem struct {
	ProductID    string `dynamodbav:"productId"`
	Name         string `dynamodbav:"name"`
	ModelVersion string `dynamodbav:"modelVersion,omitempty"`
	Category     string `dynamodbav:"category,omitempty"`
	KBContent    string `dynamodbav:"kbContent,omitempty"`
}

type HandlerItem struct {
	HandlerID string `dynamodbav:"handlerId"`
	Name      string `dynamodbav:"name"`
	Email     string `dynamodbav:"email,omitempty"`
	Status    string `dynamodbav:"status,omitempty"`
	CreatedAt string `dynamodbav:"createdAt"`
}
