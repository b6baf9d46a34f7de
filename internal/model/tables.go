package model

import "fmt"

const (
	SessionsTable = "ChatSessions"
	MessagesTable = "Messages"
	TicketsTable  = "Tickets"
	ProductsTable = "Products"
	HandlersTable = "Handlers"
)

// SessionPK is the partition key of the ChatSessions table.
func SessionPK(sessionID string) string {
	return sessionID
}

// MessagePK keeps messages unique per session while the bySession index
// serves ordered reads.
func MessagePK(sessionID, messageID string) string {
	return fmt.Sprintf("%s#%s", sessionID, messageID)
}

// TicketPK is the owning session id. Keying tickets by session id is what
// lets a conditional put enforce the one-ticket-per-session invariant at
// the store layer.
func TicketPK(sessionID string) string {
	return sessionID
}
