package support

import (
	"strings"

	"care-support-backend/internal/model"
)

// priorityWindow bounds how far back the classifier looks. Only the most
// recent user-authored messages carry signal about the current problem.
const priorityWindow = 5

var urgentKeywords = []string{
	"urgent", "critical", "emergency", "broken", "not working", "error", "crash",
}

var elevatedKeywords = []string{
	"important", "asap", "quickly", "problem", "issue", "bug",
}

// ClassifyPriority assigns an escalation priority from the conversation
// history. It scans the last priorityWindow user-authored messages for
// keyword substrings, case-insensitively. An urgent keyword anywhere in
// the window yields high, an elevated keyword yields medium. A window
// with no matches still defaults to medium rather than low: a user who
// asked for a human has a real problem even without alarming wording.
func ClassifyPriority(history []model.MessageItem) model.Priority {
	window := userWindow(history, priorityWindow)

	for _, text := range window {
		if containsAny(strings.ToLower(text), urgentKeywords) {
			return model.PriorityHigh
		}
	}
	for _, text := range window {
		if containsAny(strings.ToLower(text), elevatedKeywords) {
			return model.PriorityMedium
		}
	}
	return model.PriorityMedium
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func userWindow(history []model.MessageItem, n int) []string {
	var texts []string
	for _, msg := range history {
		if msg.Sender == model.SenderUser {
			texts = append(texts, msg.Body)
		}
	}
	if len(texts) > n {
		texts = texts[len(texts)-n:]
	}
	return texts
}
