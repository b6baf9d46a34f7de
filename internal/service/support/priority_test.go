package support

import (
	"testing"

	"care-support-backend/internal/model"
)

func userMessages(texts ...string) []model.MessageItem {
	items := make([]model.MessageItem, 0, len(texts))
	for _, text := range texts {
		items = append(items, model.MessageItem{Sender: model.SenderUser, Body: text})
	}
	return items
}

func TestClassifyPriority(t *testing.T) {
	tests := []struct {
		name    string
		history []model.MessageItem
		want    model.Priority
	}{
		{
			name:    "urgent keywords",
			history: userMessages("my router is broken and not working"),
			want:    model.PriorityHigh,
		},
		{
			name:    "elevated keywords",
			history: userMessages("I have an issue configuring it"),
			want:    model.PriorityMedium,
		},
		{
			name:    "no keywords defaults to medium",
			history: userMessages("hello", "thanks"),
			want:    model.PriorityMedium,
		},
		{
			name:    "empty history",
			history: nil,
			want:    model.PriorityMedium,
		},
		{
			name:    "urgent beats elevated regardless of order",
			history: userMessages("there is a crash", "just a small issue really"),
			want:    model.PriorityHigh,
		},
		{
			name:    "matching is case insensitive",
			history: userMessages("this is URGENT"),
			want:    model.PriorityHigh,
		},
		{
			name:    "keywords match as substrings",
			history: userMessages("the app keeps crashing"),
			want:    model.PriorityHigh,
		},
		{
			name: "only the last five user messages count",
			history: userMessages(
				"everything is broken",
				"one", "two", "three", "four", "five",
			),
			want: model.PriorityMedium,
		},
		{
			name: "non-user messages carry no signal",
			history: []model.MessageItem{
				{Sender: model.SenderAssistant, Body: "it sounds broken"},
				{Sender: model.SenderSystem, Body: "error notice"},
				{Sender: model.SenderUser, Body: "hi"},
			},
			want: model.PriorityMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyPriority(tt.history); got != tt.want {
				t.Fatalf("ClassifyPriority = %s, want %s", got, tt.want)
			}
		})
	}
}
