package assistant

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"care-support-backend/internal/model"
)

// ErrEmptyCompletion distinguishes a degraded (empty) response from a
// transport failure. Callers treat both as a failed turn but they are
// logged differently.
var ErrEmptyCompletion = errors.New("assistant: backend returned no content")

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 500
	historyWindow    = 20

	systemPrompt = "You are a helpful customer support assistant for CARE " +
		"(Customer Assistance and Resource Engine). You help users with " +
		"technical support questions about their products. Be professional, " +
		"friendly, and concise. If you don't know the answer, suggest " +
		"escalating to a human agent."
)

// Backend is the surface the response pipeline depends on. The production
// implementation is Client; tests substitute a fake.
type Backend interface {
	Complete(ctx context.Context, prompt string, history []model.MessageItem, productContext string) (string, error)
	CompleteWithImage(ctx context.Context, prompt string, image []byte, history []model.MessageItem, productContext string) (string, error)
}

type Client struct {
	api         *openai.Client
	model       string
	visionModel string
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string
	Timeout     time.Duration
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{Timeout: timeout}

	chatModel := cfg.Model
	if chatModel == "" {
		chatModel = openai.GPT4oMini
	}
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = chatModel
	}

	return &Client{
		api:         openai.NewClientWithConfig(apiCfg),
		model:       chatModel,
		visionModel: visionModel,
	}
}

func (c *Client) Complete(ctx context.Context, prompt string, history []model.MessageItem, productContext string) (string, error) {
	messages := buildMessages(prompt, history, productContext)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: defaultMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	return extractContent(resp)
}

// CompleteWithImage sends the turn to the vision model with the image
// inlined as a base64 data URL, the same shape llm gateways accept for
// multimodal chat messages.
func (c *Client) CompleteWithImage(ctx context.Context, prompt string, image []byte, history []model.MessageItem, productContext string) (string, error) {
	if len(image) == 0 {
		return c.Complete(ctx, prompt, history, productContext)
	}

	messages := buildMessages("", history, productContext)
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: prompt,
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
				},
			},
		},
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.visionModel,
		Messages:  messages,
		MaxTokens: defaultMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("vision completion: %w", err)
	}

	return extractContent(resp)
}

// buildMessages assembles system context, a bounded window of prior
// user/assistant turns, and (when non-empty) the current prompt. Handler
// and system messages are not replayed to the backend.
func buildMessages(prompt string, history []model.MessageItem, productContext string) []openai.ChatCompletionMessage {
	system := systemPrompt
	if strings.TrimSpace(productContext) != "" {
		system += "\n\n" + productContext
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}

	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	for _, msg := range history {
		switch msg.Sender {
		case model.SenderUser:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Body,
			})
		case model.SenderAssistant:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Body,
			})
		}
	}

	if prompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		})
	}

	return messages
}

func extractContent(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

// BuildProductContext renders the product record and its knowledge-base
// content into the grounding block appended to the system prompt.
func BuildProductContext(product *model.ProductItem) string {
	if product == nil {
		return "No specific product context available."
	}

	var b strings.Builder
	b.WriteString("PRODUCT INFORMATION:\n")
	b.WriteString("- Name: " + product.Name + "\n")
	if product.ModelVersion != "" {
		b.WriteString("- Model/Version: " + product.ModelVersion + "\n")
	}
	if product.Category != "" {
		b.WriteString("- Category: " + product.Category + "\n")
	}
	if product.KBContent != "" {
		b.WriteString("\nPRODUCT MANUAL/DOCUMENTATION:\n")
		b.WriteString(product.KBContent)
		b.WriteString("\n")
	}
	b.WriteString("\nUse this information to help answer the user's questions about this product.")
	return b.String()
}
