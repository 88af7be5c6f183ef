package services

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/marciolins2020/reddata-sovereign-ai-sub000/models"
)

// CompletionStream delivers an assistant reply incrementally. Recv returns
// io.EOF after the final chunk.
type CompletionStream interface {
	Recv() (string, error)
	Close() error
}

// CompletionClient is the external completion backend. Messages are sent as
// an ordered sequence of role/content pairs.
type CompletionClient interface {
	StreamCompletion(ctx context.Context, messages []models.ChatMessage) (CompletionStream, error)
}

type openaiCompletionClient struct {
	client *openai.Client
	model  string
}

// NewCompletionClient creates a CompletionClient for an OpenAI-compatible
// backend. baseURL may point at any provider speaking the same protocol.
func NewCompletionClient(apiKey, baseURL, model string) CompletionClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openaiCompletionClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (c *openaiCompletionClient) StreamCompletion(ctx context.Context, messages []models.ChatMessage) (CompletionStream, error) {
	llmMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		var role string
		switch strings.ToLower(msg.Role) {
		case "assistant", "ai":
			role = openai.ChatMessageRoleAssistant
		case "system":
			role = openai.ChatMessageRoleSystem
		default:
			role = openai.ChatMessageRoleUser
		}
		llmMessages = append(llmMessages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: llmMessages,
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}
	return &openaiCompletionStream{stream: stream}, nil
}

type openaiCompletionStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openaiCompletionStream) Recv() (string, error) {
	response, err := s.stream.Recv()
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", nil
	}
	return response.Choices[0].Delta.Content, nil
}

func (s *openaiCompletionStream) Close() error {
	return s.stream.Close()
}
