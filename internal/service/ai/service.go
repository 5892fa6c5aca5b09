package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/daylinehq/dayline/backend/internal/config"
	"github.com/daylinehq/dayline/backend/internal/model/chat"
	timelineservice "github.com/daylinehq/dayline/backend/internal/service/timeline"
)

// Responder produces the assistant's reply for a stored user message. The
// send path only depends on this boundary; how many model round-trips happen
// behind it is not its concern.
type Responder interface {
	GenerateReply(ctx context.Context, sessionID string, history []chat.Message, userMessage string) (string, error)
}

// Service answers chat messages with a model grounded in the session's
// activity timeline.
type Service struct {
	chatModel model.ChatModel
	timeline  *timelineservice.Service
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the model-backed responder.
func NewService(ctx context.Context, timelineSvc *timelineservice.Service, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		timeline:  timelineSvc,
		chain:     runnable,
	}, nil
}

// GenerateReply runs the chain over the session history and the user's
// message, with the rendered activity timeline folded into the system prompt.
func (s *Service) GenerateReply(ctx context.Context, sessionID string, history []chat.Message, userMessage string) (string, error) {
	systemPrompt, err := s.buildSystemPrompt(ctx, sessionID)
	if err != nil {
		return "", err
	}

	input := map[string]any{
		"system":  systemPrompt,
		"history": buildHistoryMessages(history),
		"query":   userMessage,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	log.Printf("[ai] generated reply for session=%s, length=%d", sessionID, len(response.Content))
	return response.Content, nil
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	const historyLimit = 10

	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
