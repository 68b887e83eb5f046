package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xaenox/habit-coach/internal/models"
)

var (
	// ErrModelUnavailable covers transport failures, non-success statuses and timeouts.
	ErrModelUnavailable = errors.New("language model unavailable")
	// ErrEmptyModelResponse means the call succeeded but carried no usable text.
	ErrEmptyModelResponse = errors.New("language model returned no content")
)

type ModelRequest struct {
	Messages    []models.PromptMessage
	Temperature float32
	MaxTokens   int
}

// Model is the external text-completion collaborator.
type Model interface {
	Complete(ctx context.Context, req ModelRequest) (string, error)
}

// OpenAIModel talks to any OpenAI-compatible chat completions endpoint (DeepSeek by default).
type OpenAIModel struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAIModel(apiKey, baseURL, model string, logger *zap.Logger) *OpenAIModel {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &OpenAIModel{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger,
	}
}

func (m *OpenAIModel) Complete(ctx context.Context, req ModelRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	// go-openai omits a zero temperature, which lets the provider apply its own default.
	temperature := req.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := m.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       m.model,
			Messages:    messages,
			MaxTokens:   req.MaxTokens,
			Temperature: temperature,
		},
	)
	if err != nil {
		m.logger.Error("Failed to get model response", zap.Error(err), zap.String("model", m.model))
		return "", classifyError(err)
	}

	if len(resp.Choices) == 0 {
		m.logger.Warn("Model response has no choices", zap.String("id", resp.ID))
		return "", ErrEmptyModelResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		m.logger.Warn("Model response has empty content",
			zap.String("id", resp.ID),
			zap.String("finish_reason", string(resp.Choices[0].FinishReason)))
		return "", ErrEmptyModelResponse
	}

	m.logger.Debug("Model response received",
		zap.String("id", resp.ID),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return content, nil
}

// classifyError maps client errors onto the two model failure kinds. A body that
// decoded badly counts as an empty response; everything else is unavailability.
func classifyError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %v", ErrEmptyModelResponse, err)
	}
	return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
}
