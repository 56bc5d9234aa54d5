// Package chat proxies a user's message and conversation history to an
// OpenAI-compatible chat completion endpoint.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kuitang/sticky-canvas/internal/errs"
	"github.com/kuitang/sticky-canvas/internal/logutil"
	"github.com/kuitang/sticky-canvas/internal/obs"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Limits on a single request.
const (
	MaxMessageBytes = 8000
	MaxHistory      = 50
	requestTimeout  = 60 * time.Second
)

// Roles accepted in the history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn of the conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body of POST /api/chat.
type Request struct {
	Message string    `json:"message"`
	History []Message `json:"history,omitempty"`
}

// Response is returned to the caller.
type Response struct {
	Response string `json:"response"`
}

// Config configures the upstream client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// MaxRetries overrides the client's retry count when >= 0.
	MaxRetries int
}

// Service sends chat requests upstream.
type Service struct {
	client openai.Client
	model  string
}

// New creates a chat service.
func New(cfg Config) *Service {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	return &Service{client: openai.NewClient(opts...), model: model}
}

// Model returns the configured model name.
func (s *Service) Model() string {
	return s.model
}

// Validate checks a request before anything is sent upstream.
func Validate(req Request) error {
	if strings.TrimSpace(req.Message) == "" {
		return errs.New(errs.InvalidArgument, "message is required")
	}
	if len(req.Message) > MaxMessageBytes {
		return errs.New(errs.InvalidArgument, "message is too long")
	}
	if len(req.History) > MaxHistory {
		return errs.New(errs.InvalidArgument, "history is too long")
	}
	for _, m := range req.History {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			return errs.New(errs.InvalidArgument, "history role must be user, assistant or system")
		}
	}
	return nil
}

// Reply returns the assistant's answer to req. A nil Service means chat is
// not configured.
func (s *Service) Reply(ctx context.Context, req Request) (string, error) {
	if s == nil {
		return "", errs.New(errs.Unavailable, "chat is not configured")
	}
	if err := Validate(req); err != nil {
		return "", err
	}
	logger := obs.From(ctx).With("pkg", "chat")

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(s.model),
		Messages: buildMessages(req),
	})
	durMS := float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil {
		attrs := []any{"model", s.model, "dur_ms", durMS, "error", logutil.TruncateForLog(err.Error(), 300)}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			attrs = append(attrs, "upstream_status", apiErr.StatusCode)
		}
		logger.Error("chat completion failed", attrs...)
		return "", errs.Wrap(errs.Internal, "chat request failed", err)
	}
	if len(resp.Choices) == 0 {
		logger.Error("chat completion returned no choices", "model", s.model, "dur_ms", durMS)
		return "", errs.New(errs.Internal, "chat request failed")
	}

	answer := resp.Choices[0].Message.Content
	logger.Info("chat completion",
		append([]any{"model", s.model, "dur_ms", durMS, "history", len(req.History)}, logutil.TextStats(answer)...)...)
	return answer, nil
}

func buildMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	for _, m := range req.History {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return append(msgs, openai.UserMessage(req.Message))
}
