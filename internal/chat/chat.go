// Package chat proxies chat completions to the configured LLM providers.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTemperature float32 = 0.7
	DefaultMaxTokens           = 2000

	fileContextPrefix = "此外，用户上传了文件，文件内容如下：\n"
)

var (
	// ErrUnknownProvider is returned for a provider name that is not configured.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrNoMessages is returned when a request carries no messages.
	ErrNoMessages = errors.New("messages is required")
)

// MissingKeyError reports a provider without an API key.
type MissingKeyError struct {
	Provider string
	KeyName  string
}

func (e *MissingKeyError) Error() string {
	return e.KeyName + " not configured"
}

// ProviderError wraps a failed upstream call. Message is safe to show clients.
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Message is one chat turn in OpenAI wire form.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat completion request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float32  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	// FileContext is an extracted upload corpus, sent ahead of the conversation.
	FileContext string `json:"fileContext,omitempty"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the response in OpenAI chat.completion form.
type Completion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Service routes chat requests to providers.
type Service struct {
	providers map[string]Provider
	fallback  string
	factory   ModelFactory
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for provider failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithModelFactory replaces the eino OpenAI client factory.
func WithModelFactory(f ModelFactory) Option {
	return func(s *Service) { s.factory = f }
}

// WithFallback names the provider used by Resolve for unknown names.
func WithFallback(name string) Option {
	return func(s *Service) { s.fallback = name }
}

// NewService returns a Service for the given providers.
func NewService(providers []Provider, opts ...Option) *Service {
	s := &Service{
		providers: make(map[string]Provider, len(providers)),
		fallback:  "deepseek",
		factory:   OpenAIFactory,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, p := range providers {
		s.providers[p.Name] = p
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Has reports whether name is a configured provider.
func (s *Service) Has(name string) bool {
	_, ok := s.providers[name]
	return ok
}

// Resolve returns name when it is configured, otherwise the fallback provider.
func (s *Service) Resolve(name string) string {
	if s.Has(name) {
		return name
	}
	return s.fallback
}

// Complete sends req to the named provider. req.Model overrides the provider's
// default model; temperature and max tokens default to 0.7 and 2000.
func (s *Service) Complete(ctx context.Context, providerName string, req Request) (*Completion, error) {
	p, ok := s.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}
	if p.APIKey == "" {
		return nil, &MissingKeyError{Provider: p.Name, KeyName: p.keyName()}
	}
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	modelName := req.Model
	if modelName == "" {
		modelName = p.Model
	}
	temperature := DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := DefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	cm, err := s.factory(ctx, p, modelName)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name, Message: sanitizeForClient(s.logger, p.Name, err), Err: err}
	}
	resp, err := cm.Generate(ctx, toSchema(req),
		model.WithModel(modelName),
		model.WithTemperature(temperature),
		model.WithMaxTokens(maxTokens),
	)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name, Message: sanitizeForClient(s.logger, p.Name, err), Err: err}
	}
	return s.completion(modelName, resp), nil
}

func toSchema(req Request) []*schema.Message {
	out := make([]*schema.Message, 0, len(req.Messages)+1)
	if ctx := strings.TrimSpace(req.FileContext); ctx != "" {
		out = append(out, schema.SystemMessage(fileContextPrefix+ctx))
	}
	for _, m := range req.Messages {
		var role schema.RoleType
		switch m.Role {
		case "system":
			role = schema.System
		case "assistant":
			role = schema.Assistant
		default:
			role = schema.User
		}
		out = append(out, &schema.Message{Role: role, Content: m.Content})
	}
	return out
}

func (s *Service) completion(modelName string, msg *schema.Message) *Completion {
	c := &Completion{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: s.now().Unix(),
		Model:   modelName,
		Choices: []Choice{{
			Index:        0,
			Message:      Message{Role: "assistant", Content: msg.Content},
			FinishReason: "stop",
		}},
	}
	if meta := msg.ResponseMeta; meta != nil {
		if meta.FinishReason != "" {
			c.Choices[0].FinishReason = meta.FinishReason
		}
		if u := meta.Usage; u != nil {
			c.Usage = Usage{
				PromptTokens:     u.PromptTokens,
				CompletionTokens: u.CompletionTokens,
				TotalTokens:      u.TotalTokens,
			}
		}
	}
	return c
}
