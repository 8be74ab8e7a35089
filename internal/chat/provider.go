package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// Provider is an OpenAI-compatible chat endpoint.
type Provider struct {
	Name    string
	BaseURL string
	Model   string
	APIKey  string
	// KeyEnv names the environment variable the key is read from; it is used in
	// the error returned when no key is configured.
	KeyEnv string
}

func (p Provider) keyName() string {
	if p.KeyEnv != "" {
		return p.KeyEnv
	}
	return strings.ToUpper(p.Name) + "_API_KEY"
}

// ModelFactory builds the chat model used for one request.
type ModelFactory func(ctx context.Context, p Provider, modelName string) (model.BaseChatModel, error)

// OpenAIFactory talks to the provider through the eino OpenAI client; every
// supported vendor exposes the OpenAI chat completions API.
func OpenAIFactory(ctx context.Context, p Provider, modelName string) (model.BaseChatModel, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: p.BaseURL,
		Model:   modelName,
		APIKey:  p.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", p.Name, err)
	}
	return cm, nil
}
