package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Role1776/gigago"
)

// GigaChat implements the Chatter interface using Sber GigaChat
type GigaChat struct {
	client *gigago.Client
	model  *gigago.GenerativeModel
}

// GigaChatConfig configures the GigaChat client
type GigaChatConfig struct {
	APIKey             string
	Scope              string
	Model              string
	InsecureSkipVerify bool
}

// NewGigaChat creates a new GigaChat Chatter instance
func NewGigaChat(ctx context.Context, cfg GigaChatConfig) (*GigaChat, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gigachat api key is required")
	}
	if cfg.Scope == "" {
		cfg.Scope = "GIGACHAT_API_PERS"
	}
	if cfg.Model == "" {
		cfg.Model = "GigaChat"
	}

	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gigachat client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SystemInstruction = SystemPrompt
	model.Temperature = 0.3

	return &GigaChat{client: client, model: model}, nil
}

// Chat asks a single question
func (g *GigaChat) Chat(ctx context.Context, question string) (string, error) {
	messages := []gigago.Message{
		{Role: gigago.RoleUser, Content: question},
	}

	resp, err := g.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generating response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from gigachat")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Close closes the GigaChat client
func (g *GigaChat) Close() error {
	g.client.Close()
	return nil
}
