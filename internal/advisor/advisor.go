// Package advisor answers personal finance questions through a chat model.
package advisor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// SystemPrompt restricts the model to finance topics
const SystemPrompt = `You are a knowledgeable financial advisor chatbot. Only answer questions related to:
- Personal finance
- Money management
- Taxes
- Investments
- Budgeting
- Financial planning
- Banking
- Credit and loans

If a question is not related to finance or money, politely respond that you can only assist with financial and tax-related questions.

Keep responses clear, concise, and focused on practical advice. When discussing investments or financial strategies, include appropriate disclaimers about financial risks and the importance of consulting with qualified professionals.`

const (
	greeting = "Hello! I'm your financial AI assistant. I can help you with questions about money management, taxes, investments, and other financial topics. What would you like to know?"
	apology  = "I apologize, but I'm having trouble processing your request. Please try again or rephrase your question."

	// DefaultTimeout bounds a single chat call
	DefaultTimeout = 30 * time.Second
)

var (
	// ErrEmptyQuestion is returned for blank questions
	ErrEmptyQuestion = errors.New("question is required")
	// ErrDisabled is returned when no chat model is configured
	ErrDisabled = errors.New("financial advisor is not configured")
)

// Chatter sends one question to a chat model that already carries the
// system prompt.
type Chatter interface {
	Chat(ctx context.Context, question string) (string, error)
	Close() error
}

// Reply is an assistant message
type Reply struct {
	Text     string    `json:"text"`
	Fallback bool      `json:"fallback"`
	SentAt   time.Time `json:"createdAt"`
}

// Advisor answers questions, replying with an apology when the model fails
type Advisor struct {
	chatter Chatter
	timeout time.Duration
	now     func() time.Time
}

// New creates a new Advisor. chatter may be nil to disable the advisor.
func New(chatter Chatter) *Advisor {
	return &Advisor{chatter: chatter, timeout: DefaultTimeout, now: time.Now}
}

// Greeting is the first message shown in the chat
func (a *Advisor) Greeting() Reply {
	return Reply{Text: greeting, SentAt: a.now()}
}

// Ask sends question to the model. Model failures are logged and answered
// with a fixed apology rather than returned.
func (a *Advisor) Ask(ctx context.Context, question string) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, ErrEmptyQuestion
	}
	if a.chatter == nil {
		return Reply{}, ErrDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.chatter.Chat(ctx, question)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		slog.Error("Error generating response", "error", err)
		return Reply{Text: apology, Fallback: true, SentAt: a.now()}, nil
	}
	return Reply{Text: text, SentAt: a.now()}, nil
}

// Close releases the underlying model client
func (a *Advisor) Close() error {
	if a.chatter == nil {
		return nil
	}
	return a.chatter.Close()
}
