// Package assistant generates automated replies for the built-in assistant
// user. The chat core hands it recent conversation turns; it returns the
// reply text or an error the core turns into a canned fallback.
package assistant

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/hsg8-commits/ripple/pkg/errors"
)

// Role of a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of the conversation context, oldest first.
type Turn struct {
	Role    string
	Content string
}

// Responder produces a reply for the given conversation.
type Responder interface {
	Respond(ctx context.Context, turns []Turn) (string, error)
}

const systemPrompt = "You are a friendly in-app assistant. Answer briefly and conversationally. " +
	"You only see the last few messages of the conversation."

// OpenAIResponder calls the chat completions API behind a circuit breaker,
// retrying transient failures with exponential backoff. When the breaker is
// open requests fail fast without touching the network.
type OpenAIResponder struct {
	client  *openai.Client
	model   string
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewOpenAIResponder builds a responder for the given API key and model.
func NewOpenAIResponder(apiKey, model string, log *zap.Logger) *OpenAIResponder {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIResponder{
		client: openai.NewClient(apiKey),
		model:  model,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openai",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		log: log.With(zap.String("module", "assistant")),
	}
}

// Respond implements Responder.
func (r *OpenAIResponder) Respond(ctx context.Context, turns []Turn) (string, error) {
	reply, err := r.breaker.Execute(func() (interface{}, error) {
		return r.complete(ctx, turns)
	})
	if err != nil {
		return "", errors.Wrap(err, "assistant completion")
	}
	return reply.(string), nil
}

func (r *OpenAIResponder) complete(ctx context.Context, turns []Turn) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}

	var text string
	op := func() error {
		resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:     r.model,
			Messages:  msgs,
			MaxTokens: 512,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("completion returned no choices")
		}
		text = resp.Choices[0].Message.Content
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.RetryNotify(op, policy, func(err error, next time.Duration) {
		r.log.Warn("completion attempt failed", zap.Error(err), zap.Duration("retry_in", next))
	}); err != nil {
		return "", err
	}
	return text, nil
}
