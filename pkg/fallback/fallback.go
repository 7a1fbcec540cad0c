// Package fallback answers messages that no dialog claimed by asking a
// chat completion model, so the bot stays conversational outside the
// scripted flows.
package fallback

import (
	"context"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/camibot/camibot/pkg/logger"
)

// Apology returned whenever the completion call fails. The user gets a
// consistent message instead of an error dump.
const Apology = "Lo siento, ocurrió un error al procesar tu solicitud."

// Help is the canned answer used when the completion service is disabled.
const Help = "No entendí tu mensaje. Escribe *Hola* para ver las opciones disponibles."

const systemPrompt = "Eres Cami, la asistente virtual de una tienda mayorista de ropa. " +
	"Respondes en español, con mensajes cortos y amables. " +
	"Si el cliente quiere comprar, sugiérele escribir *inventario* para ver el catálogo. " +
	"Si quiere registrarse, sugiérele escribir *Registrarme*."

// Responder answers free-form text through a chat completion endpoint.
// A disabled responder still answers, with a static hint.
type Responder struct {
	enabled bool
	model   string
	client  openai.Client
}

type Option func(*Responder)

// WithBaseURL points the responder at a different completion endpoint.
// Used for OpenAI-compatible services and for tests.
func WithBaseURL(url string) Option {
	return func(r *Responder) {
		if url != "" {
			r.client = openai.NewClient(
				option.WithAPIKey("test"),
				option.WithBaseURL(url),
			)
		}
	}
}

func NewResponder(apiKey, apiBase, model string, opts ...Option) *Responder {
	r := &Responder{
		enabled: apiKey != "",
		model:   model,
	}
	if r.model == "" {
		r.model = "gpt-4o-mini"
	}
	if r.enabled {
		clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
		if apiBase != "" {
			clientOpts = append(clientOpts, option.WithBaseURL(apiBase))
		}
		r.client = openai.NewClient(clientOpts...)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Disabled returns a responder that always answers with the static hint.
func Disabled() *Responder {
	return &Responder{}
}

// Respond never fails: completion errors collapse into the apology text so
// the dispatcher always has something to send.
func (r *Responder) Respond(ctx context.Context, text string) string {
	if !r.enabled {
		return Help
	}

	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		logger.ErrorCF("fallback", "Completion request failed", map[string]interface{}{
			"error": err.Error(),
		})
		return Apology
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		logger.WarnC("fallback", "Completion returned no choices")
		return Apology
	}
	return resp.Choices[0].Message.Content
}
