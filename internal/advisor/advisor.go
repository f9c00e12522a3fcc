package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

// Advisor answers farmer queries with an LLM. A transcribed recording goes
// in, a short spoken-style answer comes out. When the model is unreachable
// the caller gets a canned fallback so the call can continue.

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries uint64
}

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

type Advisor struct {
	cfg    Config
	client chatClient
	log    *slog.Logger
}

// Answer is the advisory response for one farmer query.
type Answer struct {
	Text string

	// Confidence is nil when the answer is the canned fallback.
	Confidence *float64

	Fallback bool
}

const systemPrompt = `You are an agricultural extension advisor answering by phone.
The caller is a smallholder farmer. Answer in at most three short sentences,
in plain spoken language, with practical advice on crops or livestock.
Answer in the language named by the user message.`

var fallbackAnswers = map[string]string{
	"en": "I could not reach the advisory service right now. Please call back shortly or press zero to speak with an agent.",
	"ha": "Ba a iya samun sabis na ba da shawara a yanzu ba. Da fatan a sake kira nan gaba kadan ko danna sifili don magana da wakili.",
	"yo": "A ko le de ibi ise imoran ni bayi. Jowo pe pada laipe tabi te odo lati ba asoju soro.",
}

func New(cfg Config, log *slog.Logger) *Advisor {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if log == nil {
		log = slog.Default()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Advisor{cfg: cfg, client: openai.NewClientWithConfig(clientCfg), log: log}
}

// Ask answers query in the given IVR language code. It never returns an
// error: model failures degrade to the canned fallback.
func (a *Advisor) Ask(ctx context.Context, query, language string) Answer {
	query = strings.TrimSpace(query)
	if query == "" {
		return fallback(language)
	}

	req := openai.ChatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(query, language)},
		},
		Temperature: 0.3,
		MaxTokens:   220,
	}

	var resp openai.ChatCompletionResponse
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
		var err error
		resp, err = a.client.CreateChatCompletion(callCtx, req)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), a.cfg.MaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		a.log.Warn("advisor unavailable, using fallback", "error", err)
		return fallback(language)
	}
	if len(resp.Choices) == 0 {
		a.log.Warn("advisor returned no choices, using fallback")
		return fallback(language)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return fallback(language)
	}
	conf := estimateConfidence(resp.Choices[0].FinishReason, text)
	return Answer{Text: text, Confidence: &conf}
}

func buildUserPrompt(query, language string) string {
	name := map[string]string{"en": "English", "ha": "Hausa", "yo": "Yoruba"}[language]
	if name == "" {
		name = "English"
	}
	return fmt.Sprintf("Language: %s\nFarmer's question: %s", name, query)
}

func fallback(language string) Answer {
	text, ok := fallbackAnswers[language]
	if !ok {
		text = fallbackAnswers["en"]
	}
	return Answer{Text: text, Fallback: true}
}

// estimateConfidence is a heuristic: a complete, reasonably sized answer
// scores higher than a truncated or one-word one.
func estimateConfidence(reason openai.FinishReason, text string) float64 {
	conf := 0.9
	if reason != openai.FinishReasonStop {
		conf = 0.6
	}
	if len(strings.Fields(text)) < 5 {
		conf -= 0.2
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}
