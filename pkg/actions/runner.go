package actions

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/memolab/admingate/pkg/logger"
)

// Input carries the memo content a metered action operates on.
type Input struct {
	Title   string
	Content string
	Target  string // translate target language
}

// Runner executes the underlying AI call for a metered action. The gating
// policy treats it as a black box: any error here means the user is not
// charged.
type Runner interface {
	Run(ctx context.Context, key string, in Input) (string, error)
}

// LLMRunner runs actions against the OpenAI chat completion API.
type LLMRunner struct {
	client *openai.Client
	model  string
	log    logger.Logger
}

// NewLLMRunner creates a runner backed by OpenAI
func NewLLMRunner(apiKey, model string, log logger.Logger) *LLMRunner {
	return &LLMRunner{
		client: openai.NewClient(apiKey),
		model:  model,
		log:    log,
	}
}

// Run builds the prompt for key and performs a single chat completion.
func (r *LLMRunner) Run(ctx context.Context, key string, in Input) (string, error) {
	prompt, err := buildPrompt(key, in)
	if err != nil {
		return "", err
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Temperature: 0.3,
		MaxTokens:   1024,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		r.log.Error("chat completion failed", "action", key, "error", err)
		return "", fmt.Errorf("chat completion for %s: %w", key, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion for %s returned no choices", key)
	}

	return resp.Choices[0].Message.Content, nil
}

func buildPrompt(key string, in Input) (string, error) {
	switch key {
	case KeyCategorySuggest:
		return fmt.Sprintf(
			"Suggest one short category name for the following memo. Reply with the name only.\n\nTitle: %s\n\n%s",
			in.Title, in.Content), nil
	case KeyThumbnail:
		return fmt.Sprintf(
			"Write a single-sentence image prompt for a thumbnail illustrating this memo.\n\nTitle: %s\n\n%s",
			in.Title, in.Content), nil
	case KeyFixedPage:
		return fmt.Sprintf(
			"Write a concise fixed-page summary (markdown, max 300 words) of the following memo.\n\nTitle: %s\n\n%s",
			in.Title, in.Content), nil
	case KeyQualityAnalysis:
		return fmt.Sprintf(
			`Score this memo from 0-100 on three axes and reply with JSON only: {"information": n, "writing": n, "readability": n}`+
				"\n\nTitle: %s\n\n%s", in.Title, in.Content), nil
	case KeyTranslate:
		target := in.Target
		if target == "" {
			target = "English"
		}
		return fmt.Sprintf(
			"Translate the following memo into %s. Preserve markdown structure.\n\nTitle: %s\n\n%s",
			target, in.Title, in.Content), nil
	default:
		return "", fmt.Errorf("unknown action %q", key)
	}
}
