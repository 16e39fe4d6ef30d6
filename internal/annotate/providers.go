package annotate

import (
	"context"

	"github.com/sells-group/minutes-cli/internal/model"
	"github.com/sells-group/minutes-cli/pkg/anthropic"
	"github.com/sells-group/minutes-cli/pkg/openai"
)

// Anthropic annotates rows through the Anthropic Messages API. The system
// instruction is sent as a cached block since it is identical for every row.
type Anthropic struct {
	client anthropic.Client
}

// NewAnthropic returns an Annotator backed by client.
func NewAnthropic(client anthropic.Client) *Anthropic {
	return &Anthropic{client: client}
}

// Annotate implements Annotator.
func (a *Anthropic) Annotate(ctx context.Context, p Params, text string) (Completion, error) {
	temp := p.Temperature
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.Model,
		MaxTokens:   p.MaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(p.System),
		Messages:    []anthropic.Message{{Role: "user", Content: text}},
		Temperature: &temp,
	})
	if err != nil {
		return Completion{}, withStatus(err, anthropic.StatusCode(err))
	}
	return Completion{
		Text:       resp.Text(),
		StopReason: resp.StopReason,
		Usage: model.Usage{
			InputTokens:      resp.Usage.InputTokens,
			OutputTokens:     resp.Usage.OutputTokens,
			CacheWriteTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadTokens:  resp.Usage.CacheReadInputTokens,
		},
	}, nil
}

// OpenAI annotates rows through the OpenAI Chat Completions API.
type OpenAI struct {
	client openai.Client
}

// NewOpenAI returns an Annotator backed by client.
func NewOpenAI(client openai.Client) *OpenAI {
	return &OpenAI{client: client}
}

// Annotate implements Annotator.
func (o *OpenAI) Annotate(ctx context.Context, p Params, text string) (Completion, error) {
	temp := p.Temperature
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatRequest{
		Model:       p.Model,
		System:      p.System,
		User:        text,
		MaxTokens:   p.MaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return Completion{}, withStatus(err, openai.StatusCode(err))
	}
	if len(resp.Choices) == 0 {
		return Completion{}, openai.ErrNoChoices
	}
	return Completion{
		Text:       resp.Choices[0],
		StopReason: resp.FinishReason,
		Usage: model.Usage{
			InputTokens:     resp.Usage.PromptTokens - resp.Usage.CachedTokens,
			OutputTokens:    resp.Usage.CompletionTokens,
			CacheReadTokens: resp.Usage.CachedTokens,
		},
	}, nil
}
