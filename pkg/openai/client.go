// Package openai wraps the OpenAI Chat Completions API behind a narrow
// interface so callers never touch SDK types.
package openai

import (
	"context"
	"errors"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rotisserie/eris"
)

// Client defines the OpenAI API operations used by the annotator.
type Client interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is our own request type for CreateChatCompletion.
type ChatRequest struct {
	Model       string
	System      string
	User        string
	MaxTokens   int64
	Temperature *float64
}

// ChatResponse is our own response type from CreateChatCompletion.
type ChatResponse struct {
	Choices      []string
	FinishReason string // of the first choice
	Usage        TokenUsage
}

// TokenUsage tracks token consumption. PromptTokens includes CachedTokens.
type TokenUsage struct {
	PromptTokens     int64
	CompletionTokens int64
	CachedTokens     int64
}

// ErrNoChoices is returned when the API responds without any choices.
var ErrNoChoices = errors.New("openai: response has no choices")

// Option configures the SDK-backed client.
type Option func(*[]option.RequestOption)

// WithBaseURL points the client at an OpenAI-compatible host.
func WithBaseURL(u string) Option {
	return func(opts *[]option.RequestOption) {
		if u != "" {
			*opts = append(*opts, option.WithBaseURL(u))
		}
	}
}

// WithTimeout sets a per-request timeout enforced by the SDK.
func WithTimeout(d time.Duration) Option {
	return func(opts *[]option.RequestOption) {
		if d > 0 {
			*opts = append(*opts, option.WithRequestTimeout(d))
		}
	}
}

type sdkClient struct {
	client sdk.Client
}

// NewClient creates an OpenAI client backed by openai-go with SDK retries
// disabled.
func NewClient(apiKey string, opts ...Option) Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &sdkClient{client: sdk.NewClient(reqOpts...)}
}

func (c *sdkClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(req.Model),
		Messages: toSDKMessages(req),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "openai: create chat completion")
	}

	out := fromSDKCompletion(resp)
	if len(out.Choices) == 0 {
		return nil, ErrNoChoices
	}
	return out, nil
}

// StatusCode returns the HTTP status carried by an API error, or 0.
func StatusCode(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func toSDKMessages(req ChatRequest) []sdk.ChatCompletionMessageParamUnion {
	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		msgs = append(msgs, sdk.SystemMessage(req.System))
	}
	return append(msgs, sdk.UserMessage(req.User))
}

func fromSDKCompletion(c *sdk.ChatCompletion) *ChatResponse {
	out := &ChatResponse{
		Usage: TokenUsage{
			PromptTokens:     c.Usage.PromptTokens,
			CompletionTokens: c.Usage.CompletionTokens,
			CachedTokens:     c.Usage.PromptTokensDetails.CachedTokens,
		},
	}
	for _, ch := range c.Choices {
		out.Choices = append(out.Choices, ch.Message.Content)
	}
	if len(c.Choices) > 0 {
		out.FinishReason = c.Choices[0].FinishReason
	}
	return out
}
