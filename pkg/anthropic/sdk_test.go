package anthropic

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSDKMessage(t *testing.T) {
	sdkMsg := &sdk.Message{
		ID:           "msg_test_123",
		Model:        "claude-sonnet-4-5-20250929",
		StopReason:   "end_turn",
		StopSequence: "STOP",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "Hello world"},
			{Type: "text", Text: "Second block"},
		},
		Usage: sdk.Usage{
			InputTokens:              100,
			OutputTokens:             50,
			CacheCreationInputTokens: 2000,
			CacheReadInputTokens:     3000,
		},
	}

	resp := fromSDKMessage(sdkMsg)
	require.NotNil(t, resp)
	assert.Equal(t, "end_turn", resp.StopReason)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, "Hello worldSecond block", resp.Text())
	assert.Equal(t, int64(100), resp.Usage.InputTokens)
	assert.Equal(t, int64(50), resp.Usage.OutputTokens)
	assert.Equal(t, int64(2000), resp.Usage.CacheCreationInputTokens)
	assert.Equal(t, int64(3000), resp.Usage.CacheReadInputTokens)
}

func TestFromSDKMessage_EmptyContent(t *testing.T) {
	resp := fromSDKMessage(&sdk.Message{ID: "msg_empty", StopReason: "max_tokens"})
	require.NotNil(t, resp)
	assert.Empty(t, resp.Content)
	assert.Empty(t, resp.Text())
	assert.Equal(t, "max_tokens", resp.StopReason)
}

func TestMessageResponse_TextSkipsNonText(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "thinking", Text: "hmm"},
		{Type: "text", Text: "Domestic"},
	}}
	assert.Equal(t, "Domestic", resp.Text())
}

func TestToSDKMessages_Roles(t *testing.T) {
	out := toSDKMessages([]Message{
		{Role: "user", Content: "Q"},
		{Role: "assistant", Content: "A"},
		{Role: "system", Content: "unknown role"},
	})
	require.Len(t, out, 3)
	assert.Equal(t, sdk.MessageParamRoleUser, out[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, out[1].Role)
	assert.Equal(t, sdk.MessageParamRoleUser, out[2].Role)
}

func TestToSDKSystemBlocks_CacheControl(t *testing.T) {
	out := toSDKSystemBlocks(BuildCachedSystemBlocks("extract the main reason"))
	require.Len(t, out, 1)
	assert.Equal(t, "extract the main reason", out[0].Text)
	assert.Equal(t, sdk.CacheControlEphemeralTTL("5m"), out[0].CacheControl.TTL)
}

func TestToSDKSystemBlocks_NoCache(t *testing.T) {
	out := toSDKSystemBlocks([]SystemBlock{{Text: "plain"}})
	require.Len(t, out, 1)
	assert.Empty(t, out[0].CacheControl.TTL)
}

func TestStatusCode(t *testing.T) {
	apiErr := &sdk.Error{
		StatusCode: 429,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil),
		Response:   &http.Response{StatusCode: 429},
	}
	assert.Equal(t, 429, StatusCode(apiErr))
	assert.Equal(t, 429, StatusCode(fmt.Errorf("wrapped: %w", apiErr)))
	assert.Equal(t, 0, StatusCode(errors.New("dial tcp: i/o timeout")))
	assert.Equal(t, 0, StatusCode(nil))
}
