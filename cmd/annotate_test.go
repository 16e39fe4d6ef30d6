package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/minutes-cli/internal/annotate"
	"github.com/sells-group/minutes-cli/internal/config"
	"github.com/sells-group/minutes-cli/internal/model"
	"github.com/sells-group/minutes-cli/internal/store"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Load()
	require.NoError(t, err)
	return c
}

// fakeOpenAI answers chat completions, failing any row whose text contains
// FAIL with a 500.
func fakeOpenAI(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		user := req.Messages[len(req.Messages)-1].Content
		if strings.Contains(user, "FAIL") {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`)) //nolint:errcheck
			return
		}
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4.1-2025-04-14",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "\n International \n"},
			}},
			"usage": map[string]any{"prompt_tokens": 50, "completion_tokens": 2, "total_tokens": 52},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestRunAnnotate_OpenAIPartialFailure(t *testing.T) {
	dir := isolate(t)
	var calls atomic.Int32
	ts := fakeOpenAI(t, &calls)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MINUTES_OPENAI_BASE_URL", ts.URL)

	c := loadConfig(t)
	c.Input.Path = filepath.Join(dir, "minutes.csv")
	c.Output.Path = filepath.Join(dir, "results.csv")
	writeFile(t, c.Input.Path, "date,text\n2020-01,Weak exports dragged growth.\n2020-02,FAIL\n2020-03,Oil prices rose abroad.\n")

	var out bytes.Buffer
	require.NoError(t, runAnnotate(context.Background(), c, &out))

	assert.Equal(t, int32(3), calls.Load(), "one call per row, no retries")
	assert.Contains(t, out.String(), "All results written to "+c.Output.Path)

	records := readCSV(t, c.Output.Path)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"2020-01", "International", ""}, records[1])
	assert.Equal(t, "2020-02", records[2][0])
	assert.Empty(t, records[2][1])
	assert.Contains(t, records[2][2], "500")
	assert.Equal(t, []string{"2020-03", "International", ""}, records[3])
}

func TestRunAnnotate_InvalidConfigWritesNothing(t *testing.T) {
	dir := isolate(t)
	t.Setenv("MINUTES_PROVIDER", "stub")

	c := loadConfig(t)
	c.Prompt.MaxTokens = 0
	c.Input.Path = filepath.Join(dir, "minutes.csv")
	c.Output.Path = filepath.Join(dir, "results.csv")
	writeFile(t, c.Input.Path, "date,text\n2020-01,x\n")

	err := runAnnotate(context.Background(), c, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_tokens")
	assert.NoFileExists(t, c.Output.Path)
}

func TestRunAnnotate_MissingColumn(t *testing.T) {
	dir := isolate(t)
	t.Setenv("MINUTES_PROVIDER", "stub")

	c := loadConfig(t)
	c.Input.Path = filepath.Join(dir, "minutes.csv")
	c.Output.Path = filepath.Join(dir, "results.csv")
	writeFile(t, c.Input.Path, "day,body\n2020-01,x\n")

	err := runAnnotate(context.Background(), c, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load input")
	assert.NoFileExists(t, c.Output.Path)
}

func TestRunAnnotate_Interrupted(t *testing.T) {
	dir := isolate(t)
	t.Setenv("MINUTES_PROVIDER", "stub")

	c := loadConfig(t)
	c.Input.Path = filepath.Join(dir, "minutes.csv")
	c.Output.Path = filepath.Join(dir, "results.csv")
	writeFile(t, c.Input.Path, "date,text\n2020-01,a\n2020-02,b\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runAnnotate(ctx, c, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run interrupted")

	records := readCSV(t, c.Output.Path)
	require.Len(t, records, 3)
	for _, rec := range records[1:] {
		assert.Empty(t, rec[1])
		assert.Equal(t, "context canceled", rec[2])
	}
}

func TestRunAnnotate_SavesHistory(t *testing.T) {
	dir := isolate(t)
	t.Setenv("MINUTES_PROVIDER", "stub")

	c := loadConfig(t)
	c.Input.Path = filepath.Join(dir, "minutes.csv")
	c.Output.Path = filepath.Join(dir, "results.xlsx")
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(dir, "runs.db")
	writeFile(t, c.Input.Path, "date,text\n2020-01,a b c\n2020-02,d e\n")

	require.NoError(t, runAnnotate(context.Background(), c, &bytes.Buffer{}))
	assert.FileExists(t, c.Output.Path)

	st, err := store.Open(context.Background(), "sqlite", c.Store.DatabaseURL, nil)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "stub", runs[0].Provider)
	assert.Equal(t, 2, runs[0].Succeeded)
	assert.Equal(t, int64(5), runs[0].Usage.InputTokens)

	results, err := st.ListResults(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "2020-02", results[1].ID)
}

func TestRunAnnotate_HistoryFailureIsNotFatal(t *testing.T) {
	dir := isolate(t)
	t.Setenv("MINUTES_PROVIDER", "stub")

	c := loadConfig(t)
	c.Input.Path = filepath.Join(dir, "minutes.csv")
	c.Output.Path = filepath.Join(dir, "results.csv")
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(dir, "no", "such", "dir", "runs.db")
	writeFile(t, c.Input.Path, "date,text\n2020-01,a\n")

	require.NoError(t, runAnnotate(context.Background(), c, &bytes.Buffer{}))
	assert.FileExists(t, c.Output.Path)
}

func TestNewAnnotator(t *testing.T) {
	for _, provider := range []string{config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderStub} {
		c := &config.Config{Provider: provider}
		a, err := newAnnotator(c)
		require.NoError(t, err, provider)
		assert.NotNil(t, a, provider)
	}

	_, err := newAnnotator(&config.Config{Provider: "gemini"})
	require.Error(t, err)
}

func TestNewAnnotator_AppliesRequestTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer slow.Close()

	for _, provider := range []string{config.ProviderOpenAI, config.ProviderAnthropic} {
		c := &config.Config{Provider: provider}
		c.OpenAI.BaseURL = slow.URL
		c.Anthropic.BaseURL = slow.URL
		c.Batch.RequestTimeoutSecs = 1
		c.Prompt.Model = "m"

		a, err := newAnnotator(c)
		require.NoError(t, err, provider)

		start := time.Now()
		_, err = a.Annotate(context.Background(), annotate.Params{System: "s", Model: "m", MaxTokens: 10}, "text")
		require.Error(t, err, provider)
		assert.Less(t, time.Since(start), 4*time.Second, provider)
	}
}

func TestSummarize(t *testing.T) {
	c := &config.Config{Provider: "openai"}
	c.Prompt.Model = "gpt-4.1-2025-04-14"
	c.Pricing.Models = []config.ModelPricing{
		{Model: "gpt-4.1-2025-04-14", Input: 1, Output: 10},
	}

	results := model.Table{
		model.Success("a", "x", model.Usage{InputTokens: 1_000_000, OutputTokens: 100_000}),
		model.Failure("b", "boom", model.Usage{}),
	}
	now := time.Now()
	run := summarize(c, results, now, now)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	assert.InDelta(t, 2.0, run.Cost, 1e-9)
}
