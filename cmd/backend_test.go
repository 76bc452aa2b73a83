package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biolit/litmine/internal/config"
	anthropicpkg "github.com/biolit/litmine/pkg/anthropic"
	"github.com/biolit/litmine/pkg/ollama"
)

// setTestConfig installs a valid config for the duration of the test.
func setTestConfig(t *testing.T, mutate func(*config.Config)) {
	t.Helper()
	c := &config.Config{Backend: "ollama"}
	c.Ollama.BaseURL = "http://localhost:11434"
	c.Ollama.Model = "llama3.1:8b"
	c.Anthropic.Model = "claude-haiku-4-5-20251001"
	c.Anthropic.MaxTokens = 4096
	c.Engine.MaxContextChars = 8000
	c.Engine.ContinueOnError = true
	c.Engine.Concurrency = 2
	c.Engine.CallTimeoutSecs = 120
	c.Store.Driver = "sqlite"
	c.Store.SQLitePath = filepath.Join(t.TempDir(), "test.db")
	if mutate != nil {
		mutate(c)
	}

	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestEngineConfig_Mapping(t *testing.T) {
	setTestConfig(t, nil)

	ec := engineConfig()
	assert.Equal(t, "llama3.1:8b", ec.Model)
	assert.Equal(t, 8000, ec.MaxContextChars)
	assert.True(t, ec.ContinueOnError)
	assert.Equal(t, 2, ec.Concurrency)
	assert.Equal(t, 120*time.Second, ec.CallTimeout)
}

func TestEngineConfig_AnthropicModel(t *testing.T) {
	setTestConfig(t, func(c *config.Config) {
		c.Backend = "anthropic"
	})

	assert.Equal(t, "claude-haiku-4-5-20251001", engineConfig().Model)
}

func TestInitBackend_Ollama(t *testing.T) {
	setTestConfig(t, nil)

	backend, err := initBackend()
	require.NoError(t, err)
	assert.NotNil(t, backend)
}

func TestInitBackend_AnthropicMissingKey(t *testing.T) {
	setTestConfig(t, func(c *config.Config) {
		c.Backend = "anthropic"
	})

	_, err := initBackend()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LITMINE_ANTHROPIC_KEY")
}

func TestInitBackend_Unknown(t *testing.T) {
	setTestConfig(t, func(c *config.Config) {
		c.Backend = "gpt4all"
	})

	_, err := initBackend()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported backend")
}

// stubOllama records the last request and returns a canned response.
type stubOllama struct {
	lastReq ollama.GenerateRequest
	resp    string
}

func (s *stubOllama) Generate(_ context.Context, req ollama.GenerateRequest) (*ollama.GenerateResponse, error) {
	s.lastReq = req
	return &ollama.GenerateResponse{Response: s.resp, Done: true}, nil
}

func TestOllamaBackend_Adapter(t *testing.T) {
	stub := &stubOllama{resp: "extracted evidence"}
	backend := ollamaBackend(stub)

	out, err := backend.Generate(context.Background(), "llama3.1:8b", "EXTRACT this")
	require.NoError(t, err)
	assert.Equal(t, "extracted evidence", out)
	assert.Equal(t, "llama3.1:8b", stub.lastReq.Model)
	assert.Equal(t, "EXTRACT this", stub.lastReq.Prompt)
}

// stubAnthropic records the last request and returns a canned response.
type stubAnthropic struct {
	lastReq anthropicpkg.MessageRequest
}

func (s *stubAnthropic) CreateMessage(_ context.Context, req anthropicpkg.MessageRequest) (*anthropicpkg.MessageResponse, error) {
	s.lastReq = req
	return &anthropicpkg.MessageResponse{
		Content: []anthropicpkg.ContentBlock{{Type: "text", Text: "merged evidence"}},
	}, nil
}

func TestAnthropicBackend_Adapter(t *testing.T) {
	stub := &stubAnthropic{}
	backend := anthropicBackend(stub, 4096)

	out, err := backend.Generate(context.Background(), "claude-haiku-4-5-20251001", "CONSOLIDATE this")
	require.NoError(t, err)
	assert.Equal(t, "merged evidence", out)
	assert.Equal(t, "claude-haiku-4-5-20251001", stub.lastReq.Model)
	assert.Equal(t, int64(4096), stub.lastReq.MaxTokens)
	require.Len(t, stub.lastReq.Messages, 1)
	assert.Equal(t, "user", stub.lastReq.Messages[0].Role)
	assert.Equal(t, "CONSOLIDATE this", stub.lastReq.Messages[0].Content)
}

func TestAnthropicBackend_CachedSystemPreamble(t *testing.T) {
	stub := &stubAnthropic{}
	backend := anthropicBackend(stub, 4096)

	_, err := backend.Generate(context.Background(), "claude-haiku-4-5-20251001", "EXTRACT this")
	require.NoError(t, err)

	// The system preamble rides along on every call with a cache breakpoint,
	// so repeated batch calls within a run hit the prompt cache.
	require.Len(t, stub.lastReq.System, 1)
	assert.Equal(t, anthropicSystemPreamble, stub.lastReq.System[0].Text)
	require.NotNil(t, stub.lastReq.System[0].CacheControl)
	assert.Equal(t, "5m", stub.lastReq.System[0].CacheControl.TTL)

	first := stub.lastReq.System

	_, err = backend.Generate(context.Background(), "claude-haiku-4-5-20251001", "CONSOLIDATE this")
	require.NoError(t, err)
	assert.Equal(t, first, stub.lastReq.System)
}

func TestInitStore_SQLite(t *testing.T) {
	setTestConfig(t, nil)

	st, err := initStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
}

func TestInitStore_UnknownDriver(t *testing.T) {
	setTestConfig(t, func(c *config.Config) {
		c.Store.Driver = "mysql"
	})

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}
