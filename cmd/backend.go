package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/biolit/litmine/internal/condense"
	"github.com/biolit/litmine/internal/store"
	anthropicpkg "github.com/biolit/litmine/pkg/anthropic"
	"github.com/biolit/litmine/pkg/ollama"
)

// engineConfig maps the loaded application config onto an engine config.
func engineConfig() condense.Config {
	model := cfg.Ollama.Model
	if cfg.Backend == "anthropic" {
		model = cfg.Anthropic.Model
	}
	return condense.Config{
		Model:            model,
		MaxContextChars:  cfg.Engine.MaxContextChars,
		ContinueOnError:  cfg.Engine.ContinueOnError,
		StructuredOutput: cfg.Engine.StructuredOutput,
		Concurrency:      cfg.Engine.Concurrency,
		CallTimeout:      time.Duration(cfg.Engine.CallTimeoutSecs) * time.Second,
	}
}

// initBackend builds the configured text-generation backend.
func initBackend() (condense.Backend, error) {
	switch cfg.Backend {
	case "ollama":
		opts := []ollama.Option{ollama.WithBaseURL(cfg.Ollama.BaseURL)}
		if cfg.Ollama.RequestsPerSecond > 0 {
			opts = append(opts, ollama.WithRateLimit(cfg.Ollama.RequestsPerSecond))
		}
		return ollamaBackend(ollama.NewClient(opts...)), nil
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("anthropic API key is required (LITMINE_ANTHROPIC_KEY)")
		}
		return anthropicBackend(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.MaxTokens), nil
	default:
		return nil, eris.Errorf("unsupported backend: %s", cfg.Backend)
	}
}

// ollamaBackend adapts an Ollama client to the engine's backend interface.
func ollamaBackend(client ollama.Client) condense.Backend {
	return condense.BackendFunc(func(ctx context.Context, model, prompt string) (string, error) {
		resp, err := client.Generate(ctx, ollama.GenerateRequest{
			Model:  model,
			Prompt: prompt,
		})
		if err != nil {
			return "", err
		}
		return resp.Response, nil
	})
}

// anthropicSystemPreamble is sent as a cached system block on every call.
// It is identical across all batches and levels of a run, so consecutive
// calls hit the prompt cache.
const anthropicSystemPreamble = "You are a precise biomedical literature mining assistant. Follow the instructions in each message exactly, quote source text verbatim where asked, and never add information that is not present in the provided fragments."

// anthropicBackend adapts an Anthropic client to the engine's backend
// interface, logging token cost per call.
func anthropicBackend(client anthropicpkg.Client, maxTokens int64) condense.Backend {
	system := anthropicpkg.BuildCachedSystemBlocks(anthropicSystemPreamble)
	return condense.BackendFunc(func(ctx context.Context, model, prompt string) (string, error) {
		resp, err := client.CreateMessage(ctx, anthropicpkg.MessageRequest{
			Model:     model,
			MaxTokens: maxTokens,
			System:    system,
			Messages: []anthropicpkg.Message{
				{Role: "user", Content: prompt},
			},
		})
		if err != nil {
			return "", err
		}
		resp.Usage.LogCost(model, "extract")
		return resp.Text(), nil
	})
}

// initStore builds the configured run store.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
