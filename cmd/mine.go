package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/biolit/litmine/internal/condense"
)

var (
	mineQuery string
	mineInput string
	mineSave  bool
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Extract evidence for a research question from scored chunks",
	Long:  "Reads a JSON array of scored text chunks, runs the batch-extract-consolidate loop against the configured backend, and prints the result as JSON.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("mine"); err != nil {
			return err
		}

		backend, err := initBackend()
		if err != nil {
			return err
		}

		proc, err := condense.NewProcessor(backend, engineConfig())
		if err != nil {
			return eris.Wrap(err, "build processor")
		}

		items, err := readChunks(mineInput)
		if err != nil {
			return err
		}

		zap.L().Info("mining started",
			zap.String("query", mineQuery),
			zap.Int("chunks", len(items)),
			zap.String("backend", cfg.Backend),
		)

		result := proc.Process(ctx, items, mineQuery)

		zap.L().Info("mining finished",
			zap.String("status", string(result.Status)),
			zap.Int("backend_calls", result.Calls),
			zap.Int("levels", result.Levels),
			zap.Int("errors", len(result.Errors)),
		)

		if mineSave {
			if err := saveRun(ctx, mineQuery, "mine", result); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	mineCmd.Flags().StringVar(&mineQuery, "query", "", "research question (required)")
	mineCmd.Flags().StringVar(&mineInput, "input", "-", "path to JSON chunk file, or - for stdin")
	mineCmd.Flags().BoolVar(&mineSave, "save", false, "persist the run to the configured store")
	_ = mineCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(mineCmd)
}

// readChunks loads scored chunks from a JSON file, or stdin when path is "-".
func readChunks(path string) ([]condense.Item, error) {
	var r io.Reader
	if path == "-" || path == "" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "open chunk file")
		}
		defer f.Close() //nolint:errcheck
		r = f
	}
	return decodeChunks(r)
}

// decodeChunks parses a JSON array of {"text": ..., "score": ...} objects.
func decodeChunks(r io.Reader) ([]condense.Item, error) {
	var chunks []condense.Chunk
	if err := json.NewDecoder(r).Decode(&chunks); err != nil {
		return nil, eris.Wrap(err, "decode chunks")
	}

	items := make([]condense.Item, 0, len(chunks))
	for _, c := range chunks {
		items = append(items, c)
	}
	return items, nil
}

// saveRun records a finished engine run in the configured store.
func saveRun(ctx context.Context, query, profile string, result *condense.Result) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	if err := st.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate store")
	}

	model := engineConfig().Model
	run, err := st.CreateRun(ctx, query, profile, model)
	if err != nil {
		return eris.Wrap(err, "create run")
	}
	if err := st.CompleteRun(ctx, run.ID, result); err != nil {
		return eris.Wrap(err, "complete run")
	}

	zap.L().Info("run saved", zap.String("run_id", run.ID))
	return nil
}
