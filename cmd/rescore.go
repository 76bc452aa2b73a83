package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/biolit/litmine/internal/condense"
	"github.com/biolit/litmine/internal/prisma"
)

var (
	rescoreItem        string
	rescoreDescription string
	rescoreScore       float64
	rescoreExplanation string
	rescoreTitle       string
	rescoreChecklist   string
	rescoreInput       string
	rescoreSave        bool
)

// itemResult pairs one checklist item with its completeness result.
type itemResult struct {
	Item   string           `json:"item"`
	Result *condense.Result `json:"result"`
}

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Re-score checklist completeness against full-text chunks",
	Long:  "Runs the evidence-completeness profile over full-text chunks of a paper, for a single checklist item or every item of a YAML checklist definition.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("rescore"); err != nil {
			return err
		}

		backend, err := initBackend()
		if err != nil {
			return err
		}

		chunks, err := readChunks(rescoreInput)
		if err != nil {
			return err
		}

		params, err := resolveItems()
		if err != nil {
			return err
		}

		results := make([]itemResult, 0, len(params))
		for _, p := range params {
			proc, err := prisma.NewCompletenessProcessor(backend, p, engineConfig())
			if err != nil {
				return eris.Wrapf(err, "build processor for %s", p.ItemName)
			}

			zap.L().Info("rescoring item",
				zap.String("item", p.ItemName),
				zap.String("document", p.DocumentTitle),
				zap.Int("chunks", len(chunks)),
			)

			result := proc.Process(ctx, chunks, p.Query())

			zap.L().Info("item rescored",
				zap.String("item", p.ItemName),
				zap.String("status", string(result.Status)),
				zap.Int("backend_calls", result.Calls),
			)

			if rescoreSave {
				if err := saveRun(ctx, p.Query(), "rescore", result); err != nil {
					return err
				}
			}

			results = append(results, itemResult{Item: p.ItemName, Result: result})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if len(results) == 1 {
			return enc.Encode(results[0].Result)
		}
		return enc.Encode(results)
	},
}

// resolveItems builds the completeness params to run: one set from flags, or
// one per checklist item when a checklist file is given.
func resolveItems() ([]prisma.CompletenessParams, error) {
	base := prisma.CompletenessParams{
		ItemName:            rescoreItem,
		ItemDescription:     rescoreDescription,
		OriginalScore:       rescoreScore,
		OriginalExplanation: rescoreExplanation,
		DocumentTitle:       rescoreTitle,
	}

	if rescoreChecklist == "" {
		if base.ItemName == "" {
			return nil, eris.New("either --item or --checklist is required")
		}
		return []prisma.CompletenessParams{base}, nil
	}

	cl, err := prisma.LoadChecklist(rescoreChecklist)
	if err != nil {
		return nil, err
	}

	if base.ItemName != "" {
		item := cl.Find(base.ItemName)
		if item == nil {
			return nil, eris.Errorf("item %q not found in checklist %s", base.ItemName, cl.Name)
		}
		base.ItemDescription = item.Description
		return []prisma.CompletenessParams{base}, nil
	}

	params := make([]prisma.CompletenessParams, 0, len(cl.Items))
	for _, item := range cl.Items {
		p := base
		p.ItemName = item.Name
		p.ItemDescription = item.Description
		params = append(params, p)
	}
	return params, nil
}

func init() {
	rescoreCmd.Flags().StringVar(&rescoreItem, "item", "", "checklist item name")
	rescoreCmd.Flags().StringVar(&rescoreDescription, "description", "", "checklist item requirement text")
	rescoreCmd.Flags().Float64Var(&rescoreScore, "score", 0, "original abstract-only score")
	rescoreCmd.Flags().StringVar(&rescoreExplanation, "explanation", "", "original abstract-only assessment")
	rescoreCmd.Flags().StringVar(&rescoreTitle, "title", "", "document title")
	rescoreCmd.Flags().StringVar(&rescoreChecklist, "checklist", "", "path to YAML checklist definition")
	rescoreCmd.Flags().StringVar(&rescoreInput, "input", "-", "path to JSON chunk file, or - for stdin")
	rescoreCmd.Flags().BoolVar(&rescoreSave, "save", false, "persist each run to the configured store")
	rootCmd.AddCommand(rescoreCmd)
}
