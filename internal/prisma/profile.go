// Package prisma builds condense processors preconfigured for
// evidence-completeness re-scoring of reporting checklist items.
//
// A checklist item that scored poorly against an abstract gets a second
// pass over the document's full-text chunks. The profile bakes the item
// definition and the prior verdict into the prompt templates so the engine
// itself stays generic.
package prisma

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/biolit/litmine/internal/condense"
)

// CompletenessParams describes one checklist item being re-scored against a
// document's full text.
type CompletenessParams struct {
	// ItemName is the checklist item identifier, e.g. "8b. Randomization".
	ItemName string
	// ItemDescription is the full reporting requirement text.
	ItemDescription string
	// OriginalScore is the abstract-only score that triggered the re-scan.
	OriginalScore float64
	// OriginalExplanation justifies the abstract-only score.
	OriginalExplanation string
	// DocumentTitle identifies the paper under review.
	DocumentTitle string
}

func (p CompletenessParams) validate() error {
	if strings.TrimSpace(p.ItemName) == "" {
		return eris.New("prisma: item name is required")
	}
	if strings.TrimSpace(p.ItemDescription) == "" {
		return eris.New("prisma: item description is required")
	}
	return nil
}

// Query returns the research question the profile poses to the engine.
func (p CompletenessParams) Query() string {
	return fmt.Sprintf("Does the full text of %q completely report checklist item %s (%s)?",
		p.DocumentTitle, p.ItemName, p.ItemDescription)
}

const completenessExtractionTemplate = `You are assessing how completely a research paper reports a checklist item.

Paper: %s
Checklist item: %s
Item requirement: %s
Abstract-only score: %.2f
Abstract-only assessment: %s

Question: {query}

Full-text excerpts:
{content}

From the excerpts, extract every passage that bears on this checklist item. Quote exact sentences, keep the excerpt tags for provenance, and note explicitly when a required detail is absent from the excerpts.`

const completenessConsolidationTemplate = `You are consolidating evidence about how completely a research paper reports a checklist item.

Paper: %s
Checklist item: %s
Item requirement: %s
Abstract-only score: %.2f
Abstract-only assessment: %s

Question: {query}

Partial findings:
{content}

Merge the partial findings into a single assessment of reporting completeness for this item. Remove duplicates, preserve exact quotes and provenance tags, and state which required details were found and which remain missing.`

// NewCompletenessProcessor returns a processor whose prompts carry the
// checklist item definition and the prior abstract-only verdict. Any
// templates already set on cfg are overwritten; the remaining engine
// settings pass through untouched.
func NewCompletenessProcessor(backend condense.Backend, params CompletenessParams, cfg condense.Config) (*condense.Processor, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	fill := func(tmpl string) string {
		return fmt.Sprintf(tmpl,
			params.DocumentTitle,
			params.ItemName,
			params.ItemDescription,
			params.OriginalScore,
			params.OriginalExplanation,
		)
	}
	cfg.ExtractionPrompt = fill(completenessExtractionTemplate)
	cfg.ConsolidationPrompt = fill(completenessConsolidationTemplate)

	return condense.NewProcessor(backend, cfg)
}
