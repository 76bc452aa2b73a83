package condense

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Status is the terminal outcome of one Process call.
type Status string

const (
	// StatusCompleted means every batch at every level succeeded.
	StatusCompleted Status = "completed"
	// StatusPartial means some batches failed but usable content survived.
	StatusPartial Status = "partial"
	// StatusFailed means no usable content could be produced.
	StatusFailed Status = "failed"
)

// DefaultExtractionPrompt is the level-0 template used when none is
// configured. It extracts evidence relevant to the query from raw fragments.
const DefaultExtractionPrompt = `You are a biomedical research assistant mining retrieved literature fragments.

Research question: {query}

Text fragments:
{content}

Extract every statement from the fragments that bears on the research question. Quote exact sentences where possible, keep the fragment tags for provenance, and do not add information that is not present in the fragments.`

// DefaultConsolidationPrompt merges partial extractions from a prior level.
const DefaultConsolidationPrompt = `You are a biomedical research assistant consolidating partial evidence extractions.

Research question: {query}

Partial extractions:
{content}

Merge these partial extractions into a single coherent summary of the evidence for the research question. Remove duplicates, preserve exact quotes and provenance tags, and do not add information that is not present in the extractions.`

// Config controls one processor. The zero value is not usable: a positive
// MaxContextChars is required and both prompt templates must carry the
// literal {query} and {content} placeholders.
type Config struct {
	// Model is passed through to the backend on every call.
	Model string
	// MaxContextChars bounds the packed character length of each batch.
	MaxContextChars int
	// ContinueOnError keeps processing remaining batches after a failure,
	// accumulating errors instead of aborting.
	ContinueOnError bool
	// StructuredOutput parses backend responses as JSON with
	// extracted_content/confidence keys, falling back to raw text.
	StructuredOutput bool
	// Concurrency is the number of batches extracted in parallel within one
	// level. Values below 2 give the sequential reference behavior.
	Concurrency int
	// CallTimeout applies per backend call, not to the whole pipeline.
	CallTimeout time.Duration
	// ExtractionPrompt is the level-0 template. Empty selects
	// DefaultExtractionPrompt.
	ExtractionPrompt string
	// ConsolidationPrompt is the template for levels above zero. Empty
	// selects DefaultConsolidationPrompt.
	ConsolidationPrompt string
}

// Result is the terminal, immutable outcome of a Process call. Callers
// branch on Status: Partial carries best-effort content flagged by Errors.
type Result struct {
	Status     Status       `json:"status"`
	Content    string       `json:"content"`
	Confidence float64      `json:"confidence"`
	Errors     []BatchError `json:"errors,omitempty"`
	Calls      int          `json:"backend_calls"`
	Levels     int          `json:"levels"`
	DurationMS int64        `json:"duration_ms"`
}

// Processor drives the batch-extract-consolidate loop. It holds no state
// across Process calls beyond its immutable config and the shared backend
// handle, so identical inputs against a deterministic backend are idempotent.
type Processor struct {
	cfg     Config
	backend Backend
}

// NewProcessor validates cfg and returns a ready processor. An unset prompt
// template gets the package default; a template that is set but missing a
// placeholder is a hard error, never patched up.
func NewProcessor(backend Backend, cfg Config) (*Processor, error) {
	if backend == nil {
		return nil, ErrNoBackend
	}
	if cfg.MaxContextChars <= 0 {
		return nil, ErrBadBudget
	}
	if cfg.ExtractionPrompt == "" {
		cfg.ExtractionPrompt = DefaultExtractionPrompt
	}
	if cfg.ConsolidationPrompt == "" {
		cfg.ConsolidationPrompt = DefaultConsolidationPrompt
	}
	for _, tmpl := range []struct{ name, text string }{
		{"extraction", cfg.ExtractionPrompt},
		{"consolidation", cfg.ConsolidationPrompt},
	} {
		for _, ph := range []string{queryPlaceholder, contentPlaceholder} {
			if !strings.Contains(tmpl.text, ph) {
				return nil, eris.Wrapf(ErrBadTemplate, "%s template lacks %s", tmpl.name, ph)
			}
		}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Processor{cfg: cfg, backend: backend}, nil
}

// Process reduces items to a single answer for query. Extraction failures
// never escape: they are folded into the result's Status and Errors, so a
// bad batch cannot erase evidence other batches already produced.
// Cancellation between batches returns the work completed so far.
func (p *Processor) Process(ctx context.Context, items []Item, query string) *Result {
	start := time.Now()
	res := &Result{Status: StatusCompleted}
	if len(items) == 0 {
		return res
	}

	current := items
	prevBatches, prevSize := 0, 0
	for level := 0; ; level++ {
		batches := buildBatches(current, p.cfg.MaxContextChars, level)
		size := 0
		for _, b := range batches {
			size += len(b.Content)
		}
		if level > 0 && len(batches) > 1 && len(batches) >= prevBatches && size >= prevSize {
			// Neither the batch count nor the packed size shrank, so
			// another round cannot converge. Join what the prior level
			// produced instead of looping.
			parts := make([]string, len(current))
			for i, it := range current {
				parts[i] = itemText(it)
			}
			res.Content = strings.Join(parts, itemSeparator)
			res.Confidence = defaultConfidence
			res.Status = StatusPartial
			res.DurationMS = time.Since(start).Milliseconds()
			zap.L().Warn("condense: consolidation not converging, joining partial results",
				zap.Int("level", level),
				zap.Int("batches", len(batches)),
			)
			return res
		}
		prevBatches, prevSize = len(batches), size
		res.Levels = level + 1
		zap.L().Debug("condense: level packed",
			zap.Int("level", level),
			zap.Int("items", len(current)),
			zap.Int("batches", len(batches)),
		)

		lr := p.runLevel(ctx, batches, query)
		res.Calls += lr.calls
		res.Errors = append(res.Errors, lr.errs...)

		var successes []*Extraction
		var successIdx []int
		for i, ext := range lr.extractions {
			if ext != nil {
				successes = append(successes, ext)
				successIdx = append(successIdx, batches[i].Index)
			}
		}

		switch {
		case lr.cancelled:
			p.finishCancelled(res, successes, current, level)
			res.DurationMS = time.Since(start).Milliseconds()
			return res

		case lr.aborted, len(successes) == 0:
			res.Status = StatusFailed
			res.DurationMS = time.Since(start).Milliseconds()
			zap.L().Warn("condense: processing failed",
				zap.Int("levels", res.Levels),
				zap.Int("backend_calls", res.Calls),
				zap.Int("errors", len(res.Errors)),
			)
			return res

		case len(batches) == 1:
			res.Content = successes[0].Content
			res.Confidence = successes[0].Confidence
			if len(res.Errors) > 0 {
				res.Status = StatusPartial
			}
			res.DurationMS = time.Since(start).Milliseconds()
			zap.L().Info("condense: processing complete",
				zap.String("status", string(res.Status)),
				zap.Int("levels", res.Levels),
				zap.Int("backend_calls", res.Calls),
				zap.Int("errors", len(res.Errors)),
				zap.Int64("duration_ms", res.DurationMS),
			)
			return res
		}

		// Multiple batches with at least one success: wrap each success for
		// the next consolidation level. The item count strictly decreases,
		// so the loop terminates.
		next := make([]Item, 0, len(successes))
		for k, ext := range successes {
			next = append(next, Consolidated{
				Content: ext.Content,
				Meta:    Meta{Level: level + 1, Batch: successIdx[k]},
			})
		}
		current = next
	}
}

// finishCancelled fills res with the best content available at cancellation
// time instead of discarding completed work.
func (p *Processor) finishCancelled(res *Result, successes []*Extraction, current []Item, level int) {
	switch {
	case len(successes) > 0:
		res.Content = joinExtractions(successes)
		res.Confidence = meanConfidence(successes)
		res.Status = StatusPartial
	case level > 0:
		// This level produced nothing, but the prior level's consolidated
		// output is still usable evidence.
		parts := make([]string, len(current))
		for i, it := range current {
			parts[i] = itemText(it)
		}
		res.Content = strings.Join(parts, itemSeparator)
		res.Confidence = defaultConfidence
		res.Status = StatusPartial
	default:
		res.Status = StatusFailed
	}
}

// levelResult carries the outcome of one level of extraction.
type levelResult struct {
	extractions []*Extraction // slot per batch; nil = failed or unattempted
	errs        []BatchError  // ordered by batch index
	calls       int
	aborted     bool // fail-fast abort
	cancelled   bool // context cancellation
}

func (p *Processor) runLevel(ctx context.Context, batches []Batch, query string) levelResult {
	if p.cfg.Concurrency > 1 && len(batches) > 1 {
		return p.runLevelParallel(ctx, batches, query)
	}

	lr := levelResult{extractions: make([]*Extraction, len(batches))}
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			lr.errs = append(lr.errs, BatchError{BatchIndex: b.Index, Level: b.Level, Message: err.Error()})
			lr.cancelled = true
			return lr
		}
		ext, err := p.extract(ctx, b, query)
		lr.calls++
		if err != nil {
			zap.L().Warn("condense: batch extraction failed",
				zap.Int("batch_index", b.Index),
				zap.Int("level", b.Level),
				zap.Error(err),
			)
			lr.errs = append(lr.errs, BatchError{BatchIndex: b.Index, Level: b.Level, Message: err.Error()})
			if ctx.Err() != nil {
				lr.cancelled = true
				return lr
			}
			if !p.cfg.ContinueOnError {
				lr.aborted = true
				return lr
			}
			continue
		}
		lr.extractions[i] = ext
	}
	return lr
}

// runLevelParallel extracts the batches of one level concurrently. Batches
// are mutually independent, so only the call counter needs a lock; error
// ordering stays deterministic because failures land in per-batch slots
// that are collected in index order after the join.
func (p *Processor) runLevelParallel(ctx context.Context, batches []Batch, query string) levelResult {
	lr := levelResult{extractions: make([]*Extraction, len(batches))}
	errSlots := make([]*BatchError, len(batches))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for i, b := range batches {
		g.Go(func() error {
			ext, err := p.extract(gctx, b, query)
			mu.Lock()
			lr.calls++
			mu.Unlock()
			if err != nil {
				zap.L().Warn("condense: batch extraction failed",
					zap.Int("batch_index", b.Index),
					zap.Int("level", b.Level),
					zap.Error(err),
				)
				errSlots[i] = &BatchError{BatchIndex: b.Index, Level: b.Level, Message: err.Error()}
				if !p.cfg.ContinueOnError {
					return err // cancels the remaining batches via gctx
				}
			} else {
				lr.extractions[i] = ext
			}
			return nil
		})
	}

	groupErr := g.Wait()
	for _, e := range errSlots {
		if e != nil {
			lr.errs = append(lr.errs, *e)
		}
	}
	if ctx.Err() != nil {
		lr.cancelled = true
	} else if groupErr != nil {
		lr.aborted = true
	}
	return lr
}

func joinExtractions(exts []*Extraction) string {
	parts := make([]string, len(exts))
	for i, e := range exts {
		parts[i] = e.Content
	}
	return strings.Join(parts, itemSeparator)
}

func meanConfidence(exts []*Extraction) float64 {
	if len(exts) == 0 {
		return 0
	}
	var sum float64
	for _, e := range exts {
		sum += e.Confidence
	}
	return sum / float64(len(exts))
}
