package condense

import (
	"strings"

	"go.uber.org/zap"
)

// itemSeparator joins formatted items inside a batch.
const itemSeparator = "\n\n"

// Batch is a budget-respecting group of formatted items sent to the backend
// in a single call.
type Batch struct {
	Content string
	Index   int
	Level   int
	Items   int
	// Oversized marks a batch whose single item could not be brought under
	// the budget even after splitting (budget below the tag overhead).
	Oversized bool
}

// buildBatches greedily packs items into batches whose content stays within
// maxChars. An item whose formatted form alone exceeds the budget is split
// first and its pieces packed in place. A piece that still cannot fit is
// emitted alone in its own oversized batch rather than dropped or re-split.
func buildBatches(items []Item, maxChars, level int) []Batch {
	var (
		batches  []Batch
		current  strings.Builder
		curItems int
		pos      int
	)

	flush := func() {
		if curItems == 0 {
			return
		}
		batches = append(batches, Batch{
			Content: current.String(),
			Index:   len(batches),
			Level:   level,
			Items:   curItems,
		})
		current.Reset()
		curItems = 0
	}

	place := func(formatted string) {
		if len(formatted) > maxChars {
			// Unsplittable under this budget: ship alone so the content is
			// not lost. The backend may truncate, but the engine never drops
			// input silently.
			flush()
			batches = append(batches, Batch{
				Content:   formatted,
				Index:     len(batches),
				Level:     level,
				Items:     1,
				Oversized: true,
			})
			zap.L().Warn("condense: item exceeds context budget after split",
				zap.Int("level", level),
				zap.Int("batch_index", len(batches)-1),
				zap.Int("formatted_chars", len(formatted)),
				zap.Int("max_context_chars", maxChars),
			)
			return
		}
		if curItems > 0 && current.Len()+len(itemSeparator)+len(formatted) > maxChars {
			flush()
		}
		if curItems > 0 {
			current.WriteString(itemSeparator)
		}
		current.WriteString(formatted)
		curItems++
	}

	for _, it := range items {
		formatted := formatItem(it, pos)
		if len(formatted) <= maxChars {
			place(formatted)
			pos++
			continue
		}
		for _, piece := range splitItem(it, maxChars) {
			place(formatItem(piece, pos))
			pos++
		}
	}
	flush()

	return batches
}
