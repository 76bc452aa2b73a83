// Package condense implements the context-bounded batch reduction engine
// used to mine an unbounded set of retrieved text fragments through a
// text-generation backend with a finite input budget. Items are packed into
// budget-respecting batches, each batch is reduced by one backend call, and
// the partial extractions are consolidated level by level until a single
// result remains.
package condense

import (
	"fmt"
	"unicode/utf8"
)

// Item is a unit of engine input: either a raw scored fragment from the
// retrieval layer, or the output of a prior consolidation level re-entering
// the pipeline. The set of implementations is closed.
type Item interface {
	isItem()
}

// Chunk is a raw retrieved text fragment with its relevance score.
type Chunk struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Consolidated is one extraction result wrapped for the next level.
type Consolidated struct {
	Content string
	Meta    Meta
}

// Meta carries consolidation provenance.
type Meta struct {
	// Level is the consolidation depth that produced this item; raw chunks
	// are level 0, so Consolidated items always carry Level >= 1.
	Level int
	// Batch is the batch index at the prior level this item came from.
	Batch int
}

func (Chunk) isItem()        {}
func (Consolidated) isItem() {}

// formatItem renders an item with its position tag. Deterministic and total:
// the same item at the same position always yields the same string.
func formatItem(it Item, pos int) string {
	switch v := it.(type) {
	case Chunk:
		return fmt.Sprintf("[Chunk %d, Score %.2f]\n%s", pos+1, v.Score, v.Text)
	case Consolidated:
		return fmt.Sprintf("[Consolidated Level %d, Item %d]\n%s", v.Meta.Level, pos+1, v.Content)
	default:
		panic(fmt.Sprintf("condense: unknown item type %T", it))
	}
}

// itemText returns the splittable text payload of an item.
func itemText(it Item) string {
	switch v := it.(type) {
	case Chunk:
		return v.Text
	case Consolidated:
		return v.Content
	default:
		panic(fmt.Sprintf("condense: unknown item type %T", it))
	}
}

// withText returns a copy of it with the text payload replaced and every
// non-text field unchanged.
func withText(it Item, text string) Item {
	switch v := it.(type) {
	case Chunk:
		v.Text = text
		return v
	case Consolidated:
		v.Content = text
		return v
	default:
		panic(fmt.Sprintf("condense: unknown item type %T", it))
	}
}

// widePos is the position used when measuring tag overhead for splitting.
// Formatting a piece at any position up to five digits can only produce a
// tag at most as wide as this one.
const widePos = 99998

// splitItem breaks an oversized item into pieces whose formatted length fits
// within maxChars. Non-text fields are copied to every piece and the
// concatenation of the pieces' text reconstructs the original text exactly.
// Pieces never break inside a UTF-8 rune. When the budget is smaller than
// the tag overhead itself, splitting cannot help and the item is returned
// unchanged; the batcher ships it alone in an oversized batch.
func splitItem(it Item, maxChars int) []Item {
	overhead := len(formatItem(withText(it, ""), widePos))
	room := maxChars - overhead
	if room <= 0 {
		return []Item{it}
	}

	text := itemText(it)
	var pieces []Item
	for len(text) > 0 {
		n := room
		if n >= len(text) {
			n = len(text)
		} else {
			// Back off to a rune boundary.
			for n > 0 && !utf8.RuneStart(text[n]) {
				n--
			}
			if n == 0 {
				n = room
			}
		}
		pieces = append(pieces, withText(it, text[:n]))
		text = text[n:]
	}
	return pieces
}
