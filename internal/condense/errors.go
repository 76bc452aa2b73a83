package condense

import "github.com/rotisserie/eris"

// Construction-time configuration errors. These always abort: a processor
// with a defaulted prompt or budget would silently mine the wrong thing.
var (
	// ErrBadBudget is returned when MaxContextChars is zero or negative.
	ErrBadBudget = eris.New("condense: max context chars must be positive")
	// ErrBadTemplate is returned when a prompt template is missing the
	// literal {query} or {content} placeholder.
	ErrBadTemplate = eris.New("condense: prompt template missing required placeholder")
	// ErrNoBackend is returned when no backend is supplied.
	ErrNoBackend = eris.New("condense: backend is required")
)

// BatchError records one failed extraction. Failures are accumulated on the
// Result rather than propagated, so a bad batch cannot erase evidence that
// other batches already produced.
type BatchError struct {
	BatchIndex int    `json:"batch_index"`
	Level      int    `json:"recursion_level"`
	Message    string `json:"message"`
}
