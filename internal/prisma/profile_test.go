package prisma

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biolit/litmine/internal/condense"
)

type recordingBackend struct {
	mu      sync.Mutex
	prompts []string
	reply   string
}

func (b *recordingBackend) Generate(_ context.Context, _ string, prompt string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompts = append(b.prompts, prompt)
	return b.reply, nil
}

var _ condense.Backend = (*recordingBackend)(nil)

func testParams() CompletenessParams {
	return CompletenessParams{
		ItemName:            "8b. Randomization",
		ItemDescription:     "Describe the method used to generate the random allocation sequence.",
		OriginalScore:       0.3,
		OriginalExplanation: "Abstract mentions randomization but gives no method.",
		DocumentTitle:       "Aspirin for primary prevention: a randomized trial",
	}
}

func TestNewCompletenessProcessor_PromptsCarryItemContext(t *testing.T) {
	backend := &recordingBackend{reply: "randomization was computer-generated"}
	p, err := NewCompletenessProcessor(backend, testParams(), condense.Config{
		Model:           "llama3.1:8b",
		MaxContextChars: 4000,
	})
	require.NoError(t, err)

	items := []condense.Item{
		condense.Chunk{Text: "Patients were assigned using a computer-generated sequence.", Score: 0.8},
	}
	res := p.Process(context.Background(), items, testParams().Query())

	assert.Equal(t, condense.StatusCompleted, res.Status)
	require.Len(t, backend.prompts, 1)
	prompt := backend.prompts[0]
	assert.Contains(t, prompt, "8b. Randomization")
	assert.Contains(t, prompt, "random allocation sequence")
	assert.Contains(t, prompt, "0.30")
	assert.Contains(t, prompt, "gives no method")
	assert.Contains(t, prompt, "Aspirin for primary prevention")
	assert.Contains(t, prompt, "computer-generated sequence")
	assert.NotContains(t, prompt, "{query}")
	assert.NotContains(t, prompt, "{content}")
}

func TestNewCompletenessProcessor_ConsolidationCarriesItemContext(t *testing.T) {
	backend := &recordingBackend{reply: "randomization method reported in full"}
	p, err := NewCompletenessProcessor(backend, testParams(), condense.Config{
		Model:           "llama3.1:8b",
		MaxContextChars: 300,
	})
	require.NoError(t, err)

	items := []condense.Item{
		condense.Chunk{Text: strings.Repeat("methods text ", 18), Score: 0.9},
		condense.Chunk{Text: strings.Repeat("results text ", 18), Score: 0.7},
	}
	res := p.Process(context.Background(), items, testParams().Query())
	require.NotEqual(t, condense.StatusFailed, res.Status)
	require.Greater(t, len(backend.prompts), 2)

	last := backend.prompts[len(backend.prompts)-1]
	assert.Contains(t, last, "Partial findings")
	assert.Contains(t, last, "8b. Randomization")
}

func TestNewCompletenessProcessor_Validation(t *testing.T) {
	backend := &recordingBackend{}

	params := testParams()
	params.ItemName = "  "
	_, err := NewCompletenessProcessor(backend, params, condense.Config{MaxContextChars: 100})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item name")

	params = testParams()
	params.ItemDescription = ""
	_, err = NewCompletenessProcessor(backend, params, condense.Config{MaxContextChars: 100})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item description")

	_, err = NewCompletenessProcessor(backend, testParams(), condense.Config{})
	assert.Error(t, err)
}

func TestCompletenessParams_Query(t *testing.T) {
	q := testParams().Query()
	assert.Contains(t, q, "8b. Randomization")
	assert.Contains(t, q, "Aspirin for primary prevention")
}
