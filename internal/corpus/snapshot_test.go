package corpus

import (
	"prop-eval-go/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSnapshotSortsByID(t *testing.T) {
	snapshot := NewSnapshot(map[string][]model.Passage{
		"guidelines": {
			{ID: "doc#002", Text: "b"},
			{ID: "doc#000", Text: "a"},
			{ID: "doc#001", Text: "c"},
		},
	})

	passages, ok := snapshot.Passages("guidelines")
	assert.True(t, ok)
	assert.Equal(t, []string{"doc#000", "doc#001", "doc#002"},
		[]string{passages[0].ID, passages[1].ID, passages[2].ID})
}

func TestSnapshotUnknownScope(t *testing.T) {
	snapshot := NewSnapshot(map[string][]model.Passage{"guidelines": {}})

	_, ok := snapshot.Passages("nope")
	assert.False(t, ok)
	assert.False(t, snapshot.HasScope("nope"))
	assert.True(t, snapshot.HasScope("guidelines"))
}

func TestSnapshotDeclaredEmptyScope(t *testing.T) {
	snapshot := NewSnapshot(map[string][]model.Passage{"empty": {}})

	passages, ok := snapshot.Passages("empty")
	assert.True(t, ok)
	assert.Empty(t, passages)
}

func TestSnapshotScopesSorted(t *testing.T) {
	snapshot := NewSnapshot(map[string][]model.Passage{
		"past-proposals": {},
		"guidelines":     {},
	})
	assert.Equal(t, []string{"guidelines", "past-proposals"}, snapshot.Scopes())
}

func TestSnapshotCopiesInput(t *testing.T) {
	source := map[string][]model.Passage{
		"guidelines": {{ID: "doc#000", Text: "a"}},
	}
	snapshot := NewSnapshot(source)
	source["guidelines"][0].Text = "mutated"

	passages, _ := snapshot.Passages("guidelines")
	assert.Equal(t, "a", passages[0].Text)
}
