package pipeline_test

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtodo/internal/pipeline"
	"gtodo/internal/todo"
)

func scenario() []todo.Task {
	return []todo.Task{
		{ID: "1", Title: "Buy milk", Priority: "Low"},
		{ID: "2", Title: "Submit report", Priority: "High"},
		{ID: "3", Title: "Call mom", Priority: "Medium"},
	}
}

func ids(tasks []todo.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func priorityPtr(p todo.Priority) *todo.Priority { return &p }

func TestDerive_SortsByPriority(t *testing.T) {
	got := pipeline.Derive(scenario(), "", nil)
	assert.Equal(t, []string{"2", "3", "1"}, ids(got))
}

func TestDerive_QueryIsCaseInsensitive(t *testing.T) {
	got := pipeline.Derive(scenario(), "ca", nil)
	assert.Equal(t, []string{"3"}, ids(got))

	got = pipeline.Derive(scenario(), "REPORT", nil)
	assert.Equal(t, []string{"2"}, ids(got))
}

func TestDerive_PriorityFilter(t *testing.T) {
	raw := append(scenario(),
		todo.Task{ID: "4", Title: "Pay rent", Priority: "HIGH"},
		todo.Task{ID: "5", Title: "Water plants", Priority: "bogus"},
	)

	got := pipeline.Derive(raw, "", priorityPtr(todo.High))
	assert.Equal(t, []string{"2", "4"}, ids(got))

	// bogus sorts as Medium but does not carry the Medium name.
	got = pipeline.Derive(raw, "", priorityPtr(todo.Medium))
	assert.Equal(t, []string{"3"}, ids(got))
}

func TestDerive_QueryAndFilter(t *testing.T) {
	raw := []todo.Task{
		{ID: "a", Title: "Call plumber", Priority: "Low"},
		{ID: "b", Title: "Call mom", Priority: "Medium"},
		{ID: "c", Title: "Cancel gym", Priority: "Low"},
	}
	got := pipeline.Derive(raw, "call", priorityPtr(todo.Low))
	assert.Equal(t, []string{"a"}, ids(got))
}

func TestDerive_UnicodeFolding(t *testing.T) {
	raw := []todo.Task{
		{ID: "1", Title: "Öl wechseln"},
		{ID: "2", Title: "ÉTUDIER"},
	}
	assert.Equal(t, []string{"1"}, ids(pipeline.Derive(raw, "öL", nil)))
	assert.Equal(t, []string{"2"}, ids(pipeline.Derive(raw, "étud", nil)))
}

func TestDerive_StableForEqualPriority(t *testing.T) {
	raw := []todo.Task{
		{ID: "m1", Title: "one", Priority: "Medium"},
		{ID: "h1", Title: "two", Priority: "High"},
		{ID: "m2", Title: "three", Priority: "junk"},
		{ID: "h2", Title: "four", Priority: "high"},
		{ID: "m3", Title: "five", Priority: ""},
	}
	got := pipeline.Derive(raw, "", nil)
	assert.Equal(t, []string{"h1", "h2", "m1", "m2", "m3"}, ids(got))
}

func TestDerive_DoesNotMutateInput(t *testing.T) {
	raw := scenario()
	before := append([]todo.Task(nil), raw...)

	_ = pipeline.Derive(raw, "", nil)
	assert.Equal(t, before, raw)
}

func TestDerive_Empty(t *testing.T) {
	got := pipeline.Derive(nil, "x", nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDerive_DeletedItemDisappears(t *testing.T) {
	before := pipeline.Derive(scenario(), "", nil)
	require.Contains(t, ids(before), "2")

	next := []todo.Task{scenario()[0], scenario()[2]}
	after := pipeline.Derive(next, "", nil)
	assert.NotContains(t, ids(after), "2")
}

// randomSnapshot builds a snapshot with unique ids and a mix of valid and
// malformed priorities.
func randomSnapshot(r *rand.Rand) []todo.Task {
	words := []string{"buy", "Call", "write", "MILK", "report", "mom", "plan"}
	prios := []string{"High", "medium", "LOW", "", "bogus", "Medium"}
	n := r.Intn(20)
	out := make([]todo.Task, n)
	for i := range out {
		out[i] = todo.Task{
			ID:       fmt.Sprintf("t%d", i),
			Title:    words[r.Intn(len(words))] + " " + words[r.Intn(len(words))],
			Priority: prios[r.Intn(len(prios))],
		}
	}
	return out
}

func TestDerive_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	queries := []string{"", "ca", "MILK", "o", "zzz"}
	filters := []*todo.Priority{nil, priorityPtr(todo.High), priorityPtr(todo.Medium), priorityPtr(todo.Low)}

	for i := 0; i < 200; i++ {
		raw := randomSnapshot(r)
		q := queries[r.Intn(len(queries))]
		f := filters[r.Intn(len(filters))]

		got := pipeline.Derive(raw, q, f)

		// Deterministic.
		assert.Equal(t, got, pipeline.Derive(raw, q, f))

		pos := make(map[string]int, len(raw))
		for j, task := range raw {
			pos[task.ID] = j
		}

		for j, task := range got {
			// Nothing invented.
			_, ok := pos[task.ID]
			require.True(t, ok, "derived task %s not in raw", task.ID)

			// Both predicates hold.
			assert.Contains(t, strings.ToLower(task.Title), strings.ToLower(q))
			if f != nil {
				assert.True(t, strings.EqualFold(task.Priority, f.String()))
			}

			if j == 0 {
				continue
			}
			prev := got[j-1]
			pl, tl := prev.ResolvedPriority().Level(), task.ResolvedPriority().Level()
			require.GreaterOrEqual(t, pl, tl)
			if pl == tl {
				// Stable among equals.
				assert.Less(t, pos[prev.ID], pos[task.ID])
			}
		}
	}
}
