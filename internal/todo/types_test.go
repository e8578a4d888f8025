package todo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gtodo/internal/todo"
)

func TestResolvePriority(t *testing.T) {
	tests := []struct {
		in   string
		want todo.Priority
	}{
		{"High", todo.High},
		{"high", todo.High},
		{"HIGH", todo.High},
		{"Medium", todo.Medium},
		{"low", todo.Low},
		{" Low ", todo.Low},
		{"bogus", todo.Medium},
		{"", todo.Medium},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, todo.ResolvePriority(tt.in))
		})
	}
}

func TestResolvePriority_Levels(t *testing.T) {
	assert.Equal(t, 3, todo.ResolvePriority("high").Level())
	assert.Equal(t, 2, todo.ResolvePriority("bogus").Level())
	assert.Equal(t, 2, todo.ResolvePriority("").Level())
	assert.Equal(t, 1, todo.ResolvePriority("Low").Level())
}

func TestParsePriority(t *testing.T) {
	p, ok := todo.ParsePriority("medium")
	assert.True(t, ok)
	assert.Equal(t, todo.Medium, p)

	_, ok = todo.ParsePriority("urgent")
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	tasks := []todo.Task{
		{ID: "1", Completed: true},
		{ID: "2"},
		{ID: "3", Completed: true},
		{ID: "4"},
	}
	p := todo.Stats(tasks)
	assert.Equal(t, todo.Progress{Completed: 2, Total: 4}, p)
	assert.Equal(t, 50, p.Percent())
	assert.False(t, p.Cleared())

	assert.Equal(t, 0, todo.Stats(nil).Percent())
	assert.False(t, todo.Stats(nil).Cleared())
	assert.True(t, todo.Stats([]todo.Task{{Completed: true}}).Cleared())
}
