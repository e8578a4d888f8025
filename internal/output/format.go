// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"

	"gtodo/internal/todo"
)

const (
	// ListSeparator is the separator line between the header and the tasks.
	ListSeparator = "------------"
)

// FormatTask formats a task line.
// Format: "{N:>4}  [{x| }] {TITLE}  ({PRIORITY}, {CATEGORY})\n"
func FormatTask(w io.Writer, num int, task todo.Task) {
	mark := " "
	if task.Completed {
		mark = "x"
	}
	fmt.Fprintf(w, "%4d  [%s] %s  (%s, %s)\n",
		num, mark, normalizeTitle(task.Title), task.ResolvedPriority(), normalizeCategory(task.Category))
}

// FormatTasks formats a numbered list of tasks. nums[i] is the number shown
// for tasks[i]; nil numbers them from 1.
func FormatTasks(w io.Writer, tasks []todo.Task, nums []int) {
	for i, t := range tasks {
		num := i + 1
		if nums != nil {
			num = nums[i]
		}
		FormatTask(w, num, t)
	}
}

// FormatProgress formats the completion header.
func FormatProgress(w io.Writer, p todo.Progress) {
	switch {
	case p.Total == 0:
		fmt.Fprintln(w, "no tasks")
	case p.Cleared():
		fmt.Fprintf(w, "%d / %d done, all cleared\n", p.Completed, p.Total)
	default:
		fmt.Fprintf(w, "%d / %d done, %d%%\n", p.Completed, p.Total, p.Percent())
	}
}

// FormatView formats the progress header and the numbered list, numbered as
// in FormatTasks. An active query or filter is shown above the separator.
func FormatView(w io.Writer, p todo.Progress, query string, filter *todo.Priority, tasks []todo.Task, nums []int) {
	FormatProgress(w, p)
	var active []string
	if query != "" {
		active = append(active, fmt.Sprintf("query %q", query))
	}
	if filter != nil {
		active = append(active, "priority "+filter.String())
	}
	if len(active) > 0 {
		fmt.Fprintf(w, "showing %s\n", strings.Join(active, ", "))
	}
	fmt.Fprintln(w, ListSeparator)
	FormatTasks(w, tasks, nums)
}

// FormatCategory formats a category with its completion count.
func FormatCategory(w io.Writer, name string, p todo.Progress) {
	fmt.Fprintf(w, "%s  %d / %d done\n", normalizeCategory(name), p.Completed, p.Total)
}

// normalizeTitle normalizes a task title for display.
// - Empty or whitespace-only titles become "(untitled)"
// - Newlines are replaced with spaces
func normalizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")

	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}

// normalizeCategory shows the default for a blank category.
func normalizeCategory(category string) string {
	if strings.TrimSpace(category) == "" {
		return todo.DefaultCategory
	}
	return category
}
