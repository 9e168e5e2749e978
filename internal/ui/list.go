package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/gpyt/internal/tasks"
	"github.com/dustin/go-humanize"
)

var _ list.Item = outcomeItem{}

// outcomeItem wraps [tasks.ItemResult] to implement [list.Item].
type outcomeItem struct {
	result tasks.ItemResult
}

func (i outcomeItem) FilterValue() string { return i.result.Item.Filename }

func (i outcomeItem) Title() string {
	switch {
	case i.result.Err != nil:
		return styles.err.Render("✗ ") + i.result.Item.Filename
	case i.result.Skipped:
		return "• " + i.result.Item.Filename
	case i.result.Declined, i.result.Pending:
		return styles.warn.Render("○ ") + i.result.Item.Filename
	default:
		return styles.ok.Render("✓ ") + i.result.Item.Filename
	}
}

func (i outcomeItem) Description() string {
	switch {
	case i.result.Err != nil:
		return i.result.Err.Error()
	case i.result.Skipped:
		return fmt.Sprintf("already migrated • %s", i.result.Reference)
	case i.result.Declined:
		return "skipped, left for a later run"
	case i.result.Pending:
		return "pending (dry run)"
	default:
		return fmt.Sprintf("%s • %s", i.result.Reference, humanize.IBytes(uint64(i.result.Bytes)))
	}
}

func outcomeItems(result *tasks.RunResult) []list.Item {
	if result == nil {
		return nil
	}
	items := make([]list.Item, len(result.Items))
	for i, r := range result.Items {
		items[i] = outcomeItem{result: r}
	}
	return items
}
