package tasks

import (
	"fmt"

	"github.com/desertthunder/gpyt/internal/models"
)

// ProgressUpdate represents a progress event during a migration run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// ChunkProgress is the Data of an [UploadChunk] update.
type ChunkProgress struct {
	Key       string
	Confirmed int64
	Total     int64
}

// Operation phase enumeration
type Phase int

const (
	ListPage Phase = iota
	SkipItem
	PendingItem
	ProbeItem
	UploadChunk
	CommitItem
	FailItem
)

func (p Phase) String() string {
	switch p {
	case ListPage:
		return "list_page"
	case SkipItem:
		return "skip_item"
	case PendingItem:
		return "pending_item"
	case ProbeItem:
		return "probe_item"
	case UploadChunk:
		return "upload_chunk"
	case CommitItem:
		return "commit_item"
	case FailItem:
		return "fail_item"
	default:
		return ""
	}
}

func listPageUpdate(page int, token string) ProgressUpdate {
	msg := fmt.Sprintf("Listing page %d...", page)
	if token != "" {
		msg = fmt.Sprintf("Listing page %d (token %s)...", page, token)
	}
	return ProgressUpdate{Phase: ListPage, Step: page, Message: msg}
}

func skipItemUpdate(step, total int, item models.MediaItem, ref string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SkipItem,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] already migrated: %s -> %s", step, total, item.Filename, ref),
		Data:    item,
	}
}

func declinedItemUpdate(step, total int, item models.MediaItem) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SkipItem,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] skipped: %s", step, total, item.Filename),
		Data:    item,
	}
}

func pendingItemUpdate(step, total int, item models.MediaItem) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PendingItem,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] pending: %s", step, total, item.Filename),
		Data:    item,
	}
}

func probeItemUpdate(step, total int, item models.MediaItem) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ProbeItem,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching %s...", step, total, item.Filename),
		Data:    item,
	}
}

func uploadChunkUpdate(key string, confirmed, total int64) ProgressUpdate {
	pct := 100
	if total > 0 {
		pct = int(confirmed * 100 / total)
	}
	return ProgressUpdate{
		Phase:   UploadChunk,
		Step:    pct,
		Total:   100,
		Message: fmt.Sprintf("Uploaded %d/%d bytes", confirmed, total),
		Data:    ChunkProgress{Key: key, Confirmed: confirmed, Total: total},
	}
}

func commitItemUpdate(step, total int, item models.MediaItem, ref string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CommitItem,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s -> %s", step, total, item.Filename, ref),
		Data:    item,
	}
}

func failItemUpdate(step, total int, item models.MediaItem, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FailItem,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, item.Filename, err),
		Data:    item,
	}
}
