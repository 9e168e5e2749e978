package tasks

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/gpyt/internal/models"
)

// DefaultTag marks every video uploaded by the tool.
const DefaultTag = "google-photos-to-youtube"

// maxTitleRunes is the longest title YouTube accepts.
const maxTitleRunes = 100

// TargetProvider decides the metadata a video is uploaded with.
// Returning an error wrapping [shared.ErrSkipItem] leaves the item for a later run.
type TargetProvider interface {
	Target(ctx context.Context, item models.MediaItem) (models.UploadTarget, error)
}

// TargetFunc adapts a function to [TargetProvider].
type TargetFunc func(ctx context.Context, item models.MediaItem) (models.UploadTarget, error)

func (f TargetFunc) Target(ctx context.Context, item models.MediaItem) (models.UploadTarget, error) {
	return f(ctx, item)
}

// DefaultTargets fills in metadata without asking: the item's description or filename as
// title, a provenance description and the configured tags and visibility.
type DefaultTargets struct {
	Visibility models.Visibility
	Tags       []string
}

// Target implements [TargetProvider].
func (d DefaultTargets) Target(_ context.Context, item models.MediaItem) (models.UploadTarget, error) {
	visibility := d.Visibility
	if visibility == "" {
		visibility = models.VisibilityPrivate
	}

	tags := []string{DefaultTag}
	for _, tag := range d.Tags {
		if !slices.Contains(tags, tag) {
			tags = append(tags, tag)
		}
	}

	return models.UploadTarget{
		Title:       DefaultTitle(item),
		Description: DefaultDescription(item),
		Tags:        tags,
		Visibility:  visibility,
	}, nil
}

// DefaultTitle is the item description, or its filename when the description is blank.
// Angle brackets are removed and the result is cut to the length YouTube allows.
func DefaultTitle(item models.MediaItem) string {
	title := strings.TrimSpace(item.Description)
	if title == "" {
		title = item.Filename
	}
	title = strings.NewReplacer("<", "", ">", "").Replace(title)
	title = strings.Join(strings.Fields(title), " ")

	if r := []rune(title); len(r) > maxTitleRunes {
		title = strings.TrimSpace(string(r[:maxTitleRunes]))
	}
	return title
}

// DefaultDescription lists where the video came from.
func DefaultDescription(item models.MediaItem) string {
	lines := []string{"Migrated from Google Photos with gpyt"}
	if !item.CreationTime.IsZero() {
		lines = append(lines, "Original creation time: "+item.CreationTime.UTC().Format(time.RFC3339))
	}
	lines = append(lines, "Google photo ID: "+item.ID)
	if item.ProductURL != "" {
		lines = append(lines, "Original URL: "+item.ProductURL)
	}
	return " - " + strings.Join(lines, "\n - ")
}
