package main

import (
	"context"

	"github.com/desertthunder/gpyt/internal/formatter"
	"github.com/desertthunder/gpyt/internal/models"
	"github.com/urfave/cli/v3"
)

// VideosList prints videos of the Google Photos library, following page tokens until --limit is reached.
func (r *Runner) VideosList(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	token := cmd.String("page-token")

	photos, err := r.photosService(ctx)
	if err != nil {
		return err
	}

	var items []models.MediaItem
	for {
		pageSize := r.config.Migration.PageSize
		if limit > 0 {
			pageSize = min(pageSize, limit-len(items))
		}

		page, err := photos.ListVideos(ctx, token, pageSize)
		if err != nil {
			return err
		}
		items = append(items, page.Items...)
		token = page.NextPageToken
		r.logger.Debug("listed page", "items", len(page.Items), "next", token)

		if token == "" || (limit > 0 && len(items) >= limit) {
			break
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(struct {
			Items         []models.MediaItem `json:"items"`
			NextPageToken string             `json:"next_page_token,omitempty"`
		}{items, token}, cmd.Bool("pretty"))
	}

	r.writePlain("Found %d videos:\n\n", len(items))
	for i, item := range items {
		r.writePlain("%d. %s\n", i+1, item.Filename)
		if !item.CreationTime.IsZero() {
			r.writePlain("   Created: %s\n", item.CreationTime.Local().Format("2006-01-02 15:04"))
		}
		if item.Size > 0 {
			r.writePlain("   Size: %s\n", formatter.FormatBytes(item.Size))
		}
		r.writePlain("   Key: %s\n", item.Key())
	}
	if token != "" {
		r.writePlain("\nMore videos available, continue with --page-token %s\n", token)
	}
	return nil
}
