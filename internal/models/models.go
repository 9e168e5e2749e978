// package models defines the data model for the video migration tool
package models

import (
	"fmt"
	"strings"
	"time"
)

// Model defines the base interface for all persistent models.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// MediaItem is a video in the source library. Immutable once fetched, except for Size which the probe fills in.
type MediaItem struct {
	ID           string    `json:"id"`
	ProductURL   string    `json:"product_url"`
	BaseURL      string    `json:"base_url"`
	Filename     string    `json:"filename"`
	Description  string    `json:"description,omitempty"`
	MimeType     string    `json:"mime_type"`
	CreationTime time.Time `json:"creation_time"`
	Size         int64     `json:"size,omitempty"`
}

// Key is the ledger key of the item. The product URL is stable across sessions; the ID is the fallback.
func (m MediaItem) Key() string {
	if m.ProductURL != "" {
		return m.ProductURL
	}
	return m.ID
}

// Page is one page of a source listing. An empty NextPageToken ends enumeration.
type Page struct {
	Items         []MediaItem
	NextPageToken string
}

// Visibility is the privacy status of an uploaded video.
type Visibility string

const (
	VisibilityPrivate  Visibility = "private"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPublic   Visibility = "public"
)

// Visibilities lists the accepted values in display order.
var Visibilities = []Visibility{VisibilityPrivate, VisibilityUnlisted, VisibilityPublic}

// ParseVisibility accepts any case; the empty string is private.
func ParseVisibility(s string) (Visibility, error) {
	switch v := Visibility(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return VisibilityPrivate, nil
	case VisibilityPrivate, VisibilityUnlisted, VisibilityPublic:
		return v, nil
	default:
		return "", fmt.Errorf("unknown visibility %q", s)
	}
}

func (v Visibility) String() string { return string(v) }

// Next cycles private -> unlisted -> public -> private.
func (v Visibility) Next() Visibility {
	for i, candidate := range Visibilities {
		if candidate == v {
			return Visibilities[(i+1)%len(Visibilities)]
		}
	}
	return VisibilityPrivate
}

// UploadTarget is the metadata the destination video is created with.
type UploadTarget struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Tags        []string   `json:"tags"`
	Visibility  Visibility `json:"visibility"`
}

// Validate requires a title.
func (t UploadTarget) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("upload target requires a title")
	}
	if _, err := ParseVisibility(string(t.Visibility)); err != nil {
		return err
	}
	return nil
}

// ParseTags splits a comma separated tag list, dropping blanks.
func ParseTags(s string) []string {
	var tags []string
	for _, tag := range strings.Split(s, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// MigrationRecord is a single ledger entry.
type MigrationRecord struct {
	SourceKey      string    `json:"source_key"`
	DestinationRef string    `json:"destination_ref"`
	CreatedAt      time.Time `json:"created_at,omitzero"`
}
