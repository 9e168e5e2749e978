// Package models defines the shared data types of the migration.
//
// # Source Items
//
// [MediaItem] is a video listed from the source library. Its [MediaItem.Key] (the product URL) is the
// identity recorded in the ledger, so an item is recognised as migrated across process runs.
//
// # Upload Targets
//
// [UploadTarget] carries the title, description, tags and [Visibility] a destination video is created with.
//
// # Persistence
//
// [MigrationRun] and [RunItem] are the run history rows. MigrationRun follows the [Model] interface
// with private fields behind accessors so repositories are the only writers of identity and timestamps.
package models
