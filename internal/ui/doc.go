// Package ui implements the interactive migration screen using bubbletea's Elm architecture.
//
// A run moves through three views:
//  1. [ProgressView] : the current phase, a byte-level bar for the upload in flight and recent messages
//  2. [FormView] : title, description, tags and visibility for the next item, prefilled with defaults
//  3. [ResultView] : run totals and a filterable list of per-item outcomes
//
// [Prompter] is the bridge to the migration engine. It implements the engine's target provider by
// handing each item to the model over a channel and blocking until the form is submitted or skipped.
// Skipping answers with shared.ErrSkipItem, which leaves the item out of the ledger for a later run.
//
// Progress flows from the engine through a buffered channel that the model drains one message at a
// time. ctrl+c cancels the run between items; a second ctrl+c exits immediately.
package ui
