// Package services implements the Google Photos source and YouTube destination of a migration.
//
// # Service Interface
//
// Both providers implement [Service] so the CLI can check connectivity uniformly.
//
// # Google Photos
//
// [PhotosService] lists video media items page by page, probes their size with a HEAD on the
// "=dv" download URL and opens the byte stream. It also implements [ledger.MarkerStore]: the
// ledger document lives in the description of a placeholder image inside an app-created album.
//
// # YouTube
//
// [YouTubeService] implements [upload.Destination] over the resumable upload protocol. Initiate
// returns the session URI from the Location header; each chunk is a PUT with a Content-Range
// header answered by 308 with the confirmed range or by 200/201 with the created video.
//
// # OAuth
//
// A single Google OAuth client covers both services. [NewGoogleClient] refreshes the token and
// writes refreshed tokens back to the token file.
//
// # Error Handling
//
// Every failure is classified with the retry package so callers can tell what to retry:
//   - transport failures and truncated bodies are transient network faults
//   - 5xx answers are transient server faults wrapping [shared.ErrServiceUnavailable]
//   - 4xx answers are permanent client faults ([shared.ErrNotAuthenticated], [shared.ErrMediaItemNotFound], [shared.ErrAPIRequest])
//   - bodies that cannot be decoded are permanent faults wrapping [shared.ErrMalformedResponse]
package services
