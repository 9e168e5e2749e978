// Package upload moves one source stream into a resumable destination upload.
//
// # Chunk Cursor
//
// [ChunkCursor] turns a forward-only download into the offset-addressed chunks a resumable protocol
// requests. It keeps the last chunk in memory so a retried send repeats identical bytes, and it
// refuses any offset that would require seeking.
//
// # Session
//
// [Session] walks INIT -> UPLOADING -> COMPLETED or FAILED. It opens the upload on the [Destination],
// then sends chunks at the offset the destination last confirmed until a resource id comes back.
// Every exchange runs through a [retry.Controller].
package upload
