// Package ingest orchestrates the guideline upload workflow: file validation,
// multipart upload, progress streaming, and result retrieval.
//
// # Session Lifecycle
//
// A [Session] is one user-initiated ingestion attempt. It moves through
//
//	idle -> validating -> uploading -> awaiting progress -> processing
//	     -> fetching result -> succeeded
//
// with failed and cancelled as the other terminal states. Progress is a
// watermark: the session only ever raises its percentage, and stale or
// out-of-order stream events are ignored. The jump to fetching the result
// happens exactly once, when a stream event first reports 100.
//
// Every asynchronous callback is guarded by a generation counter so a
// discarded session cannot be resurrected by a late upload response or a
// straggling stream event. [Session.Discard] and [Session.Dispose] are safe
// from any state and idempotent.
//
// # Bulk Runs
//
// [BulkIngestor] drives one session per file through a bounded worker pool
// with a shared rate limiter, for ingesting a directory of guidelines in one
// command.
package ingest
