// Package crawler implements the crawl engine: the staged, breadth-first
// link-discovery orchestrator, the bounded worker pool that executes each
// stage, and the checkpoint writer that merges collected records into the
// persisted output collections.
//
// The pipeline follows links across three entity types:
//
//	semester catalog -> semester pages -> course pages -> user profiles
//	                                   -> courses newly discovered on profiles
//
// Each stage blocks until complete; there is no cross-stage pipelining.
// Within a stage, items run under a pool bounded by the configured worker
// count, and per-item failures are logged and swallowed so one broken page
// never aborts a long crawl.
//
// An alternate brute-force mode skips link discovery and enumerates a numeric
// profile-id range instead, running the same user/course workers in batches
// with a checkpoint after every batch so an interrupted multi-day run loses
// at most one batch of work.
package crawler
