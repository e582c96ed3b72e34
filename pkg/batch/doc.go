// Package batch provides the batch fetch coordinator: it issues one request
// per labeled URL, polls the outstanding handles until every one has
// completed, and collects the successful payloads keyed by label.
//
// Example usage:
//
//	fetcher := batch.NewBatchFetcher[TileCoord](httpTransport, logger)
//	tiles, err := fetcher.FetchAll(ctx, requests, onProgress, isCancelled)
//
// The coordinator:
//   - Issues every request up front (no throttling)
//   - Drains each completed handle exactly once
//   - Logs failed requests and leaves their labels out of the result
//   - Reports the cumulative completed count whenever it changes
//   - On cancellation aborts the unfinished handles and returns an empty map
//
// Cancellation is cooperative: the predicate (and ctx) are checked once per
// polling iteration, never in the middle of a drain.
package batch
