package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/tile-fetch/pkg/redact"
	"github.com/Sternrassler/tile-fetch/pkg/transport"
	"github.com/gammazero/deque"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrDuplicateLabel is returned when two requests in one batch share a label.
var ErrDuplicateLabel = errors.New("duplicate label in batch")

// Request pairs a caller-chosen label with the URL to fetch.
type Request[L comparable] struct {
	Label L
	URL   string
}

// ProgressFunc receives the cumulative number of completed requests.
type ProgressFunc func(completed int)

// CancelledFunc reports whether the batch should be abandoned.
type CancelledFunc func() bool

// BatchFetcher coordinates concurrent fetches over a Transport.
type BatchFetcher[L comparable] struct {
	transport transport.Transport
	logger    zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher[L comparable](t transport.Transport, logger zerolog.Logger) *BatchFetcher[L] {
	if t == nil {
		panic("transport cannot be nil")
	}
	return &BatchFetcher[L]{
		transport: t,
		logger:    logger,
	}
}

type pending[L comparable] struct {
	label  L
	url    string
	handle transport.Handle
}

// Outcome is the result of one batch.
type Outcome[L comparable] struct {
	// Results maps label -> payload for the requests that succeeded.
	Results map[L][]byte

	// Cancelled is set when the batch was abandoned before every request
	// completed. Results is empty in that case.
	Cancelled bool
}

// FetchAll fetches every request concurrently and returns label -> payload
// for the requests that succeeded. Failed requests are logged and omitted.
//
// If isCancelled returns true or ctx is done before the batch completes,
// unfinished requests are aborted and an empty map is returned.
// onProgress and isCancelled may be nil. The only error is ErrDuplicateLabel.
func (bf *BatchFetcher[L]) FetchAll(ctx context.Context, requests []Request[L], onProgress ProgressFunc, isCancelled CancelledFunc) (map[L][]byte, error) {
	out, err := bf.Fetch(ctx, requests, onProgress, isCancelled)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Fetch is FetchAll with the cancellation outcome reported explicitly. A
// batch whose requests all completed is never reported as cancelled, even
// if ctx is done by the time Fetch returns.
func (bf *BatchFetcher[L]) Fetch(ctx context.Context, requests []Request[L], onProgress ProgressFunc, isCancelled CancelledFunc) (Outcome[L], error) {
	if err := validate(requests); err != nil {
		return Outcome[L]{}, err
	}

	start := time.Now()
	total := len(requests)
	logger := bf.logger.With().
		Str("batch_id", uuid.NewString()).
		Int("total", total).
		Logger()

	batchSize.Observe(float64(total))
	results := make(map[L][]byte, total)
	if total == 0 {
		return Outcome[L]{Results: results}, nil
	}

	var outstanding deque.Deque[pending[L]]
	for _, req := range requests {
		outstanding.PushBack(pending[L]{
			label:  req.Label,
			url:    req.URL,
			handle: bf.transport.Issue(ctx, req.URL, false),
		})
	}

	logger.Info().Msg("Starting batch fetch")

	completed := make(map[L]struct{}, total)
	reported := 0
	cancelled := false

	for len(completed) < total {
		if isDone(ctx, isCancelled) {
			cancelled = true
			break
		}

		for n := outstanding.Len(); n > 0; n-- {
			p := outstanding.PopFront()
			if !p.handle.IsComplete() {
				outstanding.PushBack(p)
				continue
			}
			if _, seen := completed[p.label]; seen {
				continue
			}
			completed[p.label] = struct{}{}
			bf.drain(logger, p, results)
		}

		if len(completed) < total {
			bf.transport.ProcessEvents()
		}

		if len(completed) != reported {
			reported = len(completed)
			if onProgress != nil {
				onProgress(reported)
			}
		}
	}

	if cancelled {
		aborted := 0
		for outstanding.Len() > 0 {
			p := outstanding.PopFront()
			if !p.handle.IsComplete() {
				p.handle.Abort()
				aborted++
			}
			p.handle.Release()
		}

		batchesTotal.WithLabelValues("cancelled").Inc()
		batchRequestsTotal.WithLabelValues("aborted").Add(float64(aborted))
		batchDuration.Observe(time.Since(start).Seconds())

		logger.Info().
			Int("completed", len(completed)).
			Int("aborted", aborted).
			Dur("duration", time.Since(start)).
			Msg("Batch fetch cancelled")

		return Outcome[L]{Results: make(map[L][]byte), Cancelled: true}, nil
	}

	batchesTotal.WithLabelValues("complete").Inc()
	batchDuration.Observe(time.Since(start).Seconds())

	logger.Info().
		Int("succeeded", len(results)).
		Int("failed", total-len(results)).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return Outcome[L]{Results: results}, nil
}

// drain consumes one completed handle.
func (bf *BatchFetcher[L]) drain(logger zerolog.Logger, p pending[L], results map[L][]byte) {
	defer p.handle.Release()

	if err := p.handle.Err(); err != nil {
		batchRequestsTotal.WithLabelValues("error").Inc()
		logger.Info().
			Err(err).
			Interface("label", p.label).
			Str("url", redact.SensitiveKey(p.url)).
			Int("status", p.handle.StatusCode()).
			Str("error_class", string(transport.Classify(p.handle))).
			Msg("Error during network request")
		return
	}

	body := p.handle.ReadBody()
	if body == nil {
		body = []byte{}
	}
	results[p.label] = body
	batchRequestsTotal.WithLabelValues("ok").Inc()
}

func isDone(ctx context.Context, isCancelled CancelledFunc) bool {
	if ctx.Err() != nil {
		return true
	}
	return isCancelled != nil && isCancelled()
}

func validate[L comparable](requests []Request[L]) error {
	seen := make(map[L]struct{}, len(requests))
	for _, req := range requests {
		if _, dup := seen[req.Label]; dup {
			return fmt.Errorf("%w: %v", ErrDuplicateLabel, req.Label)
		}
		seen[req.Label] = struct{}{}
	}
	return nil
}
