package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"markovchain/pkg/content"
	"markovchain/pkg/markov"
)

// Report summarizes a batch submission.
type Report struct {
	Chunks    int
	Submitted int
	Bytes     int
	Duration  time.Duration
}

// Submitter sends chunks to the service with bounded concurrency.
type Submitter struct {
	svc         markov.Service
	chunker     Chunker
	concurrency int
	logger      *slog.Logger
}

// SubmitterConfig configures a Submitter.
type SubmitterConfig struct {
	Chunker     Chunker
	Concurrency int
	Logger      *slog.Logger
}

// NewSubmitter builds a Submitter around svc.
func NewSubmitter(svc markov.Service, cfg SubmitterConfig) (*Submitter, error) {
	if svc == nil {
		return nil, errors.New("markov service is required")
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	chunker := cfg.Chunker
	if chunker.Size <= 0 {
		chunker = DefaultChunker
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{svc: svc, chunker: chunker, concurrency: concurrency, logger: logger}, nil
}

// SubmitText splits text and submits every piece.
func (s *Submitter) SubmitText(ctx context.Context, text string) (Report, error) {
	chunks := s.chunker.Split(text)
	if len(chunks) == 0 {
		return Report{}, ErrNoText
	}
	return s.Submit(ctx, chunks)
}

// SubmitFile parses the document at path and submits its text.
func (s *Submitter) SubmitFile(ctx context.Context, path string) (Report, error) {
	text, err := ParseFile(path)
	if err != nil {
		return Report{}, err
	}
	return s.SubmitText(ctx, text)
}

// Submit sends every chunk via SubmitInput. The first failure cancels the
// remaining work and is returned; nothing is retried.
func (s *Submitter) Submit(ctx context.Context, chunks []content.String) (Report, error) {
	start := time.Now()
	var submitted, bytes atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, chunk := range chunks {
		if gctx.Err() != nil {
			break
		}
		i, chunk := i, chunk
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if err := s.svc.SubmitInput(gctx, markov.InputPayload{Input: chunk}); err != nil {
				return fmt.Errorf("submit chunk %d: %w", i, err)
			}
			submitted.Add(1)
			bytes.Add(int64(chunk.Len()))
			return nil
		})
	}
	err := g.Wait()

	report := Report{
		Chunks:    len(chunks),
		Submitted: int(submitted.Load()),
		Bytes:     int(bytes.Load()),
		Duration:  time.Since(start),
	}
	if err == nil && report.Submitted < report.Chunks {
		err = ctx.Err()
	}
	s.logger.Info("ingest_batch",
		"chunks", report.Chunks,
		"submitted", report.Submitted,
		"bytes", report.Bytes,
		"duration_ms", report.Duration.Milliseconds(),
		"ok", err == nil,
	)
	return report, err
}
