// Package pipeline runs the background jobs of the server: loan-tape
// ingestion from the bucket drop folder and run archival.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the configured background jobs. Either may be nil.
type Orchestrator struct {
	ingestor       *TapeIngestor
	ingestInterval time.Duration
	archiver       *Archiver
	archiveCron    string
	logger         *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	ingestor *TapeIngestor,
	ingestInterval time.Duration,
	archiver *Archiver,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		ingestor:       ingestor,
		ingestInterval: ingestInterval,
		archiver:       archiver,
		archiveCron:    archiveCron,
		logger:         logger.With(slog.String("component", "pipeline")),
	}
}

// Run blocks until ctx is cancelled or a job fails outright.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "pipeline starting",
		slog.Bool("ingest", o.ingestor != nil),
		slog.Bool("archive", o.archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)
	if o.ingestor != nil {
		g.Go(func() error {
			err := o.ingestor.RunLoop(ctx, o.ingestInterval)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ingestor: %w", err)
		})
	}
	if o.archiver != nil {
		g.Go(func() error {
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline stopped")
	return nil
}
