package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/creditpool/internal/domain"
	"github.com/alanyoungcy/creditpool/internal/pipeline"
	"github.com/alanyoungcy/creditpool/internal/server"
	"github.com/alanyoungcy/creditpool/internal/server/handler"
	"github.com/alanyoungcy/creditpool/internal/server/ws"
	"github.com/alanyoungcy/creditpool/internal/service"
)

// ServerMode serves the HTTP API and the WebSocket hub and runs the
// background pipeline until ctx is cancelled.
func (a *App) ServerMode(parent context.Context, deps *Dependencies) error {
	a.logger.InfoContext(parent, "starting server mode")
	g, ctx := errgroup.WithContext(parent)

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:           a.cfg.Mode,
			StartedAt:      time.Now().UTC(),
			AllowedOrigins: a.cfg.Server.CORSOrigins,
		})
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("ws hub: %w", err)
			}
			return nil
		})
	}

	if a.cfg.Server.Enabled {
		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimiter: deps.RateLimiter,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		}, server.Handlers{
			Health:     handler.NewHealthHandler(a.cfg.Mode, deps.HealthChecks, a.logger),
			Portfolios: handler.NewPortfolioHandler(deps.Portfolios, deps.Exporter, a.logger),
			Structures: handler.NewStructureHandler(deps.Securitisation, a.logger),
			Engine:     handler.NewEngineHandler(deps.Securitisation, a.logger),
			Audit:      handler.NewAuditHandler(deps.AuditStore, a.logger),
		}, hub, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	if orch := a.buildPipeline(deps); orch != nil {
		g.Go(func() error {
			return orch.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && parent.Err() == nil {
		return err
	}
	return parent.Err()
}

// buildPipeline returns nil when neither tape ingest nor archiving applies.
func (a *App) buildPipeline(deps *Dependencies) *pipeline.Orchestrator {
	var ingestor *pipeline.TapeIngestor
	if a.cfg.Ingest.Enabled && deps.Bucket != nil {
		ingestor = pipeline.NewTapeIngestor(*deps.Bucket, deps.Portfolios, a.cfg.Ingest.Prefix, a.logger)
	}
	var archiver *pipeline.Archiver
	if a.cfg.Engine.ArchiveRetentionDays > 0 && deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Engine.ArchiveRetentionDays, a.logger)
	}
	if ingestor == nil && archiver == nil {
		return nil
	}
	return pipeline.NewOrchestrator(ingestor, a.cfg.Ingest.Interval.Duration, archiver, a.cfg.Engine.ArchiveCron, a.logger)
}

// reportBundle is what report mode prints when no bucket is configured.
type reportBundle struct {
	Report domain.PortfolioReport `json:"report"`
	Grid   *service.GridRun       `json:"stress_grid,omitempty"`
}

// ReportMode computes the report for report.portfolio_id, plus the stress
// grid of report.structure_id when set, exports them and returns.
func (a *App) ReportMode(ctx context.Context, deps *Dependencies) error {
	return a.runReport(ctx, deps, os.Stdout)
}

func (a *App) runReport(ctx context.Context, deps *Dependencies, out io.Writer) error {
	pf := a.cfg.Report.PortfolioID
	a.logger.InfoContext(ctx, "starting report mode", slog.String("portfolio_id", pf))

	rep, err := deps.Portfolios.Report(ctx, pf, domain.ReportOptions{})
	if err != nil {
		return fmt.Errorf("app: report: %w", err)
	}
	bundle := reportBundle{Report: rep}

	if deps.Exporter != nil {
		path, err := deps.Exporter.ExportReport(ctx, rep)
		if err != nil {
			return fmt.Errorf("app: export report: %w", err)
		}
		a.logger.InfoContext(ctx, "report exported", slog.String("path", path))
	}

	if id := a.cfg.Report.StructureID; id != "" {
		grid, err := deps.Securitisation.RunStressGrid(ctx, id, service.GridRequest{})
		if err != nil {
			return fmt.Errorf("app: stress grid: %w", err)
		}
		a.logger.InfoContext(ctx, "stress grid complete",
			slog.String("run_id", grid.Run.ID),
			slog.String("summary", grid.Run.Summary),
			slog.String("export_path", grid.ExportPath),
		)
		bundle.Grid = &grid
	}

	if deps.Exporter == nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(bundle); err != nil {
			return fmt.Errorf("app: write report: %w", err)
		}
	}
	return nil
}
