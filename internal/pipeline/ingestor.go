package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// LoanImporter replaces a portfolio's loan tape.
type LoanImporter interface {
	ImportLoans(ctx context.Context, portfolioID string, loans []domain.LoanRecord) (domain.Portfolio, error)
}

// TapeBucket is the object store the ingestor reads and tidies.
type TapeBucket interface {
	domain.BlobReader
	domain.BlobWriter
	Delete(ctx context.Context, path string) error
}

// TapeIngestor imports CSV loan tapes dropped under {prefix}{portfolio}/.
// Imported files move to processed/, failed ones to rejected/ along with an
// .error.txt describing why.
type TapeIngestor struct {
	bucket   TapeBucket
	importer LoanImporter
	prefix   string
	logger   *slog.Logger
}

// NewTapeIngestor creates a TapeIngestor watching prefix.
func NewTapeIngestor(bucket TapeBucket, importer LoanImporter, prefix string, logger *slog.Logger) *TapeIngestor {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &TapeIngestor{
		bucket:   bucket,
		importer: importer,
		prefix:   prefix,
		logger:   logger.With(slog.String("component", "tape_ingestor")),
	}
}

// IngestResult summarises one pass.
type IngestResult struct {
	Imported int
	Rejected int
}

// Run performs one pass over the drop folder. Files are processed in path
// order so the newest tape of a portfolio wins when several are waiting.
func (t *TapeIngestor) Run(ctx context.Context) (IngestResult, error) {
	var res IngestResult
	objs, err := t.bucket.List(ctx, t.prefix)
	if err != nil {
		return res, fmt.Errorf("listing %s: %w", t.prefix, err)
	}
	for _, o := range objs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		portfolioID, name, ok := t.split(o.Path)
		if !ok {
			continue
		}
		if err := t.ingest(ctx, o.Path, portfolioID); err != nil {
			t.logger.WarnContext(ctx, "loan tape rejected",
				slog.String("path", o.Path),
				slog.String("error", err.Error()),
			)
			if mvErr := t.reject(ctx, o.Path, portfolioID, name, err); mvErr != nil {
				return res, mvErr
			}
			res.Rejected++
			continue
		}
		if err := t.move(ctx, o.Path, path.Join("processed", portfolioID, name)); err != nil {
			return res, err
		}
		res.Imported++
	}
	if res.Imported+res.Rejected > 0 {
		t.logger.InfoContext(ctx, "ingest pass complete",
			slog.Int("imported", res.Imported),
			slog.Int("rejected", res.Rejected),
		)
	}
	return res, nil
}

// RunLoop runs a pass immediately and then on every interval tick until ctx
// is cancelled.
func (t *TapeIngestor) RunLoop(ctx context.Context, interval time.Duration) error {
	if _, err := t.Run(ctx); err != nil {
		t.logger.ErrorContext(ctx, "ingest pass failed", slog.String("error", err.Error()))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := t.Run(ctx); err != nil {
				t.logger.ErrorContext(ctx, "ingest pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// split extracts the portfolio and file name from {prefix}{portfolio}/{name}.csv.
func (t *TapeIngestor) split(p string) (portfolioID, name string, ok bool) {
	rest := strings.TrimPrefix(p, t.prefix)
	portfolioID, name, found := strings.Cut(rest, "/")
	if !found || portfolioID == "" || strings.Contains(name, "/") {
		return "", "", false
	}
	if !strings.EqualFold(path.Ext(name), ".csv") {
		return "", "", false
	}
	return portfolioID, name, true
}

func (t *TapeIngestor) ingest(ctx context.Context, p, portfolioID string) error {
	body, err := t.bucket.Get(ctx, p)
	if err != nil {
		return fmt.Errorf("reading %s: %w", p, err)
	}
	defer body.Close()
	loans, err := ParseLoanTape(body)
	if err != nil {
		return err
	}
	if _, err := t.importer.ImportLoans(ctx, portfolioID, loans); err != nil {
		return err
	}
	return nil
}

func (t *TapeIngestor) reject(ctx context.Context, src, portfolioID, name string, cause error) error {
	dst := path.Join("rejected", portfolioID, name)
	if err := t.move(ctx, src, dst); err != nil {
		return err
	}
	msg := strings.NewReader(cause.Error() + "\n")
	if err := t.bucket.Put(ctx, dst+".error.txt", msg, "text/plain"); err != nil {
		return fmt.Errorf("writing rejection note for %s: %w", src, err)
	}
	return nil
}

// move copies src to dst and deletes src.
func (t *TapeIngestor) move(ctx context.Context, src, dst string) error {
	body, err := t.bucket.Get(ctx, src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	data, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	if err := t.bucket.Put(ctx, dst, bytes.NewReader(data), "text/csv"); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	if err := t.bucket.Delete(ctx, src); err != nil {
		return fmt.Errorf("deleting %s: %w", src, err)
	}
	return nil
}
