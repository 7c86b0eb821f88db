package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

const (
	contentTypeJSON  = "application/json"
	contentTypeJSONL = "application/x-ndjson"

	// adhocPrefix holds runs that were not tied to a stored portfolio.
	adhocPrefix = "adhoc"
)

// ExporterImpl implements domain.Exporter on top of a BlobWriter. Payloads
// larger than one multipart part go through the multipart uploader.
type ExporterImpl struct {
	writer domain.BlobWriter
}

// NewExporter creates an exporter that writes through w.
func NewExporter(w domain.BlobWriter) *ExporterImpl {
	return &ExporterImpl{writer: w}
}

// RunPath is the object key for an exported run.
func RunPath(run domain.RunRecord) string {
	pf := run.PortfolioID
	if pf == "" {
		pf = adhocPrefix
	}
	return fmt.Sprintf("reports/%s/%s.json", pf, run.ID)
}

// GridPath is the object key for an exported stress grid.
func GridPath(runID string) string {
	return fmt.Sprintf("reports/grids/%s.jsonl", runID)
}

// ReportPath is the object key for an exported portfolio report.
func ReportPath(r domain.PortfolioReport) string {
	return fmt.Sprintf("reports/%s/report-%s.json", r.PortfolioID, r.GeneratedAt.UTC().Format("20060102T150405Z"))
}

// ExportRun writes the run record as one JSON document.
func (e *ExporterImpl) ExportRun(ctx context.Context, run domain.RunRecord) (string, error) {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: export run %s marshal: %w", run.ID, err)
	}
	path := RunPath(run)
	if err := e.put(ctx, path, data, contentTypeJSON); err != nil {
		return "", fmt.Errorf("s3blob: export run %s: %w", run.ID, err)
	}
	return path, nil
}

// ExportGrid writes one JSONL line per grid cell.
func (e *ExporterImpl) ExportGrid(ctx context.Context, runID string, cells []domain.GridCell) (string, error) {
	data, err := marshalJSONL(cells)
	if err != nil {
		return "", fmt.Errorf("s3blob: export grid %s marshal: %w", runID, err)
	}
	path := GridPath(runID)
	if err := e.put(ctx, path, data, contentTypeJSONL); err != nil {
		return "", fmt.Errorf("s3blob: export grid %s: %w", runID, err)
	}
	return path, nil
}

// ExportReport writes a portfolio report as one JSON document.
func (e *ExporterImpl) ExportReport(ctx context.Context, report domain.PortfolioReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: export report %s marshal: %w", report.PortfolioID, err)
	}
	path := ReportPath(report)
	if err := e.put(ctx, path, data, contentTypeJSON); err != nil {
		return "", fmt.Errorf("s3blob: export report %s: %w", report.PortfolioID, err)
	}
	return path, nil
}

func (e *ExporterImpl) put(ctx context.Context, path string, data []byte, contentType string) error {
	if int64(len(data)) > minPartSize {
		return e.writer.PutMultipart(ctx, path, bytes.NewReader(data), minPartSize)
	}
	return e.writer.Put(ctx, path, bytes.NewReader(data), contentType)
}

// Compile-time interface check.
var _ domain.Exporter = (*ExporterImpl)(nil)
