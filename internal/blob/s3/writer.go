package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// minPartSize is the S3 floor for multipart parts (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// Writer uploads grid exports, run archives and moved tapes. Every upload
// carries the client's server-side encryption settings.
type Writer struct {
	client   *s3.Client
	bucket   string
	sse      string
	kmsKeyID string
}

func NewWriter(c *Client) *Writer {
	return &Writer{
		client:   c.S3(),
		bucket:   c.Bucket(),
		sse:      c.sse,
		kmsKeyID: c.kmsKeyID,
	}
}

// putInput is the request shared by Put and PutMultipart.
func (w *Writer) putInput(path string, body io.Reader, contentType string) *s3.PutObjectInput {
	in := &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(path),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if w.sse != "" {
		in.ServerSideEncryption = types.ServerSideEncryption(w.sse)
	}
	if w.kmsKeyID != "" {
		in.SSEKMSKeyId = aws.String(w.kmsKeyID)
	}
	return in
}

// Put is a single PutObject; grid JSONL and archive bundles fit well under
// the 5 GiB limit.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if _, err := w.client.PutObject(ctx, w.putInput(path, data, contentType)); err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

// PutMultipart streams data through the upload manager. Loan tapes of
// unknown length go this way. partSize is raised to the 5 MiB minimum.
func (w *Writer) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	if partSize < minPartSize {
		partSize = minPartSize
	}
	uploader := manager.NewUploader(w.client, func(u *manager.Uploader) {
		u.PartSize = partSize
	})
	if _, err := uploader.Upload(ctx, w.putInput(path, data, "")); err != nil {
		return fmt.Errorf("s3blob: multipart %s: %w", path, err)
	}
	return nil
}

var _ domain.BlobWriter = (*Writer)(nil)
