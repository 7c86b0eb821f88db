package s3blob

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutInputEncryption(t *testing.T) {
	w := &Writer{bucket: "reports", sse: "aws:kms", kmsKeyID: "alias/creditpool"}
	in := w.putInput("grids/s1.csv", strings.NewReader("x"), "text/csv")
	assert.Equal(t, "reports", aws.ToString(in.Bucket))
	assert.Equal(t, "grids/s1.csv", aws.ToString(in.Key))
	assert.Equal(t, "text/csv", aws.ToString(in.ContentType))
	assert.Equal(t, types.ServerSideEncryptionAwsKms, in.ServerSideEncryption)
	assert.Equal(t, "alias/creditpool", aws.ToString(in.SSEKMSKeyId))

	plain := (&Writer{bucket: "reports"}).putInput("tapes/a.csv", strings.NewReader("x"), "")
	assert.Nil(t, plain.ContentType)
	assert.Empty(t, plain.ServerSideEncryption)
	assert.Nil(t, plain.SSEKMSKeyId)
}

func TestNewRejectsKMSKeyWithoutKMS(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{
		Bucket: "reports", Region: "eu-west-1", SSE: "AES256", KMSKeyID: "alias/creditpool",
	})
	assert.ErrorContains(t, err, "needs sse aws:kms")
}

func TestBlobInfosSkipsFolderMarkers(t *testing.T) {
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	got := blobInfos([]types.Object{
		{Key: aws.String("incoming/"), Size: aws.Int64(0)},
		{Key: aws.String("incoming/tape-2025-06.csv"), Size: aws.Int64(2048), LastModified: &at},
		{Key: aws.String("incoming/archive/"), Size: aws.Int64(0)},
		{Key: aws.String("incoming/late.csv")},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "incoming/tape-2025-06.csv", got[0].Path)
	assert.Equal(t, int64(2048), got[0].Size)
	assert.Equal(t, at, got[0].LastModified)
	assert.Equal(t, "incoming/late.csv", got[1].Path)
	assert.Zero(t, got[1].Size)
	assert.True(t, got[1].LastModified.IsZero())
}
