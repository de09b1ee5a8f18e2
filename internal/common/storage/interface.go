package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the object store operations the farm needs:
// code bundle download, artifact upload and result persistence. It is
// intentionally small so MinIO/AWS-S3 implementations stay swappable.
type ObjectStorage interface {
	// GetObject opens a reader for an object.
	// Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)

	// DownloadToFile downloads an object to a local file path.
	DownloadToFile(ctx context.Context, bucket, objectKey, localPath string) error

	// PutObject uploads an object from a reader.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// StatObject returns size and ETag for an object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)

	// RemoveObject deletes an object.
	RemoveObject(ctx context.Context, bucket, objectKey string) error
}

// ObjectStat contains object metadata used for validation.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}
