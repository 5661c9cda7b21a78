package s3fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DownloaderConfig configures the S3 Download Manager.
type DownloaderConfig struct {
	// Concurrency is the number of concurrent range requests per object.
	// Default: 2. Info objects are small, parallelism comes from fetching
	// many users at once.
	Concurrency int

	// PartSize is the size of each range request in bytes.
	// Default: manager.DefaultDownloadPartSize (5MB).
	PartSize int64
}

// DefaultDownloaderConfig returns defaults sized for small per-user objects.
func DefaultDownloaderConfig() DownloaderConfig {
	return DownloaderConfig{
		Concurrency: 2,
		PartSize:    manager.DefaultDownloadPartSize,
	}
}

// Downloader wraps the AWS S3 Download Manager for in-memory downloads.
type Downloader struct {
	manager *manager.Downloader
}

// NewDownloader creates a Downloader from an S3 GetObject client.
func NewDownloader(client manager.DownloadAPIClient, cfg DownloaderConfig) *Downloader {
	def := DefaultDownloaderConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.PartSize <= 0 {
		cfg.PartSize = def.PartSize
	}

	mgr := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.Concurrency = cfg.Concurrency
		d.PartSize = cfg.PartSize
	})

	return &Downloader{manager: mgr}
}

// DownloadResult contains information about a completed download.
type DownloadResult struct {
	// BytesDownloaded is the total bytes downloaded.
	BytesDownloaded int64

	// Duration is how long the download took.
	Duration time.Duration
}

// DownloadToBuffer downloads an S3 object fully into memory.
func (d *Downloader) DownloadToBuffer(ctx context.Context, bucket, key string) ([]byte, *DownloadResult, error) {
	startTime := time.Now()

	buf := manager.NewWriteAtBuffer(nil)
	n, err := d.manager.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}

	data := buf.Bytes()
	return data[:n], &DownloadResult{
		BytesDownloaded: n,
		Duration:        time.Since(startTime),
	}, nil
}
