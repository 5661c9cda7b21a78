// Package s3fetch lists, fetches and uploads user objects in an S3 or
// S3-compatible (MinIO) bucket.
package s3fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/eunmann/s3-user-agg/internal/logctx"
	"github.com/eunmann/s3-user-agg/pkg/listing"
)

// ErrNotFound is returned when a fetched key does not exist.
var ErrNotFound = errors.New("object not found")

// objectAPI is the subset of the S3 client the package uses.
type objectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures a Client.
type Options struct {
	// Bucket is a bucket name or an S3 bucket ARN.
	Bucket string
	// Prefix restricts listings to keys under it, e.g. "source_data/".
	Prefix string
	// Region overrides the region from the default AWS configuration.
	Region string
	// Endpoint points the client at an S3-compatible server such as MinIO.
	Endpoint string
	// AccessKey and SecretKey, when both set, replace the default
	// credential chain with static credentials.
	AccessKey string
	SecretKey string
	// PathStyle addresses buckets as endpoint/bucket/key. MinIO needs it.
	PathStyle bool
	// PageSize bounds keys per ListObjectsV2 page. Zero uses the server default.
	PageSize int32
	// Download configures the download manager used by Fetch.
	Download DownloaderConfig
}

// Client implements listing.Lister and deltafetch.Fetcher for one bucket
// and prefix.
type Client struct {
	api        objectAPI
	downloader *Downloader
	bucket     string
	prefix     string
	pageSize   int32
}

// NewClient creates a client using the default AWS configuration, adjusted
// by opts.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewClientWithConfig(cfg, opts)
}

// NewClientWithConfig creates a client with a custom AWS config.
func NewClientWithConfig(cfg aws.Config, opts Options) (*Client, error) {
	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return newClient(s3Client, opts)
}

func newClient(api objectAPI, opts Options) (*Client, error) {
	bucket, err := NormalizeBucket(opts.Bucket)
	if err != nil {
		return nil, err
	}
	return &Client{
		api:        api,
		downloader: NewDownloader(api, opts.Download),
		bucket:     bucket,
		prefix:     opts.Prefix,
		pageSize:   opts.PageSize,
	}, nil
}

// List opens a paginated listing of every key under the prefix, in key order.
func (c *Client) List(ctx context.Context) (listing.Iterator, error) {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.prefix),
	}
	if c.pageSize > 0 {
		in.MaxKeys = aws.Int32(c.pageSize)
	}
	return newPageIterator(ctx, s3.NewListObjectsV2Paginator(c.api, in)), nil
}

// Fetch downloads the object at key into memory.
func (c *Client) Fetch(ctx context.Context, key string) ([]byte, error) {
	data, res, err := c.downloader.DownloadToBuffer(ctx, c.bucket, key)
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, c.bucket, key)
		}
		return nil, err
	}
	log := logctx.FromContext(ctx)
	log.Debug().
		Str("key", key).
		Int64("bytes", res.BytesDownloaded).
		Dur("duration", res.Duration).
		Msg("object downloaded")
	return data, nil
}

// PutObject uploads body to key.
func (c *Client) PutObject(ctx context.Context, key, contentType string, body []byte) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := c.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put object s3://%s/%s: %w", c.bucket, key, err)
	}
	return nil
}
