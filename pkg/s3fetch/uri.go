package s3fetch

import (
	"errors"
	"fmt"
	"strings"
)

// NormalizeBucket accepts a plain bucket name or an S3 bucket ARN
// (arn:aws:s3:::bucket-name) and returns the bucket name.
func NormalizeBucket(bucketOrARN string) (string, error) {
	if bucketOrARN == "" {
		return "", errors.New("empty bucket name")
	}
	if !strings.HasPrefix(bucketOrARN, "arn:") {
		return bucketOrARN, nil
	}
	return parseBucketARN(bucketOrARN)
}

// parseBucketARN extracts the bucket name from an S3 bucket ARN.
// The ARN has 6 colon-separated parts: arn:partition:service:region:account:resource.
func parseBucketARN(arn string) (string, error) {
	parts := strings.Split(arn, ":")
	if len(parts) < 6 {
		return "", fmt.Errorf("invalid ARN %q: expected at least 6 colon-separated parts", arn)
	}
	if parts[2] != "s3" {
		return "", fmt.Errorf("invalid S3 ARN %q: service must be 's3', got %q", arn, parts[2])
	}

	resource := strings.Join(parts[5:], ":")
	if idx := strings.Index(resource, "/"); idx >= 0 {
		resource = resource[:idx]
	}
	if resource == "" {
		return "", fmt.Errorf("invalid S3 ARN %q: missing bucket name", arn)
	}
	return resource, nil
}

// ParseS3URI parses an S3 URI (s3://bucket/prefix) into bucket and key components.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", errors.New("invalid S3 URI: must start with s3://")
	}

	path := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		return "", "", errors.New("invalid S3 URI: missing bucket name")
	}

	bucket = parts[0]
	if len(parts) == 2 {
		key = parts[1]
	}

	return bucket, key, nil
}
