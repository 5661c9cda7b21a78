package s3fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/eunmann/s3-user-agg/internal/logctx"
	"github.com/eunmann/s3-user-agg/pkg/listing"
)

// fakeS3 is an in-memory bucket serving the calls Client makes.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time
	listErr  error
	pages    int
	puts     map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:  map[string][]byte{},
		modified: map[string]time.Time{},
		puts:     map[string]string{},
	}
}

func (f *fakeS3) put(key, body string, mod time.Time) {
	f.objects[key] = []byte(body)
	f.modified[key] = mod
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.pages++

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start, _ = strconv.Atoi(*in.ContinuationToken)
	}
	size := int(aws.ToInt32(in.MaxKeys))
	if size <= 0 {
		size = 1000
	}
	end := min(start+size, len(keys))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			LastModified: aws.Time(f.modified[k]),
			Size:         aws.Int64(int64(len(f.objects[k]))),
		})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	n := int64(len(body))
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(n),
		ContentRange:  aws.String(fmt.Sprintf("bytes 0-%d/%d", n-1, n)),
	}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts[aws.ToString(in.Key)] = aws.ToString(in.ContentType) + ":" + string(data)
	return &s3.PutObjectOutput{}, nil
}

func newTestClient(t *testing.T, api objectAPI, opts Options) *Client {
	t.Helper()
	if opts.Bucket == "" {
		opts.Bucket = "datalake"
	}
	c, err := newClient(api, opts)
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}
	return c
}

func drain(t *testing.T, it listing.Iterator) []listing.Object {
	t.Helper()
	defer it.Close()
	var out []listing.Object
	for {
		obj, err := it.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, obj)
	}
}

func TestListPaginates(t *testing.T) {
	api := newFakeS3()
	mod := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 7 {
		api.put(fmt.Sprintf("source_data/u%d/info.csv", i), "a\n1\n", mod.Add(time.Duration(i)*time.Second))
	}
	api.put("processed_data/output.csv", "x", mod)

	c := newTestClient(t, api, Options{Prefix: "source_data/", PageSize: 3})
	it, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	objs := drain(t, it)

	if len(objs) != 7 {
		t.Fatalf("got %d objects, want 7", len(objs))
	}
	if api.pages != 3 {
		t.Errorf("requested %d pages, want 3", api.pages)
	}
	for i, obj := range objs {
		if want := fmt.Sprintf("source_data/u%d/info.csv", i); obj.Key != want {
			t.Errorf("objs[%d].Key = %q, want %q", i, obj.Key, want)
		}
		if !obj.LastModified.Equal(mod.Add(time.Duration(i) * time.Second)) {
			t.Errorf("objs[%d].LastModified = %v", i, obj.LastModified)
		}
		if obj.Size != 4 {
			t.Errorf("objs[%d].Size = %d, want 4", i, obj.Size)
		}
	}
}

func TestListEmpty(t *testing.T) {
	c := newTestClient(t, newFakeS3(), Options{Prefix: "source_data/"})
	it, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if objs := drain(t, it); len(objs) != 0 {
		t.Errorf("got %d objects, want 0", len(objs))
	}
}

func TestListError(t *testing.T) {
	api := newFakeS3()
	api.listErr = errors.New("connection refused")
	c := newTestClient(t, api, Options{})

	it, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	defer it.Close()
	if _, err := it.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("Next err = %v, want listing error", err)
	}
	if _, err := it.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next after error = %v, want io.EOF", err)
	}
}

func TestCloseStopsPaging(t *testing.T) {
	api := newFakeS3()
	for i := range 5 {
		api.put(fmt.Sprintf("u%d/a.png", i), "x", time.Now())
	}
	c := newTestClient(t, api, Options{PageSize: 2})

	it, _ := c.List(context.Background())
	if _, err := it.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	it.Close()
	if _, err := it.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next after Close = %v, want io.EOF", err)
	}
	if api.pages != 1 {
		t.Errorf("requested %d pages, want 1", api.pages)
	}
}

func TestFetch(t *testing.T) {
	api := newFakeS3()
	api.put("source_data/u1/info.csv", "first_name, last_name\nAnn, Lee\n", time.Now())
	c := newTestClient(t, api, Options{Prefix: "source_data/"})

	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
	var logs bytes.Buffer
	ctx := logctx.WithLogger(context.Background(), zerolog.New(&logs))

	data, err := c.Fetch(ctx, "source_data/u1/info.csv")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "first_name, last_name\nAnn, Lee\n" {
		t.Errorf("Fetch = %q", data)
	}
	if out := logs.String(); !strings.Contains(out, `"bytes":31`) || !strings.Contains(out, `"duration"`) {
		t.Errorf("missing download stats in debug log: %s", out)
	}
}

func TestFetchMissing(t *testing.T) {
	c := newTestClient(t, newFakeS3(), Options{})

	_, err := c.Fetch(context.Background(), "u9/info.csv")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch err = %v, want ErrNotFound", err)
	}
}

func TestPutObject(t *testing.T) {
	api := newFakeS3()
	c := newTestClient(t, api, Options{})

	if err := c.PutObject(context.Background(), "processed_data/output.csv", "text/csv", []byte("a,b\n")); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if got := api.puts["processed_data/output.csv"]; got != "text/csv:a,b\n" {
		t.Errorf("stored %q", got)
	}
}

func TestNewClientBucketARN(t *testing.T) {
	c := newTestClient(t, newFakeS3(), Options{Bucket: "arn:aws:s3:::datalake"})
	if c.bucket != "datalake" {
		t.Errorf("bucket = %q, want datalake", c.bucket)
	}
	if _, err := newClient(newFakeS3(), Options{Bucket: "arn:aws:sqs:::queue"}); err == nil {
		t.Error("expected error for non-S3 ARN")
	}
}

func TestNormalizeBucket(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "datalake", want: "datalake"},
		{in: "arn:aws:s3:::datalake", want: "datalake"},
		{in: "arn:aws-cn:s3:::bucket/with/path", want: "bucket"},
		{in: "arn:aws:s3:::", wantErr: true},
		{in: "arn:aws:s3", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeBucket(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("NormalizeBucket = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{uri: "s3://datalake/source_data/", wantBucket: "datalake", wantKey: "source_data/"},
		{uri: "s3://bucket/key", wantBucket: "bucket", wantKey: "key"},
		{uri: "s3://bucket", wantBucket: "bucket"},
		{uri: "https://bucket/key", wantErr: true},
		{uri: "/local/path", wantErr: true},
		{uri: "s3://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, key, err := ParseS3URI(tt.uri)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if bucket != tt.wantBucket || key != tt.wantKey {
				t.Errorf("got (%q, %q), want (%q, %q)", bucket, key, tt.wantBucket, tt.wantKey)
			}
		})
	}
}

func TestDefaultDownloaderConfig(t *testing.T) {
	d := NewDownloader(newFakeS3(), DownloaderConfig{})
	def := DefaultDownloaderConfig()
	if d.manager.Concurrency != def.Concurrency || d.manager.PartSize != def.PartSize {
		t.Errorf("manager = {Concurrency:%d PartSize:%d}, want %+v", d.manager.Concurrency, d.manager.PartSize, def)
	}
}

// TestClientIntegration requires a reachable bucket and is skipped in CI.
// To run against MinIO: S3USERAGG_IT_ENDPOINT=http://localhost:9000 go test -run TestClientIntegration.
func TestClientIntegration(t *testing.T) {
	endpoint := os.Getenv("S3USERAGG_IT_ENDPOINT")
	if endpoint == "" {
		t.Skip("skipping integration test; set S3USERAGG_IT_ENDPOINT to run")
	}

	ctx := context.Background()
	c, err := NewClient(ctx, Options{
		Bucket:    "datalake",
		Prefix:    "source_data/",
		Region:    "us-east-1",
		Endpoint:  endpoint,
		AccessKey: os.Getenv("S3USERAGG_IT_ACCESS_KEY"),
		SecretKey: os.Getenv("S3USERAGG_IT_SECRET_KEY"),
		PathStyle: true,
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	it, err := c.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	objs := drain(t, it)
	t.Logf("listed %d objects", len(objs))
	if len(objs) == 0 {
		return
	}
	data, err := c.Fetch(ctx, objs[0].Key)
	if err != nil {
		t.Fatalf("fetch %s: %v", objs[0].Key, err)
	}
	if int64(len(data)) != objs[0].Size {
		t.Errorf("fetched %d bytes, listing reported %d", len(data), objs[0].Size)
	}
}
