package s3fetch

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/eunmann/s3-user-agg/pkg/listing"
)

// pageIterator walks a ListObjectsV2 paginator one object at a time,
// requesting the next page only when the current one is drained.
type pageIterator struct {
	ctx   context.Context
	pages *s3.ListObjectsV2Paginator
	buf   []types.Object
	pos   int
	done  bool
}

func newPageIterator(ctx context.Context, pages *s3.ListObjectsV2Paginator) *pageIterator {
	return &pageIterator{ctx: ctx, pages: pages}
}

// Next returns the next object, or io.EOF after the last page.
func (it *pageIterator) Next() (listing.Object, error) {
	for it.pos >= len(it.buf) {
		if it.done || !it.pages.HasMorePages() {
			it.done = true
			return listing.Object{}, io.EOF
		}
		page, err := it.pages.NextPage(it.ctx)
		if err != nil {
			it.done = true
			return listing.Object{}, fmt.Errorf("list objects page: %w", err)
		}
		it.buf = page.Contents
		it.pos = 0
	}

	obj := it.buf[it.pos]
	it.pos++
	return listing.Object{
		Key:          aws.ToString(obj.Key),
		LastModified: aws.ToTime(obj.LastModified),
		Size:         aws.ToInt64(obj.Size),
	}, nil
}

// Close stops the iteration. Pages not yet requested are never fetched.
func (it *pageIterator) Close() error {
	it.done = true
	it.buf = nil
	return nil
}
