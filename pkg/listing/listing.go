// Package listing describes the remote object listing consumed by the cache
// synchronizer: object descriptors, user key parsing, and file-type
// classification.
package listing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"
)

var (
	// ErrMalformedKey indicates a key that does not decompose into
	// {user_id}/{filename}.{extension}.
	ErrMalformedKey = errors.New("malformed object key")
	// ErrUnknownExtension indicates an extension that is neither an image nor an info file.
	ErrUnknownExtension = errors.New("unknown object extension")
)

// Object is a single entry of a remote listing.
type Object struct {
	Key          string
	LastModified time.Time
	Size         int64
}

// Iterator yields objects in lexicographic key order.
type Iterator interface {
	// Next returns the next object. Returns io.EOF when done.
	Next() (Object, error)
	// Close releases resources.
	Close() error
}

// Lister opens a fresh listing of the remote store.
type Lister interface {
	List(ctx context.Context) (Iterator, error)
}

// Descriptor is an Object whose key has been split into its user and file type.
type Descriptor struct {
	UserID       string
	Extension    string
	Key          string
	LastModified time.Time
}

// ParseKey splits key into a Descriptor. The key is interpreted relative to
// prefix and must have the form {user_id}/{filename}.{extension}. The
// extension is lower-cased and keeps its leading dot.
func ParseKey(prefix string, obj Object) (Descriptor, error) {
	rel, ok := strings.CutPrefix(obj.Key, prefix)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q outside prefix %q", ErrMalformedKey, obj.Key, prefix)
	}

	userID, file, ok := strings.Cut(rel, "/")
	if !ok || userID == "" || file == "" || strings.Contains(file, "/") {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrMalformedKey, obj.Key)
	}

	ext := path.Ext(file)
	if ext == "" || ext == "." {
		return Descriptor{}, fmt.Errorf("%w: %q has no extension", ErrMalformedKey, obj.Key)
	}

	return Descriptor{
		UserID:       userID,
		Extension:    strings.ToLower(ext),
		Key:          obj.Key,
		LastModified: obj.LastModified,
	}, nil
}

// SliceLister serves a fixed listing from memory. Objects are sorted by key
// on every List call, mirroring the ordering guarantee of S3 listings.
type SliceLister struct {
	Objects []Object
	// Err, if set, is returned by List.
	Err error
}

// List returns an iterator over a sorted copy of the objects.
func (l *SliceLister) List(ctx context.Context) (Iterator, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	objs := make([]Object, len(l.Objects))
	copy(objs, l.Objects)
	sort.SliceStable(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
	return &sliceIterator{ctx: ctx, objs: objs}, nil
}

type sliceIterator struct {
	ctx  context.Context
	objs []Object
	pos  int
}

func (it *sliceIterator) Next() (Object, error) {
	if err := it.ctx.Err(); err != nil {
		return Object{}, err
	}
	if it.pos >= len(it.objs) {
		return Object{}, io.EOF
	}
	obj := it.objs[it.pos]
	it.pos++
	return obj, nil
}

func (it *sliceIterator) Close() error { return nil }
