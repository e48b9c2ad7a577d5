package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// object is one listed blob.
type object struct {
	Key  string
	Size int64
}

// openBucket opens a gocloud blob URL such as s3://bucket?region=eu-west-1&prefix=exports/.
func openBucket(ctx context.Context, url string) (*blob.Bucket, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w: %w", url, err, pgbulk.ErrSourceFailed)
	}
	return bucket, nil
}

// listObjects returns the non-directory objects whose key has one of the
// suffixes, sorted by key so partition numbering is stable across runs.
func listObjects(ctx context.Context, bucket *blob.Bucket, suffixes ...string) ([]object, error) {
	var objects []object
	iter := bucket.List(nil)
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w: %w", err, pgbulk.ErrSourceFailed)
		}
		if obj.IsDir || !hasSuffix(obj.Key, suffixes) {
			continue
		}
		objects = append(objects, object{Key: obj.Key, Size: obj.Size})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func hasSuffix(key string, suffixes []string) bool {
	lower := strings.ToLower(key)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// rangeReader reads an object with ranged requests, so only the parts a
// reader asks for are fetched.
type rangeReader struct {
	ctx    context.Context
	bucket *blob.Bucket
	key    string
	size   int64
}

func (r *rangeReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, io.EOF
	}
	length := int64(len(p))
	if off+length > r.size {
		length = r.size - off
	}

	rd, err := r.bucket.NewRangeReader(r.ctx, r.key, off, length, nil)
	if err != nil {
		return 0, fmt.Errorf("read %s at %d: %w", r.key, off, err)
	}
	defer rd.Close()

	n, err := io.ReadFull(rd, p[:length])
	if err == nil && int64(n) < int64(len(p)) {
		err = io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}
