// Package filestoretest provides an in-memory filestore.Store fake for
// inspector tests.
package filestoretest

import (
	"context"
	"strings"

	"github.com/koustreak/pgscope/internal/errs"
	"github.com/koustreak/pgscope/internal/filestore"
)

// FakeStore implements filestore.Store from in-memory buckets.
type FakeStore struct {
	buckets  []filestore.BucketInfo
	objects  map[string][]filestore.ObjectInfo
	policies map[string]string
	listErr  map[string]error
}

// New returns an empty FakeStore.
func New() *FakeStore {
	return &FakeStore{
		objects:  make(map[string][]filestore.ObjectInfo),
		policies: make(map[string]string),
		listErr:  make(map[string]error),
	}
}

// AddBucket registers a bucket with its objects.
func (f *FakeStore) AddBucket(info filestore.BucketInfo, objects ...filestore.ObjectInfo) {
	f.buckets = append(f.buckets, info)
	f.objects[info.Name] = objects
}

// SetPolicy attaches a policy document to a bucket.
func (f *FakeStore) SetPolicy(bucket, policy string) {
	f.policies[bucket] = policy
}

// FailListing makes ListObjects fail for one bucket.
func (f *FakeStore) FailListing(bucket string, err error) {
	f.listErr[bucket] = err
}

func (f *FakeStore) Ping(_ context.Context) error { return nil }

func (f *FakeStore) Close() error { return nil }

func (f *FakeStore) ListBuckets(_ context.Context) ([]filestore.BucketInfo, error) {
	return f.buckets, nil
}

func (f *FakeStore) ListObjects(_ context.Context, bucket string, opts filestore.ListOptions) ([]filestore.ObjectInfo, error) {
	if err := f.listErr[bucket]; err != nil {
		return nil, err
	}
	objects, ok := f.objects[bucket]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "bucket not found: "+bucket)
	}
	var out []filestore.ObjectInfo
	for _, obj := range objects {
		if opts.Prefix != "" && !strings.HasPrefix(obj.Key, opts.Prefix) {
			continue
		}
		out = append(out, obj)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (f *FakeStore) BucketPolicy(_ context.Context, bucket string) (string, error) {
	return f.policies[bucket], nil
}
