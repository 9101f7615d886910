// Package filestore defines the unified interface for the object-storage
// subsystem that pgscope analyses.
//
// All providers (MinIO, S3-compatible, …) implement the Store interface.
// The storage inspector depends only on this package — never on a specific
// provider package.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	buckets, err := store.ListBuckets(ctx)
package filestore

import "context"

// Store is the read-only interface the storage inspector needs.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources (connections, goroutines, etc.).
	Close() error

	// ListBuckets returns all buckets / containers accessible with the
	// configured credentials.
	ListBuckets(ctx context.Context) ([]BucketInfo, error)

	// ListObjects returns the objects in bucket that match opts.
	// Virtual directory entries (common prefixes) are included when
	// opts.Recursive is false.
	ListObjects(ctx context.Context, bucket string, opts ListOptions) ([]ObjectInfo, error)

	// BucketPolicy returns the bucket's access policy document as a raw
	// JSON string. An empty string means no policy is attached (private).
	BucketPolicy(ctx context.Context, bucket string) (string, error)
}
