// Package storage profiles the object-storage backend: per-bucket file
// counts and sizes, folder prefixes, a global extension histogram, and the
// largest files across all buckets.
package storage

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/koustreak/pgscope/internal/analysis/model"
	"github.com/koustreak/pgscope/internal/filestore"
	"github.com/koustreak/pgscope/internal/logger"
)

// largeFileCount is the length of the top-largest-files list.
const largeFileCount = 10

// largeFileBytes is the size above which a single object is worth a
// recommendation.
const largeFileBytes = 100 << 20

// Inspector profiles object storage through the filestore interface.
type Inspector struct {
	store filestore.Store
	log   *logger.Logger
}

// New builds a storage Inspector.
func New(store filestore.Store, log *logger.Logger) *Inspector {
	return &Inspector{store: store, log: log}
}

// Inspect enumerates buckets and aggregates their contents. A bucket whose
// listing fails is skipped with a warning; the remaining buckets are still
// profiled.
func (i *Inspector) Inspect(ctx context.Context) (model.StorageReport, []string) {
	var report model.StorageReport
	var warns []string

	if i.store == nil {
		warns = append(warns, "storage: backend not configured, skipping")
		return report, warns
	}

	buckets, err := i.store.ListBuckets(ctx)
	if err != nil {
		warns = append(warns, fmt.Sprintf("storage: bucket listing unavailable: %v", err))
		return report, warns
	}

	extensions := make(map[string]*model.FileTypeStat)
	var extBytes = make(map[string]int64)
	var largest []model.LargeFile

	for _, b := range buckets {
		profile, objects, err := i.profileBucket(ctx, b)
		if err != nil {
			warns = append(warns, fmt.Sprintf("storage: bucket %q listing failed: %v", b.Name, err))
			continue
		}
		report.Buckets = append(report.Buckets, profile)

		for _, obj := range objects {
			ext := extension(obj.Key)
			if _, ok := extensions[ext]; !ok {
				extensions[ext] = &model.FileTypeStat{Extension: ext}
			}
			extensions[ext].Count++
			extBytes[ext] += obj.Size

			largest = append(largest, model.LargeFile{
				Bucket:       b.Name,
				Key:          obj.Key,
				Size:         model.NewSize(obj.Size),
				LastModified: obj.LastModified,
			})
		}
	}

	report.FileTypes = histogram(extensions, extBytes)
	report.LargeFiles = topLargest(largest)
	report.Recommendations = recommend(report)

	i.log.Debugf("storage inspection: %d buckets, %d extensions",
		len(report.Buckets), len(report.FileTypes))

	return report, warns
}

func (i *Inspector) profileBucket(ctx context.Context, b filestore.BucketInfo) (model.BucketProfile, []filestore.ObjectInfo, error) {
	objects, err := i.store.ListObjects(ctx, b.Name, filestore.ListOptions{Recursive: true})
	if err != nil {
		return model.BucketProfile{}, nil, err
	}

	profile := model.BucketProfile{
		Name:      b.Name,
		CreatedAt: b.CreatedAt,
	}

	policy, err := i.store.BucketPolicy(ctx, b.Name)
	if err == nil && policy != "" {
		profile.Public = isPublicPolicy(policy)
	}

	folders := make(map[string]*model.FolderStat)
	folderBytes := make(map[string]int64)
	var totalBytes int64
	var order []string

	for _, obj := range objects {
		if obj.IsDir {
			continue
		}
		profile.FileCount++
		totalBytes += obj.Size

		prefix := topLevelPrefix(obj.Key)
		if prefix == "" {
			continue
		}
		if _, ok := folders[prefix]; !ok {
			folders[prefix] = &model.FolderStat{Prefix: prefix}
			order = append(order, prefix)
		}
		folders[prefix].FileCount++
		folderBytes[prefix] += obj.Size
	}

	profile.TotalSize = model.NewSize(totalBytes)

	sort.Strings(order)
	for _, prefix := range order {
		f := folders[prefix]
		f.TotalSize = model.NewSize(folderBytes[prefix])
		profile.Folders = append(profile.Folders, *f)
	}

	return profile, objects, nil
}

// isPublicPolicy detects anonymous access in a bucket policy document
// without parsing the full policy grammar.
func isPublicPolicy(policy string) bool {
	lowered := strings.ToLower(policy)
	return strings.Contains(lowered, `"principal":"*"`) ||
		strings.Contains(lowered, `"principal": "*"`) ||
		strings.Contains(lowered, `"aws":["*"]`) ||
		strings.Contains(lowered, `"aws": ["*"]`)
}

func topLevelPrefix(key string) string {
	if i := strings.IndexByte(key, '/'); i > 0 {
		return key[:i]
	}
	return ""
}

func extension(key string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(key), "."))
	if ext == "" {
		return "(none)"
	}
	return ext
}

func histogram(extensions map[string]*model.FileTypeStat, extBytes map[string]int64) []model.FileTypeStat {
	stats := make([]model.FileTypeStat, 0, len(extensions))
	for ext, s := range extensions {
		s.TotalSize = model.NewSize(extBytes[ext])
		stats = append(stats, *s)
	}
	// Most common first; ties break alphabetically for stable output.
	sort.Slice(stats, func(a, b int) bool {
		if stats[a].Count != stats[b].Count {
			return stats[a].Count > stats[b].Count
		}
		return stats[a].Extension < stats[b].Extension
	})
	return stats
}

func topLargest(files []model.LargeFile) []model.LargeFile {
	sort.Slice(files, func(a, b int) bool {
		if files[a].Size.Bytes != files[b].Size.Bytes {
			return files[a].Size.Bytes > files[b].Size.Bytes
		}
		return files[a].Key < files[b].Key
	})
	if len(files) > largeFileCount {
		files = files[:largeFileCount]
	}
	return files
}

// recommend flags public buckets, empty buckets, and unusually large files.
func recommend(report model.StorageReport) []string {
	var recs []string
	for _, b := range report.Buckets {
		if b.Public {
			recs = append(recs, fmt.Sprintf("bucket %q allows anonymous access; confirm it should be public", b.Name))
		}
		if b.FileCount == 0 {
			recs = append(recs, fmt.Sprintf("bucket %q is empty; remove it or document its purpose", b.Name))
		}
	}
	for _, f := range report.LargeFiles {
		if f.Size.Bytes > largeFileBytes {
			recs = append(recs, fmt.Sprintf("object %s/%s is %s; consider archival storage", f.Bucket, f.Key, f.Size.Human))
		}
	}
	return recs
}
