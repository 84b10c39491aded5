// Package workspace diffs a local file-hash listing against a remote one
// and reports the operations needed to bring the remote copy back in
// sync, plus a progress counter for long-running syncs.
package workspace

import (
	"context"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Status classifies one path's sync state.
type Status int

const (
	InSync Status = iota
	Modified
	New
	Deleted
)

func (s Status) String() string {
	switch s {
	case InSync:
		return "InSync"
	case Modified:
		return "Modified"
	case New:
		return "New"
	case Deleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}

// FileHash pairs a path (relative to base_dir) with its content hash.
type FileHash struct {
	Path string
	Hash string
}

// FileStatus is the per-path diff result.
type FileStatus struct {
	Path   string
	Status Status
}

// FileNode is an upload candidate: a path plus the hash it should become.
type FileNode struct {
	Path string
	Hash string
}

// Result is the full diff output of Diff.
type Result struct {
	Statuses []FileStatus
	ToDelete []string
	ToUpload []FileNode
}

// Diff absolutizes all paths against baseDir, unions the key sets, and
// classifies each path into InSync/Modified/New/Deleted, sorted
// lexicographically.
func Diff(baseDir string, remote, local []FileHash) Result {
	remoteMap := make(map[string]string, len(remote))
	for _, f := range remote {
		remoteMap[absolutize(baseDir, f.Path)] = f.Hash
	}
	localMap := make(map[string]string, len(local))
	for _, f := range local {
		localMap[absolutize(baseDir, f.Path)] = f.Hash
	}

	keySet := make(map[string]struct{}, len(remoteMap)+len(localMap))
	for k := range remoteMap {
		keySet[k] = struct{}{}
	}
	for k := range localMap {
		keySet[k] = struct{}{}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var res Result
	for _, path := range keys {
		rh, rOK := remoteMap[path]
		lh, lOK := localMap[path]
		var status Status
		switch {
		case rOK && lOK && rh == lh:
			status = InSync
		case rOK && lOK && rh != lh:
			status = Modified
			res.ToUpload = append(res.ToUpload, FileNode{Path: path, Hash: lh})
		case !rOK && lOK:
			status = New
			res.ToUpload = append(res.ToUpload, FileNode{Path: path, Hash: lh})
		case rOK && !lOK:
			status = Deleted
			res.ToDelete = append(res.ToDelete, path)
		}
		res.Statuses = append(res.Statuses, FileStatus{Path: path, Status: status})
	}
	return res
}

func absolutize(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(baseDir, path)
}

// HashLocalFiles computes content hashes for paths concurrently, one
// goroutine per path with no limit on concurrency, returning a FileHash per path in
// the same order as the input. hashFn is injected so callers can supply
// their own hashing algorithm (e.g. sha256) without this package taking a
// file-I/O dependency.
func HashLocalFiles(ctx context.Context, paths []string, hashFn func(path string) (string, error)) ([]FileHash, error) {
	out := make([]FileHash, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			h, err := hashFn(p)
			if err != nil {
				return err
			}
			out[i] = FileHash{Path: p, Hash: h}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SyncProgressCounter tracks coarse-grained progress across a sync pass.
// Invariant: TotalFiles <= TotalOperations <= 2*TotalFiles.
type SyncProgressCounter struct {
	TotalFiles      int
	TotalOperations int
	Completed       int
}

// Progress is the (current, total) pair reported to the user.
type Progress struct {
	Current int
	Total   int
}

// SyncProgress computes current = floor((completed/total_operations) *
// total_files), clamped to total_files once completed >= total_operations.
func (c SyncProgressCounter) SyncProgress() Progress {
	if c.TotalOperations == 0 {
		return Progress{Current: 0, Total: c.TotalFiles}
	}
	if c.Completed >= c.TotalOperations {
		return Progress{Current: c.TotalFiles, Total: c.TotalFiles}
	}
	current := (c.Completed * c.TotalFiles) / c.TotalOperations
	return Progress{Current: current, Total: c.TotalFiles}
}
