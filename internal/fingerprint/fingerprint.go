// Package fingerprint computes a deterministic content hash over an
// extracted sketch tree, used as the sketch cache key.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Sentinel is returned when the tree cannot be fingerprinted. Callers
// must treat it as "not cacheable" and proceed without consulting the
// cache.
const Sentinel = ""

// excludedDirNames never contribute to the fingerprint: they are
// artifact output re-injected into the tree by a previous local build,
// not logical sketch content.
var excludedDirNames = map[string]bool{
	"fastled_js": true,
}

// Compute walks root and returns a stable hex digest over the
// (relative path, content) pairs of every regular file, in
// lexicographic path order. It is deterministic under reordering of
// directory iteration and independent of file timestamps.
func Compute(root string) string {
	paths, err := collectFiles(root)
	if err != nil || len(paths) == 0 {
		return Sentinel
	}

	h := sha256.New()
	for _, rel := range paths {
		full := filepath.Join(root, filepath.FromSlash(rel))
		f, err := os.Open(full)
		if err != nil {
			return Sentinel
		}
		h.Write([]byte(rel))
		h.Write([]byte{'\n'})
		if _, err := io.Copy(h, f); err != nil {
			f.Close()
			return Sentinel
		}
		f.Close()
	}
	return hex.EncodeToString(h.Sum(nil))
}

// collectFiles returns every regular file under root as a
// forward-slash, root-relative path, sorted lexicographically, with
// excluded artifact directories pruned.
func collectFiles(root string) ([]string, error) {
	var rels []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != root && excludedDirNames[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(rels)
	return rels, nil
}

// IsExcludedDir reports whether name is an artifact-output directory
// name excluded from fingerprinting and from the fingerprint's
// consumers that need to mirror the exclusion (e.g. archive packing).
func IsExcludedDir(name string) bool {
	return excludedDirNames[strings.TrimSuffix(name, "/")]
}
