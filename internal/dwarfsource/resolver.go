// Package dwarfsource resolves debug-symbol source-path lookups for
// the /dwarfsource endpoint: given a relative path recorded in a
// compiled artifact's DWARF info, find the matching file either in a
// developer's locally mounted FastLED checkout or in the compiler's
// own bundled source tree.
package dwarfsource

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolver locates a source file by its DWARF-recorded relative path.
type Resolver struct {
	// VolumeMappedSrc is a developer's live-mounted FastLED checkout,
	// preferred when configured (VOLUME_MAPPED_SRC).
	VolumeMappedSrc string
	// CompilerSrc is the compiler's own bundled FastLED source tree,
	// used as a fallback.
	CompilerSrc string
}

// New returns a Resolver. Either field may be empty.
func New(volumeMappedSrc, compilerSrc string) *Resolver {
	return &Resolver{VolumeMappedSrc: volumeMappedSrc, CompilerSrc: compilerSrc}
}

// Resolve returns the absolute path on disk for relPath, preferring
// VolumeMappedSrc over CompilerSrc. It returns an error (callers map
// this to 404) if relPath escapes either root or is not found in
// either.
func (r *Resolver) Resolve(relPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("dwarfsource: path %q escapes source root", relPath)
	}

	for _, root := range []string{r.VolumeMappedSrc, r.CompilerSrc} {
		if root == "" {
			continue
		}
		candidate := filepath.Join(root, clean)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("dwarfsource: %q not found", relPath)
}
