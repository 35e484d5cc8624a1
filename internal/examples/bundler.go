// Package examples serves the bundled FastLED example sketches used by
// the /project/init endpoint: a default starter project, or any named
// example from the compiler's examples directory, packaged as a zip.
package examples

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ocx/fastled-compile-svc/internal/archiveutil"
)

// DefaultExample is served when no name is given to /project/init.
const DefaultExample = "Blink"

// Bundler packages example sketches from a fixed directory tree on
// disk into zip archives.
type Bundler struct {
	// Dir is the root directory containing one subdirectory per
	// example (e.g. Dir/Blink, Dir/FirstLight).
	Dir string
}

// New returns a Bundler rooted at dir.
func New(dir string) *Bundler {
	return &Bundler{Dir: dir}
}

// Bundle packages the named example into destZipPath. An empty name
// selects DefaultExample. Names containing path separators or ".."
// segments are rejected, mirroring the upload extractor's
// path-traversal guard.
func (b *Bundler) Bundle(name, destZipPath string) error {
	if name == "" {
		name = DefaultExample
	}
	if err := validateName(name); err != nil {
		return err
	}

	srcDir := filepath.Join(b.Dir, name)
	info, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("examples: example %q not found", name)
	}
	if !info.IsDir() {
		return fmt.Errorf("examples: %q is not a directory", name)
	}

	return archiveutil.CreateZip(srcDir, destZipPath, 1)
}

// List returns every example name available under Dir.
func (b *Bundler) List() ([]string, error) {
	entries, err := os.ReadDir(b.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func validateName(name string) error {
	clean := filepath.Clean(name)
	if clean != name || strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("examples: invalid example name %q", name)
	}
	return nil
}
