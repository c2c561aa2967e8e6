package content

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed *.yaml scenes/*.yaml scripts/*.tengo
var FS embed.FS

// Dir is the on-disk directory whose files take precedence over the embedded
// copies. Editing a file there and letting the Watcher pick it up is how
// content is tuned without rebuilding.
var Dir = "content"

func Load(name string) ([]byte, error) {
	clean := cleanPath(name)
	if data, err := os.ReadFile(diskPath(clean)); err == nil {
		return data, nil
	}
	return FS.ReadFile(clean)
}

func LoadScript(name string) ([]byte, error) {
	return Load(scriptPath(name))
}

// List returns the names of the files in dir, merging disk and embedded
// copies.
func List(dir string) ([]string, error) {
	clean := cleanPath(dir)
	seen := map[string]bool{}

	entries, err := fs.ReadDir(FS, clean)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("content: list %s: %w", dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			seen[e.Name()] = true
		}
	}
	if disk, err := os.ReadDir(diskPath(clean)); err == nil {
		for _, e := range disk {
			if !e.IsDir() {
				seen[e.Name()] = true
			}
		}
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func cleanPath(path string) string {
	if path == "" {
		return ""
	}
	s := filepath.ToSlash(path)
	if after, ok := strings.CutPrefix(s, "content/"); ok {
		s = after
	}
	return s
}

func scriptPath(path string) string {
	s := cleanPath(path)
	if after, ok := strings.CutPrefix(s, "scripts/"); ok {
		s = after
	}
	if filepath.Ext(s) == "" {
		s += ".tengo"
	}
	return fmt.Sprintf("scripts/%s", s)
}

func diskPath(clean string) string {
	return filepath.Join(Dir, filepath.FromSlash(clean))
}
