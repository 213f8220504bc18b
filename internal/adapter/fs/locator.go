package fs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"debias/internal/domain"
)

// Source is one named place an artifact may live.
type Source struct {
	Name string
	Path string
}

// Locator resolves pipeline artifacts from an explicit, ordered list of named
// sources. Every probe is logged; when no source has the artifact the failure
// is a precondition error rather than silently partial data.
type Locator struct {
	sources []Source
}

// NewLocator creates a locator over the given sources, probed in order.
func NewLocator(sources ...Source) *Locator {
	return &Locator{sources: sources}
}

// Locate returns the path of the first source that exists.
func (l *Locator) Locate() (string, error) {
	for _, src := range l.sources {
		if _, err := os.Stat(src.Path); err == nil {
			slog.Debug("artifact found", "source", src.Name, "path", src.Path)
			return src.Path, nil
		}
		slog.Debug("artifact not present", "source", src.Name, "path", src.Path)
	}

	names := make([]string, 0, len(l.sources))
	for _, src := range l.sources {
		names = append(names, src.Name)
	}
	return "", fmt.Errorf("%w: artifact not found in any source %v", domain.ErrPrecondition, names)
}

// Glob returns the files under dir matching the doublestar pattern, sorted
// for deterministic processing order.
func Glob(dir, pattern string) ([]string, error) {
	entries, err := doublestar.FilepathGlob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad glob pattern %q: %w", pattern, err)
	}
	sort.Strings(entries)
	return entries, nil
}
