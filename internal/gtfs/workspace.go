package gtfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	archiveName = "gtfs.zip"
	distDirName = "dist"
)

// Workspace is the scratch directory one company refresh works in. It is
// created by NewWorkspace and must be released with Remove.
type Workspace struct {
	root string
}

// NewWorkspace creates a fresh, uniquely named workspace for companyID under scratchRoot.
func NewWorkspace(scratchRoot, companyID string) (*Workspace, error) {
	if scratchRoot == "" {
		scratchRoot = os.TempDir()
	}
	if err := os.MkdirAll(scratchRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch root: %w", err)
	}
	root, err := os.MkdirTemp(scratchRoot, "company-"+safeName(companyID)+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	return &Workspace{root: root}, nil
}

func (w *Workspace) Root() string { return w.root }

// Dist is the directory the archive is expanded into.
func (w *Workspace) Dist() string { return filepath.Join(w.root, distDirName) }

func (w *Workspace) ArchivePath() string { return filepath.Join(w.root, archiveName) }

// Path returns the location of an expanded feed file.
func (w *Workspace) Path(name string) string { return filepath.Join(w.Dist(), name) }

// Has reports whether the expanded feed contains the regular file name.
func (w *Workspace) Has(name string) bool {
	info, err := os.Stat(w.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// Reset empties the workspace, leaving its root in place.
func (w *Workspace) Reset() error {
	if err := os.RemoveAll(w.root); err != nil {
		return err
	}
	return os.MkdirAll(w.root, 0o755)
}

// Remove deletes the workspace and everything in it.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.root)
}

// safeName keeps company ids usable inside a directory name.
func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
