// Package file persists the sync watermark as a JSON file.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	domainErrors "github.com/jbctechsolutions/activitysync/internal/domain/errors"
	"github.com/jbctechsolutions/activitysync/internal/domain/syncstate"
)

// Store reads and writes the state file through a billy filesystem.
type Store struct {
	fs       billy.Filesystem
	name     string
	location string
}

// New creates a store for the file name inside fs.
func New(fs billy.Filesystem, name string) *Store {
	return &Store{
		fs:       fs,
		name:     name,
		location: fs.Join(fs.Root(), name),
	}
}

// NewOS creates a store for an absolute or relative path on the local disk.
func NewOS(statePath string) *Store {
	dir, name := filepath.Split(statePath)
	if dir == "" {
		dir = "."
	}
	s := New(osfs.New(dir), name)
	s.location = statePath
	return s
}

// Location returns the path of the state file.
func (s *Store) Location() string {
	return s.location
}

// Load reads the state file.
func (s *Store) Load(ctx context.Context) (syncstate.State, error) {
	if err := ctx.Err(); err != nil {
		return syncstate.State{}, err
	}

	data, err := util.ReadFile(s.fs, s.name)
	if errors.Is(err, os.ErrNotExist) {
		return syncstate.State{}, domainErrors.ErrStateNotFound
	}
	if err != nil {
		return syncstate.State{}, fmt.Errorf("failed to read state file %s: %w", s.location, err)
	}

	return syncstate.Decode(data)
}

// Save writes the state to a temporary file in the same directory and renames
// it over the state file, so readers never observe a partial write.
func (s *Store) Save(ctx context.Context, state syncstate.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := syncstate.Encode(state)
	if err != nil {
		return err
	}

	dir := path.Dir(s.name)
	tmp, err := util.TempFile(s.fs, dir, ".last_sync_date-")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := s.fs.Rename(tmpName, s.name); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to replace state file %s: %w", s.location, err)
	}
	return nil
}
