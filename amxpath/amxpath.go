// Package amxpath locates the .amx file a loaded machine instance was
// created from. Hosts rarely remember the path once a script is in
// memory, so the finder re-discovers it by matching image headers
// against candidate files in a configured list of directories.
package amxpath

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/laschicaz/samp-plugin-crashdetect/amx"
)

// ErrNotFound is returned by FindAMX when no candidate file matches the
// instance.
var ErrNotFound = errors.New("no matching amx file found")

// Finder searches directories for the file an instance was loaded from.
// Candidate headers are cached by modification time, so repeated
// lookups over a large script directory stay cheap.
type Finder struct {
	dirs  []string
	cache map[string]cacheEntry
}

type cacheEntry struct {
	modTime time.Time
	hdr     amx.Header
}

// NewFinder creates a Finder with an empty search path.
func NewFinder() *Finder {
	return &Finder{
		cache: make(map[string]cacheEntry),
	}
}

// AddSearchPath appends a directory to the search path.
func (f *Finder) AddSearchPath(dir string) {
	if dir != "" {
		f.dirs = append(f.dirs, dir)
	}
}

// AddSearchPathList appends each entry of a list-separator-delimited
// directory list, as found in environment variables.
func (f *Finder) AddSearchPathList(list string) {
	for _, dir := range strings.Split(list, string(filepath.ListSeparator)) {
		f.AddSearchPath(dir)
	}
}

// SearchPath returns a copy of the current search path.
func (f *Finder) SearchPath() []string {
	out := make([]string, len(f.dirs))
	copy(out, f.dirs)
	return out
}

// FindAMX returns the path of the .amx file the instance was loaded
// from, identified by an exact header match. Directories are searched
// in the order they were added. Unreadable directories and candidates
// are collected rather than aborting the search; if nothing matches,
// the returned error wraps ErrNotFound along with anything collected.
func (f *Finder) FindAMX(am *amx.AMX) (string, error) {
	want := am.Header()
	var merr *multierror.Error
	for _, dir := range f.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".amx") {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			hdr, err := f.headerOf(path)
			if err != nil {
				merr = multierror.Append(merr, err)
				continue
			}
			if hdr == want {
				return path, nil
			}
		}
	}
	merr = multierror.Append(merr, ErrNotFound)
	return "", merr.ErrorOrNil()
}

func (f *Finder) headerOf(path string) (amx.Header, error) {
	info, err := os.Stat(path)
	if err != nil {
		return amx.Header{}, err
	}
	if entry, ok := f.cache[path]; ok && entry.modTime.Equal(info.ModTime()) {
		return entry.hdr, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return amx.Header{}, err
	}
	defer file.Close()

	buf := make([]byte, amx.HeaderSize)
	if _, err := io.ReadFull(file, buf); err != nil {
		return amx.Header{}, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	hdr, err := amx.ParseHeader(buf)
	if err != nil {
		return amx.Header{}, fmt.Errorf("%s: %w", path, err)
	}
	f.cache[path] = cacheEntry{modTime: info.ModTime(), hdr: hdr}
	return hdr, nil
}
