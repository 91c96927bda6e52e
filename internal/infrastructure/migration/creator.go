package migration

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	scriptName  = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)
	nonWordRuns = regexp.MustCompile(`[^a-z0-9]+`)
)

// Script is one numbered migration in a source directory
type Script struct {
	Version uint
	Name    string
	HasUp   bool
	HasDown bool
}

// String is the file name without its direction suffix
func (s Script) String() string {
	return strconv.FormatUint(uint64(s.Version), 10) + "_" + s.Name
}

// Scan reads the migration scripts in the root of fsys, ordered by version.
// A missing directory has no scripts.
func Scan(fsys fs.FS) ([]Script, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byVersion := make(map[uint]*Script)
	for _, entry := range entries {
		m := scriptName.FindStringSubmatch(entry.Name())
		if entry.IsDir() || m == nil {
			continue
		}
		v, err := strconv.ParseUint(m[1], 10, 0)
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", entry.Name(), err)
		}
		s, ok := byVersion[uint(v)]
		if !ok {
			s = &Script{Version: uint(v), Name: m[2]}
			byVersion[uint(v)] = s
		} else if s.Name != m[2] {
			return nil, fmt.Errorf("version %d is used by %s and %s", v, s.Name, m[2])
		}
		if m[3] == "up" {
			s.HasUp = true
		} else {
			s.HasDown = true
		}
	}

	scripts := make([]Script, 0, len(byVersion))
	for _, s := range byVersion {
		scripts = append(scripts, *s)
	}
	slices.SortFunc(scripts, func(a, b Script) int { return cmp.Compare(a.Version, b.Version) })
	return scripts, nil
}

// CheckPairs reports every script missing its up or down half
func CheckPairs(scripts []Script) error {
	var errs []error
	for _, s := range scripts {
		if !s.HasUp {
			errs = append(errs, fmt.Errorf("%s has no up script", s))
		}
		if !s.HasDown {
			errs = append(errs, fmt.Errorf("%s has no down script", s))
		}
	}
	return errors.Join(errs...)
}

// Created names the files written by Create
type Created struct {
	Script
	UpPath   string
	DownPath string
}

// Create writes an empty up and down script into dir, versioned by the
// UTC timestamp of now. Existing files are never overwritten.
func Create(dir, name, description string, now time.Time) (*Created, error) {
	slug := slugify(name)
	if slug == "" {
		return nil, fmt.Errorf("migration name %q has no letters or digits", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	now = now.UTC()
	v, _ := strconv.ParseUint(now.Format("20060102150405"), 10, 0)
	c := &Created{Script: Script{Version: uint(v), Name: slug, HasUp: true, HasDown: true}}
	base := filepath.Join(dir, c.String())
	c.UpPath, c.DownPath = base+".up.sql", base+".down.sql"

	header := fmt.Sprintf("-- %s\n-- Created: %s\n", name, now.Format(time.RFC3339))
	if description != "" {
		header += "-- " + description + "\n"
	}
	if err := writeNew(c.UpPath, header+"\n"); err != nil {
		return nil, err
	}
	if err := writeNew(c.DownPath, header+"-- Reverts the up script\n\n"); err != nil {
		_ = os.Remove(c.UpPath)
		return nil, err
	}
	return c, nil
}

func writeNew(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	_, err = f.WriteString(content)
	return errors.Join(err, f.Close())
}

// slugify lowercases name and joins its words with underscores
func slugify(name string) string {
	return strings.Trim(nonWordRuns.ReplaceAllString(strings.ToLower(name), "_"), "_")
}
