package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalOptions configures the local filesystem backend.
type LocalOptions struct {
	// PermFile/PermDir: zero means 0o644/0o755.
	PermFile os.FileMode
	PermDir  os.FileMode
}

// Local stores histories and hands on the local filesystem. Locations are
// plain paths written with forward slashes.
type Local struct {
	permF os.FileMode
	permD os.FileMode
}

var (
	_ Backend    = (*Local)(nil)
	_ DirChecker = (*Local)(nil)
)

// errStopWalk ends a directory walk early once a file has been found.
var errStopWalk = errors.New("stop walk")

// tempPrefix names in-flight writes. A leftover one is not a stored record.
const tempPrefix = ".tmp-"

func isTemp(name string) bool { return strings.HasPrefix(name, tempPrefix) }

// NewLocal creates a local filesystem backend.
func NewLocal(opts *LocalOptions) *Local {
	l := &Local{permF: 0o644, permD: 0o755}
	if opts != nil {
		if opts.PermFile != 0 {
			l.permF = opts.PermFile
		}
		if opts.PermDir != 0 {
			l.permD = opts.PermDir
		}
	}
	return l
}

// ListSources walks root in lexical order and returns every regular file.
func (l *Local) ListSources(ctx context.Context, root string) ([]string, error) {
	var sources []string
	err := filepath.WalkDir(filepath.FromSlash(root), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Type().IsRegular() && !isTemp(d.Name()) {
			sources = append(sources, filepath.ToSlash(p))
		}
		return nil
	})
	if err != nil {
		return nil, localErr("list", root, err)
	}
	return sources, nil
}

func (l *Local) ReadText(ctx context.Context, location string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := os.ReadFile(filepath.FromSlash(location))
	if err != nil {
		return "", localErr("read", location, err)
	}
	return DecodeText(location, b)
}

// ExistsUnder is true when prefix is a file, or a directory holding at
// least one file at any depth. Temp files of unfinished writes do not count.
func (l *Local) ExistsUnder(ctx context.Context, prefix string) (bool, error) {
	p := filepath.FromSlash(strings.TrimSuffix(prefix, "/"))
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, localErr("stat", prefix, err)
	}
	if !info.IsDir() {
		return !isTemp(info.Name()), nil
	}

	found := false
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.IsDir() && !isTemp(d.Name()) {
			found = true
			return errStopWalk
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return false, localErr("walk", prefix, err)
	}
	return found, nil
}

// DirExists is true when dir exists as a directory, empty or not.
func (l *Local) DirExists(_ context.Context, dir string) (bool, error) {
	info, err := os.Stat(filepath.FromSlash(dir))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, localErr("stat", dir, err)
	}
	return info.IsDir(), nil
}

// WriteRecord creates the parent directories of location and replaces its
// content atomically through a temp file in the same directory.
func (l *Local) WriteRecord(ctx context.Context, location, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest := filepath.FromSlash(location)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, l.permD); err != nil {
		return localErr("mkdir", location, err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return localErr("create", location, err)
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, l.permF)

	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return localErr("write", location, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return localErr("close", location, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return localErr("rename", location, err)
	}
	return nil
}

func localErr(op, location string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s %s: %v", ErrNotFound, op, location, err)
	default:
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, op, location, err)
	}
}
