package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var _ Archiver = (*LocalArchiver)(nil)

// LocalArchiver writes exports into a directory on the local filesystem.
type LocalArchiver struct {
	basePath string
}

// NewLocalArchiver creates a LocalArchiver rooted at basePath.
func NewLocalArchiver(basePath string) *LocalArchiver {
	return &LocalArchiver{basePath: basePath}
}

func (a *LocalArchiver) resolve(name string) string {
	return filepath.Join(a.basePath, filepath.Clean("/"+name))
}

func (a *LocalArchiver) Location(name string) string {
	return a.resolve(name)
}

// OpenWrite writes to a temporary file that is renamed into place on Close,
// so a failed export never leaves a truncated file behind.
func (a *LocalArchiver) OpenWrite(ctx context.Context, name string) (io.WriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fullPath := a.resolve(name)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".export-*")
	if err != nil {
		return nil, err
	}
	return &localWriteCloser{File: tmp, fullPath: fullPath}, nil
}

type localWriteCloser struct {
	*os.File
	fullPath string
}

func (l *localWriteCloser) Close() error {
	tmpPath := l.File.Name()
	if err := l.File.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, l.fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move export into place: %w", err)
	}
	return nil
}

func (l *localWriteCloser) Abort(error) {
	l.File.Close()
	os.Remove(l.File.Name())
}
