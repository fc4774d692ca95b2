package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DiskBucket stores objects as files under a root directory.
type DiskBucket struct {
	name string
	root string
}

// NewDiskBucket creates the root directory if needed.
func NewDiskBucket(name, root string) (*DiskBucket, error) {
	if root == "" {
		return nil, errors.New("disk bucket root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &DiskBucket{name: name, root: abs}, nil
}

func (b *DiskBucket) Name() string { return b.name }

func (b *DiskBucket) pathFor(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.root, filepath.FromSlash(cleaned)), nil
}

// Put writes to a temp file and renames it into place.
func (b *DiskBucket) Put(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := b.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func (b *DiskBucket) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := b.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p) // #nosec G304 -- key is cleaned and confined to root
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return f, nil
}

func (b *DiskBucket) Delete(_ context.Context, key string) error {
	p, err := b.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (b *DiskBucket) Exists(_ context.Context, key string) (bool, error) {
	p, err := b.pathFor(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (b *DiskBucket) Ping(_ context.Context) error {
	info, err := os.Stat(b.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", b.root)
	}
	return nil
}
