// Package filelock serializes access to state files with an advisory lock
// on a sidecar "<path>.lock" file. Locks are non-blocking: a second holder
// gets ErrFileLocked instead of waiting.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrFileLocked is returned when another holder owns the lock.
var ErrFileLocked = errors.New("file is locked by another process")

// Lock is a held lock. Release it on every path.
type Lock struct {
	f *os.File
}

// Acquire takes the exclusive lock guarding path.
func Acquire(path string) (*Lock, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path+".lock", os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		f.Close()
		if errors.Is(err, ErrFileLocked) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, err
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. Calling it twice is harmless.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}

// ReadFile reads path while holding its lock.
func ReadFile(path string) ([]byte, error) {
	l, err := Acquire(path)
	if err != nil {
		return nil, err
	}
	defer l.Release()
	return os.ReadFile(path)
}

// WriteFile replaces path while holding its lock. Data goes to a temp file
// in the same directory first, so readers never see a partial write.
func WriteFile(path string, data []byte, perm os.FileMode) (err error) {
	l, err := Acquire(path)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := l.Release(); err == nil {
			err = rerr
		}
	}()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
