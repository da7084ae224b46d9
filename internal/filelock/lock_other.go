//go:build !unix

package filelock

import "os"

// Without flock the lock file still marks ownership but is not enforced.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
