// Copyright 2026 The cachesync Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package diskcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sys/unix"

	"cachesync.dev/cachesync/pkg/cleanup"
)

const (
	// lockFileName is the inter-process lock inside the cache directory.
	lockFileName = ".lock"

	// tempPrefix starts the name of files being written.
	tempPrefix = ".tmp-"
)

// fileName maps a cache key to the name of its file.
func fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// isEntryName returns whether name could have been produced by fileName.
func isEntryName(name string) bool {
	if len(name) != 2*sha256.Size {
		return false
	}
	_, err := hex.DecodeString(name)
	return err == nil && strings.ToLower(name) == name
}

// writeFileAtomic writes the contents of r to path through a temporary file
// in the same directory, so readers see either the old file or the complete
// new one.
func writeFileAtomic(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file in dir %s: %w", dir, err)
	}
	cu := cleanup.Make(func() { _ = os.Remove(tempFile.Name()) })
	cu.Add(func() { _ = tempFile.Close() })
	defer cu.Clean()

	n, err := io.Copy(tempFile, r)
	if err != nil {
		return 0, fmt.Errorf("failed to write temp file %s: %w", tempFile.Name(), err)
	}
	if err := tempFile.Chmod(0644); err != nil {
		return 0, fmt.Errorf("failed to chmod temp file %s: %w", tempFile.Name(), err)
	}
	if err := tempFile.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file %s: %w", tempFile.Name(), err)
	}
	if err := os.Rename(tempFile.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to rename temp file %s -> %s: %w", tempFile.Name(), path, err)
	}
	cu.Release()
	return n, nil
}

// removeFile removes path, retrying transient failures. A missing file is
// not an error.
func removeFile(ctx context.Context, path string) error {
	op := func() error {
		err := os.Remove(path)
		switch {
		case err == nil, errors.Is(err, fs.ErrNotExist):
			return nil
		case errors.Is(err, fs.ErrPermission):
			return backoff.Permanent(err)
		default:
			return err
		}
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 10 * time.Millisecond
	eb.MaxElapsedTime = time.Second
	return backoff.Retry(op, backoff.WithContext(eb, ctx))
}

// freeSpace returns the number of bytes available to unprivileged users on
// the filesystem holding dir.
func freeSpace(dir string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, fmt.Errorf("statfs %q: %w", dir, err)
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
