// Package safe provides the filesystem and I/O guards used when writing a
// mirror: joining untrusted relative paths under a root, and bounded reads.
package safe

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when a relative path escapes its root.
var ErrPathTraversal = errors.New("safe: path escapes mirror root")

// Join joins rel under root using the host separator and cleans the result.
// It fails with ErrPathTraversal when the cleaned path would leave root or
// collapse onto it.
func Join(root, rel string) (string, error) {
	root = filepath.Clean(root)
	joined := filepath.Join(root, filepath.FromSlash(rel))
	inner, err := filepath.Rel(root, joined)
	if err != nil || inner == "." || inner == ".." ||
		strings.HasPrefix(inner, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, rel)
	}
	return joined, nil
}

// LimitedReadAll reads at most maxBytes from r. It fails if the limit is
// exceeded rather than silently truncating.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("safe: body exceeds %d bytes", maxBytes)
	}
	return data, nil
}
