// Package validator checks request inputs before any processing starts.
package validator

import (
	"errors"
	"fmt"
	"os"
)

// ErrMissingAudioFile is returned when the requested audio path does not
// name a regular file.
var ErrMissingAudioFile = errors.New("audio file not found")

// CheckAudioFile verifies that path exists and is not a directory, and
// returns its size in bytes.
func CheckAudioFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrMissingAudioFile, path)
		}
		return 0, fmt.Errorf("stat audio file: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory", ErrMissingAudioFile, path)
	}
	return info.Size(), nil
}

// FileSize returns the size of path, or -1 when it cannot be read.
func FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return info.Size()
}
