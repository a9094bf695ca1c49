//go:build !(unix || linux || darwin || freebsd || openbsd || netbsd)

package mmap

import (
	"io"
	"os"
)

// Fallback for platforms without mmap support: read the file into memory.
// Semantics match the mapped variant; only the zero-copy property is lost.
func osMap(f *os.File, size int) ([]byte, func([]byte) error, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, nil, err
	}
	return data, func([]byte) error { return nil }, nil
}

func osAdvise(_ []byte, _ AccessPattern) error {
	return nil
}
