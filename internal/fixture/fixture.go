// Package fixture generates upload payloads and file names.
package fixture

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
)

// DefaultSize is the size of the standard upload fixture.
const DefaultSize = 1 << 20

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Letters returns n random ASCII letters.
func Letters(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.IntN(len(letters))]
	}
	return string(b)
}

// FileName returns a fresh upload name: five random letters and ".txt".
func FileName() string { return Letters(5) + ".txt" }

// Write creates path holding size random letters, replacing any existing
// file. Parent directories are created.
func Write(path string, size int64) error {
	if size < 0 {
		return fmt.Errorf("fixture size %d is negative", size)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create fixture dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create fixture: %w", err)
	}
	w := bufio.NewWriter(f)
	for i := int64(0); i < size; i++ {
		if err := w.WriteByte(letters[rand.IntN(len(letters))]); err != nil {
			f.Close()
			return fmt.Errorf("write fixture: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write fixture: %w", err)
	}
	return f.Close()
}
