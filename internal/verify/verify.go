// Package verify checks downloaded artifacts against size expectations.
package verify

import (
	"errors"
	"fmt"
	"os"

	"ncjourney/internal/browser"
)

// DefaultTolerance absorbs the few bytes a producing system may drop or add
// around a nominal size.
const DefaultTolerance int64 = 16

// Artifact is a file saved by a download.
type Artifact struct {
	LocalPath    string
	DeclaredName string
	ByteSize     int64
}

// FromDownload stats a saved download. A missing file yields
// ArtifactMissingError.
func FromDownload(d browser.Download) (Artifact, error) {
	a := Artifact{LocalPath: d.Path, DeclaredName: d.SuggestedName}
	fi, err := os.Stat(d.Path)
	if err != nil {
		return a, &ArtifactMissingError{Path: d.Path, Err: err}
	}
	a.ByteSize = fi.Size()
	return a, nil
}

// SizeExpectation bounds an artifact's size. MaxBytes 0 means no upper bound.
type SizeExpectation struct {
	MinBytes int64
	MaxBytes int64
}

// AtLeast expects n bytes or more.
func AtLeast(n int64) SizeExpectation { return SizeExpectation{MinBytes: n} }

// Verifier checks artifacts. Tolerance is subtracted from MinBytes only.
type Verifier struct {
	Tolerance int64
}

// New returns a Verifier with the given tolerance; negative values are
// treated as zero.
func New(tolerance int64) *Verifier {
	return &Verifier{Tolerance: max(tolerance, 0)}
}

// Verify fails with ArtifactMissingError when the file is absent and
// ArtifactSizeError when ByteSize is outside [MinBytes-Tolerance, MaxBytes].
func (v *Verifier) Verify(a Artifact, exp SizeExpectation) error {
	if _, err := os.Stat(a.LocalPath); err != nil {
		return &ArtifactMissingError{Path: a.LocalPath, Err: err}
	}
	low := exp.MinBytes - v.Tolerance
	if a.ByteSize < low || (exp.MaxBytes > 0 && a.ByteSize > exp.MaxBytes) {
		return &ArtifactSizeError{
			Path:      a.LocalPath,
			Size:      a.ByteSize,
			Want:      exp,
			Tolerance: v.Tolerance,
		}
	}
	return nil
}

// ArtifactMissingError reports a download that did not land on disk.
type ArtifactMissingError struct {
	Path string
	Err  error
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("artifact %s missing: %v", e.Path, e.Err)
}

func (e *ArtifactMissingError) Unwrap() error { return e.Err }

// ArtifactSizeError reports a download outside the expected size range.
type ArtifactSizeError struct {
	Path      string
	Size      int64
	Want      SizeExpectation
	Tolerance int64
}

func (e *ArtifactSizeError) Error() string {
	if e.Want.MaxBytes > 0 {
		return fmt.Sprintf("artifact %s is %d bytes, want %d..%d (tolerance %d)",
			e.Path, e.Size, e.Want.MinBytes, e.Want.MaxBytes, e.Tolerance)
	}
	return fmt.Sprintf("artifact %s is %d bytes, want at least %d (tolerance %d)",
		e.Path, e.Size, e.Want.MinBytes, e.Tolerance)
}

// IsMissing reports whether err is an ArtifactMissingError.
func IsMissing(err error) bool {
	var m *ArtifactMissingError
	return errors.As(err, &m)
}

// IsWrongSize reports whether err is an ArtifactSizeError.
func IsWrongSize(err error) bool {
	var s *ArtifactSizeError
	return errors.As(err, &s)
}
