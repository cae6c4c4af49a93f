package verify_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncjourney/internal/browser"
	"ncjourney/internal/verify"
)

const mib = 1 << 20

func sizedFile(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shared.txt")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
	return path
}

func TestVerify_SizeBoundaries(t *testing.T) {
	path := sizedFile(t, 1)
	v := verify.New(verify.DefaultTolerance)

	cases := []struct {
		name   string
		size   int64
		exp    verify.SizeExpectation
		accept bool
	}{
		{"exact nominal", mib, verify.AtLeast(mib), true},
		{"lowest accepted", mib - 16, verify.AtLeast(mib), true},
		{"one below tolerance", mib - 17, verify.AtLeast(mib), false},
		{"far above without max", 10 * mib, verify.AtLeast(mib), true},
		{"at max", 2 * mib, verify.SizeExpectation{MinBytes: mib, MaxBytes: 2 * mib}, true},
		{"above max", 2*mib + 1, verify.SizeExpectation{MinBytes: mib, MaxBytes: 2 * mib}, false},
		{"empty file", 0, verify.AtLeast(mib), false},
		{"zero expectation", 0, verify.SizeExpectation{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Verify(verify.Artifact{LocalPath: path, ByteSize: tc.size}, tc.exp)
			if tc.accept {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, verify.IsWrongSize(err), "want ArtifactSizeError, got %v", err)
		})
	}
}

func TestVerify_ToleranceIsConfigurable(t *testing.T) {
	path := sizedFile(t, 1)
	a := verify.Artifact{LocalPath: path, ByteSize: mib - 100}

	assert.Error(t, verify.New(16).Verify(a, verify.AtLeast(mib)))
	assert.NoError(t, verify.New(100).Verify(a, verify.AtLeast(mib)))
	assert.Error(t, verify.New(0).Verify(verify.Artifact{LocalPath: path, ByteSize: mib - 1}, verify.AtLeast(mib)))
	assert.Equal(t, int64(0), verify.New(-5).Tolerance)
}

func TestVerify_Missing(t *testing.T) {
	v := verify.New(verify.DefaultTolerance)
	err := v.Verify(verify.Artifact{LocalPath: filepath.Join(t.TempDir(), "nope.txt"), ByteSize: mib}, verify.AtLeast(mib))
	require.Error(t, err)
	assert.True(t, verify.IsMissing(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestVerify_SizeErrorMessage(t *testing.T) {
	path := sizedFile(t, 1)
	err := verify.New(16).Verify(verify.Artifact{LocalPath: path, ByteSize: 10}, verify.AtLeast(mib))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is 10 bytes, want at least 1048576 (tolerance 16)")

	var sizeErr *verify.ArtifactSizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, int64(10), sizeErr.Size)
}

func TestFromDownload(t *testing.T) {
	path := sizedFile(t, mib)
	a, err := verify.FromDownload(browser.Download{Path: path, SuggestedName: "abcde.txt"})
	require.NoError(t, err)
	assert.Equal(t, verify.Artifact{LocalPath: path, DeclaredName: "abcde.txt", ByteSize: mib}, a)

	_, err = verify.FromDownload(browser.Download{Path: path + ".missing"})
	assert.True(t, verify.IsMissing(err))
}
