package storage

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageComputesDigestsInOnePass(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	payload := []byte("hello blob store")
	staged, err := store.Stage(bytes.NewReader(payload))
	require.NoError(t, err)
	defer store.Discard(staged)

	assert.Equal(t, int64(len(payload)), staged.Size)

	sha := sha1.Sum(payload)
	sum := md5.Sum(payload)
	assert.Equal(t, hex.EncodeToString(sha[:]), staged.SHA1)
	assert.Equal(t, hex.EncodeToString(sum[:]), staged.MD5)

	// Staged bytes exist but are not yet addressable by any blob id
	data, err := os.ReadFile(staged.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestPlaceMovesIntoFanoutLayout(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskStore(root)
	require.NoError(t, err)

	staged, err := store.Stage(strings.NewReader("payload"))
	require.NoError(t, err)

	blobID := "abcdef12-3456-7890-abcd-ef1234567890"
	require.NoError(t, store.Place(staged, blobID))

	// Staged file is gone, final path follows the two-level fanout
	_, err = os.Stat(staged.Path)
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(root, "ab", "cd", blobID))
	require.NoError(t, err)

	f, err := store.Open(blobID)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestRemoveToleratesMissingPayload(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	// Removing twice must not fail: reap cycles re-run after crashes
	staged, err := store.Stage(strings.NewReader("x"))
	require.NoError(t, err)
	require.NoError(t, store.Place(staged, "11223344-id"))

	require.NoError(t, store.Remove("11223344-id"))
	require.NoError(t, store.Remove("11223344-id"))
}

func TestDigestFileMatchesStage(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	payload := "the same bytes either way"
	staged, err := store.Stage(strings.NewReader(payload))
	require.NoError(t, err)
	defer store.Discard(staged)

	size, sha1sum, md5sum, err := DigestFile(staged.Path)
	require.NoError(t, err)
	assert.Equal(t, staged.Size, size)
	assert.Equal(t, staged.SHA1, sha1sum)
	assert.Equal(t, staged.MD5, md5sum)
}

func TestStageFile(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "rendition.mp4")
	require.NoError(t, os.WriteFile(src, []byte("encoded output"), 0o644))

	staged, err := store.StageFile(src)
	require.NoError(t, err)
	defer store.Discard(staged)

	assert.Equal(t, int64(len("encoded output")), staged.Size)
	assert.NotEmpty(t, staged.SHA1)
}
