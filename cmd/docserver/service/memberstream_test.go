package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/docvault/docvault/cmd/docserver/models"
)

func storeArchiveBlob(t *testing.T, fx *treeFixture, members map[string]string) *models.Blob {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	blob, err := fx.blobs.StoreBytes(context.Background(), buf.Bytes(), BlobMeta{Mimetype: "application/zip"})
	require.NoError(t, err)
	return blob
}

func TestOpenMemberReadsWholeEntry(t *testing.T) {
	archives, fx := newArchiveFixture(t, nil)

	blob := storeArchiveBlob(t, fx, map[string]string{
		"notes/today.txt": "a compressed line of text",
	})

	ms, err := archives.OpenMember(context.Background(), blob.ID, "notes/today.txt")
	require.NoError(t, err)
	defer ms.Close()

	assert.Equal(t, int64(len("a compressed line of text")), ms.Size())

	data, err := io.ReadAll(ms)
	require.NoError(t, err)
	assert.Equal(t, "a compressed line of text", string(data))
}

func TestOpenMemberMissingEntry(t *testing.T) {
	archives, fx := newArchiveFixture(t, nil)
	blob := storeArchiveBlob(t, fx, map[string]string{"a.txt": "x"})

	_, err := archives.OpenMember(context.Background(), blob.ID, "b.txt")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemberStreamForwardSeek(t *testing.T) {
	archives, fx := newArchiveFixture(t, nil)
	content := strings.Repeat("0123456789", 100)
	blob := storeArchiveBlob(t, fx, map[string]string{"data.txt": content})

	ms, err := archives.OpenMember(context.Background(), blob.ID, "data.txt")
	require.NoError(t, err)
	defer ms.Close()

	pos, err := ms.Seek(500, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(500), pos)

	buf := make([]byte, 10)
	_, err = io.ReadFull(ms, buf)
	require.NoError(t, err)
	assert.Equal(t, content[500:510], string(buf))
}

func TestMemberStreamBackwardSeekReplays(t *testing.T) {
	archives, fx := newArchiveFixture(t, nil)
	content := strings.Repeat("abcdefghij", 50)
	blob := storeArchiveBlob(t, fx, map[string]string{"data.txt": content})

	ms, err := archives.OpenMember(context.Background(), blob.ID, "data.txt")
	require.NoError(t, err)
	defer ms.Close()

	_, err = ms.Seek(400, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(ms, buf)
	require.NoError(t, err)

	// Backward movement reopens the entry and replays to the target
	pos, err := ms.Seek(100, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pos)

	_, err = io.ReadFull(ms, buf)
	require.NoError(t, err)
	assert.Equal(t, content[100:105], string(buf))
}

func TestMemberStreamSeekEnd(t *testing.T) {
	archives, fx := newArchiveFixture(t, nil)
	content := "short member"
	blob := storeArchiveBlob(t, fx, map[string]string{"s.txt": content})

	ms, err := archives.OpenMember(context.Background(), blob.ID, "s.txt")
	require.NoError(t, err)
	defer ms.Close()

	// ServeContent sizes the response with a SeekEnd probe; it must not
	// cost a full decompression pass
	pos, err := ms.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), pos)

	n, err := ms.Read(make([]byte, 1))
	assert.Zero(t, n)
	assert.Equal(t, io.EOF, err)

	// Seeking back to the start still works after the end probe
	pos, err = ms.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Zero(t, pos)

	data, err := io.ReadAll(ms)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestMemberStreamSeekCurrent(t *testing.T) {
	archives, fx := newArchiveFixture(t, nil)
	content := "0123456789"
	blob := storeArchiveBlob(t, fx, map[string]string{"n.txt": content})

	ms, err := archives.OpenMember(context.Background(), blob.ID, "n.txt")
	require.NoError(t, err)
	defer ms.Close()

	buf := make([]byte, 2)
	_, err = io.ReadFull(ms, buf)
	require.NoError(t, err)

	pos, err := ms.Seek(3, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos)

	_, err = io.ReadFull(ms, buf)
	require.NoError(t, err)
	assert.Equal(t, "56", string(buf))

	_, err = ms.Seek(-100, io.SeekCurrent)
	assert.Error(t, err, "negative positions are rejected")
}
