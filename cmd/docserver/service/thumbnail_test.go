package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/docvault/docvault/cmd/docserver/models"
	"github.com/docvault/docvault/common/config"
)

// fakeSampler writes a fixed PNG payload instead of shelling out
type fakeSampler struct {
	calls int
	fail  bool
}

func (f *fakeSampler) Sample(ctx context.Context, inputPath, outputPath string, maxPixels int) error {
	f.calls++
	if f.fail {
		return errors.New("sampler failed")
	}
	return os.WriteFile(outputPath, []byte("png payload"), 0o644)
}

// fakeTicketIssuer hands out deterministic tokens and records revocations
type fakeTicketIssuer struct {
	issued  []string
	revoked []string
}

func (f *fakeTicketIssuer) Issue(ctx context.Context, blobID string) (string, error) {
	token := fmt.Sprintf("tok-%d", len(f.issued)+1)
	f.issued = append(f.issued, token)
	return token, nil
}

func (f *fakeTicketIssuer) Revoke(ctx context.Context, token string) error {
	f.revoked = append(f.revoked, token)
	return nil
}

func newThumbFixture(t *testing.T, sampler ThumbnailSampler, cfg config.ThumbnailConfig) (*ThumbnailService, *treeFixture) {
	t.Helper()
	fx := newTreeFixture(t, nil)
	svc := NewThumbnailService(fx.blobs, fx.tree, nil, sampler, nil, cfg, "http://localhost:8080", t.TempDir(), testLogger())
	return svc, fx
}

func TestEnsureSamplesLocalMedia(t *testing.T) {
	sampler := &fakeSampler{}
	svc, fx := newThumbFixture(t, sampler, config.ThumbnailConfig{MaxPixels: 256})
	ctx := context.Background()

	node, err := fx.tree.CreateFile(ctx, fx.root.ID, "clip.mp4", "video/mp4", "alice", bytes.NewReader([]byte("video bytes")))
	require.NoError(t, err)

	blob, err := svc.Ensure(ctx, node)
	require.NoError(t, err)
	require.NotNil(t, blob)
	assert.Equal(t, "image/png", blob.Mimetype)
	assert.Equal(t, 1, sampler.calls)

	// The variant hangs off the primary under the thumbnail slot
	variant, err := fx.blobs.FindVariant(ctx, *node.BlobID, models.VariantThumbnail)
	require.NoError(t, err)
	require.NotNil(t, variant)
	assert.Equal(t, blob.ID, variant.ID)

	// And the node's flag flipped
	updated, err := fx.tree.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.True(t, updated.HasThumbnail)
}

func TestEnsureReturnsExistingVariant(t *testing.T) {
	sampler := &fakeSampler{}
	svc, fx := newThumbFixture(t, sampler, config.ThumbnailConfig{MaxPixels: 256})
	ctx := context.Background()

	node, err := fx.tree.CreateFile(ctx, fx.root.ID, "photo.jpg", "image/jpeg", "alice", bytes.NewReader([]byte("jpeg")))
	require.NoError(t, err)

	first, err := svc.Ensure(ctx, node)
	require.NoError(t, err)
	second, err := svc.Ensure(ctx, node)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, sampler.calls, "generation happens once")
}

func TestEnsureUnsupportedTypeIsSilent(t *testing.T) {
	svc, fx := newThumbFixture(t, &fakeSampler{}, config.ThumbnailConfig{})
	ctx := context.Background()

	node, err := fx.tree.CreateFile(ctx, fx.root.ID, "data.bin", "application/x-custom", "alice", bytes.NewReader([]byte("opaque")))
	require.NoError(t, err)

	blob, err := svc.Ensure(ctx, node)
	require.NoError(t, err, "unsupported types are not an error")
	assert.Nil(t, blob)

	updated, err := fx.tree.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.False(t, updated.HasThumbnail)
}

func TestEnsureEmptyNode(t *testing.T) {
	svc, fx := newThumbFixture(t, &fakeSampler{}, config.ThumbnailConfig{})

	node, err := fx.tree.CreateFile(context.Background(), fx.root.ID, "empty", "video/mp4", "alice", nil)
	require.NoError(t, err)

	blob, err := svc.Ensure(context.Background(), node)
	require.NoError(t, err)
	assert.Nil(t, blob)
}

func TestEnsureSamplerFailureIsUpstream(t *testing.T) {
	svc, fx := newThumbFixture(t, &fakeSampler{fail: true}, config.ThumbnailConfig{MaxPixels: 64})
	ctx := context.Background()

	node, err := fx.tree.CreateFile(ctx, fx.root.ID, "bad.mp4", "video/mp4", "alice", bytes.NewReader([]byte("junk")))
	require.NoError(t, err)

	_, err = svc.Ensure(ctx, node)
	assert.True(t, errors.Is(err, ErrUpstream))
}

func TestEnsureWeblinkSnapshot(t *testing.T) {
	var gotBody map[string]any
	renderer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Write([]byte("rendered png"))
	}))
	defer renderer.Close()

	svc, fx := newThumbFixture(t, &fakeSampler{}, config.ThumbnailConfig{
		SnapshotURL: renderer.URL,
		MaxPixels:   128,
	})
	ctx := context.Background()

	node, err := fx.tree.CreateFile(ctx, fx.root.ID, "link", models.TypeWeblink, "alice", bytes.NewReader([]byte("https://example.com/\n")))
	require.NoError(t, err)

	blob, err := svc.Ensure(ctx, node)
	require.NoError(t, err)
	require.NotNil(t, blob)

	// The renderer receives the stored target URL, trimmed
	assert.Equal(t, "https://example.com/", gotBody["url"])
	assert.Equal(t, float64(128), gotBody["max_pixels"])

	f, _, err := fx.blobs.StreamOf(ctx, blob.ID)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "rendered png", string(data))
}

func TestEnsureOfficeDocumentConversion(t *testing.T) {
	var gotSrc, gotPixels string
	converter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSrc = r.URL.Query().Get("src")
		gotPixels = r.URL.Query().Get("max_pixels")
		w.Write([]byte("converted png"))
	}))
	defer converter.Close()

	tickets := &fakeTicketIssuer{}
	svc, fx := newThumbFixture(t, &fakeSampler{}, config.ThumbnailConfig{
		ConvertURL: converter.URL,
		MaxPixels:  96,
	})
	svc.tickets = tickets
	ctx := context.Background()

	node, err := fx.tree.CreateFile(ctx, fx.root.ID, "memo.doc", "application/msword", "alice", bytes.NewReader([]byte("doc bytes")))
	require.NoError(t, err)

	blob, err := svc.Ensure(ctx, node)
	require.NoError(t, err)
	require.NotNil(t, blob)
	assert.Equal(t, "image/png", blob.Mimetype)

	// The converter fetches the source through a single-use ticket URL,
	// and the ticket dies with the call
	require.Len(t, tickets.issued, 1)
	assert.Equal(t, "http://localhost:8080/downloads/"+tickets.issued[0], gotSrc)
	assert.Equal(t, "96", gotPixels)
	assert.Equal(t, tickets.issued, tickets.revoked)
}

func TestEnsureConverterFailureStillRevokesTicket(t *testing.T) {
	converter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer converter.Close()

	tickets := &fakeTicketIssuer{}
	svc, fx := newThumbFixture(t, &fakeSampler{}, config.ThumbnailConfig{ConvertURL: converter.URL})
	svc.tickets = tickets
	ctx := context.Background()

	node, err := fx.tree.CreateFile(ctx, fx.root.ID, "sheet.xls", "application/vnd.ms-excel", "alice", bytes.NewReader([]byte("xls bytes")))
	require.NoError(t, err)

	_, err = svc.Ensure(ctx, node)
	assert.True(t, errors.Is(err, ErrUpstream))

	require.Len(t, tickets.issued, 1)
	assert.Equal(t, tickets.issued, tickets.revoked, "failure path revokes too")
}

func TestEnsureRendererErrorIsUpstream(t *testing.T) {
	renderer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer renderer.Close()

	svc, fx := newThumbFixture(t, &fakeSampler{}, config.ThumbnailConfig{SnapshotURL: renderer.URL})
	ctx := context.Background()

	node, err := fx.tree.CreateFile(ctx, fx.root.ID, "link", models.TypeWeblink, "alice", bytes.NewReader([]byte("https://example.com/")))
	require.NoError(t, err)

	_, err = svc.Ensure(ctx, node)
	assert.True(t, errors.Is(err, ErrUpstream))
}
