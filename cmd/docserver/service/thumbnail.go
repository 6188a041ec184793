package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/docvault/docvault/cmd/docserver/models"
	"github.com/docvault/docvault/common/config"
	"github.com/docvault/docvault/common/logger"
)

// thumbnail payloads are capped to keep a misbehaving renderer from
// ballooning the store
const maxThumbnailBytes = 8 << 20

// ThumbnailSampler produces a reduced still image from local media
// bytes. The production implementation shells out to ffmpeg.
type ThumbnailSampler interface {
	Sample(ctx context.Context, inputPath, outputPath string, maxPixels int) error
}

// TicketIssuer mints and revokes the single-use download handles that
// expose source bytes to external renderers. *TicketService is the
// production implementation.
type TicketIssuer interface {
	Issue(ctx context.Context, blobID string) (string, error)
	Revoke(ctx context.Context, token string) error
}

// ThumbnailService routes rendition generation by mimetype family and
// publishes the result as the source blob's "thumbnail" variant.
type ThumbnailService struct {
	blobs   *BlobStore
	tree    *TreeService
	tickets TicketIssuer
	sampler ThumbnailSampler
	client  *http.Client
	cfg     config.ThumbnailConfig
	baseURL string
	scratch string
	log     *logger.Logger
}

// NewThumbnailService creates a thumbnail dispatcher
func NewThumbnailService(blobs *BlobStore, tree *TreeService, tickets TicketIssuer, sampler ThumbnailSampler, client *http.Client, cfg config.ThumbnailConfig, baseURL, scratch string, log *logger.Logger) *ThumbnailService {
	if client == nil {
		client = http.DefaultClient
	}
	return &ThumbnailService{
		blobs:   blobs,
		tree:    tree,
		tickets: tickets,
		sampler: sampler,
		client:  client,
		cfg:     cfg,
		baseURL: baseURL,
		scratch: scratch,
		log:     log,
	}
}

// Ensure returns the node's thumbnail variant, generating it on first
// request. Unsupported mimetypes yield (nil, nil): no variant, no error,
// and the node's flag stays false.
func (t *ThumbnailService) Ensure(ctx context.Context, node *models.Node) (*models.Blob, error) {
	if node.BlobID == nil {
		return nil, nil
	}

	primary, err := t.blobs.GetBlob(ctx, *node.BlobID)
	if err != nil {
		return nil, err
	}

	existing, err := t.blobs.FindVariant(ctx, primary.ID, models.VariantThumbnail)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	var payload []byte
	switch {
	case isSampledMedia(node.Type):
		payload, err = t.sampleLocal(ctx, primary)
	case node.Type == "application/pdf" || node.Type == models.TypeWeblink:
		payload, err = t.snapshot(ctx, node, primary)
	case isOfficeDocument(node.Type):
		payload, err = t.convertRemote(ctx, primary)
	default:
		// Not an error; the node simply never gets a thumbnail.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	name := models.VariantThumbnail
	blob, err := t.blobs.StoreBytes(ctx, payload, BlobMeta{
		ParentID: &primary.ID,
		Name:     &name,
		Mimetype: "image/png",
	})
	if err != nil {
		return nil, err
	}

	if err := t.tree.nodes.SetHasThumbnail(ctx, node.ID, true); err != nil {
		return nil, err
	}

	t.log.Info("generated thumbnail", "node_id", node.ID, "blob_id", blob.ID)
	return blob, nil
}

// sampleLocal renders media thumbnails with the local sampler
func (t *ThumbnailService) sampleLocal(ctx context.Context, primary *models.Blob) ([]byte, error) {
	src, _, err := t.blobs.StreamOf(ctx, primary.ID)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	inputPath := filepath.Join(t.scratch, "thumb-"+primary.ID+".in")
	outputPath := filepath.Join(t.scratch, "thumb-"+primary.ID+".png")
	defer os.Remove(inputPath)
	defer os.Remove(outputPath)

	in, err := os.Create(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch file: %w", err)
	}
	_, err = io.Copy(in, src)
	if cerr := in.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stage thumbnail source: %w", err)
	}

	if err := t.sampler.Sample(ctx, inputPath, outputPath, t.cfg.MaxPixels); err != nil {
		return nil, err
	}

	return os.ReadFile(outputPath)
}

// snapshot asks the external renderer for a page snapshot. Weblinks pass
// their stored target URL; PDFs expose their bytes through a single-use
// ticket.
func (t *ThumbnailService) snapshot(ctx context.Context, node *models.Node, primary *models.Blob) ([]byte, error) {
	var target string

	if node.Type == models.TypeWeblink {
		src, _, err := t.blobs.StreamOf(ctx, primary.ID)
		if err != nil {
			return nil, err
		}
		raw, err := io.ReadAll(io.LimitReader(src, 4096))
		src.Close()
		if err != nil {
			return nil, err
		}
		target = strings.TrimSpace(string(raw))
	} else {
		token, err := t.tickets.Issue(ctx, primary.ID)
		if err != nil {
			return nil, err
		}
		// Revoked whether or not the renderer ever fetched it.
		defer t.tickets.Revoke(ctx, token)

		target = t.ticketURL(token)
	}

	body, err := json.Marshal(map[string]any{
		"url":        target,
		"max_pixels": t.cfg.MaxPixels,
	})
	if err != nil {
		return nil, err
	}

	return t.fetch(ctx, http.MethodPost, t.cfg.SnapshotURL, bytes.NewReader(body))
}

// convertRemote hands office documents to the external conversion
// service. The source is exposed behind a single-use ticket URL that is
// revoked once the call returns, success or failure.
func (t *ThumbnailService) convertRemote(ctx context.Context, primary *models.Blob) ([]byte, error) {
	token, err := t.tickets.Issue(ctx, primary.ID)
	if err != nil {
		return nil, err
	}
	defer t.tickets.Revoke(ctx, token)

	convertURL := fmt.Sprintf("%s?src=%s&max_pixels=%d",
		t.cfg.ConvertURL,
		url.QueryEscape(t.ticketURL(token)),
		t.cfg.MaxPixels,
	)

	return t.fetch(ctx, http.MethodGet, convertURL, nil)
}

func (t *ThumbnailService) fetch(ctx context.Context, method, rawURL string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("renderer returned status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxThumbnailBytes))
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("renderer returned empty payload")
	}

	return payload, nil
}

func (t *ThumbnailService) ticketURL(token string) string {
	return fmt.Sprintf("%s/downloads/%s", t.baseURL, token)
}

func isSampledMedia(mimetype string) bool {
	return strings.HasPrefix(mimetype, "image/") ||
		strings.HasPrefix(mimetype, "video/") ||
		strings.HasPrefix(mimetype, "audio/")
}

func isOfficeDocument(mimetype string) bool {
	switch {
	case strings.HasPrefix(mimetype, "application/vnd.openxmlformats-officedocument"),
		strings.HasPrefix(mimetype, "application/vnd.oasis.opendocument"),
		mimetype == "application/msword",
		mimetype == "application/vnd.ms-excel",
		mimetype == "application/vnd.ms-powerpoint":
		return true
	}
	return false
}
