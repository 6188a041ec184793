package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	rediscommon "github.com/docvault/docvault/common/redis"
	"github.com/docvault/docvault/common/logger"
)

const ticketKeyPrefix = "download_ticket:"

// TicketService issues short-lived, single-use download handles for
// blobs. External converters fetch source bytes through them; the
// randomly named token is all a caller ever sees, and redemption
// consumes it.
type TicketService struct {
	redis *rediscommon.Client
	ttl   time.Duration
	log   *logger.Logger
}

// NewTicketService creates a ticket service
func NewTicketService(redis *rediscommon.Client, ttl time.Duration, log *logger.Logger) *TicketService {
	return &TicketService{
		redis: redis,
		ttl:   ttl,
		log:   log,
	}
}

// Issue creates a single-use token resolving to blobID until the TTL
// runs out or the token is redeemed or revoked
func (t *TicketService) Issue(ctx context.Context, blobID string) (string, error) {
	token := uuid.New().String()

	if err := t.redis.SetWithExpiry(ctx, ticketKeyPrefix+token, blobID, t.ttl); err != nil {
		return "", fmt.Errorf("failed to issue download ticket: %w", err)
	}

	t.log.Debug("issued download ticket", "blob_id", blobID, "ttl", t.ttl)
	return token, nil
}

// Redeem consumes a token and returns its blob id. A second redemption
// of the same token fails with ErrNotFound.
func (t *TicketService) Redeem(ctx context.Context, token string) (string, error) {
	blobID, err := t.redis.GetDel(ctx, ticketKeyPrefix+token)
	if errors.Is(err, rediscommon.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	t.log.Debug("redeemed download ticket", "blob_id", blobID)
	return blobID, nil
}

// Revoke invalidates a token regardless of whether it was redeemed
func (t *TicketService) Revoke(ctx context.Context, token string) error {
	return t.redis.Delete(ctx, ticketKeyPrefix+token)
}
