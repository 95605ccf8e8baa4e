package mqhandler

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"renobroker/internal/model"
	"renobroker/internal/mq"
	"renobroker/internal/repository"
	"renobroker/pkg/util"
)

// BidNotificationHandler notifies contractors about the fate of their bids.
type BidNotificationHandler struct {
	repo    *repository.NotificationRepository
	deduper *util.Deduper
	logger  *zap.Logger
}

func NewBidNotificationHandler(repo *repository.NotificationRepository, deduper *util.Deduper, logger *zap.Logger) *BidNotificationHandler {
	return &BidNotificationHandler{
		repo:    repo,
		deduper: deduper,
		logger:  logger,
	}
}

func (h *BidNotificationHandler) HandleBidEvent(ctx context.Context, raw json.RawMessage) error {
	var p mq.BidEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal bid payload", zap.Error(err))
		return err
	}

	if !h.deduper.AcquireOnce(ctx, "bid_notification", p.BidID+":"+p.Status) {
		return nil
	}

	n := &model.Notification{
		ID:      uuid.NewString(),
		UserID:  p.ContractorID,
		Kind:    "bid." + p.Status,
		Payload: raw,
	}
	if err := h.repo.Insert(ctx, n); err != nil {
		h.logger.Error("Failed to insert bid notification",
			zap.String("bid_id", p.BidID),
			zap.Error(err),
		)
		return err
	}

	h.logger.Info("Bid notification created",
		zap.String("bid_id", p.BidID),
		zap.String("status", p.Status),
	)
	return nil
}
