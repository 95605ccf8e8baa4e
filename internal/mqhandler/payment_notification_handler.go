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

// PaymentNotificationHandler covers escrow and fee events. Escrow changes go
// to the homeowner, fee changes to the user owing the fee.
type PaymentNotificationHandler struct {
	repo    *repository.NotificationRepository
	deduper *util.Deduper
	logger  *zap.Logger
}

func NewPaymentNotificationHandler(repo *repository.NotificationRepository, deduper *util.Deduper, logger *zap.Logger) *PaymentNotificationHandler {
	return &PaymentNotificationHandler{
		repo:    repo,
		deduper: deduper,
		logger:  logger,
	}
}

func (h *PaymentNotificationHandler) HandleEscrowEvent(ctx context.Context, raw json.RawMessage) error {
	var p mq.EscrowEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal escrow payload", zap.Error(err))
		return err
	}

	if !h.deduper.AcquireOnce(ctx, "escrow_notification", p.EscrowID+":"+p.Status) {
		return nil
	}

	n := &model.Notification{
		ID:      uuid.NewString(),
		UserID:  p.HomeownerID,
		Kind:    "escrow." + p.Status,
		Payload: raw,
	}
	if err := h.repo.Insert(ctx, n); err != nil {
		h.logger.Error("Failed to insert escrow notification",
			zap.String("escrow_id", p.EscrowID),
			zap.Error(err),
		)
		return err
	}

	h.logger.Info("Escrow notification created",
		zap.String("escrow_id", p.EscrowID),
		zap.String("status", p.Status),
	)
	return nil
}

func (h *PaymentNotificationHandler) HandleFeeEvent(ctx context.Context, raw json.RawMessage) error {
	var p mq.FeeEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal fee payload", zap.Error(err))
		return err
	}

	if !h.deduper.AcquireOnce(ctx, "fee_notification", p.FeeID+":"+p.Status) {
		return nil
	}

	n := &model.Notification{
		ID:      uuid.NewString(),
		UserID:  p.UserID,
		Kind:    "fee." + p.Status,
		Payload: raw,
	}
	if err := h.repo.Insert(ctx, n); err != nil {
		h.logger.Error("Failed to insert fee notification",
			zap.String("fee_id", p.FeeID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
