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

// ProjectNotificationHandler turns project lifecycle events into in-app
// notifications for the owner.
type ProjectNotificationHandler struct {
	repo    *repository.NotificationRepository
	deduper *util.Deduper
	logger  *zap.Logger
}

func NewProjectNotificationHandler(repo *repository.NotificationRepository, deduper *util.Deduper, logger *zap.Logger) *ProjectNotificationHandler {
	return &ProjectNotificationHandler{
		repo:    repo,
		deduper: deduper,
		logger:  logger,
	}
}

func (h *ProjectNotificationHandler) HandleProjectEvent(ctx context.Context, raw json.RawMessage) error {
	var p mq.ProjectEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal project payload", zap.Error(err))
		return err
	}

	if !h.deduper.AcquireOnce(ctx, "project_notification", p.ProjectID+":"+p.Status) {
		return nil
	}

	n := &model.Notification{
		ID:      uuid.NewString(),
		UserID:  p.OwnerID,
		Kind:    "project." + p.Status,
		Payload: raw,
	}
	if err := h.repo.Insert(ctx, n); err != nil {
		h.logger.Error("Failed to insert project notification",
			zap.String("project_id", p.ProjectID),
			zap.Error(err),
		)
		return err
	}

	h.logger.Info("Project notification created",
		zap.String("project_id", p.ProjectID),
		zap.String("status", p.Status),
	)
	return nil
}

// HandleMatchRejected notifies the owner that an admin unwound the match.
func (h *ProjectNotificationHandler) HandleMatchRejected(ctx context.Context, raw json.RawMessage) error {
	var p mq.MatchRejectedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal match rejected payload", zap.Error(err))
		return err
	}

	if !h.deduper.AcquireOnce(ctx, "match_rejected_notification", p.ProjectID+":"+p.BidID) {
		return nil
	}

	n := &model.Notification{
		ID:      uuid.NewString(),
		UserID:  p.OwnerID,
		Kind:    "match.rejected",
		Payload: raw,
	}
	if err := h.repo.Insert(ctx, n); err != nil {
		h.logger.Error("Failed to insert match rejected notification", zap.Error(err))
		return err
	}
	return nil
}
