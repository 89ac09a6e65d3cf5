package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/wecrm/outreach_gateway/internal/platform/messagebroker"
	"github.com/wecrm/outreach_gateway/internal/outreach_service/domain"
)

// ProgressSink pushes harvest and dispatch progress to outward observers.
// Publishing is best effort; a lost progress event never fails a run.
type ProgressSink interface {
	PublishHarvestProgress(ctx context.Context, userScope string, p domain.HarvestProgress)
	PublishDispatchProgress(ctx context.Context, userScope string, p domain.DispatchProgress)
}

// NATSProgressSink publishes progress events as JSON on per-user subjects.
type NATSProgressSink struct {
	nats   *messagebroker.NATSClient
	logger *slog.Logger
}

// NewNATSProgressSink creates a sink over the given NATS client.
func NewNATSProgressSink(nc *messagebroker.NATSClient, logger *slog.Logger) *NATSProgressSink {
	return &NATSProgressSink{nats: nc, logger: logger.With("service", "progress_sink")}
}

func (s *NATSProgressSink) PublishHarvestProgress(ctx context.Context, userScope string, p domain.HarvestProgress) {
	s.publish(ctx, fmt.Sprintf("outreach.sync.progress.%s", userScope), p)
}

func (s *NATSProgressSink) PublishDispatchProgress(ctx context.Context, userScope string, p domain.DispatchProgress) {
	s.publish(ctx, fmt.Sprintf("outreach.dispatch.progress.%s", userScope), p)
}

func (s *NATSProgressSink) publish(ctx context.Context, subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal progress event", "subject", subject, "error", err)
		return
	}
	if err := s.nats.Publish(ctx, subject, data); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish progress event", "subject", subject, "error", err)
	}
}

// NopProgressSink discards progress events. Used when NATS is not configured
// and in tests.
type NopProgressSink struct{}

func (NopProgressSink) PublishHarvestProgress(context.Context, string, domain.HarvestProgress)   {}
func (NopProgressSink) PublishDispatchProgress(context.Context, string, domain.DispatchProgress) {}
