package notification

import (
	"context"

	"github.com/skolara/skolara/internal/events"
	"github.com/skolara/skolara/internal/notification/domain"
	"go.uber.org/zap"
)

// notifiableEvents maps the domain events that fan out to the target user's
// notification feed onto a category. The event name doubles as the template
// key.
var notifiableEvents = map[string]string{
	"finance.invoice.issued":      "finance",
	"finance.invoice.overdue":     "finance",
	"finance.payment.received":    "finance",
	"academics.grade.published":   "academics",
	"academics.report.ready":      "academics",
	"attendance.absence.recorded": "attendance",
	"enrollment.request.approved": "enrollment",
	"enrollment.request.rejected": "enrollment",
	"messaging.announcement.sent": "messaging",
}

// Handler bridges the event bus to the notification service: every
// notifiable event addressed to a user becomes a Create call.
type Handler struct {
	log     *zap.Logger
	service domain.Service
}

func NewHandler(log *zap.Logger, service domain.Service) *Handler {
	return &Handler{
		log:     log.Named("notification.handler"),
		service: service,
	}
}

func RegisterHandler(bus *events.Bus, h *Handler) {
	for name := range notifiableEvents {
		bus.Subscribe(name, "notification", h.Handle)
	}
}

func (h *Handler) Handle(ctx context.Context, evt events.Event) error {
	if evt.UserID == nil {
		// Events without a target user carry nothing to notify about.
		return nil
	}

	priority := domain.PriorityNormal
	if raw, ok := evt.Data["priority"].(string); ok {
		priority = domain.ParsePriority(raw, domain.PriorityNormal)
	}

	category := notifiableEvents[evt.Name]
	if raw, ok := evt.Data["category"].(string); ok && raw != "" {
		category = raw
	}

	_, err := h.service.Create(ctx, domain.CreateRequest{
		UserID:   *evt.UserID,
		SchoolID: evt.SchoolID,
		Key:      evt.Name,
		Type:     evt.Name,
		Category: category,
		Data:     evt.Data,
		Priority: priority,
	})
	if err != nil {
		h.log.Warn("notification from event failed",
			zap.String("event", evt.Name),
			zap.Int64("user_id", *evt.UserID),
			zap.Error(err),
		)
	}
	// The bus already counts handler failures; a notify miss should not
	// surface as a failed event.
	return nil
}
