package audit

import (
	"github.com/skolara/skolara/internal/audit/domain"
	"github.com/skolara/skolara/internal/events"
)

// RegisterHandler subscribes the audit trail to every published event. A
// failed write is reported through the bus's handler failure accounting and
// never disturbs the other subscribers.
func RegisterHandler(bus *events.Bus, svc domain.Service) {
	bus.SubscribeAll("audit", svc.Record)
}
