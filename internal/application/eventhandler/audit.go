// Package eventhandler содержит обработчики доменных событий.
// Обработчики подписываются на шину событий и выполняют побочные эффекты
// уже после сохранения изменений: журнал аудита и предупреждения для
// администратора.
package eventhandler

import (
	"sync"

	"github.com/alem-hub/counseling-hub/internal/domain/shared"
	"github.com/alem-hub/counseling-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// AUDIT LOG HANDLER
// Пишет каждое событие в структурированный лог и считает события по типам.
// ═══════════════════════════════════════════════════════════════════════════

// AuditHandler журналирует события.
type AuditHandler struct {
	logger *logger.Logger

	mu     sync.Mutex
	counts map[shared.EventType]int
}

// NewAuditHandler создаёт обработчик аудита.
func NewAuditHandler(log *logger.Logger) *AuditHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AuditHandler{
		logger: log.With(logger.Component("audit")),
		counts: make(map[shared.EventType]int),
	}
}

// Register подписывает обработчик на все события шины.
func (h *AuditHandler) Register(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(h.Handle)
}

// Handle реализует shared.EventHandler.
func (h *AuditHandler) Handle(event shared.Event) error {
	fields := []logger.Field{
		logger.String("event_type", string(event.EventType())),
		logger.String("aggregate_id", event.AggregateID()),
		logger.Int64("store_version", event.StoreVersion()),
		logger.Time("occurred_at", event.OccurredAt()),
	}
	fields = append(fields, detailFields(event)...)

	h.mu.Lock()
	h.counts[event.EventType()]++
	h.mu.Unlock()

	h.logger.Info("audit", fields...)
	return nil
}

// Count возвращает число обработанных событий типа et.
func (h *AuditHandler) Count(et shared.EventType) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[et]
}

func detailFields(event shared.Event) []logger.Field {
	switch e := event.(type) {
	case shared.SubmissionEvent:
		return []logger.Field{logger.Bool("created", e.Created)}
	case shared.RankingsGeneratedEvent:
		return []logger.Field{
			logger.Int("ranked", e.Ranked),
			logger.Int("unranked", e.Unranked),
			logger.Int("changed", e.Changed),
		}
	case shared.SeatsAllocatedEvent:
		return []logger.Field{
			logger.CycleID(e.CycleID),
			logger.Int("first_choice", e.FirstChoice),
			logger.Int("second_choice", e.SecondChoice),
			logger.Int("unplaced", e.Unplaced),
			logger.Int("overrides", e.Overrides),
			logger.Int("changed", e.Changed),
		}
	case shared.AllocationOverriddenEvent:
		return []logger.Field{
			logger.Branch(e.Branch),
			logger.String("previous_branch", e.Previous),
			logger.Bool("cleared", e.Cleared),
		}
	case shared.PaymentsBulkVerifiedEvent:
		return []logger.Field{logger.Int("count", len(e.Emails))}
	default:
		return nil
	}
}
