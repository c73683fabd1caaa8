package eventhandler

import (
	"fmt"

	"github.com/alem-hub/counseling-hub/internal/domain/shared"
	"github.com/alem-hub/counseling-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON SEATS ALLOCATED HANDLER
// Предупреждает администратора, когда после цикла распределения остались
// студенты без места.
// ═══════════════════════════════════════════════════════════════════════════

// OnSeatsAllocatedHandler следит за итогами циклов распределения.
type OnSeatsAllocatedHandler struct {
	logger *logger.Logger

	// threshold - доля неразмещённых, начиная с которой пишется предупреждение.
	threshold float64
}

// NewOnSeatsAllocatedHandler создаёт обработчик. threshold вне (0, 1]
// заменяется на 0.25.
func NewOnSeatsAllocatedHandler(log *logger.Logger, threshold float64) *OnSeatsAllocatedHandler {
	if log == nil {
		log = logger.Nop()
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.25
	}
	return &OnSeatsAllocatedHandler{
		logger:    log.With(logger.Component("on_seats_allocated")),
		threshold: threshold,
	}
}

// Register подписывает обработчик на shared.EventSeatsAllocated.
func (h *OnSeatsAllocatedHandler) Register(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventSeatsAllocated, h.Handle)
}

// Handle реализует shared.EventHandler.
func (h *OnSeatsAllocatedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.SeatsAllocatedEvent)
	if !ok {
		return fmt.Errorf("on_seats_allocated: unexpected event %T", event)
	}

	total := e.FirstChoice + e.SecondChoice + e.Unplaced + e.Overrides
	if total == 0 || e.Unplaced == 0 {
		return nil
	}

	share := float64(e.Unplaced) / float64(total)
	if share < h.threshold {
		return nil
	}

	h.logger.Warn("many students left without a seat",
		logger.CycleID(e.CycleID),
		logger.Int("unplaced", e.Unplaced),
		logger.Int("considered", total),
		logger.Float64("share", share),
	)
	return nil
}
