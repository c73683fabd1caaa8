package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/counseling-hub/internal/domain/status"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
	"github.com/alem-hub/counseling-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT STATUS QUERY
// Карточка статуса абитуриента: профиль, место в рейтинге, направление,
// оплата и общий статус заявки.
// ══════════════════════════════════════════════════════════════════════════════

// StatusCache хранит готовые карточки. Ключ включает версию хранилища,
// поэтому любое сохранение делает старые карточки недостижимыми.
type StatusCache interface {
	Get(ctx context.Context, version int64, email student.Email) (*status.Card, error)
	Set(ctx context.Context, version int64, card *status.Card) error
}

// GetStudentStatusQuery содержит параметры запроса.
type GetStudentStatusQuery struct {
	Email string
}

// StudentStatusDTO - карточка и сама запись.
type StudentStatusDTO struct {
	Card    status.Card     `json:"card"`
	Record  *student.Record `json:"record"`
	Version int64           `json:"version"`
	Cached  bool            `json:"cached"`
}

// GetStudentStatusHandler обрабатывает запрос карточки.
type GetStudentStatusHandler struct {
	repo      student.Repository
	projector *status.Projector
	cache     StatusCache
	log       *logger.Logger
}

// NewGetStudentStatusHandler создаёт обработчик. cache может быть nil.
func NewGetStudentStatusHandler(
	repo student.Repository,
	projector *status.Projector,
	cache StatusCache,
	log *logger.Logger,
) *GetStudentStatusHandler {
	if projector == nil {
		projector = status.NewProjector(true)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetStudentStatusHandler{repo: repo, projector: projector, cache: cache, log: log}
}

// Handle выполняет запрос.
func (h *GetStudentStatusHandler) Handle(ctx context.Context, q GetStudentStatusQuery) (*StudentStatusDTO, error) {
	email, err := student.ParseEmail(q.Email)
	if err != nil {
		return nil, fmt.Errorf("get_student_status: %w", err)
	}

	snap, err := load(ctx, h.repo, "get_student_status")
	if err != nil {
		return nil, err
	}
	rec, err := snap.Get(email)
	if err != nil {
		return nil, fmt.Errorf("get_student_status: %w", err)
	}

	if h.cache != nil {
		card, err := h.cache.Get(ctx, snap.Version, email)
		if err != nil {
			h.log.Warn("status cache read failed", logger.Email(email.String()), logger.Err(err))
		}
		if card != nil {
			return &StudentStatusDTO{Card: *card, Record: rec, Version: snap.Version, Cached: true}, nil
		}
	}

	card := h.projector.ProjectWith(rec, h.projector.Table(snap.Records))

	if h.cache != nil {
		if err := h.cache.Set(ctx, snap.Version, &card); err != nil {
			h.log.Warn("status cache write failed", logger.Email(email.String()), logger.Err(err))
		}
	}

	return &StudentStatusDTO{Card: card, Record: rec, Version: snap.Version}, nil
}
