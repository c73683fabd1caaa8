// Package allocation распределяет места по направлениям.
//
// Один цикл распределения - один жадный проход: допущенные записи
// обрабатываются по возрастанию ранга, каждая получает первое
// предпочтение, если там есть место, иначе второе, иначе ничего.
// Решение необратимо, возвратов нет. Счётчики мест каждый цикл
// начинаются с нуля, поэтому повторный прогон на тех же данных
// даёт тот же результат.
package allocation

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/counseling-hub/internal/domain/branch"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Choice - каким образом запись получила (или не получила) место.
type Choice string

const (
	// ChoiceFirst - первое предпочтение.
	ChoiceFirst Choice = "first"
	// ChoiceSecond - второе предпочтение.
	ChoiceSecond Choice = "second"
	// ChoiceNone - оба направления заполнены.
	ChoiceNone Choice = "none"
	// ChoiceOverride - ручное назначение, цикл его не трогает.
	ChoiceOverride Choice = "override"
)

// Assignment - решение по одной записи.
type Assignment struct {
	Email   student.Email `json:"email"`
	Rank    *int          `json:"rank,omitempty"`
	Branch  *branch.Code  `json:"branch"`
	Choice  Choice        `json:"choice"`
	Changed bool          `json:"changed"`
}

// Result - итог одного цикла.
type Result struct {
	CycleID     string               `json:"cycleId"`
	StartedAt   time.Time            `json:"startedAt"`
	Assignments []Assignment         `json:"assignments"`
	Skipped     []student.Email      `json:"skipped"`
	Seats       []branch.SeatSummary `json:"seats"`
}

// Count возвращает число решений указанного вида.
func (r *Result) Count(choice Choice) int {
	n := 0
	for _, a := range r.Assignments {
		if a.Choice == choice {
			n++
		}
	}
	return n
}

// Changed возвращает число записей, у которых изменилось направление.
func (r *Result) Changed() int {
	n := 0
	for _, a := range r.Assignments {
		if a.Changed {
			n++
		}
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Option настраивает Engine.
type Option func(*Engine)

// WithPreserveOverrides включает или выключает сохранение ручных назначений.
// Выключенное значение воспроизводит старое поведение: цикл перезаписывает
// ручные назначения у всех допущенных записей.
func WithPreserveOverrides(preserve bool) Option {
	return func(e *Engine) {
		e.preserveOverrides = preserve
	}
}

// WithClock задаёт источник времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator задаёт генератор идентификаторов циклов.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

// Engine распределяет места при фиксированной ёмкости.
type Engine struct {
	capacity          branch.Capacity
	preserveOverrides bool
	now               func() time.Time
	newID             func() string
}

// NewEngine создаёт движок. По умолчанию ручные назначения сохраняются.
func NewEngine(capacity branch.Capacity, opts ...Option) *Engine {
	e := &Engine{
		capacity:          capacity.Clone(),
		preserveOverrides: true,
		now:               time.Now,
		newID:             uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Capacity возвращает копию таблицы ёмкости.
func (e *Engine) Capacity() branch.Capacity {
	return e.capacity.Clone()
}

// PreservesOverrides возвращает true, если ручные назначения сохраняются.
func (e *Engine) PreservesOverrides() bool {
	return e.preserveOverrides
}

// Allocate выполняет один цикл и записывает AllocatedBranch в каждую
// допущенную запись. Недопущенные записи не меняются.
// Ошибка возвращается только при некорректной ёмкости.
func (e *Engine) Allocate(records []*student.Record) (*Result, error) {
	if err := e.capacity.Validate(); err != nil {
		return nil, err
	}

	res := &Result{
		CycleID:     e.newID(),
		StartedAt:   e.now().UTC(),
		Assignments: make([]Assignment, 0, len(records)),
		Skipped:     make([]student.Email, 0),
	}
	ledger := branch.NewSeatLedger(e.capacity)

	queue := make([]*student.Record, 0, len(records))
	for _, r := range records {
		if e.preserveOverrides && r.AllocationOverride {
			if code, ok := r.Branch(); ok {
				ledger.Charge(code)
				res.Assignments = append(res.Assignments, Assignment{
					Email:  r.Email,
					Rank:   copyInt(r.Rank),
					Branch: &code,
					Choice: ChoiceOverride,
				})
				continue
			}
		}
		if !r.IsEligible() {
			res.Skipped = append(res.Skipped, r.Email)
			continue
		}
		queue = append(queue, r)
	}

	sort.SliceStable(queue, func(i, j int) bool {
		ri, rj := sortRank(queue[i]), sortRank(queue[j])
		if ri != rj {
			return ri < rj
		}
		return queue[i].Email < queue[j].Email
	})

	for _, r := range queue {
		prev, hadPrev := r.Branch()
		code, choice := pick(ledger, r.Academics)
		r.Allocate(code)

		next, hasNext := r.Branch()
		res.Assignments = append(res.Assignments, Assignment{
			Email:   r.Email,
			Rank:    copyInt(r.Rank),
			Branch:  code,
			Choice:  choice,
			Changed: hadPrev != hasNext || prev != next,
		})
	}

	res.Seats = ledger.Summary()
	return res, nil
}

// pick выбирает направление для одной записи и занимает место.
func pick(ledger *branch.SeatLedger, a *student.Academics) (*branch.Code, Choice) {
	if ledger.TryTake(a.Preference1) {
		code := a.Preference1
		return &code, ChoiceFirst
	}
	if ledger.TryTake(a.Preference2) {
		code := a.Preference2
		return &code, ChoiceSecond
	}
	return nil, ChoiceNone
}

// sortRank - ранг записи; без ранга запись обрабатывается последней.
func sortRank(r *student.Record) int {
	if v, ok := r.RankValue(); ok {
		return v
	}
	return math.MaxInt
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
