package ranking

import (
	"github.com/alem-hub/counseling-hub/internal/domain/student"
)

// Result - итог одного прогона ранжирования.
type Result struct {
	// Ranked - строки рейтинга в порядке рангов.
	Ranked []Entry `json:"ranked"`

	// Unranked - записи без суммы баллов (ранг снят или не задан).
	Unranked []student.Email `json:"unranked"`

	// Changes - изменения ранга относительно сохранённого значения.
	// Записи, у которых ранга раньше не было, сюда не попадают.
	Changes map[student.Email]RankChange `json:"changes,omitempty"`

	// Cleared - записи, у которых был снят устаревший ранг.
	Cleared []student.Email `json:"cleared,omitempty"`
}

// Changed возвращает число записей, чей ранг изменился.
func (r *Result) Changed() int {
	n := len(r.Cleared)
	for _, c := range r.Changes {
		if c != 0 {
			n++
		}
	}
	return n
}

// Engine проставляет ранги на записи хранилища.
type Engine struct{}

// NewEngine создаёт движок ранжирования.
func NewEngine() *Engine {
	return &Engine{}
}

// Rank вычисляет рейтинг и записывает Rank в каждую запись с суммой баллов.
// У записей без суммы ранг снимается. Распределение мест не трогается.
func (e *Engine) Rank(records []*student.Record) *Result {
	table := NewTable(Candidates(records))

	res := &Result{
		Ranked:   table.All(),
		Unranked: make([]student.Email, 0),
		Changes:  make(map[student.Email]RankChange),
	}

	for _, r := range records {
		entry, ok := table.Get(r.Email)
		if !ok {
			res.Unranked = append(res.Unranked, r.Email)
			if r.Rank != nil {
				r.ClearRank()
				res.Cleared = append(res.Cleared, r.Email)
			}
			continue
		}
		if old, had := r.RankValue(); had {
			res.Changes[r.Email] = RankChange(old - int(entry.Rank))
		}
		r.SetRank(int(entry.Rank))
	}

	return res
}
