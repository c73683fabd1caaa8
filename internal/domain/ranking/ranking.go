// Package ranking вычисляет плотный рейтинг абитуриентов по сумме четырёх
// предметов 10+2.
//
// Порядок: сумма по убыванию, при равенстве - email по возрастанию.
// Ранги плотные и различные: 1..K без пропусков и повторов, где K - число
// записей с определённой суммой.
package ranking

import (
	"fmt"
	"sort"

	"github.com/alem-hub/counseling-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Rank - позиция в рейтинге, начиная с 1.
type Rank int

// RankChange - изменение позиции между двумя прогонами.
// Положительное значение = подъём (был 10, стал 5 = +5).
type RankChange int

// String возвращает строковое представление изменения.
func (rc RankChange) String() string {
	switch {
	case rc > 0:
		return fmt.Sprintf("+%d", rc)
	case rc < 0:
		return fmt.Sprintf("%d", rc)
	default:
		return "±0"
	}
}

// Entry - одна строка рейтинга.
type Entry struct {
	Email     student.Email `json:"email"`
	Aggregate int           `json:"aggregate"`
	Rank      Rank          `json:"rank"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ORDERING
// ══════════════════════════════════════════════════════════════════════════════

// Order упорядочивает кандидатов и проставляет ранги 1..N.
// Входной срез не изменяется.
func Order(candidates []Entry) []Entry {
	out := make([]Entry, len(candidates))
	copy(out, candidates)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Aggregate != out[j].Aggregate {
			return out[i].Aggregate > out[j].Aggregate
		}
		return out[i].Email < out[j].Email
	})

	for i := range out {
		out[i].Rank = Rank(i + 1)
	}
	return out
}

// Candidates возвращает записи с определённой суммой 10+2 (academics.totalMarks12).
func Candidates(records []*student.Record) []Entry {
	out := make([]Entry, 0, len(records))
	for _, r := range records {
		if agg, ok := r.Aggregate(); ok {
			out = append(out, Entry{Email: r.Email, Aggregate: agg})
		}
	}
	return out
}

// LiveCohort возвращает всех, у кого есть академический блок. Сумма
// считается заново из оценок; отсутствующая оценка считается нулём.
func LiveCohort(records []*student.Record) []Entry {
	out := make([]Entry, 0, len(records))
	for _, r := range records {
		if r.HasAcademics() {
			out = append(out, Entry{Email: r.Email, Aggregate: r.Academics.Aggregate()})
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// TABLE
// ══════════════════════════════════════════════════════════════════════════════

// Table - упорядоченный рейтинг с поиском по email.
type Table struct {
	entries []Entry
	byEmail map[student.Email]int
}

// NewTable упорядочивает кандидатов и строит таблицу.
func NewTable(candidates []Entry) *Table {
	entries := Order(candidates)
	byEmail := make(map[student.Email]int, len(entries))
	for i, e := range entries {
		byEmail[e.Email] = i
	}
	return &Table{entries: entries, byEmail: byEmail}
}

// Count возвращает число строк.
func (t *Table) Count() int {
	return len(t.entries)
}

// All возвращает копию всех строк.
func (t *Table) All() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Top возвращает первую строку рейтинга.
func (t *Table) Top() (Entry, bool) {
	if len(t.entries) == 0 {
		return Entry{}, false
	}
	return t.entries[0], true
}

// Get возвращает строку по email.
func (t *Table) Get(email student.Email) (Entry, bool) {
	i, ok := t.byEmail[email]
	if !ok {
		return Entry{}, false
	}
	return t.entries[i], true
}

// GapToTop возвращает отставание от первой строки в баллах.
func (t *Table) GapToTop(email student.Email) (int, bool) {
	e, ok := t.Get(email)
	if !ok {
		return 0, false
	}
	top, _ := t.Top()
	return top.Aggregate - e.Aggregate, true
}
