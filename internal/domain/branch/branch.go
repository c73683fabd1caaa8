// Package branch содержит справочник учебных направлений (branches) и их
// фиксированную ёмкость. Ёмкость считается неизменной в пределах одного
// цикла распределения мест.
package branch

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/alem-hub/counseling-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Code - код направления, например "computer-science".
type Code string

// Известные направления. Первые шесть имеют места, остальные
// встречаются в предпочтениях студентов, но мест не имеют.
const (
	ComputerScience       Code = "computer-science"
	Mechanical            Code = "mechanical"
	Electrical            Code = "electrical"
	Civil                 Code = "civil"
	Electronics           Code = "electronics"
	Chemical              Code = "chemical"
	Biotechnology         Code = "biotechnology"
	InformationTechnology Code = "information-technology"
)

var names = map[Code]string{
	ComputerScience:       "Computer Science Engineering",
	Mechanical:            "Mechanical Engineering",
	Electrical:            "Electrical Engineering",
	Civil:                 "Civil Engineering",
	Electronics:           "Electronics & Communication",
	Chemical:              "Chemical Engineering",
	Biotechnology:         "Biotechnology",
	InformationTechnology: "Information Technology",
}

// order - канонический порядок вывода сводок по местам.
var order = []Code{
	ComputerScience, Mechanical, Electrical, Civil, Electronics, Chemical,
	Biotechnology, InformationTechnology,
}

// String возвращает строковое представление кода.
func (c Code) String() string {
	return string(c)
}

// IsKnown возвращает true, если направление есть в справочнике.
func (c Code) IsKnown() bool {
	_, ok := names[c]
	return ok
}

// Name возвращает человекочитаемое название направления.
// Для неизвестного кода возвращается сам код.
func (c Code) Name() string {
	if n, ok := names[c]; ok {
		return n
	}
	return string(c)
}

// Parse нормализует строку и проверяет, что направление известно.
func Parse(s string) (Code, error) {
	c := Code(strings.ToLower(strings.TrimSpace(s)))
	if c == "" || !c.IsKnown() {
		return "", shared.WrapError("branch", "Parse", shared.ErrUnknownBranch,
			"unknown branch code", fmt.Errorf("%q", s))
	}
	return c, nil
}

// All возвращает все известные направления в каноническом порядке.
func All() []Code {
	out := make([]Code, len(order))
	copy(out, order)
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// CAPACITY
// ══════════════════════════════════════════════════════════════════════════════

// Capacity - количество мест по направлениям.
type Capacity map[Code]int

// DefaultCapacity возвращает штатную ёмкость на цикл.
func DefaultCapacity() Capacity {
	return Capacity{
		ComputerScience: 120,
		Mechanical:      100,
		Electrical:      80,
		Civil:           90,
		Electronics:     70,
		Chemical:        60,
	}
}

// Seats возвращает число мест направления (0, если направления нет в таблице).
func (c Capacity) Seats(code Code) int {
	return c[code]
}

// Total возвращает суммарное число мест.
func (c Capacity) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Validate проверяет конфигурацию ёмкости.
func (c Capacity) Validate() error {
	if len(c) == 0 {
		return shared.WrapError("branch", "Validate", shared.ErrInvalidCapacity,
			"invalid branch capacity", fmt.Errorf("capacity table is empty"))
	}
	for code, n := range c {
		if strings.TrimSpace(string(code)) == "" {
			return shared.WrapError("branch", "Validate", shared.ErrInvalidCapacity,
				"invalid branch capacity", fmt.Errorf("empty branch code"))
		}
		if n < 0 {
			return shared.WrapError("branch", "Validate", shared.ErrInvalidCapacity,
				"invalid branch capacity", fmt.Errorf("%s: negative seats %d", code, n))
		}
	}
	return nil
}

// Clone возвращает независимую копию.
func (c Capacity) Clone() Capacity {
	out := make(Capacity, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Codes возвращает коды из таблицы: сначала известные в каноническом
// порядке, затем прочие по алфавиту.
func (c Capacity) Codes() []Code {
	out := make([]Code, 0, len(c))
	for _, code := range order {
		if _, ok := c[code]; ok {
			out = append(out, code)
		}
	}
	extra := make([]Code, 0)
	for code := range c {
		if !code.IsKnown() {
			extra = append(extra, code)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// ParseCapacity разбирает строку вида "computer-science:120,civil:90".
func ParseCapacity(s string) (Capacity, error) {
	c := make(Capacity)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, seats, ok := strings.Cut(part, ":")
		if !ok {
			return nil, shared.WrapError("branch", "ParseCapacity", shared.ErrInvalidFormat,
				"expected code:seats", fmt.Errorf("%q", part))
		}
		n, err := strconv.Atoi(strings.TrimSpace(seats))
		if err != nil {
			return nil, shared.WrapError("branch", "ParseCapacity", shared.ErrInvalidFormat,
				"seats must be an integer", err)
		}
		c[Code(strings.ToLower(strings.TrimSpace(code)))] = n
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
