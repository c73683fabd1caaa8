package branch

// SeatLedger ведёт счётчики занятых мест в пределах одного цикла.
// Не потокобезопасен: цикл распределения выполняется целиком в одной горутине.
type SeatLedger struct {
	capacity Capacity
	used     map[Code]int
}

// NewSeatLedger создаёт пустой реестр для указанной ёмкости.
func NewSeatLedger(capacity Capacity) *SeatLedger {
	return &SeatLedger{
		capacity: capacity,
		used:     make(map[Code]int, len(capacity)),
	}
}

// Used возвращает число занятых мест направления.
func (l *SeatLedger) Used(code Code) int {
	return l.used[code]
}

// Free возвращает число свободных мест (не меньше нуля).
func (l *SeatLedger) Free(code Code) int {
	free := l.capacity.Seats(code) - l.used[code]
	if free < 0 {
		return 0
	}
	return free
}

// HasSeat возвращает true, если на направлении есть свободное место.
func (l *SeatLedger) HasSeat(code Code) bool {
	return l.used[code] < l.capacity.Seats(code)
}

// TryTake занимает место, если оно есть.
func (l *SeatLedger) TryTake(code Code) bool {
	if !l.HasSeat(code) {
		return false
	}
	l.used[code]++
	return true
}

// Charge занимает место без проверки ёмкости.
// Используется для ручных назначений, которые обходят лимиты.
func (l *SeatLedger) Charge(code Code) {
	l.used[code]++
}

// SeatSummary - сводка по одному направлению.
type SeatSummary struct {
	Code      Code   `json:"code"`
	Name      string `json:"name"`
	Total     int    `json:"total"`
	Allocated int    `json:"allocated"`
	Free      int    `json:"free"`
}

// Summary возвращает сводку по всем направлениям с местами, а также по
// направлениям без мест, на которые кто-то назначен вручную.
func (l *SeatLedger) Summary() []SeatSummary {
	codes := l.capacity.Codes()
	seen := make(map[Code]bool, len(codes))
	for _, c := range codes {
		seen[c] = true
	}
	for _, c := range order {
		if !seen[c] && l.used[c] > 0 {
			codes = append(codes, c)
			seen[c] = true
		}
	}

	out := make([]SeatSummary, 0, len(codes))
	for _, c := range codes {
		out = append(out, SeatSummary{
			Code:      c,
			Name:      c.Name(),
			Total:     l.capacity.Seats(c),
			Allocated: l.used[c],
			Free:      l.Free(c),
		})
	}
	return out
}
