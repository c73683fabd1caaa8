package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/alem-hub/counseling-hub/internal/domain/shared"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST STUDENTS QUERY
// Таблица абитуриентов для администратора: поиск по имени и email,
// фильтр по этапу заявки, пагинация.
// ══════════════════════════════════════════════════════════════════════════════

// StudentFilter - фильтр по этапу заявки.
type StudentFilter string

const (
	FilterAll             StudentFilter = ""
	FilterProfileComplete StudentFilter = "profile-complete"
	FilterMarksSubmitted  StudentFilter = "marks-submitted"
	FilterAllocated       StudentFilter = "allocated"
	FilterPaymentVerified StudentFilter = "payment-verified"
	FilterPaymentPending  StudentFilter = "payment-pending"
)

// Match возвращает true, если запись проходит фильтр.
func (f StudentFilter) Match(r *student.Record) bool {
	switch f {
	case FilterProfileComplete:
		return r.HasProfile()
	case FilterMarksSubmitted:
		return r.HasAcademics()
	case FilterAllocated:
		_, ok := r.Branch()
		return ok
	case FilterPaymentVerified:
		return r.IsPaymentVerified()
	case FilterPaymentPending:
		return r.HasPayment() && !r.Payment.Verified && !r.Payment.IsRejected()
	default:
		return true
	}
}

// IsValid проверяет, что фильтр известен.
func (f StudentFilter) IsValid() bool {
	switch f {
	case FilterAll, FilterProfileComplete, FilterMarksSubmitted, FilterAllocated,
		FilterPaymentVerified, FilterPaymentPending:
		return true
	}
	return false
}

// ListStudentsQuery содержит параметры запроса.
type ListStudentsQuery struct {
	// Search - подстрока имени или email без учёта регистра.
	Search string

	Filter StudentFilter

	// Limit - количество записей (по умолчанию 50, максимум 500).
	Limit int

	// Offset - смещение для пагинации.
	Offset int
}

// Validate проверяет корректность параметров запроса.
func (q *ListStudentsQuery) Validate() error {
	if !q.Filter.IsValid() {
		return shared.WrapError("query", "ListStudents", shared.ErrInvalidInput,
			"unknown filter", fmt.Errorf("%q", q.Filter))
	}
	if q.Limit < 0 || q.Offset < 0 {
		return shared.NewDomainError("query", "ListStudents", shared.ErrValueOutOfRange,
			"limit and offset cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
	return nil
}

// StudentRowDTO - строка таблицы абитуриентов.
type StudentRowDTO struct {
	Email              string  `json:"email"`
	FullName           string  `json:"full_name"`
	Phone              string  `json:"phone,omitempty"`
	ProfileComplete    bool    `json:"profile_complete"`
	MarksSubmitted     bool    `json:"marks_submitted"`
	TotalMarks12       *int    `json:"total_marks_12,omitempty"`
	TotalMarks10       *int    `json:"total_marks_10,omitempty"`
	Rank               *int    `json:"rank,omitempty"`
	Preference1        string  `json:"preference1,omitempty"`
	Preference2        string  `json:"preference2,omitempty"`
	AllocatedBranch    *string `json:"allocated_branch"`
	AllocationOverride bool    `json:"allocation_override"`
	PaymentStatus      string  `json:"payment_status"`
}

// StudentListDTO - страница таблицы.
type StudentListDTO struct {
	Students []StudentRowDTO `json:"students"`
	Total    int             `json:"total"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

// ListStudentsHandler обрабатывает запрос таблицы.
type ListStudentsHandler struct {
	repo student.Repository
}

// NewListStudentsHandler создаёт обработчик.
func NewListStudentsHandler(repo student.Repository) *ListStudentsHandler {
	return &ListStudentsHandler{repo: repo}
}

// Handle выполняет запрос. Порядок строк - порядок вставки в хранилище.
func (h *ListStudentsHandler) Handle(ctx context.Context, q ListStudentsQuery) (*StudentListDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("list_students: %w", err)
	}
	snap, err := load(ctx, h.repo, "list_students")
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	matched := make([]*student.Record, 0, snap.Len())
	for _, r := range snap.Records {
		if matchesSearch(r, search) && q.Filter.Match(r) {
			matched = append(matched, r)
		}
	}

	out := &StudentListDTO{
		Students: make([]StudentRowDTO, 0),
		Total:    len(matched),
		Limit:    q.Limit,
		Offset:   q.Offset,
	}
	if q.Offset >= len(matched) {
		return out, nil
	}
	end := q.Offset + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	for _, r := range matched[q.Offset:end] {
		out.Students = append(out.Students, toRow(r))
	}
	return out, nil
}

func matchesSearch(r *student.Record, search string) bool {
	if search == "" {
		return true
	}
	if strings.Contains(r.Email.String(), search) {
		return true
	}
	return r.HasProfile() && strings.Contains(strings.ToLower(r.Profile.FullName), search)
}

func toRow(r *student.Record) StudentRowDTO {
	row := StudentRowDTO{
		Email:              r.Email.String(),
		FullName:           r.DisplayName(),
		ProfileComplete:    r.HasProfile(),
		MarksSubmitted:     r.HasAcademics(),
		AllocatedBranch:    branchPtr(r),
		AllocationOverride: r.AllocationOverride,
		PaymentStatus:      paymentText(r),
	}
	if r.HasProfile() {
		row.Phone = r.Profile.Phone
	}
	if total, ok := r.Aggregate(); ok {
		row.TotalMarks12 = &total
	}
	if rank, ok := r.RankValue(); ok {
		row.Rank = &rank
	}
	if r.HasAcademics() {
		total10 := r.Academics.Total10()
		row.TotalMarks10 = &total10
		row.Preference1 = r.Academics.Preference1.String()
		row.Preference2 = r.Academics.Preference2.String()
	}
	return row
}
