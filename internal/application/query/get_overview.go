package query

import (
	"context"

	"github.com/alem-hub/counseling-hub/internal/domain/branch"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SEAT SUMMARY QUERY
// Занятые и свободные места по направлениям по текущим назначениям.
// ══════════════════════════════════════════════════════════════════════════════

// SeatSummaryDTO - сводка по местам.
type SeatSummaryDTO struct {
	Branches       []branch.SeatSummary `json:"branches"`
	TotalSeats     int                  `json:"total_seats"`
	TotalAllocated int                  `json:"total_allocated"`
}

// GetSeatSummaryHandler обрабатывает запрос сводки по местам.
type GetSeatSummaryHandler struct {
	repo     student.Repository
	capacity branch.Capacity
}

// NewGetSeatSummaryHandler создаёт обработчик.
func NewGetSeatSummaryHandler(repo student.Repository, capacity branch.Capacity) *GetSeatSummaryHandler {
	return &GetSeatSummaryHandler{repo: repo, capacity: capacity.Clone()}
}

// Handle выполняет запрос. Ручные назначения учитываются, даже если
// превышают ёмкость.
func (h *GetSeatSummaryHandler) Handle(ctx context.Context) (*SeatSummaryDTO, error) {
	snap, err := load(ctx, h.repo, "get_seat_summary")
	if err != nil {
		return nil, err
	}

	ledger := branch.NewSeatLedger(h.capacity)
	for _, r := range snap.Records {
		if code, ok := r.Branch(); ok {
			ledger.Charge(code)
		}
	}

	out := &SeatSummaryDTO{Branches: ledger.Summary(), TotalSeats: h.capacity.Total()}
	for _, s := range out.Branches {
		out.TotalAllocated += s.Allocated
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET DASHBOARD STATS QUERY
// Счётчики для панели администратора.
// ══════════════════════════════════════════════════════════════════════════════

// DashboardStatsDTO - счётчики по хранилищу.
type DashboardStatsDTO struct {
	TotalStudents    int   `json:"total_students"`
	ProfilesComplete int   `json:"profiles_complete"`
	MarksSubmitted   int   `json:"marks_submitted"`
	Eligible         int   `json:"eligible"`
	Ranked           int   `json:"ranked"`
	Allocated        int   `json:"allocated"`
	Overrides        int   `json:"overrides"`
	PaymentsPending  int   `json:"payments_pending"`
	PaymentsVerified int   `json:"payments_verified"`
	Version          int64 `json:"version"`
}

// GetDashboardStatsHandler обрабатывает запрос счётчиков.
type GetDashboardStatsHandler struct {
	repo student.Repository
}

// NewGetDashboardStatsHandler создаёт обработчик.
func NewGetDashboardStatsHandler(repo student.Repository) *GetDashboardStatsHandler {
	return &GetDashboardStatsHandler{repo: repo}
}

// Handle выполняет запрос.
func (h *GetDashboardStatsHandler) Handle(ctx context.Context) (*DashboardStatsDTO, error) {
	snap, err := load(ctx, h.repo, "get_dashboard_stats")
	if err != nil {
		return nil, err
	}

	out := &DashboardStatsDTO{TotalStudents: snap.Len(), Version: snap.Version}
	for _, r := range snap.Records {
		if r.HasProfile() {
			out.ProfilesComplete++
		}
		if r.HasAcademics() {
			out.MarksSubmitted++
		}
		if r.IsEligible() {
			out.Eligible++
		}
		if r.Rank != nil {
			out.Ranked++
		}
		if _, ok := r.Branch(); ok {
			out.Allocated++
		}
		if r.AllocationOverride {
			out.Overrides++
		}
		if FilterPaymentPending.Match(r) {
			out.PaymentsPending++
		}
		if r.IsPaymentVerified() {
			out.PaymentsVerified++
		}
	}
	return out, nil
}
