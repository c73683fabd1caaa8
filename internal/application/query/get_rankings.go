package query

import (
	"context"

	"github.com/alem-hub/counseling-hub/internal/domain/ranking"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RANKINGS QUERY
// Рейтинг по сохранённым суммам 10+2 в текущем состоянии хранилища.
// Ничего не записывает: сохранённые ранги обновляет GenerateRankings.
// ══════════════════════════════════════════════════════════════════════════════

// GetRankingsQuery содержит параметры запроса.
type GetRankingsQuery struct {
	// Limit - количество строк; 0 - все.
	Limit int
}

// RankingRowDTO - строка рейтинга.
type RankingRowDTO struct {
	Rank            int     `json:"rank"`
	StoredRank      *int    `json:"stored_rank,omitempty"`
	Email           string  `json:"email"`
	FullName        string  `json:"full_name"`
	TotalMarks12    int     `json:"total_marks_12"`
	Physics12       int     `json:"physics12"`
	Chemistry12     int     `json:"chemistry12"`
	Math12          int     `json:"math12"`
	English12       int     `json:"english12"`
	Preference1     string  `json:"preference1,omitempty"`
	Preference2     string  `json:"preference2,omitempty"`
	AllocatedBranch *string `json:"allocated_branch"`
}

// RankingsDTO - рейтинг целиком.
type RankingsDTO struct {
	Rows []RankingRowDTO `json:"rows"`

	// Stale - сохранённые ранги расходятся с текущим порядком.
	Stale bool `json:"stale"`
}

// GetRankingsHandler обрабатывает запрос рейтинга.
type GetRankingsHandler struct {
	repo student.Repository
}

// NewGetRankingsHandler создаёт обработчик.
func NewGetRankingsHandler(repo student.Repository) *GetRankingsHandler {
	return &GetRankingsHandler{repo: repo}
}

// Handle выполняет запрос.
func (h *GetRankingsHandler) Handle(ctx context.Context, q GetRankingsQuery) (*RankingsDTO, error) {
	snap, err := load(ctx, h.repo, "get_rankings")
	if err != nil {
		return nil, err
	}

	table := ranking.NewTable(ranking.Candidates(snap.Records))
	out := &RankingsDTO{Rows: make([]RankingRowDTO, 0, table.Count())}

	for _, r := range snap.Records {
		if _, ranked := table.Get(r.Email); !ranked && r.Rank != nil {
			out.Stale = true
		}
	}

	for _, e := range table.All() {
		if q.Limit > 0 && len(out.Rows) == q.Limit {
			break
		}
		r := snap.Find(e.Email)
		row := RankingRowDTO{
			Rank:            int(e.Rank),
			Email:           e.Email.String(),
			FullName:        r.DisplayName(),
			TotalMarks12:    e.Aggregate,
			Physics12:       r.Academics.Physics12,
			Chemistry12:     r.Academics.Chemistry12,
			Math12:          r.Academics.Math12,
			English12:       r.Academics.English12,
			Preference1:     r.Academics.Preference1.String(),
			Preference2:     r.Academics.Preference2.String(),
			AllocatedBranch: branchPtr(r),
		}
		if stored, ok := r.RankValue(); ok {
			row.StoredRank = &stored
			if stored != row.Rank {
				out.Stale = true
			}
		} else {
			out.Stale = true
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}
