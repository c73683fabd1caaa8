// Package status строит карточку статуса абитуриента для отображения.
// Проекция только читает записи и ничего не меняет; любое поле записи
// может отсутствовать.
package status

import (
	"fmt"

	"github.com/alem-hub/counseling-hub/internal/domain/ranking"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEXTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	ProfileComplete    = "Complete"
	ProfileNotComplete = "Not Complete"

	RankNotAvailable = "Not Available"

	BranchPending = "Pending"

	PaymentVerified            = "Verified"
	PaymentPendingVerification = "Pending Verification"
	PaymentNotPaid             = "Not Paid"

	ApplicationComplete   = "Complete"
	ApplicationInProgress = "In Progress"
	ApplicationNotStarted = "Not Started"
)

// Tone - цвет отображения статуса.
type Tone string

const (
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
	ToneInfo    Tone = "info"
	ToneMuted   Tone = "muted"
)

// Field - одно поле карточки: текст и цвет.
type Field struct {
	Text string `json:"text"`
	Tone Tone   `json:"tone"`
}

// Card - карточка статуса абитуриента.
type Card struct {
	Email             student.Email `json:"email"`
	ProfileStatus     Field         `json:"profileStatus"`
	AcademicRank      Field         `json:"academicRank"`
	BranchAllocation  Field         `json:"branchAllocation"`
	PaymentStatus     Field         `json:"paymentStatus"`
	ApplicationStatus Field         `json:"applicationStatus"`
}

// ══════════════════════════════════════════════════════════════════════════════
// PROJECTOR
// ══════════════════════════════════════════════════════════════════════════════

// Projector строит карточки статуса.
type Projector struct {
	liveRank bool
}

// NewProjector создаёт проектор.
// liveRank=true пересчитывает рейтинг по всем записям с academics и не
// доверяет сохранённому рангу; false использует сохранённые суммы.
func NewProjector(liveRank bool) *Projector {
	return &Projector{liveRank: liveRank}
}

// Project строит карточку для записи. cohort - все записи хранилища.
func (p *Projector) Project(rec *student.Record, cohort []*student.Record) Card {
	return p.ProjectWith(rec, p.Table(cohort))
}

// Table строит рейтинг, по которому считается позиция. Один рейтинг можно
// переиспользовать для карточек всех записей.
func (p *Projector) Table(cohort []*student.Record) *ranking.Table {
	if p.liveRank {
		return ranking.NewTable(ranking.LiveCohort(cohort))
	}
	return ranking.NewTable(ranking.Candidates(cohort))
}

// ProjectWith строит карточку по готовому рейтингу.
func (p *Projector) ProjectWith(rec *student.Record, table *ranking.Table) Card {
	if rec == nil {
		rec = &student.Record{}
	}
	return Card{
		Email:             rec.Email,
		ProfileStatus:     profileStatus(rec),
		AcademicRank:      academicRank(rec, table),
		BranchAllocation:  branchAllocation(rec),
		PaymentStatus:     paymentStatus(rec),
		ApplicationStatus: applicationStatus(rec),
	}
}

// Project строит карточку с живым пересчётом рейтинга.
func Project(rec *student.Record, cohort []*student.Record) Card {
	return NewProjector(true).Project(rec, cohort)
}

// ─────────────────────────────────────────────────────────────────────────────
// Fields
// ─────────────────────────────────────────────────────────────────────────────

func profileStatus(rec *student.Record) Field {
	if rec.HasProfile() {
		return Field{Text: ProfileComplete, Tone: ToneSuccess}
	}
	return Field{Text: ProfileNotComplete, Tone: ToneDanger}
}

func academicRank(rec *student.Record, table *ranking.Table) Field {
	if !rec.HasAcademics() {
		return Field{Text: RankNotAvailable, Tone: ToneDanger}
	}
	entry, ok := table.Get(rec.Email)
	if !ok {
		return Field{Text: RankNotAvailable, Tone: ToneDanger}
	}

	if table.Count() == 1 {
		return Field{
			Text: fmt.Sprintf("Marks: %d/%d (Only Student)", entry.Aggregate, student.MaxAggregate),
			Tone: ToneSuccess,
		}
	}
	if entry.Rank == 1 {
		return Field{
			Text: fmt.Sprintf("Rank 1 - %d/%d marks (Highest!)", entry.Aggregate, student.MaxAggregate),
			Tone: ToneSuccess,
		}
	}

	gap, _ := table.GapToTop(rec.Email)
	text := fmt.Sprintf("Rank %d - %d/%d (%d marks behind top)", entry.Rank, entry.Aggregate, student.MaxAggregate, gap)
	switch {
	case entry.Rank <= 3:
		return Field{Text: text, Tone: ToneSuccess}
	case entry.Rank <= 10:
		return Field{Text: text, Tone: ToneWarning}
	default:
		return Field{Text: text, Tone: ToneMuted}
	}
}

func branchAllocation(rec *student.Record) Field {
	if code, ok := rec.Branch(); ok {
		return Field{Text: code.Name(), Tone: ToneInfo}
	}
	return Field{Text: BranchPending, Tone: ToneWarning}
}

func paymentStatus(rec *student.Record) Field {
	switch {
	case rec.IsPaymentVerified():
		return Field{Text: PaymentVerified, Tone: ToneSuccess}
	case rec.HasPayment():
		return Field{Text: PaymentPendingVerification, Tone: ToneWarning}
	default:
		return Field{Text: PaymentNotPaid, Tone: ToneDanger}
	}
}

func applicationStatus(rec *student.Record) Field {
	switch {
	case rec.HasProfile() && rec.HasAcademics():
		return Field{Text: ApplicationComplete, Tone: ToneSuccess}
	case rec.HasProfile() || rec.HasAcademics():
		return Field{Text: ApplicationInProgress, Tone: ToneWarning}
	default:
		return Field{Text: ApplicationNotStarted, Tone: ToneDanger}
	}
}
