package student

import (
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/counseling-hub/internal/domain/branch"
	"github.com/alem-hub/counseling-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Email - уникальный ключ записи. Никогда не меняется.
type Email string

// ParseEmail нормализует email (trim + lower case) и проверяет формат.
func ParseEmail(s string) (Email, error) {
	e := strings.ToLower(strings.TrimSpace(s))
	at := strings.Index(e, "@")
	if at <= 0 || at == len(e)-1 || strings.ContainsAny(e, " \t\r\n") {
		return "", shared.WrapError("student", "ParseEmail", shared.ErrInvalidEmail,
			"invalid email", fmt.Errorf("%q", s))
	}
	return Email(e), nil
}

// String возвращает строковое представление email.
func (e Email) String() string {
	return string(e)
}

// MaxSubjectMarks - максимум баллов по одному предмету.
const MaxSubjectMarks = 100

// MaxAggregate - максимум суммы четырёх предметов 10+2.
const MaxAggregate = 4 * MaxSubjectMarks

// ══════════════════════════════════════════════════════════════════════════════
// BLOCKS
// ══════════════════════════════════════════════════════════════════════════════

// Profile - личные данные студента.
type Profile struct {
	FullName    string `json:"fullName"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Phone       string `json:"phone"`
	Email       string `json:"email,omitempty"`
	Address     string `json:"address,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Pincode     string `json:"pincode,omitempty"`
	ParentName  string `json:"parentName,omitempty"`
	ParentPhone string `json:"parentPhone,omitempty"`
}

// Marks - оценки по предметам.
// Пять предметов 10 класса и четыре предмета 10+2.
type Marks struct {
	Math10    int `json:"math10"`
	Science10 int `json:"science10"`
	English10 int `json:"english10"`
	Hindi10   int `json:"hindi10"`
	Social10  int `json:"social10"`

	Physics12   int `json:"physics12"`
	Chemistry12 int `json:"chemistry12"`
	Math12      int `json:"math12"`
	English12   int `json:"english12"`
}

// Validate проверяет, что все оценки в диапазоне 0..100.
func (m Marks) Validate() error {
	subjects := map[string]int{
		"math10": m.Math10, "science10": m.Science10, "english10": m.English10,
		"hindi10": m.Hindi10, "social10": m.Social10,
		"physics12": m.Physics12, "chemistry12": m.Chemistry12,
		"math12": m.Math12, "english12": m.English12,
	}
	for name, v := range subjects {
		if v < 0 || v > MaxSubjectMarks {
			return shared.WrapError("student", "ValidateMarks", shared.ErrInvalidMarks,
				"marks must be between 0 and 100", fmt.Errorf("%s=%d", name, v))
		}
	}
	return nil
}

// Aggregate - сумма четырёх предметов 10+2, по которой строится рейтинг.
func (m Marks) Aggregate() int {
	return m.Physics12 + m.Chemistry12 + m.Math12 + m.English12
}

// Total10 - сумма пяти предметов 10 класса (только для отображения).
func (m Marks) Total10() int {
	return m.Math10 + m.Science10 + m.English10 + m.Hindi10 + m.Social10
}

// Academics - академический блок: оценки, два предпочтения и производная сумма.
type Academics struct {
	Marks

	// Preference1 строго предпочтительнее Preference2.
	Preference1 branch.Code `json:"preference1,omitempty"`
	Preference2 branch.Code `json:"preference2,omitempty"`

	// TotalMarks12 всегда равна Marks.Aggregate() и не редактируется отдельно.
	TotalMarks12 *int `json:"totalMarks12,omitempty"`
}

// NewAcademics создаёт академический блок с вычисленной суммой.
func NewAcademics(marks Marks, pref1, pref2 branch.Code) (*Academics, error) {
	if err := marks.Validate(); err != nil {
		return nil, err
	}
	if pref1 != "" && pref1 == pref2 {
		return nil, shared.ErrSamePreference
	}
	total := marks.Aggregate()
	return &Academics{
		Marks:        marks,
		Preference1:  pref1,
		Preference2:  pref2,
		TotalMarks12: &total,
	}, nil
}

// HasPreferences возвращает true, если заданы оба предпочтения.
func (a *Academics) HasPreferences() bool {
	return a != nil && a.Preference1 != "" && a.Preference2 != ""
}

// IsPreference возвращает true, если направление - одно из двух предпочтений.
func (a *Academics) IsPreference(code branch.Code) bool {
	return a != nil && code != "" && (a.Preference1 == code || a.Preference2 == code)
}

// Payment - подтверждение оплаты консультационного сбора.
type Payment struct {
	Amount        int        `json:"amount"`
	TransactionID string     `json:"transactionId"`
	BankName      string     `json:"bankName,omitempty"`
	AccountNumber string     `json:"accountNumber,omitempty"`
	ReceiptFile   string     `json:"receiptFile,omitempty"`
	SubmittedAt   time.Time  `json:"submittedAt"`
	Verified      bool       `json:"verified"`
	VerifiedAt    *time.Time `json:"verifiedAt,omitempty"`
	RejectedAt    *time.Time `json:"rejectedAt,omitempty"`
}

// IsRejected возвращает true, если платёж отклонён и не перепроверен.
func (p *Payment) IsRejected() bool {
	return p != nil && !p.Verified && p.RejectedAt != nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record - запись абитуриента в хранилище.
type Record struct {
	// Email - ключ записи.
	Email Email `json:"email"`

	Profile   *Profile   `json:"profile,omitempty"`
	Academics *Academics `json:"academics,omitempty"`
	Payment   *Payment   `json:"payment,omitempty"`

	// Rank пишет только ранжирование. nil - ранг не определён.
	Rank *int `json:"rank,omitempty"`

	// AllocatedBranch - авторитетный итог распределения. nil - места нет.
	AllocatedBranch *branch.Code `json:"allocatedBranch,omitempty"`

	// AllocationOverride - направление назначено вручную администратором.
	AllocationOverride bool `json:"allocationOverride,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRecord создаёт пустую запись.
func NewRecord(email Email, now time.Time) *Record {
	now = now.UTC()
	return &Record{
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Derived state
// ─────────────────────────────────────────────────────────────────────────────

// Aggregate возвращает сумму 10+2, если она определена.
func (r *Record) Aggregate() (int, bool) {
	if r == nil || r.Academics == nil || r.Academics.TotalMarks12 == nil {
		return 0, false
	}
	return *r.Academics.TotalMarks12, true
}

// IsEligible - есть сумма баллов и оба предпочтения.
func (r *Record) IsEligible() bool {
	_, ok := r.Aggregate()
	return ok && r.Academics.HasPreferences()
}

// RankValue возвращает ранг, если он определён.
func (r *Record) RankValue() (int, bool) {
	if r == nil || r.Rank == nil {
		return 0, false
	}
	return *r.Rank, true
}

// Branch возвращает назначенное направление, если оно есть.
func (r *Record) Branch() (branch.Code, bool) {
	if r == nil || r.AllocatedBranch == nil || *r.AllocatedBranch == "" {
		return "", false
	}
	return *r.AllocatedBranch, true
}

// HasProfile возвращает true, если профиль заполнен.
func (r *Record) HasProfile() bool { return r != nil && r.Profile != nil }

// HasAcademics возвращает true, если академический блок заполнен.
func (r *Record) HasAcademics() bool { return r != nil && r.Academics != nil }

// HasPayment возвращает true, если оплата отправлена.
func (r *Record) HasPayment() bool { return r != nil && r.Payment != nil }

// IsPaymentVerified возвращает true, если оплата подтверждена.
func (r *Record) IsPaymentVerified() bool { return r.HasPayment() && r.Payment.Verified }

// DisplayName возвращает имя из профиля или email.
func (r *Record) DisplayName() string {
	if r.Profile != nil && strings.TrimSpace(r.Profile.FullName) != "" {
		return r.Profile.FullName
	}
	return r.Email.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// Student actions
// ─────────────────────────────────────────────────────────────────────────────

// SubmitProfile заменяет профиль целиком.
func (r *Record) SubmitProfile(p Profile, now time.Time) error {
	if strings.TrimSpace(p.FullName) == "" || strings.TrimSpace(p.Phone) == "" {
		return shared.WrapError("student", "SubmitProfile", shared.ErrMissingField,
			"required field is missing", fmt.Errorf("fullName and phone are required"))
	}
	r.Profile = &p
	r.touch(now)
	return nil
}

// SubmitAcademics заменяет академический блок целиком.
// Ранг не трогается. Распределённое направление, которого больше нет среди
// предпочтений, сбрасывается; ручное назначение остаётся.
func (r *Record) SubmitAcademics(a *Academics, now time.Time) error {
	if a == nil {
		return shared.ErrMissingField
	}
	fresh, err := NewAcademics(a.Marks, a.Preference1, a.Preference2)
	if err != nil {
		return err
	}
	r.Academics = fresh
	if code, ok := r.Branch(); ok && !r.AllocationOverride &&
		code != fresh.Preference1 && code != fresh.Preference2 {
		r.AllocatedBranch = nil
	}
	r.touch(now)
	return nil
}

// SubmitPayment заменяет блок оплаты. Повторная отправка сбрасывает проверку.
func (r *Record) SubmitPayment(p Payment, now time.Time) error {
	if p.Amount <= 0 || strings.TrimSpace(p.TransactionID) == "" {
		return shared.WrapError("student", "SubmitPayment", shared.ErrMissingField,
			"required field is missing", fmt.Errorf("positive amount and transactionId are required"))
	}
	p.SubmittedAt = now.UTC()
	p.Verified = false
	p.VerifiedAt = nil
	p.RejectedAt = nil
	r.Payment = &p
	r.touch(now)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Admin actions
// ─────────────────────────────────────────────────────────────────────────────

// SetRank записывает ранг.
func (r *Record) SetRank(rank int) {
	r.Rank = &rank
}

// ClearRank снимает ранг.
func (r *Record) ClearRank() {
	r.Rank = nil
}

// Allocate записывает результат автоматического распределения.
// nil-код означает "места нет". Ручная отметка снимается.
func (r *Record) Allocate(code *branch.Code) {
	if code == nil {
		r.AllocatedBranch = nil
	} else {
		c := *code
		r.AllocatedBranch = &c
	}
	r.AllocationOverride = false
}

// OverrideAllocation назначает направление вручную, без проверки ёмкости и
// предпочтений.
func (r *Record) OverrideAllocation(code branch.Code, now time.Time) {
	r.AllocatedBranch = &code
	r.AllocationOverride = true
	r.touch(now)
}

// ClearAllocation снимает назначение и ручную отметку.
func (r *Record) ClearAllocation(now time.Time) {
	r.AllocatedBranch = nil
	r.AllocationOverride = false
	r.touch(now)
}

// VerifyPayment подтверждает оплату.
func (r *Record) VerifyPayment(now time.Time) error {
	if r.Payment == nil {
		return shared.ErrNoPayment
	}
	t := now.UTC()
	r.Payment.Verified = true
	r.Payment.VerifiedAt = &t
	r.Payment.RejectedAt = nil
	r.touch(now)
	return nil
}

// RejectPayment отклоняет оплату.
func (r *Record) RejectPayment(now time.Time) error {
	if r.Payment == nil {
		return shared.ErrNoPayment
	}
	t := now.UTC()
	r.Payment.Verified = false
	r.Payment.VerifiedAt = nil
	r.Payment.RejectedAt = &t
	r.touch(now)
	return nil
}

// Clone возвращает глубокую копию записи.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Profile != nil {
		p := *r.Profile
		c.Profile = &p
	}
	if r.Academics != nil {
		a := *r.Academics
		if r.Academics.TotalMarks12 != nil {
			t := *r.Academics.TotalMarks12
			a.TotalMarks12 = &t
		}
		c.Academics = &a
	}
	if r.Payment != nil {
		p := *r.Payment
		if r.Payment.VerifiedAt != nil {
			t := *r.Payment.VerifiedAt
			p.VerifiedAt = &t
		}
		if r.Payment.RejectedAt != nil {
			t := *r.Payment.RejectedAt
			p.RejectedAt = &t
		}
		c.Payment = &p
	}
	if r.Rank != nil {
		v := *r.Rank
		c.Rank = &v
	}
	if r.AllocatedBranch != nil {
		b := *r.AllocatedBranch
		c.AllocatedBranch = &b
	}
	return &c
}

func (r *Record) touch(now time.Time) {
	r.UpdatedAt = now.UTC()
}
