package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/counseling-hub/internal/domain/branch"
	"github.com/alem-hub/counseling-hub/internal/domain/shared"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
	"github.com/alem-hub/counseling-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT PROFILE
// The student's personal details. Creates the record on first submission.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitProfileCommand replaces the profile block.
type SubmitProfileCommand struct {
	Email       string `validate:"required,email"`
	FullName    string `validate:"required,max=200"`
	DateOfBirth string `validate:"omitempty,datetime=2006-01-02"`
	Gender      string `validate:"omitempty,max=20"`
	Phone       string `validate:"required,max=20"`
	Address     string `validate:"omitempty,max=500"`
	City        string `validate:"omitempty,max=100"`
	State       string `validate:"omitempty,max=100"`
	Pincode     string `validate:"omitempty,max=10"`
	ParentName  string `validate:"omitempty,max=200"`
	ParentPhone string `validate:"omitempty,max=20"`
}

// Validate validates the command.
func (c SubmitProfileCommand) Validate() error {
	return validateStruct("SubmitProfile", c)
}

// SubmitResult is returned by the three student submissions.
type SubmitResult struct {
	Record  *student.Record
	Created bool
	Version int64
}

// SubmitProfileHandler handles SubmitProfileCommand.
type SubmitProfileHandler struct {
	store *Store
	log   *logger.Logger
}

// NewSubmitProfileHandler creates a new SubmitProfileHandler.
func NewSubmitProfileHandler(store *Store, log *logger.Logger) *SubmitProfileHandler {
	return &SubmitProfileHandler{store: store, log: orNop(log)}
}

// Handle executes the command.
func (h *SubmitProfileHandler) Handle(ctx context.Context, cmd SubmitProfileCommand) (*SubmitResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("submit_profile: %w", err)
	}
	email, err := parseEmail("submit_profile", cmd.Email)
	if err != nil {
		return nil, err
	}

	profile := student.Profile{
		FullName:    cmd.FullName,
		DateOfBirth: cmd.DateOfBirth,
		Gender:      cmd.Gender,
		Phone:       cmd.Phone,
		Email:       email.String(),
		Address:     cmd.Address,
		City:        cmd.City,
		State:       cmd.State,
		Pincode:     cmd.Pincode,
		ParentName:  cmd.ParentName,
		ParentPhone: cmd.ParentPhone,
	}

	res, err := submit(ctx, h.store, email, shared.EventProfileSubmitted, func(r *student.Record, now time.Time) error {
		return r.SubmitProfile(profile, now)
	})
	if err != nil {
		return nil, fmt.Errorf("submit_profile: %w", err)
	}

	h.log.Info("profile submitted", logger.Email(email.String()), logger.Bool("created", res.Created))
	return res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT ACADEMICS
// Marks and the two branch preferences. Rank and allocation are left alone
// until the next admin run.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitAcademicsCommand replaces the academic block.
type SubmitAcademicsCommand struct {
	Email string `validate:"required,email"`

	Math10    int `validate:"min=0,max=100"`
	Science10 int `validate:"min=0,max=100"`
	English10 int `validate:"min=0,max=100"`
	Hindi10   int `validate:"min=0,max=100"`
	Social10  int `validate:"min=0,max=100"`

	Physics12   int `validate:"min=0,max=100"`
	Chemistry12 int `validate:"min=0,max=100"`
	Math12      int `validate:"min=0,max=100"`
	English12   int `validate:"min=0,max=100"`

	Preference1 string `validate:"omitempty,max=64"`
	Preference2 string `validate:"omitempty,max=64"`
}

// Validate validates the command.
func (c SubmitAcademicsCommand) Validate() error {
	return validateStruct("SubmitAcademics", c)
}

func (c SubmitAcademicsCommand) marks() student.Marks {
	return student.Marks{
		Math10:      c.Math10,
		Science10:   c.Science10,
		English10:   c.English10,
		Hindi10:     c.Hindi10,
		Social10:    c.Social10,
		Physics12:   c.Physics12,
		Chemistry12: c.Chemistry12,
		Math12:      c.Math12,
		English12:   c.English12,
	}
}

// SubmitAcademicsHandler handles SubmitAcademicsCommand.
type SubmitAcademicsHandler struct {
	store *Store
	log   *logger.Logger
}

// NewSubmitAcademicsHandler creates a new SubmitAcademicsHandler.
func NewSubmitAcademicsHandler(store *Store, log *logger.Logger) *SubmitAcademicsHandler {
	return &SubmitAcademicsHandler{store: store, log: orNop(log)}
}

// Handle executes the command.
func (h *SubmitAcademicsHandler) Handle(ctx context.Context, cmd SubmitAcademicsCommand) (*SubmitResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("submit_academics: %w", err)
	}
	email, err := parseEmail("submit_academics", cmd.Email)
	if err != nil {
		return nil, err
	}
	pref1, err := parsePreference(cmd.Preference1)
	if err != nil {
		return nil, fmt.Errorf("submit_academics: preference1: %w", err)
	}
	pref2, err := parsePreference(cmd.Preference2)
	if err != nil {
		return nil, fmt.Errorf("submit_academics: preference2: %w", err)
	}

	academics, err := student.NewAcademics(cmd.marks(), pref1, pref2)
	if err != nil {
		return nil, fmt.Errorf("submit_academics: %w", err)
	}

	res, err := submit(ctx, h.store, email, shared.EventAcademicsSubmitted, func(r *student.Record, now time.Time) error {
		return r.SubmitAcademics(academics, now)
	})
	if err != nil {
		return nil, fmt.Errorf("submit_academics: %w", err)
	}

	total, _ := res.Record.Aggregate()
	h.log.Info("academics submitted",
		logger.Email(email.String()),
		logger.Int("total_marks_12", total),
		logger.Bool("eligible", res.Record.IsEligible()),
	)
	return res, nil
}

func parsePreference(raw string) (branch.Code, error) {
	if raw == "" {
		return "", nil
	}
	return branch.Parse(raw)
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT PAYMENT
// Proof of the counseling fee. A resubmission resets verification.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitPaymentCommand replaces the payment block.
type SubmitPaymentCommand struct {
	Email         string `validate:"required,email"`
	Amount        int    `validate:"gt=0"`
	TransactionID string `validate:"required,max=100"`
	BankName      string `validate:"omitempty,max=100"`
	AccountNumber string `validate:"omitempty,max=34"`
	ReceiptFile   string `validate:"omitempty,max=255"`
}

// Validate validates the command.
func (c SubmitPaymentCommand) Validate() error {
	return validateStruct("SubmitPayment", c)
}

// SubmitPaymentHandler handles SubmitPaymentCommand.
type SubmitPaymentHandler struct {
	store *Store
	log   *logger.Logger
}

// NewSubmitPaymentHandler creates a new SubmitPaymentHandler.
func NewSubmitPaymentHandler(store *Store, log *logger.Logger) *SubmitPaymentHandler {
	return &SubmitPaymentHandler{store: store, log: orNop(log)}
}

// Handle executes the command.
func (h *SubmitPaymentHandler) Handle(ctx context.Context, cmd SubmitPaymentCommand) (*SubmitResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("submit_payment: %w", err)
	}
	email, err := parseEmail("submit_payment", cmd.Email)
	if err != nil {
		return nil, err
	}

	payment := student.Payment{
		Amount:        cmd.Amount,
		TransactionID: cmd.TransactionID,
		BankName:      cmd.BankName,
		AccountNumber: cmd.AccountNumber,
		ReceiptFile:   cmd.ReceiptFile,
	}

	res, err := submit(ctx, h.store, email, shared.EventPaymentSubmitted, func(r *student.Record, now time.Time) error {
		return r.SubmitPayment(payment, now)
	})
	if err != nil {
		return nil, fmt.Errorf("submit_payment: %w", err)
	}

	h.log.Info("payment submitted", logger.Email(email.String()), logger.Int("amount", cmd.Amount))
	return res, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// submit upserts the record for email, applies apply to it and publishes
// an event of type et.
func submit(ctx context.Context, store *Store, email student.Email, et shared.EventType, apply func(*student.Record, time.Time) error) (*SubmitResult, error) {
	var (
		created bool
		rec     *student.Record
		at      time.Time
	)
	snap, err := store.Mutate(ctx, func(snap *student.Snapshot, now time.Time) error {
		created = snap.Find(email) == nil
		r := snap.Upsert(email, now)
		if err := apply(r, now); err != nil {
			return err
		}
		rec = r
		at = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	store.publish(shared.SubmissionEvent{
		BaseEvent: shared.NewBaseEvent(et, email.String(), at, snap.Version),
		Created:   created,
	})
	return &SubmitResult{Record: rec.Clone(), Created: created, Version: snap.Version}, nil
}

func orNop(log *logger.Logger) *logger.Logger {
	if log == nil {
		return logger.Nop()
	}
	return log
}
