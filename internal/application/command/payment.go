package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/counseling-hub/internal/domain/shared"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
	"github.com/alem-hub/counseling-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENT REVIEW
// Admin approval or rejection of submitted payments.
// ══════════════════════════════════════════════════════════════════════════════

// PaymentDecision selects approve or reject.
type PaymentDecision string

const (
	PaymentApprove PaymentDecision = "approve"
	PaymentReject  PaymentDecision = "reject"
)

// ReviewPaymentCommand approves or rejects one student's payment.
type ReviewPaymentCommand struct {
	Email    string          `validate:"required,email"`
	Decision PaymentDecision `validate:"required,oneof=approve reject"`
}

// Validate validates the command.
func (c ReviewPaymentCommand) Validate() error {
	return validateStruct("ReviewPayment", c)
}

// ReviewPaymentResult contains the updated record.
type ReviewPaymentResult struct {
	Record  *student.Record
	Version int64
}

// ReviewPaymentHandler handles ReviewPaymentCommand.
type ReviewPaymentHandler struct {
	store *Store
	log   *logger.Logger
}

// NewReviewPaymentHandler creates a new ReviewPaymentHandler.
func NewReviewPaymentHandler(store *Store, log *logger.Logger) *ReviewPaymentHandler {
	return &ReviewPaymentHandler{store: store, log: orNop(log)}
}

// Verify approves the payment of email.
func (h *ReviewPaymentHandler) Verify(ctx context.Context, email string) (*ReviewPaymentResult, error) {
	return h.Handle(ctx, ReviewPaymentCommand{Email: email, Decision: PaymentApprove})
}

// Reject rejects the payment of email.
func (h *ReviewPaymentHandler) Reject(ctx context.Context, email string) (*ReviewPaymentResult, error) {
	return h.Handle(ctx, ReviewPaymentCommand{Email: email, Decision: PaymentReject})
}

// Handle executes the command.
func (h *ReviewPaymentHandler) Handle(ctx context.Context, cmd ReviewPaymentCommand) (*ReviewPaymentResult, error) {
	op := "review_payment"
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	email, err := parseEmail(op, cmd.Email)
	if err != nil {
		return nil, err
	}

	var (
		rec *student.Record
		at  time.Time
	)
	snap, err := h.store.Mutate(ctx, func(snap *student.Snapshot, now time.Time) error {
		r, err := snap.Get(email)
		if err != nil {
			return err
		}
		if cmd.Decision == PaymentApprove {
			err = r.VerifyPayment(now)
		} else {
			err = r.RejectPayment(now)
		}
		if err != nil {
			return err
		}
		rec = r
		at = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	h.log.Info("payment reviewed",
		logger.Email(email.String()),
		logger.String("decision", string(cmd.Decision)),
	)
	et := shared.EventPaymentVerified
	if cmd.Decision == PaymentReject {
		et = shared.EventPaymentRejected
	}
	h.store.publish(shared.PaymentReviewedEvent{
		BaseEvent: shared.NewBaseEvent(et, email.String(), at, snap.Version),
	})
	return &ReviewPaymentResult{Record: rec.Clone(), Version: snap.Version}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// VERIFY ALL PAYMENTS
// Approves every submitted payment that is neither verified nor rejected.
// ══════════════════════════════════════════════════════════════════════════════

// VerifyAllPaymentsCommand has no parameters.
type VerifyAllPaymentsCommand struct{}

// VerifyAllPaymentsResult lists the records that were verified.
type VerifyAllPaymentsResult struct {
	Verified []student.Email
	Version  int64
}

// VerifyAllPaymentsHandler handles VerifyAllPaymentsCommand.
type VerifyAllPaymentsHandler struct {
	store *Store
	log   *logger.Logger
}

// NewVerifyAllPaymentsHandler creates a new VerifyAllPaymentsHandler.
func NewVerifyAllPaymentsHandler(store *Store, log *logger.Logger) *VerifyAllPaymentsHandler {
	return &VerifyAllPaymentsHandler{store: store, log: orNop(log)}
}

// Handle executes the command.
func (h *VerifyAllPaymentsHandler) Handle(ctx context.Context, _ VerifyAllPaymentsCommand) (*VerifyAllPaymentsResult, error) {
	var (
		verified []student.Email
		at       time.Time
	)
	snap, err := h.store.Mutate(ctx, func(snap *student.Snapshot, now time.Time) error {
		verified = verified[:0]
		at = now
		for _, r := range snap.Records {
			if !r.HasPayment() || r.Payment.Verified || r.Payment.IsRejected() {
				continue
			}
			if err := r.VerifyPayment(now); err != nil {
				return err
			}
			verified = append(verified, r.Email)
		}
		if len(verified) == 0 {
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify_all_payments: %w", err)
	}

	h.log.Info("pending payments verified", logger.Int("count", len(verified)))
	if len(verified) > 0 {
		emails := make([]string, len(verified))
		for i, e := range verified {
			emails[i] = e.String()
		}
		h.store.publish(shared.PaymentsBulkVerifiedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventPaymentsBulkVerified, shared.StoreAggregate, at, snap.Version),
			Emails:    emails,
		})
	}
	return &VerifyAllPaymentsResult{Verified: append([]student.Email{}, verified...), Version: snap.Version}, nil
}
