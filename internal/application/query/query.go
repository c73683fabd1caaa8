// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/counseling-hub/internal/domain/student"
)

// load читает снапшот хранилища и оборачивает ошибку именем операции.
func load(ctx context.Context, repo student.Repository, op string) (*student.Snapshot, error) {
	snap, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load records: %w", op, err)
	}
	return snap, nil
}

// paymentText - статус оплаты для табличных DTO.
func paymentText(r *student.Record) string {
	switch {
	case !r.HasPayment():
		return "Not Paid"
	case r.Payment.Verified:
		return "Verified"
	case r.Payment.IsRejected():
		return "Rejected"
	default:
		return "Pending"
	}
}

func branchPtr(r *student.Record) *string {
	code, ok := r.Branch()
	if !ok {
		return nil
	}
	s := code.String()
	return &s
}
