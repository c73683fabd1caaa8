package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConflict = errors.New("conflict")

func TestDo_RetriesRetryableUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errConflict)
		}
		return nil
	}, WithInitialDelay(0), WithMaxAttempts(5))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsUnwrappedErrorAfterLastAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errConflict)
	}, WithInitialDelay(0), WithMaxAttempts(2))

	assert.Same(t, errConflict, err)
	assert.Equal(t, 2, calls)
}

func TestDo_PlainErrorIsNotRetriedByDefault(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return errConflict
	}, WithInitialDelay(0))

	assert.ErrorIs(t, err, errConflict)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentStopsRetryIf(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errConflict)
	}, WithInitialDelay(0), WithRetryIf(func(error) bool { return true }))

	assert.Same(t, errConflict, err)
	assert.Equal(t, 1, calls)
}

func TestStoreRetrier_UsesPredicateAndCallback(t *testing.T) {
	var retried []int
	r := StoreRetrier(func(err error) bool { return errors.Is(err, errConflict) },
		WithInitialDelay(0),
		WithOnRetry(func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }),
	)

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 4 {
			return errConflict
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, retried)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDelay_IsCapped(t *testing.T) {
	r := New(WithInitialDelay(time.Second), WithMaxDelay(2*time.Second), WithJitter(0))
	assert.Equal(t, time.Second, r.delay(1))
	assert.Equal(t, 2*time.Second, r.delay(2))
	assert.Equal(t, 2*time.Second, r.delay(10))
}
