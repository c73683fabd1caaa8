package command

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/alem-hub/counseling-hub/internal/domain/allocation"
	"github.com/alem-hub/counseling-hub/internal/domain/branch"
	"github.com/alem-hub/counseling-hub/internal/domain/shared"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
	"github.com/alem-hub/counseling-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/counseling-hub/pkg/logger"
	"github.com/alem-hub/counseling-hub/pkg/retry"
)

var now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, consistency student.Consistency) (*memory.Store, *Store) {
	t.Helper()
	repo := memory.NewStore(consistency, nil)
	fast := retry.StoreRetrier(isStale, retry.WithInitialDelay(0), retry.WithJitter(0))
	return repo, NewStore(repo, nil, WithClock(func() time.Time { return now }), WithRetrier(fast))
}

func academics(email string, p, c, m, e int, pref1, pref2 string) SubmitAcademicsCommand {
	return SubmitAcademicsCommand{
		Email:       email,
		Physics12:   p,
		Chemistry12: c,
		Math12:      m,
		English12:   e,
		Preference1: pref1,
		Preference2: pref2,
	}
}

func load(t *testing.T, repo student.Repository) *student.Snapshot {
	t.Helper()
	snap, err := repo.Load(context.Background())
	require.NoError(t, err)
	return snap
}

func TestSubmitProfile_CreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestStore(t, student.ConsistencyLastWriterWins)
	h := NewSubmitProfileHandler(store, nil)

	res, err := h.Handle(ctx, SubmitProfileCommand{Email: "A@Example.com", FullName: "Asel", Phone: "+77001112233"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, student.Email("a@example.com"), res.Record.Email)

	res, err = h.Handle(ctx, SubmitProfileCommand{Email: "a@example.com", FullName: "Asel B.", Phone: "+77001112233"})
	require.NoError(t, err)
	assert.False(t, res.Created)

	snap := load(t, repo)
	require.Equal(t, 1, snap.Len())
	assert.Equal(t, "Asel B.", snap.Records[0].Profile.FullName)
	assert.Equal(t, now, snap.Records[0].UpdatedAt)
}

func TestSubmitProfile_Validation(t *testing.T) {
	_, store := newTestStore(t, student.ConsistencyLastWriterWins)
	h := NewSubmitProfileHandler(store, nil)

	tests := []struct {
		name string
		cmd  SubmitProfileCommand
	}{
		{name: "missing phone", cmd: SubmitProfileCommand{Email: "a@example.com", FullName: "Asel"}},
		{name: "missing name", cmd: SubmitProfileCommand{Email: "a@example.com", Phone: "1"}},
		{name: "bad email", cmd: SubmitProfileCommand{Email: "not-an-email", FullName: "Asel", Phone: "1"}},
		{name: "bad birth date", cmd: SubmitProfileCommand{Email: "a@example.com", FullName: "Asel", Phone: "1", DateOfBirth: "01/02/2006"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err), err.Error())
		})
	}
}

func TestSubmitAcademics(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestStore(t, student.ConsistencyLastWriterWins)
	h := NewSubmitAcademicsHandler(store, nil)

	res, err := h.Handle(ctx, academics("a@example.com", 95, 92, 98, 95, "computer-science", "electrical"))
	require.NoError(t, err)
	total, ok := res.Record.Aggregate()
	require.True(t, ok)
	assert.Equal(t, 380, total)
	assert.True(t, res.Record.IsEligible())

	_, err = h.Handle(ctx, academics("a@example.com", 95, 92, 98, 95, "civil", "civil"))
	assert.ErrorIs(t, err, shared.ErrSamePreference)

	_, err = h.Handle(ctx, academics("a@example.com", 95, 92, 98, 95, "astronomy", "civil"))
	assert.ErrorIs(t, err, shared.ErrUnknownBranch)

	_, err = h.Handle(ctx, academics("a@example.com", 101, 92, 98, 95, "civil", "chemical"))
	assert.True(t, shared.IsValidation(err))

	snap := load(t, repo)
	assert.Equal(t, branch.ComputerScience, snap.Records[0].Academics.Preference1)
}

func TestSubmitPayment_ResetsVerification(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestStore(t, student.ConsistencyLastWriterWins)
	pay := NewSubmitPaymentHandler(store, nil)
	review := NewReviewPaymentHandler(store, nil)

	_, err := pay.Handle(ctx, SubmitPaymentCommand{Email: "a@example.com", Amount: 5000, TransactionID: "TX1"})
	require.NoError(t, err)
	_, err = review.Verify(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, load(t, repo).Records[0].IsPaymentVerified())

	_, err = pay.Handle(ctx, SubmitPaymentCommand{Email: "a@example.com", Amount: 5000, TransactionID: "TX2"})
	require.NoError(t, err)
	assert.False(t, load(t, repo).Records[0].IsPaymentVerified())

	_, err = pay.Handle(ctx, SubmitPaymentCommand{Email: "a@example.com", Amount: 0, TransactionID: "TX3"})
	assert.True(t, shared.IsValidation(err))
}

func TestRankAndAllocate_FourStudentScenario(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestStore(t, student.ConsistencyLastWriterWins)
	submit := NewSubmitAcademicsHandler(store, nil)

	for _, cmd := range []SubmitAcademicsCommand{
		academics("student1@example.com", 95, 92, 98, 95, "computer-science", "electrical"),
		academics("student2@example.com", 90, 88, 96, 90, "mechanical", "civil"),
		academics("student3@example.com", 94, 90, 97, 95, "electronics", "computer-science"),
		academics("student4@example.com", 91, 89, 94, 90, "chemical", "biotechnology"),
	} {
		_, err := submit.Handle(ctx, cmd)
		require.NoError(t, err)
	}
	// Profile-only record: never ranked or allocated.
	_, err := NewSubmitProfileHandler(store, nil).Handle(ctx,
		SubmitProfileCommand{Email: "student5@example.com", FullName: "Five", Phone: "5"})
	require.NoError(t, err)

	ranked, err := NewGenerateRankingsHandler(store, nil, nil).Handle(ctx, GenerateRankingsCommand{})
	require.NoError(t, err)
	require.Len(t, ranked.Ranking.Ranked, 4)

	engine := allocation.NewEngine(branch.DefaultCapacity(), allocation.WithClock(func() time.Time { return now }))
	alloc, err := NewAllocateSeatsHandler(store, engine, repo, nil).Handle(ctx, AllocateSeatsCommand{})
	require.NoError(t, err)
	assert.Equal(t, 4, alloc.Cycle.Count(allocation.ChoiceFirst))
	assert.Equal(t, []student.Email{"student5@example.com"}, alloc.Cycle.Skipped)

	got := make(map[student.Email]int)
	alloced := make(map[student.Email]branch.Code)
	for _, r := range load(t, repo).Records {
		if rank, ok := r.RankValue(); ok {
			got[r.Email] = rank
		}
		if code, ok := r.Branch(); ok {
			alloced[r.Email] = code
		}
	}
	assert.Equal(t, map[student.Email]int{
		"student1@example.com": 1,
		"student3@example.com": 2,
		"student2@example.com": 3,
		"student4@example.com": 4,
	}, got)
	assert.Equal(t, map[student.Email]branch.Code{
		"student1@example.com": branch.ComputerScience,
		"student2@example.com": branch.Mechanical,
		"student3@example.com": branch.Electronics,
		"student4@example.com": branch.Chemical,
	}, alloced)

	require.Len(t, repo.Cycles(), 1)
	assert.Equal(t, alloc.Cycle.CycleID, repo.Cycles()[0].CycleID)
}

func TestSubmitAcademics_ChangedPreferencesDropAllocation(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestStore(t, student.ConsistencyLastWriterWins)
	submit := NewSubmitAcademicsHandler(store, nil)

	_, err := submit.Handle(ctx, academics("a@x.io", 80, 80, 80, 80, "computer-science", "electrical"))
	require.NoError(t, err)
	_, err = NewGenerateRankingsHandler(store, nil, nil).Handle(ctx, GenerateRankingsCommand{})
	require.NoError(t, err)
	_, err = NewAllocateSeatsHandler(store, allocation.NewEngine(branch.DefaultCapacity()), nil, nil).
		Handle(ctx, AllocateSeatsCommand{})
	require.NoError(t, err)
	code, ok := load(t, repo).Find("a@x.io").Branch()
	require.True(t, ok)
	require.Equal(t, branch.ComputerScience, code)

	res, err := submit.Handle(ctx, academics("a@x.io", 80, 80, 80, 80, "mechanical", "civil"))
	require.NoError(t, err)
	_, ok = res.Record.Branch()
	assert.False(t, ok)

	r := load(t, repo).Find("a@x.io")
	assert.Nil(t, r.AllocatedBranch)
	rank, ok := r.RankValue()
	assert.True(t, ok, "rank survives resubmission")
	assert.Equal(t, 1, rank)
}

func TestAllocateSeats_LogsOverrideMode(t *testing.T) {
	for _, preserve := range []bool{true, false} {
		t.Run(fmt.Sprint(preserve), func(t *testing.T) {
			_, store := newTestStore(t, student.ConsistencyLastWriterWins)
			core, logs := observer.New(zap.InfoLevel)
			engine := allocation.NewEngine(branch.DefaultCapacity(), allocation.WithPreserveOverrides(preserve))

			_, err := NewAllocateSeatsHandler(store, engine, nil, logger.FromZap(zap.New(core))).
				Handle(context.Background(), AllocateSeatsCommand{})
			require.NoError(t, err)

			entries := logs.FilterMessage("seats allocated").All()
			require.Len(t, entries, 1)
			assert.Equal(t, preserve, entries[0].ContextMap()["preserve_overrides"])
		})
	}
}

func TestAllocateSeats_InvalidCapacity(t *testing.T) {
	_, store := newTestStore(t, student.ConsistencyLastWriterWins)
	engine := allocation.NewEngine(branch.Capacity{branch.Civil: -1})

	_, err := NewAllocateSeatsHandler(store, engine, nil, nil).Handle(context.Background(), AllocateSeatsCommand{})
	assert.ErrorIs(t, err, shared.ErrInvalidCapacity)
}

func TestOverrideAllocation(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestStore(t, student.ConsistencyLastWriterWins)
	h := NewOverrideAllocationHandler(store, nil)

	_, err := h.Handle(ctx, OverrideAllocationCommand{Email: "ghost@example.com", Branch: "civil"})
	assert.True(t, shared.IsNotFound(err))

	_, err = NewSubmitAcademicsHandler(store, nil).Handle(ctx,
		academics("a@example.com", 50, 50, 50, 50, "computer-science", "electrical"))
	require.NoError(t, err)

	_, err = h.Handle(ctx, OverrideAllocationCommand{Email: "a@example.com", Branch: "astronomy"})
	assert.ErrorIs(t, err, shared.ErrUnknownBranch)

	// Not one of the preferences and the branch has no seats: still accepted.
	res, err := h.Handle(ctx, OverrideAllocationCommand{Email: "a@example.com", Branch: "biotechnology"})
	require.NoError(t, err)
	assert.Nil(t, res.Previous)
	assert.True(t, res.Record.AllocationOverride)

	// Preserved through the next cycle.
	_, err = NewAllocateSeatsHandler(store, allocation.NewEngine(branch.DefaultCapacity()), nil, nil).
		Handle(ctx, AllocateSeatsCommand{})
	require.NoError(t, err)
	code, ok := load(t, repo).Records[0].Branch()
	require.True(t, ok)
	assert.Equal(t, branch.Biotechnology, code)

	res, err = h.Handle(ctx, OverrideAllocationCommand{Email: "a@example.com", Clear: true})
	require.NoError(t, err)
	require.NotNil(t, res.Previous)
	assert.Equal(t, branch.Biotechnology, *res.Previous)
	_, ok = res.Record.Branch()
	assert.False(t, ok)

	_, err = h.Handle(ctx, OverrideAllocationCommand{Email: "a@example.com", Branch: "civil", Clear: true})
	assert.True(t, shared.IsValidation(err))
}

func TestReviewPayment(t *testing.T) {
	ctx := context.Background()
	_, store := newTestStore(t, student.ConsistencyLastWriterWins)
	review := NewReviewPaymentHandler(store, nil)

	_, err := review.Verify(ctx, "a@example.com")
	assert.True(t, shared.IsNotFound(err))

	_, err = NewSubmitProfileHandler(store, nil).Handle(ctx,
		SubmitProfileCommand{Email: "a@example.com", FullName: "A", Phone: "1"})
	require.NoError(t, err)

	_, err = review.Verify(ctx, "a@example.com")
	assert.ErrorIs(t, err, shared.ErrNoPayment)

	_, err = NewSubmitPaymentHandler(store, nil).Handle(ctx,
		SubmitPaymentCommand{Email: "a@example.com", Amount: 100, TransactionID: "T"})
	require.NoError(t, err)

	res, err := review.Reject(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, res.Record.Payment.IsRejected())

	res, err = review.Verify(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, res.Record.IsPaymentVerified())

	_, err = review.Handle(ctx, ReviewPaymentCommand{Email: "a@example.com", Decision: "maybe"})
	assert.True(t, shared.IsValidation(err))
}

func TestVerifyAllPayments(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestStore(t, student.ConsistencyLastWriterWins)
	pay := NewSubmitPaymentHandler(store, nil)
	h := NewVerifyAllPaymentsHandler(store, nil)

	res, err := h.Handle(ctx, VerifyAllPaymentsCommand{})
	require.NoError(t, err)
	assert.Empty(t, res.Verified)
	assert.Equal(t, int64(0), res.Version)

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := pay.Handle(ctx, SubmitPaymentCommand{Email: email, Amount: 100, TransactionID: "T-" + email})
		require.NoError(t, err)
	}
	_, err = NewReviewPaymentHandler(store, nil).Reject(ctx, "b@example.com")
	require.NoError(t, err)

	res, err = h.Handle(ctx, VerifyAllPaymentsCommand{})
	require.NoError(t, err)
	assert.Equal(t, []student.Email{"a@example.com", "c@example.com"}, res.Verified)

	snap := load(t, repo)
	assert.True(t, snap.Find("a@example.com").IsPaymentVerified())
	assert.False(t, snap.Find("b@example.com").IsPaymentVerified())

	before := snap.Version
	res, err = h.Handle(ctx, VerifyAllPaymentsCommand{})
	require.NoError(t, err)
	assert.Empty(t, res.Verified)
	assert.Equal(t, before, load(t, repo).Version)
}

// staleRepo loses the first n saves.
type staleRepo struct {
	student.Repository
	mu    sync.Mutex
	fails int
	saves int
}

func (r *staleRepo) Save(ctx context.Context, snap *student.Snapshot) error {
	r.mu.Lock()
	r.saves++
	fail := r.saves <= r.fails
	r.mu.Unlock()
	if fail {
		return shared.ErrStaleSnapshot
	}
	return r.Repository.Save(ctx, snap)
}

func TestStore_RetriesStaleSaves(t *testing.T) {
	ctx := context.Background()
	repo := &staleRepo{Repository: memory.NewStore(student.ConsistencyOptimistic, nil), fails: 2}
	store := NewStore(repo, nil, WithRetrier(retry.StoreRetrier(isStale, retry.WithInitialDelay(0))))

	_, err := NewSubmitProfileHandler(store, nil).Handle(ctx,
		SubmitProfileCommand{Email: "a@example.com", FullName: "A", Phone: "1"})
	require.NoError(t, err)
	assert.Equal(t, 3, repo.saves)

	repo.fails = 100
	_, err = NewSubmitProfileHandler(store, nil).Handle(ctx,
		SubmitProfileCommand{Email: "b@example.com", FullName: "B", Phone: "2"})
	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
}

func TestStore_DoesNotRetryDomainErrors(t *testing.T) {
	repo := &staleRepo{Repository: memory.NewStore(student.ConsistencyOptimistic, nil)}
	store := NewStore(repo, nil)

	_, err := NewReviewPaymentHandler(store, nil).Verify(context.Background(), "a@example.com")
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, 0, repo.saves)
}

func TestOptimisticStore_ConcurrentSubmissionsAreNotLost(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore(student.ConsistencyOptimistic, nil)
	store := NewStore(repo, nil, WithRetrier(retry.StoreRetrier(isStale,
		retry.WithMaxAttempts(100),
		retry.WithInitialDelay(time.Millisecond),
		retry.WithMaxDelay(5*time.Millisecond),
	)))
	h := NewSubmitProfileHandler(store, nil)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.Handle(ctx, SubmitProfileCommand{
				Email:    fmt.Sprintf("s%d@example.com", i),
				FullName: "S",
				Phone:    "1",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, n, load(t, repo).Len())
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

func TestStore_PublishesEventsAfterSave(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	repo := memory.NewStore(student.ConsistencyOptimistic, nil)
	store := NewStore(repo, nil, WithClock(func() time.Time { return now }), WithPublisher(pub))

	_, err := NewSubmitProfileHandler(store, nil).Handle(ctx,
		SubmitProfileCommand{Email: "a@example.com", FullName: "Asel", Phone: "1"})
	require.NoError(t, err)
	_, err = NewSubmitAcademicsHandler(store, nil).Handle(ctx,
		academics("a@example.com", 90, 90, 90, 90, "computer-science", "civil"))
	require.NoError(t, err)
	_, err = NewSubmitPaymentHandler(store, nil).Handle(ctx,
		SubmitPaymentCommand{Email: "a@example.com", Amount: 100, TransactionID: "T"})
	require.NoError(t, err)

	_, err = NewGenerateRankingsHandler(store, nil, nil).Handle(ctx, GenerateRankingsCommand{})
	require.NoError(t, err)
	engine := allocation.NewEngine(branch.DefaultCapacity(), allocation.WithClock(func() time.Time { return now }))
	_, err = NewAllocateSeatsHandler(store, engine, nil, nil).Handle(ctx, AllocateSeatsCommand{})
	require.NoError(t, err)
	_, err = NewOverrideAllocationHandler(store, nil).Handle(ctx,
		OverrideAllocationCommand{Email: "a@example.com", Branch: "civil"})
	require.NoError(t, err)
	_, err = NewVerifyAllPaymentsHandler(store, nil).Handle(ctx, VerifyAllPaymentsCommand{})
	require.NoError(t, err)

	// Nothing left to verify: no save, no event.
	_, err = NewVerifyAllPaymentsHandler(store, nil).Handle(ctx, VerifyAllPaymentsCommand{})
	require.NoError(t, err)
	// Domain error: nothing published.
	_, err = NewReviewPaymentHandler(store, nil).Reject(ctx, "missing@example.com")
	require.Error(t, err)

	assert.Equal(t, []shared.EventType{
		shared.EventProfileSubmitted,
		shared.EventAcademicsSubmitted,
		shared.EventPaymentSubmitted,
		shared.EventRankingsGenerated,
		shared.EventSeatsAllocated,
		shared.EventAllocationOverridden,
		shared.EventPaymentsBulkVerified,
	}, pub.types())

	first := pub.events[0].(shared.SubmissionEvent)
	assert.True(t, first.Created)
	assert.Equal(t, "a@example.com", first.AggregateID())
	assert.Equal(t, now, first.OccurredAt())

	override := pub.events[5].(shared.AllocationOverriddenEvent)
	assert.Equal(t, "civil", override.Branch)
	assert.Equal(t, "computer-science", override.Previous)

	bulk := pub.events[6].(shared.PaymentsBulkVerifiedEvent)
	assert.Equal(t, []string{"a@example.com"}, bulk.Emails)
	assert.Equal(t, shared.StoreAggregate, bulk.AggregateID())
	assert.Greater(t, bulk.StoreVersion(), first.StoreVersion())
}
