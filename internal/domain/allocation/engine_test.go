package allocation

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/counseling-hub/internal/domain/branch"
	"github.com/alem-hub/counseling-hub/internal/domain/ranking"
	"github.com/alem-hub/counseling-hub/internal/domain/shared"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
)

var now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func fixed() []Option {
	return []Option{
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string { return "cycle-1" }),
	}
}

func applicant(email string, total int, pref1, pref2 branch.Code) *student.Record {
	r := student.NewRecord(student.Email(email), now)
	r.Academics = &student.Academics{Preference1: pref1, Preference2: pref2, TotalMarks12: &total}
	return r
}

func allocated(records []*student.Record) map[student.Email]branch.Code {
	out := make(map[student.Email]branch.Code)
	for _, r := range records {
		if code, ok := r.Branch(); ok {
			out[r.Email] = code
		}
	}
	return out
}

func TestAllocate_FourStudentScenario(t *testing.T) {
	records := []*student.Record{
		applicant("student1@example.com", 380, branch.ComputerScience, branch.Electrical),
		applicant("student3@example.com", 376, branch.Electronics, branch.ComputerScience),
		applicant("student2@example.com", 364, branch.Mechanical, branch.Civil),
		applicant("student4@example.com", 364, branch.Chemical, branch.Biotechnology),
	}
	ranking.NewEngine().Rank(records)

	res, err := NewEngine(branch.DefaultCapacity(), fixed()...).Allocate(records)
	require.NoError(t, err)

	assert.Equal(t, map[student.Email]branch.Code{
		"student1@example.com": branch.ComputerScience,
		"student3@example.com": branch.Electronics,
		"student2@example.com": branch.Mechanical,
		"student4@example.com": branch.Chemical,
	}, allocated(records))
	assert.Equal(t, 4, res.Count(ChoiceFirst))
	assert.Equal(t, "cycle-1", res.CycleID)
	assert.Equal(t, now, res.StartedAt)
}

func TestAllocate_BetterRankWinsLastSeat(t *testing.T) {
	x := applicant("x@x.io", 300, branch.ComputerScience, branch.Civil)
	y := applicant("y@x.io", 350, branch.ComputerScience, branch.Civil)
	records := []*student.Record{x, y}
	x.SetRank(1)
	y.SetRank(2)

	capacity := branch.Capacity{branch.ComputerScience: 1, branch.Civil: 1}
	res, err := NewEngine(capacity, fixed()...).Allocate(records)
	require.NoError(t, err)

	assert.Equal(t, branch.ComputerScience, *x.AllocatedBranch, "rank drives order, not raw marks")
	assert.Equal(t, branch.Civil, *y.AllocatedBranch)
	assert.Equal(t, 1, res.Count(ChoiceSecond))
}

func TestAllocate_BothPreferencesFull(t *testing.T) {
	a := applicant("a@x.io", 300, branch.ComputerScience, branch.Civil)
	b := applicant("b@x.io", 200, branch.ComputerScience, branch.Civil)
	c := applicant("c@x.io", 100, branch.ComputerScience, branch.Civil)
	records := []*student.Record{a, b, c}
	ranking.NewEngine().Rank(records)

	capacity := branch.Capacity{branch.ComputerScience: 1, branch.Civil: 1}
	res, err := NewEngine(capacity, fixed()...).Allocate(records)
	require.NoError(t, err)

	assert.Equal(t, branch.ComputerScience, *a.AllocatedBranch)
	assert.Equal(t, branch.Civil, *b.AllocatedBranch)
	assert.Nil(t, c.AllocatedBranch)
	assert.Equal(t, 1, res.Count(ChoiceNone))
}

func TestAllocate_MissingRankGoesLast(t *testing.T) {
	unranked := applicant("a@x.io", 400, branch.Civil, branch.Chemical)
	ranked := applicant("z@x.io", 10, branch.Civil, branch.Chemical)
	ranked.SetRank(1)

	capacity := branch.Capacity{branch.Civil: 1, branch.Chemical: 0}
	_, err := NewEngine(capacity, fixed()...).Allocate([]*student.Record{unranked, ranked})
	require.NoError(t, err)

	assert.Equal(t, branch.Civil, *ranked.AllocatedBranch)
	assert.Nil(t, unranked.AllocatedBranch)
}

func TestAllocate_IneligibleRecordsUntouched(t *testing.T) {
	keep := branch.Mechanical
	noAcademics := student.NewRecord("none@x.io", now)
	noAcademics.AllocatedBranch = &keep

	onePref := applicant("one@x.io", 300, branch.Civil, "")
	onePref.AllocatedBranch = &keep

	res, err := NewEngine(branch.DefaultCapacity(), fixed()...).Allocate([]*student.Record{noAcademics, onePref})
	require.NoError(t, err)

	assert.Equal(t, branch.Mechanical, *noAcademics.AllocatedBranch)
	assert.Equal(t, branch.Mechanical, *onePref.AllocatedBranch)
	assert.Equal(t, []student.Email{"none@x.io", "one@x.io"}, res.Skipped)
	assert.Empty(t, res.Assignments)
}

func TestAllocate_NoAcademicsNeverAllocated(t *testing.T) {
	bare := student.NewRecord("bare@x.io", now)
	_, err := NewEngine(branch.DefaultCapacity(), fixed()...).Allocate([]*student.Record{bare})
	require.NoError(t, err)
	assert.Nil(t, bare.AllocatedBranch)
	assert.Nil(t, bare.Rank)
}

func TestAllocate_InvalidCapacity(t *testing.T) {
	_, err := NewEngine(branch.Capacity{branch.Civil: -1}).Allocate(nil)
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)

	_, err = NewEngine(branch.Capacity{}).Allocate(nil)
	assert.Error(t, err)
}

func TestAllocate_PreservesOverrides(t *testing.T) {
	over := applicant("over@x.io", 390, branch.ComputerScience, branch.Civil)
	over.OverrideAllocation(branch.Biotechnology, now)
	seatHolder := applicant("holder@x.io", 380, branch.Civil, branch.Chemical)
	seatHolder.OverrideAllocation(branch.ComputerScience, now)
	other := applicant("other@x.io", 370, branch.ComputerScience, branch.Civil)
	records := []*student.Record{over, seatHolder, other}
	ranking.NewEngine().Rank(records)

	capacity := branch.Capacity{branch.ComputerScience: 1, branch.Civil: 1}
	engine := NewEngine(capacity, fixed()...)
	assert.True(t, engine.PreservesOverrides())
	res, err := engine.Allocate(records)
	require.NoError(t, err)

	assert.Equal(t, branch.Biotechnology, *over.AllocatedBranch)
	assert.True(t, over.AllocationOverride)
	assert.Equal(t, branch.ComputerScience, *seatHolder.AllocatedBranch)
	assert.Equal(t, branch.Civil, *other.AllocatedBranch, "override consumed the only computer-science seat")
	assert.Equal(t, 2, res.Count(ChoiceOverride))
}

func TestAllocate_LegacyModeErasesOverrides(t *testing.T) {
	over := applicant("over@x.io", 390, branch.ComputerScience, branch.Civil)
	over.OverrideAllocation(branch.Biotechnology, now)
	records := []*student.Record{over}
	ranking.NewEngine().Rank(records)

	opts := append(fixed(), WithPreserveOverrides(false))
	engine := NewEngine(branch.DefaultCapacity(), opts...)
	assert.False(t, engine.PreservesOverrides())
	res, err := engine.Allocate(records)
	require.NoError(t, err)

	assert.Equal(t, branch.ComputerScience, *over.AllocatedBranch)
	assert.False(t, over.AllocationOverride)
	assert.Equal(t, 1, res.Changed())
}

func TestAllocate_Idempotent(t *testing.T) {
	records := randomCohort(rand.New(rand.NewSource(11)), 200)
	ranking.NewEngine().Rank(records)
	capacity := branch.Capacity{
		branch.ComputerScience: 20, branch.Mechanical: 15, branch.Electrical: 10,
		branch.Civil: 12, branch.Electronics: 8, branch.Chemical: 5,
	}
	engine := NewEngine(capacity, fixed()...)

	first, err := engine.Allocate(records)
	require.NoError(t, err)
	want := allocated(records)

	second, err := engine.Allocate(records)
	require.NoError(t, err)

	if diff := cmp.Diff(want, allocated(records)); diff != "" {
		t.Errorf("second cycle changed allocation (-want +got):\n%s", diff)
	}
	assert.Zero(t, second.Changed())
	assert.Equal(t, first.Seats, second.Seats)
}

func TestAllocate_CapacityAndPreferenceInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for round := 0; round < 20; round++ {
		records := randomCohort(rng, 50+rng.Intn(150))
		ranking.NewEngine().Rank(records)
		capacity := branch.Capacity{}
		for _, code := range branch.All()[:6] {
			capacity[code] = rng.Intn(25)
		}

		_, err := NewEngine(capacity, fixed()...).Allocate(records)
		require.NoError(t, err)

		used := make(map[branch.Code]int)
		for _, r := range records {
			code, ok := r.Branch()
			if !ok {
				continue
			}
			used[code]++
			assert.True(t, r.Academics.IsPreference(code), "%s got %s outside preferences", r.Email, code)
		}
		for code, n := range used {
			assert.LessOrEqual(t, n, capacity.Seats(code), "round %d: %s over capacity", round, code)
		}
	}
}

func TestAllocate_MonotonicByRank(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	records := randomCohort(rng, 120)
	ranking.NewEngine().Rank(records)
	capacity := branch.Capacity{branch.ComputerScience: 3, branch.Electrical: 3, branch.Civil: 3}

	_, err := NewEngine(capacity, fixed()...).Allocate(records)
	require.NoError(t, err)

	// ни один студент без места на своём первом предпочтении не стоит выше
	// студента, который это место получил
	for _, better := range records {
		if !better.IsEligible() {
			continue
		}
		for _, worse := range records {
			if !worse.IsEligible() || *better.Rank >= *worse.Rank {
				continue
			}
			if better.Academics.Preference1 != worse.Academics.Preference1 {
				continue
			}
			code, ok := worse.Branch()
			if ok && code == worse.Academics.Preference1 {
				got, _ := better.Branch()
				assert.Equal(t, better.Academics.Preference1, got,
					"%s (rank %d) lost first preference to %s (rank %d)",
					better.Email, *better.Rank, worse.Email, *worse.Rank)
			}
		}
	}
}

func randomCohort(rng *rand.Rand, n int) []*student.Record {
	codes := branch.All()[:6]
	records := make([]*student.Record, 0, n)
	for i := 0; i < n; i++ {
		p1 := codes[rng.Intn(len(codes))]
		p2 := codes[rng.Intn(len(codes))]
		for p2 == p1 {
			p2 = codes[rng.Intn(len(codes))]
		}
		records = append(records, applicant(fmt.Sprintf("s%03d@x.io", i), rng.Intn(401), p1, p2))
	}
	return records
}
