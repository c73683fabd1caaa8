package ranking

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/counseling-hub/internal/domain/branch"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
)

var now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func withMarks(email string, p, c, m, e int) *student.Record {
	r := student.NewRecord(student.Email(email), now)
	a, err := student.NewAcademics(student.Marks{Physics12: p, Chemistry12: c, Math12: m, English12: e},
		branch.ComputerScience, branch.Electrical)
	if err != nil {
		panic(err)
	}
	r.Academics = a
	return r
}

func withTotal(email string, total int) *student.Record {
	r := student.NewRecord(student.Email(email), now)
	r.Academics = &student.Academics{TotalMarks12: &total}
	return r
}

func ranks(records []*student.Record) map[student.Email]int {
	out := make(map[student.Email]int)
	for _, r := range records {
		if v, ok := r.RankValue(); ok {
			out[r.Email] = v
		}
	}
	return out
}

func TestEngine_FourStudentScenario(t *testing.T) {
	records := []*student.Record{
		withMarks("student1@example.com", 96, 94, 98, 92), // 380
		withMarks("student4@example.com", 88, 90, 92, 94), // 364
		withMarks("student3@example.com", 94, 96, 96, 90), // 376
		withMarks("student2@example.com", 92, 90, 94, 88), // 364
	}

	res := NewEngine().Rank(records)

	assert.Equal(t, map[student.Email]int{
		"student1@example.com": 1,
		"student3@example.com": 2,
		"student2@example.com": 3,
		"student4@example.com": 4,
	}, ranks(records))
	assert.Empty(t, res.Unranked)
	require.Len(t, res.Ranked, 4)
	assert.Equal(t, Entry{Email: "student1@example.com", Aggregate: 380, Rank: 1}, res.Ranked[0])

	// порядок записей в хранилище не меняется
	assert.Equal(t, student.Email("student4@example.com"), records[1].Email)
}

func TestEngine_DenseRanks(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	records := make([]*student.Record, 0, 60)
	for i := 0; i < 60; i++ {
		if i%5 == 0 {
			records = append(records, student.NewRecord(student.Email(fmt.Sprintf("none%02d@x.io", i)), now))
			continue
		}
		records = append(records, withTotal(fmt.Sprintf("s%02d@x.io", i), rng.Intn(20)*20))
	}

	res := NewEngine().Rank(records)

	got := ranks(records)
	assert.Len(t, got, 48)
	seen := make(map[int]bool)
	for _, v := range got {
		assert.False(t, seen[v], "duplicate rank %d", v)
		seen[v] = true
	}
	for i := 1; i <= 48; i++ {
		assert.True(t, seen[i], "missing rank %d", i)
	}
	assert.Len(t, res.Unranked, 12)
}

func TestEngine_Deterministic(t *testing.T) {
	build := func() []*student.Record {
		return []*student.Record{
			withTotal("c@x.io", 300), withTotal("a@x.io", 300),
			withTotal("b@x.io", 350), withTotal("d@x.io", 300),
		}
	}
	first := build()
	NewEngine().Rank(first)
	want := ranks(first)

	res := NewEngine().Rank(first)
	if diff := cmp.Diff(want, ranks(first)); diff != "" {
		t.Errorf("second run changed ranks (-want +got):\n%s", diff)
	}
	assert.Zero(t, res.Changed())

	// перестановка входа не влияет на результат
	shuffled := build()
	shuffled[0], shuffled[3] = shuffled[3], shuffled[0]
	NewEngine().Rank(shuffled)
	assert.Equal(t, want, ranks(shuffled))
}

func TestEngine_NoAcademicsNoRank(t *testing.T) {
	bare := student.NewRecord("bare@x.io", now)
	stale := student.NewRecord("stale@x.io", now)
	stale.SetRank(5)
	code := branch.Civil
	stale.AllocatedBranch = &code

	res := NewEngine().Rank([]*student.Record{bare, stale, withTotal("a@x.io", 10)})

	assert.Nil(t, bare.Rank)
	assert.Nil(t, stale.Rank)
	assert.Equal(t, []student.Email{"stale@x.io"}, res.Cleared)
	assert.Equal(t, []student.Email{"bare@x.io", "stale@x.io"}, res.Unranked)
	require.NotNil(t, stale.AllocatedBranch, "allocation is never touched")
	assert.Equal(t, branch.Civil, *stale.AllocatedBranch)
}

func TestEngine_EmptyStore(t *testing.T) {
	res := NewEngine().Rank(nil)
	assert.Empty(t, res.Ranked)
	assert.Empty(t, res.Unranked)
}

func TestEngine_ReportsRankChanges(t *testing.T) {
	a := withTotal("a@x.io", 300)
	b := withTotal("b@x.io", 200)
	records := []*student.Record{a, b}
	NewEngine().Rank(records)

	*b.Academics.TotalMarks12 = 399
	res := NewEngine().Rank(records)

	assert.Equal(t, RankChange(1), res.Changes["b@x.io"])
	assert.Equal(t, RankChange(-1), res.Changes["a@x.io"])
	assert.Equal(t, 2, res.Changed())
	assert.Equal(t, "+1", res.Changes["b@x.io"].String())
}

func TestTable_GapToTop(t *testing.T) {
	tbl := NewTable([]Entry{{Email: "a@x.io", Aggregate: 380}, {Email: "b@x.io", Aggregate: 364}})

	gap, ok := tbl.GapToTop("b@x.io")
	require.True(t, ok)
	assert.Equal(t, 16, gap)

	_, ok = tbl.GapToTop("zzz@x.io")
	assert.False(t, ok)
}

func TestLiveCohort_MissingMarksCountAsZero(t *testing.T) {
	partial := student.NewRecord("p@x.io", now)
	partial.Academics = &student.Academics{Marks: student.Marks{Physics12: 90}}

	cohort := LiveCohort([]*student.Record{partial, student.NewRecord("none@x.io", now)})
	assert.Equal(t, []Entry{{Email: "p@x.io", Aggregate: 90}}, cohort)
	assert.Empty(t, Candidates([]*student.Record{partial}), "no stored total, no candidate")
}
